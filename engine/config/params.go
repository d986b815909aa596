package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Duration is a time.Duration written as a Go duration string, e.g. "1h30m".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)

	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Params are the parameters of a deployment. Flags override them.
type Params struct {
	// Network is a chain name or selector from the networks manifest.
	Network string `toml:"network"`
	// UnlockDelay is added to the current time to get the unlock time.
	UnlockDelay Duration `toml:"unlock_delay"`
	// Qualifier of the address ref. Defaults to the run ID.
	Qualifier string `toml:"qualifier"`
	// ConfirmTimeout bounds how long to wait for the deployment to be mined.
	ConfirmTimeout Duration `toml:"confirm_timeout"`
	// Artifact is the path of a Hardhat artifact to deploy instead of the embedded one.
	Artifact string `toml:"artifact"`
}

// LoadParams reads params from a TOML file. Unknown keys are an error.
func LoadParams(path string) (Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Params{}, fmt.Errorf("failed to read params file: %w", err)
	}

	return ParseParams(data)
}

// ParseParams decodes TOML params. Unknown keys are an error.
func ParseParams(data []byte) (Params, error) {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var params Params
	if err := dec.Decode(&params); err != nil {
		var strictErr *toml.StrictMissingError
		if errors.As(err, &strictErr) {
			return Params{}, fmt.Errorf("failed to decode params: %s", strictErr.String())
		}

		return Params{}, fmt.Errorf("failed to decode params: %w", err)
	}

	if params.UnlockDelay < 0 {
		return Params{}, fmt.Errorf("unlock_delay must not be negative, got %s", time.Duration(params.UnlockDelay))
	}
	if params.ConfirmTimeout < 0 {
		return Params{}, fmt.Errorf("confirm_timeout must not be negative, got %s", time.Duration(params.ConfirmTimeout))
	}

	return params, nil
}
