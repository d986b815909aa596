package operations

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/timelock-labs/withdrawal-deployer/pkg/logger"
)

// IsSerializable reports whether v survives a JSON round trip unchanged, which is required to
// persist it in a report.
func IsSerializable(lggr logger.Logger, v any) bool {
	if v == nil {
		return true
	}

	first, err := json.Marshal(v)
	if err != nil {
		lggr.Errorw("Value is not JSON serializable", "type", fmt.Sprintf("%T", v), "error", err)
		return false
	}

	decoded := reflect.New(reflect.TypeOf(v))
	if err = json.Unmarshal(first, decoded.Interface()); err != nil {
		lggr.Errorw("Value cannot be decoded from JSON", "type", fmt.Sprintf("%T", v), "error", err)
		return false
	}

	roundTripped := decoded.Elem().Interface()

	second, err := json.Marshal(roundTripped)
	if err != nil || !bytes.Equal(first, second) || !reflect.DeepEqual(v, roundTripped) {
		lggr.Errorw("Value changes across a JSON round trip", "type", fmt.Sprintf("%T", v))
		return false
	}

	return true
}

// executionHash identifies an execution by its definition ID, version and input. The input is
// normalised to generic JSON first so a typed input and the same input read back from disk hash
// alike.
func executionHash(def Definition, input any) (string, error) {
	version := ""
	if def.Version != nil {
		version = def.Version.String()
	}

	raw, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("failed to marshal input: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var normalised any
	if err = dec.Decode(&normalised); err != nil {
		return "", fmt.Errorf("failed to normalise input: %w", err)
	}

	b, err := json.Marshal(struct {
		ID      string `json:"id"`
		Version string `json:"version"`
		Input   any    `json:"input"`
	}{def.ID, version, normalised})
	if err != nil {
		return "", fmt.Errorf("failed to marshal execution: %w", err)
	}

	sum := sha256.Sum256(b)

	return hex.EncodeToString(sum[:]), nil
}

// reportHash returns the execution hash of a stored report, caching it by report ID.
func reportHash(cache *sync.Map, r Report[any, any]) (string, error) {
	if cache != nil {
		if h, ok := cache.Load(r.ID); ok {
			return h.(string), nil
		}
	}

	h, err := executionHash(r.Def, r.Input)
	if err != nil {
		return "", err
	}

	if cache != nil {
		cache.Store(r.ID, h)
	}

	return h, nil
}
