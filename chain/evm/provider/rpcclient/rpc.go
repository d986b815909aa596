package rpcclient

import (
	"errors"
	"fmt"
	"strings"
)

// URLSchemePreference selects which endpoint of an RPC is dialed.
type URLSchemePreference int

const (
	URLSchemePreferenceNone URLSchemePreference = iota
	URLSchemePreferenceWS
	URLSchemePreferenceHTTP
)

// String returns the manifest representation of the preference.
func (u URLSchemePreference) String() string {
	switch u {
	case URLSchemePreferenceWS:
		return "ws"
	case URLSchemePreferenceHTTP:
		return "http"
	default:
		return ""
	}
}

// URLSchemePreferenceFromString converts a string to URLSchemePreference. An empty string maps
// to URLSchemePreferenceNone.
func URLSchemePreferenceFromString(s string) (URLSchemePreference, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return URLSchemePreferenceNone, nil
	case "ws", "wss", "websocket":
		return URLSchemePreferenceWS, nil
	case "http", "https":
		return URLSchemePreferenceHTTP, nil
	default:
		return URLSchemePreferenceNone, fmt.Errorf("invalid URL scheme preference %q", s)
	}
}

// RPC represents a single RPC endpoint configuration.
type RPC struct {
	Name               string
	WSURL              string
	HTTPURL            string
	PreferredURLScheme URLSchemePreference
}

// ToEndpoint returns the URL to dial. HTTP is used unless websockets are preferred, and the other
// scheme is used when the preferred one is not configured.
func (r RPC) ToEndpoint() (string, error) {
	primary, fallback := r.HTTPURL, r.WSURL
	if r.PreferredURLScheme == URLSchemePreferenceWS {
		primary, fallback = r.WSURL, r.HTTPURL
	}

	switch {
	case primary != "":
		return primary, nil
	case fallback != "":
		return fallback, nil
	default:
		return "", errors.New("RPC " + r.Name + " has no HTTP or WS URL")
	}
}

// RPCConfig is a configuration for a chain.
// It contains a chain selector and a list of RPCs
type RPCConfig struct {
	ChainSelector uint64
	RPCs          []RPC
}
