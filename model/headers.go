package model

import (
	"encoding/json"
	"fmt"
)

// headersVersion is the current encoding version for the headers column.
// Bump when the envelope layout changes; DecodeHeaders rejects versions it
// does not understand instead of silently misreading them.
const headersVersion = 1

// headersEnvelope is the persisted form of a record's headers. The explicit
// version field keeps the storage format evolvable without schema drift.
type headersEnvelope struct {
	Version int               `json:"v"`
	Headers map[string]string `json:"headers,omitempty"`
}

// EncodeHeaders serializes a header map for the store's headers column.
// A nil or empty map encodes to the empty string (stored as NULL-equivalent).
func EncodeHeaders(headers map[string]string) (string, error) {
	if len(headers) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(headersEnvelope{Version: headersVersion, Headers: headers})
	if err != nil {
		return "", fmt.Errorf("encode headers: %w", err)
	}
	return string(raw), nil
}

// DecodeHeaders parses the headers column back into a map.
// Empty input yields a nil map.
func DecodeHeaders(encoded string) (map[string]string, error) {
	if encoded == "" {
		return nil, nil
	}
	var env headersEnvelope
	if err := json.Unmarshal([]byte(encoded), &env); err != nil {
		return nil, fmt.Errorf("decode headers: %w", err)
	}
	if env.Version != headersVersion {
		return nil, fmt.Errorf("decode headers: unsupported version %d", env.Version)
	}
	return env.Headers, nil
}
