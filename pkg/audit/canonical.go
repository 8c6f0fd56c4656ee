package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// The digest computation and the encryption codec must never disagree on the
// byte representation of a map, so both go through this one encoder.
// encoding/json writes map keys in sorted order, which makes the output
// deterministic for JSON-safe values.

// EncodeMap renders a map with the canonical encoder.
func EncodeMap(m map[string]any) ([]byte, error) {
	b, err := encodeCanonical(m)
	if err != nil {
		return nil, fmt.Errorf("encode map: %w", err)
	}
	return b, nil
}

func encodeCanonical(v any) ([]byte, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	// Encoder appends a trailing newline; strip it so the bytes are exactly
	// the JSON document.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// DecodeMap parses canonical bytes back into a map.
func DecodeMap(b []byte) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode map: %w", err)
	}
	return m, nil
}

// CanonicalizeMap normalizes a JSON-safe map through one encode/decode round
// trip. After normalization the in-memory representation matches what any
// store hands back, so digests recomputed during verification agree with the
// ones computed at flush time.
func CanonicalizeMap(m map[string]any) (map[string]any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := EncodeMap(m)
	if err != nil {
		return nil, err
	}
	return DecodeMap(b)
}
