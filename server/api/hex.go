package api

import (
	"encoding/hex"
	"fmt"
)

// decodeHex is tolerant of surrounding whitespace so payloads can be
// piped from files or curl heredocs.
func decodeHex(body []byte) ([]byte, error) {
	trimmed := make([]byte, 0, len(body))
	for _, b := range body {
		switch b {
		case ' ', '\t', '\r', '\n':
		default:
			trimmed = append(trimmed, b)
		}
	}
	data, err := hex.DecodeString(string(trimmed))
	if err != nil {
		return nil, fmt.Errorf("api: malformed hex payload: %w", err)
	}
	return data, nil
}

func encodeHex(data []byte) []byte {
	out := make([]byte, hex.EncodedLen(len(data)))
	hex.Encode(out, data)
	return out
}
