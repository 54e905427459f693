package store

import (
	"encoding/json"
	"fmt"
)

// EncodeSources turns a source list into the JSON array stored in the
// contexts table. A nil list is stored as an empty array.
func EncodeSources(sources []string) ([]byte, error) {
	if sources == nil {
		sources = []string{}
	}
	b, err := json.Marshal(sources)
	if err != nil {
		return nil, fmt.Errorf("encode sources: %w", err)
	}
	return b, nil
}

// DecodeSources is the inverse of EncodeSources. Empty input decodes to an empty list.
func DecodeSources(raw []byte) ([]string, error) {
	sources := []string{}
	if len(raw) == 0 {
		return sources, nil
	}
	if err := json.Unmarshal(raw, &sources); err != nil {
		return nil, fmt.Errorf("decode sources: %w", err)
	}
	if sources == nil {
		sources = []string{}
	}
	return sources, nil
}
