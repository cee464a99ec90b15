// Package ingest turns log collector payloads into stored behavior events.
package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// recordSeparator is the ASCII group separator some agents put between records.
const recordSeparator = 0x1D

var (
	// ErrEmptyPayload means the body held no records.
	ErrEmptyPayload = errors.New("ingest: empty payload")
	// ErrMalformedPayload means the body was neither JSON nor NDJSON.
	ErrMalformedPayload = errors.New("ingest: malformed payload")
)

// ParsePayload splits raw into JSON objects. raw may be one object, an array of objects, or
// newline-delimited objects; 0x1D separates records like a newline does.
func ParsePayload(raw []byte) ([]json.RawMessage, error) {
	text := bytes.TrimSpace(bytes.ReplaceAll(raw, []byte{recordSeparator}, []byte{'\n'}))
	if len(text) == 0 {
		return nil, ErrEmptyPayload
	}

	switch text[0] {
	case '{':
		var obj json.RawMessage
		if json.Unmarshal(text, &obj) == nil {
			return []json.RawMessage{obj}, nil
		}
	case '[':
		var arr []json.RawMessage
		if err := json.Unmarshal(text, &arr); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		if len(arr) == 0 {
			return nil, ErrEmptyPayload
		}
		for i, rec := range arr {
			if !isObject(rec) {
				return nil, fmt.Errorf("%w: element %d is not an object", ErrMalformedPayload, i)
			}
		}
		return arr, nil
	}

	var out []json.RawMessage
	for n, line := range bytes.Split(text, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) || !isObject(line) {
			return nil, fmt.Errorf("%w: line %d is not a JSON object", ErrMalformedPayload, n+1)
		}
		out = append(out, json.RawMessage(line))
	}
	if len(out) == 0 {
		return nil, ErrEmptyPayload
	}
	return out, nil
}

func isObject(b []byte) bool {
	b = bytes.TrimSpace(b)
	return len(b) > 0 && b[0] == '{'
}
