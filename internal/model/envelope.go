package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Envelope is an untrusted inbound debugging payload. It is kept as the
// decoded JSON object so that sandboxed plugins receive it unchanged.
type Envelope map[string]any

// Origin describes where a payload was emitted.
type Origin struct {
	File       string `json:"file"`
	LineNumber int    `json:"line_number"`
	Hostname   string `json:"hostname"`
}

// ErrEmptyBatch is returned when a body contains no envelopes.
var ErrEmptyBatch = errors.New("no envelopes in payload")

// Type returns the event type identifier, or "" when absent or not a string.
func (e Envelope) Type() string {
	s, _ := e["type"].(string)
	return s
}

// Content returns the type-specific content value.
func (e Envelope) Content() any {
	return e["content"]
}

// Timestamp returns the envelope timestamp when present as a non-empty string.
func (e Envelope) Timestamp() (string, bool) {
	s, ok := e["timestamp"].(string)
	return s, ok && s != ""
}

// Origin returns the origin block, or nil when absent or malformed.
func (e Envelope) Origin() *Origin {
	raw, ok := e["origin"].(map[string]any)
	if !ok {
		return nil
	}
	o := &Origin{}
	o.File, _ = raw["file"].(string)
	o.Hostname, _ = raw["hostname"].(string)
	if n, ok := raw["line_number"].(float64); ok {
		o.LineNumber = int(n)
	}
	return o
}

// DecodeEnvelopes accepts a JSON array of envelopes, a single envelope
// object, or newline-delimited envelope objects.
func DecodeEnvelopes(data []byte) ([]Envelope, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, ErrEmptyBatch
	}

	if trimmed[0] == '[' {
		var batch []Envelope
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return nil, fmt.Errorf("decode envelope batch: %w", err)
		}
		if len(batch) == 0 {
			return nil, ErrEmptyBatch
		}
		return batch, nil
	}

	var single Envelope
	if err := json.Unmarshal(trimmed, &single); err == nil {
		return []Envelope{single}, nil
	}

	var batch []Envelope
	for i, line := range bytes.Split(trimmed, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var env Envelope
		if err := json.Unmarshal(line, &env); err != nil {
			return nil, fmt.Errorf("decode envelope on line %d: %w", i+1, err)
		}
		batch = append(batch, env)
	}
	if len(batch) == 0 {
		return nil, ErrEmptyBatch
	}
	return batch, nil
}
