// Package processor holds the built-in extraction rules that turn the
// content of a known event type into a typed model.Event.
package processor

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/telhawk-systems/debughawk/internal/model"
)

// Func is a pure transformation of envelope content into a typed event.
type Func func(content any) (model.Event, error)

// ErrInvalidContent is returned when content does not have the shape a
// processor needs at all (for example a string where an object is required).
var ErrInvalidContent = errors.New("invalid content")

// Run applies fn and flattens the result into a Record.
func Run(fn Func, content any) (model.Record, error) {
	event, err := fn(content)
	if err != nil {
		return model.Record{}, err
	}
	return event.Record()
}

func object(content any, kind string) (map[string]any, error) {
	m, ok := content.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s content must be an object, got %T", ErrInvalidContent, kind, content)
	}
	return m, nil
}

// values returns content.values as a mapping, or an empty one.
func values(m map[string]any) map[string]any {
	if v, ok := m["values"].(map[string]any); ok {
		return v
	}
	return map[string]any{}
}

func stringField(m map[string]any, key string) (string, bool) {
	s, ok := m[key].(string)
	return s, ok
}

func stringOr(m map[string]any, key, fallback string) string {
	if s, ok := m[key].(string); ok && s != "" {
		return s
	}
	return fallback
}

func optionalString(m map[string]any, key string) *string {
	if s, ok := m[key].(string); ok {
		return &s
	}
	return nil
}

// number reads a finite number. NaN and infinities are treated as absent,
// since they cannot be encoded as JSON.
func number(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func optionalFloat(m map[string]any, key string) *float64 {
	if f, ok := number(m[key]); ok {
		return &f
	}
	return nil
}

func optionalInt(m map[string]any, key string) *int64 {
	if f, ok := number(m[key]); ok {
		i := int64(f)
		return &i
	}
	return nil
}

func intField(m map[string]any, keys ...string) int {
	for _, key := range keys {
		if f, ok := number(m[key]); ok {
			return int(f)
		}
	}
	return 0
}

func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := m[key].(string); ok {
			return s
		}
	}
	return ""
}

// text stringifies a value for display: strings verbatim, everything else
// as JSON.
func text(v any) string {
	s, err := model.Stringify(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return s
}
