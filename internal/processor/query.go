package processor

import "github.com/telhawk-systems/debughawk/internal/model"

// Query handles "executed_query" payloads.
func Query(content any) (model.Event, error) {
	m, err := object(content, "query")
	if err != nil {
		return model.Event{}, err
	}

	q := &model.Query{
		SQL:            firstString(m, "sql"),
		Bindings:       []any{},
		DurationMS:     optionalFloat(m, "time"),
		ConnectionName: optionalString(m, "connection_name"),
		AffectedRows:   optionalInt(m, "affected_rows"),
	}
	if bindings, ok := m["bindings"].([]any); ok {
		q.Bindings = bindings
	}
	return model.Event{Query: q}, nil
}
