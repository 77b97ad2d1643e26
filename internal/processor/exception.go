package processor

import "github.com/telhawk-systems/debughawk/internal/model"

const unknownException = "Unknown Exception"

// Exception handles "exception" payloads. Frames are read from "frames" or
// "stack_trace" and accept both the short and the long field spellings.
func Exception(content any) (model.Event, error) {
	m, err := object(content, "exception")
	if err != nil {
		return model.Event{}, err
	}

	x := &model.Exception{
		Class:      stringOr(m, "class", unknownException),
		Message:    firstString(m, "message"),
		File:       firstString(m, "file", "file_name"),
		Line:       intField(m, "line", "line_number"),
		StackTrace: []model.Frame{},
		Context:    m["context"],
	}

	raw, ok := m["frames"].([]any)
	if !ok {
		raw, _ = m["stack_trace"].([]any)
	}
	for _, item := range raw {
		f, ok := item.(map[string]any)
		if !ok {
			continue
		}
		frame := model.Frame{
			File:     firstString(f, "file", "file_name"),
			Line:     intField(f, "line", "line_number"),
			Function: firstString(f, "function", "method"),
		}
		if class, ok := f["class"].(string); ok && class != "" {
			frame.Class = &class
		}
		x.StackTrace = append(x.StackTrace, frame)
	}

	return model.Event{Exception: x}, nil
}
