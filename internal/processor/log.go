package processor

import "github.com/telhawk-systems/debughawk/internal/model"

const defaultLevel = "Info"

// Log handles "log" payloads. values may be a sequence (message first,
// the rest is context), a mapping with level/message/context, or any other
// value which becomes the message as a whole.
func Log(content any) (model.Event, error) {
	var vals any = content
	if m, ok := content.(map[string]any); ok {
		if v, present := m["values"]; present {
			vals = v
		}
	}

	l := &model.Log{Level: defaultLevel}
	switch v := vals.(type) {
	case []any:
		if len(v) > 0 {
			l.Message = text(v[0])
		}
		if len(v) > 1 {
			l.Context = v[1:]
		}
	case map[string]any:
		l.Level = stringOr(v, "level", defaultLevel)
		l.Message = text(v["message"])
		l.Context = v["context"]
	default:
		l.Message = text(v)
	}
	return model.Event{Log: l}, nil
}

// ApplicationLog handles "application_log" payloads.
func ApplicationLog(content any) (model.Event, error) {
	m, err := object(content, "application_log")
	if err != nil {
		return model.Event{}, err
	}

	a := &model.ApplicationLog{
		Level:   stringOr(m, "level", defaultLevel),
		Message: text(m["value"]),
		Context: m["context"],
	}
	if channel, ok := m["channel"].(string); ok && channel != "" {
		a.Channel = &channel
	}
	return model.Event{ApplicationLog: a}, nil
}
