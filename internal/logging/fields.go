package logging

import "log/slog"

// Field names shared by every component.
const (
	FieldRequestID = "request_id"
	FieldSource    = "component"
	FieldTypeKey   = "type_key"
	FieldPath      = "path"
	FieldPlugin    = "plugin"
	FieldError     = "error"
	FieldCount     = "count"
	FieldDuration  = "duration_ms"
	FieldSubject   = "subject"
	FieldClientIP  = "client_ip"
)

// Source names the component a collaborator message came from.
func Source(name string) slog.Attr {
	return slog.String(FieldSource, name)
}

// TypeKey is the envelope type key being dispatched.
func TypeKey(key string) slog.Attr {
	return slog.String(FieldTypeKey, key)
}

// Path is the dispatch path taken: native or sandboxed.
func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

func Plugin(file string) slog.Attr {
	return slog.String(FieldPlugin, file)
}

// Error renders err, tolerating nil.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}

func Count(n int) slog.Attr {
	return slog.Int(FieldCount, n)
}

// Duration is a duration in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}

func Subject(subject string) slog.Attr {
	return slog.String(FieldSubject, subject)
}

func ClientIP(ip string) slog.Attr {
	return slog.String(FieldClientIP, ip)
}
