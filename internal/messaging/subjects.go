package messaging

import "strings"

// Subjects follow {service}.{resource}[.{type}].
const (
	// SubjectEnvelopes receives single envelopes or envelope arrays.
	SubjectEnvelopes = "debughawk.envelopes"
	// SubjectRecords prefixes the per-type record subjects.
	SubjectRecords = "debughawk.records"

	QueueDispatchers = "debughawk"
)

// RecordSubject returns the subject records of typeKey are published on,
// e.g. debughawk.records.executed_query. Characters that are not valid in a
// subject token are replaced with '_'.
func RecordSubject(typeKey string) string {
	token := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, typeKey)
	if token == "" {
		token = "unknown"
	}
	return SubjectRecords + "." + token
}
