package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind identifies which variant of an Event is populated.
type Kind string

const (
	KindCache          Kind = "cache"
	KindHTTP           Kind = "http"
	KindTable          Kind = "table"
	KindLog            Kind = "log"
	KindQuery          Kind = "query"
	KindException      Kind = "exception"
	KindApplicationLog Kind = "application_log"
)

var (
	ErrNoVariant       = errors.New("event has no populated variant")
	ErrMultipleVariant = errors.New("event has more than one populated variant")
)

// Event is the typed intermediate produced by native processors. Exactly
// one field is non-nil.
type Event struct {
	Cache          *Cache
	HTTP           *HTTP
	Table          *Table
	Log            *Log
	Query          *Query
	Exception      *Exception
	ApplicationLog *ApplicationLog
}

// Direction distinguishes an outgoing HTTP request from its response.
type Direction string

const (
	DirectionRequest  Direction = "Request"
	DirectionResponse Direction = "Response"
)

// Cache is one cache store operation.
type Cache struct {
	Operation         string   `json:"operation"`
	Key               string   `json:"key"`
	Value             any      `json:"value,omitempty"`
	ExpirationSeconds *float64 `json:"expiration_seconds,omitempty"`
	Tags              any      `json:"tags,omitempty"`
	Store             *string  `json:"store,omitempty"`
	TTL               *float64 `json:"ttl,omitempty"`
}

// HTTP is an outgoing request or the response it received.
type HTTP struct {
	Direction             Direction      `json:"direction"`
	URL                   string         `json:"url"`
	Method                *string        `json:"method,omitempty"`
	StatusCode            *int           `json:"status_code,omitempty"`
	Success               *bool          `json:"success,omitempty"`
	Headers               map[string]any `json:"headers"`
	Body                  any            `json:"body,omitempty"`
	DurationSeconds       *float64       `json:"duration_seconds,omitempty"`
	ConnectionTimeSeconds *float64       `json:"connection_time_seconds,omitempty"`
	SizeBytes             *int64         `json:"size_bytes,omitempty"`
	RequestSizeBytes      *int64         `json:"request_size_bytes,omitempty"`
	ContentType           *string        `json:"content_type,omitempty"`
}

// Table is a labelled mapping of field names to values. The table
// processor never produces it; it is kept for Event values built directly.
type Table struct {
	Label string         `json:"label"`
	Data  map[string]any `json:"data"`
}

// Log is a free-form log line.
type Log struct {
	Level   string `json:"level"`
	Message string `json:"message"`
	Context any    `json:"context,omitempty"`
}

// Query is an executed SQL statement.
type Query struct {
	SQL            string   `json:"sql"`
	Bindings       []any    `json:"bindings"`
	DurationMS     *float64 `json:"duration_ms,omitempty"`
	ConnectionName *string  `json:"connection_name,omitempty"`
	AffectedRows   *int64   `json:"affected_rows,omitempty"`
}

// Exception is a thrown exception with its stack trace.
type Exception struct {
	Class      string  `json:"class"`
	Message    string  `json:"message"`
	File       string  `json:"file"`
	Line       int     `json:"line"`
	StackTrace []Frame `json:"stack_trace"`
	Context    any     `json:"context,omitempty"`
}

// Frame is one stack frame of an Exception.
type Frame struct {
	File     string  `json:"file"`
	Line     int     `json:"line"`
	Function string  `json:"function"`
	Class    *string `json:"class,omitempty"`
}

// ApplicationLog is a line written through the application's logger.
type ApplicationLog struct {
	Level   string  `json:"level"`
	Message string  `json:"message"`
	Context any     `json:"context,omitempty"`
	Channel *string `json:"channel,omitempty"`
}

// Kind returns the populated variant, or "" when the event is empty or
// ambiguous.
func (e Event) Kind() Kind {
	kinds := e.populated()
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

func (e Event) populated() []Kind {
	var kinds []Kind
	if e.Cache != nil {
		kinds = append(kinds, KindCache)
	}
	if e.HTTP != nil {
		kinds = append(kinds, KindHTTP)
	}
	if e.Table != nil {
		kinds = append(kinds, KindTable)
	}
	if e.Log != nil {
		kinds = append(kinds, KindLog)
	}
	if e.Query != nil {
		kinds = append(kinds, KindQuery)
	}
	if e.Exception != nil {
		kinds = append(kinds, KindException)
	}
	if e.ApplicationLog != nil {
		kinds = append(kinds, KindApplicationLog)
	}
	return kinds
}

// Record flattens the populated variant. Timestamp is left empty for the
// caller to fill.
func (e Event) Record() (Record, error) {
	switch kinds := e.populated(); len(kinds) {
	case 0:
		return Record{}, ErrNoVariant
	case 1:
	default:
		return Record{}, fmt.Errorf("%w: %v", ErrMultipleVariant, kinds)
	}

	switch {
	case e.Cache != nil:
		return e.Cache.record()
	case e.HTTP != nil:
		return e.HTTP.record()
	case e.Table != nil:
		return e.Table.record()
	case e.Log != nil:
		return e.Log.record()
	case e.Query != nil:
		return e.Query.record(), nil
	case e.Exception != nil:
		return e.Exception.record(), nil
	default:
		return e.ApplicationLog.record()
	}
}

func (c *Cache) record() (Record, error) {
	content, err := encodeJSON(c)
	if err != nil {
		return Record{}, err
	}
	return Record{
		Label:       "Cache",
		Description: c.Describe(),
		Content:     content,
		ContentType: ContentJSON,
	}, nil
}

// Describe renders the one-line summary for a cache operation.
func (c *Cache) Describe() string {
	switch c.Operation {
	case "Hit":
		return "Cache hit for: " + c.Key
	case "Missed":
		return "Cache miss for: " + c.Key
	case "Key written":
		return "Cache write: " + c.Key
	case "Forgotten":
		return "Cache key forgotten: " + c.Key
	default:
		return fmt.Sprintf("%s (%s)", c.Operation, c.Key)
	}
}

func (h *HTTP) record() (Record, error) {
	content, err := Stringify(h.Body)
	if err != nil {
		return Record{}, err
	}
	return Record{
		Label:       string(h.Direction),
		Description: h.URL,
		Content:     content,
		ContentType: ContentJSON,
	}, nil
}

func (t *Table) record() (Record, error) {
	content, err := encodeJSON(t.Data)
	if err != nil {
		return Record{}, err
	}
	return Record{
		Label:       t.Label,
		Content:     content,
		ContentType: ContentJSON,
	}, nil
}

func (l *Log) record() (Record, error) {
	content, err := encodeJSON(l)
	if err != nil {
		return Record{}, err
	}
	return Record{
		Label:       l.Level,
		Description: l.Message,
		Content:     content,
		ContentType: ContentJSON,
	}, nil
}

func (q *Query) record() Record {
	r := Record{
		Label:       q.Operation(),
		Content:     q.SQL,
		ContentType: ContentSQL,
	}
	if q.DurationMS != nil {
		r.Description = FormatQueryTime(*q.DurationMS)
	}
	return r
}

// Operation is the upper-cased first token of the statement, or "SQL".
func (q *Query) Operation() string {
	fields := strings.Fields(strings.TrimSpace(q.SQL))
	if len(fields) == 0 {
		return "SQL"
	}
	return strings.ToUpper(fields[0])
}

// FormatQueryTime renders a duration given in milliseconds.
func FormatQueryTime(ms float64) string {
	switch {
	case ms < 1:
		return fmt.Sprintf("%.3f ms", ms)
	case ms < 1000:
		return fmt.Sprintf("%.2f ms", ms)
	default:
		return fmt.Sprintf("%.2f s", ms/1000)
	}
}

const maxDescription = 100

func (x *Exception) record() Record {
	return Record{
		Label:       x.Class,
		Description: x.Describe(),
		Content:     x.Markdown(),
		ContentType: ContentMarkdown,
	}
}

// Describe returns "class: message" capped at 100 characters.
func (x *Exception) Describe() string {
	d := x.Class
	if x.Message != "" {
		d = x.Class + ": " + x.Message
	}
	return Truncate(d, maxDescription)
}

// Markdown renders the exception with a numbered stack trace.
func (x *Exception) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n", x.Class)
	if x.Message != "" {
		fmt.Fprintf(&b, "\n%s\n", x.Message)
	}
	if x.File != "" {
		fmt.Fprintf(&b, "\n%s:%d\n", x.File, x.Line)
	}
	if len(x.StackTrace) > 0 {
		b.WriteString("\n### Stack trace\n\n")
		for i, f := range x.StackTrace {
			fmt.Fprintf(&b, "%d. %s\n", i+1, f.String())
		}
	}
	return b.String()
}

// String renders "class::function() at file:line".
func (f Frame) String() string {
	if f.Class != nil && *f.Class != "" {
		return fmt.Sprintf("%s::%s() at %s:%d", *f.Class, f.Function, f.File, f.Line)
	}
	return fmt.Sprintf("%s() at %s:%d", f.Function, f.File, f.Line)
}

func (a *ApplicationLog) record() (Record, error) {
	content, err := encodeJSON(a)
	if err != nil {
		return Record{}, err
	}
	desc := a.Message
	if a.Channel != nil && *a.Channel != "" {
		desc = "[" + *a.Channel + "] " + a.Message
	}
	return Record{
		Label:       a.Level,
		Description: desc,
		Content:     content,
		ContentType: ContentJSON,
	}, nil
}

// Truncate shortens s to at most limit runes, ending in "..." when cut.
func Truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	if limit <= 3 {
		return string(runes[:limit])
	}
	return string(runes[:limit-3]) + "..."
}

// Stringify returns strings verbatim and JSON-encodes everything else.
// A nil value becomes "".
func Stringify(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	default:
		return encodeJSON(t)
	}
}

func encodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode content: %w", err)
	}
	return string(data), nil
}
