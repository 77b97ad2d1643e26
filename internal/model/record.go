package model

// ContentType tells the presentation layer how to interpret Record.Content.
type ContentType string

const (
	ContentJSON     ContentType = "json"
	ContentMarkdown ContentType = "markdown"
	ContentSQL      ContentType = "sql"
	ContentCustom   ContentType = "custom"
)

// Valid reports whether c is one of the known content types.
func (c ContentType) Valid() bool {
	switch c {
	case ContentJSON, ContentMarkdown, ContentSQL, ContentCustom:
		return true
	}
	return false
}

// Record is the normalized, presentation-ready output of one envelope.
// Label and Description are always plain text.
type Record struct {
	Timestamp   string      `json:"timestamp" yaml:"timestamp"`
	Label       string      `json:"label" yaml:"label"`
	Description string      `json:"description" yaml:"description"`
	Content     string      `json:"content" yaml:"content"`
	ContentType ContentType `json:"content_type" yaml:"content_type"`
}
