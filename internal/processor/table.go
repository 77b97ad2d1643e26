package processor

import "github.com/telhawk-systems/debughawk/internal/model"

// Table handles "table" payloads as an HTTP exchange: a GET or POST Method
// marks a request sourced from Data, anything else a response sourced from
// Body. Missing or non-object content is read as empty values.
func Table(content any) (model.Event, error) {
	m, _ := content.(map[string]any)
	vals := values(m)

	h := &model.HTTP{
		Direction: model.DirectionResponse,
		URL:       firstString(vals, "URL"),
		Headers:   map[string]any{},
		Body:      vals["Body"],
	}
	if method, ok := stringField(vals, "Method"); ok {
		h.Method = &method
		if method == "GET" || method == "POST" {
			h.Direction = model.DirectionRequest
			h.Body = vals["Data"]
		}
	}
	if headers, ok := vals["Headers"].(map[string]any); ok {
		h.Headers = headers
	}
	if status, ok := number(vals["Status"]); ok {
		code := int(status)
		h.StatusCode = &code
	}
	if success, ok := vals["Success"].(bool); ok {
		h.Success = &success
	}
	h.DurationSeconds = optionalFloat(vals, "Duration")
	h.ConnectionTimeSeconds = optionalFloat(vals, "Connection time")
	h.SizeBytes = optionalInt(vals, "Size")
	h.RequestSizeBytes = optionalInt(vals, "Request size")
	h.ContentType = optionalString(vals, "Content type")

	return model.Event{HTTP: h}, nil
}
