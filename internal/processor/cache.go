package processor

import (
	"strings"

	"github.com/telhawk-systems/debughawk/internal/model"
)

var codeTags = strings.NewReplacer("<code>", "", "</code>", "")

// Cache handles "cache" payloads. The operation arrives wrapped in
// <code> tags, which are stripped.
func Cache(content any) (model.Event, error) {
	m, err := object(content, "cache")
	if err != nil {
		return model.Event{}, err
	}
	vals := values(m)

	c := &model.Cache{
		Operation:         codeTags.Replace(text(vals["Event"])),
		Key:               text(vals["Key"]),
		Value:             vals["Value"],
		ExpirationSeconds: optionalFloat(vals, "Expiration in seconds"),
		Tags:              vals["Tags"],
		Store:             optionalString(vals, "Store"),
		TTL:               optionalFloat(vals, "TTL"),
	}
	return model.Event{Cache: c}, nil
}
