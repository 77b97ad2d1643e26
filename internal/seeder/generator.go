// Package seeder generates realistic debugging envelopes and sends them to
// an ingress endpoint.
package seeder

import (
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/telhawk-systems/debughawk/internal/model"
)

// Kinds are the envelope types the generator knows how to fake, including
// the synonyms accepted by the registry.
var Kinds = []string{
	"table",
	"http",
	"log",
	"application_log",
	"executed_query",
	"query",
	"exception",
	"cache",
}

var (
	logLevels   = []string{"Debug", "Info", "Notice", "Warning", "Error"}
	channels    = []string{"app", "security", "queue", "mail"}
	cacheEvents = []string{"Hit", "Missed", "Key written", "Forgotten"}
	tables      = []string{"users", "orders", "sessions", "invoices", "audit_log"}
	connections = []string{"mysql", "pgsql", "sqlite"}
	exceptions  = []string{"RuntimeException", "InvalidArgumentException", "PDOException", "TypeError"}
)

// Generator builds envelopes from a seeded faker so runs are reproducible.
type Generator struct {
	faker *gofakeit.Faker
	now   func() time.Time
}

// NewGenerator creates a generator. seed 0 picks a random seed.
func NewGenerator(seed int64) *Generator {
	return &Generator{faker: gofakeit.New(seed), now: time.Now}
}

// Envelope creates one envelope of the given kind. Unknown kinds produce a
// custom envelope with free-form content.
func (g *Generator) Envelope(kind string) model.Envelope {
	var content map[string]any

	switch kind {
	case "table":
		content = g.table()
	case "http":
		content = g.http()
	case "log":
		content = g.log()
	case "application_log":
		content = g.applicationLog()
	case "executed_query", "query":
		content = g.query()
	case "exception":
		content = g.exception()
	case "cache":
		content = g.cache()
	default:
		content = map[string]any{"message": g.faker.Sentence(6)}
	}

	return model.Envelope{
		"type":      kind,
		"timestamp": g.now().UTC().Format(time.RFC3339),
		"content":   content,
		"origin": map[string]any{
			"file":        g.sourceFile(),
			"line_number": float64(g.faker.Number(1, 400)),
			"hostname":    g.faker.DomainName(),
		},
	}
}

// Batch creates n envelopes cycling through kinds.
func (g *Generator) Batch(kinds []string, n int) []model.Envelope {
	if len(kinds) == 0 {
		kinds = Kinds
	}
	out := make([]model.Envelope, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, g.Envelope(kinds[i%len(kinds)]))
	}
	return out
}

func (g *Generator) sourceFile() string {
	return fmt.Sprintf("/var/www/app/src/%s/%s.php", g.faker.Word(), strings.ToLower(g.faker.Word()))
}

func (g *Generator) table() map[string]any {
	return map[string]any{
		"values": map[string]any{
			"URL":    "https://" + g.faker.DomainName() + "/session",
			"Status": float64(g.faker.HTTPStatusCode()),
			"Body": map[string]any{
				"user":       g.faker.Username(),
				"email":      g.faker.Email(),
				"session_id": g.faker.UUID(),
				"ip":         g.faker.IPv4Address(),
			},
		},
	}
}

func (g *Generator) http() map[string]any {
	method := g.faker.RandomString([]string{"GET", "POST", "PUT", "DELETE"})
	url := "https://" + g.faker.DomainName() + "/api/" + g.faker.Word()

	values := map[string]any{
		"Method":  method,
		"URL":     url,
		"Headers": map[string]any{"User-Agent": g.faker.UserAgent(), "X-Request-ID": g.faker.UUID()},
	}
	if method == "GET" || method == "POST" {
		values["Data"] = map[string]any{"id": float64(g.faker.Number(1, 9999)), "q": g.faker.Word()}
	} else {
		values["Status"] = float64(g.faker.HTTPStatusCode())
		values["Success"] = g.faker.Bool()
		values["Body"] = map[string]any{"ok": g.faker.Bool()}
		values["Duration"] = g.faker.Float64Range(0.001, 2)
		values["Size"] = float64(g.faker.Number(64, 1<<16))
		values["Content type"] = "application/json"
	}
	return map[string]any{"label": "HTTP", "values": values}
}

func (g *Generator) log() map[string]any {
	return map[string]any{
		"values": []any{
			g.faker.Sentence(8),
			map[string]any{"user": g.faker.Username(), "ip": g.faker.IPv4Address()},
		},
	}
}

func (g *Generator) applicationLog() map[string]any {
	return map[string]any{
		"level":   g.faker.RandomString(logLevels),
		"value":   g.faker.Sentence(10),
		"channel": g.faker.RandomString(channels),
		"context": map[string]any{"request_id": g.faker.UUID()},
	}
}

func (g *Generator) query() map[string]any {
	table := g.faker.RandomString(tables)
	return map[string]any{
		"sql":             fmt.Sprintf("select * from %s where id = ? and status = ?", table),
		"bindings":        []any{float64(g.faker.Number(1, 9999)), g.faker.Word()},
		"time":            g.faker.Float64Range(0.05, 2500),
		"connection_name": g.faker.RandomString(connections),
		"affected_rows":   float64(g.faker.Number(0, 50)),
	}
}

func (g *Generator) exception() map[string]any {
	n := g.faker.Number(1, 4)
	frames := make([]any, 0, n)
	for i := 0; i < n; i++ {
		frames = append(frames, map[string]any{
			"file":     g.sourceFile(),
			"line":     float64(g.faker.Number(1, 400)),
			"function": strings.ToLower(g.faker.Verb()),
			"class":    "App\\" + capitalize(g.faker.Noun()),
		})
	}
	return map[string]any{
		"class":   g.faker.RandomString(exceptions),
		"message": g.faker.Sentence(12),
		"file":    g.sourceFile(),
		"line":    float64(g.faker.Number(1, 400)),
		"frames":  frames,
	}
}

func (g *Generator) cache() map[string]any {
	return map[string]any{
		"values": map[string]any{
			"Event":                 "<code>" + g.faker.RandomString(cacheEvents) + "</code>",
			"Key":                   "cache:" + g.faker.Word() + ":" + g.faker.UUID(),
			"Value":                 g.faker.Word(),
			"Expiration in seconds": float64(g.faker.Number(60, 3600)),
			"Store":                 "redis",
		},
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
