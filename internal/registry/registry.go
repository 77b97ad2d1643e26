// Package registry maps event type keys to the processor that handles them.
//
// A Registry is built once and never mutated, so it is shared across
// concurrent dispatch calls without locking.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/telhawk-systems/debughawk/internal/processor"
)

var (
	ErrAliasCollision = errors.New("alias shadows a registered key")
	ErrAliasTarget    = errors.New("alias points at an unregistered key")
	ErrDuplicateKey   = errors.New("duplicate registry key")
)

// Kind tells the two handle variants apart.
type Kind int

const (
	KindNative Kind = iota + 1
	KindSandboxed
)

func (k Kind) String() string {
	switch k {
	case KindNative:
		return "native"
	case KindSandboxed:
		return "sandboxed"
	default:
		return "unknown"
	}
}

// Handle is what a key resolves to: either an in-process function or the
// key a sandboxed module is located by.
type Handle struct {
	kind Kind
	fn   processor.Func
	key  string
}

// Native wraps an in-process processor.
func Native(fn processor.Func) Handle {
	return Handle{kind: KindNative, fn: fn}
}

// Sandboxed names a module discovered by key at call time.
func Sandboxed(key string) Handle {
	return Handle{kind: KindSandboxed, key: key}
}

func (h Handle) Kind() Kind { return h.kind }

// Func returns the native processor; ok is false for sandboxed handles.
func (h Handle) Func() (processor.Func, bool) {
	return h.fn, h.kind == KindNative
}

// Key returns the module locator; ok is false for native handles.
func (h Handle) Key() (string, bool) {
	return h.key, h.kind == KindSandboxed
}

// Builtins is the fixed table of natively handled event types.
var Builtins = map[string]processor.Func{
	"table":           processor.Table,
	"log":             processor.Log,
	"application_log": processor.ApplicationLog,
	"executed_query":  processor.Query,
	"exception":       processor.Exception,
	"cache":           processor.Cache,
}

// Aliases is the canonical synonym table applied once before lookup.
var Aliases = map[string]string{
	"http":    "table",
	"request": "table",
	"query":   "executed_query",
}

// Options configures New.
type Options struct {
	// Plugins are type keys declared as sandboxed.
	Plugins []string
	// Fallback resolves every other non-empty key as sandboxed.
	Fallback bool
	// Aliases overrides the synonym table; nil means the canonical one.
	Aliases map[string]string
}

// Registry resolves type keys to handles.
type Registry struct {
	handles    map[string]Handle
	aliases    map[string]string
	fallback   bool
	collisions []error
}

// New builds a registry from the builtin table and opts. Alias problems and
// plugin keys that clash with builtins are rejected.
func New(opts Options) (*Registry, error) {
	r := &Registry{
		handles:  make(map[string]Handle, len(Builtins)+len(opts.Plugins)),
		aliases:  make(map[string]string),
		fallback: opts.Fallback,
	}

	for key, fn := range Builtins {
		r.handles[key] = Native(fn)
	}

	for _, raw := range opts.Plugins {
		key := strings.TrimSpace(raw)
		if key == "" {
			continue
		}
		if _, exists := r.handles[key]; exists {
			r.collisions = append(r.collisions, fmt.Errorf("%w: %q", ErrDuplicateKey, key))
			continue
		}
		r.handles[key] = Sandboxed(key)
	}

	aliases := opts.Aliases
	if aliases == nil {
		aliases = Aliases
	}
	for synonym, target := range aliases {
		if _, exists := r.handles[synonym]; exists {
			r.collisions = append(r.collisions, fmt.Errorf("%w: %q", ErrAliasCollision, synonym))
			continue
		}
		if _, exists := r.handles[target]; !exists {
			r.collisions = append(r.collisions, fmt.Errorf("%w: %q -> %q", ErrAliasTarget, synonym, target))
			continue
		}
		r.aliases[synonym] = target
	}

	sort.Slice(r.collisions, func(i, j int) bool {
		return r.collisions[i].Error() < r.collisions[j].Error()
	})
	if len(r.collisions) > 0 {
		return r, errors.Join(r.collisions...)
	}
	return r, nil
}

// Default returns the registry with no plugins and the canonical aliases.
func Default() *Registry {
	r, err := New(Options{})
	if err != nil {
		panic(fmt.Sprintf("registry: builtin table is inconsistent: %v", err))
	}
	return r
}

// Canonical maps a synonym to its registry key. Unknown keys pass through.
func (r *Registry) Canonical(key string) string {
	if target, ok := r.aliases[key]; ok {
		return target
	}
	return key
}

// Resolve looks up key exactly. It does not apply aliases.
func (r *Registry) Resolve(key string) (Handle, bool) {
	if r == nil || key == "" {
		return Handle{}, false
	}
	if h, ok := r.handles[key]; ok {
		return h, true
	}
	if r.fallback {
		return Sandboxed(key), true
	}
	return Handle{}, false
}

// Declared reports whether key is a builtin or a declared plugin type, as
// opposed to a key only accepted through fallback.
func (r *Registry) Declared(key string) bool {
	if r == nil {
		return false
	}
	_, ok := r.handles[key]
	return ok
}

// Keys lists the registered keys of the given kind, sorted.
func (r *Registry) Keys(kind Kind) []string {
	keys := make([]string, 0, len(r.handles))
	for key, h := range r.handles {
		if h.kind == kind {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Aliases returns a copy of the accepted synonym table.
func (r *Registry) Aliases() map[string]string {
	out := make(map[string]string, len(r.aliases))
	for k, v := range r.aliases {
		out[k] = v
	}
	return out
}

// Collisions reports the alias and key conflicts found by New.
func (r *Registry) Collisions() []error {
	return append([]error(nil), r.collisions...)
}

// Fallback reports whether unknown keys resolve as sandboxed.
func (r *Registry) Fallback() bool { return r.fallback }
