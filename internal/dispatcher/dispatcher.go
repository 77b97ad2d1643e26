// Package dispatcher turns one inbound envelope into at most one record.
// Failures never propagate: an envelope that cannot be processed simply
// yields no record and a diagnostic.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/telhawk-systems/debughawk/internal/logging"
	"github.com/telhawk-systems/debughawk/internal/metrics"
	"github.com/telhawk-systems/debughawk/internal/model"
	"github.com/telhawk-systems/debughawk/internal/processor"
	"github.com/telhawk-systems/debughawk/internal/registry"
)

const source = "dispatcher"

var (
	ErrUnknownType = errors.New("unknown event type")
	ErrNoSandbox   = errors.New("no sandbox host configured")
	ErrPanic       = errors.New("processor panicked")
)

// Sandbox runs a plugin for a type key. *sandbox.Host implements it.
type Sandbox interface {
	Process(ctx context.Context, key string, envelope model.Envelope) (model.Record, error)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithCollaborator sets where diagnostics go. The collaborator must not
// block; wrap slow ones in logging.NewAsync.
func WithCollaborator(c logging.Collaborator) Option {
	return func(d *Dispatcher) { d.log = c }
}

// WithClock overrides the time source used for missing timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithVerbose records every raw envelope at debug level.
func WithVerbose(verbose bool) Option {
	return func(d *Dispatcher) { d.verbose = verbose }
}

// Dispatcher resolves envelopes through a registry. It holds no mutable
// state and is safe for concurrent use.
type Dispatcher struct {
	registry *registry.Registry
	sandbox  Sandbox
	log      logging.Collaborator
	now      func() time.Time
	verbose  bool
}

// New creates a Dispatcher. sandbox may be nil when no plugins are used.
func New(reg *registry.Registry, sandbox Sandbox, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: reg,
		sandbox:  sandbox,
		log:      logging.Discard{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Canonical maps a type synonym to its registry key.
func (d *Dispatcher) Canonical(key string) string {
	return d.registry.Canonical(key)
}

// Make returns the record for envelope, or false when none is produced.
func (d *Dispatcher) Make(ctx context.Context, envelope model.Envelope) (model.Record, bool) {
	rec, err := d.Dispatch(ctx, envelope)
	return rec, err == nil
}

// Dispatch is Make with the reason a record was not produced.
func (d *Dispatcher) Dispatch(ctx context.Context, envelope model.Envelope) (model.Record, error) {
	start := time.Now()
	key := d.registry.Canonical(envelope.Type())

	if d.verbose {
		d.log.Log(slog.LevelDebug, source, fmt.Sprintf("type %q envelope %s", key, raw(envelope)))
	}

	h, ok := d.registry.Resolve(key)
	if !ok {
		metrics.DispatchTotal.WithLabelValues(metrics.TypeUnknown, "none", metrics.OutcomeUnknown).Inc()
		d.log.Log(slog.LevelWarn, source, fmt.Sprintf("unknown type %q", envelope.Type()))
		return model.Record{}, fmt.Errorf("%w: %q", ErrUnknownType, envelope.Type())
	}

	path := h.Kind().String()
	label := d.typeLabel(key)
	rec, err := d.invoke(ctx, h, envelope)
	metrics.DispatchDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.DispatchTotal.WithLabelValues(label, path, metrics.OutcomeFailed).Inc()
		// The sandbox host reports its own failures.
		if h.Kind() == registry.KindNative || errors.Is(err, ErrPanic) || errors.Is(err, ErrNoSandbox) {
			d.log.Log(slog.LevelWarn, source, fmt.Sprintf("type %q: %v", key, err))
		}
		return model.Record{}, err
	}
	metrics.DispatchTotal.WithLabelValues(label, path, metrics.OutcomeOK).Inc()

	if rec.Timestamp == "" {
		rec.Timestamp = d.timestamp(envelope)
	}
	return rec, nil
}

// typeLabel keeps metric cardinality bounded: keys accepted only through
// fallback come from untrusted envelopes and share one label.
func (d *Dispatcher) typeLabel(key string) string {
	if d.registry.Declared(key) {
		return key
	}
	return metrics.TypeUndeclared
}

func (d *Dispatcher) invoke(ctx context.Context, h registry.Handle, envelope model.Envelope) (rec model.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			rec, err = model.Record{}, fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()

	switch h.Kind() {
	case registry.KindNative:
		fn, _ := h.Func()
		return processor.Run(fn, envelope.Content())
	case registry.KindSandboxed:
		if d.sandbox == nil {
			return model.Record{}, ErrNoSandbox
		}
		key, _ := h.Key()
		return d.sandbox.Process(ctx, key, envelope)
	default:
		return model.Record{}, ErrUnknownType
	}
}

func (d *Dispatcher) timestamp(envelope model.Envelope) string {
	if ts, ok := envelope.Timestamp(); ok && ts != "" {
		return ts
	}
	return d.now().UTC().Format(time.RFC3339)
}

func raw(envelope model.Envelope) string {
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Sprintf("<unencodable: %v>", err)
	}
	return string(data)
}
