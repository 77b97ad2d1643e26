// Package sandbox runs plugin modules for event types that have no native
// processor. A module is compiled WebAssembly found in the plugin directory
// and is instantiated with no host functions at all: no WASI, no clock, no
// file system.
//
// Plugin contract:
//
//	file name  plugin_<type>.wasm
//	exports    memory              linear memory
//	           process(i32, i32) -> i32
//
// The host writes the envelope JSON at offset 0 and calls process(0, len).
// The returned offset points at a NUL-terminated JSON record in the same
// memory.
package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/telhawk-systems/debughawk/internal/logging"
	"github.com/telhawk-systems/debughawk/internal/metrics"
	"github.com/telhawk-systems/debughawk/internal/model"
)

// Export names required of every plugin.
const (
	ExportProcess = "process"
	ExportMemory  = "memory"
)

const source = "sandbox"

// Config controls plugin discovery and execution.
type Config struct {
	PluginDir string
	// Timeout bounds one call end to end. Zero disables it.
	Timeout time.Duration
	// CompileCache reuses compiled code for identical module bytes.
	CompileCache bool
	// MaxMemoryPages caps each module's linear memory in 64 KiB pages. A
	// module declaring a larger minimum fails to compile and memory.grow
	// past the cap fails inside the module. Zero keeps the wazero default.
	MaxMemoryPages uint32
}

// Host executes sandboxed plugins. Each call gets its own runtime, so
// concurrent calls never share module state.
type Host struct {
	cfg   Config
	cache wazero.CompilationCache
	log   logging.Collaborator
}

// New creates a Host. log may be nil.
func New(cfg Config, log logging.Collaborator) *Host {
	if log == nil {
		log = logging.Discard{}
	}
	h := &Host{cfg: cfg, log: log}
	if cfg.CompileCache {
		h.cache = wazero.NewCompilationCache()
	}
	return h
}

// PluginDir returns the configured directory.
func (h *Host) PluginDir() string { return h.cfg.PluginDir }

// Close releases the compilation cache.
func (h *Host) Close(ctx context.Context) error {
	if h.cache == nil {
		return nil
	}
	return h.cache.Close(ctx)
}

// Process runs the plugin registered for key against envelope. Every failure
// is returned as an error wrapping one of the package sentinels and is also
// reported to the logging collaborator.
func (h *Host) Process(ctx context.Context, key string, envelope model.Envelope) (rec model.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrInvokeFailed, r)
		}
		if err != nil {
			metrics.SandboxErrors.WithLabelValues(stage(err)).Inc()
			h.log.Log(slog.LevelWarn, source, fmt.Sprintf("type %q: %v", key, err))
		}
	}()

	mod, err := Find(h.cfg.PluginDir, key)
	if err != nil {
		return model.Record{}, err
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return model.Record{}, fmt.Errorf("%w: encode envelope: %w", ErrMemoryWriteOutOfBounds, err)
	}
	return h.run(ctx, mod, payload)
}

func (h *Host) run(ctx context.Context, mod Module, payload []byte) (model.Record, error) {
	// Read from disk every call so an edited plugin takes effect immediately.
	bin, err := os.ReadFile(mod.Path)
	if err != nil {
		return model.Record{}, fmt.Errorf("%w: %w", ErrModuleNotFound, err)
	}

	if h.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.Timeout)
		defer cancel()
	}

	rcfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if h.cache != nil {
		rcfg = rcfg.WithCompilationCache(h.cache)
	}
	if h.cfg.MaxMemoryPages > 0 {
		rcfg = rcfg.WithMemoryLimitPages(h.cfg.MaxMemoryPages)
	}
	rt := wazero.NewRuntimeWithConfig(ctx, rcfg)
	defer rt.Close(context.Background())

	start := time.Now()
	compiled, err := rt.CompileModule(ctx, bin)
	if err != nil {
		return model.Record{}, fmt.Errorf("%w: %s: %w", ErrCompileFailed, mod.Path, err)
	}
	metrics.SandboxCompileDuration.Observe(time.Since(start).Seconds())

	inst, err := rt.InstantiateModule(ctx, compiled,
		wazero.NewModuleConfig().WithName(mod.Key).WithStartFunctions())
	if err != nil {
		return model.Record{}, fmt.Errorf("%w: %s: %w", ErrInstantiateFailed, mod.Path, err)
	}

	fn, mem, err := exports(inst)
	if err != nil {
		return model.Record{}, err
	}

	if err := writePayload(mem, payload); err != nil {
		return model.Record{}, err
	}

	results, err := fn.Call(ctx, api.EncodeU32(inputOffset), api.EncodeU32(uint32(len(payload))))
	if err != nil {
		return model.Record{}, fmt.Errorf("%w: %w", ErrInvokeFailed, err)
	}
	if len(results) != 1 {
		return model.Record{}, fmt.Errorf("%w: expected 1 result, got %d", ErrInvokeFailed, len(results))
	}

	raw, err := readResult(mem, api.DecodeU32(results[0]))
	if err != nil {
		return model.Record{}, err
	}
	return decodeRecord(raw)
}

func exports(inst api.Module) (api.Function, api.Memory, error) {
	fn := inst.ExportedFunction(ExportProcess)
	if fn == nil {
		return nil, nil, fmt.Errorf("%w: function %q", ErrMissingExport, ExportProcess)
	}
	def := fn.Definition()
	params, results := def.ParamTypes(), def.ResultTypes()
	if len(params) != 2 || params[0] != api.ValueTypeI32 || params[1] != api.ValueTypeI32 ||
		len(results) != 1 || results[0] != api.ValueTypeI32 {
		return nil, nil, fmt.Errorf("%w: function %q must be (i32, i32) -> i32", ErrMissingExport, ExportProcess)
	}

	mem := inst.ExportedMemory(ExportMemory)
	if mem == nil {
		return nil, nil, fmt.Errorf("%w: memory %q", ErrMissingExport, ExportMemory)
	}
	return fn, mem, nil
}
