package sandbox

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/debughawk/internal/model"
)

type diagnostics struct {
	mu       sync.Mutex
	messages []string
}

func (d *diagnostics) Log(level slog.Level, source, message string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messages = append(d.messages, source+": "+message)
}

func (d *diagnostics) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.messages)
}

func writePlugin(t *testing.T, dir, key string, bin []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, Prefix+key+Suffix), bin, 0o644))
}

func newHost(t *testing.T, dir string) (*Host, *diagnostics) {
	t.Helper()
	d := &diagnostics{}
	h := New(Config{PluginDir: dir, Timeout: 2 * time.Second, CompileCache: true}, d)
	t.Cleanup(func() { _ = h.Close(context.Background()) })
	return h, d
}

func TestProcess_EchoRoundTrip(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "echo", echoModule().build())
	h, d := newHost(t, dir)

	original := `{"user":"alice","tags":["a","b"],"n":1.5}`
	rec, err := h.Process(context.Background(), "echo", model.Envelope{
		"type":    "echo",
		"content": original,
	})
	require.NoError(t, err)

	assert.Equal(t, original, rec.Content)
	assert.Equal(t, model.ContentCustom, rec.ContentType)
	assert.Zero(t, d.count())
}

func TestProcess_FixedRecord(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "metric", resultModule(
		`{"label":"Metric","description":"cpu","content":"{\"v\":42}","content_type":"json","extra":true}`,
	).build())
	h, _ := newHost(t, dir)

	rec, err := h.Process(context.Background(), "metric", model.Envelope{"type": "metric"})
	require.NoError(t, err)
	assert.Equal(t, model.Record{
		Label:       "Metric",
		Description: "cpu",
		Content:     `{"v":42}`,
		ContentType: model.ContentJSON,
	}, rec)
}

func TestProcess_Failures(t *testing.T) {
	oversized := model.Envelope{"type": "p", "content": strings.Repeat("x", 70000)}

	testCases := []struct {
		name     string
		module   []byte
		envelope model.Envelope
		wantErr  error
	}{
		{
			name:    "garbage bytes",
			module:  []byte("definitely not wasm"),
			wantErr: ErrCompileFailed,
		},
		{
			name:    "unsatisfied import",
			module:  wasmModule{params: []byte{i32, i32}, results: []byte{i32}, body: i32Const(0), importNow: true}.build(),
			wantErr: ErrInstantiateFailed,
		},
		{
			name:    "missing memory export",
			module:  wasmModule{params: []byte{i32, i32}, results: []byte{i32}, body: i32Const(0), noMemory: true}.build(),
			wantErr: ErrMissingExport,
		},
		{
			name:    "missing process export",
			module:  wasmModule{params: []byte{i32, i32}, results: []byte{i32}, body: i32Const(0), export: "run"}.build(),
			wantErr: ErrMissingExport,
		},
		{
			name:    "wrong signature",
			module:  wasmModule{results: []byte{i32}, body: i32Const(0)}.build(),
			wantErr: ErrMissingExport,
		},
		{
			name:     "payload larger than memory",
			module:   echoModule().build(),
			envelope: oversized,
			wantErr:  ErrMemoryWriteOutOfBounds,
		},
		{
			name:    "trap",
			module:  wasmModule{params: []byte{i32, i32}, results: []byte{i32}, body: []byte{opUnreachable}}.build(),
			wantErr: ErrInvokeFailed,
		},
		{
			name:    "negative offset",
			module:  constModule(-1, nil).build(),
			wantErr: ErrResultOutOfBounds,
		},
		{
			name:    "offset at memory end",
			module:  constModule(65536, nil).build(),
			wantErr: ErrResultOutOfBounds,
		},
		{
			name:    "unterminated result",
			module:  constModule(65532, []byte("abcd")).build(),
			wantErr: ErrResultUnterminated,
		},
		{
			name:    "invalid utf-8",
			module:  constModule(1024, []byte{0xff, 0xfe, 0x00}).build(),
			wantErr: ErrInvalidUTF8Result,
		},
		{
			name:    "invalid json",
			module:  resultModule("not json").build(),
			wantErr: ErrInvalidJSONResult,
		},
		{
			name:    "empty result",
			module:  resultModule("").build(),
			wantErr: ErrInvalidJSONResult,
		},
		{
			name:    "json array",
			module:  resultModule(`[1,2]`).build(),
			wantErr: ErrInvalidJSONResult,
		},
		{
			name:    "unknown content type",
			module:  resultModule(`{"label":"x","content_type":"html"}`).build(),
			wantErr: ErrInvalidJSONResult,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writePlugin(t, dir, "p", tc.module)
			h, d := newHost(t, dir)

			envelope := tc.envelope
			if envelope == nil {
				envelope = model.Envelope{"type": "p", "content": map[string]any{"a": 1}}
			}

			rec, err := h.Process(context.Background(), "p", envelope)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.Equal(t, model.Record{}, rec)
			assert.Equal(t, 1, d.count())
		})
	}
}

func TestProcess_ModuleNotFound(t *testing.T) {
	h, d := newHost(t, t.TempDir())
	_, err := h.Process(context.Background(), "missing", model.Envelope{"type": "missing"})
	assert.ErrorIs(t, err, ErrModuleNotFound)
	assert.Equal(t, 1, d.count())

	h, _ = newHost(t, filepath.Join(t.TempDir(), "does-not-exist"))
	_, err = h.Process(context.Background(), "missing", model.Envelope{"type": "missing"})
	assert.ErrorIs(t, err, ErrModuleNotFound)
}

func TestProcess_Timeout(t *testing.T) {
	dir := t.TempDir()
	spin := wasmModule{
		params:  []byte{i32, i32},
		results: []byte{i32},
		body: []byte{
			opLoop, blockEmpty,
			opBr, 0x00,
			opEnd,
			opI32Const, 0x00,
		},
	}
	writePlugin(t, dir, "spin", spin.build())

	h := New(Config{PluginDir: dir, Timeout: 100 * time.Millisecond}, nil)

	start := time.Now()
	_, err := h.Process(context.Background(), "spin", model.Envelope{"type": "spin"})
	assert.ErrorIs(t, err, ErrInvokeFailed)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestProcess_HotReload(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "v", resultModule(`{"label":"one"}`).build())
	h, _ := newHost(t, dir)

	rec, err := h.Process(context.Background(), "v", model.Envelope{"type": "v"})
	require.NoError(t, err)
	assert.Equal(t, "one", rec.Label)

	writePlugin(t, dir, "v", resultModule(`{"label":"two"}`).build())

	rec, err = h.Process(context.Background(), "v", model.Envelope{"type": "v"})
	require.NoError(t, err)
	assert.Equal(t, "two", rec.Label)
}

func TestProcess_Concurrent(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "echo", echoModule().build())
	h, _ := newHost(t, dir)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			content := strings.Repeat("z", i)
			rec, err := h.Process(context.Background(), "echo", model.Envelope{"type": "echo", "content": content})
			if err == nil && rec.Content != content {
				err = assert.AnError
			}
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestProcess_WithoutCompileCache(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "echo", echoModule().build())
	h := New(Config{PluginDir: dir}, nil)
	assert.Equal(t, dir, h.PluginDir())

	rec, err := h.Process(context.Background(), "echo", model.Envelope{"type": "echo", "content": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", rec.Content)
	assert.NoError(t, h.Close(context.Background()))
}

func TestProcess_MemoryLimit(t *testing.T) {
	dir := t.TempDir()
	large := echoModule()
	large.minPages = 8
	writePlugin(t, dir, "large", large.build())
	small := echoModule()
	small.minPages = 2
	writePlugin(t, dir, "small", small.build())

	d := &diagnostics{}
	h := New(Config{PluginDir: dir, MaxMemoryPages: 4}, d)

	_, err := h.Process(context.Background(), "large", model.Envelope{"type": "large"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCompileFailed) || errors.Is(err, ErrInstantiateFailed), err.Error())
	assert.Equal(t, 1, d.count())

	rec, err := h.Process(context.Background(), "small", model.Envelope{"type": "small", "content": "ok"})
	require.NoError(t, err)
	assert.Equal(t, "ok", rec.Content)
}

func TestStage(t *testing.T) {
	testCases := map[error]string{
		ErrModuleNotFound:         "discover",
		ErrCompileFailed:          "compile",
		ErrInstantiateFailed:      "instantiate",
		ErrMissingExport:          "instantiate",
		ErrMemoryWriteOutOfBounds: "marshal_in",
		ErrInvokeFailed:           "invoke",
		ErrResultOutOfBounds:      "marshal_out",
		ErrInvalidJSONResult:      "marshal_out",
	}
	for err, want := range testCases {
		assert.Equal(t, want, stage(err), err.Error())
	}
}
