package seeder

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/debughawk/internal/dispatcher"
	"github.com/telhawk-systems/debughawk/internal/handlers"
	"github.com/telhawk-systems/debughawk/internal/logging"
	"github.com/telhawk-systems/debughawk/internal/model"
	"github.com/telhawk-systems/debughawk/internal/registry"
	"github.com/telhawk-systems/debughawk/internal/service"
)

var fixedNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func quietLogger() *logging.Logger {
	return logging.NewWithWriter(io.Discard, slog.LevelError, "json")
}

func newDispatcher() *dispatcher.Dispatcher {
	return dispatcher.New(registry.Default(), nil, dispatcher.WithCollaborator(logging.Discard{}))
}

func TestGenerator_EveryKindDispatches(t *testing.T) {
	g := NewGenerator(7)
	g.now = func() time.Time { return fixedNow }
	d := newDispatcher()

	for _, kind := range Kinds {
		t.Run(kind, func(t *testing.T) {
			env := g.Envelope(kind)
			assert.Equal(t, kind, env.Type())

			// Round trip through JSON the way the ingress receives it.
			raw, err := json.Marshal(env)
			require.NoError(t, err)
			decoded, err := model.DecodeEnvelopes(raw)
			require.NoError(t, err)
			require.Len(t, decoded, 1)

			rec, err := d.Dispatch(context.Background(), decoded[0])
			require.NoError(t, err)
			assert.Equal(t, "2026-05-01T12:00:00Z", rec.Timestamp)
			assert.True(t, rec.ContentType.Valid())
			assert.NotEmpty(t, rec.Label)
		})
	}
}

func TestGenerator_Reproducible(t *testing.T) {
	a, b := NewGenerator(42), NewGenerator(42)
	a.now = func() time.Time { return fixedNow }
	b.now = a.now

	for _, kind := range Kinds {
		assert.Equal(t, a.Envelope(kind), b.Envelope(kind), kind)
	}
}

func TestGenerator_Batch(t *testing.T) {
	g := NewGenerator(1)

	batch := g.Batch([]string{"log", "cache"}, 5)
	require.Len(t, batch, 5)
	assert.Equal(t, "log", batch[0].Type())
	assert.Equal(t, "cache", batch[1].Type())
	assert.Equal(t, "log", batch[4].Type())

	assert.Len(t, g.Batch(nil, len(Kinds)), len(Kinds))
}

func TestGenerator_UnknownKind(t *testing.T) {
	env := NewGenerator(3).Envelope("metrics")

	assert.Equal(t, "metrics", env.Type())
	content, ok := env.Content().(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, content["message"])
}

func ingressServer(t *testing.T, batches *atomic.Int32) *httptest.Server {
	t.Helper()
	svc := service.NewIngestService(newDispatcher(), nil, 4, quietLogger())
	h := handlers.NewIngestHandler(svc, nil, 1<<20, quietLogger())

	mux := http.NewServeMux()
	mux.HandleFunc(EventsPath, func(w http.ResponseWriter, r *http.Request) {
		batches.Add(1)
		h.Ingest(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRunner_Run(t *testing.T) {
	var batches atomic.Int32
	srv := ingressServer(t, &batches)

	r := NewRunner(Config{URL: srv.URL + "/", Count: 23, BatchSize: 10, Seed: 9}, quietLogger())
	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(3), batches.Load())
	assert.Equal(t, 23, res.Sent)
	assert.Zero(t, res.Failed)
	assert.Equal(t, 23, res.Records)
	assert.Zero(t, res.Dropped)
}

func TestRunner_CountsFailedBatches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := NewRunner(Config{URL: srv.URL, Count: 5, BatchSize: 2}, quietLogger())
	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Zero(t, res.Sent)
	assert.Equal(t, 5, res.Failed)
}

func TestRunner_Cancelled(t *testing.T) {
	var batches atomic.Int32
	srv := ingressServer(t, &batches)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRunner(Config{URL: srv.URL, Count: 10, BatchSize: 5}, quietLogger())
	_, err := r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, batches.Load())
}
