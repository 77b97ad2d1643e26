// Package service runs batches of envelopes through the dispatcher and hands
// the resulting records to the publisher.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/telhawk-systems/debughawk/internal/logging"
	"github.com/telhawk-systems/debughawk/internal/messaging"
	"github.com/telhawk-systems/debughawk/internal/metrics"
	"github.com/telhawk-systems/debughawk/internal/model"
)

// Dispatcher produces at most one record per envelope.
type Dispatcher interface {
	Make(ctx context.Context, envelope model.Envelope) (model.Record, bool)
	Canonical(key string) string
}

// IngestService fans envelopes out to a bounded pool of workers and keeps
// running totals.
type IngestService struct {
	dispatcher Dispatcher
	publisher  messaging.Publisher
	logger     *logging.Logger
	workers    int
	startedAt  time.Time

	received      atomic.Uint64
	produced      atomic.Uint64
	dropped       atomic.Uint64
	publishFailed atomic.Uint64
}

// NewIngestService creates a service. publisher and logger may be nil.
func NewIngestService(d Dispatcher, publisher messaging.Publisher, maxWorkers int, logger *logging.Logger) *IngestService {
	if publisher == nil {
		publisher = messaging.NoopPublisher{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &IngestService{
		dispatcher: d,
		publisher:  publisher,
		logger:     logger,
		workers:    maxWorkers,
		startedAt:  time.Now().UTC(),
	}
}

type outcome struct {
	rec model.Record
	ok  bool
}

// ProcessBatch dispatches every envelope and returns the produced records in
// input order. Envelopes without a record are dropped. Envelopes not started
// before ctx is cancelled are dropped as well.
func (s *IngestService) ProcessBatch(ctx context.Context, envelopes []model.Envelope) []model.Record {
	s.received.Add(uint64(len(envelopes)))

	results := make([]outcome, len(envelopes))
	sem := make(chan struct{}, s.workers)
	var wg sync.WaitGroup

dispatch:
	for i, envelope := range envelopes {
		if ctx.Err() != nil {
			break
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break dispatch
		}

		wg.Add(1)
		go func(i int, envelope model.Envelope) {
			defer wg.Done()
			defer func() { <-sem }()
			metrics.WorkersBusy.Inc()
			defer metrics.WorkersBusy.Dec()

			rec, ok := s.dispatcher.Make(ctx, envelope)
			results[i] = outcome{rec: rec, ok: ok}
		}(i, envelope)
	}
	wg.Wait()

	records := make([]model.Record, 0, len(envelopes))
	for i, r := range results {
		if !r.ok {
			continue
		}
		records = append(records, r.rec)
		s.publish(ctx, envelopes[i], r.rec)
	}

	s.produced.Add(uint64(len(records)))
	s.dropped.Add(uint64(len(envelopes) - len(records)))
	return records
}

func (s *IngestService) publish(ctx context.Context, envelope model.Envelope, rec model.Record) {
	subject := messaging.RecordSubject(s.dispatcher.Canonical(envelope.Type()))
	data, err := json.Marshal(rec)
	if err == nil {
		err = s.publisher.Publish(ctx, subject, data)
	}
	if err != nil {
		s.publishFailed.Add(1)
		metrics.RecordsPublished.WithLabelValues("error").Inc()
		s.logger.WarnContext(ctx, "failed to publish record", logging.Subject(subject), logging.Error(err))
		return
	}
	metrics.RecordsPublished.WithLabelValues("ok").Inc()
}

// HandleMessage is the broker entry point: the payload is one envelope, an
// array of envelopes or NDJSON.
func (s *IngestService) HandleMessage(ctx context.Context, msg *messaging.Message) error {
	envelopes, err := model.DecodeEnvelopes(msg.Data)
	if err != nil {
		return fmt.Errorf("decode %s: %w", msg.Subject, err)
	}
	metrics.EnvelopesReceived.WithLabelValues("nats").Add(float64(len(envelopes)))

	records := s.ProcessBatch(ctx, envelopes)
	s.logger.DebugContext(ctx, "processed broker batch",
		logging.Subject(msg.Subject), logging.Count(len(records)))
	return nil
}

// Stats is a snapshot of the service counters.
type Stats struct {
	UptimeSeconds int64  `json:"uptime_seconds"`
	Workers       int    `json:"workers"`
	Received      uint64 `json:"received"`
	Produced      uint64 `json:"produced"`
	Dropped       uint64 `json:"dropped"`
	PublishFailed uint64 `json:"publish_failed"`
}

func (s *IngestService) Stats() Stats {
	return Stats{
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Workers:       s.workers,
		Received:      s.received.Load(),
		Produced:      s.produced.Load(),
		Dropped:       s.dropped.Load(),
		PublishFailed: s.publishFailed.Load(),
	}
}
