package seeder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/telhawk-systems/debughawk/internal/logging"
	"github.com/telhawk-systems/debughawk/internal/model"
)

// EventsPath is the ingress route envelopes are posted to.
const EventsPath = "/api/v1/events"

// Config controls a seeding run.
type Config struct {
	URL       string
	Count     int
	BatchSize int
	Interval  time.Duration
	Kinds     []string
	Seed      int64
}

// Result summarizes a run.
type Result struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Records int `json:"records"`
	Dropped int `json:"dropped"`
}

// Runner handles the seeding execution
type Runner struct {
	Config     Config
	HTTPClient *http.Client
	generator  *Generator
	logger     *logging.Logger
}

// NewRunner creates a runner. logger may be nil.
func NewRunner(cfg Config, logger *logging.Logger) *Runner {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Runner{
		Config:     cfg,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		generator:  NewGenerator(cfg.Seed),
		logger:     logger,
	}
}

// Run generates Config.Count envelopes and posts them in batches. Failed
// batches are counted and the run continues.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	var res Result
	kinds := r.Config.Kinds
	if len(kinds) == 0 {
		kinds = Kinds
	}

	r.logger.Info("starting seeder",
		"url", r.Config.URL,
		logging.Count(r.Config.Count),
		"batch_size", r.Config.BatchSize,
		"kinds", kinds,
	)

	for sent := 0; sent < r.Config.Count; {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		n := r.Config.BatchSize
		if remaining := r.Config.Count - sent; remaining < n {
			n = remaining
		}
		batch := make([]model.Envelope, 0, n)
		for i := 0; i < n; i++ {
			batch = append(batch, r.generator.Envelope(kinds[(sent+i)%len(kinds)]))
		}

		resp, err := r.sendBatch(ctx, batch)
		if err != nil {
			r.logger.Warn("failed to send batch", logging.Error(err), logging.Count(n))
			res.Failed += n
		} else {
			res.Sent += n
			res.Records += len(resp.Records)
			res.Dropped += resp.Dropped
		}
		sent += n

		if r.Config.Interval > 0 && sent < r.Config.Count {
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-time.After(r.Config.Interval):
			}
		}
	}

	r.logger.Info("seeding complete",
		"sent", res.Sent,
		"failed", res.Failed,
		"records", res.Records,
		"dropped", res.Dropped,
	)
	return res, nil
}

type ingestResponse struct {
	Records []model.Record `json:"records"`
	Dropped int            `json:"dropped"`
}

// sendBatch posts a JSON array of envelopes to the ingress.
func (r *Runner) sendBatch(ctx context.Context, batch []model.Envelope) (ingestResponse, error) {
	var out ingestResponse

	body, err := json.Marshal(batch)
	if err != nil {
		return out, fmt.Errorf("failed to encode batch: %w", err)
	}

	url := strings.TrimRight(r.Config.URL, "/") + EventsPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return out, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return out, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return out, fmt.Errorf("ingress returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("failed to decode response: %w", err)
	}
	return out, nil
}
