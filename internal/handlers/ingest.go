// Package handlers implements the HTTP ingress endpoints.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/telhawk-systems/debughawk/internal/logging"
	"github.com/telhawk-systems/debughawk/internal/metrics"
	"github.com/telhawk-systems/debughawk/internal/model"
	"github.com/telhawk-systems/debughawk/internal/ratelimit"
	"github.com/telhawk-systems/debughawk/internal/service"
)

// BatchProcessor is the part of service.IngestService the handler needs.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, envelopes []model.Envelope) []model.Record
	Stats() service.Stats
}

// ReadinessCheck reports an error while a dependency is unavailable.
type ReadinessCheck func() error

// IngestHandler serves /api/v1/events and the health endpoints.
type IngestHandler struct {
	service      BatchProcessor
	limiter      ratelimit.RateLimiter
	maxBodyBytes int64
	logger       *logging.Logger
	checks       map[string]ReadinessCheck
	trusted      []netip.Prefix
}

// NewIngestHandler constructs the handler. limiter and logger may be nil.
func NewIngestHandler(svc BatchProcessor, limiter ratelimit.RateLimiter, maxBodyBytes int64, logger *logging.Logger) *IngestHandler {
	if limiter == nil {
		limiter = ratelimit.NoOpRateLimiter{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &IngestHandler{
		service:      svc,
		limiter:      limiter,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
		checks:       make(map[string]ReadinessCheck),
	}
}

// AddReadinessCheck registers a dependency reported by /readyz.
func (h *IngestHandler) AddReadinessCheck(name string, check ReadinessCheck) {
	h.checks[name] = check
}

// TrustProxies makes the handler believe X-Forwarded-For and X-Real-IP on
// requests whose peer address falls inside one of nets. Without it the
// peer address is always the client address.
func (h *IngestHandler) TrustProxies(nets []netip.Prefix) {
	h.trusted = nets
}

// IngestResponse is returned by POST /api/v1/events.
type IngestResponse struct {
	Records []model.Record `json:"records"`
	Dropped int            `json:"dropped"`
}

// Ingest handles POST /api/v1/events. The body is a JSON array of
// envelopes, a single envelope, or NDJSON.
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	ctx := r.Context()

	ip := h.clientIP(r)
	allowed, err := h.limiter.Allow(ctx, ip)
	if err != nil {
		// Limiter outages must not block ingestion.
		h.logger.WarnContext(ctx, "rate limit check failed", logging.ClientIP(ip), logging.Error(err))
	} else if !allowed {
		writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds limit")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	metrics.EnvelopeBytesTotal.Add(float64(len(body)))

	envelopes, err := model.DecodeEnvelopes(body)
	if err != nil {
		code := "invalid_json"
		if errors.Is(err, model.ErrEmptyBatch) {
			code = "no_data"
		}
		writeError(w, http.StatusBadRequest, code, err.Error())
		return
	}
	metrics.EnvelopesReceived.WithLabelValues("http").Add(float64(len(envelopes)))

	records := h.service.ProcessBatch(ctx, envelopes)
	h.logger.DebugContext(ctx, "ingested batch",
		logging.Count(len(envelopes)), logging.ClientIP(ip))

	writeJSON(w, http.StatusOK, IngestResponse{
		Records: records,
		Dropped: len(envelopes) - len(records),
	})
}

// Health handles GET /healthz.
func (h *IngestHandler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Ready handles GET /readyz.
func (h *IngestHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	status, code := "ready", http.StatusOK
	deps := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(); err != nil {
			deps[name] = err.Error()
			status, code = "not_ready", http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":       status,
		"dependencies": deps,
		"stats":        h.service.Stats(),
	})
}

// clientIP is the address used for rate limiting. Forwarding headers are
// read only when the peer is a trusted proxy; X-Forwarded-For is walked from
// the right so entries appended by trusted hops are skipped.
func (h *IngestHandler) clientIP(r *http.Request) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		peer = host
	}
	if !h.isTrusted(peer) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if i == 0 || !h.isTrusted(hop) {
				return hop
			}
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return peer
}

func (h *IngestHandler) isTrusted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, n := range h.trusted {
		if n.Contains(addr) {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	type errorBody struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	writeJSON(w, status, errorBody{Code: code, Message: message})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method is not allowed")
}
