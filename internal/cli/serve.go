package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/debughawk/internal/handlers"
	"github.com/telhawk-systems/debughawk/internal/logging"
	"github.com/telhawk-systems/debughawk/internal/messaging"
	natsclient "github.com/telhawk-systems/debughawk/internal/messaging/nats"
	"github.com/telhawk-systems/debughawk/internal/middleware"
	"github.com/telhawk-systems/debughawk/internal/ratelimit"
	"github.com/telhawk-systems/debughawk/internal/server"
	"github.com/telhawk-systems/debughawk/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP ingress and the optional NATS consumer",
	Long: `Starts the ingress server. Envelopes posted to /api/v1/events are
dispatched and the resulting records returned. With NATS enabled, records are
also published to debughawk.records.<type> and envelopes are consumed from
debughawk.envelopes.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting debughawk",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Logging.Level),
		slog.String("plugin_dir", cfg.Sandbox.PluginDir),
	)

	collab := logging.NewAsync(logging.NewCollaborator(logger), cfg.Logging.Buffer)
	defer func() {
		collab.Close()
		if n := collab.Dropped(); n > 0 {
			logger.Warn("diagnostics dropped", logging.Count(int(n)))
		}
	}()

	p := buildPipeline(cfg, logger, collab)
	defer p.Close(context.Background())

	var publisher messaging.Publisher = messaging.NoopPublisher{}
	var nc *natsclient.Client
	if cfg.NATS.Enabled {
		client, err := natsclient.NewClient(natsclient.Config{
			URL:           cfg.NATS.URL,
			Name:          "debughawk",
			MaxReconnects: cfg.NATS.MaxReconnects,
			ReconnectWait: cfg.NATS.ReconnectWait,
		}, logger)
		if err != nil {
			return err
		}
		nc = client
		publisher = client
		logger.Info("nats connected", slog.String("url", cfg.NATS.URL))
	}

	svc := service.NewIngestService(p.dispatcher, publisher, cfg.Pipeline.MaxWorkers, logger)

	if nc != nil {
		sub, err := nc.QueueSubscribe(messaging.SubjectEnvelopes, messaging.QueueDispatchers, svc.HandleMessage)
		if err != nil {
			nc.Close()
			return err
		}
		logger.Info("consuming envelopes", logging.Subject(sub.Subject()))
		defer func() {
			if err := nc.Drain(); err != nil {
				logger.Warn("nats drain failed", logging.Error(err))
			}
		}()
	}

	limiter := newRateLimiter()
	defer limiter.Close()

	h := handlers.NewIngestHandler(svc, limiter, cfg.Ingest.MaxBodyBytes, logger)
	proxies, err := cfg.Ingest.TrustedNetworks()
	if err != nil {
		return err
	}
	h.TrustProxies(proxies)
	if nc != nil {
		h.AddReadinessCheck("nats", func() error {
			if !nc.IsConnected() {
				return errors.New("disconnected")
			}
			return nil
		})
	}

	router := server.NewRouter(h, middleware.CORSConfig{AllowedOrigins: cfg.Ingest.CORSOrigins})
	return server.New(cfg.Server, router, logger).Run(ctx)
}

// newRateLimiter falls back to no limiting when redis is unreachable.
func newRateLimiter() ratelimit.RateLimiter {
	if !cfg.RateLimit.Enabled {
		return ratelimit.NoOpRateLimiter{}
	}
	limiter, err := ratelimit.NewRedisRateLimiter(cfg.RateLimit.RedisURL, cfg.RateLimit.Requests, cfg.RateLimit.Window)
	if err != nil {
		logger.Warn("rate limiter unavailable, continuing without rate limiting", logging.Error(err))
		return ratelimit.NoOpRateLimiter{}
	}
	logger.Info("rate limiting enabled",
		slog.Int("requests", cfg.RateLimit.Requests),
		slog.Duration("window", cfg.RateLimit.Window),
	)
	return limiter
}
