// Package config loads DebugHawk configuration from defaults, an optional
// YAML file and DEBUGHAWK_* environment variables, in that order of
// precedence (last wins).
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// DEBUGHAWK_SERVER_PORT for server.port.
const EnvPrefix = "DEBUGHAWK"

// Config is the complete runtime configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Sandbox   SandboxConfig   `mapstructure:"sandbox"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr is the listen address for Port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// PipelineConfig bounds batch dispatch concurrency.
type PipelineConfig struct {
	MaxWorkers int `mapstructure:"max_workers"`
}

// SandboxConfig holds plugin discovery and execution settings
type SandboxConfig struct {
	PluginDir    string        `mapstructure:"plugin_dir"`
	Fallback     bool          `mapstructure:"fallback"`
	Types        []string      `mapstructure:"types"`
	Timeout      time.Duration `mapstructure:"timeout"`
	CompileCache bool          `mapstructure:"compile_cache"`

	// MaxMemoryPages caps plugin linear memory in 64 KiB pages.
	MaxMemoryPages uint32 `mapstructure:"max_memory_pages"`
}

// maxWasmPages is the 32-bit linear memory ceiling, 4 GiB.
const maxWasmPages = 65536

// Enabled reports whether a plugin directory is configured.
func (s SandboxConfig) Enabled() bool {
	return strings.TrimSpace(s.PluginDir) != ""
}

// FallbackEnabled reports whether unknown types should be tried as plugins.
// It requires a plugin directory.
func (s SandboxConfig) FallbackEnabled() bool {
	return s.Fallback && s.Enabled()
}

// IngestConfig holds HTTP ingress limits
type IngestConfig struct {
	MaxBodyBytes int64    `mapstructure:"max_body_bytes"`
	CORSOrigins  []string `mapstructure:"cors_origins"`

	// TrustedProxies lists addresses or CIDRs whose forwarding headers are
	// believed when deriving the client address.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// TrustedNetworks parses TrustedProxies. A bare address is a single-host
// prefix.
func (i IngestConfig) TrustedNetworks() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(i.TrustedProxies))
	for _, entry := range i.TrustedProxies {
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("ingest.trusted_proxies: %w", err)
			}
			out = append(out, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("ingest.trusted_proxies: %w", err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// RateLimitConfig holds the redis-backed limiter settings
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	RedisURL string        `mapstructure:"redis_url"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// NATSConfig holds NATS message broker configuration
type NATSConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	// Buffer is the capacity of the asynchronous diagnostics queue.
	Buffer int `mapstructure:"buffer"`
	// Verbose records every raw envelope at debug level.
	Verbose bool `mapstructure:"verbose"`
}

// DefaultPath returns $DEBUGHAWK_CONFIG_DIR/config.yaml, or "" when the
// variable is unset.
func DefaultPath() string {
	dir := os.Getenv(EnvPrefix + "_CONFIG_DIR")
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// Load builds a Config. An explicit path must exist; with path == "" the
// DefaultPath file is read when present and silently skipped otherwise.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			missing := errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
			if explicit || !missing {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Sandbox.Types = splitList(cfg.Sandbox.Types)
	cfg.Ingest.CORSOrigins = splitList(cfg.Ingest.CORSOrigins)
	cfg.Ingest.TrustedProxies = splitList(cfg.Ingest.TrustedProxies)
	return &cfg, nil
}

// splitList trims entries and drops empty ones. Environment values arrive
// as one comma-separated string.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("pipeline.max_workers", 8)

	// Sandbox defaults
	v.SetDefault("sandbox.plugin_dir", "")
	v.SetDefault("sandbox.fallback", true)
	v.SetDefault("sandbox.types", []string{})
	v.SetDefault("sandbox.timeout", "5s")
	v.SetDefault("sandbox.compile_cache", true)
	v.SetDefault("sandbox.max_memory_pages", 256)

	// Ingest defaults
	v.SetDefault("ingest.max_body_bytes", 10<<20)
	v.SetDefault("ingest.cors_origins", []string{})
	v.SetDefault("ingest.trusted_proxies", []string{})

	// Rate limit defaults
	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.redis_url", "redis://localhost:6379/0")
	v.SetDefault("ratelimit.requests", 1000)
	v.SetDefault("ratelimit.window", "1m")

	// NATS defaults
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", "2s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.buffer", 1024)
	v.SetDefault("logging.verbose", false)
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Pipeline.MaxWorkers < 1 {
		errs = append(errs, fmt.Errorf("pipeline.max_workers must be positive, got %d", c.Pipeline.MaxWorkers))
	}
	if c.Sandbox.Timeout < 0 {
		errs = append(errs, fmt.Errorf("sandbox.timeout must not be negative, got %s", c.Sandbox.Timeout))
	}
	if len(c.Sandbox.Types) > 0 && !c.Sandbox.Enabled() {
		errs = append(errs, errors.New("sandbox.types requires sandbox.plugin_dir"))
	}
	if c.Sandbox.MaxMemoryPages < 1 || c.Sandbox.MaxMemoryPages > maxWasmPages {
		errs = append(errs, fmt.Errorf("sandbox.max_memory_pages must be between 1 and %d, got %d", maxWasmPages, c.Sandbox.MaxMemoryPages))
	}
	if c.Ingest.MaxBodyBytes < 1 {
		errs = append(errs, fmt.Errorf("ingest.max_body_bytes must be positive, got %d", c.Ingest.MaxBodyBytes))
	}
	if _, err := c.Ingest.TrustedNetworks(); err != nil {
		errs = append(errs, err)
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.RedisURL == "" {
			errs = append(errs, errors.New("ratelimit.redis_url is required when rate limiting is enabled"))
		}
		if c.RateLimit.Requests < 1 || c.RateLimit.Window <= 0 {
			errs = append(errs, errors.New("ratelimit.requests and ratelimit.window must be positive"))
		}
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, errors.New("nats.url is required when nats is enabled"))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format))
	}
	if c.Logging.Buffer < 1 {
		errs = append(errs, fmt.Errorf("logging.buffer must be positive, got %d", c.Logging.Buffer))
	}
	return errors.Join(errs...)
}
