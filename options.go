package keymeter

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option func(*clientConfig)

type clientConfig struct {
	addrs    []string
	password string

	keyPrefix     string
	encryptionKey string

	upstreamURL     string
	upstreamTimeout time.Duration

	concurrency int
	batchDelay  time.Duration
	cacheTTL    time.Duration

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithRedis configures the client to connect to a Redis instance.
func WithRedis(addr, password string) Option {
	return func(c *clientConfig) {
		c.addrs = []string{addr}
		c.password = password
	}
}

// WithKeyPrefix sets the Redis key namespace. Default "keymeter:".
func WithKeyPrefix(prefix string) Option {
	return func(c *clientConfig) {
		c.keyPrefix = prefix
	}
}

// WithEncryptionKey enables AES-256-GCM encryption of stored secrets.
// The key is hex-encoded and must decode to 32 bytes.
func WithEncryptionKey(hexKey string) Option {
	return func(c *clientConfig) {
		c.encryptionKey = hexKey
	}
}

// WithUpstreamURL overrides the usage endpoint polled per credential.
func WithUpstreamURL(url string) Option {
	return func(c *clientConfig) {
		c.upstreamURL = url
	}
}

// WithUpstreamTimeout sets the per-request timeout against the usage
// endpoint. Default 30s.
func WithUpstreamTimeout(d time.Duration) Option {
	return func(c *clientConfig) {
		c.upstreamTimeout = d
	}
}

// WithConcurrency sets how many credentials are polled at once.
// Default 10.
func WithConcurrency(n int) Option {
	return func(c *clientConfig) {
		c.concurrency = n
	}
}

// WithCacheTTL sets how long a computed report stays servable.
// Default 10m.
func WithCacheTTL(d time.Duration) Option {
	return func(c *clientConfig) {
		c.cacheTTL = d
	}
}

// WithLogger enables structured logging for client operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = l
	}
}

// WithPrometheus registers client metrics (operation counts and
// durations) on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return func(c *clientConfig) {
		c.metricsReg = reg
	}
}
