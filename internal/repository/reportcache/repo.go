// Package reportcache persists the latest aggregated usage report in a
// single key-value slot. Each record carries an absolute deadline and the
// key also expires server-side, so a read can trust either signal.
package reportcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	domreport "github.com/keymeterhq/keymeter/internal/domain/report"
	"github.com/keymeterhq/keymeter/internal/kv"
)

// store is the consumer interface for the report cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Repo caches one aggregated report under <prefix>report:latest.
type Repo struct {
	store      store
	prefix     string
	clock      quartz.Clock
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a report cache over the given store.
func New(s store, prefix string, logger *zap.Logger) *Repo {
	return &Repo{
		store:  s,
		prefix: prefix,
		clock:  quartz.NewReal(),
		logger: logger,
	}
}

// WithClock replaces the wall clock (used in tests).
func (r *Repo) WithClock(c quartz.Clock) *Repo {
	r.clock = c
	return r
}

// WithMetrics attaches a counter vec with label "result" ("hit"/"miss").
func (r *Repo) WithMetrics(cacheTotal *prometheus.CounterVec) *Repo {
	r.cacheTotal = cacheTotal
	return r
}

// Get returns the cached report and true when a fresh record exists.
// An absent, expired or undecodable record is a miss, never an error.
func (r *Repo) Get(ctx context.Context) (domreport.Report, bool) {
	data, err := r.store.Get(ctx, r.key())
	if err != nil {
		if !errors.Is(err, kv.ErrKeyNotFound) {
			r.logger.Warn("Failed to read cached report", zap.Error(err))
		}
		r.incCache("miss")
		return domreport.Report{}, false
	}

	var c cachedReport
	if err := json.Unmarshal(data, &c); err != nil {
		r.logger.Warn("Failed to decode cached report", zap.Error(err))
		r.incCache("miss")
		return domreport.Report{}, false
	}

	if r.clock.Now().UnixMilli() >= c.ExpiresAt {
		r.incCache("miss")
		return domreport.Report{}, false
	}

	r.incCache("hit")
	return reportFromCache(c), true
}

// Put stores the report with an absolute deadline of now+ttl.
// The key also expires in the store after ttl.
func (r *Repo) Put(ctx context.Context, rep domreport.Report, ttl time.Duration) error {
	expiresAt := r.clock.Now().Add(ttl).UnixMilli()

	data, err := json.Marshal(reportToCache(rep, expiresAt))
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	if err := r.store.SetWithTTL(ctx, r.key(), data, ttl); err != nil {
		return fmt.Errorf("store report: %w", err)
	}
	return nil
}

func (r *Repo) incCache(result string) {
	if r.cacheTotal != nil {
		r.cacheTotal.WithLabelValues(result).Inc()
	}
}

// KV key: <prefix>report:latest
func (r *Repo) key() string {
	return r.prefix + "report:latest"
}
