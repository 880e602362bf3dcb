package report

import (
	"context"
	"fmt"
	"time"

	"github.com/coder/quartz"
	"go.uber.org/zap"

	"github.com/keymeterhq/keymeter/internal/batch"
	domreport "github.com/keymeterhq/keymeter/internal/domain/report"
	"github.com/keymeterhq/keymeter/internal/metrics"
)

// Service builds, caches and serves the aggregated usage report.
type Service struct {
	creds       CredentialReader
	fetcher     UsageFetcher
	cache       Cache
	clock       quartz.Clock
	concurrency int
	delay       time.Duration
	ttl         time.Duration
	logger      *zap.Logger
}

// Config holds the polling shape: wave size, pause between waves and
// how long a computed report stays servable.
type Config struct {
	Concurrency int
	BatchDelay  time.Duration
	CacheTTL    time.Duration
}

// New creates a report service.
func New(creds CredentialReader, fetcher UsageFetcher, cache Cache, cfg *Config, logger *zap.Logger) *Service {
	return &Service{
		creds:       creds,
		fetcher:     fetcher,
		cache:       cache,
		clock:       quartz.NewReal(),
		concurrency: cfg.Concurrency,
		delay:       cfg.BatchDelay,
		ttl:         cfg.CacheTTL,
		logger:      logger,
	}
}

// WithClock replaces the wall clock (used in tests).
func (s *Service) WithClock(c quartz.Clock) *Service {
	s.clock = c
	return s
}

// GetReport returns the cached report when fresh, otherwise recomputes.
func (s *Service) GetReport(ctx context.Context) (domreport.Report, error) {
	if rep, ok := s.cache.Get(ctx); ok {
		return rep, nil
	}
	return s.Recompute(ctx)
}

// Recompute polls every credential, aggregates the outcomes and
// overwrites the cache. With no credentials stored it produces an empty
// report without touching the upstream.
func (s *Service) Recompute(ctx context.Context) (domreport.Report, error) {
	creds, err := s.creds.List(ctx)
	if err != nil {
		return domreport.Report{}, fmt.Errorf("list credentials: %w", err)
	}

	var results []domreport.Result
	if len(creds) > 0 {
		results, err = batch.Run(ctx, creds, s.concurrency, s.delay, s.fetcher.Fetch)
		if err != nil {
			return domreport.Report{}, fmt.Errorf("poll credentials: %w", err)
		}
	}

	rep := s.aggregate(results)
	metrics.TrackedKeys.Set(float64(len(creds)))

	// A failed cache write degrades reads to recomputes; the fresh
	// report is still served.
	if err := s.cache.Put(ctx, rep, s.ttl); err != nil {
		s.logger.Warn("Failed to cache report", zap.Error(err))
	}

	return rep, nil
}

// RefreshOne fetches usage for a single credential immediately,
// skipping both the cache and the wave scheduler.
func (s *Service) RefreshOne(ctx context.Context, id string) (domreport.Result, error) {
	cred, err := s.creds.Get(ctx, id)
	if err != nil {
		return domreport.Result{}, fmt.Errorf("get credential: %w", err)
	}
	return s.fetcher.Fetch(ctx, cred), nil
}
