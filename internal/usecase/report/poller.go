package report

import (
	"context"
	"time"

	"go.uber.org/zap"

	domreport "github.com/keymeterhq/keymeter/internal/domain/report"
)

// recomputer is the consumer interface for the poller (ISP).
type recomputer interface {
	Recompute(ctx context.Context) (domreport.Report, error)
}

// Poller recomputes the report on a fixed interval so dashboard reads
// mostly hit a warm cache.
type Poller struct {
	svc      recomputer
	interval time.Duration
	logger   *zap.Logger
}

// NewPoller creates a background poller.
func NewPoller(svc recomputer, interval time.Duration, logger *zap.Logger) *Poller {
	return &Poller{svc: svc, interval: interval, logger: logger}
}

// Run primes the cache once, then recomputes every interval until ctx
// is cancelled.
func (p *Poller) Run(ctx context.Context) {
	p.poll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := p.svc.Recompute(ctx); err != nil {
		p.logger.Error("Background poll failed", zap.Error(err))
	}
}
