package keymeter

import (
	"context"
	"fmt"
	"time"

	domreport "github.com/keymeterhq/keymeter/internal/domain/report"
)

// Report is the aggregated usage snapshot across all tracked credentials.
// Successful entries precede failed ones; successes are ordered by
// remaining allowance, descending.
type Report struct {
	GeneratedAt string
	KeyCount    int
	Totals      Totals
	Entries     []Entry
}

// Totals are the usage sums across successful entries only.
type Totals struct {
	Used      float64
	Allowance float64
	Remaining float64
}

// Entry is the polling outcome for one credential. OK entries carry the
// usage fields; failed entries carry only Error. Key is always the
// masked rendering.
type Entry struct {
	ID  string
	Key string
	OK  bool

	WindowStart string
	WindowEnd   string
	Used        float64
	Allowance   float64
	UsedRatio   float64
	Remaining   float64

	Error string
}

// ReportService builds and serves the aggregated usage report.
type ReportService struct {
	svc reportUseCase
	obs *observer
}

// Get returns the cached report when fresh, polling otherwise.
func (s *ReportService) Get(ctx context.Context) (_ Report, err error) {
	start := time.Now()
	defer func() { s.obs.observe("report.get", start, err) }()

	rep, err := s.svc.GetReport(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("get report: %w", err)
	}
	return fromReport(rep), nil
}

// Refresh polls every credential now and overwrites the cached report.
func (s *ReportService) Refresh(ctx context.Context) (_ Report, err error) {
	start := time.Now()
	defer func() { s.obs.observe("report.refresh", start, err) }()

	rep, err := s.svc.Recompute(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("refresh report: %w", err)
	}
	return fromReport(rep), nil
}

// RefreshKey polls one credential immediately, bypassing the cache.
// An upstream failure is returned as a failed Entry, not an error.
func (s *ReportService) RefreshKey(ctx context.Context, id string) (_ Entry, err error) {
	start := time.Now()
	defer func() { s.obs.observe("report.refresh_key", start, err) }()

	res, err := s.svc.RefreshOne(ctx, id)
	if err != nil {
		return Entry{}, fmt.Errorf("refresh key: %w", err)
	}
	return fromResult(res), nil
}

func fromReport(rep domreport.Report) Report {
	results := rep.Results()
	entries := make([]Entry, len(results))
	for i, r := range results {
		entries[i] = fromResult(r)
	}

	t := rep.Totals()
	return Report{
		GeneratedAt: rep.GeneratedAt(),
		KeyCount:    rep.KeyCount(),
		Totals: Totals{
			Used:      t.Used(),
			Allowance: t.Allowance(),
			Remaining: t.Remaining(),
		},
		Entries: entries,
	}
}

func fromResult(r domreport.Result) Entry {
	if !r.OK() {
		return Entry{
			ID:    r.ID(),
			Key:   r.MaskedKey(),
			Error: r.Message(),
		}
	}
	return Entry{
		ID:          r.ID(),
		Key:         r.MaskedKey(),
		OK:          true,
		WindowStart: r.WindowStart(),
		WindowEnd:   r.WindowEnd(),
		Used:        r.Used(),
		Allowance:   r.Allowance(),
		UsedRatio:   r.UsedRatio(),
		Remaining:   r.Remaining(),
	}
}
