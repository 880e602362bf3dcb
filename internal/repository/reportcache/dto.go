package reportcache

import (
	domreport "github.com/keymeterhq/keymeter/internal/domain/report"
)

// cachedReport is the storage representation of an aggregated report.
// ExpiresAt is unix milliseconds.
type cachedReport struct {
	GeneratedAt string         `json:"generated_at"`
	Totals      cachedTotals   `json:"totals"`
	Results     []cachedResult `json:"results"`
	ExpiresAt   int64          `json:"expires_at"`
}

type cachedTotals struct {
	Used      float64 `json:"used"`
	Allowance float64 `json:"allowance"`
	Remaining float64 `json:"remaining"`
}

// cachedResult holds one per-credential entry. Key is always masked.
type cachedResult struct {
	ID          string  `json:"id"`
	Key         string  `json:"key"`
	Status      string  `json:"status"`
	WindowStart string  `json:"window_start"`
	WindowEnd   string  `json:"window_end"`
	Used        float64 `json:"used"`
	Allowance   float64 `json:"allowance"`
	UsedRatio   float64 `json:"used_ratio"`
	Message     string  `json:"message"`
}

func reportToCache(rep domreport.Report, expiresAt int64) cachedReport {
	results := make([]cachedResult, 0, len(rep.Results()))
	for _, res := range rep.Results() {
		results = append(results, cachedResult{
			ID:          res.ID(),
			Key:         res.MaskedKey(),
			Status:      string(res.Status()),
			WindowStart: res.WindowStart(),
			WindowEnd:   res.WindowEnd(),
			Used:        res.Used(),
			Allowance:   res.Allowance(),
			UsedRatio:   res.UsedRatio(),
			Message:     res.Message(),
		})
	}

	totals := rep.Totals()
	return cachedReport{
		GeneratedAt: rep.GeneratedAt(),
		Totals: cachedTotals{
			Used:      totals.Used(),
			Allowance: totals.Allowance(),
			Remaining: totals.Remaining(),
		},
		Results:   results,
		ExpiresAt: expiresAt,
	}
}

func reportFromCache(c cachedReport) domreport.Report {
	results := make([]domreport.Result, 0, len(c.Results))
	for _, res := range c.Results {
		if res.Status == string(domreport.StatusError) {
			results = append(results, domreport.NewFailure(res.ID, res.Key, res.Message))
			continue
		}
		results = append(results, domreport.NewSuccess(
			res.ID, res.Key, res.WindowStart, res.WindowEnd,
			res.Used, res.Allowance, res.UsedRatio,
		))
	}

	totals := domreport.NewTotals(c.Totals.Used, c.Totals.Allowance, c.Totals.Remaining)
	return domreport.New(c.GeneratedAt, totals, results)
}
