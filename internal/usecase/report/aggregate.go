package report

import (
	"sort"
	"time"

	domreport "github.com/keymeterhq/keymeter/internal/domain/report"
)

// reportTimezone pins generation timestamps to UTC+8 regardless of the
// server's locale.
var reportTimezone = time.FixedZone("UTC+8", 8*60*60)

const generatedAtLayout = "2006-01-02 15:04:05"

// aggregate orders successes by remaining allowance, largest first,
// with ties keeping their input order. Failures follow in input order.
// Totals cover successes only.
func (s *Service) aggregate(results []domreport.Result) domreport.Report {
	successes := make([]domreport.Result, 0, len(results))
	failures := make([]domreport.Result, 0)
	for _, r := range results {
		if r.OK() {
			successes = append(successes, r)
		} else {
			failures = append(failures, r)
		}
	}

	sort.SliceStable(successes, func(i, j int) bool {
		return successes[i].Remaining() > successes[j].Remaining()
	})

	var used, allowance, remaining float64
	for _, r := range successes {
		used += r.Used()
		allowance += r.Allowance()
		remaining += r.Remaining()
	}

	ordered := append(successes, failures...)
	generatedAt := s.clock.Now().In(reportTimezone).Format(generatedAtLayout)

	return domreport.New(generatedAt, domreport.NewTotals(used, allowance, remaining), ordered)
}
