package report

// Totals are the usage sums across successful results only.
type Totals struct {
	used      float64
	allowance float64
	remaining float64
}

// NewTotals creates a Totals value.
func NewTotals(used, allowance, remaining float64) Totals {
	return Totals{used: used, allowance: allowance, remaining: remaining}
}

// Used returns the summed consumed units.
func (t Totals) Used() float64 { return t.used }

// Allowance returns the summed granted units.
func (t Totals) Allowance() float64 { return t.allowance }

// Remaining returns the summed unused units, each floored at zero.
func (t Totals) Remaining() float64 { return t.remaining }

// Report is the aggregated snapshot of usage across all tracked credentials
// at a point in time (immutable value object). Successful results precede
// failures; successes are ordered by remaining allowance, descending.
type Report struct {
	generatedAt string
	totals      Totals
	results     []Result
}

// New creates a Report.
func New(generatedAt string, totals Totals, results []Result) Report {
	return Report{generatedAt: generatedAt, totals: totals, results: results}
}

// GeneratedAt returns the rendered creation timestamp.
func (r Report) GeneratedAt() string { return r.generatedAt }

// Totals returns the usage sums.
func (r Report) Totals() Totals { return r.totals }

// Results returns the ordered per-credential outcomes.
func (r Report) Results() []Result { return r.results }

// KeyCount returns the number of credentials considered, failures included.
func (r Report) KeyCount() int { return len(r.results) }
