// Package report holds the aggregated usage report domain types.
package report

// Status is the outcome variant of a single credential fetch.
type Status string

// Fetch outcome values.
const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Result is the outcome of fetching usage for one credential. Exactly one
// variant is ever populated: the usage fields for StatusOK, the message for
// StatusError. The key is always the masked rendering, never the raw secret.
type Result struct {
	id        string
	maskedKey string
	status    Status

	windowStart string
	windowEnd   string
	used        float64
	allowance   float64
	usedRatio   float64

	message string
}

// NewSuccess creates a successful usage result.
func NewSuccess(id, maskedKey, windowStart, windowEnd string, used, allowance, usedRatio float64) Result {
	return Result{
		id:          id,
		maskedKey:   maskedKey,
		status:      StatusOK,
		windowStart: windowStart,
		windowEnd:   windowEnd,
		used:        used,
		allowance:   allowance,
		usedRatio:   usedRatio,
	}
}

// NewFailure creates a failed usage result.
func NewFailure(id, maskedKey, message string) Result {
	return Result{
		id:        id,
		maskedKey: maskedKey,
		status:    StatusError,
		message:   message,
	}
}

// ID returns the credential identifier.
func (r Result) ID() string { return r.id }

// MaskedKey returns the display-safe key rendering.
func (r Result) MaskedKey() string { return r.maskedKey }

// Status returns the outcome variant.
func (r Result) Status() Status { return r.status }

// OK reports whether the fetch succeeded.
func (r Result) OK() bool { return r.status == StatusOK }

// WindowStart returns the rendered usage window start date.
func (r Result) WindowStart() string { return r.windowStart }

// WindowEnd returns the rendered usage window end date.
func (r Result) WindowEnd() string { return r.windowEnd }

// Used returns the consumed allowance units.
func (r Result) Used() float64 { return r.used }

// Allowance returns the granted allowance units.
func (r Result) Allowance() float64 { return r.allowance }

// UsedRatio returns the upstream-reported usage ratio. It is passed through
// verbatim, never recomputed from Used and Allowance.
func (r Result) UsedRatio() float64 { return r.usedRatio }

// Message returns the failure message, if any.
func (r Result) Message() string { return r.message }

// Remaining returns the unused allowance, floored at zero.
func (r Result) Remaining() float64 {
	if rem := r.allowance - r.used; rem > 0 {
		return rem
	}
	return 0
}
