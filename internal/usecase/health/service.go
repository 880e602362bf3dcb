package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates the upstream is unreachable but the service
	// can still serve cached and stored data.
	Degraded Status = "degraded"
	// Unhealthy indicates the key-value store is down.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	db       DBPinger
	upstream UpstreamChecker
}

// New creates a Service. upstream can be nil.
func New(db DBPinger, upstream UpstreamChecker) *Service {
	return &Service{db: db, upstream: upstream}
}

// Check runs health checks against all components. The store is a hard
// dependency; an unreachable upstream only degrades the status.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)
	status := Healthy

	if err := s.db.Ping(ctx); err != nil {
		checks["database"] = CheckError
		status = Unhealthy
	} else {
		checks["database"] = CheckOK
	}

	if s.upstream != nil {
		if err := s.upstream.Reachable(ctx); err != nil {
			checks["upstream"] = CheckError
			if status == Healthy {
				status = Degraded
			}
		} else {
			checks["upstream"] = CheckOK
		}
	}

	return Report{Status: status, Checks: checks}
}
