package health

import "context"

// DBPinger checks key-value store availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// UpstreamChecker checks usage endpoint reachability.
type UpstreamChecker interface {
	Reachable(ctx context.Context) error
}
