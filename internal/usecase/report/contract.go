package report

import (
	"context"
	"time"

	domcred "github.com/keymeterhq/keymeter/internal/domain/credential"
	domreport "github.com/keymeterhq/keymeter/internal/domain/report"
)

// CredentialReader reads stored credentials for polling.
type CredentialReader interface {
	List(ctx context.Context) ([]domcred.Credential, error)
	Get(ctx context.Context, id string) (domcred.Credential, error)
}

// UsageFetcher reports usage for one credential. Failures are report
// entries, not errors.
type UsageFetcher interface {
	Fetch(ctx context.Context, cred domcred.Credential) domreport.Result
}

// Cache stores the latest aggregated report.
type Cache interface {
	Get(ctx context.Context) (domreport.Report, bool)
	Put(ctx context.Context, rep domreport.Report, ttl time.Duration) error
}
