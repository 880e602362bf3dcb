package keys

import (
	"context"

	domcred "github.com/keymeterhq/keymeter/internal/domain/credential"
	domreport "github.com/keymeterhq/keymeter/internal/domain/report"
)

// Repository defines the storage contract for credentials.
type Repository interface {
	Add(ctx context.Context, cred domcred.Credential) error
	Get(ctx context.Context, id string) (domcred.Credential, error)
	List(ctx context.Context) ([]domcred.Credential, error)
	Delete(ctx context.Context, id string) error
	Exists(ctx context.Context, secret string) (bool, error)
	Count(ctx context.Context) (int, error)
}

// Prober verifies a credential against the upstream before storing it.
type Prober interface {
	Probe(ctx context.Context, secret string) error
}

// Recomputer rebuilds the aggregated report after a mutation.
type Recomputer interface {
	Recompute(ctx context.Context) (domreport.Report, error)
}
