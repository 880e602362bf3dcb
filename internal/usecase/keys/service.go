package keys

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/keymeterhq/keymeter/internal/domain"
	domcred "github.com/keymeterhq/keymeter/internal/domain/credential"
)

// ImportSummary counts the outcomes of a bulk credential import.
type ImportSummary struct {
	Added      int
	Duplicates int
	Failed     int
}

// DeleteSummary counts the outcomes of a bulk credential delete.
type DeleteSummary struct {
	Deleted int
	Failed  int
}

// Service manages stored credentials. Every successful mutation
// recomputes the aggregated report before returning, so the next read
// reflects the change.
type Service struct {
	repo    Repository
	probe   Prober // nil when the validity probe is disabled
	reports Recomputer
	logger  *zap.Logger
}

// New creates a credential service.
func New(repo Repository, probe Prober, reports Recomputer, logger *zap.Logger) *Service {
	return &Service{repo: repo, probe: probe, reports: reports, logger: logger}
}

// Add validates, optionally probes and stores a new credential.
func (s *Service) Add(ctx context.Context, secret string) (domcred.Credential, error) {
	cred, err := s.admit(ctx, secret)
	if err != nil {
		return domcred.Credential{}, err
	}

	if err := s.repo.Add(ctx, cred); err != nil {
		return domcred.Credential{}, fmt.Errorf("store credential: %w", err)
	}

	s.recompute(ctx)
	return cred, nil
}

// Import stores a batch of secrets, skipping duplicates and counting
// per-item failures. The report is recomputed once at the end when
// anything was added.
func (s *Service) Import(ctx context.Context, secrets []string) (ImportSummary, error) {
	var sum ImportSummary
	for _, secret := range secrets {
		cred, err := s.admit(ctx, secret)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrAlreadyExists):
			sum.Duplicates++
			continue
		default:
			sum.Failed++
			continue
		}

		if err := s.repo.Add(ctx, cred); err != nil {
			s.logger.Warn("Failed to store imported credential",
				zap.String("key", cred.Masked()),
				zap.Error(err),
			)
			sum.Failed++
			continue
		}
		sum.Added++
	}

	if sum.Added > 0 {
		s.recompute(ctx)
	}
	return sum, nil
}

// Delete removes a credential by id.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}

	s.recompute(ctx)
	return nil
}

// BatchDelete removes many credentials, counting per-id failures. The
// report is recomputed once at the end when anything was deleted.
func (s *Service) BatchDelete(ctx context.Context, ids []string) (DeleteSummary, error) {
	var sum DeleteSummary
	for _, id := range ids {
		if err := s.repo.Delete(ctx, id); err != nil {
			s.logger.Warn("Failed to delete credential",
				zap.String("id", id),
				zap.Error(err),
			)
			sum.Failed++
			continue
		}
		sum.Deleted++
	}

	if sum.Deleted > 0 {
		s.recompute(ctx)
	}
	return sum, nil
}

// List returns all stored credentials.
func (s *Service) List(ctx context.Context) ([]domcred.Credential, error) {
	creds, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return creds, nil
}

// Count returns the number of stored credentials.
func (s *Service) Count(ctx context.Context) (int, error) {
	n, err := s.repo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count credentials: %w", err)
	}
	return n, nil
}

// admit runs the shared gate for new secrets: shape validation, then
// the duplicate check, then the optional upstream probe.
func (s *Service) admit(ctx context.Context, secret string) (domcred.Credential, error) {
	cred, err := domcred.New(secret)
	if err != nil {
		return domcred.Credential{}, fmt.Errorf("validate credential: %w: %w", domain.ErrInvalidCredential, err)
	}

	dup, err := s.repo.Exists(ctx, cred.Secret())
	if err != nil {
		return domcred.Credential{}, fmt.Errorf("check duplicate: %w", err)
	}
	if dup {
		return domcred.Credential{}, fmt.Errorf("credential %s: %w", cred.Masked(), domain.ErrAlreadyExists)
	}

	if s.probe != nil {
		if err := s.probe.Probe(ctx, cred.Secret()); err != nil {
			return domcred.Credential{}, fmt.Errorf("probe credential: %w", err)
		}
	}

	return cred, nil
}

// recompute refreshes the report after a mutation. The mutation already
// succeeded, so a poll failure is logged rather than surfaced.
func (s *Service) recompute(ctx context.Context) {
	if _, err := s.reports.Recompute(ctx); err != nil {
		s.logger.Warn("Failed to recompute report after mutation", zap.Error(err))
	}
}
