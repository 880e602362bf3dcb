package keymeter

import (
	"context"
	"fmt"
	"time"

	domcred "github.com/keymeterhq/keymeter/internal/domain/credential"
)

// KeyInfo describes a tracked credential. Key is always the masked
// rendering; the raw secret is never returned.
type KeyInfo struct {
	ID        string
	Key       string
	CreatedAt time.Time
}

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

// KeyService manages tracked credentials.
type KeyService struct {
	svc keysUseCase
	obs *observer
}

// Add validates and stores a new credential, then recomputes the report.
func (s *KeyService) Add(ctx context.Context, secret string) (_ KeyInfo, err error) {
	start := time.Now()
	defer func() { s.obs.observe("keys.add", start, err) }()

	cred, err := s.svc.Add(ctx, secret)
	if err != nil {
		return KeyInfo{}, fmt.Errorf("add key: %w", err)
	}
	return fromCredential(cred), nil
}

// Import stores a batch of secrets, skipping duplicates and counting
// per-item failures.
func (s *KeyService) Import(ctx context.Context, secrets []string) (_ ImportSummary, err error) {
	start := time.Now()
	defer func() { s.obs.observe("keys.import", start, err) }()

	sum, err := s.svc.Import(ctx, secrets)
	if err != nil {
		return ImportSummary{}, fmt.Errorf("import keys: %w", err)
	}
	return ImportSummary{
		Added:      sum.Added,
		Duplicates: sum.Duplicates,
		Failed:     sum.Failed,
	}, nil
}

// Remove deletes a credential by id.
func (s *KeyService) Remove(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { s.obs.observe("keys.remove", start, err) }()

	if err = s.svc.Delete(ctx, id); err != nil {
		return fmt.Errorf("remove key: %w", err)
	}
	return nil
}

// RemoveBatch deletes many credentials, counting per-id failures.
func (s *KeyService) RemoveBatch(ctx context.Context, ids []string) (_ DeleteSummary, err error) {
	start := time.Now()
	defer func() { s.obs.observe("keys.remove_batch", start, err) }()

	sum, err := s.svc.BatchDelete(ctx, ids)
	if err != nil {
		return DeleteSummary{}, fmt.Errorf("remove keys: %w", err)
	}
	return DeleteSummary{Deleted: sum.Deleted, Failed: sum.Failed}, nil
}

// List returns all tracked credentials, masked, in stable order.
func (s *KeyService) List(ctx context.Context) (_ []KeyInfo, err error) {
	start := time.Now()
	defer func() { s.obs.observe("keys.list", start, err) }()

	creds, err := s.svc.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}

	out := make([]KeyInfo, len(creds))
	for i, c := range creds {
		out[i] = fromCredential(c)
	}
	return out, nil
}

// Count returns the number of tracked credentials.
func (s *KeyService) Count(ctx context.Context) (_ int, err error) {
	start := time.Now()
	defer func() { s.obs.observe("keys.count", start, err) }()

	n, err := s.svc.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count keys: %w", err)
	}
	return n, nil
}

func fromCredential(c domcred.Credential) KeyInfo {
	return KeyInfo{
		ID:        c.ID(),
		Key:       c.Masked(),
		CreatedAt: time.UnixMilli(c.CreatedAt()).UTC(),
	}
}
