// Package keys persists tracked credentials in the KV store.
//
// Each credential is a JSON record at <prefix>key:<id>, plus a secret-index
// entry <prefix>keyhash:<sha256(secret)> -> id so duplicate detection never
// scans or decrypts stored records.
package keys

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"

	"github.com/keymeterhq/keymeter/internal/crypto"
	"github.com/keymeterhq/keymeter/internal/domain"
	domcred "github.com/keymeterhq/keymeter/internal/domain/credential"
	"github.com/keymeterhq/keymeter/internal/kv"
)

// store is the consumer interface for credential records (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	GetMulti(ctx context.Context, keys []string) ([][]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Repo implements credential storage over a KV store.
type Repo struct {
	store  store
	prefix string
	cipher *crypto.Cipher
}

// New creates a credential repository.
func New(s store, prefix string) *Repo {
	return &Repo{store: s, prefix: prefix}
}

// WithCipher enables at-rest encryption of stored secrets.
func (r *Repo) WithCipher(c *crypto.Cipher) *Repo {
	r.cipher = c
	return r
}

// Add stores a credential: record first, then the secret-index entry.
// On index failure, rolls back the record via DEL.
func (r *Repo) Add(ctx context.Context, cred domcred.Credential) error {
	recordKey := r.recordKey(cred.ID())

	exists, err := r.store.Exists(ctx, recordKey)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return domain.ErrAlreadyExists
	}

	data, err := credentialToRecord(cred, r.cipher)
	if err != nil {
		return err
	}

	if err := r.store.Set(ctx, recordKey, data); err != nil {
		return fmt.Errorf("set credential %s: %w", cred.ID(), err)
	}

	// Index write — rollback the record on error
	if err := r.store.Set(ctx, r.indexKey(cred.Secret()), []byte(cred.ID())); err != nil {
		cleanupErr := r.store.Del(ctx, recordKey)
		return errors.Join(fmt.Errorf("set secret index: %w", err), cleanupErr)
	}

	return nil
}

// Get retrieves a credential by ID.
func (r *Repo) Get(ctx context.Context, id string) (domcred.Credential, error) {
	data, err := r.store.Get(ctx, r.recordKey(id))
	if err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			return domcred.Credential{}, domain.ErrNotFound
		}
		return domcred.Credential{}, fmt.Errorf("get credential %s: %w", id, err)
	}

	return credentialFromRecord(data, r.cipher)
}

// List returns all credentials sorted by CreatedAt, then ID, so callers see
// a stable order across runs.
func (r *Repo) List(ctx context.Context) ([]domcred.Credential, error) {
	keys, err := r.store.Scan(ctx, r.recordKey("*"))
	if err != nil {
		return nil, fmt.Errorf("scan credentials: %w", err)
	}
	if len(keys) == 0 {
		return []domcred.Credential{}, nil
	}

	records, err := r.store.GetMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("get multi credentials: %w", err)
	}

	creds := make([]domcred.Credential, 0, len(records))
	for i, data := range records {
		if data == nil {
			// evicted between SCAN and GET
			continue
		}
		cred, err := credentialFromRecord(data, r.cipher)
		if err != nil {
			return nil, fmt.Errorf("parse credential %s: %w", keys[i], err)
		}
		creds = append(creds, cred)
	}

	sort.Slice(creds, func(i, j int) bool {
		if creds[i].CreatedAt() != creds[j].CreatedAt() {
			return creds[i].CreatedAt() < creds[j].CreatedAt()
		}
		return creds[i].ID() < creds[j].ID()
	})

	return creds, nil
}

// Delete removes a credential record and its secret-index entry.
// On index failure, rolls back the record.
func (r *Repo) Delete(ctx context.Context, id string) error {
	recordKey := r.recordKey(id)

	// Backup for rollback; also yields the secret for the index key.
	backup, err := r.store.Get(ctx, recordKey)
	if err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("get credential %s: %w", id, err)
	}
	cred, err := credentialFromRecord(backup, r.cipher)
	if err != nil {
		return err
	}

	if err := r.store.Del(ctx, recordKey); err != nil {
		return fmt.Errorf("del credential %s: %w", id, err)
	}

	if err := r.store.Del(ctx, r.indexKey(cred.Secret())); err != nil {
		cleanupErr := r.store.Set(ctx, recordKey, backup)
		return errors.Join(fmt.Errorf("del secret index: %w", err), cleanupErr)
	}

	return nil
}

// Exists reports whether a credential with this secret is already tracked.
func (r *Repo) Exists(ctx context.Context, secret string) (bool, error) {
	exists, err := r.store.Exists(ctx, r.indexKey(secret))
	if err != nil {
		return false, fmt.Errorf("check secret index: %w", err)
	}
	return exists, nil
}

// Count returns the number of tracked credentials.
func (r *Repo) Count(ctx context.Context) (int, error) {
	keys, err := r.store.Scan(ctx, r.recordKey("*"))
	if err != nil {
		return 0, fmt.Errorf("scan credentials: %w", err)
	}
	return len(keys), nil
}

// KV key patterns: <prefix>key:{id}, <prefix>keyhash:{sha256(secret)}

func (r *Repo) recordKey(id string) string {
	return fmt.Sprintf("%skey:%s", r.prefix, id)
}

func (r *Repo) indexKey(secret string) string {
	h := sha256.Sum256([]byte(secret))
	return fmt.Sprintf("%skeyhash:%s", r.prefix, hex.EncodeToString(h[:]))
}
