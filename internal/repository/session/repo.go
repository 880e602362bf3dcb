// Package session stores login session tokens in the key-value store.
// Tokens are stored under their SHA-256 hash, so a store dump never
// yields usable tokens.
package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/keymeterhq/keymeter/internal/kv"
)

// store is the consumer interface for the session repository (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// record is the stored session payload. CreatedAt is unix milliseconds.
type record struct {
	CreatedAt int64 `json:"created_at"`
}

// Repo manages session tokens under <prefix>session:<sha256(token)>.
type Repo struct {
	store  store
	prefix string
}

// New creates a session repository over the given store.
func New(s store, prefix string) *Repo {
	return &Repo{store: s, prefix: prefix}
}

// Create mints a random token and stores it for ttl.
// It returns the plaintext token to hand to the client.
func (r *Repo) Create(ctx context.Context, ttl time.Duration) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	token := hex.EncodeToString(b)

	data, err := json.Marshal(record{CreatedAt: time.Now().UnixMilli()})
	if err != nil {
		return "", fmt.Errorf("marshal session: %w", err)
	}

	if err := r.store.SetWithTTL(ctx, r.key(token), data, ttl); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return token, nil
}

// Validate reports whether the token belongs to a live session.
func (r *Repo) Validate(ctx context.Context, token string) (bool, error) {
	_, err := r.store.Get(ctx, r.key(token))
	if err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("get session: %w", err)
	}
	return true, nil
}

// Delete ends the session for the token. Unknown tokens are a no-op.
func (r *Repo) Delete(ctx context.Context, token string) error {
	if err := r.store.Del(ctx, r.key(token)); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// KV key: <prefix>session:{sha256(token)}
func (r *Repo) key(token string) string {
	h := sha256.Sum256([]byte(token))
	return r.prefix + "session:" + hex.EncodeToString(h[:])
}
