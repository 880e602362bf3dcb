package auth

import (
	"context"
	"time"
)

// Sessions stores minted login sessions.
type Sessions interface {
	Create(ctx context.Context, ttl time.Duration) (string, error)
	Validate(ctx context.Context, token string) (bool, error)
	Delete(ctx context.Context, token string) error
}
