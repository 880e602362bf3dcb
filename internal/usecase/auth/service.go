package auth

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/keymeterhq/keymeter/internal/domain"
)

// Service authenticates the admin password and manages login sessions.
// An empty password hash disables login protection entirely.
type Service struct {
	passwordHash string
	sessions     Sessions
	ttl          time.Duration
	logger       *zap.Logger
}

// New creates an auth service. passwordHash is a bcrypt hash or empty.
func New(passwordHash string, sessions Sessions, ttl time.Duration, logger *zap.Logger) *Service {
	return &Service{
		passwordHash: passwordHash,
		sessions:     sessions,
		ttl:          ttl,
		logger:       logger,
	}
}

// Enabled reports whether login protection is configured.
func (s *Service) Enabled() bool {
	return s.passwordHash != ""
}

// SessionTTL returns how long a minted session stays valid.
func (s *Service) SessionTTL() time.Duration {
	return s.ttl
}

// Login verifies the password and mints a session token.
func (s *Service) Login(ctx context.Context, password string) (string, error) {
	if !s.Enabled() {
		return "", domain.ErrLoginDisabled
	}

	if err := bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(password)); err != nil {
		s.logger.Warn("Rejected login attempt")
		return "", fmt.Errorf("verify password: %w", domain.ErrUnauthorized)
	}

	token, err := s.sessions.Create(ctx, s.ttl)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return token, nil
}

// Validate reports whether the token belongs to a live session. With
// login disabled every request passes.
func (s *Service) Validate(ctx context.Context, token string) (bool, error) {
	if !s.Enabled() {
		return true, nil
	}
	if token == "" {
		return false, nil
	}
	return s.sessions.Validate(ctx, token)
}

// Logout ends the session for the token. An empty token is a no-op.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.sessions.Delete(ctx, token); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}
