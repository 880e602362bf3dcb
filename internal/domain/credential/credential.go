// Package credential holds the tracked API key domain type and its masking.
package credential

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Masking dimensions: how much of a secret stays visible at each end.
const (
	maskPrefixLen = 4
	maskSuffixLen = 4
)

const maxSecretLen = 512

// Mask derives a display-safe rendering of a secret: the first maskPrefixLen
// characters, an ellipsis, and the last maskSuffixLen characters when the
// secret is long enough to show both ends. Short secrets keep only the
// prefix; the empty string renders as a bare ellipsis.
func Mask(secret string) string {
	if len(secret) <= maskPrefixLen+maskSuffixLen {
		prefix := secret
		if len(prefix) > maskPrefixLen {
			prefix = prefix[:maskPrefixLen]
		}
		return prefix + "..."
	}
	return secret[:maskPrefixLen] + "..." + secret[len(secret)-maskSuffixLen:]
}

// Credential is an API key tracked by keymeter (immutable value object).
type Credential struct {
	id        string
	secret    string
	createdAt int64
}

// New validates the secret and creates a Credential with a fresh random ID.
func New(secret string) (Credential, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return Credential{}, fmt.Errorf("credential secret is required")
	}
	if len(secret) > maxSecretLen {
		return Credential{}, fmt.Errorf("credential secret too long (max %d)", maxSecretLen)
	}

	id, err := newID()
	if err != nil {
		return Credential{}, fmt.Errorf("generate credential id: %w", err)
	}

	return Credential{
		id:        id,
		secret:    secret,
		createdAt: time.Now().UnixMilli(),
	}, nil
}

// Reconstruct creates a Credential without validation (storage hydration).
func Reconstruct(id, secret string, createdAt int64) Credential {
	return Credential{id: id, secret: secret, createdAt: createdAt}
}

func newID() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// ID returns the opaque credential identifier.
func (c Credential) ID() string { return c.id }

// Secret returns the raw secret. It is used only for outbound auth headers
// and at-rest storage; display paths must go through Masked.
func (c Credential) Secret() string { return c.secret }

// Masked returns the display-safe rendering of the secret.
func (c Credential) Masked() string { return Mask(c.secret) }

// CreatedAt returns the creation timestamp (unix millis).
func (c Credential) CreatedAt() int64 { return c.createdAt }
