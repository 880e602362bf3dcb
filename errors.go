package keymeter

import "github.com/keymeterhq/keymeter/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrNotFound          = domain.ErrNotFound
	ErrAlreadyExists     = domain.ErrAlreadyExists
	ErrInvalidCredential = domain.ErrInvalidCredential
)
