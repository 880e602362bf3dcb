package domain

import "errors"

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists signals a duplicate resource.
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalidCredential signals a credential rejected by validation or the validity probe.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrUnauthorized signals a missing or invalid session.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrLoginDisabled signals that no admin password is configured.
	ErrLoginDisabled = errors.New("login disabled")
)
