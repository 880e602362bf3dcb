package kv

import "errors"

// ErrKeyNotFound is returned when a key is absent or already expired.
var ErrKeyNotFound = errors.New("kv: key not found")

// Op constants map to Redis command names for error context.
const (
	OpDel    = "DEL"
	OpExists = "EXISTS"
	OpScan   = "SCAN"
	OpGet    = "GET"
	OpSet    = "SET"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
