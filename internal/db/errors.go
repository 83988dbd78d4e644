package db

import "errors"

// Sentinel errors for database operations.
var (
	ErrKeyNotFound     = errors.New("db: key not found")
	ErrVersionConflict = errors.New("db: version conflict")
	ErrCorruptRecord   = errors.New("db: corrupt record")
)

// Op constants name the failing operation for error context.
const (
	OpPing   = "PING"
	OpGet    = "GET"
	OpHMGet  = "HMGET"
	OpCAS    = "CAS"
	OpUpdate = "UPDATE"
	OpView   = "VIEW"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
