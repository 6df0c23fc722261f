package db

import "errors"

// Sentinel errors for database operations.
var (
	ErrKeyNotFound   = errors.New("db: key not found")
	ErrIndexNotFound = errors.New("db: index not found")
	ErrIndexExists   = errors.New("db: index already exists")
)

// Op constants map to Valkey/Redis command names for error context.
const (
	OpCreateIndex = "FT.CREATE"
	OpIndexInfo   = "FT.INFO"
	OpSearch      = "FT.SEARCH"
	OpHGetAll     = "HGETALL"
	OpHSet        = "HSET"
	OpGet         = "GET"
	OpSet         = "SET"
	OpPing        = "PING"
)

// Error wraps an underlying error with the operation name for diagnostics.
// Server is true when the database answered with an error reply; false means
// the command never got a reply (dial failure, reset, timeout).
type Error struct {
	Op     string
	Err    error
	Server bool
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// IsConnectionError reports whether err is a db.Error raised before the
// server replied. Such errors are worth retrying.
func IsConnectionError(err error) bool {
	var dbErr *Error
	if !errors.As(err, &dbErr) {
		return false
	}
	return !dbErr.Server
}
