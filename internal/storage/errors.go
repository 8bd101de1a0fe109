package storage

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
	// ErrBusy is returned when the database is locked past the busy
	// timeout. Callers may retry with backoff.
	ErrBusy = errors.New("database busy")
)

// classifyErr maps driver errors onto the package's error taxonomy.
// Lock contention surfaces as ErrBusy so callers can distinguish a
// retryable condition from a real failure. Both drivers report
// contention via SQLITE_BUSY / SQLITE_LOCKED message text.
func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLITE_LOCKED") {
		return errors.Join(ErrBusy, err)
	}
	return err
}
