package types

import "fmt"

// ValidationError reports input rejected before any I/O was performed.
// Callers can always recover by correcting the input.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s (%v): %s", e.Field, e.Value, e.Reason)
}
