package backend

import "fmt"

// AuthError means the bearer credential was rejected. Never retried; the
// enclosing application treats it as a session-ended condition.
type AuthError struct {
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("backend: credential rejected (status %d)", e.Status)
}

// Retryable marks the error final for the refetch machinery.
func (e *AuthError) Retryable() bool { return false }

// ConflictError means the server refused a write that passed local
// validation, e.g. a race with a concurrent booking.
type ConflictError struct {
	Detail string
}

func (e *ConflictError) Error() string {
	if e.Detail == "" {
		return "backend: rejected by server (conflict)"
	}
	return "backend: rejected by server: " + e.Detail
}

// Conflict tells the stores to roll back and force a refetch.
func (e *ConflictError) Conflict() bool { return true }

func (e *ConflictError) Retryable() bool { return false }

// TransportError wraps network-level or 5xx failures; fetches retry these
// with backoff.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("backend: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Retryable() bool { return true }
