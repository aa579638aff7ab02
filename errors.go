package client

import (
	"errors"
	"fmt"
)

// errTokenInvalid marks a token that failed validation. It is resolved
// internally by re-authenticating and never returned to callers.
var errTokenInvalid = errors.New("session token is no longer valid")

// AuthError reports a rejected login: bad credentials, or no free license
// slot. It is never retried automatically. When SlotBusy is true the
// operator-actionable fix is to log out the other session or wait for the
// slot to free up.
type AuthError struct {
	StatusCode int
	Body       string
	SlotBusy   bool
}

func (e *AuthError) Error() string {
	if e.SlotBusy {
		return fmt.Sprintf("authentication failed: license slot unavailable (HTTP %d): %s", e.StatusCode, errorBody(e.Body))
	}
	return fmt.Sprintf("authentication failed: HTTP %d: %s", e.StatusCode, errorBody(e.Body))
}

// APIError reports a non-transient HTTP failure: a client error the server
// returned that is neither retryable nor a re-authentication signal.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, errorBody(e.Body))
}

// RetryError reports that a request kept failing transiently until the
// configured retry budget ran out. Err is the last underlying failure.
type RetryError struct {
	Attempts int
	Err      error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() error { return e.Err }

// StorageError reports that the token cache could not be read, written,
// or cleared. Authentication proceeds in memory only after a storage
// failure, but token reuse across runs is disabled until the underlying
// problem (usually filesystem permissions) is fixed.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("token storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// TimeoutError reports that a request attempt, or the retry sequence as a
// whole, exceeded its deadline.
type TimeoutError struct {
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request deadline exceeded: %v", e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

func errorBody(body string) string {
	if body == "" {
		return "(empty error body)"
	}
	return body
}
