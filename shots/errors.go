package shots

import (
	"errors"
	"fmt"
)

// FetchErrorKind classifies upstream fetch failures. Transient kinds
// are retried with backoff; Malformed is surfaced immediately.
type FetchErrorKind string

const (
	ErrKindTimeout     FetchErrorKind = "timeout"
	ErrKindRateLimited FetchErrorKind = "rate_limited"
	ErrKindNetwork     FetchErrorKind = "network"
	ErrKindMalformed   FetchErrorKind = "malformed"
)

// FetchError wraps an upstream failure with its classification.
type FetchError struct {
	Kind FetchErrorKind
	Err  error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch failed (%s)", e.Kind)
	}
	return fmt.Sprintf("fetch failed (%s): %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NewFetchError builds a classified fetch error.
func NewFetchError(kind FetchErrorKind, err error) *FetchError {
	return &FetchError{Kind: kind, Err: err}
}

// IsTransient reports whether err is a fetch failure worth retrying.
// Unclassified errors are treated as transient, matching how network
// stacks surface timeouts and resets as plain errors.
func IsTransient(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind != ErrKindMalformed
	}
	return true
}

// IsPermanent reports whether err must not be retried.
func IsPermanent(err error) bool { return !IsTransient(err) }

// ErrUnknownSubject is returned when a subject slug cannot be resolved
// to an upstream identifier. Never retried.
var ErrUnknownSubject = errors.New("unknown subject")
