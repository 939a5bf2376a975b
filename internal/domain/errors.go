package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrRateLimited     = errors.New("rate limited")
	ErrUnreachable     = errors.New("unreachable")
	ErrInvalidResponse = errors.New("invalid response")
	ErrFeedDisconnect  = errors.New("feed disconnected")
	ErrContextDone     = errors.New("context cancelled")
)

// FetchError is the adapter-local failure returned by a Source. It is never
// fatal to the process: the orchestrator backs off the failing source and
// leaves the registry untouched. Kind is one of ErrRateLimited,
// ErrUnreachable, or ErrInvalidResponse.
type FetchError struct {
	Source string
	Kind   error
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", e.Source, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Source, e.Kind)
}

// Unwrap exposes the kind sentinel so callers can errors.Is against the
// taxonomy without knowing the concrete source.
func (e *FetchError) Unwrap() error { return e.Kind }

// NewFetchError builds a FetchError for the given source and kind.
func NewFetchError(source string, kind, err error) *FetchError {
	return &FetchError{Source: source, Kind: kind, Err: err}
}
