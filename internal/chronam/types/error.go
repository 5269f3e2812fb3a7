package types

import (
	"context"
	"errors"
	"fmt"
)

var (
	// Request errors
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrDuplicateRequest = errors.New("duplicate request")

	// Configuration errors
	ErrInvalidBaseURL  = errors.New("invalid archive base URL")
	ErrInvalidPageSize = errors.New("invalid page size")
	ErrNoTransport     = errors.New("no transport configured")

	// Response errors
	ErrInvalidResponse = errors.New("invalid response from archive")
)

// ParameterError describes input rejected before any network interaction
type ParameterError struct {
	Field  string
	Reason string
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidParameter, e.Field, e.Reason)
}

// Is matches ErrInvalidParameter
func (e *ParameterError) Is(target error) bool {
	return target == ErrInvalidParameter
}

// TransportError wraps failures reported by the network layer
type TransportError struct {
	Op         string // search, coordinates, download
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("[%s] %s: HTTP %d", e.Op, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsInvalidParameter reports whether err is a local validation failure
func IsInvalidParameter(err error) bool {
	return errors.Is(err, ErrInvalidParameter)
}

// IsDuplicateRequest reports whether err is a duplicate request rejection
func IsDuplicateRequest(err error) bool {
	return errors.Is(err, ErrDuplicateRequest)
}

// IsCancelled reports whether err stems from cancelling a request
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}
