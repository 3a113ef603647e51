package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/curatarr/internal/shared"
)

// ErrorKind classifies provider failures.
type ErrorKind int

const (
	KindUnreachable ErrorKind = iota + 1
	KindUnauthorized
	KindMalformedResponse
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnreachable:
		return "unreachable"
	case KindUnauthorized:
		return "unauthorized"
	case KindMalformedResponse:
		return "malformed"
	default:
		return "unknown"
	}
}

var (
	ErrUnreachable       = fmt.Errorf("provider unreachable")
	ErrUnauthorized      = fmt.Errorf("provider rejected credentials")
	ErrMalformedResponse = fmt.Errorf("provider returned a malformed response")
)

// ProviderError is returned by every provider operation.
type ProviderError struct {
	Provider string
	Op       string
	Kind     ErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %s", e.Provider, e.Op, e.Kind)
	}
	return fmt.Sprintf("%s %s: %s: %v", e.Provider, e.Op, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is matches the kind sentinels so callers can use [errors.Is] with [ErrUnreachable] and friends.
// Unreachable errors also match [shared.ErrServiceUnavailable].
func (e *ProviderError) Is(target error) bool {
	switch target {
	case ErrUnreachable, shared.ErrServiceUnavailable:
		return e.Kind == KindUnreachable
	case ErrUnauthorized:
		return e.Kind == KindUnauthorized
	case ErrMalformedResponse:
		return e.Kind == KindMalformedResponse
	}
	return false
}

func newError(provider, op string, kind ErrorKind, err error) *ProviderError {
	return &ProviderError{Provider: provider, Op: op, Kind: kind, Err: err}
}

// unreachable wraps transport failures, preserving an existing [ProviderError].
func unreachable(provider, op string, err error) error {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", shared.ErrTimeout, err)
	}
	return newError(provider, op, KindUnreachable, err)
}

func malformed(provider, op string, err error) error {
	return newError(provider, op, KindMalformedResponse, err)
}

// IsUnavailable reports whether err is any [ProviderError].
func IsUnavailable(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// KindOf returns the [ErrorKind] of err, or 0 when err is not a [ProviderError].
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return 0
}
