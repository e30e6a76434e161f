// Package retry holds the bounded retry policy, the error-feedback context
// carried between attempts, and the error taxonomy shared by the pipeline.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a failure for retry decisions.
type Kind int

const (
	KindUnknown Kind = iota
	KindTransient
	KindMalformedResponse
	KindValidation
	KindExhausted
	KindPlanning
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindMalformedResponse:
		return "malformed_response"
	case KindValidation:
		return "validation"
	case KindExhausted:
		return "exhausted"
	case KindPlanning:
		return "planning"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// TransientError marks a failure that may succeed on a later attempt:
// network errors, timeouts, rate limiting, 5xx responses.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError. A nil err stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// Transientf formats a TransientError.
func Transientf(format string, args ...any) error {
	return &TransientError{Err: fmt.Errorf(format, args...)}
}

// MalformedResponseError is returned when a response cannot be parsed into
// code at all.
type MalformedResponseError struct {
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return "malformed response: " + e.Reason
}

// ValidationFailure carries the checker's diagnostic for a produced artifact.
type ValidationFailure struct {
	Diagnostic string
}

func (e *ValidationFailure) Error() string {
	return "validation failed: " + e.Diagnostic
}

// ExhaustedRetriesError is the terminal failure of a unit.
type ExhaustedRetriesError struct {
	Unit           string
	Attempts       int
	LastDiagnostic string
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("unit %s failed after %d attempts: %s", e.Unit, e.Attempts, e.LastDiagnostic)
}

// PlanningError is returned for invalid chunk planning input.
type PlanningError struct {
	Unit string
	Err  error
}

func (e *PlanningError) Error() string {
	if e.Unit == "" {
		return "planning: " + e.Err.Error()
	}
	return fmt.Sprintf("planning %s: %v", e.Unit, e.Err)
}

func (e *PlanningError) Unwrap() error { return e.Err }

// IsTransient reports whether err should be retried with the same input.
func IsTransient(err error) bool {
	return Classify(err) == KindTransient
}

// Classify maps err onto the failure taxonomy.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}

	var (
		te *TransientError
		me *MalformedResponseError
		ve *ValidationFailure
		xe *ExhaustedRetriesError
		pe *PlanningError
	)
	switch {
	case errors.As(err, &te):
		return KindTransient
	case errors.As(err, &me):
		return KindMalformedResponse
	case errors.As(err, &ve):
		return KindValidation
	case errors.As(err, &xe):
		return KindExhausted
	case errors.As(err, &pe):
		return KindPlanning
	case errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}
	return KindUnknown
}
