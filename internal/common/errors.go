// Package common defines shared constants and sentinel errors used across
// client and server layers of charasync. Callers should use errors.Is to
// match these values.
package common

import (
	"context"
	"errors"
	"fmt"
)

var (
	// Expected outcomes of record, file and lobby operations.
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
	ErrRateLimited      = errors.New("rate limited")
	ErrConflict         = errors.New("conflict")
	ErrValidationFailed = errors.New("validation failed")
	ErrCancelled        = errors.New("cancelled")

	// Transport errors. ErrTimeout matches ErrTransportFailure as well.
	ErrTransportFailure = errors.New("transport failure")
	ErrTimeout          = fmt.Errorf("timeout: %w", ErrTransportFailure)

	// Auth errors.
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// ErrInternal covers faults that have no better classification.
	ErrInternal = errors.New("internal error")
)

// Reason codes returned by Reason. They are stable and safe to display or
// persist; new codes may be added but existing ones never change meaning.
const (
	ReasonNone             = ""
	ReasonPermissionDenied = "permission_denied"
	ReasonNotFound         = "not_found"
	ReasonRateLimited      = "rate_limited"
	ReasonConflict         = "conflict"
	ReasonValidationFailed = "validation_failed"
	ReasonTimeout          = "timeout"
	ReasonTransportFailure = "transport_failure"
	ReasonCancelled        = "cancelled"
	ReasonUnauthorized     = "unauthorized"
	ReasonInternal         = "internal"
)

// Reason maps err to a stable reason code.
func Reason(err error) string {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return ReasonCancelled
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, ErrTransportFailure):
		return ReasonTransportFailure
	case errors.Is(err, ErrPermissionDenied):
		return ReasonPermissionDenied
	case errors.Is(err, ErrNotFound):
		return ReasonNotFound
	case errors.Is(err, ErrRateLimited):
		return ReasonRateLimited
	case errors.Is(err, ErrConflict):
		return ReasonConflict
	case errors.Is(err, ErrValidationFailed):
		return ReasonValidationFailed
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrInvalidToken), errors.Is(err, ErrTokenExpired):
		return ReasonUnauthorized
	default:
		return ReasonInternal
	}
}
