package rpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/charasync/internal/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ToStatus converts a service error into a gRPC status error. Errors that
// already carry a status pass through unchanged.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	code := codes.Internal
	switch {
	case errors.Is(err, common.ErrPermissionDenied):
		code = codes.PermissionDenied
	case errors.Is(err, common.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, common.ErrRateLimited):
		code = codes.ResourceExhausted
	case errors.Is(err, common.ErrConflict):
		code = codes.Aborted
	case errors.Is(err, common.ErrValidationFailed):
		code = codes.InvalidArgument
	case errors.Is(err, common.ErrUnauthorized), errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrTokenExpired):
		code = codes.Unauthenticated
	case errors.Is(err, common.ErrCancelled), errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, common.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	}
	if code == codes.Internal {
		return status.Error(code, "internal error")
	}
	return status.Error(code, err.Error())
}

// FromStatus converts a gRPC error returned by a call into the matching
// sentinel from package common, keeping the status message.
func FromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		switch {
		case errors.Is(err, context.Canceled):
			return errors.Join(common.ErrCancelled, err)
		case errors.Is(err, context.DeadlineExceeded):
			return errors.Join(common.ErrTimeout, err)
		}
		return err
	}

	var sentinel error
	switch st.Code() {
	case codes.PermissionDenied:
		sentinel = common.ErrPermissionDenied
	case codes.NotFound:
		sentinel = common.ErrNotFound
	case codes.ResourceExhausted:
		sentinel = common.ErrRateLimited
	case codes.Aborted, codes.AlreadyExists:
		sentinel = common.ErrConflict
	case codes.InvalidArgument, codes.FailedPrecondition:
		sentinel = common.ErrValidationFailed
	case codes.Unauthenticated:
		sentinel = common.ErrUnauthorized
	case codes.Canceled:
		sentinel = common.ErrCancelled
	case codes.DeadlineExceeded:
		sentinel = common.ErrTimeout
	case codes.Unavailable:
		sentinel = common.ErrTransportFailure
	default:
		sentinel = common.ErrInternal
	}
	return &remoteError{sentinel: sentinel, msg: st.Message()}
}

type remoteError struct {
	sentinel error
	msg      string
}

func (e *remoteError) Error() string {
	if e.msg == "" || e.msg == e.sentinel.Error() {
		return e.sentinel.Error()
	}
	return e.sentinel.Error() + ": " + e.msg
}

func (e *remoteError) Unwrap() error { return e.sentinel }
