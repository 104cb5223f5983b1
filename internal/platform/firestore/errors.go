package firestore

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hanko-field/storefront/internal/repositories"
)

// Error is the repository error produced for Firestore failures.
type Error = repositories.Error

func kindFor(code codes.Code) repositories.ErrorKind {
	switch code {
	case codes.NotFound:
		return repositories.ErrorKindNotFound
	case codes.AlreadyExists, codes.FailedPrecondition, codes.Aborted:
		return repositories.ErrorKindConflict
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal:
		return repositories.ErrorKindUnavailable
	default:
		return repositories.ErrorKindUnknown
	}
}

// WrapError classifies Firestore errors as repository errors. Context cancellations pass through.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	switch status.Code(err) {
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	}

	var repoErr *Error
	if errors.As(err, &repoErr) {
		if repoErr.Op == "" {
			repoErr.Op = op
		}
		return repoErr
	}
	return repositories.NewError(op, kindFor(status.Code(err)), err)
}
