package firestore

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hanko-field/storefront/internal/repositories"
)

func TestWrapErrorClassifiesGRPCCodes(t *testing.T) {
	cases := []struct {
		code        codes.Code
		notFound    bool
		conflict    bool
		unavailable bool
	}{
		{code: codes.NotFound, notFound: true},
		{code: codes.AlreadyExists, conflict: true},
		{code: codes.Aborted, conflict: true},
		{code: codes.Unavailable, unavailable: true},
		{code: codes.ResourceExhausted, unavailable: true},
		{code: codes.PermissionDenied},
	}
	for _, tc := range cases {
		err := WrapError("carts.get", status.Error(tc.code, "boom"))
		var repoErr repositories.RepositoryError
		if !errors.As(err, &repoErr) {
			t.Fatalf("%s: expected repository error, got %T", tc.code, err)
		}
		if repoErr.IsNotFound() != tc.notFound || repoErr.IsConflict() != tc.conflict || repoErr.IsUnavailable() != tc.unavailable {
			t.Fatalf("%s: unexpected classification %+v", tc.code, repoErr)
		}
	}
}

func TestWrapErrorPassesThroughCancellation(t *testing.T) {
	if err := WrapError("carts.get", status.Error(codes.Canceled, "gone")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := WrapError("carts.get", context.DeadlineExceeded); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if WrapError("carts.get", nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}

func TestWrapErrorKeepsExistingOp(t *testing.T) {
	inner := repositories.NewError("carts.set", repositories.ErrorKindConflict, errors.New("stale"))
	err := WrapError("transaction", inner)
	var repoErr *Error
	if !errors.As(err, &repoErr) || repoErr.Op != "carts.set" {
		t.Fatalf("expected original op to survive, got %v", err)
	}
}
