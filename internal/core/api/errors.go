package api

import (
	"context"
	"errors"

	"github.com/solatis/pricekeeper/internal/constraints"
	"github.com/solatis/pricekeeper/internal/core/auth"
	"github.com/solatis/pricekeeper/internal/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Auth errors are mapped in the auth package interceptor.
// Authoring and request errors map to INVALID_ARGUMENT.
// Lifecycle rejections map to FAILED_PRECONDITION.
// Everything unrecognised is INTERNAL.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(codeOf(err), err.Error())
}

func codeOf(err error) codes.Code {
	switch {
	case errors.Is(err, types.ErrInvalidContext),
		errors.Is(err, types.ErrValidation),
		errors.Is(err, constraints.ErrInvalid),
		errors.Is(err, types.ErrInvalidParameters),
		errors.Is(err, types.ErrDuplicateSequence):
		return codes.InvalidArgument
	case errors.Is(err, types.ErrRuleNotFound):
		return codes.NotFound
	case errors.Is(err, types.ErrConcurrentModification):
		return codes.Aborted
	case errors.Is(err, types.ErrInvalidTransition),
		errors.Is(err, types.ErrActivationRequirements),
		errors.Is(err, types.ErrRuleConflict):
		return codes.FailedPrecondition
	case errors.Is(err, auth.ErrSellerScope), errors.Is(err, auth.ErrOperatorOnly):
		return codes.PermissionDenied
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	default:
		return codes.Internal
	}
}

// principal returns the caller, or UNAUTHENTICATED when the interceptor did not run.
func principal(ctx context.Context) (auth.Principal, error) {
	p, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return auth.Principal{}, status.Error(codes.Unauthenticated, auth.ErrMissingKey.Error())
	}
	return p, nil
}

func requireOperator(ctx context.Context) (auth.Principal, error) {
	p, err := principal(ctx)
	if err != nil {
		return p, err
	}
	if !p.Operator() {
		return p, toStatus(auth.ErrOperatorOnly)
	}
	return p, nil
}
