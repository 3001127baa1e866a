package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/pinvault/internal/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// toStatus logs err and converts it to a sanitised gRPC status. Only
// validation messages are passed through verbatim.
func (s *GRPCServer) toStatus(ctx context.Context, method string, err error) error {
	var vc *common.VersionConflictError

	switch {
	case errors.Is(err, common.ErrValidation):
		s.logger.Info(ctx, "request rejected", "method", method, "error", err)
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.As(err, &vc):
		st := status.New(codes.Aborted, "version conflict")
		if withDetail, derr := st.WithDetails(wrapperspb.Int64(vc.Current)); derr == nil {
			st = withDetail
		}
		return st.Err()

	case errors.Is(err, common.ErrConflict):
		return status.Error(codes.AlreadyExists, "already exists")

	case errors.Is(err, common.ErrInvalidCredential):
		return status.Error(codes.Unauthenticated, common.ErrInvalidCredential.Error())

	case errors.Is(err, common.ErrTokenExpired):
		return status.Error(codes.Unauthenticated, "token expired")

	case errors.Is(err, common.ErrorUnauthorized), errors.Is(err, common.ErrInvalidToken):
		return status.Error(codes.Unauthenticated, "unauthorized")

	case errors.Is(err, common.ErrRecoveryFailed):
		return status.Error(codes.PermissionDenied, common.ErrRecoveryFailed.Error())

	case errors.Is(err, common.ErrTooManyRequests):
		return status.Error(codes.ResourceExhausted, "too many requests")

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "canceled")

	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	}

	s.logger.Error(ctx, "request failed", "method", method, "error", err)
	return status.Error(codes.Internal, "internal error")
}
