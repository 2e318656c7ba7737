package adminrpc

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/orbit-visualizer/core"
	"github.com/signalsfoundry/orbit-visualizer/internal/catalog"
	"github.com/signalsfoundry/orbit-visualizer/kb"
)

// ToStatusError maps catalog errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, kb.ErrSatelliteNotFound),
		errors.Is(err, kb.ErrConfigurationNotFound):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, catalog.ErrInvalidParameters),
		errors.Is(err, core.ErrInvalidPeriod),
		errors.Is(err, core.ErrInvalidPointCount):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, core.ErrNotTracked):
		return status.Error(codes.FailedPrecondition, err.Error())

	case errors.Is(err, kb.ErrSatelliteExists),
		errors.Is(err, kb.ErrConfigurationExists):
		return status.Error(codes.AlreadyExists, err.Error())

	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// StatusUnaryServerInterceptor converts handler errors with ToStatusError.
func StatusUnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		return resp, ToStatusError(err)
	}
}
