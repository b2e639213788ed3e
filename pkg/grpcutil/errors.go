package grpcutil

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// InvalidArgumentError creates an INVALID_ARGUMENT gRPC error.
func InvalidArgumentError(field, reason string) error {
	return status.Errorf(codes.InvalidArgument, "invalid %s: %s", field, reason)
}

// InternalError creates an INTERNAL gRPC error.
func InternalError(err error) error {
	return status.Errorf(codes.Internal, "internal error: %v", err)
}

// WrapError adds context to an error while preserving its gRPC status
// code; non-status errors become INTERNAL.
func WrapError(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	msg := fmt.Sprintf(format, args...)

	if s, ok := status.FromError(err); ok {
		return status.Errorf(s.Code(), "%s: %s", msg, s.Message())
	}
	return status.Errorf(codes.Internal, "%s: %v", msg, err)
}

// IsInvalidArgument checks if an error is an INVALID_ARGUMENT error.
func IsInvalidArgument(err error) bool {
	return status.Code(err) == codes.InvalidArgument
}
