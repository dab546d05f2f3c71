package server

import (
	"context"
	"fmt"
	"path"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// RPCRecorder counts finished calls by method and status code.
type RPCRecorder interface {
	RPC(method, code string)
}

// MetricsInterceptor records every call, including ones rejected by
// interceptors further down the chain. A nil recorder disables it.
func MetricsInterceptor(rec RPCRecorder) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		if rec != nil {
			rec.RPC(path.Base(info.FullMethod), status.Code(err).String())
		}
		return resp, err
	}
}

// TimeoutInterceptor caps the handler deadline. Client deadlines shorter
// than d are kept. Non-positive d disables it.
func TimeoutInterceptor(d time.Duration) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if d <= 0 {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return handler(ctx, req)
	}
}

// RecoveryInterceptor turns handler panics into INTERNAL.
func RecoveryInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic in grpc handler",
					zap.String("method", info.FullMethod),
					zap.String("panic", fmt.Sprint(r)),
					zap.ByteString("stack", debug.Stack()))
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}
