// ABOUTME: gRPC interceptors for the key lookup service
// ABOUTME: Checks a shared service token from metadata and logs each call

package auth

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// healthServicePrefix is exempt from the token check so probes work unauthenticated.
const healthServicePrefix = "/grpc.health.v1.Health/"

// logAuthFailure logs an authentication failure with structured context.
func logAuthFailure(logger *slog.Logger, ctx context.Context, reason string, attrs ...any) {
	if logger == nil {
		return
	}
	// Extract peer address if available
	baseAttrs := []any{"reason", reason}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		baseAttrs = append(baseAttrs, "peer_addr", p.Addr.String())
	}
	baseAttrs = append(baseAttrs, attrs...)
	logger.Warn("auth failure", baseAttrs...)
}

// ServiceTokenInterceptor returns a unary interceptor requiring
// "authorization: Bearer <token>" metadata. An empty token disables the check.
func ServiceTokenInterceptor(token string, logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if token == "" || strings.HasPrefix(info.FullMethod, healthServicePrefix) {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			logAuthFailure(logger, ctx, "missing metadata", "method", info.FullMethod)
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}
		values := md.Get("authorization")
		if len(values) == 0 {
			logAuthFailure(logger, ctx, "missing authorization", "method", info.FullMethod)
			return nil, status.Error(codes.Unauthenticated, "missing authorization")
		}

		got, errMsg := extractBearerToken(values[0])
		if errMsg != "" {
			logAuthFailure(logger, ctx, errMsg, "method", info.FullMethod)
			return nil, status.Error(codes.Unauthenticated, errMsg)
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			logAuthFailure(logger, ctx, "invalid service token", "method", info.FullMethod)
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}

		return handler(ctx, req)
	}
}

// LoggingInterceptor logs every unary call with its duration and status code.
func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("grpc call",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"duration", time.Since(start),
		)
		return resp, err
	}
}
