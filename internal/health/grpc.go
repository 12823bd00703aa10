package health

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// NewGRPCServer serves the health service with logging and panic recovery.
func NewGRPCServer(c *Checker, log logrus.FieldLogger) *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			Recover(log),
			Logging(log),
		),
	)
	healthpb.RegisterHealthServer(srv, c.Server())
	return srv
}

func Logging(log logrus.FieldLogger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		log.WithFields(logrus.Fields{
			"method":   info.FullMethod,
			"code":     status.Code(err).String(),
			"duration": time.Since(start).String(),
		}).Debug("grpc call")
		return resp, err
	}
}

func Recover(log logrus.FieldLogger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if p := recover(); p != nil {
				log.WithFields(logrus.Fields{"method": info.FullMethod, "panic": p}).Error("grpc handler panicked")
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return next(ctx, req)
	}
}
