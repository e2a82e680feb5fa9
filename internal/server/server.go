// Package server hosts the gRPC health endpoint and the HTTP admin and
// conversation API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
)

// shutdownTimeout bounds the HTTP drain on shutdown.
const shutdownTimeout = 5 * time.Second

// Server runs the gRPC and HTTP listeners together.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	http   *http.Server
	logger *slog.Logger
}

// New returns a Server serving handler over HTTP and the health service over
// gRPC.
func New(logger *slog.Logger, authToken string, handler http.Handler) *Server {
	gs, hs := NewGRPCServer(logger, authToken)
	return &Server{
		grpc:   gs,
		health: hs,
		http: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// Serve blocks until ctx is done or a listener fails, then shuts both
// servers down. It returns the first listener error, if any.
func (s *Server) Serve(ctx context.Context, grpcLis, httpLis net.Listener) error {
	errc := make(chan error, 2)
	go func() {
		s.logger.Info("gRPC server listening", "addr", grpcLis.Addr().String())
		errc <- s.grpc.Serve(grpcLis)
	}()
	go func() {
		s.logger.Info("HTTP server listening", "addr", httpLis.Addr().String())
		if err := s.http.Serve(httpLis); !errors.Is(err, http.ErrServerClosed) {
			errc <- err
			return
		}
		errc <- nil
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-errc:
	}
	s.shutdown()
	return err
}

func (s *Server) shutdown() {
	s.logger.Info("shutting down")
	s.health.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Warn("HTTP shutdown", "err", err)
	}
	s.grpc.GracefulStop()
}
