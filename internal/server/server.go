package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
)

const defaultShutdownTimeout = 10 * time.Second

// Config holds listener addresses and HTTP timeouts.
type Config struct {
	HTTPAddr        string
	GRPCAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Server runs the HTTP server and, when configured, the gRPC server.
type Server struct {
	cfg    Config
	http   *http.Server
	grpc   *grpc.Server
	health *health.Server
	logger *slog.Logger
}

// New creates a Server. grpcServer and healthServer may be nil.
func New(cfg Config, handler http.Handler, grpcServer *grpc.Server, healthServer *health.Server, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	return &Server{
		cfg: cfg,
		http: &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		},
		grpc:   grpcServer,
		health: healthServer,
		logger: logger,
	}
}

// Run listens on the configured addresses and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	httpLn, err := net.Listen("tcp", s.cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.HTTPAddr, err)
	}

	var grpcLn net.Listener
	if s.grpc != nil && s.cfg.GRPCAddr != "" {
		grpcLn, err = net.Listen("tcp", s.cfg.GRPCAddr)
		if err != nil {
			httpLn.Close()
			return fmt.Errorf("failed to listen on %s: %w", s.cfg.GRPCAddr, err)
		}
	}

	return s.Serve(ctx, httpLn, grpcLn)
}

// Serve serves on the given listeners until ctx is done or a server fails,
// then shuts both down within the shutdown timeout. grpcLn may be nil.
func (s *Server) Serve(ctx context.Context, httpLn, grpcLn net.Listener) error {
	errCh := make(chan error, 2)

	go func() {
		s.logger.Info("http server listening", "addr", httpLn.Addr().String())
		if err := s.http.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if grpcLn != nil && s.grpc != nil {
		go func() {
			s.logger.Info("grpc server listening", "addr", grpcLn.Addr().String())
			if err := s.grpc.Serve(grpcLn); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	var serveErr error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections")
	case serveErr = <-errCh:
		s.logger.Error("server failed, shutting down", "error", serveErr)
	}

	return errors.Join(serveErr, s.shutdown())
}

func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if s.health != nil {
		s.health.Shutdown()
	}

	if s.grpc != nil {
		done := make(chan struct{})
		go func() {
			s.grpc.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			s.grpc.Stop()
		}
	}

	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.logger.Info("servers stopped")
	return nil
}
