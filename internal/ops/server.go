package ops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// DefaultCheckInterval is how often the gRPC health status is re-derived
// from a database ping.
const DefaultCheckInterval = 15 * time.Second

// Server runs the ops HTTP router and the gRPC health service side by side.
type Server struct {
	db            Pinger
	httpAddr      string
	grpcAddr      string
	checkInterval time.Duration
	logger        *slog.Logger

	health *health.Server
	grpc   *grpc.Server
	http   *http.Server

	httpLis net.Listener
	grpcLis net.Listener

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewServer creates a Server. Either address may be empty to disable that
// listener.
func NewServer(db Pinger, httpAddr, grpcAddr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	hs := health.NewServer()
	return &Server{
		db:            db,
		httpAddr:      httpAddr,
		grpcAddr:      grpcAddr,
		checkInterval: DefaultCheckInterval,
		logger:        logger,
		health:        hs,
		grpc:          NewGRPCServer(hs, logger),
		http:          &http.Server{Handler: NewRouter(db, logger), ReadHeaderTimeout: 10 * time.Second},
		stopCh:        make(chan struct{}),
	}
}

// Start binds both listeners and serves them in the background.
func (s *Server) Start() error {
	if s.grpcAddr != "" {
		lis, err := net.Listen("tcp", s.grpcAddr)
		if err != nil {
			return fmt.Errorf("listen grpc %s: %w", s.grpcAddr, err)
		}
		s.grpcLis = lis
		go func() {
			s.logger.Info("gRPC health server listening", "addr", lis.Addr().String())
			if err := s.grpc.Serve(lis); err != nil {
				s.logger.Error("gRPC server error", "err", err)
			}
		}()
	}

	if s.httpAddr != "" {
		lis, err := net.Listen("tcp", s.httpAddr)
		if err != nil {
			if s.grpcLis != nil {
				s.grpc.Stop()
			}
			return fmt.Errorf("listen http %s: %w", s.httpAddr, err)
		}
		s.httpLis = lis
		go func() {
			s.logger.Info("HTTP ops server listening", "addr", lis.Addr().String())
			if err := s.http.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("HTTP server error", "err", err)
			}
		}()
	}

	s.check(context.Background())
	s.wg.Add(1)
	go s.watch()
	return nil
}

// HTTPAddr returns the bound HTTP address, or "" before Start.
func (s *Server) HTTPAddr() string {
	if s.httpLis == nil {
		return ""
	}
	return s.httpLis.Addr().String()
}

// GRPCAddr returns the bound gRPC address, or "" before Start.
func (s *Server) GRPCAddr() string {
	if s.grpcLis == nil {
		return ""
	}
	return s.grpcLis.Addr().String()
}

// Shutdown marks the service as not serving, then stops both servers.
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.stopCh)
	s.wg.Wait()

	s.health.Shutdown()
	if s.grpcLis != nil {
		s.grpc.GracefulStop()
		s.logger.Info("gRPC server stopped")
	}
	if s.httpLis != nil {
		if err := s.http.Shutdown(ctx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		s.logger.Info("HTTP server stopped")
	}
	return nil
}

func (s *Server) watch() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.check(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

func (s *Server) check(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	st := healthpb.HealthCheckResponse_SERVING
	if err := s.db.Ping(ctx); err != nil {
		s.logger.Warn("database ping failed", "err", err)
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", st)
}
