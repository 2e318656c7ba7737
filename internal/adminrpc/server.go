// Package adminrpc runs the operational gRPC endpoint: health checking and
// server reflection for the catalog service.
package adminrpc

import (
	"context"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/signalsfoundry/orbit-visualizer/internal/logging"
	"github.com/signalsfoundry/orbit-visualizer/internal/observability"
)

// CatalogService is the health service name reported for the catalog.
const CatalogService = "orbit.catalog"

// Pinger reports whether the catalog's backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wraps a grpc.Server exposing grpc.health.v1 and reflection.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	pinger Pinger
	log    logging.Logger
}

// NewServer builds the admin server. collector may be nil.
func NewServer(pinger Pinger, log logging.Logger, collector *observability.Collector) *Server {
	if log == nil {
		log = logging.Noop()
	}
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			RequestIDUnaryServerInterceptor(log),
			collector.UnaryServerInterceptor(),
			StatusUnaryServerInterceptor(),
		),
	)

	hs := health.NewServer()
	hs.SetServingStatus(CatalogService, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	return &Server{
		grpc:   srv,
		health: hs,
		pinger: pinger,
		log:    log.With(logging.String("component", "adminrpc")),
	}
}

// GRPCServer exposes the underlying server for additional registrations.
func (s *Server) GRPCServer() *grpc.Server {
	return s.grpc
}

// CheckReadiness pings the store and updates the catalog health status.
func (s *Server) CheckReadiness(ctx context.Context) error {
	err := s.pinger.Ping(ctx)
	if err != nil {
		s.health.SetServingStatus(CatalogService, healthpb.HealthCheckResponse_NOT_SERVING)
		s.log.Warn(ctx, "catalog not ready", logging.Err(err))
		return err
	}
	s.health.SetServingStatus(CatalogService, healthpb.HealthCheckResponse_SERVING)
	return nil
}

// WatchReadiness re-checks readiness every interval until ctx is done.
func (s *Server) WatchReadiness(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	_ = s.CheckReadiness(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.CheckReadiness(ctx)
		}
	}
}

// Serve accepts connections on lis until Shutdown.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Info(context.Background(), "admin gRPC server listening", logging.String("addr", lis.Addr().String()))
	return s.grpc.Serve(lis)
}

// Shutdown reports NOT_SERVING for every service and stops gracefully,
// forcing the stop if ctx ends first.
func (s *Server) Shutdown(ctx context.Context) {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpc.Stop()
		<-done
	}
}
