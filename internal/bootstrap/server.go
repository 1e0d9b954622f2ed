package bootstrap

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/Domenick1991/reservations/config"
	reservationsapi "github.com/Domenick1991/reservations/internal/api/reservations_service_api"
	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type Servers struct {
	grpcServer      *grpc.Server
	health          *health.Server
	httpServer      *http.Server
	grpcAddress     string
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

// NewGRPCServer registers the reservation service and the standard health service.
func NewGRPCServer(svc reservationsapi.ReservationServiceServer) (*grpc.Server, *health.Server) {
	grpcSrv := grpc.NewServer()
	reservationsapi.RegisterReservationServiceServer(grpcSrv, svc)

	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)
	return grpcSrv, healthSrv
}

func NewServers(cfg config.Config, engine *gin.Engine, grpcSrv *grpc.Server, healthSrv *health.Server, logger *slog.Logger) *Servers {
	return &Servers{
		grpcServer: grpcSrv,
		health:     healthSrv,
		httpServer: &http.Server{
			Addr:              cfg.HTTP.Address,
			Handler:           engine,
			ReadHeaderTimeout: 5 * time.Second,
		},
		grpcAddress:     cfg.GRPC.Address,
		shutdownTimeout: cfg.HTTP.ShutdownTimeout,
		logger:          logger,
	}
}

// Run starts gRPC and HTTP servers and blocks until ctx is canceled or a server fails.
func (s *Servers) Run(ctx context.Context) error {
	errCh, err := s.Start()
	if err != nil {
		return err
	}

	select {
	case err := <-errCh:
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		_ = s.Stop(shutdownCtx)
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	}
}

// Start binds both listeners and serves in the background. The returned
// channel receives the first serve error.
func (s *Servers) Start() (<-chan error, error) {
	errCh := make(chan error, 2)

	grpcLis, err := net.Listen("tcp", s.grpcAddress)
	if err != nil {
		return nil, errors.Wrapf(err, "listen gRPC %s", s.grpcAddress)
	}
	httpLis, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		_ = grpcLis.Close()
		return nil, errors.Wrapf(err, "listen HTTP %s", s.httpServer.Addr)
	}

	s.health.SetServingStatus(reservationsapi.ServiceName, healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	go func() {
		if err := s.grpcServer.Serve(grpcLis); err != nil {
			errCh <- errors.Wrap(err, "serve gRPC")
		}
	}()
	go func() {
		if err := s.httpServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- errors.Wrap(err, "serve HTTP")
		}
	}()

	s.logger.Info("servers started", "http", s.httpServer.Addr, "grpc", s.grpcAddress, "mode", gin.Mode())
	return errCh, nil
}

// Stop marks the service not serving, then drains HTTP and gRPC within ctx.
func (s *Servers) Stop(ctx context.Context) error {
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	httpErr := s.httpServer.Shutdown(ctx)

	select {
	case <-stopped:
	case <-ctx.Done():
		s.grpcServer.Stop()
	}

	s.logger.Info("servers stopped")
	if httpErr != nil {
		return errors.Wrap(httpErr, "shutdown http server")
	}
	return nil
}
