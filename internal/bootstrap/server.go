package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Domenick1991/railbooking/api"
	"github.com/Domenick1991/railbooking/config"
	reservationgrpc "github.com/Domenick1991/railbooking/internal/api/reservation_grpc"
	"github.com/Domenick1991/railbooking/internal/service/booking"
	"github.com/Domenick1991/railbooking/internal/service/cancellation"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

const openAPIPath = "/docs/openapi.json"

type Services struct {
	Bookings     booking.BookingUseCase
	Cancellation cancellation.CancellationUseCase
	HealthChecks map[string]api.HealthCheck
}

type Servers struct {
	grpcServer *grpc.Server
	httpServer *http.Server
}

// Run starts the gRPC and HTTP (gin + swagger) servers and blocks until ctx is
// canceled or a server fails.
func Run(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, svc Services) error {
	s, err := newServers(cfg, log, svc)
	if err != nil {
		return err
	}

	lis, err := net.Listen("tcp", cfg.GRPC.Address)
	if err != nil {
		return fmt.Errorf("listen gRPC %s: %w", cfg.GRPC.Address, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("address", cfg.GRPC.Address).Info("grpc server listening")
		return s.grpcServer.Serve(lis)
	})
	g.Go(func() error {
		log.WithField("address", cfg.HTTP.Address).Info("http server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Booking.ShutdownTimeoutSeconds)*time.Second)
		defer cancel()

		s.grpcServer.GracefulStop()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		log.Info("servers stopped")
		return nil
	})
	return g.Wait()
}

func newServers(cfg *config.Config, log logrus.FieldLogger, svc Services) (*Servers, error) {
	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(reservationgrpc.LoggingInterceptor(log)))
	reservationServer, err := reservationgrpc.NewServer(svc.Bookings, svc.Cancellation)
	if err != nil {
		return nil, fmt.Errorf("reservation grpc server: %w", err)
	}
	reservationgrpc.RegisterReservationServer(grpcSrv, reservationServer)

	router, err := NewRouter(cfg.HTTP, log, svc)
	if err != nil {
		return nil, err
	}

	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Servers{
		grpcServer: grpcSrv,
		httpServer: httpSrv,
	}, nil
}

// NewRouter builds the gin engine serving /api/v1, /health and the API docs.
func NewRouter(cfg config.HTTPConfig, log logrus.FieldLogger, svc Services) (*gin.Engine, error) {
	if err := api.RegisterBindingValidations(); err != nil {
		return nil, fmt.Errorf("register validations: %w", err)
	}

	engine := gin.New()
	engine.Use(api.RequestLogger(log), gin.Recovery())
	engine.Use(cors.New(corsConfig(cfg.CORSOrigins)))

	api.NewHealthHandler(svc.HealthChecks).Register(engine)

	v1 := engine.Group("/api/v1")
	api.NewBookingHandler(svc.Bookings, svc.Cancellation).Register(v1)
	api.NewSessionHandler(svc.Bookings).Register(v1.Group("/sessions"))

	if cfg.SwaggerDir != "" {
		engine.StaticFile(openAPIPath, cfg.SwaggerDir+"/openapi.json")
	} else {
		engine.GET(openAPIPath, func(c *gin.Context) {
			c.Data(http.StatusOK, "application/json", api.OpenAPI)
		})
	}
	engine.GET("/swagger/*any", gin.WrapH(httpSwagger.Handler(httpSwagger.URL(openAPIPath))))

	return engine, nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Length", "Content-Type", api.IdempotencyKeyHeader, api.RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", api.RequestIDHeader, "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}
