package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Domenick1991/railbooking/api"
	"github.com/Domenick1991/railbooking/config"
	"github.com/Domenick1991/railbooking/internal/bootstrap"
	"github.com/Domenick1991/railbooking/internal/cache"
	"github.com/Domenick1991/railbooking/internal/fare"
	"github.com/Domenick1991/railbooking/internal/inventory"
	"github.com/Domenick1991/railbooking/internal/kafka"
	"github.com/Domenick1991/railbooking/internal/logger"
	"github.com/Domenick1991/railbooking/internal/reference"
	"github.com/Domenick1991/railbooking/internal/repository"
	"github.com/Domenick1991/railbooking/internal/service/booking"
	"github.com/Domenick1991/railbooking/internal/service/cancellation"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const publishAttempts = 3

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ref, err := reference.Load(cfg.ReferencePath)
	if err != nil {
		log.Fatalf("load reference data: %v", err)
	}

	calculator, err := newCalculator(cfg.Fare, ref)
	if err != nil {
		log.Fatalf("fare config: %v", err)
	}

	store := inventory.NewStore(ref, inventory.WithLockTimeout(time.Duration(cfg.Inventory.LockTimeoutMillis)*time.Millisecond))
	location := cfg.Booking.Location()
	checks := map[string]api.HealthCheck{}

	var bookingRepo repository.BookingRepository
	if cfg.Database.Enabled() {
		pool, err := pgxpool.New(ctx, cfg.Database.DSN())
		if err != nil {
			log.Fatalf("connect postgres: %v", err)
		}
		defer pool.Close()
		if err := repository.Migrate(ctx, pool); err != nil {
			log.Fatalf("migrate postgres: %v", err)
		}
		bookingRepo = repository.NewBookingRepository(pool)
		checks["postgres"] = pool.Ping
	} else {
		log.Warn("database host not configured, PNR registry is in memory")
		bookingRepo = repository.NewMemoryBookingRepository()
	}

	bookingOpts := []booking.BookingServiceOption{
		booking.WithLogger(log),
		booking.WithLocation(location),
		booking.WithAdvanceDays(cfg.Booking.AdvanceDays),
		booking.WithSessionTTL(time.Duration(cfg.Booking.SessionTTLMinutes) * time.Minute),
		booking.WithSubmissionTTL(time.Duration(cfg.Booking.SubmissionTTLHours) * time.Hour),
	}
	cancelOpts := []cancellation.Option{
		cancellation.WithLogger(log),
	}

	if cfg.Redis.Enabled() {
		redisCache := cache.NewRedisCache(cfg.Redis, time.Duration(cfg.Booking.PNRCacheTTLSeconds)*time.Second)
		defer redisCache.Close()
		if err := redisCache.Ping(ctx); err != nil {
			log.WithError(err).Warn("redis not reachable at startup")
		}
		bookingOpts = append(bookingOpts,
			booking.WithCache(redisCache),
			booking.WithSessionStore(redisCache),
			booking.WithSubmissionGuard(redisCache),
		)
		cancelOpts = append(cancelOpts, cancellation.WithCache(redisCache))
		checks["redis"] = redisCache.Ping
	}

	if cfg.Kafka.Enabled() {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, log)
		defer producer.Close()
		publisher := kafka.Retrying{Producer: producer, Attempts: publishAttempts}
		bookingOpts = append(bookingOpts,
			booking.WithProducer(publisher, cfg.Kafka.BookingEventsTopic),
			booking.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
		)
		cancelOpts = append(cancelOpts,
			cancellation.WithProducer(publisher, cfg.Kafka.BookingEventsTopic),
			cancellation.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
		)
		checks["kafka"] = producer.CheckConnection
	}

	bookingService := booking.NewBookingService(ref, calculator, store, bookingRepo, bookingOpts...)
	cancellationService := cancellation.NewCancellationService(bookingRepo, store, cancelOpts...)

	today := time.Now().In(location).Format("2006-01-02")
	if err := booking.Rebuild(ctx, bookingRepo, store, today, log); err != nil {
		log.WithError(err).Error("seat inventory rebuild incomplete")
	}

	archiver := booking.NewArchiver(store, time.Duration(cfg.Worker.ArchiveSweepMinutes)*time.Minute, location, log)
	archiver.Start(ctx)
	defer archiver.Stop()

	if err := bootstrap.Run(ctx, cfg, log, bootstrap.Services{
		Bookings:     bookingService,
		Cancellation: cancellationService,
		HealthChecks: checks,
	}); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func newCalculator(cfg config.FareConfig, ref *reference.Data) (*fare.Calculator, error) {
	taxRate, err := decimal.NewFromString(cfg.TaxRate)
	if err != nil {
		return nil, err
	}
	minimum, err := decimal.NewFromString(cfg.MinimumFare)
	if err != nil {
		return nil, err
	}
	return fare.NewCalculator(ref, fare.WithTaxRate(taxRate), fare.WithMinimumFare(minimum)), nil
}
