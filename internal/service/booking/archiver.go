package booking

import (
	"context"
	"time"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/sirupsen/logrus"
)

type PoolArchiver interface {
	Archive(ctx context.Context, before string) ([]domain.PoolKey, error)
}

// Archiver periodically closes the seat pools of journeys that are over.
type Archiver struct {
	pools    PoolArchiver
	interval time.Duration
	location *time.Location
	now      func() time.Time
	log      logrus.FieldLogger
	done     chan struct{}
}

func NewArchiver(pools PoolArchiver, interval time.Duration, location *time.Location, log logrus.FieldLogger) *Archiver {
	if interval <= 0 {
		interval = time.Hour
	}
	if location == nil {
		location = time.UTC
	}
	return &Archiver{
		pools:    pools,
		interval: interval,
		location: location,
		now:      time.Now,
		log:      log,
		done:     make(chan struct{}),
	}
}

func (a *Archiver) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()

		a.log.WithField("interval", a.interval.String()).Info("archive sweeper started")
		a.RunOnce(ctx)
		for {
			select {
			case <-ticker.C:
				a.RunOnce(ctx)
			case <-a.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (a *Archiver) Stop() {
	close(a.done)
}

// RunOnce archives every pool whose journey date is before today and returns
// how many were closed.
func (a *Archiver) RunOnce(ctx context.Context) int {
	today := a.now().In(a.location).Format(dateLayout)
	archived, err := a.pools.Archive(ctx, today)
	if err != nil {
		a.log.WithError(err).Error("archive seat pools")
	}
	if len(archived) > 0 {
		a.log.WithField("pools", len(archived)).Info("archived past seat pools")
	}
	return len(archived)
}
