// Package cancellation cancels passengers of a PNR, computes their refunds and
// hands freed seats back to the inventory.
package cancellation

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/Domenick1991/railbooking/internal/inventory"
	"github.com/Domenick1991/railbooking/internal/kafka"
	"github.com/Domenick1991/railbooking/internal/logger"
	"github.com/Domenick1991/railbooking/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

type CancellationUseCase interface {
	CancelPassengers(ctx context.Context, pnr string, passengerIDs []int) ([]domain.CancellationResult, error)
}

type Inventory interface {
	Release(ctx context.Context, key domain.PoolKey, allocationIDs []string) (inventory.ReleaseResult, error)
	Assignments(ctx context.Context, key domain.PoolKey, allocationIDs []string) (map[string]domain.SeatAssignment, error)
}

const pnrLockStripes = 64

type Cache interface {
	InvalidateBookings(ctx context.Context, pnrs ...string) error
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type CancellationService struct {
	bookings  repository.BookingRepository
	inventory Inventory
	cache     Cache
	producer  Producer
	topic     string
	notify    string
	log       logrus.FieldLogger
	now       func() time.Time

	locks [pnrLockStripes]*semaphore.Weighted

	// unrecorded holds allocation ids, per PNR, of promotions the registry missed.
	mu         sync.Mutex
	unrecorded map[string][]string
}

type Option func(*CancellationService)

func WithCache(cache Cache) Option {
	return func(s *CancellationService) {
		s.cache = cache
	}
}

func WithProducer(producer Producer, topic string) Option {
	return func(s *CancellationService) {
		s.producer = producer
		s.topic = topic
	}
}

// WithNotificationsTopic also sends every event to the topic the notification
// worker reads.
func WithNotificationsTopic(topic string) Option {
	return func(s *CancellationService) {
		s.notify = topic
	}
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(s *CancellationService) {
		s.log = log
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *CancellationService) {
		s.now = now
	}
}

func NewCancellationService(bookings repository.BookingRepository, inv Inventory, opts ...Option) *CancellationService {
	s := &CancellationService{
		bookings:   bookings,
		inventory:  inv,
		log:        logrus.StandardLogger(),
		now:        time.Now,
		unrecorded: make(map[string][]string),
	}
	for i := range s.locks {
		s.locks[i] = semaphore.NewWeighted(1)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CancelPassengers cancels the given passengers of pnr, or every passenger when
// passengerIDs is empty. Passengers already cancelled are skipped, so a fully
// cancelled PNR yields an empty result.
func (s *CancellationService) CancelPassengers(ctx context.Context, pnr string, passengerIDs []int) ([]domain.CancellationResult, error) {
	log := logger.FromContext(ctx, s.log).WithField("pnr", pnr)

	unlock, err := s.lockPNR(ctx, pnr)
	if err != nil {
		return nil, err
	}
	defer unlock()

	booking, err := s.bookings.GetByPNR(ctx, pnr)
	if err != nil {
		return nil, err
	}
	selected, err := selectPassengers(booking, passengerIDs)
	if err != nil {
		return nil, err
	}
	key := booking.PoolKey()
	// Seats are gone from the inventory once released; the registry must catch up
	// even if the caller walks away.
	durable := context.WithoutCancel(ctx)

	results := []domain.CancellationResult{}
	if len(selected) == 0 {
		if promoted := s.recordPromotions(durable, log, pnr, key, nil); len(promoted) > 0 {
			s.invalidate(ctx, log, promoted)
		}
		return results, nil
	}

	now := s.now()
	percent := RefundPercent(booking.DepartureAt.Sub(now))
	shares := fareShares(booking)

	released, err := s.release(ctx, key, selected)
	if err != nil {
		return nil, err
	}

	// Only passengers whose seat this call released are refunded.
	var cancelled []domain.Passenger
	var weights []decimal.Decimal
	shareSum := decimal.Zero
	for _, p := range selected {
		if _, ok := released.before[p.Seat.AllocationID]; !ok {
			continue
		}
		cancelled = append(cancelled, p)
		weights = append(weights, shares[p.ID])
		shareSum = shareSum.Add(shares[p.ID])
	}
	if len(cancelled) == 0 {
		return results, nil
	}

	refundTotal := shareSum.Mul(decimal.NewFromInt(int64(percent))).Div(decimal.NewFromInt(100)).Round(2)
	refunds := allocate(refundTotal, weights)
	for i := range cancelled {
		p := &cancelled[i]
		previous := released.before[p.Seat.AllocationID].Status
		p.Refund = refunds[i]
		p.CancelledAt = &now
		results = append(results, domain.CancellationResult{
			PassengerID:    p.ID,
			PreviousStatus: previous,
			FareShare:      shares[p.ID],
			RefundPercent:  percent,
			Refund:         refunds[i],
		})
	}

	updated, err := s.bookings.ApplyCancellation(durable, pnr, cancelled)
	if err != nil {
		s.keepUnrecorded(pnr, released.promotions)
		log.WithError(err).Error("seats released but cancellation not recorded")
		return nil, fmt.Errorf("record cancellation of %s: %w", pnr, err)
	}

	promotedPNRs := s.recordPromotions(durable, log, pnr, key, released.promotions)
	s.invalidate(ctx, log, append([]string{pnr}, promotedPNRs...))

	ids := make([]int, len(cancelled))
	for i, p := range cancelled {
		ids[i] = p.ID
	}
	s.publish(ctx, log, kafka.NewBookingEvent(kafka.EventPassengersCancelled, updated, ids...))
	for _, other := range promotedPNRs {
		if other == pnr {
			continue
		}
		promoted, err := s.bookings.GetByPNR(ctx, other)
		if err != nil {
			log.WithError(err).WithField("promoted_pnr", other).Warn("load promoted booking")
			continue
		}
		s.publish(ctx, log, kafka.NewBookingEvent(kafka.EventPassengersPromoted, promoted))
	}

	log.WithFields(logrus.Fields{
		"cancelled":      len(cancelled),
		"refund_percent": percent,
		"refund":         refundTotal.StringFixed(2),
		"promoted_pnrs":  len(promotedPNRs),
	}).Info("passengers cancelled")
	return results, nil
}

// lockPNR serializes cancellations of one PNR. PNRs share a fixed set of
// stripes, so unrelated PNRs may occasionally wait on each other.
func (s *CancellationService) lockPNR(ctx context.Context, pnr string) (func(), error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(pnr))
	lock := s.locks[h.Sum32()%pnrLockStripes]
	if err := lock.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { lock.Release(1) }, nil
}

type releaseOutcome struct {
	before     map[string]domain.SeatAssignment
	promotions []domain.SeatAssignment
}

// release frees the seats of the selected passengers. A passenger the registry
// still shows active but whose seat the inventory already freed was released by
// an earlier call that failed to record it, and is treated as released now.
func (s *CancellationService) release(ctx context.Context, key domain.PoolKey, selected []domain.Passenger) (releaseOutcome, error) {
	out := releaseOutcome{before: make(map[string]domain.SeatAssignment, len(selected))}

	allocationIDs := make([]string, 0, len(selected))
	for _, p := range selected {
		allocationIDs = append(allocationIDs, p.Seat.AllocationID)
	}
	current, err := s.inventory.Assignments(ctx, key, allocationIDs)
	if err != nil {
		return out, err
	}

	var pending []string
	for _, p := range selected {
		id := p.Seat.AllocationID
		if a, ok := current[id]; ok && a.Status == domain.SeatStatusCancelled {
			out.before[id] = p.Seat
			continue
		}
		pending = append(pending, id)
	}
	if len(pending) == 0 {
		return out, nil
	}

	res, err := s.inventory.Release(ctx, key, pending)
	switch {
	case errors.Is(err, domain.ErrPoolArchived):
		// The journey is over; there is nobody left to promote.
		for _, id := range pending {
			if a, ok := current[id]; ok {
				out.before[id] = a
			}
		}
		return out, nil
	case err != nil:
		return out, err
	}
	for _, a := range res.Released {
		out.before[a.AllocationID] = a
	}
	out.promotions = res.Promotions
	return out, nil
}

// recordPromotions writes promotions to the registry together with any left
// unrecorded by an earlier call for the same PNR. Those are re-read from the
// inventory so a later move is not overwritten by a stale one.
func (s *CancellationService) recordPromotions(ctx context.Context, log logrus.FieldLogger, pnr string, key domain.PoolKey, promotions []domain.SeatAssignment) []string {
	if ids := s.takeUnrecorded(pnr); len(ids) > 0 {
		current, err := s.inventory.Assignments(ctx, key, ids)
		if err != nil {
			s.unrecordedIDs(pnr, ids)
			log.WithError(err).Warn("read unrecorded promotions")
		}
		for _, a := range current {
			promotions = append(promotions, a)
		}
	}
	if len(promotions) == 0 {
		return nil
	}

	pnrs, err := s.bookings.ApplyAssignments(ctx, promotions)
	if err != nil {
		s.keepUnrecorded(pnr, promotions)
		log.WithError(err).WithField("promotions", len(promotions)).Error("promotions not recorded")
		return nil
	}
	return pnrs
}

func (s *CancellationService) keepUnrecorded(pnr string, promotions []domain.SeatAssignment) {
	ids := make([]string, len(promotions))
	for i, a := range promotions {
		ids[i] = a.AllocationID
	}
	s.unrecordedIDs(pnr, ids)
}

func (s *CancellationService) unrecordedIDs(pnr string, ids []string) {
	if len(ids) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unrecorded[pnr] = append(s.unrecorded[pnr], ids...)
}

func (s *CancellationService) takeUnrecorded(pnr string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.unrecorded[pnr]
	delete(s.unrecorded, pnr)
	return ids
}

func (s *CancellationService) invalidate(ctx context.Context, log logrus.FieldLogger, pnrs []string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateBookings(ctx, pnrs...); err != nil {
		log.WithError(err).Warn("invalidate cached bookings")
	}
}

func (s *CancellationService) publish(ctx context.Context, log logrus.FieldLogger, event kafka.BookingEvent) {
	if s.producer == nil || s.topic == "" {
		return
	}
	if err := s.producer.Publish(ctx, s.topic, event.PNR, event); err != nil {
		log.WithError(err).WithField("event", event.Type).Warn("publish event")
		return
	}
	if s.notify != "" {
		if err := s.producer.Publish(ctx, s.notify, event.PNR, event); err != nil {
			log.WithError(err).WithField("event", event.Type).Warn("publish notification")
		}
	}
}

// selectPassengers resolves the requested ids to the passengers that are still
// active. An empty id list selects every passenger.
func selectPassengers(b *domain.Booking, ids []int) ([]domain.Passenger, error) {
	if len(ids) == 0 {
		var out []domain.Passenger
		for _, p := range b.Passengers {
			if !p.Cancelled() {
				out = append(out, p)
			}
		}
		return out, nil
	}

	want := make(map[int]bool, len(ids))
	for _, id := range ids {
		if b.Passenger(id) == nil {
			return nil, domain.Invalid("passenger_ids", nil, "pnr %s has no passenger %d", b.PNR, id)
		}
		want[id] = true
	}
	var out []domain.Passenger
	for _, p := range b.Passengers {
		if want[p.ID] && !p.Cancelled() {
			out = append(out, p)
		}
	}
	return out, nil
}

// fareShares splits the booking total across all passengers in proportion to
// their individual fares.
func fareShares(b *domain.Booking) map[int]decimal.Decimal {
	weights := make([]decimal.Decimal, len(b.Passengers))
	for i, p := range b.Passengers {
		weights[i] = p.Fare
	}
	parts := allocate(b.Fare.TotalFare, weights)

	out := make(map[int]decimal.Decimal, len(parts))
	for i, p := range b.Passengers {
		out[p.ID] = parts[i]
	}
	return out
}

var _ CancellationUseCase = (*CancellationService)(nil)
