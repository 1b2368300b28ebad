package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Domenick1991/railbooking/internal/domain"
)

type passengerRef struct {
	pnr string
	id  int
}

// MemoryBookingRepository keeps bookings in process memory. It backs tests and
// single-node deployments without Postgres.
type MemoryBookingRepository struct {
	mu           sync.RWMutex
	bookings     map[string]*domain.Booking
	byAllocation map[string]passengerRef
	now          func() time.Time
}

func NewMemoryBookingRepository() *MemoryBookingRepository {
	return &MemoryBookingRepository{
		bookings:     make(map[string]*domain.Booking),
		byAllocation: make(map[string]passengerRef),
		now:          time.Now,
	}
}

func (r *MemoryBookingRepository) Create(_ context.Context, booking *domain.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bookings[booking.PNR]; ok {
		return fmt.Errorf("create booking %s: %w", booking.PNR, domain.ErrDuplicatePNR)
	}
	now := r.now()
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = now
	}
	booking.UpdatedAt = now

	stored := clone(booking)
	r.bookings[booking.PNR] = stored
	for _, p := range stored.Passengers {
		if p.Seat.AllocationID != "" {
			r.byAllocation[p.Seat.AllocationID] = passengerRef{pnr: stored.PNR, id: p.ID}
		}
	}
	return nil
}

func (r *MemoryBookingRepository) GetByPNR(_ context.Context, pnr string) (*domain.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bookings[pnr]
	if !ok {
		return nil, fmt.Errorf("pnr %s: %w", pnr, domain.ErrNotFound)
	}
	return clone(b), nil
}

func (r *MemoryBookingRepository) ApplyCancellation(_ context.Context, pnr string, cancelled []domain.Passenger) (*domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.bookings[pnr]
	if !ok {
		return nil, fmt.Errorf("pnr %s: %w", pnr, domain.ErrNotFound)
	}
	for _, p := range cancelled {
		dst := current.Passenger(p.ID)
		if dst == nil || dst.Cancelled() {
			continue
		}
		dst.Status = domain.SeatStatusCancelled
		dst.Seat.Status = domain.SeatStatusCancelled
		dst.Refund = p.Refund
		at := r.now()
		if p.CancelledAt != nil {
			at = *p.CancelledAt
		}
		dst.CancelledAt = &at
	}
	current.RefreshStatus()
	current.UpdatedAt = r.now()
	return clone(current), nil
}

func (r *MemoryBookingRepository) ApplyAssignments(_ context.Context, assignments []domain.SeatAssignment) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := make(map[string]bool)
	for _, a := range assignments {
		ref, ok := r.byAllocation[a.AllocationID]
		if !ok {
			continue
		}
		b := r.bookings[ref.pnr]
		p := b.Passenger(ref.id)
		if p == nil || p.Cancelled() {
			continue
		}
		p.Seat = a
		p.Status = a.Status
		changed[ref.pnr] = true
	}

	pnrs := make([]string, 0, len(changed))
	now := r.now()
	for pnr := range changed {
		b := r.bookings[pnr]
		b.RefreshStatus()
		b.UpdatedAt = now
		pnrs = append(pnrs, pnr)
	}
	sort.Strings(pnrs)
	return pnrs, nil
}

func (r *MemoryBookingRepository) ListActive(_ context.Context, fromDOJ string) ([]domain.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.Booking
	for _, b := range r.bookings {
		if b.DOJ < fromDOJ || b.Status == domain.PNRStatusCancelled {
			continue
		}
		out = append(out, *clone(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

var _ BookingRepository = (*MemoryBookingRepository)(nil)
