package repository

import (
	"context"

	"github.com/Domenick1991/railbooking/internal/domain"
)

// BookingRepository is the PNR registry. Bookings are never deleted.
type BookingRepository interface {
	// Create stores a new booking; domain.ErrDuplicatePNR if the PNR is taken.
	Create(ctx context.Context, booking *domain.Booking) error
	GetByPNR(ctx context.Context, pnr string) (*domain.Booking, error)
	// ApplyCancellation marks the given passengers cancelled with their refunds and
	// returns the refreshed booking. Passengers already cancelled are left alone.
	ApplyCancellation(ctx context.Context, pnr string, cancelled []domain.Passenger) (*domain.Booking, error)
	// ApplyAssignments moves passengers to their new seat assignments, matched by
	// allocation id, and returns the PNRs that changed.
	ApplyAssignments(ctx context.Context, assignments []domain.SeatAssignment) ([]string, error)
	// ListActive returns the bookings with at least one live passenger whose journey
	// date is on or after fromDOJ.
	ListActive(ctx context.Context, fromDOJ string) ([]domain.Booking, error)
}

func clone(b *domain.Booking) *domain.Booking {
	out := *b
	out.Passengers = make([]domain.Passenger, len(b.Passengers))
	copy(out.Passengers, b.Passengers)
	for i, p := range b.Passengers {
		if p.CancelledAt != nil {
			t := *p.CancelledAt
			out.Passengers[i].CancelledAt = &t
		}
	}
	out.Fare.Passengers = append([]domain.PassengerFare(nil), b.Fare.Passengers...)
	return &out
}
