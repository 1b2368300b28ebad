package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/Domenick1991/railbooking/internal/repository"
	"github.com/sirupsen/logrus"
)

type Restorer interface {
	Restore(ctx context.Context, key domain.PoolKey, assignments []domain.SeatAssignment) ([]domain.SeatAssignment, error)
}

// Rebuild reloads the seat inventory from the registry for every journey from
// today on. Passengers the settled pools moved are written back to the registry.
func Rebuild(ctx context.Context, bookings repository.BookingRepository, inv Restorer, fromDOJ string, log logrus.FieldLogger) error {
	active, err := bookings.ListActive(ctx, fromDOJ)
	if err != nil {
		return fmt.Errorf("list active bookings: %w", err)
	}

	pools := make(map[domain.PoolKey][]domain.SeatAssignment)
	var order []domain.PoolKey
	for i := range active {
		b := &active[i]
		key := b.PoolKey()
		if _, ok := pools[key]; !ok {
			order = append(order, key)
		}
		for _, p := range b.Passengers {
			if !p.Cancelled() && p.Seat.AllocationID != "" {
				pools[key] = append(pools[key], p.Seat)
			}
		}
	}

	var errs []error
	var moved []domain.SeatAssignment
	for _, key := range order {
		promoted, err := inv.Restore(ctx, key, pools[key])
		if err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", key, err))
		}
		moved = append(moved, promoted...)
	}
	if len(moved) > 0 {
		if _, err := bookings.ApplyAssignments(ctx, moved); err != nil {
			errs = append(errs, fmt.Errorf("record settled assignments: %w", err))
		}
	}

	log.WithFields(logrus.Fields{
		"bookings": len(active),
		"pools":    len(order),
		"settled":  len(moved),
	}).Info("seat inventory rebuilt")
	return errors.Join(errs...)
}
