package kafka

import (
	"time"

	"github.com/Domenick1991/railbooking/internal/domain"
)

const (
	EventBookingCreated      = "booking_created"
	EventPassengersCancelled = "passengers_cancelled"
	EventPassengersPromoted  = "passengers_promoted"
)

type PassengerEvent struct {
	ID     int               `json:"id"`
	Name   string            `json:"name"`
	Status domain.SeatStatus `json:"status"`
	Seat   string            `json:"seat"`
	Refund string            `json:"refund,omitempty"`
}

type BookingEvent struct {
	Type        string           `json:"type"`
	PNR         string           `json:"pnr"`
	TrainNumber string           `json:"train_number"`
	DOJ         string           `json:"doj"`
	Status      domain.PNRStatus `json:"status"`
	Mobile      string           `json:"mobile"`
	Email       string           `json:"email,omitempty"`
	Passengers  []PassengerEvent `json:"passengers"`
	OccurredAt  time.Time        `json:"occurred_at"`
}

// NewBookingEvent describes booking b. When ids is non-empty only those
// passengers are included.
func NewBookingEvent(eventType string, b *domain.Booking, ids ...int) BookingEvent {
	include := make(map[int]bool, len(ids))
	for _, id := range ids {
		include[id] = true
	}

	event := BookingEvent{
		Type:        eventType,
		PNR:         b.PNR,
		TrainNumber: b.TrainNumber,
		DOJ:         b.DOJ,
		Status:      b.Status,
		Mobile:      b.Contact.Mobile,
		Email:       b.Contact.Email,
		OccurredAt:  time.Now().UTC(),
	}
	for _, p := range b.Passengers {
		if len(include) > 0 && !include[p.ID] {
			continue
		}
		pe := PassengerEvent{ID: p.ID, Name: p.Name, Status: p.Status, Seat: p.Seat.String()}
		if p.Cancelled() {
			pe.Refund = p.Refund.StringFixed(2)
		}
		event.Passengers = append(event.Passengers, pe)
	}
	return event
}
