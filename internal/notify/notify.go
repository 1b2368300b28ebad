// Package notify turns booking events into passenger messages. Delivery is a
// structured log line per channel; gateways plug in behind the same Sender.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/Domenick1991/railbooking/internal/kafka"
	"github.com/sirupsen/logrus"
)

type Sender struct {
	log logrus.FieldLogger
}

func NewSender(log logrus.FieldLogger) *Sender {
	return &Sender{log: log}
}

// Send delivers an SMS to the booking's mobile and, when present, an e-mail.
func (s *Sender) Send(ctx context.Context, event kafka.BookingEvent) error {
	if event.Mobile == "" && event.Email == "" {
		s.log.WithField("pnr", event.PNR).Warn("event has no contact, nothing sent")
		return nil
	}
	text := Message(event)

	if event.Mobile != "" {
		s.log.WithFields(logrus.Fields{
			"channel": "sms",
			"to":      event.Mobile,
			"pnr":     event.PNR,
			"event":   event.Type,
		}).Info(text)
	}
	if event.Email != "" {
		s.log.WithFields(logrus.Fields{
			"channel": "email",
			"to":      event.Email,
			"pnr":     event.PNR,
			"event":   event.Type,
		}).Info(text)
	}
	return nil
}

// Message renders the text sent for event.
func Message(event kafka.BookingEvent) string {
	var b strings.Builder
	switch event.Type {
	case kafka.EventBookingCreated:
		fmt.Fprintf(&b, "PNR %s booked on train %s for %s.", event.PNR, event.TrainNumber, event.DOJ)
	case kafka.EventPassengersCancelled:
		fmt.Fprintf(&b, "PNR %s: cancellation processed.", event.PNR)
	case kafka.EventPassengersPromoted:
		fmt.Fprintf(&b, "PNR %s: your booking status has improved.", event.PNR)
	default:
		fmt.Fprintf(&b, "PNR %s updated.", event.PNR)
	}
	for _, p := range event.Passengers {
		fmt.Fprintf(&b, " P%d %s", p.ID, p.Seat)
		if p.Refund != "" {
			fmt.Fprintf(&b, " refund %s", p.Refund)
		}
		b.WriteString(";")
	}
	fmt.Fprintf(&b, " Status: %s", event.Status)
	return b.String()
}
