package notify

import (
	"context"
	"testing"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/Domenick1991/railbooking/internal/kafka"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage(t *testing.T) {
	msg := Message(kafka.BookingEvent{
		Type:        kafka.EventPassengersCancelled,
		PNR:         "1234567890",
		TrainNumber: "12627",
		Status:      domain.PNRStatusPartiallyConfirmed,
		Passengers: []kafka.PassengerEvent{
			{ID: 1, Seat: "CANCELLED", Refund: "254.44"},
		},
	})
	assert.Equal(t, "PNR 1234567890: cancellation processed. P1 CANCELLED refund 254.44; Status: PARTIALLY_CONFIRMED", msg)

	created := Message(kafka.BookingEvent{Type: kafka.EventBookingCreated, PNR: "1", TrainNumber: "12627", DOJ: "2026-11-20",
		Status: domain.PNRStatusConfirmed, Passengers: []kafka.PassengerEvent{{ID: 1, Seat: "SL/1/LB"}}})
	assert.Equal(t, "PNR 1 booked on train 12627 for 2026-11-20. P1 SL/1/LB; Status: CONFIRMED", created)
}

func TestSender_Send(t *testing.T) {
	log, hook := test.NewNullLogger()
	sender := NewSender(log)

	err := sender.Send(context.Background(), kafka.BookingEvent{
		Type:   kafka.EventBookingCreated,
		PNR:    "1234567890",
		Mobile: "9876543210",
		Email:  "rider@example.com",
		Status: domain.PNRStatusConfirmed,
	})
	require.NoError(t, err)
	require.Len(t, hook.AllEntries(), 2)
	assert.Equal(t, "sms", hook.AllEntries()[0].Data["channel"])
	assert.Equal(t, "email", hook.AllEntries()[1].Data["channel"])

	hook.Reset()
	require.NoError(t, sender.Send(context.Background(), kafka.BookingEvent{PNR: "1"}))
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}
