package reservation_grpc

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/Domenick1991/railbooking/api"
	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/Domenick1991/railbooking/internal/logger"
	"github.com/Domenick1991/railbooking/internal/service/booking"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type MockBookingUseCase struct {
	mock.Mock
	booking.BookingUseCase
}

func (m *MockBookingUseCase) Quote(ctx context.Context, q booking.FareQuery) (domain.FareBreakdown, error) {
	args := m.Called(ctx, q)
	return args.Get(0).(domain.FareBreakdown), args.Error(1)
}

func (m *MockBookingUseCase) Book(ctx context.Context, input booking.BookInput) (*domain.Booking, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingUseCase) GetStatus(ctx context.Context, pnr string) (*domain.Booking, error) {
	args := m.Called(ctx, pnr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

type MockCancellationUseCase struct {
	mock.Mock
}

func (m *MockCancellationUseCase) CancelPassengers(ctx context.Context, pnr string, passengerIDs []int) ([]domain.CancellationResult, error) {
	args := m.Called(ctx, pnr, passengerIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CancellationResult), args.Error(1)
}

func newTestClient(t *testing.T, bookings *MockBookingUseCase, cancel *MockCancellationUseCase) *Client {
	t.Helper()

	srv, err := NewServer(bookings, cancel)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer(grpc.UnaryInterceptor(LoggingInterceptor(logger.Discard())))
	RegisterReservationServer(s, srv)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return NewClient(conn)
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestServer_ComputeFare(t *testing.T) {
	bookings := &MockBookingUseCase{}
	client := newTestClient(t, bookings, &MockCancellationUseCase{})

	req := &ComputeFareRequest{CoachCode: "SL", QuotaCode: "GN", DistanceKM: 500, Passengers: []api.PassengerRequest{{Name: "Asha", Age: 30, Gender: "F"}}}
	bookings.On("Quote", mock.Anything, req.Query()).Return(domain.FareBreakdown{
		CoachCode: "SL", QuotaCode: "GN", DistanceKM: 500, TotalFare: decimal.RequireFromString("619.5"),
	}, nil)

	resp, err := client.ComputeFare(testContext(t), req)
	require.NoError(t, err)
	assert.Equal(t, "619.50", resp.TotalFare)
	assert.Equal(t, 500, resp.DistanceKM)
	bookings.AssertExpectations(t)
}

func TestServer_BookPassesIdempotencyKey(t *testing.T) {
	bookings := &MockBookingUseCase{}
	client := newTestClient(t, bookings, &MockCancellationUseCase{})

	req := &BookRequest{
		BookRequest: api.BookRequest{
			BookingRequest: api.BookingRequest{
				TrainNumber: "10001", Source: "AAA", Destination: "BBB", DOJ: "2026-11-20",
				CoachCode: "SL", QuotaCode: "GN",
				Passengers: []api.PassengerRequest{{Name: "Asha", Age: 30, Gender: "F"}},
				Contact:    api.ContactRequest{Mobile: "9876543210"},
			},
			Verified: true,
		},
		IdempotencyKey: "key-7",
	}
	expected := booking.BookInput{BookingRequest: req.Domain(), Verified: true, IdempotencyKey: "key-7"}
	bookings.On("Book", mock.Anything, expected).Return(&domain.Booking{PNR: "1234567890", Status: domain.PNRStatusRAC}, nil)

	resp, err := client.Book(testContext(t), req)
	require.NoError(t, err)
	assert.Equal(t, "1234567890", resp.PNR)
	assert.Equal(t, string(domain.PNRStatusRAC), resp.Status)
	bookings.AssertExpectations(t)
}

func TestServer_BookRejectsMalformedInput(t *testing.T) {
	bookings := &MockBookingUseCase{}
	client := newTestClient(t, bookings, &MockCancellationUseCase{})

	_, err := client.Book(testContext(t), &BookRequest{BookRequest: api.BookRequest{BookingRequest: api.BookingRequest{
		TrainNumber: "10001", Source: "AAA", Destination: "BBB", DOJ: "tomorrow", CoachCode: "SL", QuotaCode: "GN",
	}}})
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	bookings.AssertNotCalled(t, "Book", mock.Anything, mock.Anything)
}

func TestServer_ErrorCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"not found", fmt.Errorf("pnr: %w", domain.ErrNotFound), codes.NotFound},
		{"archived", domain.ErrPoolArchived, codes.FailedPrecondition},
		{"busy", domain.ErrConcurrencyTimeout, codes.Unavailable},
		{"other", fmt.Errorf("boom"), codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bookings := &MockBookingUseCase{}
			client := newTestClient(t, bookings, &MockCancellationUseCase{})
			bookings.On("GetStatus", mock.Anything, "1234567890").Return(nil, tt.err)

			_, err := client.GetStatus(testContext(t), &GetStatusRequest{PNR: "1234567890"})
			assert.Equal(t, tt.want, status.Code(err))
		})
	}
}

func TestServer_CancelPassengers(t *testing.T) {
	cancel := &MockCancellationUseCase{}
	client := newTestClient(t, &MockBookingUseCase{}, cancel)

	cancel.On("CancelPassengers", mock.Anything, "1234567890", []int{1, 2}).Return([]domain.CancellationResult{
		{PassengerID: 1, PreviousStatus: domain.SeatStatusConfirmed, FareShare: decimal.RequireFromString("604.75"), RefundPercent: 50, Refund: decimal.RequireFromString("302.38")},
		{PassengerID: 2, PreviousStatus: domain.SeatStatusRAC, FareShare: decimal.RequireFromString("604.75"), RefundPercent: 50, Refund: decimal.RequireFromString("302.37")},
	}, nil)

	resp, err := client.CancelPassengers(testContext(t), &CancelPassengersRequest{PNR: "1234567890", PassengerIDs: []int{1, 2}})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "302.38", resp.Results[0].Refund)
	assert.Equal(t, "RAC", resp.Results[1].PreviousStatus)

	_, err = client.CancelPassengers(testContext(t), &CancelPassengersRequest{PNR: ""})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	cancel.AssertExpectations(t)
}
