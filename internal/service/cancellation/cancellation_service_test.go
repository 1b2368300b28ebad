package cancellation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/Domenick1991/railbooking/internal/inventory"
	"github.com/Domenick1991/railbooking/internal/kafka"
	"github.com/Domenick1991/railbooking/internal/logger"
	"github.com/Domenick1991/railbooking/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockCache struct {
	mock.Mock
}

func (m *MockCache) InvalidateBookings(ctx context.Context, pnrs ...string) error {
	args := m.Called(ctx, pnrs)
	return args.Error(0)
}

type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) Publish(ctx context.Context, topic, key string, value interface{}) error {
	args := m.Called(ctx, topic, key, value)
	return args.Error(0)
}

// flakyRepo fails the first writes of each kind.
type flakyRepo struct {
	*repository.MemoryBookingRepository
	cancelFailures     int
	assignmentFailures int
}

func (r *flakyRepo) ApplyCancellation(ctx context.Context, pnr string, cancelled []domain.Passenger) (*domain.Booking, error) {
	if r.cancelFailures > 0 {
		r.cancelFailures--
		return nil, errors.New("db down")
	}
	return r.MemoryBookingRepository.ApplyCancellation(ctx, pnr, cancelled)
}

func (r *flakyRepo) ApplyAssignments(ctx context.Context, assignments []domain.SeatAssignment) ([]string, error) {
	if r.assignmentFailures > 0 {
		r.assignmentFailures--
		return nil, errors.New("db down")
	}
	return r.MemoryBookingRepository.ApplyAssignments(ctx, assignments)
}

type testCatalog struct {
	capacity domain.PoolCapacity
}

func (c testCatalog) PoolCapacity(domain.PoolKey) (domain.PoolCapacity, error) {
	return c.capacity, nil
}

func (testCatalog) Berth(string, int) domain.BerthType { return domain.BerthLower }

func (testCatalog) RACBerth(string) domain.BerthType { return domain.BerthSideLower }

var (
	testNow = time.Date(2026, 11, 10, 9, 0, 0, 0, time.UTC)
	testKey = domain.PoolKey{TrainNumber: "12627", DOJ: "2026-11-20", CoachCode: "SL", QuotaCode: "GN"}
)

type fixture struct {
	store *inventory.Store
	repo  *repository.MemoryBookingRepository
}

func newFixture(capacity domain.PoolCapacity) *fixture {
	return &fixture{
		store: inventory.NewStore(testCatalog{capacity: capacity}),
		repo:  repository.NewMemoryBookingRepository(),
	}
}

// book reserves seats for the given individual fares and records the booking the
// way the booking service does.
func (f *fixture) book(t *testing.T, pnr string, departure time.Time, total string, fares ...string) *domain.Booking {
	t.Helper()
	seats, err := f.store.Reserve(context.Background(), testKey, len(fares))
	require.NoError(t, err)

	b := &domain.Booking{
		PNR:         pnr,
		TrainNumber: testKey.TrainNumber,
		DOJ:         testKey.DOJ,
		Source:      "SBC",
		Destination: "NDLS",
		CoachCode:   testKey.CoachCode,
		QuotaCode:   testKey.QuotaCode,
		Contact:     domain.Contact{Mobile: "9876543210"},
		Fare:        domain.FareBreakdown{TotalFare: decimal.RequireFromString(total)},
		DepartureAt: departure,
	}
	for i, fare := range fares {
		b.Passengers = append(b.Passengers, domain.Passenger{
			ID:               i + 1,
			PassengerDetails: domain.PassengerDetails{Name: fmt.Sprintf("P%d", i+1), Age: 30, Gender: domain.GenderMale},
			BookingStatus:    seats[i].Status,
			Status:           seats[i].Status,
			Seat:             seats[i],
			Fare:             decimal.RequireFromString(fare),
		})
	}
	b.RefreshStatus()
	require.NoError(t, f.repo.Create(context.Background(), b))
	return b
}

func (f *fixture) service(opts ...Option) *CancellationService {
	opts = append([]Option{WithClock(func() time.Time { return testNow }), WithLogger(logger.Discard())}, opts...)
	return NewCancellationService(f.repo, f.store, opts...)
}

func TestCancelPassengers_ProportionalRefund(t *testing.T) {
	f := newFixture(domain.PoolCapacity{TotalSeats: 10})
	f.book(t, "1000000001", testNow.Add(72*time.Hour), "678.50", "500.00", "250.00")
	svc := f.service()

	results, err := svc.CancelPassengers(context.Background(), "1000000001", []int{1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].PassengerID)
	assert.Equal(t, domain.SeatStatusConfirmed, results[0].PreviousStatus)
	assert.Equal(t, 75, results[0].RefundPercent)
	assert.Equal(t, "452.33", results[0].FareShare.StringFixed(2))
	assert.Equal(t, "339.25", results[0].Refund.StringFixed(2))

	got, err := f.repo.GetByPNR(context.Background(), "1000000001")
	require.NoError(t, err)
	assert.Equal(t, domain.SeatStatusCancelled, got.Passengers[0].Status)
	assert.Equal(t, domain.PNRStatusConfirmed, got.Status)

	snap, err := f.store.Snapshot(context.Background(), testKey)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.ConfirmedCount)
}

func TestCancelPassengers_FullCancellationRefundsTotalTimesPercent(t *testing.T) {
	f := newFixture(domain.PoolCapacity{TotalSeats: 10})
	f.book(t, "1000000001", testNow.Add(30*time.Hour), "678.50", "500.00", "250.00", "100.00")
	svc := f.service()

	results, err := svc.CancelPassengers(context.Background(), "1000000001", nil)
	require.NoError(t, err)
	require.Len(t, results, 3)

	sum := decimal.Zero
	for _, r := range results {
		assert.Equal(t, 50, r.RefundPercent)
		sum = sum.Add(r.Refund)
	}
	want := decimal.RequireFromString("678.50").Mul(decimal.RequireFromString("0.5"))
	assert.True(t, sum.Sub(want).Abs().LessThanOrEqual(decimal.RequireFromString("0.01")), "refund %s, want %s", sum, want)

	got, err := f.repo.GetByPNR(context.Background(), "1000000001")
	require.NoError(t, err)
	assert.Equal(t, domain.PNRStatusCancelled, got.Status)
}

func TestCancelPassengers_NoRefundCloseToDeparture(t *testing.T) {
	f := newFixture(domain.PoolCapacity{TotalSeats: 10})
	f.book(t, "1000000001", testNow.Add(3*time.Hour), "300.00", "300.00")

	results, err := f.service().CancelPassengers(context.Background(), "1000000001", []int{1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].RefundPercent)
	assert.True(t, results[0].Refund.IsZero())
}

func TestCancelPassengers_Idempotent(t *testing.T) {
	f := newFixture(domain.PoolCapacity{TotalSeats: 10})
	f.book(t, "1000000001", testNow.Add(72*time.Hour), "678.50", "500.00", "250.00")
	svc := f.service()
	ctx := context.Background()

	first, err := svc.CancelPassengers(ctx, "1000000001", []int{2})
	require.NoError(t, err)
	require.Len(t, first, 1)

	again, err := svc.CancelPassengers(ctx, "1000000001", []int{2})
	require.NoError(t, err)
	assert.Empty(t, again)

	all, err := svc.CancelPassengers(ctx, "1000000001", nil)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 1, all[0].PassengerID)

	done, err := svc.CancelPassengers(ctx, "1000000001", nil)
	require.NoError(t, err)
	assert.NotNil(t, done)
	assert.Empty(t, done)
}

func TestCancelPassengers_ConcurrentDuplicatesRefundOnce(t *testing.T) {
	f := newFixture(domain.PoolCapacity{TotalSeats: 10})
	f.book(t, "1000000001", testNow.Add(72*time.Hour), "500.00", "500.00")
	svc := f.service()

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, err := svc.CancelPassengers(context.Background(), "1000000001", []int{1})
			assert.NoError(t, err)
			mu.Lock()
			total += len(results)
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, total)
}

func TestCancelPassengers_UnknownPassenger(t *testing.T) {
	f := newFixture(domain.PoolCapacity{TotalSeats: 10})
	f.book(t, "1000000001", testNow.Add(72*time.Hour), "500.00", "500.00")

	_, err := f.service().CancelPassengers(context.Background(), "1000000001", []int{1, 9})
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))

	snap, err := f.store.Snapshot(context.Background(), testKey)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.ConfirmedCount, "nothing is released on a rejected request")
}

func TestCancelPassengers_UnknownPNR(t *testing.T) {
	f := newFixture(domain.PoolCapacity{TotalSeats: 10})
	_, err := f.service().CancelPassengers(context.Background(), "0000000000", nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCancelPassengers_PromotesOtherBookings(t *testing.T) {
	f := newFixture(domain.PoolCapacity{TotalSeats: 1, RACCap: 1, WaitlistCap: 1})
	departure := testNow.Add(72 * time.Hour)
	f.book(t, "1000000001", departure, "500.00", "500.00")
	f.book(t, "1000000002", departure, "500.00", "500.00")
	f.book(t, "1000000003", departure, "500.00", "500.00")

	mockCache := &MockCache{}
	mockProducer := &MockProducer{}
	ctx := context.Background()

	mockCache.On("InvalidateBookings", ctx, []string{"1000000001", "1000000002", "1000000003"}).Return(nil).Once()
	mockProducer.On("Publish", ctx, "booking_events", "1000000001", mock.MatchedBy(func(e kafka.BookingEvent) bool {
		return e.Type == kafka.EventPassengersCancelled && e.Status == domain.PNRStatusCancelled
	})).Return(nil).Once()
	mockProducer.On("Publish", ctx, "booking_events", "1000000002", mock.MatchedBy(func(e kafka.BookingEvent) bool {
		return e.Type == kafka.EventPassengersPromoted && e.Status == domain.PNRStatusConfirmed
	})).Return(nil).Once()
	mockProducer.On("Publish", ctx, "booking_events", "1000000003", mock.MatchedBy(func(e kafka.BookingEvent) bool {
		return e.Type == kafka.EventPassengersPromoted && e.Status == domain.PNRStatusRAC
	})).Return(nil).Once()

	svc := f.service(WithCache(mockCache), WithProducer(mockProducer, "booking_events"))
	results, err := svc.CancelPassengers(ctx, "1000000001", nil)
	require.NoError(t, err)
	require.Len(t, results, 1)

	b2, err := f.repo.GetByPNR(ctx, "1000000002")
	require.NoError(t, err)
	assert.Equal(t, domain.SeatStatusConfirmed, b2.Passengers[0].Status)
	assert.Equal(t, domain.SeatStatusRAC, b2.Passengers[0].BookingStatus)
	assert.Equal(t, 1, b2.Passengers[0].Seat.SeatNumber)

	b3, err := f.repo.GetByPNR(ctx, "1000000003")
	require.NoError(t, err)
	assert.Equal(t, domain.SeatStatusRAC, b3.Passengers[0].Status)
	assert.Equal(t, 2, b3.Passengers[0].Seat.RACNumber)

	mockCache.AssertExpectations(t)
	mockProducer.AssertExpectations(t)
}

func TestCancelPassengers_ArchivedPool(t *testing.T) {
	f := newFixture(domain.PoolCapacity{TotalSeats: 10})
	f.book(t, "1000000001", testNow.Add(-48*time.Hour), "500.00", "500.00")
	_, err := f.store.Archive(context.Background(), "2026-12-01")
	require.NoError(t, err)

	results, err := f.service().CancelPassengers(context.Background(), "1000000001", nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].RefundPercent)
	assert.True(t, results[0].Refund.IsZero())
}

func TestCancelPassengers_RetryAfterFailedRecordCompletesCancellation(t *testing.T) {
	f := newFixture(domain.PoolCapacity{TotalSeats: 1, RACCap: 1, WaitlistCap: 1})
	departure := testNow.Add(72 * time.Hour)
	f.book(t, "1000000001", departure, "500.00", "500.00")
	f.book(t, "1000000002", departure, "500.00", "500.00")
	f.book(t, "1000000003", departure, "500.00", "500.00")

	repo := &flakyRepo{MemoryBookingRepository: f.repo, cancelFailures: 1}
	svc := NewCancellationService(repo, f.store, WithClock(func() time.Time { return testNow }), WithLogger(logger.Discard()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := svc.CancelPassengers(ctx, "1000000001", nil)
	require.Error(t, err)

	results, err := svc.CancelPassengers(ctx, "1000000001", nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, domain.SeatStatusConfirmed, results[0].PreviousStatus)
	assert.Equal(t, "375.00", results[0].Refund.StringFixed(2))

	b1, err := f.repo.GetByPNR(ctx, "1000000001")
	require.NoError(t, err)
	assert.Equal(t, domain.SeatStatusCancelled, b1.Passengers[0].Status)
	assert.Equal(t, "375.00", b1.Passengers[0].Refund.StringFixed(2))

	b2, err := f.repo.GetByPNR(ctx, "1000000002")
	require.NoError(t, err)
	assert.Equal(t, domain.SeatStatusConfirmed, b2.Passengers[0].Status)

	b3, err := f.repo.GetByPNR(ctx, "1000000003")
	require.NoError(t, err)
	assert.Equal(t, domain.SeatStatusRAC, b3.Passengers[0].Status)

	again, err := svc.CancelPassengers(ctx, "1000000001", nil)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestCancelPassengers_UnrecordedPromotionsAreRecordedLater(t *testing.T) {
	f := newFixture(domain.PoolCapacity{TotalSeats: 1, RACCap: 1})
	departure := testNow.Add(72 * time.Hour)
	f.book(t, "1000000001", departure, "500.00", "500.00")
	f.book(t, "1000000002", departure, "500.00", "500.00")

	repo := &flakyRepo{MemoryBookingRepository: f.repo, assignmentFailures: 1}
	svc := NewCancellationService(repo, f.store, WithClock(func() time.Time { return testNow }), WithLogger(logger.Discard()))
	ctx := context.Background()

	results, err := svc.CancelPassengers(ctx, "1000000001", nil)
	require.NoError(t, err)
	require.Len(t, results, 1)

	b2, err := f.repo.GetByPNR(ctx, "1000000002")
	require.NoError(t, err)
	assert.Equal(t, domain.SeatStatusRAC, b2.Passengers[0].Status)

	again, err := svc.CancelPassengers(ctx, "1000000001", nil)
	require.NoError(t, err)
	assert.Empty(t, again)

	b2, err = f.repo.GetByPNR(ctx, "1000000002")
	require.NoError(t, err)
	assert.Equal(t, domain.SeatStatusConfirmed, b2.Passengers[0].Status)
}
