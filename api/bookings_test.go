package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/Domenick1991/railbooking/internal/logger"
	"github.com/Domenick1991/railbooking/internal/service/booking"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	if err := RegisterBindingValidations(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// MockBookingUseCase is a mock implementation of booking.BookingUseCase
type MockBookingUseCase struct {
	mock.Mock
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

func (m *MockBookingUseCase) Availability(ctx context.Context, key domain.PoolKey) (domain.PoolSnapshot, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(domain.PoolSnapshot), args.Error(1)
}

func (m *MockBookingUseCase) CreateSession(ctx context.Context, req domain.BookingRequest) (*domain.BookingSession, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BookingSession), args.Error(1)
}

func (m *MockBookingUseCase) RecalculateFare(ctx context.Context, id string, req domain.BookingRequest) (*domain.BookingSession, error) {
	args := m.Called(ctx, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BookingSession), args.Error(1)
}

func (m *MockBookingUseCase) AwaitVerification(ctx context.Context, id string) (*domain.BookingSession, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BookingSession), args.Error(1)
}

func (m *MockBookingUseCase) ConfirmSession(ctx context.Context, id string, verified bool) (*domain.BookingSession, *domain.Booking, error) {
	args := m.Called(ctx, id, verified)
	var s *domain.BookingSession
	if v := args.Get(0); v != nil {
		s = v.(*domain.BookingSession)
	}
	var b *domain.Booking
	if v := args.Get(1); v != nil {
		b = v.(*domain.Booking)
	}
	return s, b, args.Error(2)
}

func (m *MockBookingUseCase) GetSession(ctx context.Context, id string) (*domain.BookingSession, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BookingSession), args.Error(1)
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

func newTestRouter(svc booking.BookingUseCase, cancel *MockCancellationUseCase) *gin.Engine {
	r := gin.New()
	r.Use(RequestLogger(logger.Discard()))
	v1 := r.Group("/api/v1")
	NewBookingHandler(svc, cancel).Register(v1)
	NewSessionHandler(svc).Register(v1.Group("/sessions"))
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func sampleFare() domain.FareBreakdown {
	return domain.FareBreakdown{
		CoachCode:         "SL",
		QuotaCode:         "GN",
		DistanceKM:        500,
		RatePerKM:         decimal.RequireFromString("1.00"),
		Passengers:        []domain.PassengerFare{{Index: 1, Category: domain.FareCategoryAdult, BaseFare: decimal.NewFromInt(500), Discount: decimal.Zero, Fare: decimal.NewFromInt(500)}},
		BaseTotal:         decimal.NewFromInt(500),
		DiscountTotal:     decimal.Zero,
		Subtotal:          decimal.NewFromInt(500),
		ReservationCharge: decimal.NewFromInt(25),
		Taxable:           decimal.NewFromInt(525),
		TaxRate:           decimal.RequireFromString("0.18"),
		GST:               decimal.RequireFromString("94.5"),
		CGST:              decimal.RequireFromString("47.25"),
		SGST:              decimal.RequireFromString("47.25"),
		TotalFare:         decimal.RequireFromString("619.5"),
	}
}

func sampleBooking() *domain.Booking {
	return &domain.Booking{
		PNR:         "4455667788",
		TrainNumber: "10001",
		DOJ:         "2026-11-20",
		Source:      "AAA",
		Destination: "BBB",
		CoachCode:   "SL",
		QuotaCode:   "GN",
		Status:      domain.PNRStatusConfirmed,
		Fare:        sampleFare(),
		Contact:     domain.Contact{Mobile: "9876543210"},
		DepartureAt: time.Date(2026, 11, 20, 6, 0, 0, 0, time.UTC),
		Passengers: []domain.Passenger{{
			ID:               1,
			PassengerDetails: domain.PassengerDetails{Name: "Asha", Age: 30, Gender: domain.GenderFemale},
			BookingStatus:    domain.SeatStatusConfirmed,
			Status:           domain.SeatStatusConfirmed,
			Seat:             domain.SeatAssignment{Status: domain.SeatStatusConfirmed, CoachCode: "S1", SeatNumber: 1, BerthType: domain.BerthLower},
			Fare:             decimal.RequireFromString("619.5"),
		}},
	}
}

func bookBody() BookRequest {
	return BookRequest{
		BookingRequest: BookingRequest{
			TrainNumber: "10001",
			Source:      "AAA",
			Destination: "BBB",
			DOJ:         "2026-11-20",
			CoachCode:   "SL",
			QuotaCode:   "GN",
			Passengers:  []PassengerRequest{{Name: "Asha", Age: 30, Gender: "F"}},
			Contact:     ContactRequest{Mobile: "9876543210"},
		},
		Verified: true,
	}
}

func TestBookingHandler_fare(t *testing.T) {
	mockService := &MockBookingUseCase{}
	handler := NewBookingHandler(mockService, &MockCancellationUseCase{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	input := FareRequest{CoachCode: "SL", QuotaCode: "GN", DistanceKM: 500, Passengers: []PassengerRequest{{Name: "Asha", Age: 30, Gender: "F"}}}
	body, _ := json.Marshal(input)
	c.Request = httptest.NewRequest("POST", "/api/v1/fare", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	mockService.On("Quote", c.Request.Context(), input.Query()).Return(sampleFare(), nil)

	handler.fare(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var response FareResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, "619.50", response.TotalFare)
	assert.Equal(t, "47.25", response.CGST)
	assert.Equal(t, "500.00", response.Passengers[0].Fare)

	mockService.AssertExpectations(t)
}

func TestBookingHandler_fareRejectsMalformedDate(t *testing.T) {
	mockService := &MockBookingUseCase{}
	r := newTestRouter(mockService, &MockCancellationUseCase{})

	w := doJSON(t, r, "POST", "/api/v1/fare", FareRequest{CoachCode: "SL", QuotaCode: "GN", DOJ: "20-11-2026"}, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var response errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "VALIDATION_ERROR", response.Code)
	assert.NotEmpty(t, response.RequestID)
	mockService.AssertNotCalled(t, "Quote", mock.Anything, mock.Anything)
}

func TestBookingHandler_book(t *testing.T) {
	mockService := &MockBookingUseCase{}
	r := newTestRouter(mockService, &MockCancellationUseCase{})

	body := bookBody()
	expected := booking.BookInput{BookingRequest: body.Domain(), Verified: true, IdempotencyKey: "key-1"}
	mockService.On("Book", mock.Anything, expected).Return(sampleBooking(), nil)

	w := doJSON(t, r, "POST", "/api/v1/book", body, map[string]string{IdempotencyKeyHeader: "key-1"})

	assert.Equal(t, http.StatusCreated, w.Code)

	var response BookingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "4455667788", response.PNR)
	assert.Equal(t, string(domain.PNRStatusConfirmed), response.Status)
	require.Len(t, response.Passengers, 1)
	assert.Equal(t, "S1/1/LB", response.Passengers[0].Seat)
	assert.Equal(t, "619.50", response.Passengers[0].Fare)
	assert.Empty(t, response.Passengers[0].Refund)
	assert.Equal(t, "619.50", response.Fare.TotalFare)

	mockService.AssertExpectations(t)
}

func TestBookingHandler_bookRejectsBadMobile(t *testing.T) {
	mockService := &MockBookingUseCase{}
	r := newTestRouter(mockService, &MockCancellationUseCase{})

	for _, mobile := range []string{"12345", "98765abcde", "+919876543"} {
		body := bookBody()
		body.Contact.Mobile = mobile
		w := doJSON(t, r, "POST", "/api/v1/book", body, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, mobile)
	}
	mockService.AssertNotCalled(t, "Book", mock.Anything, mock.Anything)
}

func TestBookingHandler_errorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", domain.Invalid("passengers", domain.ErrEmptyPassengerList, "at least one passenger is required"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"identity", fmt.Errorf("confirm: %w", domain.ErrIdentityNotVerified), http.StatusBadRequest, "IDENTITY_NOT_VERIFIED"},
		{"unknown train is a validation error", domain.Invalid("train_number", domain.ErrNotFound, "unknown train"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"exhausted", fmt.Errorf("reserve: %w", domain.ErrPoolExhausted), http.StatusConflict, "POOL_EXHAUSTED"},
		{"duplicate", domain.ErrDuplicateSubmission, http.StatusConflict, "DUPLICATE_SUBMISSION"},
		{"archived", domain.ErrPoolArchived, http.StatusGone, "POOL_ARCHIVED"},
		{"timeout", domain.ErrConcurrencyTimeout, http.StatusServiceUnavailable, "CONCURRENCY_TIMEOUT"},
		{"internal", errors.New("connection refused"), http.StatusInternalServerError, "INTERNAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockBookingUseCase{}
			r := newTestRouter(mockService, &MockCancellationUseCase{})
			mockService.On("Book", mock.Anything, mock.Anything).Return(nil, tt.err)

			w := doJSON(t, r, "POST", "/api/v1/book", bookBody(), map[string]string{RequestIDHeader: "req-42"})

			assert.Equal(t, tt.wantStatus, w.Code)
			var response errorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Equal(t, tt.wantCode, response.Code)
			assert.Equal(t, "req-42", response.RequestID)
			assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
			if tt.wantStatus == http.StatusServiceUnavailable {
				assert.Equal(t, "1", w.Header().Get("Retry-After"))
			}
			if tt.wantStatus == http.StatusInternalServerError {
				assert.Equal(t, "internal error", response.Error)
			}
		})
	}
}

func TestBookingHandler_status(t *testing.T) {
	mockService := &MockBookingUseCase{}
	handler := NewBookingHandler(mockService, &MockCancellationUseCase{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	pnr := "0000000000"
	c.Params = gin.Params{{Key: "pnr", Value: pnr}}
	c.Request = httptest.NewRequest("GET", "/api/v1/pnr/"+pnr, nil)

	mockService.On("GetStatus", c.Request.Context(), pnr).Return(nil, fmt.Errorf("pnr %s: %w", pnr, domain.ErrNotFound))

	handler.status(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	mockService.AssertExpectations(t)
}

func TestBookingHandler_cancel(t *testing.T) {
	mockService := &MockBookingUseCase{}
	mockCancel := &MockCancellationUseCase{}
	r := newTestRouter(mockService, mockCancel)

	results := []domain.CancellationResult{{
		PassengerID:    2,
		PreviousStatus: domain.SeatStatusConfirmed,
		FareShare:      decimal.RequireFromString("452.33"),
		RefundPercent:  75,
		Refund:         decimal.RequireFromString("339.25"),
	}}
	mockCancel.On("CancelPassengers", mock.Anything, "4455667788", []int{2}).Return(results, nil)

	w := doJSON(t, r, "POST", "/api/v1/pnr/4455667788/cancel", CancelRequest{PassengerIDs: []int{2}}, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var response []CancellationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Len(t, response, 1)
	assert.Equal(t, "339.25", response[0].Refund)
	assert.Equal(t, 75, response[0].RefundPercent)
	mockCancel.AssertExpectations(t)
}

func TestBookingHandler_cancelWithoutBodyCancelsAll(t *testing.T) {
	mockCancel := &MockCancellationUseCase{}
	r := newTestRouter(&MockBookingUseCase{}, mockCancel)

	mockCancel.On("CancelPassengers", mock.Anything, "4455667788", []int(nil)).Return([]domain.CancellationResult{}, nil)

	w := doJSON(t, r, "POST", "/api/v1/pnr/4455667788/cancel", nil, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
	mockCancel.AssertExpectations(t)
}

func TestBookingHandler_availability(t *testing.T) {
	mockService := &MockBookingUseCase{}
	r := newTestRouter(mockService, &MockCancellationUseCase{})

	key := domain.PoolKey{TrainNumber: "10001", DOJ: "2026-11-20", CoachCode: "SL", QuotaCode: "GN"}
	mockService.On("Availability", mock.Anything, key).Return(domain.PoolSnapshot{
		Key: key, TotalSeats: 2, RACCap: 1, WaitlistCap: 1, ConfirmedCount: 2, NextRACNumber: 1, NextWaitlistNumber: 1,
	}, nil)

	w := doJSON(t, r, "GET", "/api/v1/availability?train_number=10001&doj=2026-11-20&coach_code=SL", nil, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var response AvailabilityResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "RAC1", response.Availability)
	assert.Equal(t, 0, response.AvailableSeats)

	w = doJSON(t, r, "GET", "/api/v1/availability?train_number=10001", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockService.AssertExpectations(t)
}
