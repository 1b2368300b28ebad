package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/Domenick1991/railbooking/internal/inventory"
	"github.com/Domenick1991/railbooking/internal/kafka"
	"github.com/Domenick1991/railbooking/internal/logger"
	"github.com/Domenick1991/railbooking/internal/reference"
	"github.com/Domenick1991/railbooking/internal/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	DefaultSessionTTL    = 15 * time.Minute
	DefaultSubmissionTTL = 24 * time.Hour
	sessionLockTTL       = 30 * time.Second
	pnrAttempts          = 5
)

type BookingUseCase interface {
	Quote(ctx context.Context, q FareQuery) (domain.FareBreakdown, error)
	Book(ctx context.Context, input BookInput) (*domain.Booking, error)
	GetStatus(ctx context.Context, pnr string) (*domain.Booking, error)
	Availability(ctx context.Context, key domain.PoolKey) (domain.PoolSnapshot, error)

	CreateSession(ctx context.Context, req domain.BookingRequest) (*domain.BookingSession, error)
	RecalculateFare(ctx context.Context, id string, req domain.BookingRequest) (*domain.BookingSession, error)
	AwaitVerification(ctx context.Context, id string) (*domain.BookingSession, error)
	ConfirmSession(ctx context.Context, id string, verified bool) (*domain.BookingSession, *domain.Booking, error)
	GetSession(ctx context.Context, id string) (*domain.BookingSession, error)
}

type Reference interface {
	Train(number string) (*reference.Train, error)
	Quota(code string) (reference.Quota, bool)
}

type FareCalculator interface {
	ComputeFare(coachCode, quotaCode string, passengers []domain.PassengerDetails, distanceKM int) (domain.FareBreakdown, error)
}

type Cache interface {
	GetBooking(ctx context.Context, pnr string) (*domain.Booking, error)
	SetBooking(ctx context.Context, booking *domain.Booking) error
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

// FareQuery prices a journey. When TrainNumber is set the distance comes from
// the train's route, otherwise DistanceKM is used as given.
type FareQuery struct {
	TrainNumber string                    `json:"train_number"`
	Source      string                    `json:"source"`
	Destination string                    `json:"destination"`
	DOJ         string                    `json:"doj"`
	CoachCode   string                    `json:"coach_code"`
	QuotaCode   string                    `json:"quota_code"`
	DistanceKM  int                       `json:"distance_km"`
	Passengers  []domain.PassengerDetails `json:"passengers"`
}

type BookInput struct {
	domain.BookingRequest
	Verified       bool
	IdempotencyKey string
}

type BookingService struct {
	reference          Reference
	fares              FareCalculator
	inventory          inventory.SeatInventory
	bookings           repository.BookingRepository
	cache              Cache
	sessions           SessionStore
	submissions        SubmissionGuard
	producer           Producer
	bookingTopic       string
	notificationsTopic string
	log                logrus.FieldLogger
	now                func() time.Time
	location           *time.Location
	advanceDays        int
	sessionTTL         time.Duration
	submissionTTL      time.Duration
}

type BookingServiceOption func(*BookingService)

func WithCache(cache Cache) BookingServiceOption {
	return func(s *BookingService) {
		s.cache = cache
	}
}

func WithSessionStore(store SessionStore) BookingServiceOption {
	return func(s *BookingService) {
		s.sessions = store
	}
}

func WithSubmissionGuard(guard SubmissionGuard) BookingServiceOption {
	return func(s *BookingService) {
		s.submissions = guard
	}
}

func WithProducer(producer Producer, bookingTopic string) BookingServiceOption {
	return func(s *BookingService) {
		s.producer = producer
		s.bookingTopic = bookingTopic
	}
}

func WithNotificationsTopic(topic string) BookingServiceOption {
	return func(s *BookingService) {
		s.notificationsTopic = topic
	}
}

func WithLogger(log logrus.FieldLogger) BookingServiceOption {
	return func(s *BookingService) {
		s.log = log
	}
}

func WithClock(now func() time.Time) BookingServiceOption {
	return func(s *BookingService) {
		s.now = now
	}
}

// WithLocation sets the zone journey dates and departure times are expressed in.
func WithLocation(loc *time.Location) BookingServiceOption {
	return func(s *BookingService) {
		if loc != nil {
			s.location = loc
		}
	}
}

func WithAdvanceDays(days int) BookingServiceOption {
	return func(s *BookingService) {
		if days > 0 {
			s.advanceDays = days
		}
	}
}

func WithSessionTTL(ttl time.Duration) BookingServiceOption {
	return func(s *BookingService) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

func WithSubmissionTTL(ttl time.Duration) BookingServiceOption {
	return func(s *BookingService) {
		if ttl > 0 {
			s.submissionTTL = ttl
		}
	}
}

func NewBookingService(
	ref Reference,
	fares FareCalculator,
	inv inventory.SeatInventory,
	bookings repository.BookingRepository,
	opts ...BookingServiceOption,
) *BookingService {
	service := &BookingService{
		reference:     ref,
		fares:         fares,
		inventory:     inv,
		bookings:      bookings,
		log:           logrus.StandardLogger(),
		now:           time.Now,
		location:      time.UTC,
		advanceDays:   DefaultAdvanceDays,
		sessionTTL:    DefaultSessionTTL,
		submissionTTL: DefaultSubmissionTTL,
	}
	for _, opt := range opts {
		opt(service)
	}
	if service.sessions == nil {
		service.sessions = NewMemorySessionStore()
	}
	if service.submissions == nil {
		service.submissions = newMemoryGuard()
	}
	return service
}

func (s *BookingService) Quote(ctx context.Context, q FareQuery) (domain.FareBreakdown, error) {
	distance := q.DistanceKM
	if q.TrainNumber != "" {
		j, err := s.resolveJourney(domain.BookingRequest{
			TrainNumber: q.TrainNumber,
			Source:      q.Source,
			Destination: q.Destination,
			DOJ:         q.DOJ,
			CoachCode:   q.CoachCode,
			QuotaCode:   q.QuotaCode,
			Passengers:  q.Passengers,
		}, false)
		if err != nil {
			return domain.FareBreakdown{}, err
		}
		distance = j.distanceKM
	}
	return s.fares.ComputeFare(q.CoachCode, q.QuotaCode, q.Passengers, distance)
}

// Book runs a whole booking in one call. A request repeated with the same
// idempotency key returns the booking of the first one.
func (s *BookingService) Book(ctx context.Context, input BookInput) (*domain.Booking, error) {
	log := logger.FromContext(ctx, s.log)

	if input.IdempotencyKey != "" {
		pnr, acquired, err := s.submissions.AcquireSubmission(ctx, input.IdempotencyKey, s.submissionTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire submission %s: %w", input.IdempotencyKey, err)
		}
		if !acquired {
			if pnr == "" {
				return nil, fmt.Errorf("submission %s is still in progress: %w", input.IdempotencyKey, domain.ErrDuplicateSubmission)
			}
			log.WithFields(logrus.Fields{"pnr": pnr, "idempotency_key": input.IdempotencyKey}).Info("replaying booking")
			return s.GetStatus(ctx, pnr)
		}
	}

	session := s.newSession(input.BookingRequest)
	booking, err := s.calculateAndConfirm(ctx, session, input.BookingRequest, input.Verified)

	if input.IdempotencyKey != "" {
		if err != nil {
			if relErr := s.submissions.ReleaseSubmission(context.WithoutCancel(ctx), input.IdempotencyKey); relErr != nil {
				log.WithError(relErr).Warn("release submission key")
			}
		} else if compErr := s.submissions.CompleteSubmission(ctx, input.IdempotencyKey, booking.PNR, s.submissionTTL); compErr != nil {
			log.WithError(compErr).Warn("record submission key")
		}
	}
	return booking, err
}

func (s *BookingService) calculateAndConfirm(ctx context.Context, session *domain.BookingSession, req domain.BookingRequest, verified bool) (*domain.Booking, error) {
	if err := s.calculateFare(session, req); err != nil {
		return nil, err
	}
	return s.confirm(ctx, session, verified)
}

func (s *BookingService) newSession(req domain.BookingRequest) *domain.BookingSession {
	now := s.now()
	return &domain.BookingSession{
		ID:        uuid.NewString(),
		State:     domain.SessionCollectingPassengers,
		Request:   req,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}
}

// calculateFare validates req and moves the session to FARE_CALCULATED. A failed
// validation leaves the session as it was.
func (s *BookingService) calculateFare(session *domain.BookingSession, req domain.BookingRequest) error {
	if err := canCalculateFare(session); err != nil {
		return err
	}
	j, err := s.resolveJourney(req, true)
	if err != nil {
		return err
	}
	fare, err := s.fares.ComputeFare(req.CoachCode, req.QuotaCode, req.Passengers, j.distanceKM)
	if err != nil {
		return err
	}

	session.Request = req
	session.Fare = &fare
	session.DistanceKM = j.distanceKM
	session.DepartureAt = j.departure
	setState(session, domain.SessionFareCalculated, s.now())
	return nil
}

// confirm reserves seats and records the PNR. Seat exhaustion and registry
// failures end the session in FAILED; a busy pool leaves it retryable.
func (s *BookingService) confirm(ctx context.Context, session *domain.BookingSession, verified bool) (*domain.Booking, error) {
	if err := canConfirm(session); err != nil {
		return nil, err
	}
	if !verified {
		return nil, fmt.Errorf("confirm session %s: %w", session.ID, domain.ErrIdentityNotVerified)
	}

	log := logger.FromContext(ctx, s.log).WithField("session_id", session.ID)
	req := session.Request
	key := req.PoolKey()

	seats, err := s.inventory.Reserve(ctx, key, len(req.Passengers))
	if err != nil {
		if errors.Is(err, domain.ErrPoolExhausted) || errors.Is(err, domain.ErrPoolArchived) {
			fail(session, err.Error(), s.now())
			log.WithError(err).Info("booking failed")
		}
		return nil, err
	}

	booking := s.buildBooking(session, seats)
	if err := s.createWithPNR(ctx, booking); err != nil {
		ids := make([]string, len(seats))
		for i, seat := range seats {
			ids[i] = seat.AllocationID
		}
		if _, relErr := s.inventory.Release(context.WithoutCancel(ctx), key, ids); relErr != nil {
			log.WithError(relErr).Error("release seats after failed registry write")
		}
		fail(session, "booking could not be recorded", s.now())
		return nil, fmt.Errorf("record booking: %w", err)
	}

	session.PNR = booking.PNR
	setState(session, domain.SessionConfirmed, s.now())

	if s.cache != nil {
		if err := s.cache.SetBooking(ctx, booking); err != nil {
			log.WithError(err).Warn("cache booking")
		}
	}
	s.publish(ctx, kafka.NewBookingEvent(kafka.EventBookingCreated, booking))

	log.WithFields(logrus.Fields{
		"pnr":        booking.PNR,
		"pool":       key.String(),
		"status":     booking.Status,
		"passengers": len(booking.Passengers),
		"total_fare": booking.Fare.TotalFare.StringFixed(2),
	}).Info("booking confirmed")
	return booking, nil
}

func (s *BookingService) buildBooking(session *domain.BookingSession, seats []domain.SeatAssignment) *domain.Booking {
	req := session.Request
	booking := &domain.Booking{
		TrainNumber: req.TrainNumber,
		DOJ:         req.DOJ,
		Source:      req.Source,
		Destination: req.Destination,
		CoachCode:   req.CoachCode,
		QuotaCode:   req.QuotaCode,
		Fare:        *session.Fare,
		Contact:     req.Contact,
		DepartureAt: session.DepartureAt,
		Passengers:  make([]domain.Passenger, len(req.Passengers)),
	}
	for i, details := range req.Passengers {
		booking.Passengers[i] = domain.Passenger{
			ID:               i + 1,
			PassengerDetails: details,
			BookingStatus:    seats[i].Status,
			Status:           seats[i].Status,
			Seat:             seats[i],
			Fare:             session.Fare.Passengers[i].Fare,
		}
	}
	booking.RefreshStatus()
	return booking
}

func (s *BookingService) createWithPNR(ctx context.Context, booking *domain.Booking) error {
	var err error
	for i := 0; i < pnrAttempts; i++ {
		booking.PNR = newPNR()
		if err = s.bookings.Create(ctx, booking); !errors.Is(err, domain.ErrDuplicatePNR) {
			return err
		}
	}
	return err
}

// GetStatus returns the booking with every live passenger's assignment taken
// from the inventory, which is authoritative for seat state.
func (s *BookingService) GetStatus(ctx context.Context, pnr string) (*domain.Booking, error) {
	log := logger.FromContext(ctx, s.log).WithField("pnr", pnr)

	var booking *domain.Booking
	if s.cache != nil {
		cached, err := s.cache.GetBooking(ctx, pnr)
		if err != nil {
			log.WithError(err).Warn("read cached booking")
		}
		booking = cached
	}
	if booking == nil {
		stored, err := s.bookings.GetByPNR(ctx, pnr)
		if err != nil {
			return nil, err
		}
		booking = stored
		if s.cache != nil {
			if err := s.cache.SetBooking(ctx, booking); err != nil {
				log.WithError(err).Warn("cache booking")
			}
		}
	}

	if err := s.overlay(ctx, booking); err != nil {
		return nil, err
	}
	return booking, nil
}

func (s *BookingService) overlay(ctx context.Context, booking *domain.Booking) error {
	var ids []string
	for _, p := range booking.Passengers {
		if !p.Cancelled() && p.Seat.AllocationID != "" {
			ids = append(ids, p.Seat.AllocationID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	live, err := s.inventory.Assignments(ctx, booking.PoolKey(), ids)
	if err != nil {
		return err
	}
	for i := range booking.Passengers {
		p := &booking.Passengers[i]
		if a, ok := live[p.Seat.AllocationID]; ok && !p.Cancelled() {
			p.Seat = a
			p.Status = a.Status
		}
	}
	booking.RefreshStatus()
	return nil
}

func (s *BookingService) Availability(ctx context.Context, key domain.PoolKey) (domain.PoolSnapshot, error) {
	train, err := s.reference.Train(key.TrainNumber)
	if err != nil {
		return domain.PoolSnapshot{}, err
	}
	if _, err := time.ParseInLocation(dateLayout, key.DOJ, s.location); err != nil {
		return domain.PoolSnapshot{}, domain.Invalid("doj", nil, "journey date must be YYYY-MM-DD")
	}
	if _, err := train.Capacity(key.CoachCode, key.QuotaCode); err != nil {
		return domain.PoolSnapshot{}, err
	}
	return s.inventory.Snapshot(ctx, key)
}

// CreateSession starts a booking session and prices it. Invalid requests
// create no session.
func (s *BookingService) CreateSession(ctx context.Context, req domain.BookingRequest) (*domain.BookingSession, error) {
	session := s.newSession(req)
	if err := s.calculateFare(session, req); err != nil {
		return nil, err
	}
	if err := s.sessions.SaveSession(ctx, session, s.sessionTTL); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return session, nil
}

func (s *BookingService) RecalculateFare(ctx context.Context, id string, req domain.BookingRequest) (*domain.BookingSession, error) {
	session, err := s.sessions.LoadSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.calculateFare(session, req); err != nil {
		return nil, err
	}
	if err := s.sessions.SaveSession(ctx, session, s.remainingTTL(session)); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return session, nil
}

func (s *BookingService) AwaitVerification(ctx context.Context, id string) (*domain.BookingSession, error) {
	session, err := s.sessions.LoadSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := canAwaitVerification(session); err != nil {
		return nil, err
	}
	setState(session, domain.SessionAwaitingVerification, s.now())
	if err := s.sessions.SaveSession(ctx, session, s.remainingTTL(session)); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return session, nil
}

// ConfirmSession books the session's passengers. Concurrent confirmations of the
// same session are rejected with ErrDuplicateSubmission, so a session yields at
// most one PNR.
func (s *BookingService) ConfirmSession(ctx context.Context, id string, verified bool) (*domain.BookingSession, *domain.Booking, error) {
	locked, err := s.sessions.AcquireSessionLock(ctx, id, sessionLockTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("lock session %s: %w", id, err)
	}
	if !locked {
		return nil, nil, fmt.Errorf("session %s is being confirmed: %w", id, domain.ErrDuplicateSubmission)
	}
	defer func() {
		if err := s.sessions.ReleaseSessionLock(context.WithoutCancel(ctx), id); err != nil {
			logger.FromContext(ctx, s.log).WithError(err).Warn("release session lock")
		}
	}()

	session, err := s.sessions.LoadSession(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	previous := session.State
	booking, confirmErr := s.confirm(ctx, session, verified)
	if session.State != previous {
		ttl := s.remainingTTL(session)
		if session.State.Terminal() {
			ttl = s.sessionTTL
		}
		if err := s.sessions.SaveSession(ctx, session, ttl); err != nil {
			return session, booking, errors.Join(confirmErr, fmt.Errorf("save session: %w", err))
		}
	}
	return session, booking, confirmErr
}

func (s *BookingService) GetSession(ctx context.Context, id string) (*domain.BookingSession, error) {
	return s.sessions.LoadSession(ctx, id)
}

func (s *BookingService) remainingTTL(session *domain.BookingSession) time.Duration {
	if ttl := session.ExpiresAt.Sub(s.now()); ttl > 0 {
		return ttl
	}
	return time.Second
}

func (s *BookingService) publish(ctx context.Context, event kafka.BookingEvent) {
	if s.producer == nil || s.bookingTopic == "" {
		return
	}
	log := logger.FromContext(ctx, s.log).WithFields(logrus.Fields{"pnr": event.PNR, "event": event.Type})
	if err := s.producer.Publish(ctx, s.bookingTopic, event.PNR, event); err != nil {
		log.WithError(err).Warn("publish booking event")
		return
	}
	if s.notificationsTopic != "" {
		if err := s.producer.Publish(ctx, s.notificationsTopic, event.PNR, event); err != nil {
			log.WithError(err).Warn("publish notification")
		}
	}
}

var _ BookingUseCase = (*BookingService)(nil)
