package reservation_grpc

import (
	"context"
	"errors"

	"github.com/Domenick1991/railbooking/api"
	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/Domenick1991/railbooking/internal/service/booking"
	"github.com/Domenick1991/railbooking/internal/service/cancellation"
	"github.com/go-playground/validator/v10"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type ComputeFareRequest = api.FareRequest

type BookRequest struct {
	api.BookRequest
	IdempotencyKey string `json:"idempotency_key"`
}

type GetStatusRequest struct {
	PNR string `json:"pnr" binding:"required"`
}

type CancelPassengersRequest struct {
	PNR          string `json:"pnr" binding:"required"`
	PassengerIDs []int  `json:"passenger_ids" binding:"dive,min=1"`
}

type CancelPassengersReply struct {
	Results []api.CancellationResponse `json:"results"`
}

// Server implements the railbooking.Reservation gRPC service.
type Server struct {
	bookings     booking.BookingUseCase
	cancellation cancellation.CancellationUseCase
	validate     *validator.Validate
}

func NewServer(bookings booking.BookingUseCase, cancellation cancellation.CancellationUseCase) (*Server, error) {
	v := validator.New()
	v.SetTagName("binding")
	if err := api.RegisterValidations(v); err != nil {
		return nil, err
	}
	return &Server{bookings: bookings, cancellation: cancellation, validate: v}, nil
}

func (s *Server) ComputeFare(ctx context.Context, req *ComputeFareRequest) (*api.FareResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	fare, err := s.bookings.Quote(ctx, req.Query())
	if err != nil {
		return nil, toStatus(err)
	}
	resp := api.NewFareResponse(fare)
	return &resp, nil
}

func (s *Server) Book(ctx context.Context, req *BookRequest) (*api.BookingResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	created, err := s.bookings.Book(ctx, booking.BookInput{
		BookingRequest: req.Domain(),
		Verified:       req.Verified,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	resp := api.NewBookingResponse(created)
	return &resp, nil
}

func (s *Server) GetStatus(ctx context.Context, req *GetStatusRequest) (*api.BookingResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	b, err := s.bookings.GetStatus(ctx, req.PNR)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := api.NewBookingResponse(b)
	return &resp, nil
}

func (s *Server) CancelPassengers(ctx context.Context, req *CancelPassengersRequest) (*CancelPassengersReply, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	results, err := s.cancellation.CancelPassengers(ctx, req.PNR, req.PassengerIDs)
	if err != nil {
		return nil, toStatus(err)
	}
	return &CancelPassengersReply{Results: api.NewCancellationResponses(results)}, nil
}

func toStatus(err error) error {
	code := codes.Internal
	switch {
	case errors.Is(err, domain.ErrIdentityNotVerified), domain.IsValidation(err):
		code = codes.InvalidArgument
	case domain.IsNotFound(err):
		code = codes.NotFound
	case errors.Is(err, domain.ErrDuplicateSubmission):
		code = codes.AlreadyExists
	case errors.Is(err, domain.ErrPoolExhausted):
		code = codes.ResourceExhausted
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrPoolArchived):
		code = codes.FailedPrecondition
	case errors.Is(err, domain.ErrConcurrencyTimeout):
		code = codes.Unavailable
	}
	if code == codes.Internal {
		return status.Error(code, "internal error")
	}
	return status.Error(code, err.Error())
}
