package api

import (
	"net/http"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/Domenick1991/railbooking/internal/service/booking"
	"github.com/Domenick1991/railbooking/internal/service/cancellation"
	"github.com/gin-gonic/gin"
)

const IdempotencyKeyHeader = "Idempotency-Key"

type BookingHandler struct {
	service      booking.BookingUseCase
	cancellation cancellation.CancellationUseCase
}

func NewBookingHandler(service booking.BookingUseCase, cancellation cancellation.CancellationUseCase) *BookingHandler {
	return &BookingHandler{service: service, cancellation: cancellation}
}

func (h *BookingHandler) Register(router *gin.RouterGroup) {
	router.POST("/fare", h.fare)
	router.POST("/book", h.book)
	router.GET("/pnr/:pnr", h.status)
	router.POST("/pnr/:pnr/cancel", h.cancel)
	router.GET("/availability", h.availability)
}

func (h *BookingHandler) fare(c *gin.Context) {
	var req FareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	fare, err := h.service.Quote(c.Request.Context(), req.Query())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewFareResponse(fare))
}

func (h *BookingHandler) book(c *gin.Context) {
	var req BookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	b, err := h.service.Book(c.Request.Context(), booking.BookInput{
		BookingRequest: req.Domain(),
		Verified:       req.Verified,
		IdempotencyKey: c.GetHeader(IdempotencyKeyHeader),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, NewBookingResponse(b))
}

func (h *BookingHandler) status(c *gin.Context) {
	b, err := h.service.GetStatus(c.Request.Context(), c.Param("pnr"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewBookingResponse(b))
}

func (h *BookingHandler) cancel(c *gin.Context) {
	var req CancelRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
	}

	results, err := h.cancellation.CancelPassengers(c.Request.Context(), c.Param("pnr"), req.PassengerIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewCancellationResponses(results))
}

func (h *BookingHandler) availability(c *gin.Context) {
	key := domain.PoolKey{
		TrainNumber: c.Query("train_number"),
		DOJ:         c.Query("doj"),
		CoachCode:   c.Query("coach_code"),
		QuotaCode:   c.DefaultQuery("quota_code", "GN"),
	}
	if key.TrainNumber == "" || key.DOJ == "" || key.CoachCode == "" {
		respondError(c, domain.Invalid("query", nil, "train_number, doj and coach_code are required"))
		return
	}

	snap, err := h.service.Availability(c.Request.Context(), key)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, AvailabilityResponse{
		PoolSnapshot:   snap,
		AvailableSeats: snap.AvailableSeats(),
		Availability:   snap.Availability(),
	})
}
