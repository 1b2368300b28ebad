package api

import (
	"net/http"

	"github.com/Domenick1991/railbooking/internal/service/booking"
	"github.com/gin-gonic/gin"
)

// SessionHandler exposes the step-by-step booking flow.
type SessionHandler struct {
	service booking.BookingUseCase
}

func NewSessionHandler(service booking.BookingUseCase) *SessionHandler {
	return &SessionHandler{service: service}
}

func (h *SessionHandler) Register(router *gin.RouterGroup) {
	router.POST("", h.create)
	router.GET("/:id", h.get)
	router.POST("/:id/fare", h.recalculate)
	router.POST("/:id/verification", h.verification)
	router.POST("/:id/confirm", h.confirm)
}

func (h *SessionHandler) create(c *gin.Context) {
	var req BookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	session, err := h.service.CreateSession(c.Request.Context(), req.Domain())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, NewSessionResponse(session))
}

func (h *SessionHandler) get(c *gin.Context) {
	session, err := h.service.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewSessionResponse(session))
}

func (h *SessionHandler) recalculate(c *gin.Context) {
	var req BookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	session, err := h.service.RecalculateFare(c.Request.Context(), c.Param("id"), req.Domain())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewSessionResponse(session))
}

func (h *SessionHandler) verification(c *gin.Context) {
	session, err := h.service.AwaitVerification(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewSessionResponse(session))
}

func (h *SessionHandler) confirm(c *gin.Context) {
	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	session, b, err := h.service.ConfirmSession(c.Request.Context(), c.Param("id"), req.Verified)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := ConfirmResponse{Session: NewSessionResponse(session)}
	if b != nil {
		br := NewBookingResponse(b)
		resp.Booking = &br
	}
	c.JSON(http.StatusOK, resp)
}
