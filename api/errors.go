package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/Domenick1991/railbooking/internal/logger"
	"github.com/gin-gonic/gin"
)

const retryAfterSeconds = 1

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// classify maps a service error onto an HTTP status and a stable error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrIdentityNotVerified):
		return http.StatusBadRequest, "IDENTITY_NOT_VERIFIED"
	case domain.IsValidation(err):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case domain.IsNotFound(err):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrPoolExhausted):
		return http.StatusConflict, "POOL_EXHAUSTED"
	case errors.Is(err, domain.ErrDuplicateSubmission):
		return http.StatusConflict, "DUPLICATE_SUBMISSION"
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, "INVALID_TRANSITION"
	case errors.Is(err, domain.ErrPoolArchived):
		return http.StatusGone, "POOL_ARCHIVED"
	case errors.Is(err, domain.ErrConcurrencyTimeout):
		return http.StatusServiceUnavailable, "CONCURRENCY_TIMEOUT"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

func respondError(c *gin.Context, err error) {
	status, code := classify(err)
	ctx := c.Request.Context()

	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.FromContext(ctx, nil).WithError(err).Error("request failed")
		msg = "internal error"
	}
	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: msg, Code: code, RequestID: logger.RequestID(ctx)})
}

func respondBindError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{
		Error:     err.Error(),
		Code:      "VALIDATION_ERROR",
		RequestID: logger.RequestID(c.Request.Context()),
	})
}
