package installmenthttp

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopcore/installment/internal/domain/installment"
	"github.com/shopcore/installment/internal/model"
	"github.com/shopcore/installment/internal/utils/middleware"
)

// mustGetUserID returns the user ID from context, panics if not found.
// Routes using it sit behind middleware.Identity.
func mustGetUserID(c *gin.Context) uuid.UUID {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		panic("user_id not found in context")
	}
	return userID
}

// handleError maps installment domain errors to HTTP responses.
func handleError(c *gin.Context, err error) {
	var statusCode int
	var errorCode string
	var message string

	switch {
	case errors.Is(err, installment.ErrPlanNotFound):
		statusCode = http.StatusNotFound
		errorCode = "installment_not_found"
		message = "Installment plan not found"

	case errors.Is(err, installment.ErrPeriodNotFound):
		statusCode = http.StatusNotFound
		errorCode = "period_not_found"
		message = "Installment period not found"

	case errors.Is(err, installment.ErrOrderNotFound):
		statusCode = http.StatusNotFound
		errorCode = "order_not_found"
		message = "Order not found"

	case errors.Is(err, installment.ErrForbidden):
		statusCode = http.StatusForbidden
		errorCode = "forbidden"
		message = "Forbidden"

	case errors.Is(err, installment.ErrPlanExists):
		statusCode = http.StatusConflict
		errorCode = "installment_exists"
		message = "Order already has an installment plan"

	case errors.Is(err, installment.ErrUnsupportedCount):
		statusCode = http.StatusBadRequest
		errorCode = "unsupported_count"
		message = "Unsupported installment count"

	case errors.Is(err, installment.ErrAmountTooLow):
		statusCode = http.StatusBadRequest
		errorCode = "amount_too_low"
		message = "Order amount is below the installment minimum"

	case errors.Is(err, installment.ErrInvalidSchedule):
		statusCode = http.StatusBadRequest
		errorCode = "invalid_schedule"
		message = "Invalid installment schedule"

	case errors.Is(err, installment.ErrOrderClosed):
		statusCode = http.StatusBadRequest
		errorCode = "order_closed"
		message = "Order is closed"

	case errors.Is(err, installment.ErrOrderAlreadyPaid):
		statusCode = http.StatusBadRequest
		errorCode = "order_already_paid"
		message = "Order is already paid"

	case errors.Is(err, installment.ErrPlanFinished):
		statusCode = http.StatusBadRequest
		errorCode = "installment_finished"
		message = "Installment plan has no pending period"

	case errors.Is(err, installment.ErrRefundNotAllowed):
		statusCode = http.StatusBadRequest
		errorCode = "refund_not_allowed"
		message = "Refund not allowed"

	case errors.Is(err, installment.ErrProviderNotAvailable):
		statusCode = http.StatusServiceUnavailable
		errorCode = "provider_unavailable"
		message = "Payment provider not available"

	default:
		statusCode = http.StatusInternalServerError
		errorCode = "internal_error"
		message = "Internal server error"
	}

	c.JSON(statusCode, model.ErrorResponse{
		Code:    errorCode,
		Message: message,
	})
}

// notifyStatus picks the status for a failed gateway callback. Callbacks that
// can never succeed get 400, everything else 500 so the gateway retries.
func notifyStatus(err error) int {
	switch {
	case errors.Is(err, installment.ErrMalformedCorrelation),
		errors.Is(err, installment.ErrPlanNotFound),
		errors.Is(err, installment.ErrPeriodNotFound):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// notifyHeaders flattens request headers for signature verification.
func notifyHeaders(c *gin.Context) map[string]string {
	headers := make(map[string]string, len(c.Request.Header))
	for key := range c.Request.Header {
		headers[key] = c.GetHeader(key)
	}
	return headers
}
