package api

import (
	"net/http"

	"github.com/Domenick1991/reservations/internal/domain"
	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type errorMapping struct {
	target error
	status int
	code   string
}

// Order matters: the first matching sentinel wins.
var errorMappings = []errorMapping{
	{domain.ErrInsufficientCapacity, http.StatusConflict, "no_longer_available"},
	{domain.ErrSlotClosed, http.StatusConflict, "no_longer_available"},
	{domain.ErrUnitUnavailable, http.StatusConflict, "no_longer_available"},
	{domain.ErrHoldNotFound, http.StatusGone, "selection_expired"},
	{domain.ErrIdempotencyConflict, http.StatusConflict, "idempotency_conflict"},
	{domain.ErrHoldAlreadyConfirmed, http.StatusConflict, "already_confirmed"},
	{domain.ErrCapacityBelowCommitted, http.StatusConflict, "capacity_below_committed"},
	{domain.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity"},
	{domain.ErrTokenRequired, http.StatusBadRequest, "token_required"},
	{domain.ErrUnitNotFound, http.StatusBadRequest, "unit_not_found"},
	{domain.ErrUnitTracked, http.StatusBadRequest, "unit_tracked_pool"},
	{domain.ErrInvalidProduct, http.StatusBadRequest, "invalid_product"},
	{domain.ErrInvalidSlot, http.StatusBadRequest, "invalid_slot"},
	{domain.ErrPoolNotFound, http.StatusNotFound, "pool_not_found"},
	{domain.ErrSlotNotFound, http.StatusNotFound, "slot_not_found"},
	{domain.ErrProductNotFound, http.StatusNotFound, "product_not_found"},
	{domain.ErrConcurrencyConflict, http.StatusServiceUnavailable, "try_again"},
	{domain.ErrStorageFailure, http.StatusInternalServerError, "storage_failure"},
}

func statusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeError renders err and records it on the context for the request log.
// Internal details are never echoed to clients.
func writeError(c *gin.Context, err error) {
	status, code := statusFor(err)
	_ = c.Error(err)

	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: code, Message: msg})
}

func badRequest(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: err.Error()})
}
