package helpers

import (
	"errors"
	"fmt"
	"net/http"

	"auction-engine/internal/auctionerrors"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
)

// HandleBindError sends a standardized JSON error for binding failures
func HandleBindError(c *gin.Context, handlerName string, err error) {
	wrappedErr := fmt.Errorf("invalid request payload: %w", err)
	utils.JSONError(c, http.StatusBadRequest, wrappedErr, "invalid request payload")
	utils.Warn(handlerName+": binding error", map[string]any{"error": err.Error()})
}

// MapErrorToHTTP maps domain/service errors to HTTP status code and message
func MapErrorToHTTP(err error) (int, string) {
	switch {
	case errors.Is(err, auctionerrors.ErrAuctionNotFound):
		return http.StatusNotFound, "auction not found"
	case errors.Is(err, auctionerrors.ErrUserNotFound):
		return http.StatusNotFound, "user not found"
	case errors.Is(err, auctionerrors.ErrBidTooLow):
		return http.StatusConflict, "bid amount too low"
	case errors.Is(err, auctionerrors.ErrUserExists):
		return http.StatusConflict, "user already exists"
	case errors.Is(err, auctionerrors.ErrAlreadyJoined):
		return http.StatusConflict, "already joined auction"
	case errors.Is(err, auctionerrors.ErrNotJoined):
		return http.StatusConflict, "must join auction before bidding"
	case errors.Is(err, auctionerrors.ErrInvalidTransition):
		return http.StatusConflict, "auction state does not allow this operation"
	case errors.Is(err, auctionerrors.ErrInsufficientFunds):
		return http.StatusPaymentRequired, "insufficient wallet balance"
	case errors.Is(err, auctionerrors.ErrAuctionNotLive):
		return http.StatusUnprocessableEntity, "auction is not live"
	case errors.Is(err, auctionerrors.ErrAuctionEnded):
		return http.StatusUnprocessableEntity, "auction has ended"
	case errors.Is(err, auctionerrors.ErrInvalidTimeWindow):
		return http.StatusBadRequest, "invalid auction time window"
	case errors.Is(err, auctionerrors.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid amount"
	case errors.Is(err, auctionerrors.ErrInvalidInput):
		return http.StatusBadRequest, "invalid request"
	case auctionerrors.IsTransient(err):
		return http.StatusServiceUnavailable, "service temporarily unavailable, retry later"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// ErrorDetails extracts the machine-readable fields of a domain error
func ErrorDetails(err error) map[string]any {
	var tooLow *auctionerrors.BidTooLowError
	if errors.As(err, &tooLow) {
		return map[string]any{"current_highest": tooLow.CurrentHighest}
	}
	return nil
}

// RespondError maps err, writes the JSON error and logs it. Client errors log
// at warn, server errors at error.
func RespondError(c *gin.Context, handlerName string, err error, fields map[string]any) {
	status, message := MapErrorToHTTP(err)
	utils.JSONErrorWithDetails(c, status, fmt.Errorf("%s: %w", message, err), message, ErrorDetails(err))

	if fields == nil {
		fields = map[string]any{}
	}
	fields["handler"] = handlerName
	fields["error"] = err.Error()
	if status >= http.StatusInternalServerError {
		utils.Error(handlerName+": request failed", fields)
		return
	}
	utils.Warn(handlerName+": request rejected", fields)
}

// LogSuccess is a small helper to standardize logging of successful operations
func LogSuccess(handlerName, message string, ctx map[string]any) {
	utils.Info(handlerName+": "+message, ctx)
}
