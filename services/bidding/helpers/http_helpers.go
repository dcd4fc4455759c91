package helpers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"charity-auction/internal/biddingerrors"
	"charity-auction/utils"

	"github.com/gin-gonic/gin"
)

// SessionCookie names the cookie that identifies a browser session.
const SessionCookie = "auction_session"

const sessionCookieMaxAge = 30 * 24 * 60 * 60

// SessionID returns the browser session of the request, issuing a new
// cookie when none or a malformed one was sent.
func SessionID(c *gin.Context) string {
	if id, err := c.Cookie(SessionCookie); err == nil && utils.IsID(id) {
		return id
	}
	id := utils.GenerateID()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, id, sessionCookieMaxAge, "/", "", false, true)
	return id
}

// HandleBindError sends a standardized JSON error for binding failures
func HandleBindError(c *gin.Context, handlerName string, err error) {
	wrappedErr := fmt.Errorf("invalid request payload: %w", err)
	utils.JSONError(c, http.StatusBadRequest, wrappedErr, "invalid request payload")
	utils.Warn(handlerName+": binding error", map[string]any{"component": "http", "error": err.Error()})
}

// MapErrorToHTTP maps domain/service errors to HTTP status code and message
func MapErrorToHTTP(err error) (int, string) {
	var rlErr *biddingerrors.RateLimitError
	switch {
	case errors.As(err, &rlErr):
		return http.StatusTooManyRequests, "rate limit exceeded"
	case errors.Is(err, biddingerrors.ErrBidderNotFound):
		// a failed lookup reads as not found even when the backend was down
		return http.StatusNotFound, "no previous bids found for this bidder"
	case errors.Is(err, biddingerrors.ErrBackendUnavailable):
		return http.StatusServiceUnavailable, "auction backend unavailable"
	case errors.Is(err, biddingerrors.ErrItemNotFound):
		return http.StatusNotFound, "item not found"
	case errors.Is(err, biddingerrors.ErrNoIdentity):
		return http.StatusUnprocessableEntity, "bidder identity required"
	case errors.Is(err, biddingerrors.ErrInvalidBid):
		return http.StatusUnprocessableEntity, "invalid bid details"
	case errors.Is(err, biddingerrors.ErrSubmissionInProgress):
		return http.StatusConflict, "a bid is already being submitted"
	case errors.Is(err, biddingerrors.ErrBidConflict), errors.Is(err, biddingerrors.ErrBidTooLow):
		return http.StatusConflict, "bid amount too low"
	case errors.Is(err, biddingerrors.ErrAuctionEnded):
		return http.StatusGone, "auction has ended"
	case errors.Is(err, biddingerrors.ErrViewClosed):
		return http.StatusGone, "view is closed"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// SetRetryAfter adds a Retry-After header when err is a rate limit error.
func SetRetryAfter(c *gin.Context, err error) {
	var rlErr *biddingerrors.RateLimitError
	if errors.As(err, &rlErr) {
		c.Header("Retry-After", strconv.Itoa(rlErr.RetryAfterSeconds()))
	}
}

// LogSuccess is a small helper to standardize logging of successful operations
func LogSuccess(handlerName, message string, ctx map[string]any) {
	ctx["component"] = "http"
	utils.Info(handlerName+": "+message, ctx)
}
