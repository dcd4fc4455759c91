package biddingerrors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Repository-level errors
var (
	ErrItemNotFound   = errors.New("item not found")
	ErrNoBids         = errors.New("no bids found for item")
	ErrBidderNotFound = errors.New("no bids found for this bidder")
	ErrBidConflict    = errors.New("bid rejected by backend")
)

// business logic errors
var (
	ErrInvalidBid           = errors.New("invalid bid")
	ErrBidTooLow            = errors.New("bid amount too low")
	ErrRateLimited          = errors.New("rate limit exceeded")
	ErrAuctionEnded         = errors.New("auction has ended")
	ErrSubmissionInProgress = errors.New("a bid is already being submitted")
	ErrNoIdentity           = errors.New("bidder identity required")
	ErrBackendUnavailable   = errors.New("backend unavailable")
	ErrViewClosed           = errors.New("view has been unmounted")
)

// Reasons used by the pre-create recheck and by field validation.
const (
	ReasonNotHigher    = "must be higher than current bid"
	ReasonMinIncrement = "must meet minimum increment"
)

// ValidationError carries field-level reasons. It never involves the backend.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return fmt.Sprintf("%s: %s", ErrInvalidBid, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidBid }

// RateLimitError is returned when a session exceeded its submission window.
type RateLimitError struct {
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds the wait up to whole seconds.
func (e *RateLimitError) RetryAfterSeconds() int {
	return int((e.RetryAfter + time.Second - 1) / time.Second)
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("Rate limit exceeded. Please wait %d seconds before submitting another bid.", e.RetryAfterSeconds())
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// ConflictError means the bid no longer fits the latest known state, either
// because the pre-create recheck failed or the backend rejected the insert.
type ConflictError struct {
	Reason     string
	CurrentBid int64
	Err        error
}

func (e *ConflictError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bid amount %s (current bid %d): %v", e.Reason, e.CurrentBid, e.Err)
	}
	return fmt.Sprintf("bid amount %s (current bid %d)", e.Reason, e.CurrentBid)
}

func (e *ConflictError) Unwrap() []error {
	errs := []error{ErrBidConflict, ErrBidTooLow}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NetworkError wraps a failed round-trip to the backend.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() []error {
	return []error{ErrBackendUnavailable, e.Err}
}
