package domain

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// Validation errors. Surfaced to the caller with a reason code, never
	// retried automatically.
	ErrAuctionClosed       = errors.New("auction is not open for bidding")
	ErrInsufficientAmount  = errors.New("bid amount below minimum")
	ErrTierCeilingExceeded = errors.New("bid exceeds vendor tier ceiling")
	ErrInvalidRating       = errors.New("rating out of range")
	ErrReviewTooLong       = errors.New("review exceeds maximum length")
	ErrAlreadyRated        = errors.New("transaction already rated")

	// Challenge errors.
	ErrInvalidCode = errors.New("one-time code does not match")
	ErrCodeExpired = errors.New("one-time code expired")

	// Conflict errors. Retryable by the caller after re-reading state.
	ErrBidSuperseded   = errors.New("bid superseded by a competing bid")
	ErrVersionConflict = errors.New("auction version conflict")

	ErrRateLimited = errors.New("rate limited")
	ErrLockHeld    = errors.New("lock already held")
)

// Reason codes returned at the HTTP boundary. Each maps 1:1 to a sentinel
// error above so callers can branch without string matching.
const (
	ReasonAuctionClosed       = "auction_closed"
	ReasonInsufficientAmount  = "insufficient_amount"
	ReasonTierCeilingExceeded = "tier_ceiling_exceeded"
	ReasonInvalidCode         = "invalid_code"
	ReasonCodeExpired         = "code_expired"
	ReasonBidSuperseded       = "bid_superseded"
	ReasonAlreadyRated        = "already_rated"
	ReasonInvalidRating       = "invalid_rating"
	ReasonReviewTooLong       = "review_too_long"
	ReasonRateLimited         = "rate_limited"
	ReasonNotFound            = "not_found"
	ReasonInternal            = "internal_error"
)

// ReasonCode maps an error chain to its machine-readable reason code.
// Unrecognised errors map to internal_error.
func ReasonCode(err error) string {
	switch {
	case errors.Is(err, ErrAuctionClosed):
		return ReasonAuctionClosed
	case errors.Is(err, ErrInsufficientAmount):
		return ReasonInsufficientAmount
	case errors.Is(err, ErrTierCeilingExceeded):
		return ReasonTierCeilingExceeded
	case errors.Is(err, ErrInvalidCode):
		return ReasonInvalidCode
	case errors.Is(err, ErrCodeExpired):
		return ReasonCodeExpired
	case errors.Is(err, ErrBidSuperseded), errors.Is(err, ErrVersionConflict):
		return ReasonBidSuperseded
	case errors.Is(err, ErrAlreadyRated):
		return ReasonAlreadyRated
	case errors.Is(err, ErrInvalidRating):
		return ReasonInvalidRating
	case errors.Is(err, ErrReviewTooLong):
		return ReasonReviewTooLong
	case errors.Is(err, ErrRateLimited):
		return ReasonRateLimited
	case errors.Is(err, ErrNotFound):
		return ReasonNotFound
	default:
		return ReasonInternal
	}
}
