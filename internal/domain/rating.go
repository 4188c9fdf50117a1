package domain

import (
	"time"

	"github.com/google/uuid"
)

// MaxReviewLength is the longest accepted free-text review, in runes.
const MaxReviewLength = 500

// CategoryRatings holds the per-category scores of one rating. Each value is
// an integer in [1,5].
type CategoryRatings struct {
	PaymentSpeed      int `json:"payment_speed"`
	Communication     int `json:"communication"`
	PickupPunctuality int `json:"pickup_punctuality"`
}

// Rating is one post-transaction vendor rating. At most one rating may exist
// per (VendorID, AuctionID) pair; the store enforces the uniqueness before
// insert.
type Rating struct {
	ID              uuid.UUID
	VendorID        uuid.UUID
	AuctionID       uuid.UUID
	RatedBy         uuid.UUID
	OverallRating   int
	CategoryRatings CategoryRatings
	Review          string
	CreatedAt       time.Time
}
