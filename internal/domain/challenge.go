package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Challenge is a pending one-time-code verification tying a bid submission
// to its confirm call. Challenges live only in the cache with a TTL; the
// code itself is stored as a SHA-256 hash and never persisted in clear.
type Challenge struct {
	Handle     uuid.UUID       `json:"handle"`
	AuctionID  uuid.UUID       `json:"auction_id"`
	VendorID   uuid.UUID       `json:"vendor_id"`
	Amount     decimal.Decimal `json:"amount"`
	CodeHash   string          `json:"code_hash"`
	IPAddress  string          `json:"ip_address"`
	DeviceType string          `json:"device_type"`
	UserAgent  string          `json:"user_agent"`
	ExpiresAt  time.Time       `json:"expires_at"`
}

// Expired reports whether the challenge's one-time code is past its expiry
// at the given instant.
func (c Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// ChallengeAck is the caller-facing acknowledgment of a submitted bid. It
// carries the opaque handle and expiry but never the code value, which is
// dispatched out of band through the notification gateway.
type ChallengeAck struct {
	Handle    uuid.UUID `json:"challenge_handle"`
	ExpiresAt time.Time `json:"expires_at"`
}
