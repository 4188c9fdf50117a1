package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AuctionStatus tracks the auction lifecycle. Transitions are monotonic
// (scheduled -> active -> closed) except for an explicit manager override
// into under_review.
type AuctionStatus string

const (
	AuctionStatusScheduled   AuctionStatus = "scheduled"
	AuctionStatusActive      AuctionStatus = "active"
	AuctionStatusClosed      AuctionStatus = "closed"
	AuctionStatusUnderReview AuctionStatus = "under_review"
)

// Auction is the authoritative mutable state of one salvage auction. It is
// mutated only through the ledger's ApplyBid transaction; Version is the
// optimistic-concurrency column guarding that write path.
type Auction struct {
	ID               uuid.UUID
	CaseID           uuid.UUID
	StartTime        time.Time
	EndTime          time.Time
	OriginalEndTime  time.Time
	ExtensionCount   int
	CurrentBid       *decimal.Decimal
	CurrentBidderID  *uuid.UUID
	ReservePrice     decimal.Decimal
	MinimumIncrement decimal.Decimal
	Status           AuctionStatus
	WatchingCount    int
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// MinimumNextBid returns the lowest amount the next bid may carry: the
// reserve price while no bid exists, otherwise currentBid + minimumIncrement.
func (a Auction) MinimumNextBid() decimal.Decimal {
	if a.CurrentBid == nil {
		return a.ReservePrice
	}
	return a.CurrentBid.Add(a.MinimumIncrement)
}

// BiddableAt reports whether the auction accepts bids at the given instant.
func (a Auction) BiddableAt(now time.Time) bool {
	return a.Status == AuctionStatusActive && now.Before(a.EndTime)
}

// AuctionSummary is the caller-facing snapshot returned after a confirmed
// bid. It deliberately omits bidder identities other than the caller's own
// standing.
type AuctionSummary struct {
	AuctionID      uuid.UUID       `json:"auction_id"`
	CurrentBid     decimal.Decimal `json:"current_bid"`
	EndTime        time.Time       `json:"end_time"`
	ExtensionCount int             `json:"extension_count"`
	Extended       bool            `json:"extended"`
	Winning        bool            `json:"winning"`
}
