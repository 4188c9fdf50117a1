package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Bid is one accepted bid. Bids form an append-only ledger: rows are never
// updated or deleted, both for auditability and because the fraud sentinel
// scans the full history of an auction.
type Bid struct {
	ID          uuid.UUID
	AuctionID   uuid.UUID
	VendorID    uuid.UUID
	Amount      decimal.Decimal
	IPAddress   string
	DeviceType  string
	UserAgent   string
	OTPVerified bool
	CreatedAt   time.Time
}

// ScanJob carries everything the fraud sentinel needs to screen one accepted
// bid. PreviousBid is the ledger's current bid at the moment the new bid was
// accepted; nil for the opening bid.
type ScanJob struct {
	AuctionID   uuid.UUID
	VendorID    uuid.UUID
	BidID       uuid.UUID
	Amount      decimal.Decimal
	IPAddress   string
	PreviousBid *decimal.Decimal
}
