package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// AuctionStore persists auction ledger state.
type AuctionStore interface {
	Create(ctx context.Context, a Auction) error
	GetByID(ctx context.Context, id uuid.UUID) (Auction, error)

	// ApplyBid atomically persists the bid row and the new ledger state
	// (current bid, bidder, end time, extension count) in one transaction,
	// guarded by the auction's version column. It returns ErrVersionConflict
	// when the expected version no longer matches, in which case nothing is
	// written and the caller must re-read and retry.
	ApplyBid(ctx context.Context, next Auction, expectedVersion int64, bid Bid) error

	UpdateStatus(ctx context.Context, id uuid.UUID, status AuctionStatus) error
	AdjustWatchers(ctx context.Context, id uuid.UUID, delta int) (int, error)
	ListClosedBefore(ctx context.Context, before time.Time) ([]Auction, error)
}

// BidStore reads the append-only bid ledger. Bids are only ever written
// through AuctionStore.ApplyBid.
type BidStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (Bid, error)
	ListByAuction(ctx context.Context, auctionID uuid.UUID, opts ListOpts) ([]Bid, error)
	CountDistinctVendorsByIP(ctx context.Context, auctionID uuid.UUID, ip string) (int, error)
}

// VendorStore is the vendor profile store. Identity fields are written by
// the external KYC subsystem; this core only reads them.
type VendorStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (Vendor, error)
	IncrementFraudFlags(ctx context.Context, id uuid.UUID) (int, error)
	SetRating(ctx context.Context, id uuid.UUID, rating float64) error
	CountLinkedIdentities(ctx context.Context, id uuid.UUID, phone, identityHash string) (int, error)
}

// FraudFlagStore persists append-only fraud findings.
type FraudFlagStore interface {
	Create(ctx context.Context, flag FraudFlag) error
	ListByVendor(ctx context.Context, vendorID uuid.UUID, opts ListOpts) ([]FraudFlag, error)
}

// RatingStore persists vendor ratings. Create returns ErrAlreadyRated when
// the (vendor, auction) pair already has a rating.
type RatingStore interface {
	Create(ctx context.Context, r Rating) error
	AverageForVendor(ctx context.Context, vendorID uuid.UUID) (float64, error)
	ListByVendor(ctx context.Context, vendorID uuid.UUID, opts ListOpts) ([]Rating, error)
}

// ChallengeStore holds pending one-time-code challenges. At most one
// outstanding challenge exists per (vendor, auction) pair: Put invalidates
// any prior unconfirmed challenge for the pair.
type ChallengeStore interface {
	Put(ctx context.Context, ch Challenge, ttl time.Duration) error

	// Consume atomically compares codeHash against the stored challenge and
	// deletes the challenge only on a match, so exactly one of two
	// concurrent confirms can succeed. A mismatch leaves the challenge in
	// place and returns ErrInvalidCode; a missing handle (already consumed
	// or evicted) also returns ErrInvalidCode. Expiry is the caller's check:
	// the returned challenge carries its ExpiresAt.
	Consume(ctx context.Context, handle uuid.UUID, codeHash string) (Challenge, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a durable event stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// EventBus provides pub/sub fan-out for live auction events plus durable
// streams for consumers that must not miss entries.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
