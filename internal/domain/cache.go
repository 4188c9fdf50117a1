package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SummaryCache provides fast access to the latest public snapshot of a live
// auction. Entries are written after every accepted bid and carry a short
// TTL; readers fall back to the auction store on a miss.
type SummaryCache interface {
	SetSummary(ctx context.Context, summary AuctionSummary, ttl time.Duration) error
	GetSummary(ctx context.Context, auctionID uuid.UUID) (AuctionSummary, error)
	Invalidate(ctx context.Context, auctionID uuid.UUID) error
}
