package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/salvagehub/salvagebid/internal/domain"
)

// SummaryCache implements domain.SummaryCache using Redis hashes with JSON-
// serialized auction snapshots.
//
// Key schema:
//
//	auction:summary:{id} - hash with field "data" containing JSON
//
// The Winning field is caller-relative and always stored as false; readers
// overlay it for the requesting vendor.
type SummaryCache struct {
	rdb *redis.Client
}

// NewSummaryCache creates a SummaryCache backed by the given Client.
func NewSummaryCache(c *Client) *SummaryCache {
	return &SummaryCache{rdb: c.Underlying()}
}

func summaryKey(auctionID uuid.UUID) string {
	return "auction:summary:" + auctionID.String()
}

// SetSummary stores the latest snapshot of a live auction with the given TTL.
func (sc *SummaryCache) SetSummary(ctx context.Context, summary domain.AuctionSummary, ttl time.Duration) error {
	summary.Winning = false
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("redis: marshal summary %s: %w", summary.AuctionID, err)
	}

	key := summaryKey(summary.AuctionID)

	pipe := sc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set summary %s: %w", summary.AuctionID, err)
	}
	return nil
}

// GetSummary retrieves the cached snapshot of an auction.
// It returns domain.ErrNotFound when the key does not exist.
func (sc *SummaryCache) GetSummary(ctx context.Context, auctionID uuid.UUID) (domain.AuctionSummary, error) {
	data, err := sc.rdb.HGet(ctx, summaryKey(auctionID), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.AuctionSummary{}, domain.ErrNotFound
		}
		return domain.AuctionSummary{}, fmt.Errorf("redis: get summary %s: %w", auctionID, err)
	}

	var summary domain.AuctionSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return domain.AuctionSummary{}, fmt.Errorf("redis: unmarshal summary %s: %w", auctionID, err)
	}
	return summary, nil
}

// Invalidate removes an auction's cached snapshot.
func (sc *SummaryCache) Invalidate(ctx context.Context, auctionID uuid.UUID) error {
	if err := sc.rdb.Del(ctx, summaryKey(auctionID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate summary %s: %w", auctionID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.SummaryCache = (*SummaryCache)(nil)
