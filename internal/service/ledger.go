package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/salvagehub/salvagebid/internal/domain"
)

// summaryCacheTTL bounds how long a cached auction snapshot may outlive the
// write that produced it.
const summaryCacheTTL = 30 * time.Second

// LedgerConfig carries the auction-level tunables of the accept path.
type LedgerConfig struct {
	// ExtensionWindow is the anti-sniping threshold: a bid accepted when
	// less than this remains before close extends the close time by the
	// same amount.
	ExtensionWindow time.Duration

	// MaxExtensions caps automatic extensions per auction; past the cap the
	// auction closes on schedule regardless of last-second bids.
	MaxExtensions int

	// AcceptRetries bounds the optimistic-concurrency retry loop.
	AcceptRetries int
}

// AcceptResult is the outcome of one accepted bid: the caller-facing summary
// plus the displaced state the caller needs for follow-up work (fraud
// scanning, outbid notification).
type AcceptResult struct {
	Summary          domain.AuctionSummary
	BidID            uuid.UUID
	PreviousBid      *decimal.Decimal
	PreviousBidderID *uuid.UUID
}

// AuctionLedger owns the authoritative auction state and its single write
// path. AcceptBid is the per-auction serialization point: all mutation goes
// through one version-guarded transaction, retried on conflict.
type AuctionLedger struct {
	auctions  domain.AuctionStore
	summaries domain.SummaryCache
	bus       domain.EventBus
	gateway   domain.NotificationGateway
	audit     domain.AuditStore
	cfg       LedgerConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewAuctionLedger creates an AuctionLedger with all required dependencies.
func NewAuctionLedger(
	auctions domain.AuctionStore,
	summaries domain.SummaryCache,
	bus domain.EventBus,
	gateway domain.NotificationGateway,
	audit domain.AuditStore,
	cfg LedgerConfig,
	logger *slog.Logger,
) *AuctionLedger {
	if cfg.AcceptRetries < 1 {
		cfg.AcceptRetries = 1
	}
	return &AuctionLedger{
		auctions:  auctions,
		summaries: summaries,
		bus:       bus,
		gateway:   gateway,
		audit:     audit,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock overrides the ledger's clock. Extension decisions always use
// this server-side clock, never caller-supplied timestamps.
func (l *AuctionLedger) WithClock(now func() time.Time) *AuctionLedger {
	l.now = now
	return l
}

// AcceptBid atomically applies one bid to the auction: it re-checks the
// amount against the latest stored state, persists the bid row, advances
// currentBid/currentBidder, and applies the anti-sniping extension, all in
// one version-guarded transaction. On a version conflict it re-reads and
// retries with the amount re-validated; when a competing bid has raised the
// minimum past the caller's amount it returns ErrBidSuperseded. After the
// transaction commits it refreshes the summary cache, publishes the live
// event, notifies the displaced bidder, and writes the audit entry; none of
// that happens while auction state is held.
func (l *AuctionLedger) AcceptBid(ctx context.Context, auctionID, vendorID uuid.UUID, amount decimal.Decimal, ip, deviceType, userAgent string) (AcceptResult, error) {
	var lastErr error
	for attempt := 0; attempt < l.cfg.AcceptRetries; attempt++ {
		auction, err := l.auctions.GetByID(ctx, auctionID)
		if err != nil {
			return AcceptResult{}, fmt.Errorf("ledger: get auction %s: %w", auctionID, err)
		}

		now := l.now().UTC()
		if !auction.BiddableAt(now) {
			return AcceptResult{}, domain.ErrAuctionClosed
		}
		if amount.LessThan(auction.MinimumNextBid()) {
			// The amount passed BidGate's pre-check, so a competing bid
			// must have raised the minimum in between.
			return AcceptResult{}, domain.ErrBidSuperseded
		}

		prevBid := auction.CurrentBid
		prevBidder := auction.CurrentBidderID

		next := auction
		next.CurrentBid = &amount
		next.CurrentBidderID = &vendorID

		extended := false
		if auction.EndTime.Sub(now) <= l.cfg.ExtensionWindow && auction.ExtensionCount < l.cfg.MaxExtensions {
			next.EndTime = auction.EndTime.Add(l.cfg.ExtensionWindow)
			next.ExtensionCount = auction.ExtensionCount + 1
			extended = true
		}

		bid := domain.Bid{
			ID:          uuid.New(),
			AuctionID:   auctionID,
			VendorID:    vendorID,
			Amount:      amount,
			IPAddress:   ip,
			DeviceType:  deviceType,
			UserAgent:   userAgent,
			OTPVerified: true,
			CreatedAt:   now,
		}

		err = l.auctions.ApplyBid(ctx, next, auction.Version, bid)
		if errors.Is(err, domain.ErrVersionConflict) {
			lastErr = err
			continue
		}
		if err != nil {
			return AcceptResult{}, fmt.Errorf("ledger: apply bid %s: %w", bid.ID, err)
		}

		result := AcceptResult{
			Summary: domain.AuctionSummary{
				AuctionID:      auctionID,
				CurrentBid:     amount,
				EndTime:        next.EndTime,
				ExtensionCount: next.ExtensionCount,
				Extended:       extended,
				Winning:        true,
			},
			BidID:            bid.ID,
			PreviousBid:      prevBid,
			PreviousBidderID: prevBidder,
		}

		l.afterAccept(ctx, result, vendorID)
		return result, nil
	}

	// Every attempt lost the version race; the caller must re-submit.
	l.logger.WarnContext(ctx, "ledger: accept retries exhausted",
		slog.String("auction_id", auctionID.String()),
		slog.String("vendor_id", vendorID.String()),
		slog.Int("attempts", l.cfg.AcceptRetries),
	)
	return AcceptResult{}, fmt.Errorf("ledger: accept bid: %w (%w)", domain.ErrBidSuperseded, lastErr)
}

// afterAccept runs the post-commit side effects of an accepted bid. All of
// them are advisory: failures are logged and never unwind the accepted bid.
func (l *AuctionLedger) afterAccept(ctx context.Context, res AcceptResult, vendorID uuid.UUID) {
	if err := l.summaries.SetSummary(ctx, res.Summary, summaryCacheTTL); err != nil {
		l.logger.WarnContext(ctx, "ledger: summary cache update failed",
			slog.String("auction_id", res.Summary.AuctionID.String()),
			slog.String("error", err.Error()),
		)
	}

	evt, _ := json.Marshal(map[string]any{
		"event":           "bid_accepted",
		"auction_id":      res.Summary.AuctionID,
		"current_bid":     res.Summary.CurrentBid,
		"end_time":        res.Summary.EndTime,
		"extension_count": res.Summary.ExtensionCount,
		"extended":        res.Summary.Extended,
	})
	if err := l.bus.Publish(ctx, auctionChannel(res.Summary.AuctionID), evt); err != nil {
		l.logger.WarnContext(ctx, "ledger: publish event failed",
			slog.String("auction_id", res.Summary.AuctionID.String()),
			slog.String("error", err.Error()),
		)
	}

	// The lead changes hands on an opening bid too. A self-raise keeps the
	// same leader and sends neither notification.
	leadChanged := res.PreviousBidderID == nil || *res.PreviousBidderID != vendorID
	if leadChanged && res.PreviousBidderID != nil {
		if err := l.gateway.Notify(ctx, domain.NotifyOutbid, map[string]any{
			"auction_id":  res.Summary.AuctionID,
			"vendor_id":   *res.PreviousBidderID,
			"current_bid": res.Summary.CurrentBid,
			"end_time":    res.Summary.EndTime,
		}); err != nil {
			l.logger.WarnContext(ctx, "ledger: outbid notify failed",
				slog.String("auction_id", res.Summary.AuctionID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	if leadChanged {
		if err := l.gateway.Notify(ctx, domain.NotifyWinning, map[string]any{
			"auction_id":  res.Summary.AuctionID,
			"vendor_id":   vendorID,
			"current_bid": res.Summary.CurrentBid,
		}); err != nil {
			l.logger.WarnContext(ctx, "ledger: winning notify failed",
				slog.String("auction_id", res.Summary.AuctionID.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := l.audit.Log(ctx, "bid_accepted", map[string]any{
		"auction_id": res.Summary.AuctionID.String(),
		"vendor_id":  vendorID.String(),
		"bid_id":     res.BidID.String(),
		"amount":     res.Summary.CurrentBid.String(),
		"extended":   res.Summary.Extended,
		"end_time":   res.Summary.EndTime,
	}); err != nil {
		l.logger.WarnContext(ctx, "ledger: audit log failed",
			slog.String("bid_id", res.BidID.String()),
			slog.String("error", err.Error()),
		)
	}

	l.logger.InfoContext(ctx, "ledger: bid accepted",
		slog.String("auction_id", res.Summary.AuctionID.String()),
		slog.String("vendor_id", vendorID.String()),
		slog.String("amount", res.Summary.CurrentBid.String()),
		slog.Bool("extended", res.Summary.Extended),
	)
}

// GetAuction returns the authoritative state of one auction.
func (l *AuctionLedger) GetAuction(ctx context.Context, id uuid.UUID) (domain.Auction, error) {
	auction, err := l.auctions.GetByID(ctx, id)
	if err != nil {
		return domain.Auction{}, fmt.Errorf("ledger: get auction %s: %w", id, err)
	}
	return auction, nil
}

// Summary returns the public snapshot of an auction, served from the cache
// when fresh and recomputed from the store on a miss. Winning is relative to
// the given vendor.
func (l *AuctionLedger) Summary(ctx context.Context, auctionID uuid.UUID, vendorID uuid.UUID) (domain.AuctionSummary, error) {
	summary, err := l.summaries.GetSummary(ctx, auctionID)
	if err == nil {
		if summary.CurrentBid.IsPositive() {
			// Winning is caller-relative; the cache stores it zeroed.
			auction, aerr := l.auctions.GetByID(ctx, auctionID)
			if aerr == nil && auction.CurrentBidderID != nil {
				summary.Winning = *auction.CurrentBidderID == vendorID
			}
		}
		return summary, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		l.logger.WarnContext(ctx, "ledger: summary cache read failed",
			slog.String("auction_id", auctionID.String()),
			slog.String("error", err.Error()),
		)
	}

	auction, err := l.auctions.GetByID(ctx, auctionID)
	if err != nil {
		return domain.AuctionSummary{}, fmt.Errorf("ledger: get auction %s: %w", auctionID, err)
	}

	summary = domain.AuctionSummary{
		AuctionID:      auction.ID,
		EndTime:        auction.EndTime,
		ExtensionCount: auction.ExtensionCount,
	}
	if auction.CurrentBid != nil {
		summary.CurrentBid = *auction.CurrentBid
	}
	if auction.CurrentBidderID != nil {
		summary.Winning = *auction.CurrentBidderID == vendorID
	}
	return summary, nil
}

// Watch increments or decrements an auction's watcher count and returns the
// new count.
func (l *AuctionLedger) Watch(ctx context.Context, auctionID uuid.UUID, delta int) (int, error) {
	count, err := l.auctions.AdjustWatchers(ctx, auctionID, delta)
	if err != nil {
		return 0, fmt.Errorf("ledger: adjust watchers %s: %w", auctionID, err)
	}
	return count, nil
}

// auctionChannel is the pub/sub channel carrying one auction's live events.
func auctionChannel(auctionID uuid.UUID) string {
	return "auction:" + auctionID.String()
}
