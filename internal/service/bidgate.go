package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/salvagehub/salvagebid/internal/crypto"
	"github.com/salvagehub/salvagebid/internal/domain"
)

// challengeRetention is how long a challenge outlives its logical code
// expiry in the store. The window lets a confirm that arrives after
// ExpiresAt find the challenge and fail with ErrCodeExpired; an eviction at
// exactly ExpiresAt would make every late confirm indistinguishable from a
// wrong code.
const challengeRetention = 2 * time.Minute

// ScanScheduler hands accepted bids to the asynchronous fraud pipeline. The
// boolean result reports whether the job was queued; a full queue drops the
// job rather than stalling the accept path.
type ScanScheduler interface {
	Schedule(job domain.ScanJob) bool
}

// GateConfig carries the bid-submission tunables.
type GateConfig struct {
	// OTPExpiry is how long a one-time confirmation code stays valid.
	OTPExpiry time.Duration

	// SubmitLimitPerMinute caps submissions per vendor per minute.
	SubmitLimitPerMinute int
}

// SubmitRequest is one bid submission attempt.
type SubmitRequest struct {
	AuctionID  uuid.UUID
	VendorID   uuid.UUID
	Amount     decimal.Decimal
	IPAddress  string
	DeviceType string
	UserAgent  string
}

// BidGate runs the two-phase challenge-response bidding protocol: Submit
// validates the bid and issues a one-time code, Confirm consumes the code
// and hands the bid to the ledger.
type BidGate struct {
	auctions   domain.AuctionStore
	vendors    domain.VendorStore
	challenges domain.ChallengeStore
	limiter    domain.RateLimiter
	gateway    domain.NotificationGateway
	audit      domain.AuditStore
	ledger     *AuctionLedger
	scanner    ScanScheduler
	ceilings   domain.TierCeilings
	cfg        GateConfig
	logger     *slog.Logger
	now        func() time.Time
}

// NewBidGate creates a BidGate with all required dependencies.
func NewBidGate(
	auctions domain.AuctionStore,
	vendors domain.VendorStore,
	challenges domain.ChallengeStore,
	limiter domain.RateLimiter,
	gateway domain.NotificationGateway,
	audit domain.AuditStore,
	ledger *AuctionLedger,
	scanner ScanScheduler,
	cfg GateConfig,
	logger *slog.Logger,
) *BidGate {
	return &BidGate{
		auctions:   auctions,
		vendors:    vendors,
		challenges: challenges,
		limiter:    limiter,
		gateway:    gateway,
		audit:      audit,
		ledger:     ledger,
		scanner:    scanner,
		ceilings:   domain.DefaultTierCeilings(),
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// WithTierCeilings overrides the tier -> bid-ceiling table.
func (g *BidGate) WithTierCeilings(ceilings domain.TierCeilings) *BidGate {
	g.ceilings = ceilings
	return g
}

// WithClock overrides the gate's clock.
func (g *BidGate) WithClock(now func() time.Time) *BidGate {
	g.now = now
	return g
}

// Submit validates a bid attempt and, when it passes, issues a single-use
// numeric code dispatched out of band to the vendor. At most one challenge
// is outstanding per (vendor, auction): a fresh Submit invalidates any prior
// unconfirmed one. The code value never appears in the response or in logs.
func (g *BidGate) Submit(ctx context.Context, req SubmitRequest) (domain.ChallengeAck, error) {
	allowed, err := g.limiter.Allow(ctx, "bids:"+req.VendorID.String(), g.cfg.SubmitLimitPerMinute, time.Minute)
	if err != nil {
		return domain.ChallengeAck{}, fmt.Errorf("bidgate: rate limiter: %w", err)
	}
	if !allowed {
		return domain.ChallengeAck{}, domain.ErrRateLimited
	}

	auction, err := g.auctions.GetByID(ctx, req.AuctionID)
	if err != nil {
		return domain.ChallengeAck{}, fmt.Errorf("bidgate: get auction %s: %w", req.AuctionID, err)
	}

	now := g.now().UTC()
	if !auction.BiddableAt(now) {
		return domain.ChallengeAck{}, domain.ErrAuctionClosed
	}
	if req.Amount.LessThan(auction.MinimumNextBid()) {
		return domain.ChallengeAck{}, domain.ErrInsufficientAmount
	}

	vendor, err := g.vendors.GetByID(ctx, req.VendorID)
	if err != nil {
		return domain.ChallengeAck{}, fmt.Errorf("bidgate: get vendor %s: %w", req.VendorID, err)
	}
	if ceiling, unlimited := g.ceilings.Ceiling(vendor.Tier); !unlimited && req.Amount.GreaterThan(ceiling) {
		return domain.ChallengeAck{}, domain.ErrTierCeilingExceeded
	}

	code, err := crypto.GenerateOTP()
	if err != nil {
		return domain.ChallengeAck{}, fmt.Errorf("bidgate: generate code: %w", err)
	}

	ch := domain.Challenge{
		Handle:     uuid.New(),
		AuctionID:  req.AuctionID,
		VendorID:   req.VendorID,
		Amount:     req.Amount,
		CodeHash:   crypto.HashCode(code),
		IPAddress:  req.IPAddress,
		DeviceType: req.DeviceType,
		UserAgent:  req.UserAgent,
		ExpiresAt:  now.Add(g.cfg.OTPExpiry),
	}

	if err := g.challenges.Put(ctx, ch, g.cfg.OTPExpiry+challengeRetention); err != nil {
		return domain.ChallengeAck{}, fmt.Errorf("bidgate: store challenge: %w", err)
	}

	// The code travels only through the notification channel. A delivery
	// failure leaves an unusable challenge behind; the vendor re-submits.
	if err := g.gateway.Notify(ctx, domain.NotifyOTPCode, map[string]any{
		"vendor_id":  req.VendorID,
		"auction_id": req.AuctionID,
		"code":       code,
		"expires_at": ch.ExpiresAt,
	}); err != nil {
		g.logger.WarnContext(ctx, "bidgate: code delivery failed",
			slog.String("vendor_id", req.VendorID.String()),
			slog.String("auction_id", req.AuctionID.String()),
			slog.String("error", err.Error()),
		)
	}

	if err := g.audit.Log(ctx, "bid_submitted", map[string]any{
		"auction_id": req.AuctionID.String(),
		"vendor_id":  req.VendorID.String(),
		"amount":     req.Amount.String(),
		"handle":     ch.Handle.String(),
	}); err != nil {
		g.logger.WarnContext(ctx, "bidgate: audit log failed",
			slog.String("handle", ch.Handle.String()),
			slog.String("error", err.Error()),
		)
	}

	g.logger.InfoContext(ctx, "bidgate: challenge issued",
		slog.String("auction_id", req.AuctionID.String()),
		slog.String("vendor_id", req.VendorID.String()),
		slog.String("handle", ch.Handle.String()),
	)

	return domain.ChallengeAck{Handle: ch.Handle, ExpiresAt: ch.ExpiresAt}, nil
}

// Confirm verifies a one-time code and commits the bid it guards. The code
// is consumed atomically on the first correct match: a second Confirm with
// the same code fails with ErrInvalidCode even when the two race. The amount
// is re-validated against live auction state inside the ledger; a competing
// bid accepted since Submit surfaces as ErrBidSuperseded and requires a
// fresh Submit. On success the fraud scan is scheduled without being waited
// on.
func (g *BidGate) Confirm(ctx context.Context, handle uuid.UUID, code string) (domain.AuctionSummary, error) {
	ch, err := g.challenges.Consume(ctx, handle, crypto.HashCode(code))
	if err != nil {
		return domain.AuctionSummary{}, err
	}
	if ch.Expired(g.now().UTC()) {
		return domain.AuctionSummary{}, domain.ErrCodeExpired
	}

	res, err := g.ledger.AcceptBid(ctx, ch.AuctionID, ch.VendorID, ch.Amount, ch.IPAddress, ch.DeviceType, ch.UserAgent)
	if err != nil {
		return domain.AuctionSummary{}, err
	}

	if !g.scanner.Schedule(domain.ScanJob{
		AuctionID:   ch.AuctionID,
		VendorID:    ch.VendorID,
		BidID:       res.BidID,
		Amount:      ch.Amount,
		IPAddress:   ch.IPAddress,
		PreviousBid: res.PreviousBid,
	}) {
		g.logger.WarnContext(ctx, "bidgate: fraud scan queue full, job dropped",
			slog.String("bid_id", res.BidID.String()),
		)
	}

	return res.Summary, nil
}
