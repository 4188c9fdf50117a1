package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/salvagehub/salvagebid/internal/domain"
)

// SentinelConfig carries the fraud heuristic thresholds.
type SentinelConfig struct {
	// JumpMultiple flags a bid exceeding this multiple of the previous bid.
	JumpMultiple int64

	// NewAccountDays is the account age below which the jump heuristic
	// applies.
	NewAccountDays int
}

// FraudSentinel screens accepted bids with three independent heuristics and
// unions their findings into at most one FraudFlag per scan. It runs after
// the accepting transaction has committed, reads committed state only, and
// holds no lock shared with the ledger.
type FraudSentinel struct {
	bids    domain.BidStore
	vendors domain.VendorStore
	flags   domain.FraudFlagStore
	gateway domain.NotificationGateway
	audit   domain.AuditStore
	cfg     SentinelConfig
	logger  *slog.Logger
	now     func() time.Time
}

// NewFraudSentinel creates a FraudSentinel with all required dependencies.
func NewFraudSentinel(
	bids domain.BidStore,
	vendors domain.VendorStore,
	flags domain.FraudFlagStore,
	gateway domain.NotificationGateway,
	audit domain.AuditStore,
	cfg SentinelConfig,
	logger *slog.Logger,
) *FraudSentinel {
	return &FraudSentinel{
		bids:    bids,
		vendors: vendors,
		flags:   flags,
		gateway: gateway,
		audit:   audit,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock overrides the sentinel's clock.
func (s *FraudSentinel) WithClock(now func() time.Time) *FraudSentinel {
	s.now = now
	return s
}

// Scan evaluates all three heuristics against one accepted bid, always in
// full: a firing heuristic never short-circuits the others. Lookup failures
// degrade that heuristic to "no finding" rather than raising, since the scan
// is advisory and the bid is already committed. The returned flag is nil
// when nothing fired.
func (s *FraudSentinel) Scan(ctx context.Context, job domain.ScanJob) *domain.FraudFlag {
	var patterns []domain.FraudPattern

	if p := s.checkSameIP(ctx, job); p != nil {
		patterns = append(patterns, p)
	}
	if p := s.checkBidJump(ctx, job); p != nil {
		patterns = append(patterns, p)
	}
	if p := s.checkDuplicateIdentity(ctx, job); p != nil {
		patterns = append(patterns, p)
	}

	if len(patterns) == 0 {
		return nil
	}

	flag := domain.FraudFlag{
		ID:        uuid.New(),
		AuctionID: job.AuctionID,
		VendorID:  job.VendorID,
		Patterns:  patterns,
		RaisedAt:  s.now().UTC(),
	}

	if err := s.flags.Create(ctx, flag); err != nil {
		s.logger.ErrorContext(ctx, "sentinel: persist flag failed",
			slog.String("bid_id", job.BidID.String()),
			slog.String("error", err.Error()),
		)
		return nil
	}

	count, err := s.vendors.IncrementFraudFlags(ctx, job.VendorID)
	if err != nil {
		s.logger.ErrorContext(ctx, "sentinel: increment fraud flags failed",
			slog.String("vendor_id", job.VendorID.String()),
			slog.String("error", err.Error()),
		)
	}

	// Fraud alerts go to the review desk, never to the bidder.
	if err := s.gateway.Notify(ctx, domain.NotifyFraudAlert, map[string]any{
		"auction_id": job.AuctionID,
		"vendor_id":  job.VendorID,
		"bid_amount": job.Amount,
		"patterns":   flag.PatternKinds(),
		"evidence":   flag.EvidenceList(),
	}); err != nil {
		s.logger.WarnContext(ctx, "sentinel: fraud alert notify failed",
			slog.String("vendor_id", job.VendorID.String()),
			slog.String("error", err.Error()),
		)
	}

	if err := s.audit.Log(ctx, "fraud_flag_raised", map[string]any{
		"flag_id":    flag.ID.String(),
		"auction_id": job.AuctionID.String(),
		"vendor_id":  job.VendorID.String(),
		"bid_id":     job.BidID.String(),
		"patterns":   flag.PatternKinds(),
		"flag_count": count,
	}); err != nil {
		s.logger.WarnContext(ctx, "sentinel: audit log failed",
			slog.String("flag_id", flag.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "sentinel: fraud flag raised",
		slog.String("auction_id", job.AuctionID.String()),
		slog.String("vendor_id", job.VendorID.String()),
		slog.Int("patterns", len(patterns)),
	)

	return &flag
}

func (s *FraudSentinel) checkSameIP(ctx context.Context, job domain.ScanJob) domain.FraudPattern {
	if job.IPAddress == "" {
		return nil
	}
	count, err := s.bids.CountDistinctVendorsByIP(ctx, job.AuctionID, job.IPAddress)
	if err != nil {
		s.logger.WarnContext(ctx, "sentinel: same-ip lookup failed",
			slog.String("auction_id", job.AuctionID.String()),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if count <= 1 {
		return nil
	}
	return domain.SameIPCollusion{IPAddress: job.IPAddress, VendorCount: count}
}

func (s *FraudSentinel) checkBidJump(ctx context.Context, job domain.ScanJob) domain.FraudPattern {
	if job.PreviousBid == nil || !job.PreviousBid.IsPositive() {
		return nil
	}
	threshold := job.PreviousBid.Mul(decimal.NewFromInt(s.cfg.JumpMultiple))
	if !job.Amount.GreaterThan(threshold) {
		return nil
	}

	vendor, err := s.vendors.GetByID(ctx, job.VendorID)
	if err != nil {
		s.logger.WarnContext(ctx, "sentinel: vendor lookup failed",
			slog.String("vendor_id", job.VendorID.String()),
			slog.String("error", err.Error()),
		)
		return nil
	}

	age := vendor.AccountAgeDays(s.now().UTC())
	if age >= s.cfg.NewAccountDays {
		return nil
	}
	return domain.UnusualBidJump{
		Amount:         job.Amount,
		PreviousBid:    *job.PreviousBid,
		AccountAgeDays: age,
	}
}

func (s *FraudSentinel) checkDuplicateIdentity(ctx context.Context, job domain.ScanJob) domain.FraudPattern {
	vendor, err := s.vendors.GetByID(ctx, job.VendorID)
	if err != nil {
		s.logger.WarnContext(ctx, "sentinel: vendor lookup failed",
			slog.String("vendor_id", job.VendorID.String()),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if vendor.Phone == "" && vendor.IdentityHash == "" {
		return nil
	}

	linked, err := s.vendors.CountLinkedIdentities(ctx, job.VendorID, vendor.Phone, vendor.IdentityHash)
	if err != nil {
		s.logger.WarnContext(ctx, "sentinel: identity lookup failed",
			slog.String("vendor_id", job.VendorID.String()),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if linked == 0 {
		return nil
	}
	return domain.DuplicateIdentity{LinkedAccounts: linked}
}
