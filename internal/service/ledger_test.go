package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/salvagehub/salvagebid/internal/domain"
)

type ledgerFixture struct {
	ledger  *AuctionLedger
	store   *fakeAuctionStore
	cache   *fakeSummaryCache
	bus     *fakeEventBus
	gateway *fakeGateway
	audit   *fakeAuditStore
	now     time.Time
}

func newLedgerFixture(t *testing.T, cfg LedgerConfig) *ledgerFixture {
	t.Helper()
	f := &ledgerFixture{
		store:   newFakeAuctionStore(),
		cache:   newFakeSummaryCache(),
		bus:     &fakeEventBus{},
		gateway: &fakeGateway{},
		audit:   &fakeAuditStore{},
		now:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.ledger = NewAuctionLedger(f.store, f.cache, f.bus, f.gateway, f.audit, cfg, testLogger()).
		WithClock(func() time.Time { return f.now })
	return f
}

func (f *ledgerFixture) addAuction(t *testing.T, a domain.Auction) domain.Auction {
	t.Helper()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = domain.AuctionStatusActive
	}
	if a.EndTime.IsZero() {
		a.EndTime = f.now.Add(time.Hour)
	}
	if a.OriginalEndTime.IsZero() {
		a.OriginalEndTime = a.EndTime
	}
	require.NoError(t, f.store.Create(context.Background(), a))
	return a
}

func defaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		ExtensionWindow: 5 * time.Minute,
		MaxExtensions:   6,
		AcceptRetries:   3,
	}
}

func TestAcceptBidOpeningBid(t *testing.T) {
	f := newLedgerFixture(t, defaultLedgerConfig())
	auction := f.addAuction(t, domain.Auction{
		ReservePrice:     decimal.NewFromInt(1000),
		MinimumIncrement: decimal.NewFromInt(50),
	})
	vendor := uuid.New()

	res, err := f.ledger.AcceptBid(context.Background(), auction.ID, vendor, decimal.NewFromInt(1200), "10.0.0.1", "mobile", "ua")
	require.NoError(t, err)
	require.True(t, res.Summary.Winning)
	require.False(t, res.Summary.Extended)
	require.True(t, res.Summary.CurrentBid.Equal(decimal.NewFromInt(1200)))
	require.Nil(t, res.PreviousBid)
	require.Nil(t, res.PreviousBidderID)

	// Ledger state advanced under a version bump.
	stored, err := f.store.GetByID(context.Background(), auction.ID)
	require.NoError(t, err)
	require.Equal(t, auction.Version+1, stored.Version)
	require.NotNil(t, stored.CurrentBid)
	require.True(t, stored.CurrentBid.Equal(decimal.NewFromInt(1200)))
	require.Equal(t, vendor, *stored.CurrentBidderID)

	// Bid row is appended and marked verified.
	require.Len(t, f.store.bids, 1)
	require.True(t, f.store.bids[0].OTPVerified)
	require.Equal(t, "10.0.0.1", f.store.bids[0].IPAddress)

	// Post-commit side effects.
	require.Len(t, f.bus.published, 1)
	require.Equal(t, "auction:"+auction.ID.String(), f.bus.published[0].channel)
	var evt map[string]any
	require.NoError(t, json.Unmarshal(f.bus.published[0].payload, &evt))
	require.Equal(t, "bid_accepted", evt["event"])
	require.Len(t, f.audit.byEvent("bid_accepted"), 1)

	// Taking the lead from nobody is still taking the lead.
	winning := f.gateway.byKind(domain.NotifyWinning)
	require.Len(t, winning, 1)
	require.Equal(t, vendor, winning[0].payload["vendor_id"])
	require.Empty(t, f.gateway.byKind(domain.NotifyOutbid))

	// Cache snapshot is caller-neutral.
	cached, err := f.cache.GetSummary(context.Background(), auction.ID)
	require.NoError(t, err)
	require.False(t, cached.Winning)
}

func TestAcceptBidClosedAuction(t *testing.T) {
	f := newLedgerFixture(t, defaultLedgerConfig())
	auction := f.addAuction(t, domain.Auction{
		Status:       domain.AuctionStatusClosed,
		ReservePrice: decimal.NewFromInt(100),
	})

	_, err := f.ledger.AcceptBid(context.Background(), auction.ID, uuid.New(), decimal.NewFromInt(150), "", "", "")
	require.ErrorIs(t, err, domain.ErrAuctionClosed)
	require.Empty(t, f.store.bids)
}

func TestAcceptBidPastEndTime(t *testing.T) {
	f := newLedgerFixture(t, defaultLedgerConfig())
	auction := f.addAuction(t, domain.Auction{
		EndTime:      f.now.Add(-time.Second),
		ReservePrice: decimal.NewFromInt(100),
	})

	_, err := f.ledger.AcceptBid(context.Background(), auction.ID, uuid.New(), decimal.NewFromInt(150), "", "", "")
	require.ErrorIs(t, err, domain.ErrAuctionClosed)
}

func TestAcceptBidBelowMinimumIsSuperseded(t *testing.T) {
	f := newLedgerFixture(t, defaultLedgerConfig())
	current := decimal.NewFromInt(2000)
	leader := uuid.New()
	auction := f.addAuction(t, domain.Auction{
		ReservePrice:     decimal.NewFromInt(1000),
		MinimumIncrement: decimal.NewFromInt(100),
		CurrentBid:       &current,
		CurrentBidderID:  &leader,
	})

	// 2050 < 2000 + 100: a competing bid must have landed since the gate check.
	_, err := f.ledger.AcceptBid(context.Background(), auction.ID, uuid.New(), decimal.NewFromInt(2050), "", "", "")
	require.ErrorIs(t, err, domain.ErrBidSuperseded)
}

func TestAcceptBidMinimumIncrementBoundary(t *testing.T) {
	f := newLedgerFixture(t, defaultLedgerConfig())
	current := decimal.NewFromInt(2000)
	leader := uuid.New()
	auction := f.addAuction(t, domain.Auction{
		ReservePrice:     decimal.NewFromInt(1000),
		MinimumIncrement: decimal.NewFromInt(100),
		CurrentBid:       &current,
		CurrentBidderID:  &leader,
	})

	_, err := f.ledger.AcceptBid(context.Background(), auction.ID, uuid.New(), decimal.NewFromInt(2099), "", "", "")
	require.ErrorIs(t, err, domain.ErrBidSuperseded)

	// The floor is inclusive: current + increment exactly is a valid raise.
	res, err := f.ledger.AcceptBid(context.Background(), auction.ID, uuid.New(), decimal.NewFromInt(2100), "", "", "")
	require.NoError(t, err)
	require.True(t, res.Summary.CurrentBid.Equal(decimal.NewFromInt(2100)))
}

func TestAcceptBidAntiSnipingExtension(t *testing.T) {
	f := newLedgerFixture(t, defaultLedgerConfig())
	end := f.now.Add(3 * time.Minute) // inside the 5m window
	auction := f.addAuction(t, domain.Auction{
		EndTime:      end,
		ReservePrice: decimal.NewFromInt(100),
	})

	res, err := f.ledger.AcceptBid(context.Background(), auction.ID, uuid.New(), decimal.NewFromInt(500), "", "", "")
	require.NoError(t, err)
	require.True(t, res.Summary.Extended)
	require.Equal(t, 1, res.Summary.ExtensionCount)
	// The close moves by the window from the scheduled end, not from now.
	require.Equal(t, end.Add(5*time.Minute), res.Summary.EndTime)

	stored, _ := f.store.GetByID(context.Background(), auction.ID)
	require.Equal(t, 1, stored.ExtensionCount)
	require.Equal(t, end.Add(5*time.Minute), stored.EndTime)
}

func TestAcceptBidExtensionCap(t *testing.T) {
	cfg := defaultLedgerConfig()
	cfg.MaxExtensions = 2
	f := newLedgerFixture(t, cfg)
	end := f.now.Add(time.Minute)
	auction := f.addAuction(t, domain.Auction{
		EndTime:        end,
		ExtensionCount: 2,
		ReservePrice:   decimal.NewFromInt(100),
	})

	res, err := f.ledger.AcceptBid(context.Background(), auction.ID, uuid.New(), decimal.NewFromInt(500), "", "", "")
	require.NoError(t, err)
	require.False(t, res.Summary.Extended)
	require.Equal(t, 2, res.Summary.ExtensionCount)
	require.Equal(t, end, res.Summary.EndTime)
}

func TestAcceptBidNoExtensionOutsideWindow(t *testing.T) {
	f := newLedgerFixture(t, defaultLedgerConfig())
	end := f.now.Add(time.Hour)
	auction := f.addAuction(t, domain.Auction{
		EndTime:      end,
		ReservePrice: decimal.NewFromInt(100),
	})

	res, err := f.ledger.AcceptBid(context.Background(), auction.ID, uuid.New(), decimal.NewFromInt(500), "", "", "")
	require.NoError(t, err)
	require.False(t, res.Summary.Extended)
	require.Equal(t, end, res.Summary.EndTime)
}

func TestAcceptBidNotifiesDisplacedBidder(t *testing.T) {
	f := newLedgerFixture(t, defaultLedgerConfig())
	current := decimal.NewFromInt(1000)
	displaced := uuid.New()
	auction := f.addAuction(t, domain.Auction{
		ReservePrice:     decimal.NewFromInt(500),
		MinimumIncrement: decimal.NewFromInt(50),
		CurrentBid:       &current,
		CurrentBidderID:  &displaced,
	})
	challenger := uuid.New()

	res, err := f.ledger.AcceptBid(context.Background(), auction.ID, challenger, decimal.NewFromInt(1100), "", "", "")
	require.NoError(t, err)
	require.Equal(t, displaced, *res.PreviousBidderID)

	outbid := f.gateway.byKind(domain.NotifyOutbid)
	require.Len(t, outbid, 1)
	require.Equal(t, displaced, outbid[0].payload["vendor_id"])

	winning := f.gateway.byKind(domain.NotifyWinning)
	require.Len(t, winning, 1)
	require.Equal(t, challenger, winning[0].payload["vendor_id"])
}

func TestAcceptBidSelfRaiseSendsNoOutbid(t *testing.T) {
	f := newLedgerFixture(t, defaultLedgerConfig())
	current := decimal.NewFromInt(1000)
	leader := uuid.New()
	auction := f.addAuction(t, domain.Auction{
		ReservePrice:     decimal.NewFromInt(500),
		MinimumIncrement: decimal.NewFromInt(50),
		CurrentBid:       &current,
		CurrentBidderID:  &leader,
	})

	_, err := f.ledger.AcceptBid(context.Background(), auction.ID, leader, decimal.NewFromInt(1100), "", "", "")
	require.NoError(t, err)
	require.Empty(t, f.gateway.byKind(domain.NotifyOutbid))
	require.Empty(t, f.gateway.byKind(domain.NotifyWinning))
}

func TestAcceptBidRetriesAfterConflict(t *testing.T) {
	f := newLedgerFixture(t, defaultLedgerConfig())
	auction := f.addAuction(t, domain.Auction{
		ReservePrice:     decimal.NewFromInt(100),
		MinimumIncrement: decimal.NewFromInt(10),
	})
	f.store.forceConflicts = 1

	res, err := f.ledger.AcceptBid(context.Background(), auction.ID, uuid.New(), decimal.NewFromInt(500), "", "", "")
	require.NoError(t, err)
	require.True(t, res.Summary.Winning)
	require.Len(t, f.store.bids, 1)
}

func TestAcceptBidSupersededDuringRetry(t *testing.T) {
	f := newLedgerFixture(t, defaultLedgerConfig())
	auction := f.addAuction(t, domain.Auction{
		ReservePrice:     decimal.NewFromInt(100),
		MinimumIncrement: decimal.NewFromInt(10),
	})
	// The competing writer that wins the race pushes the standing bid past
	// the caller's amount.
	f.store.forceConflicts = 1
	f.store.conflictMutate = func(a *domain.Auction) {
		winner := decimal.NewFromInt(600)
		other := uuid.New()
		a.CurrentBid = &winner
		a.CurrentBidderID = &other
	}

	_, err := f.ledger.AcceptBid(context.Background(), auction.ID, uuid.New(), decimal.NewFromInt(500), "", "", "")
	require.ErrorIs(t, err, domain.ErrBidSuperseded)
	require.Empty(t, f.store.bids)
}

func TestAcceptBidRetriesExhausted(t *testing.T) {
	cfg := defaultLedgerConfig()
	cfg.AcceptRetries = 2
	f := newLedgerFixture(t, cfg)
	auction := f.addAuction(t, domain.Auction{
		ReservePrice:     decimal.NewFromInt(100),
		MinimumIncrement: decimal.NewFromInt(10),
	})
	f.store.forceConflicts = 5

	_, err := f.ledger.AcceptBid(context.Background(), auction.ID, uuid.New(), decimal.NewFromInt(500), "", "", "")
	require.ErrorIs(t, err, domain.ErrBidSuperseded)
	require.ErrorIs(t, err, domain.ErrVersionConflict)
}

func TestSummaryOverlaysWinningFromCache(t *testing.T) {
	f := newLedgerFixture(t, defaultLedgerConfig())
	vendor := uuid.New()
	auction := f.addAuction(t, domain.Auction{
		ReservePrice:     decimal.NewFromInt(100),
		MinimumIncrement: decimal.NewFromInt(10),
	})

	_, err := f.ledger.AcceptBid(context.Background(), auction.ID, vendor, decimal.NewFromInt(500), "", "", "")
	require.NoError(t, err)

	// The cache snapshot is shared; Winning is overlaid per caller.
	summary, err := f.ledger.Summary(context.Background(), auction.ID, vendor)
	require.NoError(t, err)
	require.True(t, summary.Winning)

	summary, err = f.ledger.Summary(context.Background(), auction.ID, uuid.New())
	require.NoError(t, err)
	require.False(t, summary.Winning)
}

func TestSummaryFallsBackToStore(t *testing.T) {
	f := newLedgerFixture(t, defaultLedgerConfig())
	current := decimal.NewFromInt(750)
	leader := uuid.New()
	auction := f.addAuction(t, domain.Auction{
		ReservePrice:    decimal.NewFromInt(100),
		CurrentBid:      &current,
		CurrentBidderID: &leader,
		ExtensionCount:  2,
	})

	summary, err := f.ledger.Summary(context.Background(), auction.ID, leader)
	require.NoError(t, err)
	require.True(t, summary.CurrentBid.Equal(current))
	require.Equal(t, 2, summary.ExtensionCount)
	require.True(t, summary.Winning)
}

func TestSummaryUnknownAuction(t *testing.T) {
	f := newLedgerFixture(t, defaultLedgerConfig())
	_, err := f.ledger.Summary(context.Background(), uuid.New(), uuid.New())
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWatchAdjustsCount(t *testing.T) {
	f := newLedgerFixture(t, defaultLedgerConfig())
	auction := f.addAuction(t, domain.Auction{ReservePrice: decimal.NewFromInt(100)})

	count, err := f.ledger.Watch(context.Background(), auction.ID, 1)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	count, err = f.ledger.Watch(context.Background(), auction.ID, -1)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}
