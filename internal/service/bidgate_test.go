package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/salvagehub/salvagebid/internal/domain"
)

type gateFixture struct {
	gate       *BidGate
	ledger     *ledgerFixture
	vendors    *fakeVendorStore
	challenges *fakeChallengeStore
	limiter    *fakeRateLimiter
	gateway    *fakeGateway
	audit      *fakeAuditStore
	scanner    *fakeScanner
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()
	lf := newLedgerFixture(t, defaultLedgerConfig())
	f := &gateFixture{
		ledger:     lf,
		vendors:    newFakeVendorStore(),
		challenges: newFakeChallengeStore(),
		limiter:    &fakeRateLimiter{allowed: true},
		gateway:    lf.gateway,
		audit:      lf.audit,
		scanner:    &fakeScanner{},
	}
	f.challenges.now = func() time.Time { return lf.now }
	f.gate = NewBidGate(
		lf.store, f.vendors, f.challenges, f.limiter, f.gateway, f.audit,
		lf.ledger, f.scanner,
		GateConfig{OTPExpiry: 5 * time.Minute, SubmitLimitPerMinute: 10},
		testLogger(),
	).WithClock(func() time.Time { return lf.now })
	return f
}

func (f *gateFixture) addVendor(t *testing.T, v domain.Vendor) domain.Vendor {
	t.Helper()
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.Tier == "" {
		v.Tier = domain.TierTwo
	}
	f.vendors.mu.Lock()
	f.vendors.vendors[v.ID] = v
	f.vendors.mu.Unlock()
	return v
}

// submittedCode pulls the clear one-time code out of the captured gateway
// dispatch. Tests confirm with it the way a vendor would.
func (f *gateFixture) submittedCode(t *testing.T) string {
	t.Helper()
	sent := f.gateway.byKind(domain.NotifyOTPCode)
	require.NotEmpty(t, sent)
	code, ok := sent[len(sent)-1].payload["code"].(string)
	require.True(t, ok)
	return code
}

func TestSubmitIssuesChallenge(t *testing.T) {
	f := newGateFixture(t)
	auction := f.ledger.addAuction(t, domain.Auction{
		ReservePrice:     decimal.NewFromInt(1000),
		MinimumIncrement: decimal.NewFromInt(50),
	})
	vendor := f.addVendor(t, domain.Vendor{})

	ack, err := f.gate.Submit(context.Background(), SubmitRequest{
		AuctionID: auction.ID,
		VendorID:  vendor.ID,
		Amount:    decimal.NewFromInt(1500),
		IPAddress: "10.0.0.1",
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, ack.Handle)
	require.Equal(t, f.ledger.now.Add(5*time.Minute), ack.ExpiresAt)

	// The code goes out of band, never in the ack.
	code := f.submittedCode(t)
	require.Len(t, code, 6)
	require.Len(t, f.audit.byEvent("bid_submitted"), 1)

	// Nothing touches the ledger until Confirm.
	require.Empty(t, f.ledger.store.bids)
}

func TestSubmitRateLimited(t *testing.T) {
	f := newGateFixture(t)
	f.limiter.allowed = false

	_, err := f.gate.Submit(context.Background(), SubmitRequest{
		AuctionID: uuid.New(),
		VendorID:  uuid.New(),
		Amount:    decimal.NewFromInt(100),
	})
	require.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestSubmitValidation(t *testing.T) {
	f := newGateFixture(t)
	current := decimal.NewFromInt(2000)
	active := f.ledger.addAuction(t, domain.Auction{
		ReservePrice:     decimal.NewFromInt(1000),
		MinimumIncrement: decimal.NewFromInt(100),
		CurrentBid:       &current,
	})
	closed := f.ledger.addAuction(t, domain.Auction{
		Status:       domain.AuctionStatusClosed,
		ReservePrice: decimal.NewFromInt(1000),
	})
	tier1 := f.addVendor(t, domain.Vendor{Tier: domain.TierOne})
	tier2 := f.addVendor(t, domain.Vendor{Tier: domain.TierTwo})

	tests := []struct {
		name    string
		req     SubmitRequest
		wantErr error
	}{
		{
			name:    "unknown auction",
			req:     SubmitRequest{AuctionID: uuid.New(), VendorID: tier2.ID, Amount: decimal.NewFromInt(5000)},
			wantErr: domain.ErrNotFound,
		},
		{
			name:    "closed auction",
			req:     SubmitRequest{AuctionID: closed.ID, VendorID: tier2.ID, Amount: decimal.NewFromInt(5000)},
			wantErr: domain.ErrAuctionClosed,
		},
		{
			name:    "below minimum",
			req:     SubmitRequest{AuctionID: active.ID, VendorID: tier2.ID, Amount: decimal.NewFromInt(2050)},
			wantErr: domain.ErrInsufficientAmount,
		},
		{
			name:    "one unit under minimum",
			req:     SubmitRequest{AuctionID: active.ID, VendorID: tier2.ID, Amount: decimal.NewFromInt(2099)},
			wantErr: domain.ErrInsufficientAmount,
		},
		{
			name: "exactly current plus increment",
			req:  SubmitRequest{AuctionID: active.ID, VendorID: tier2.ID, Amount: decimal.NewFromInt(2100)},
		},
		{
			name:    "unknown vendor",
			req:     SubmitRequest{AuctionID: active.ID, VendorID: uuid.New(), Amount: decimal.NewFromInt(5000)},
			wantErr: domain.ErrNotFound,
		},
		{
			name:    "tier1 over ceiling",
			req:     SubmitRequest{AuctionID: active.ID, VendorID: tier1.ID, Amount: decimal.NewFromInt(600_000)},
			wantErr: domain.ErrTierCeilingExceeded,
		},
		{
			name:    "tier1 one unit over ceiling",
			req:     SubmitRequest{AuctionID: active.ID, VendorID: tier1.ID, Amount: decimal.NewFromInt(500_001)},
			wantErr: domain.ErrTierCeilingExceeded,
		},
		{
			name: "tier1 exactly at ceiling",
			req:  SubmitRequest{AuctionID: active.ID, VendorID: tier1.ID, Amount: decimal.NewFromInt(500_000)},
		},
		{
			name: "tier2 over tier1 ceiling is fine",
			req:  SubmitRequest{AuctionID: active.ID, VendorID: tier2.ID, Amount: decimal.NewFromInt(600_000)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.gate.Submit(context.Background(), tt.req)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestConfirmCommitsBid(t *testing.T) {
	f := newGateFixture(t)
	auction := f.ledger.addAuction(t, domain.Auction{
		ReservePrice:     decimal.NewFromInt(1000),
		MinimumIncrement: decimal.NewFromInt(50),
	})
	vendor := f.addVendor(t, domain.Vendor{})

	ack, err := f.gate.Submit(context.Background(), SubmitRequest{
		AuctionID: auction.ID,
		VendorID:  vendor.ID,
		Amount:    decimal.NewFromInt(1500),
		IPAddress: "10.0.0.1",
	})
	require.NoError(t, err)

	summary, err := f.gate.Confirm(context.Background(), ack.Handle, f.submittedCode(t))
	require.NoError(t, err)
	require.True(t, summary.Winning)
	require.True(t, summary.CurrentBid.Equal(decimal.NewFromInt(1500)))

	// The fraud scan was queued with the job's full context.
	require.Len(t, f.scanner.jobs, 1)
	require.Equal(t, auction.ID, f.scanner.jobs[0].AuctionID)
	require.Equal(t, vendor.ID, f.scanner.jobs[0].VendorID)
	require.Equal(t, "10.0.0.1", f.scanner.jobs[0].IPAddress)
	require.Nil(t, f.scanner.jobs[0].PreviousBid)
}

func TestConfirmWrongCode(t *testing.T) {
	f := newGateFixture(t)
	auction := f.ledger.addAuction(t, domain.Auction{ReservePrice: decimal.NewFromInt(1000)})
	vendor := f.addVendor(t, domain.Vendor{})

	ack, err := f.gate.Submit(context.Background(), SubmitRequest{
		AuctionID: auction.ID, VendorID: vendor.ID, Amount: decimal.NewFromInt(1500),
	})
	require.NoError(t, err)

	_, err = f.gate.Confirm(context.Background(), ack.Handle, "000000")
	if err == nil {
		// One-in-a-million collision with the real code; not this test's concern.
		t.Skip("generated code happened to be 000000")
	}
	require.ErrorIs(t, err, domain.ErrInvalidCode)

	// A wrong guess does not burn the challenge.
	_, err = f.gate.Confirm(context.Background(), ack.Handle, f.submittedCode(t))
	require.NoError(t, err)
}

func TestConfirmCodeIsSingleUse(t *testing.T) {
	f := newGateFixture(t)
	auction := f.ledger.addAuction(t, domain.Auction{ReservePrice: decimal.NewFromInt(1000)})
	vendor := f.addVendor(t, domain.Vendor{})

	ack, err := f.gate.Submit(context.Background(), SubmitRequest{
		AuctionID: auction.ID, VendorID: vendor.ID, Amount: decimal.NewFromInt(1500),
	})
	require.NoError(t, err)
	code := f.submittedCode(t)

	_, err = f.gate.Confirm(context.Background(), ack.Handle, code)
	require.NoError(t, err)

	_, err = f.gate.Confirm(context.Background(), ack.Handle, code)
	require.ErrorIs(t, err, domain.ErrInvalidCode)
	require.Len(t, f.ledger.store.bids, 1)
}

func TestConfirmExpiredCode(t *testing.T) {
	f := newGateFixture(t)
	auction := f.ledger.addAuction(t, domain.Auction{
		ReservePrice: decimal.NewFromInt(1000),
		EndTime:      f.ledger.now.Add(24 * time.Hour),
	})
	vendor := f.addVendor(t, domain.Vendor{})

	ack, err := f.gate.Submit(context.Background(), SubmitRequest{
		AuctionID: auction.ID, VendorID: vendor.ID, Amount: decimal.NewFromInt(1500),
	})
	require.NoError(t, err)
	code := f.submittedCode(t)

	// Past the code's expiry but before the store evicts the challenge: the
	// vendor learns the code is expired, not that it is wrong.
	f.ledger.now = f.ledger.now.Add(6 * time.Minute)

	_, err = f.gate.Confirm(context.Background(), ack.Handle, code)
	require.ErrorIs(t, err, domain.ErrCodeExpired)
	require.Empty(t, f.ledger.store.bids)
}

func TestChallengeOutlivesCodeExpiry(t *testing.T) {
	f := newGateFixture(t)
	auction := f.ledger.addAuction(t, domain.Auction{ReservePrice: decimal.NewFromInt(1000)})
	vendor := f.addVendor(t, domain.Vendor{})

	ack, err := f.gate.Submit(context.Background(), SubmitRequest{
		AuctionID: auction.ID, VendorID: vendor.ID, Amount: decimal.NewFromInt(1500),
	})
	require.NoError(t, err)

	// The stored TTL must exceed the logical expiry; a challenge evicted at
	// exactly ExpiresAt could never surface ErrCodeExpired.
	require.Len(t, f.challenges.putTTLs, 1)
	require.Greater(t, f.challenges.putTTLs[0], 5*time.Minute)
	require.Equal(t, f.ledger.now.Add(5*time.Minute), ack.ExpiresAt)

	// Once the retention window passes too, the challenge is gone and a late
	// confirm degrades to invalid_code.
	code := f.submittedCode(t)
	f.ledger.now = f.ledger.now.Add(10 * time.Minute)

	_, err = f.gate.Confirm(context.Background(), ack.Handle, code)
	require.ErrorIs(t, err, domain.ErrInvalidCode)
}

func TestResubmitInvalidatesPriorChallenge(t *testing.T) {
	f := newGateFixture(t)
	auction := f.ledger.addAuction(t, domain.Auction{ReservePrice: decimal.NewFromInt(1000)})
	vendor := f.addVendor(t, domain.Vendor{})

	first, err := f.gate.Submit(context.Background(), SubmitRequest{
		AuctionID: auction.ID, VendorID: vendor.ID, Amount: decimal.NewFromInt(1500),
	})
	require.NoError(t, err)
	firstCode := f.submittedCode(t)

	second, err := f.gate.Submit(context.Background(), SubmitRequest{
		AuctionID: auction.ID, VendorID: vendor.ID, Amount: decimal.NewFromInt(1600),
	})
	require.NoError(t, err)
	require.NotEqual(t, first.Handle, second.Handle)

	// The earlier challenge is dead even with its correct code.
	_, err = f.gate.Confirm(context.Background(), first.Handle, firstCode)
	require.ErrorIs(t, err, domain.ErrInvalidCode)

	summary, err := f.gate.Confirm(context.Background(), second.Handle, f.submittedCode(t))
	require.NoError(t, err)
	require.True(t, summary.CurrentBid.Equal(decimal.NewFromInt(1600)))
}

func TestConfirmSupersededBid(t *testing.T) {
	f := newGateFixture(t)
	auction := f.ledger.addAuction(t, domain.Auction{
		ReservePrice:     decimal.NewFromInt(1000),
		MinimumIncrement: decimal.NewFromInt(100),
	})
	slow := f.addVendor(t, domain.Vendor{})
	fast := f.addVendor(t, domain.Vendor{})

	slowAck, err := f.gate.Submit(context.Background(), SubmitRequest{
		AuctionID: auction.ID, VendorID: slow.ID, Amount: decimal.NewFromInt(1200),
	})
	require.NoError(t, err)
	slowCode := f.submittedCode(t)

	// A competing bid lands while the first vendor is typing the code.
	fastAck, err := f.gate.Submit(context.Background(), SubmitRequest{
		AuctionID: auction.ID, VendorID: fast.ID, Amount: decimal.NewFromInt(1500),
	})
	require.NoError(t, err)
	_, err = f.gate.Confirm(context.Background(), fastAck.Handle, f.submittedCode(t))
	require.NoError(t, err)

	_, err = f.gate.Confirm(context.Background(), slowAck.Handle, slowCode)
	require.ErrorIs(t, err, domain.ErrBidSuperseded)
	require.Len(t, f.ledger.store.bids, 1)
}

func TestConfirmScanQueueFullStillAccepts(t *testing.T) {
	f := newGateFixture(t)
	f.scanner.full = true
	auction := f.ledger.addAuction(t, domain.Auction{ReservePrice: decimal.NewFromInt(1000)})
	vendor := f.addVendor(t, domain.Vendor{})

	ack, err := f.gate.Submit(context.Background(), SubmitRequest{
		AuctionID: auction.ID, VendorID: vendor.ID, Amount: decimal.NewFromInt(1500),
	})
	require.NoError(t, err)

	// A full scan queue degrades screening, never the accept.
	summary, err := f.gate.Confirm(context.Background(), ack.Handle, f.submittedCode(t))
	require.NoError(t, err)
	require.True(t, summary.Winning)
}
