package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Tier is a vendor trust level. It gates the bid ceiling and which auction
// categories the vendor may enter.
type Tier string

const (
	TierOne Tier = "tier1"
	TierTwo Tier = "tier2"
)

// defaultTierOneCeiling is the observed production ceiling for tier-1
// vendors, in whole currency units.
var defaultTierOneCeiling = decimal.NewFromInt(500_000)

// TierCeilings is the closed tier -> bid-ceiling table. A nil ceiling means
// the tier is unlimited. Ceilings live here, not inline in the bid gate, so
// they can be adjusted without touching the bidding protocol.
type TierCeilings map[Tier]*decimal.Decimal

// DefaultTierCeilings returns the production ceiling table: tier1 capped,
// tier2 unlimited.
func DefaultTierCeilings() TierCeilings {
	c := defaultTierOneCeiling
	return TierCeilings{
		TierOne: &c,
		TierTwo: nil,
	}
}

// Ceiling returns the bid ceiling for the given tier. unlimited is true when
// the tier has no ceiling; unknown tiers are treated as the most restricted
// tier rather than unlimited.
func (t TierCeilings) Ceiling(tier Tier) (ceiling decimal.Decimal, unlimited bool) {
	c, ok := t[tier]
	if !ok {
		c = t[TierOne]
	}
	if c == nil {
		return decimal.Zero, true
	}
	return *c, false
}

// PerformanceStats aggregates a vendor's transactional track record.
// FraudFlags is the only field this core writes on the hot path; the rest is
// recomputed by settlement jobs outside this engine.
type PerformanceStats struct {
	TotalBids           int     `json:"total_bids"`
	TotalWins           int     `json:"total_wins"`
	WinRate             float64 `json:"win_rate"`
	AvgPaymentTimeHours float64 `json:"avg_payment_time_hours"`
	OnTimePickupRate    float64 `json:"on_time_pickup_rate"`
	FraudFlags          int     `json:"fraud_flags"`
}

// Vendor is a vetted buyer. Identity-linkage fields (Phone, IdentityHash)
// are populated by the external KYC subsystem and only read here, for
// duplicate-identity detection.
type Vendor struct {
	ID           uuid.UUID
	Name         string
	Tier         Tier
	Rating       float64
	Stats        PerformanceStats
	Phone        string
	IdentityHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AccountAgeDays returns the whole number of days since the vendor account
// was created, as seen at the given instant.
func (v Vendor) AccountAgeDays(now time.Time) int {
	if now.Before(v.CreatedAt) {
		return 0
	}
	return int(now.Sub(v.CreatedAt).Hours() / 24)
}
