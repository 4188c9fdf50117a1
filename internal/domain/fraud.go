package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FraudPatternKind identifies one of the three fraud heuristics.
type FraudPatternKind string

const (
	FraudPatternSameIP            FraudPatternKind = "same_ip_collusion"
	FraudPatternUnusualJump       FraudPatternKind = "unusual_bid_jump"
	FraudPatternDuplicateIdentity FraudPatternKind = "duplicate_identity"
)

// FraudPattern is a tagged variant over the three heuristic findings. Each
// variant carries the evidence payload for its own rule and renders a
// human-readable explanation string.
type FraudPattern interface {
	Kind() FraudPatternKind
	Evidence() string
}

// SameIPCollusion fires when more than one distinct vendor has bid from the
// same IP address within a single auction.
type SameIPCollusion struct {
	IPAddress   string
	VendorCount int
}

func (p SameIPCollusion) Kind() FraudPatternKind { return FraudPatternSameIP }

func (p SameIPCollusion) Evidence() string {
	return fmt.Sprintf("%d distinct vendors bid from IP %s in this auction", p.VendorCount, p.IPAddress)
}

// UnusualBidJump fires when a young account multiplies the standing bid by
// more than the configured factor.
type UnusualBidJump struct {
	Amount         decimal.Decimal
	PreviousBid    decimal.Decimal
	AccountAgeDays int
}

func (p UnusualBidJump) Kind() FraudPatternKind { return FraudPatternUnusualJump }

func (p UnusualBidJump) Evidence() string {
	multiple := decimal.Zero
	if p.PreviousBid.IsPositive() {
		multiple = p.Amount.Div(p.PreviousBid).Round(2)
	}
	return fmt.Sprintf("bid is %sx the previous bid from a %d-day-old account", multiple, p.AccountAgeDays)
}

// DuplicateIdentity fires when other vendor records share this vendor's
// linked phone number or hashed identity number.
type DuplicateIdentity struct {
	LinkedAccounts int
}

func (p DuplicateIdentity) Kind() FraudPatternKind { return FraudPatternDuplicateIdentity }

func (p DuplicateIdentity) Evidence() string {
	return fmt.Sprintf("identity fields linked to %d other vendor accounts", p.LinkedAccounts)
}

// FraudFlag is one append-only fraud finding against a (vendor, auction)
// pair. Patterns is non-empty; flags are never mutated after being raised.
type FraudFlag struct {
	ID        uuid.UUID
	AuctionID uuid.UUID
	VendorID  uuid.UUID
	Patterns  []FraudPattern
	RaisedAt  time.Time
}

// EvidenceList returns one explanation string per detected pattern, in
// detection order.
func (f FraudFlag) EvidenceList() []string {
	out := make([]string, 0, len(f.Patterns))
	for _, p := range f.Patterns {
		out = append(out, p.Evidence())
	}
	return out
}

// PatternKinds returns the kind tags of all detected patterns.
func (f FraudFlag) PatternKinds() []FraudPatternKind {
	out := make([]FraudPatternKind, 0, len(f.Patterns))
	for _, p := range f.Patterns {
		out = append(out, p.Kind())
	}
	return out
}
