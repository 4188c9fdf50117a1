package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/salvagehub/salvagebid/internal/domain"
)

// FraudFlagStore implements domain.FraudFlagStore using PostgreSQL. The
// pattern variants are stored as a JSONB array; each element carries a kind
// tag plus that variant's evidence fields.
type FraudFlagStore struct {
	pool *pgxpool.Pool
}

// NewFraudFlagStore creates a new FraudFlagStore backed by the given
// connection pool.
func NewFraudFlagStore(pool *pgxpool.Pool) *FraudFlagStore {
	return &FraudFlagStore{pool: pool}
}

// patternRecord is the persisted form of one fraud pattern variant. Only
// the fields of the tagged variant are populated.
type patternRecord struct {
	Kind           domain.FraudPatternKind `json:"kind"`
	IPAddress      string                  `json:"ip_address,omitempty"`
	VendorCount    int                     `json:"vendor_count,omitempty"`
	Amount         *decimal.Decimal        `json:"amount,omitempty"`
	PreviousBid    *decimal.Decimal        `json:"previous_bid,omitempty"`
	AccountAgeDays int                     `json:"account_age_days,omitempty"`
	LinkedAccounts int                     `json:"linked_accounts,omitempty"`
}

func encodePatterns(patterns []domain.FraudPattern) ([]byte, error) {
	records := make([]patternRecord, 0, len(patterns))
	for _, p := range patterns {
		switch v := p.(type) {
		case domain.SameIPCollusion:
			records = append(records, patternRecord{
				Kind:        v.Kind(),
				IPAddress:   v.IPAddress,
				VendorCount: v.VendorCount,
			})
		case domain.UnusualBidJump:
			amount, prev := v.Amount, v.PreviousBid
			records = append(records, patternRecord{
				Kind:           v.Kind(),
				Amount:         &amount,
				PreviousBid:    &prev,
				AccountAgeDays: v.AccountAgeDays,
			})
		case domain.DuplicateIdentity:
			records = append(records, patternRecord{
				Kind:           v.Kind(),
				LinkedAccounts: v.LinkedAccounts,
			})
		default:
			return nil, fmt.Errorf("postgres: unknown fraud pattern %T", p)
		}
	}
	return json.Marshal(records)
}

func decodePatterns(data []byte) ([]domain.FraudPattern, error) {
	var records []patternRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}

	patterns := make([]domain.FraudPattern, 0, len(records))
	for _, r := range records {
		switch r.Kind {
		case domain.FraudPatternSameIP:
			patterns = append(patterns, domain.SameIPCollusion{
				IPAddress:   r.IPAddress,
				VendorCount: r.VendorCount,
			})
		case domain.FraudPatternUnusualJump:
			p := domain.UnusualBidJump{AccountAgeDays: r.AccountAgeDays}
			if r.Amount != nil {
				p.Amount = *r.Amount
			}
			if r.PreviousBid != nil {
				p.PreviousBid = *r.PreviousBid
			}
			patterns = append(patterns, p)
		case domain.FraudPatternDuplicateIdentity:
			patterns = append(patterns, domain.DuplicateIdentity{
				LinkedAccounts: r.LinkedAccounts,
			})
		default:
			return nil, fmt.Errorf("postgres: unknown fraud pattern kind %q", r.Kind)
		}
	}
	return patterns, nil
}

// Create appends a new fraud flag. Flags are never updated or deleted.
func (s *FraudFlagStore) Create(ctx context.Context, flag domain.FraudFlag) error {
	data, err := encodePatterns(flag.Patterns)
	if err != nil {
		return fmt.Errorf("postgres: encode fraud patterns: %w", err)
	}

	const query = `
		INSERT INTO fraud_flags (id, auction_id, vendor_id, patterns, raised_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err = s.pool.Exec(ctx, query,
		flag.ID, flag.AuctionID, flag.VendorID, data, flag.RaisedAt)
	if err != nil {
		return fmt.Errorf("postgres: create fraud flag %s: %w", flag.ID, err)
	}
	return nil
}

// ListByVendor returns a vendor's fraud flags, newest first.
func (s *FraudFlagStore) ListByVendor(ctx context.Context, vendorID uuid.UUID, opts domain.ListOpts) ([]domain.FraudFlag, error) {
	query := `SELECT id, auction_id, vendor_id, patterns, raised_at
		FROM fraud_flags WHERE vendor_id = $1 ORDER BY raised_at DESC`
	args := []any{vendorID}

	if opts.Limit > 0 {
		query += " LIMIT $2"
		args = append(args, opts.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fraud flags: %w", err)
	}
	defer rows.Close()

	var flags []domain.FraudFlag
	for rows.Next() {
		var f domain.FraudFlag
		var data []byte
		if err := rows.Scan(&f.ID, &f.AuctionID, &f.VendorID, &data, &f.RaisedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan fraud flag: %w", err)
		}
		if f.Patterns, err = decodePatterns(data); err != nil {
			return nil, fmt.Errorf("postgres: decode fraud patterns: %w", err)
		}
		flags = append(flags, f)
	}
	return flags, rows.Err()
}

// Compile-time interface check.
var _ domain.FraudFlagStore = (*FraudFlagStore)(nil)
