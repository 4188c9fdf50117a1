package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/salvagehub/salvagebid/internal/domain"
)

// VendorStore implements domain.VendorStore using PostgreSQL. Identity
// fields (phone, identity hash) are populated by the KYC subsystem; this
// store never writes them.
type VendorStore struct {
	pool *pgxpool.Pool
}

// NewVendorStore creates a new VendorStore backed by the given connection
// pool.
func NewVendorStore(pool *pgxpool.Pool) *VendorStore {
	return &VendorStore{pool: pool}
}

// GetByID retrieves a vendor with their performance stats.
func (s *VendorStore) GetByID(ctx context.Context, id uuid.UUID) (domain.Vendor, error) {
	const query = `
		SELECT id, name, tier, rating,
			total_bids, total_wins, win_rate, avg_payment_time_hours,
			on_time_pickup_rate, fraud_flags,
			phone, identity_hash, created_at, updated_at
		FROM vendors WHERE id = $1`

	var v domain.Vendor
	var tier string

	err := s.pool.QueryRow(ctx, query, id).Scan(
		&v.ID, &v.Name, &tier, &v.Rating,
		&v.Stats.TotalBids, &v.Stats.TotalWins, &v.Stats.WinRate,
		&v.Stats.AvgPaymentTimeHours, &v.Stats.OnTimePickupRate,
		&v.Stats.FraudFlags,
		&v.Phone, &v.IdentityHash, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Vendor{}, domain.ErrNotFound
		}
		return domain.Vendor{}, fmt.Errorf("postgres: get vendor %s: %w", id, err)
	}

	v.Tier = domain.Tier(tier)
	return v, nil
}

// IncrementFraudFlags adds one to the vendor's fraud-flag counter and
// returns the new count.
func (s *VendorStore) IncrementFraudFlags(ctx context.Context, id uuid.UUID) (int, error) {
	const query = `
		UPDATE vendors SET fraud_flags = fraud_flags + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING fraud_flags`

	var count int
	if err := s.pool.QueryRow(ctx, query, id).Scan(&count); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, fmt.Errorf("postgres: increment fraud flags %s: %w", id, err)
	}
	return count, nil
}

// SetRating persists a recomputed rating average onto the vendor row.
func (s *VendorStore) SetRating(ctx context.Context, id uuid.UUID, rating float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE vendors SET rating = $1, updated_at = NOW() WHERE id = $2`,
		rating, id)
	if err != nil {
		return fmt.Errorf("postgres: set vendor rating %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CountLinkedIdentities returns how many other vendor records share the
// given phone number or identity hash. Empty linkage fields never match.
func (s *VendorStore) CountLinkedIdentities(ctx context.Context, id uuid.UUID, phone, identityHash string) (int, error) {
	const query = `
		SELECT COUNT(*) FROM vendors
		WHERE id <> $1
		  AND (
			($2 <> '' AND phone = $2)
			OR ($3 <> '' AND identity_hash = $3)
		  )`

	var count int
	if err := s.pool.QueryRow(ctx, query, id, phone, identityHash).Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count linked identities %s: %w", id, err)
	}
	return count, nil
}

// Compile-time interface check.
var _ domain.VendorStore = (*VendorStore)(nil)
