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

// BidStore implements domain.BidStore using PostgreSQL. It is read-only:
// bid rows are written exclusively by AuctionStore.ApplyBid.
type BidStore struct {
	pool *pgxpool.Pool
}

// NewBidStore creates a new BidStore backed by the given connection pool.
func NewBidStore(pool *pgxpool.Pool) *BidStore {
	return &BidStore{pool: pool}
}

const bidSelectCols = `id, auction_id, vendor_id, amount, ip_address,
	device_type, user_agent, otp_verified, created_at`

func scanBidFromRow(scanner interface{ Scan(dest ...any) error }) (domain.Bid, error) {
	var b domain.Bid
	err := scanner.Scan(
		&b.ID, &b.AuctionID, &b.VendorID, &b.Amount, &b.IPAddress,
		&b.DeviceType, &b.UserAgent, &b.OTPVerified, &b.CreatedAt,
	)
	return b, err
}

// GetByID retrieves a single bid by ID.
func (s *BidStore) GetByID(ctx context.Context, id uuid.UUID) (domain.Bid, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+bidSelectCols+` FROM bids WHERE id = $1`, id)

	b, err := scanBidFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Bid{}, domain.ErrNotFound
		}
		return domain.Bid{}, fmt.Errorf("postgres: get bid %s: %w", id, err)
	}
	return b, nil
}

// ListByAuction returns the bid ledger of one auction, newest first.
func (s *BidStore) ListByAuction(ctx context.Context, auctionID uuid.UUID, opts domain.ListOpts) ([]domain.Bid, error) {
	query := `SELECT ` + bidSelectCols + ` FROM bids WHERE auction_id = $1`
	args := []any{auctionID}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bids by auction: %w", err)
	}
	defer rows.Close()

	var bids []domain.Bid
	for rows.Next() {
		b, err := scanBidFromRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bid: %w", err)
		}
		bids = append(bids, b)
	}
	return bids, rows.Err()
}

// CountDistinctVendorsByIP returns how many distinct vendors have bid from
// the given IP address within one auction. The fraud sentinel uses this for
// same-IP collusion detection.
func (s *BidStore) CountDistinctVendorsByIP(ctx context.Context, auctionID uuid.UUID, ip string) (int, error) {
	const query = `
		SELECT COUNT(DISTINCT vendor_id) FROM bids
		WHERE auction_id = $1 AND ip_address = $2`

	var count int
	if err := s.pool.QueryRow(ctx, query, auctionID, ip).Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count vendors by ip: %w", err)
	}
	return count, nil
}

// Compile-time interface check.
var _ domain.BidStore = (*BidStore)(nil)
