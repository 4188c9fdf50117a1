package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/salvagehub/salvagebid/internal/domain"
)

// AuctionStore implements domain.AuctionStore using PostgreSQL.
type AuctionStore struct {
	pool *pgxpool.Pool
}

// NewAuctionStore creates a new AuctionStore backed by the given connection
// pool.
func NewAuctionStore(pool *pgxpool.Pool) *AuctionStore {
	return &AuctionStore{pool: pool}
}

const auctionSelectCols = `id, case_id, start_time, end_time, original_end_time,
	extension_count, current_bid, current_bidder_id, reserve_price,
	minimum_increment, status, watching_count, version, created_at, updated_at`

func scanAuctionFromRow(scanner interface{ Scan(dest ...any) error }) (domain.Auction, error) {
	var a domain.Auction
	var status string

	err := scanner.Scan(
		&a.ID, &a.CaseID, &a.StartTime, &a.EndTime, &a.OriginalEndTime,
		&a.ExtensionCount, &a.CurrentBid, &a.CurrentBidderID, &a.ReservePrice,
		&a.MinimumIncrement, &status, &a.WatchingCount, &a.Version,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return domain.Auction{}, err
	}

	a.Status = domain.AuctionStatus(status)
	return a, nil
}

// Create inserts a new auction row.
func (s *AuctionStore) Create(ctx context.Context, a domain.Auction) error {
	const query = `
		INSERT INTO auctions (
			id, case_id, start_time, end_time, original_end_time,
			extension_count, current_bid, current_bidder_id, reserve_price,
			minimum_increment, status, watching_count, version
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13
		)`

	_, err := s.pool.Exec(ctx, query,
		a.ID, a.CaseID, a.StartTime, a.EndTime, a.OriginalEndTime,
		a.ExtensionCount, a.CurrentBid, a.CurrentBidderID, a.ReservePrice,
		a.MinimumIncrement, string(a.Status), a.WatchingCount, a.Version,
	)
	if err != nil {
		return fmt.Errorf("postgres: create auction %s: %w", a.ID, err)
	}
	return nil
}

// GetByID retrieves a single auction by ID.
func (s *AuctionStore) GetByID(ctx context.Context, id uuid.UUID) (domain.Auction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+auctionSelectCols+` FROM auctions WHERE id = $1`, id)

	a, err := scanAuctionFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Auction{}, domain.ErrNotFound
		}
		return domain.Auction{}, fmt.Errorf("postgres: get auction %s: %w", id, err)
	}
	return a, nil
}

// ApplyBid writes the new ledger state and the bid row in one transaction.
// The auction update is guarded by the version column: when the expected
// version no longer matches (a competing bid won the race) nothing is
// written and domain.ErrVersionConflict is returned. The vendor's total-bid
// counter rides in the same transaction.
func (s *AuctionStore) ApplyBid(ctx context.Context, next domain.Auction, expectedVersion int64, bid domain.Bid) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: apply bid begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const updateAuction = `
		UPDATE auctions SET
			current_bid = $1,
			current_bidder_id = $2,
			end_time = $3,
			extension_count = $4,
			version = version + 1,
			updated_at = NOW()
		WHERE id = $5 AND version = $6`

	tag, err := tx.Exec(ctx, updateAuction,
		next.CurrentBid, next.CurrentBidderID, next.EndTime,
		next.ExtensionCount, next.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("postgres: apply bid update auction %s: %w", next.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}

	const insertBid = `
		INSERT INTO bids (
			id, auction_id, vendor_id, amount,
			ip_address, device_type, user_agent, otp_verified, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = tx.Exec(ctx, insertBid,
		bid.ID, bid.AuctionID, bid.VendorID, bid.Amount,
		bid.IPAddress, bid.DeviceType, bid.UserAgent, bid.OTPVerified, bid.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: apply bid insert bid %s: %w", bid.ID, err)
	}

	const bumpVendor = `
		UPDATE vendors SET total_bids = total_bids + 1, updated_at = NOW()
		WHERE id = $1`

	if _, err := tx.Exec(ctx, bumpVendor, bid.VendorID); err != nil {
		return fmt.Errorf("postgres: apply bid bump vendor %s: %w", bid.VendorID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: apply bid commit: %w", err)
	}
	return nil
}

// UpdateStatus changes the status of an existing auction.
func (s *AuctionStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.AuctionStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE auctions SET status = $1, updated_at = NOW() WHERE id = $2`,
		string(status), id)
	if err != nil {
		return fmt.Errorf("postgres: update auction status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AdjustWatchers atomically adds delta to the auction's watcher count,
// clamping at zero, and returns the new count.
func (s *AuctionStore) AdjustWatchers(ctx context.Context, id uuid.UUID, delta int) (int, error) {
	const query = `
		UPDATE auctions
		SET watching_count = GREATEST(watching_count + $1, 0), updated_at = NOW()
		WHERE id = $2
		RETURNING watching_count`

	var count int
	if err := s.pool.QueryRow(ctx, query, delta, id).Scan(&count); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, fmt.Errorf("postgres: adjust watchers %s: %w", id, err)
	}
	return count, nil
}

// ListClosedBefore returns auctions that closed strictly before the given
// cutoff, oldest first. Used by the ledger archiver.
func (s *AuctionStore) ListClosedBefore(ctx context.Context, before time.Time) ([]domain.Auction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+auctionSelectCols+` FROM auctions
		 WHERE status = 'closed' AND end_time < $1
		 ORDER BY end_time ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed auctions: %w", err)
	}
	defer rows.Close()

	var auctions []domain.Auction
	for rows.Next() {
		a, err := scanAuctionFromRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan closed auction: %w", err)
		}
		auctions = append(auctions, a)
	}
	return auctions, rows.Err()
}

// Compile-time interface check.
var _ domain.AuctionStore = (*AuctionStore)(nil)
