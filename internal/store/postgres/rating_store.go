package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/salvagehub/salvagebid/internal/domain"
)

// RatingStore implements domain.RatingStore using PostgreSQL.
type RatingStore struct {
	pool *pgxpool.Pool
}

// NewRatingStore creates a new RatingStore backed by the given connection pool.
func NewRatingStore(pool *pgxpool.Pool) *RatingStore {
	return &RatingStore{pool: pool}
}

// Create inserts a new rating. The unique (vendor_id, auction_id) constraint
// guarantees at most one rating per pair even under concurrent submits; a
// violation maps to domain.ErrAlreadyRated.
func (s *RatingStore) Create(ctx context.Context, r domain.Rating) error {
	const query = `
		INSERT INTO ratings (
			id, vendor_id, auction_id, rated_by, overall_rating,
			payment_speed, communication, pickup_punctuality, review, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.pool.Exec(ctx, query,
		r.ID, r.VendorID, r.AuctionID, r.RatedBy, r.OverallRating,
		r.CategoryRatings.PaymentSpeed, r.CategoryRatings.Communication,
		r.CategoryRatings.PickupPunctuality, r.Review, r.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyRated
		}
		return fmt.Errorf("postgres: create rating %s: %w", r.ID, err)
	}
	return nil
}

// AverageForVendor returns the vendor's mean overall rating rounded to two
// decimal places, or 0 when the vendor has no ratings.
func (s *RatingStore) AverageForVendor(ctx context.Context, vendorID uuid.UUID) (float64, error) {
	const query = `
		SELECT COALESCE(ROUND(AVG(overall_rating)::numeric, 2), 0)::float8
		FROM ratings WHERE vendor_id = $1`

	var avg float64
	if err := s.pool.QueryRow(ctx, query, vendorID).Scan(&avg); err != nil {
		return 0, fmt.Errorf("postgres: average rating for vendor %s: %w", vendorID, err)
	}
	return avg, nil
}

// ListByVendor returns a vendor's ratings, newest first.
func (s *RatingStore) ListByVendor(ctx context.Context, vendorID uuid.UUID, opts domain.ListOpts) ([]domain.Rating, error) {
	query := `SELECT id, vendor_id, auction_id, rated_by, overall_rating,
			payment_speed, communication, pickup_punctuality, review, created_at
		FROM ratings WHERE vendor_id = $1 ORDER BY created_at DESC`
	args := []any{vendorID}

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", len(args)+1)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list ratings: %w", err)
	}
	defer rows.Close()

	var ratings []domain.Rating
	for rows.Next() {
		var r domain.Rating
		if err := rows.Scan(
			&r.ID, &r.VendorID, &r.AuctionID, &r.RatedBy, &r.OverallRating,
			&r.CategoryRatings.PaymentSpeed, &r.CategoryRatings.Communication,
			&r.CategoryRatings.PickupPunctuality, &r.Review, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan rating: %w", err)
		}
		ratings = append(ratings, r)
	}
	return ratings, rows.Err()
}

// Compile-time interface check.
var _ domain.RatingStore = (*RatingStore)(nil)
