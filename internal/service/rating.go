package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/salvagehub/salvagebid/internal/domain"
)

// RateRequest is one post-transaction rating submission.
type RateRequest struct {
	VendorID        uuid.UUID
	AuctionID       uuid.UUID
	RatedBy         uuid.UUID
	OverallRating   int
	CategoryRatings domain.CategoryRatings
	Review          string
}

// RateResult carries the stored rating's identity and the vendor's new
// average, so callers can display it without a second read.
type RateResult struct {
	RatingID   uuid.UUID `json:"rating_id"`
	NewAverage float64   `json:"new_average"`
}

// RatingAggregator validates and stores post-transaction vendor ratings and
// keeps the vendor's average in step.
type RatingAggregator struct {
	ratings domain.RatingStore
	vendors domain.VendorStore
	audit   domain.AuditStore
	logger  *slog.Logger
	now     func() time.Time
}

// NewRatingAggregator creates a RatingAggregator with all required
// dependencies.
func NewRatingAggregator(
	ratings domain.RatingStore,
	vendors domain.VendorStore,
	audit domain.AuditStore,
	logger *slog.Logger,
) *RatingAggregator {
	return &RatingAggregator{
		ratings: ratings,
		vendors: vendors,
		audit:   audit,
		logger:  logger,
		now:     time.Now,
	}
}

// Rate stores one rating for a completed transaction. Every score must be
// an integer in [1,5] and the review at most 500 characters; a second rating
// for the same (vendor, auction) pair fails with ErrAlreadyRated rather than
// overwriting. On success the vendor's average overall rating is recomputed
// as a plain arithmetic mean and written back to the profile.
func (ra *RatingAggregator) Rate(ctx context.Context, req RateRequest) (RateResult, error) {
	for _, score := range []int{
		req.OverallRating,
		req.CategoryRatings.PaymentSpeed,
		req.CategoryRatings.Communication,
		req.CategoryRatings.PickupPunctuality,
	} {
		if score < 1 || score > 5 {
			return RateResult{}, domain.ErrInvalidRating
		}
	}
	if utf8.RuneCountInString(req.Review) > domain.MaxReviewLength {
		return RateResult{}, domain.ErrReviewTooLong
	}

	rating := domain.Rating{
		ID:              uuid.New(),
		VendorID:        req.VendorID,
		AuctionID:       req.AuctionID,
		RatedBy:         req.RatedBy,
		OverallRating:   req.OverallRating,
		CategoryRatings: req.CategoryRatings,
		Review:          req.Review,
		CreatedAt:       ra.now().UTC(),
	}

	if err := ra.ratings.Create(ctx, rating); err != nil {
		return RateResult{}, err
	}

	average, err := ra.ratings.AverageForVendor(ctx, req.VendorID)
	if err != nil {
		return RateResult{}, fmt.Errorf("rating: average for vendor %s: %w", req.VendorID, err)
	}
	if err := ra.vendors.SetRating(ctx, req.VendorID, average); err != nil {
		return RateResult{}, fmt.Errorf("rating: set vendor rating %s: %w", req.VendorID, err)
	}

	if err := ra.audit.Log(ctx, "vendor_rated", map[string]any{
		"rating_id":   rating.ID.String(),
		"vendor_id":   req.VendorID.String(),
		"auction_id":  req.AuctionID.String(),
		"overall":     req.OverallRating,
		"new_average": average,
	}); err != nil {
		ra.logger.WarnContext(ctx, "rating: audit log failed",
			slog.String("rating_id", rating.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	ra.logger.InfoContext(ctx, "rating: vendor rated",
		slog.String("vendor_id", req.VendorID.String()),
		slog.String("auction_id", req.AuctionID.String()),
		slog.Int("overall", req.OverallRating),
		slog.Float64("new_average", average),
	)

	return RateResult{RatingID: rating.ID, NewAverage: average}, nil
}

// ListForVendor returns a vendor's ratings, newest first.
func (ra *RatingAggregator) ListForVendor(ctx context.Context, vendorID uuid.UUID, opts domain.ListOpts) ([]domain.Rating, error) {
	ratings, err := ra.ratings.ListByVendor(ctx, vendorID, opts)
	if err != nil {
		return nil, fmt.Errorf("rating: list for vendor %s: %w", vendorID, err)
	}
	return ratings, nil
}
