package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/salvagehub/salvagebid/internal/domain"
	"github.com/salvagehub/salvagebid/internal/service"
)

// RatingService defines the methods the rating handler requires from the
// service layer.
type RatingService interface {
	Rate(ctx context.Context, req service.RateRequest) (service.RateResult, error)
	ListForVendor(ctx context.Context, vendorID uuid.UUID, opts domain.ListOpts) ([]domain.Rating, error)
}

// RatingHandler serves post-transaction rating endpoints.
type RatingHandler struct {
	ratings RatingService
	logger  *slog.Logger
}

// NewRatingHandler creates a RatingHandler with the given service and logger.
func NewRatingHandler(ratings RatingService, logger *slog.Logger) *RatingHandler {
	return &RatingHandler{
		ratings: ratings,
		logger:  logger,
	}
}

// rateRequest is the rating endpoint's request body.
type rateRequest struct {
	AuctionID       uuid.UUID              `json:"auction_id"`
	RatedBy         uuid.UUID              `json:"rated_by"`
	OverallRating   int                    `json:"overall_rating"`
	CategoryRatings domain.CategoryRatings `json:"category_ratings"`
	Review          string                 `json:"review"`
}

// RateVendor records one rating for a completed transaction and returns the
// vendor's new average.
// POST /api/vendors/{id}/ratings
func (h *RatingHandler) RateVendor(w http.ResponseWriter, r *http.Request) {
	vendorID, err := uuid.Parse(pathParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid vendor id")
		return
	}

	var body rateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ratedBy := vendorIdentity(r, body.RatedBy)
	if body.AuctionID == uuid.Nil || ratedBy == uuid.Nil {
		writeError(w, http.StatusBadRequest, "missing auction_id or rater identity")
		return
	}

	result, err := h.ratings.Rate(r.Context(), service.RateRequest{
		VendorID:        vendorID,
		AuctionID:       body.AuctionID,
		RatedBy:         ratedBy,
		OverallRating:   body.OverallRating,
		CategoryRatings: body.CategoryRatings,
		Review:          body.Review,
	})
	if err != nil {
		if domain.ReasonCode(err) == domain.ReasonInternal {
			h.logger.ErrorContext(r.Context(), "handler: rate vendor failed",
				slog.String("vendor_id", vendorID.String()),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// ratingResponse is the public shape of one rating.
type ratingResponse struct {
	ID              uuid.UUID              `json:"id"`
	AuctionID       uuid.UUID              `json:"auction_id"`
	OverallRating   int                    `json:"overall_rating"`
	CategoryRatings domain.CategoryRatings `json:"category_ratings"`
	Review          string                 `json:"review"`
	CreatedAt       string                 `json:"created_at"`
}

// ListRatings returns a vendor's ratings, newest first.
// GET /api/vendors/{id}/ratings?limit=50&offset=0
func (h *RatingHandler) ListRatings(w http.ResponseWriter, r *http.Request) {
	vendorID, err := uuid.Parse(pathParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid vendor id")
		return
	}

	ratings, err := h.ratings.ListForVendor(r.Context(), vendorID, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list ratings failed",
			slog.String("vendor_id", vendorID.String()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list ratings")
		return
	}

	out := make([]ratingResponse, 0, len(ratings))
	for _, rt := range ratings {
		out = append(out, ratingResponse{
			ID:              rt.ID,
			AuctionID:       rt.AuctionID,
			OverallRating:   rt.OverallRating,
			CategoryRatings: rt.CategoryRatings,
			Review:          rt.Review,
			CreatedAt:       rt.CreatedAt.Format(timeFormat),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"ratings": out})
}
