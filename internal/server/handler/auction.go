package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/salvagehub/salvagebid/internal/domain"
)

// AuctionService defines the methods the auction handler requires from the
// service layer.
type AuctionService interface {
	GetAuction(ctx context.Context, id uuid.UUID) (domain.Auction, error)
	Summary(ctx context.Context, auctionID, vendorID uuid.UUID) (domain.AuctionSummary, error)
	Watch(ctx context.Context, auctionID uuid.UUID, delta int) (int, error)
}

// BidLister reads an auction's bid history.
type BidLister interface {
	ListByAuction(ctx context.Context, auctionID uuid.UUID, opts domain.ListOpts) ([]domain.Bid, error)
}

// AuctionHandler serves auction read endpoints and the watch counter.
type AuctionHandler struct {
	auctions AuctionService
	bids     BidLister
	logger   *slog.Logger
}

// NewAuctionHandler creates an AuctionHandler with the given services and
// logger.
func NewAuctionHandler(auctions AuctionService, bids BidLister, logger *slog.Logger) *AuctionHandler {
	return &AuctionHandler{
		auctions: auctions,
		bids:     bids,
		logger:   logger,
	}
}

// auctionResponse is the public shape of one auction. Bidder identities
// other than the caller's own standing are not exposed.
type auctionResponse struct {
	ID               uuid.UUID `json:"id"`
	CaseID           uuid.UUID `json:"case_id"`
	StartTime        string    `json:"start_time"`
	EndTime          string    `json:"end_time"`
	OriginalEndTime  string    `json:"original_end_time"`
	ExtensionCount   int       `json:"extension_count"`
	CurrentBid       *string   `json:"current_bid"`
	ReservePrice     string    `json:"reserve_price"`
	MinimumIncrement string    `json:"minimum_increment"`
	Status           string    `json:"status"`
	WatchingCount    int       `json:"watching_count"`
}

// GetAuction returns a single auction by its ID.
// GET /api/auctions/{id}
func (h *AuctionHandler) GetAuction(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(pathParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid auction id")
		return
	}

	auction, err := h.auctions.GetAuction(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeDomainError(w, err)
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get auction failed",
			slog.String("auction_id", id.String()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get auction")
		return
	}

	resp := auctionResponse{
		ID:               auction.ID,
		CaseID:           auction.CaseID,
		StartTime:        auction.StartTime.Format(timeFormat),
		EndTime:          auction.EndTime.Format(timeFormat),
		OriginalEndTime:  auction.OriginalEndTime.Format(timeFormat),
		ExtensionCount:   auction.ExtensionCount,
		ReservePrice:     auction.ReservePrice.String(),
		MinimumIncrement: auction.MinimumIncrement.String(),
		Status:           string(auction.Status),
		WatchingCount:    auction.WatchingCount,
	}
	if auction.CurrentBid != nil {
		s := auction.CurrentBid.String()
		resp.CurrentBid = &s
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetSummary returns the live snapshot of an auction. The optional vendor_id
// query parameter resolves the caller-relative winning field.
// GET /api/auctions/{id}/summary?vendor_id=...
func (h *AuctionHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(pathParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid auction id")
		return
	}

	vendorID := uuid.Nil
	if v := r.URL.Query().Get("vendor_id"); v != "" {
		if vendorID, err = uuid.Parse(v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid vendor_id")
			return
		}
	}
	vendorID = vendorIdentity(r, vendorID)

	summary, err := h.auctions.Summary(r.Context(), id, vendorID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeDomainError(w, err)
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get summary failed",
			slog.String("auction_id", id.String()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get summary")
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// listBidsResponse wraps the bid-history endpoint output with metadata.
type listBidsResponse struct {
	Bids   []bidResponse `json:"bids"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// bidResponse is the public shape of one ledger entry. The bidder identity
// is exposed; contact and device metadata are not.
type bidResponse struct {
	ID        uuid.UUID `json:"id"`
	VendorID  uuid.UUID `json:"vendor_id"`
	Amount    string    `json:"amount"`
	CreatedAt string    `json:"created_at"`
}

// ListBids returns an auction's bid history, newest first.
// GET /api/auctions/{id}/bids?limit=50&offset=0
func (h *AuctionHandler) ListBids(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(pathParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid auction id")
		return
	}

	opts := parseListOpts(r)
	bids, err := h.bids.ListByAuction(r.Context(), id, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list bids failed",
			slog.String("auction_id", id.String()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list bids")
		return
	}

	out := make([]bidResponse, 0, len(bids))
	for _, b := range bids {
		out = append(out, bidResponse{
			ID:        b.ID,
			VendorID:  b.VendorID,
			Amount:    b.Amount.String(),
			CreatedAt: b.CreatedAt.Format(timeFormat),
		})
	}

	writeJSON(w, http.StatusOK, listBidsResponse{
		Bids:   out,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

// Watch registers one more watcher on the auction, for callers that follow
// an auction over plain HTTP instead of the WebSocket feed.
// POST /api/auctions/{id}/watch
func (h *AuctionHandler) Watch(w http.ResponseWriter, r *http.Request) {
	h.adjustWatchers(w, r, 1)
}

// Unwatch removes a watcher registered via Watch.
// DELETE /api/auctions/{id}/watch
func (h *AuctionHandler) Unwatch(w http.ResponseWriter, r *http.Request) {
	h.adjustWatchers(w, r, -1)
}

func (h *AuctionHandler) adjustWatchers(w http.ResponseWriter, r *http.Request, delta int) {
	id, err := uuid.Parse(pathParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid auction id")
		return
	}

	count, err := h.auctions.Watch(r.Context(), id, delta)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeDomainError(w, err)
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: watch failed",
			slog.String("auction_id", id.String()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to update watchers")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"auction_id":     id,
		"watching_count": count,
	})
}
