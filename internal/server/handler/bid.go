package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/salvagehub/salvagebid/internal/domain"
	"github.com/salvagehub/salvagebid/internal/service"
)

// BidService defines the methods the bid handler requires from the service
// layer. It is declared locally so the handler package does not depend on
// the concrete service implementation.
type BidService interface {
	Submit(ctx context.Context, req service.SubmitRequest) (domain.ChallengeAck, error)
	Confirm(ctx context.Context, handle uuid.UUID, code string) (domain.AuctionSummary, error)
}

// BidHandler serves the two-phase bidding endpoints.
type BidHandler struct {
	bids   BidService
	logger *slog.Logger
}

// NewBidHandler creates a BidHandler with the given service and logger.
func NewBidHandler(bids BidService, logger *slog.Logger) *BidHandler {
	return &BidHandler{
		bids:   bids,
		logger: logger,
	}
}

// submitBidRequest is the submit endpoint's request body.
type submitBidRequest struct {
	VendorID   uuid.UUID       `json:"vendor_id"`
	Amount     decimal.Decimal `json:"amount"`
	DeviceType string          `json:"device_type"`
}

// SubmitBid starts the challenge-response protocol for one bid. The response
// carries the opaque challenge handle and its expiry; the confirmation code
// travels out of band.
// POST /api/auctions/{id}/bids
func (h *BidHandler) SubmitBid(w http.ResponseWriter, r *http.Request) {
	auctionID, err := uuid.Parse(pathParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid auction id")
		return
	}

	var body submitBidRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	vendorID := vendorIdentity(r, body.VendorID)
	if vendorID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "missing vendor identity")
		return
	}
	if !body.Amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	ack, err := h.bids.Submit(r.Context(), service.SubmitRequest{
		AuctionID:  auctionID,
		VendorID:   vendorID,
		Amount:     body.Amount,
		IPAddress:  clientIP(r),
		DeviceType: body.DeviceType,
		UserAgent:  r.UserAgent(),
	})
	if err != nil {
		if domain.ReasonCode(err) == domain.ReasonInternal {
			h.logger.ErrorContext(r.Context(), "handler: submit bid failed",
				slog.String("auction_id", auctionID.String()),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, ack)
}

// confirmBidRequest is the confirm endpoint's request body.
type confirmBidRequest struct {
	ChallengeHandle uuid.UUID `json:"challenge_handle"`
	Code            string    `json:"code"`
}

// ConfirmBid completes the protocol: it consumes the one-time code and
// returns the updated auction summary.
// POST /api/bids/confirm
func (h *BidHandler) ConfirmBid(w http.ResponseWriter, r *http.Request) {
	var body confirmBidRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.ChallengeHandle == uuid.Nil || body.Code == "" {
		writeError(w, http.StatusBadRequest, "missing challenge_handle or code")
		return
	}

	summary, err := h.bids.Confirm(r.Context(), body.ChallengeHandle, body.Code)
	if err != nil {
		if domain.ReasonCode(err) == domain.ReasonInternal {
			h.logger.ErrorContext(r.Context(), "handler: confirm bid failed",
				slog.String("handle", body.ChallengeHandle.String()),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}
