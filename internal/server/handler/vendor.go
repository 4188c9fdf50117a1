package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/salvagehub/salvagebid/internal/domain"
)

// VendorService defines the methods the vendor handler requires from the
// service layer.
type VendorService interface {
	Get(ctx context.Context, id uuid.UUID) (domain.Vendor, error)
	FraudHistory(ctx context.Context, vendorID uuid.UUID, opts domain.ListOpts) ([]domain.FraudFlag, error)
}

// VendorHandler serves vendor profile and fraud-history endpoints.
type VendorHandler struct {
	vendors VendorService
	logger  *slog.Logger
}

// NewVendorHandler creates a VendorHandler with the given service and logger.
func NewVendorHandler(vendors VendorService, logger *slog.Logger) *VendorHandler {
	return &VendorHandler{
		vendors: vendors,
		logger:  logger,
	}
}

// vendorResponse is the public shape of one vendor profile. Identity-linkage
// fields never leave the fraud subsystem.
type vendorResponse struct {
	ID     uuid.UUID               `json:"id"`
	Name   string                  `json:"name"`
	Tier   domain.Tier             `json:"tier"`
	Rating float64                 `json:"rating"`
	Stats  domain.PerformanceStats `json:"performance_stats"`
}

// GetVendor returns a single vendor profile by its ID.
// GET /api/vendors/{id}
func (h *VendorHandler) GetVendor(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(pathParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid vendor id")
		return
	}

	vendor, err := h.vendors.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeDomainError(w, err)
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get vendor failed",
			slog.String("vendor_id", id.String()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get vendor")
		return
	}

	writeJSON(w, http.StatusOK, vendorResponse{
		ID:     vendor.ID,
		Name:   vendor.Name,
		Tier:   vendor.Tier,
		Rating: vendor.Rating,
		Stats:  vendor.Stats,
	})
}

// fraudFlagResponse is the public shape of one fraud finding.
type fraudFlagResponse struct {
	ID        uuid.UUID                 `json:"id"`
	AuctionID uuid.UUID                 `json:"auction_id"`
	Patterns  []domain.FraudPatternKind `json:"patterns"`
	Evidence  []string                  `json:"evidence"`
	RaisedAt  string                    `json:"raised_at"`
}

// ListFraudFlags returns a vendor's fraud flags, newest first.
// GET /api/vendors/{id}/fraud-flags?limit=50
func (h *VendorHandler) ListFraudFlags(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(pathParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid vendor id")
		return
	}

	flags, err := h.vendors.FraudHistory(r.Context(), id, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list fraud flags failed",
			slog.String("vendor_id", id.String()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list fraud flags")
		return
	}

	out := make([]fraudFlagResponse, 0, len(flags))
	for _, f := range flags {
		out = append(out, fraudFlagResponse{
			ID:        f.ID,
			AuctionID: f.AuctionID,
			Patterns:  f.PatternKinds(),
			Evidence:  f.EvidenceList(),
			RaisedAt:  f.RaisedAt.Format(timeFormat),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"fraud_flags": out})
}
