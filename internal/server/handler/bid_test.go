package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/salvagehub/salvagebid/internal/domain"
	"github.com/salvagehub/salvagebid/internal/service"
)

type stubBidService struct {
	submitReq  service.SubmitRequest
	submitAck  domain.ChallengeAck
	submitErr  error
	confirmErr error
	summary    domain.AuctionSummary
}

func (s *stubBidService) Submit(_ context.Context, req service.SubmitRequest) (domain.ChallengeAck, error) {
	s.submitReq = req
	return s.submitAck, s.submitErr
}

func (s *stubBidService) Confirm(_ context.Context, _ uuid.UUID, _ string) (domain.AuctionSummary, error) {
	return s.summary, s.confirmErr
}

func newBidMux(svc *stubBidService) *http.ServeMux {
	h := NewBidHandler(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auctions/{id}/bids", h.SubmitBid)
	mux.HandleFunc("POST /api/bids/confirm", h.ConfirmBid)
	return mux
}

func postJSON(t *testing.T, mux *http.ServeMux, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestSubmitBidAccepted(t *testing.T) {
	handle := uuid.New()
	vendorID := uuid.New()
	auctionID := uuid.New()

	svc := &stubBidService{
		submitAck: domain.ChallengeAck{
			Handle:    handle,
			ExpiresAt: time.Now().Add(5 * time.Minute),
		},
	}
	mux := newBidMux(svc)

	rec := postJSON(t, mux, "/api/auctions/"+auctionID.String()+"/bids", map[string]any{
		"vendor_id":   vendorID,
		"amount":      "2500.00",
		"device_type": "mobile",
	}, nil)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp domain.ChallengeAck
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, handle, resp.Handle)

	require.Equal(t, auctionID, svc.submitReq.AuctionID)
	require.Equal(t, vendorID, svc.submitReq.VendorID)
	require.True(t, svc.submitReq.Amount.Equal(decimal.RequireFromString("2500.00")))
	require.Equal(t, "mobile", svc.submitReq.DeviceType)
}

func TestSubmitBidVendorFromHeader(t *testing.T) {
	vendorID := uuid.New()
	svc := &stubBidService{submitAck: domain.ChallengeAck{Handle: uuid.New()}}
	mux := newBidMux(svc)

	rec := postJSON(t, mux, "/api/auctions/"+uuid.NewString()+"/bids", map[string]any{
		"amount": "100.00",
	}, map[string]string{"X-Vendor-ID": vendorID.String()})

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, vendorID, svc.submitReq.VendorID)
}

func TestSubmitBidMissingIdentity(t *testing.T) {
	mux := newBidMux(&stubBidService{})

	rec := postJSON(t, mux, "/api/auctions/"+uuid.NewString()+"/bids", map[string]any{
		"amount": "100.00",
	}, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitBidErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantReason string
	}{
		{"rate limited", domain.ErrRateLimited, http.StatusTooManyRequests, domain.ReasonRateLimited},
		{"tier ceiling", domain.ErrTierCeilingExceeded, http.StatusForbidden, domain.ReasonTierCeilingExceeded},
		{"auction closed", domain.ErrAuctionClosed, http.StatusConflict, domain.ReasonAuctionClosed},
		{"below minimum", domain.ErrInsufficientAmount, http.StatusUnprocessableEntity, domain.ReasonInsufficientAmount},
		{"unknown auction", domain.ErrNotFound, http.StatusNotFound, domain.ReasonNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newBidMux(&stubBidService{submitErr: tt.err})

			rec := postJSON(t, mux, "/api/auctions/"+uuid.NewString()+"/bids", map[string]any{
				"vendor_id": uuid.New(),
				"amount":    "100.00",
			}, nil)

			require.Equal(t, tt.wantStatus, rec.Code)

			var resp map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			require.Equal(t, tt.wantReason, resp["error"])
		})
	}
}

func TestConfirmBidOK(t *testing.T) {
	auctionID := uuid.New()
	svc := &stubBidService{summary: domain.AuctionSummary{AuctionID: auctionID}}
	mux := newBidMux(svc)

	rec := postJSON(t, mux, "/api/bids/confirm", map[string]any{
		"challenge_handle": uuid.New(),
		"code":             "123456",
	}, nil)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp domain.AuctionSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, auctionID, resp.AuctionID)
}

func TestConfirmBidMissingFields(t *testing.T) {
	mux := newBidMux(&stubBidService{})

	rec := postJSON(t, mux, "/api/bids/confirm", map[string]any{
		"code": "123456",
	}, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfirmBidErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantReason string
	}{
		{"invalid code", domain.ErrInvalidCode, http.StatusBadRequest, domain.ReasonInvalidCode},
		{"expired code", domain.ErrCodeExpired, http.StatusGone, domain.ReasonCodeExpired},
		{"superseded", domain.ErrBidSuperseded, http.StatusConflict, domain.ReasonBidSuperseded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newBidMux(&stubBidService{confirmErr: tt.err})

			rec := postJSON(t, mux, "/api/bids/confirm", map[string]any{
				"challenge_handle": uuid.New(),
				"code":             "123456",
			}, nil)

			require.Equal(t, tt.wantStatus, rec.Code)

			var resp map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			require.Equal(t, tt.wantReason, resp["error"])
		})
	}
}
