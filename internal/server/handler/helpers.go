package handler

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/salvagehub/salvagebid/internal/domain"
)

// timeFormat is the wire format for timestamps in API responses.
const timeFormat = time.RFC3339

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal_error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError renders a domain error as {"error": <reason code>,
// "message": ...} with the HTTP status the reason maps to.
func writeDomainError(w http.ResponseWriter, err error) {
	reason := domain.ReasonCode(err)
	writeJSON(w, statusForReason(reason), map[string]string{
		"error":   reason,
		"message": messageForReason(reason),
	})
}

// statusForReason maps reason codes onto HTTP statuses. Conflict-flavoured
// outcomes (superseded, already rated) are 409; the tier ceiling is 403 so
// upgrade-flow clients can branch on the status alone.
func statusForReason(reason string) int {
	switch reason {
	case domain.ReasonNotFound:
		return http.StatusNotFound
	case domain.ReasonAuctionClosed, domain.ReasonBidSuperseded, domain.ReasonAlreadyRated:
		return http.StatusConflict
	case domain.ReasonTierCeilingExceeded:
		return http.StatusForbidden
	case domain.ReasonInsufficientAmount, domain.ReasonInvalidRating, domain.ReasonReviewTooLong:
		return http.StatusUnprocessableEntity
	case domain.ReasonInvalidCode:
		return http.StatusBadRequest
	case domain.ReasonCodeExpired:
		return http.StatusGone
	case domain.ReasonRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// messageForReason provides the human-readable counterpart to each reason
// code.
func messageForReason(reason string) string {
	switch reason {
	case domain.ReasonNotFound:
		return "resource not found"
	case domain.ReasonAuctionClosed:
		return "auction is not open for bidding"
	case domain.ReasonBidSuperseded:
		return "a competing bid was accepted first; submit again"
	case domain.ReasonAlreadyRated:
		return "this transaction has already been rated"
	case domain.ReasonTierCeilingExceeded:
		return "bid exceeds your tier ceiling; tier upgrade required"
	case domain.ReasonInsufficientAmount:
		return "bid amount is below the required minimum"
	case domain.ReasonInvalidRating:
		return "ratings must be integers between 1 and 5"
	case domain.ReasonReviewTooLong:
		return "review exceeds the maximum length"
	case domain.ReasonInvalidCode:
		return "confirmation code is not valid"
	case domain.ReasonCodeExpired:
		return "confirmation code has expired; submit again"
	case domain.ReasonRateLimited:
		return "too many submissions; slow down"
	default:
		return "internal error"
	}
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// vendorIdentity resolves the calling vendor. An explicit ID in the request
// wins; otherwise the X-Vendor-ID header set by the upstream session gateway
// is used. Returns uuid.Nil when neither is present or the header is
// malformed.
func vendorIdentity(r *http.Request, explicit uuid.UUID) uuid.UUID {
	if explicit != uuid.Nil {
		return explicit
	}
	header := strings.TrimSpace(r.Header.Get("X-Vendor-ID"))
	if header == "" {
		return uuid.Nil
	}
	id, err := uuid.Parse(header)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// clientIP determines the real client IP from standard proxy headers,
// falling back to the direct remote address. Fraud heuristics key on this
// value, so it must survive the load balancer.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		ip := strings.TrimSpace(parts[0])
		if ip != "" {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
