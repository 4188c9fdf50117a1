package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"time"
)

// RequestSigner signs outbound requests to the external notification
// gateway. The gateway rejects unsigned deliveries, so every vendor-facing
// notification carries these headers.
type RequestSigner struct {
	Key    string // shared key identifier
	Secret string // shared secret
}

// Headers returns the HTTP headers for a signed gateway request. The
// signature is HMAC-SHA256(secret, timestamp+method+path+body) encoded as
// base64.
//
// Returned header keys:
//   - X-Salvage-Key
//   - X-Salvage-Timestamp
//   - X-Salvage-Signature
func (s *RequestSigner) Headers(method, path, body string) map[string]string {
	return s.HeadersAt(method, path, body, time.Now().Unix())
}

// HeadersAt is like Headers but lets the caller supply the Unix timestamp
// (useful for deterministic testing).
func (s *RequestSigner) HeadersAt(method, path, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)

	message := ts + method + path + body
	sig := hmacSHA256Base64([]byte(s.Secret), message)

	return map[string]string{
		"X-Salvage-Key":       s.Key,
		"X-Salvage-Timestamp": ts,
		"X-Salvage-Signature": sig,
	}
}

// hmacSHA256Base64 computes HMAC-SHA256 of message using key and returns the
// result as a base64 standard-encoded string.
func hmacSHA256Base64(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
