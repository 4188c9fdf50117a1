package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/salvagehub/salvagebid/internal/crypto"
	"github.com/salvagehub/salvagebid/internal/domain"
)

// WebhookSender forwards events to the external notification system that
// performs vendor-facing delivery (email/SMS/push). This core never renders
// message content; it ships the structured event as-is.
type WebhookSender struct {
	url    string
	client *http.Client
	signer *crypto.RequestSigner
}

// NewWebhookSender creates a WebhookSender for the given endpoint. It uses a
// default HTTP client with a 10-second timeout.
func NewWebhookSender(url string) *WebhookSender {
	return &WebhookSender{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// WithSigner enables HMAC request signing. Gateways deployed with a shared
// secret reject unsigned deliveries.
func (w *WebhookSender) WithSigner(signer *crypto.RequestSigner) *WebhookSender {
	w.signer = signer
	return w
}

// Deliver posts the event as a JSON envelope {kind, payload}.
func (w *WebhookSender) Deliver(ctx context.Context, kind domain.NotificationKind, payload map[string]any) error {
	body, err := json.Marshal(map[string]any{
		"kind":    kind,
		"payload": payload,
	})
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if w.signer != nil {
		path := "/"
		if u, err := url.Parse(w.url); err == nil && u.Path != "" {
			path = u.Path
		}
		for k, v := range w.signer.Headers(http.MethodPost, path, string(body)) {
			req.Header.Set(k, v)
		}
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// Name returns the sender identifier.
func (w *WebhookSender) Name() string {
	return "webhook"
}
