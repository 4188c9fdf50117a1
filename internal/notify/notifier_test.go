package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/salvagehub/salvagebid/internal/crypto"
	"github.com/salvagehub/salvagebid/internal/domain"
)

type stubSender struct {
	mu        sync.Mutex
	name      string
	err       error
	delivered []domain.NotificationKind
}

func (s *stubSender) Deliver(_ context.Context, kind domain.NotificationKind, _ map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.delivered = append(s.delivered, kind)
	return nil
}

func (s *stubSender) Name() string { return s.name }

type stubBus struct {
	mu       sync.Mutex
	appended [][]byte
}

func (b *stubBus) Publish(context.Context, string, []byte) error { return nil }

func (b *stubBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (b *stubBus) StreamAppend(_ context.Context, _ string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.appended = append(b.appended, payload)
	return nil
}

func (b *stubBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyFansOutToAllSenders(t *testing.T) {
	a := &stubSender{name: "a"}
	b := &stubSender{name: "b"}
	g := NewGateway([]Sender{a, b}, &stubBus{}, nil, discardLogger())

	err := g.Notify(context.Background(), domain.NotifyOutbid, map[string]any{"auction_id": "x"})
	require.NoError(t, err)
	require.Equal(t, []domain.NotificationKind{domain.NotifyOutbid}, a.delivered)
	require.Equal(t, []domain.NotificationKind{domain.NotifyOutbid}, b.delivered)
}

func TestNotifyKindFilter(t *testing.T) {
	s := &stubSender{name: "ops"}
	g := NewGateway([]Sender{s}, &stubBus{}, []string{"fraud_alert", " outbid "}, discardLogger())

	require.NoError(t, g.Notify(context.Background(), domain.NotifyFraudAlert, nil))
	require.NoError(t, g.Notify(context.Background(), domain.NotifyOutbid, nil))
	require.NoError(t, g.Notify(context.Background(), domain.NotifyOTPCode, nil))

	require.Equal(t, []domain.NotificationKind{domain.NotifyFraudAlert, domain.NotifyOutbid}, s.delivered)
}

func TestNotifyStreamsFilteredKinds(t *testing.T) {
	bus := &stubBus{}
	g := NewGateway(nil, bus, []string{"fraud_alert"}, discardLogger())

	// The durable record is written even when no sender admits the kind.
	require.NoError(t, g.Notify(context.Background(), domain.NotifyOTPCode, map[string]any{"code": "123456"}))
	require.Len(t, bus.appended, 1)
}

func TestNotifyCombinesSenderFailures(t *testing.T) {
	ok := &stubSender{name: "ok"}
	bad := &stubSender{name: "bad", err: errors.New("timeout")}
	g := NewGateway([]Sender{bad, ok}, &stubBus{}, nil, discardLogger())

	err := g.Notify(context.Background(), domain.NotifyWinning, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "bad: timeout")
	// The failing sender does not block the healthy one.
	require.Len(t, ok.delivered, 1)
}

func TestWebhookSenderPostsEnvelope(t *testing.T) {
	var got struct {
		mu      sync.Mutex
		body    []byte
		headers http.Header
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.mu.Lock()
		defer got.mu.Unlock()
		got.body, _ = io.ReadAll(r.Body)
		got.headers = r.Header.Clone()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sender := NewWebhookSender(srv.URL + "/hooks/salvage")
	err := sender.Deliver(context.Background(), domain.NotifyOTPCode, map[string]any{"code": "123456"})
	require.NoError(t, err)

	got.mu.Lock()
	defer got.mu.Unlock()
	require.Contains(t, string(got.body), `"otp_code"`)
	require.Contains(t, string(got.body), `"123456"`)
	require.Equal(t, "application/json", got.headers.Get("Content-Type"))
	require.Empty(t, got.headers.Get("X-Salvage-Signature"))
}

func TestWebhookSenderSignsWhenConfigured(t *testing.T) {
	var headers http.Header
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		headers = r.Header.Clone()
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := NewWebhookSender(srv.URL + "/hooks/salvage").
		WithSigner(&crypto.RequestSigner{Key: "k1", Secret: "s3cret"})
	require.NoError(t, sender.Deliver(context.Background(), domain.NotifyOutbid, nil))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "k1", headers.Get("X-Salvage-Key"))
	require.NotEmpty(t, headers.Get("X-Salvage-Timestamp"))
	require.NotEmpty(t, headers.Get("X-Salvage-Signature"))
}

func TestWebhookSenderRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	sender := NewWebhookSender(srv.URL)
	err := sender.Deliver(context.Background(), domain.NotifyOutbid, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "502")
}
