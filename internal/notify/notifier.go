// Package notify implements the notification gateway. Events are dispatched
// to all registered senders (the platform's vendor-facing webhook, plus
// operator channels like Telegram and Discord) and appended to a durable
// stream so downstream consumers never miss one. Senders can be filtered by
// event kind so operators receive only the alerts they care about.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/salvagehub/salvagebid/internal/domain"
)

// notificationStream is the durable stream that records every dispatched
// event.
const notificationStream = "notifications"

// Sender is the interface that each delivery channel must implement.
type Sender interface {
	// Deliver forwards one event to the channel.
	Deliver(ctx context.Context, kind domain.NotificationKind, payload map[string]any) error
	// Name returns a human-readable identifier for the sender (e.g. "webhook").
	Name() string
}

// Gateway implements domain.NotificationGateway by fanning events out to its
// senders. It maintains a set of allowed event kinds; kinds outside the set
// are streamed but not delivered. An empty set allows everything.
type Gateway struct {
	senders []Sender
	bus     domain.EventBus
	kinds   map[domain.NotificationKind]bool
	logger  *slog.Logger
}

// NewGateway creates a Gateway delivering to the given senders. Only events
// whose kind appears in the kinds slice are forwarded; if kinds is empty,
// all kinds are allowed.
func NewGateway(senders []Sender, bus domain.EventBus, kinds []string, logger *slog.Logger) *Gateway {
	allowed := make(map[domain.NotificationKind]bool, len(kinds))
	for _, k := range kinds {
		allowed[domain.NotificationKind(strings.TrimSpace(k))] = true
	}
	return &Gateway{
		senders: senders,
		bus:     bus,
		kinds:   allowed,
		logger:  logger.With(slog.String("component", "notify")),
	}
}

// Notify streams the event and dispatches it to every sender whose filter
// admits the kind. Errors from individual senders are collected and returned
// as a combined error; a single sender failure does not prevent delivery to
// the remaining senders.
func (g *Gateway) Notify(ctx context.Context, kind domain.NotificationKind, payload map[string]any) error {
	if g.bus != nil {
		record, err := json.Marshal(map[string]any{
			"kind":    kind,
			"payload": payload,
			"at":      time.Now().UTC(),
		})
		if err == nil {
			if err := g.bus.StreamAppend(ctx, notificationStream, record); err != nil {
				g.logger.WarnContext(ctx, "stream append failed",
					slog.String("kind", string(kind)),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	if len(g.kinds) > 0 && !g.kinds[kind] {
		g.logger.DebugContext(ctx, "event kind filtered out",
			slog.String("kind", string(kind)),
		)
		return nil
	}

	if len(g.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range g.senders {
		if err := s.Deliver(ctx, kind, payload); err != nil {
			g.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("kind", string(kind)),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		} else {
			g.logger.DebugContext(ctx, "event delivered",
				slog.String("sender", s.Name()),
				slog.String("kind", string(kind)),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// Compile-time interface check.
var _ domain.NotificationGateway = (*Gateway)(nil)
