// Package ws bridges the Redis event bus to WebSocket clients so bidders can
// follow live auctions without polling.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/salvagehub/salvagebid/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 256
)

// auctionEvents is the pub/sub pattern carrying every auction's live events.
const auctionEvents = "auction:*"

// upgrader configures the WebSocket upgrade parameters.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins. In production, restrict this to known origins.
		return true
	},
}

// WatchCounter adjusts an auction's watcher count. Implemented by the
// ledger.
type WatchCounter interface {
	Watch(ctx context.Context, auctionID uuid.UUID, delta int) (int, error)
}

// client represents a single WebSocket connection and the set of auctions it
// watches.
type client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	watching map[uuid.UUID]bool
	mu       sync.RWMutex
}

// watchMsg is the JSON message a client sends to start or stop following an
// auction.
type watchMsg struct {
	Action    string `json:"action"` // "watch" or "unwatch"
	AuctionID string `json:"auction_id"`
}

// Hub manages connected WebSocket clients and routes auction events from the
// Redis event bus to the clients watching each auction. Watching through the
// hub also maintains the auction's watcher count, so the count decays
// naturally when connections drop.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan broadcastMsg
	register   chan *client
	unregister chan *client
	bus        domain.EventBus
	watcher    WatchCounter
	mu         sync.RWMutex
	logger     *slog.Logger
	startedAt  time.Time
}

// broadcastMsg carries an event along with the auction it belongs to so the
// hub can route it only to clients watching that auction.
type broadcastMsg struct {
	auctionID uuid.UUID
	data      []byte
}

// NewHub creates a Hub bridging the event bus to WebSocket clients.
func NewHub(bus domain.EventBus, watcher WatchCounter, logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan broadcastMsg, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		bus:        bus,
		watcher:    watcher,
		logger:     logger,
		startedAt:  time.Now().UTC(),
	}
}

// Run starts the hub's main event loop. It handles client registration,
// unregistration, and event broadcasting, and exits when the context is
// cancelled.
func (h *Hub) Run(ctx context.Context) error {
	go h.subscribeToEvents(ctx)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Info("ws: client connected",
				slog.Int("total_clients", h.clientCount()),
			)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			c.dropWatches(ctx)
			h.logger.Info("ws: client disconnected",
				slog.Int("total_clients", h.clientCount()),
			)

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if c.isWatching(msg.auctionID) {
					select {
					case c.send <- msg.data:
					default:
						// Client's send buffer is full; drop the message.
						h.logger.Warn("ws: dropping message for slow client")
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// subscribeToEvents subscribes to the auction event pattern and forwards
// received events to the hub's broadcast channel. Events carry their auction
// id in the payload.
func (h *Hub) subscribeToEvents(ctx context.Context) {
	msgCh, err := h.bus.Subscribe(ctx, auctionEvents)
	if err != nil {
		h.logger.Error("ws: failed to subscribe to auction events",
			slog.String("error", err.Error()),
		)
		return
	}

	h.logger.Info("ws: subscribed to auction events")

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgCh:
			if !ok {
				h.logger.Warn("ws: auction event subscription closed")
				return
			}

			var envelope struct {
				AuctionID uuid.UUID `json:"auction_id"`
			}
			if err := json.Unmarshal(data, &envelope); err != nil || envelope.AuctionID == uuid.Nil {
				continue
			}

			h.broadcast <- broadcastMsg{
				auctionID: envelope.AuctionID,
				data:      data,
			}
		}
	}
}

// HandleWS upgrades an HTTP request to a WebSocket connection and registers
// the client with the hub.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		watching: make(map[uuid.UUID]bool),
	}

	h.register <- c
	c.sendInitialStatus()

	go c.writePump()
	go c.readPump()
}

// clientCount returns the number of currently connected clients.
func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// readPump reads messages from the WebSocket connection and handles
// watch/unwatch requests (JSON text frames) from the client.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error",
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var msg watchMsg
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		c.handleWatch(msg)
	}
}

// handleWatch processes a watch/unwatch request. The watcher count only
// moves on an actual state change, so repeated watch frames for the same
// auction do not inflate it.
func (c *client) handleWatch(msg watchMsg) {
	auctionID, err := uuid.Parse(msg.AuctionID)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Action {
	case "watch":
		if c.watching[auctionID] {
			return
		}
		c.watching[auctionID] = true
		if _, err := c.hub.watcher.Watch(ctx, auctionID, 1); err != nil {
			c.hub.logger.Warn("ws: watch count update failed",
				slog.String("auction_id", auctionID.String()),
				slog.String("error", err.Error()),
			)
		}
	case "unwatch":
		if !c.watching[auctionID] {
			return
		}
		delete(c.watching, auctionID)
		if _, err := c.hub.watcher.Watch(ctx, auctionID, -1); err != nil {
			c.hub.logger.Warn("ws: watch count update failed",
				slog.String("auction_id", auctionID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
}

// dropWatches releases every auction the client was still watching. Called
// after the client is unregistered.
func (c *client) dropWatches(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for auctionID := range c.watching {
		if _, err := c.hub.watcher.Watch(ctx, auctionID, -1); err != nil {
			c.hub.logger.Warn("ws: watch count release failed",
				slog.String("auction_id", auctionID.String()),
				slog.String("error", err.Error()),
			)
		}
		delete(c.watching, auctionID)
	}
}

// sendInitialStatus pushes a small JSON envelope so clients can immediately
// mark the connection as healthy even before any auction events flow.
func (c *client) sendInitialStatus() {
	uptime := int64(time.Since(c.hub.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}

	msg, err := json.Marshal(map[string]any{
		"type": "status",
		"payload": map[string]any{
			"connected":      true,
			"uptime_seconds": uptime,
		},
	})
	if err != nil {
		return
	}

	select {
	case c.send <- msg:
	default:
	}
}

// isWatching checks whether the client follows the given auction.
func (c *client) isWatching(auctionID uuid.UUID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.watching[auctionID]
}

// writePump pumps messages from the hub to the WebSocket connection, with
// periodic ping frames for keepalive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
