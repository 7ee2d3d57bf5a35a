package feedback

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/wayfinder/internal/observe"
)

const (
	defaultClientBuffer = 64
	writeTimeout        = 5 * time.Second
)

// Hub streams feedback events to WebSocket clients. Each rider may have any
// number of connected clients (phone, watch, screen reader bridge); every
// client receives that rider's events in emission order.
//
// A client whose buffer fills up is disconnected rather than skipped, so a
// connected client never observes a gap or a reordering.
//
// Hub is safe for concurrent use.
type Hub struct {
	mu      sync.Mutex
	clients map[string]map[*client]struct{}
	closed  bool

	buffer  int
	origins []string
	metrics *observe.Metrics
	now     func() time.Time
}

type client struct {
	events chan Event
}

// HubOption configures a [Hub].
type HubOption func(*Hub)

// WithClientBuffer sets the per-client event buffer. Default: 64.
func WithClientBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithOriginPatterns sets the allowed cross-origin host patterns for the
// WebSocket handshake.
func WithOriginPatterns(patterns ...string) HubOption {
	return func(h *Hub) { h.origins = patterns }
}

// WithHubMetrics tracks connected clients on m.
func WithHubMetrics(m *observe.Metrics) HubOption {
	return func(h *Hub) { h.metrics = m }
}

// NewHub returns an empty [Hub].
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		clients: make(map[string]map[*client]struct{}),
		buffer:  defaultClientBuffer,
		now:     time.Now,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Channel returns a [Channel] that publishes to userID's clients, tagging
// every event with surface.
func (h *Hub) Channel(userID, surface string) Channel {
	return &hubChannel{hub: h, userID: userID, surface: surface}
}

// Clients reports how many clients are connected for userID.
func (h *Hub) Clients(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[userID])
}

// Publish delivers ev to every client of userID without blocking.
func (h *Hub) Publish(userID string, ev Event) {
	if ev.At.IsZero() {
		ev.At = h.now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients[userID] {
		select {
		case c.events <- ev:
		default:
			slog.Warn("feedback: client too slow, disconnecting", "user_id", userID, "kind", ev.Kind)
			h.removeLocked(userID, c)
		}
	}
}

// ServeWS upgrades the request to a WebSocket and streams userID's events
// until the client disconnects or the hub is closed. Authentication is the
// caller's responsibility.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		slog.Warn("feedback: websocket accept failed", "user_id", userID, "err", err)
		return
	}

	c, ok := h.add(userID)
	if !ok {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer h.remove(userID, c)

	// Clients never send; CloseRead handles pings and close frames.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev, open := <-c.events:
			if !open {
				conn.Close(websocket.StatusTryAgainLater, "feedback stream closed")
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, ev)
			cancel()
			if err != nil {
				slog.Debug("feedback: websocket write failed", "user_id", userID, "err", err)
				conn.Close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for userID, set := range h.clients {
		for c := range set {
			h.removeLocked(userID, c)
		}
	}
	return nil
}

func (h *Hub) add(userID string) (*client, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	c := &client{events: make(chan Event, h.buffer)}
	set, ok := h.clients[userID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[userID] = set
	}
	set[c] = struct{}{}
	if h.metrics != nil {
		h.metrics.FeedbackClients.Add(context.Background(), 1)
	}
	return c, true
}

func (h *Hub) remove(userID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(userID, c)
}

// removeLocked must be called with h.mu held. Closing the events channel
// tells the writer loop to hang up.
func (h *Hub) removeLocked(userID string, c *client) {
	set := h.clients[userID]
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.events)
	if h.metrics != nil {
		h.metrics.FeedbackClients.Add(context.Background(), -1)
	}
	if len(set) == 0 {
		delete(h.clients, userID)
	}
}

// hubChannel adapts a Hub to the Channel interface for one rider and surface.
type hubChannel struct {
	hub     *Hub
	userID  string
	surface string
}

func (c *hubChannel) Announce(_ context.Context, text string) {
	c.hub.Publish(c.userID, Event{Kind: EventAnnounce, Surface: c.surface, Text: text})
}

func (c *hubChannel) Vibrate(_ context.Context, p Pattern) {
	c.hub.Publish(c.userID, Event{Kind: EventVibrate, Surface: c.surface, Pattern: p.Millis()})
}

func (c *hubChannel) Cue(_ context.Context, t Tone) {
	c.hub.Publish(c.userID, Event{Kind: EventCue, Surface: c.surface, Tone: &t})
}

func (c *hubChannel) Status(_ context.Context, s Status) {
	c.hub.Publish(c.userID, Event{Kind: EventStatus, Surface: c.surface, Status: &s})
}
