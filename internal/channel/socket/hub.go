// Package socket is the realtime channel: a registry of live websocket
// sessions keyed by user id.
package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"reminderd/internal/channel"
	logx "reminderd/pkg/logx"
)

type Options struct {
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	AllowedOrigins []string
}

// Client is one websocket session. Writes are serialized per connection.
type Client struct {
	UserID string
	conn   *websocket.Conn

	writeMu sync.Mutex
}

// Hub maps user ids to their live sessions.
type Hub struct {
	log  logx.Logger
	opts Options

	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}

	upgrader websocket.Upgrader
}

func NewHub(opts Options, log logx.Logger) *Hub {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	h := &Hub{
		log:     log.With(logx.String("comp", "socket")),
		opts:    opts,
		clients: map[string]map[*Client]struct{}{},
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

// checkOrigin accepts requests without an Origin header (non-browser
// clients). With no AllowedOrigins configured only same-origin browsers
// are accepted; "*" allows any origin.
func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(h.opts.AllowedOrigins) == 0 {
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
	for _, o := range h.opts.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

func (h *Hub) Name() string { return channel.Socket }

func (h *Hub) Configured() bool { return true }

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	if h.clients[c.UserID] == nil {
		h.clients[c.UserID] = map[*Client]struct{}{}
	}
	h.clients[c.UserID][c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if set := h.clients[c.UserID]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.UserID)
		}
	}
	h.mu.Unlock()
	_ = c.conn.Close()
}

// Connected reports whether userID has at least one live session.
func (h *Hub) Connected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// Count returns the number of users with a live session.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) sessions(userID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		out = append(out, c)
	}
	return out
}

func (c *Client) write(ctx context.Context, messageType int, data []byte, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

// Send writes msg to every session of the user. It succeeds if any write did.
func (h *Hub) Send(ctx context.Context, to channel.Recipient, msg channel.Message) error {
	clients := h.sessions(to.UserID)
	if len(clients) == 0 {
		return channel.ErrNotConnected
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	var errs []error
	delivered := 0
	for _, c := range clients {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := c.write(ctx, websocket.TextMessage, data, h.opts.WriteTimeout); err != nil {
			errs = append(errs, err)
			h.unregister(c)
			continue
		}
		delivered++
	}
	if delivered > 0 {
		return nil
	}
	return fmt.Errorf("socket write: %w", errors.Join(errs...))
}

// inbound is what clients may send; only acks are understood.
type inbound struct {
	Type          string `json:"type"`
	ReminderCount int    `json:"reminderCount,omitempty"`
}

// Serve upgrades the request and holds the session until the peer leaves
// or ctx is done.
func (h *Hub) Serve(ctx context.Context, w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &Client{UserID: userID, conn: conn}
	h.register(c)
	h.log.Debug("session opened", logx.String("user_id", userID))

	done := make(chan struct{})
	defer func() {
		close(done)
		h.unregister(c)
		h.log.Debug("session closed", logx.String("user_id", userID))
	}()

	go h.pingLoop(ctx, c, done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil
		}
		var in inbound
		if json.Unmarshal(data, &in) == nil && in.Type == "water-reminder-ack" {
			h.log.Info("reminder acknowledged", logx.String("user_id", userID), logx.Int("reminder_count", in.ReminderCount))
		}
	}
}

func (h *Hub) pingLoop(ctx context.Context, c *Client, done <-chan struct{}) {
	t := time.NewTicker(h.opts.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			_ = c.conn.Close()
			return
		case <-t.C:
			if err := c.write(ctx, websocket.PingMessage, nil, h.opts.WriteTimeout); err != nil {
				_ = c.conn.Close()
				return
			}
		}
	}
}
