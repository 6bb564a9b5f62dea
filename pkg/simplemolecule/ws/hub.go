// Package ws pushes store change events to browser clients over websockets.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tendant/simple-molecule/pkg/simplemolecule"
)

// Message types exchanged with clients.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypePing        = "ping"
	TypePong        = "pong"
	TypeChanged     = "molecular_data_changed"
	TypeError       = "error"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// ClientMessage is a message sent by a client. Identifier is ignored for ping.
type ClientMessage struct {
	Type       string `json:"type"`
	Identifier string `json:"identifier,omitempty"`
}

// ServerMessage is a message pushed to a client.
type ServerMessage struct {
	Type       string                    `json:"type"`
	Identifier string                    `json:"identifier,omitempty"`
	ChangeType simplemolecule.ChangeType `json:"change_type,omitempty"`
	Origin     simplemolecule.Origin     `json:"origin,omitempty"`
	Filename   string                    `json:"filename,omitempty"`
	Format     simplemolecule.Format     `json:"format,omitempty"`
	Stats      *simplemolecule.Stats     `json:"stats,omitempty"`
	Timestamp  time.Time                 `json:"timestamp,omitempty"`
	Message    string                    `json:"message,omitempty"`
}

// Hub tracks connected clients and fans store events out to them. It
// implements simplemolecule.Subscriber.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) {
		h.logger = logger
	}
}

// WithCheckOrigin replaces the upgrader's origin check.
func WithCheckOrigin(fn func(r *http.Request) bool) HubOption {
	return func(h *Hub) {
		h.upgrader.CheckOrigin = fn
	}
}

// NewHub creates a hub with no clients.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		logger:  slog.Default(),
		clients: make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP upgrades the request and serves the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan ServerMessage, sendBuffer),
		subs: make(map[string]struct{}),
	}
	if !h.register(c) {
		conn.Close()
		return
	}

	go c.writePump()
	c.readPump()
}

// HandleEvent pushes a change notification to every interested client. A
// client whose buffer is full is disconnected rather than waited on.
func (h *Hub) HandleEvent(ctx context.Context, event simplemolecule.Event) error {
	msg := changeMessage(event)

	h.mu.RLock()
	var slow []*client
	for c := range h.clients {
		if !c.wants(event.Identifier) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("Dropping slow websocket client", "remote", c.conn.RemoteAddr().String())
		h.unregister(c)
	}
	return nil
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.unregister(c)
	}
	return nil
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func changeMessage(event simplemolecule.Event) ServerMessage {
	msg := ServerMessage{
		Type:       TypeChanged,
		Identifier: event.Identifier,
		ChangeType: event.ChangeType,
		Origin:     event.Origin,
		Timestamp:  event.Timestamp,
	}
	if rec := event.Record; rec != nil {
		stats := rec.Stats
		msg.Filename = rec.Filename
		msg.Format = rec.Format
		msg.Stats = &stats
	}
	return msg
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan ServerMessage

	mu sync.Mutex
	// empty means every identifier
	subs map[string]struct{}
}

func (c *client) wants(identifier string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.subs) == 0 {
		return true
	}
	_, ok := c.subs[identifier]
	return ok
}

// reply queues a direct answer to the client, giving up if the buffer is full.
func (c *client) reply(msg ServerMessage) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (c *client) handle(msg ClientMessage) {
	switch msg.Type {
	case TypePing:
		c.reply(ServerMessage{Type: TypePong})
	case TypeSubscribe:
		if msg.Identifier != "" {
			c.mu.Lock()
			c.subs[msg.Identifier] = struct{}{}
			c.mu.Unlock()
		}
	case TypeUnsubscribe:
		c.mu.Lock()
		if msg.Identifier == "" {
			c.subs = make(map[string]struct{})
		} else {
			delete(c.subs, msg.Identifier)
		}
		c.mu.Unlock()
	default:
		c.reply(ServerMessage{Type: TypeError, Message: "unknown message type: " + msg.Type})
	}
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("Websocket read failed", "error", err)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.reply(ServerMessage{Type: TypeError, Message: "invalid message"})
			continue
		}
		c.handle(msg)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					c.hub.logger.Debug("Websocket write failed", "error", err)
				}
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
