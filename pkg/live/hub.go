// Package live pushes session events to the browser over a WebSocket and
// receives the browser's key, click and visibility events in return.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/payback159/raidsplit/pkg/export"
	"github.com/payback159/raidsplit/pkg/logging"
)

// Event types pushed to the browser
const (
	EventGeneration = "generation"
	EventSettings   = "settings"
	EventLocks      = "locks"
	EventToast      = "toast"
	EventClipboard  = "clipboard"
	EventModal      = "modal"
)

// Inbound message types sent by the browser
const (
	InboundHello        = "hello"
	InboundKey          = "key"
	InboundClickOutside = "click-outside"
	InboundVisibility   = "visibility"
	InboundActivity     = "activity"
)

// CapabilityRichClipboard is announced by browsers that can write HTML and
// plain text to the clipboard in one operation
const CapabilityRichClipboard = "rich-clipboard"

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
	maxInbound = 4096
)

// ErrNoClient is returned when no browser tab is connected
var ErrNoClient = errors.New("no browser connected")

// Event is one message pushed to the browser
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Inbound is one message received from the browser
type Inbound struct {
	Type         string   `json:"type"`
	Key          string   `json:"key,omitempty"`
	Modal        string   `json:"modal,omitempty"`
	Visible      *bool    `json:"visible,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// ClipboardPayload asks the browser to copy content
type ClipboardPayload struct {
	Mode string `json:"mode"` // rich, text or select
	HTML string `json:"html,omitempty"`
	Text string `json:"text"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte

	mu   sync.Mutex
	rich bool
}

func (c *client) richClipboard() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rich
}

// Hub tracks the browser connections of one session
type Hub struct {
	mu      sync.Mutex
	clients map[*client]bool
	handler func(Inbound)
	closed  bool
}

// NewHub creates a hub without connections
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]bool)}
}

// OnMessage sets the callback for messages from the browser
func (h *Hub) OnMessage(fn func(Inbound)) {
	h.mu.Lock()
	h.handler = fn
	h.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     sameOrigin,
}

// sameOrigin accepts requests without an Origin header and requests whose
// Origin host matches the Host header
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}

// Upgrade switches an HTTP request to a WebSocket connection
func Upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return upgrader.Upgrade(w, r, nil)
}

// Serve registers conn and runs its read and write pumps. It returns
// immediately.
func (h *Hub) Serve(conn *websocket.Conn) {
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = true
	count := len(h.clients)
	h.mu.Unlock()

	logging.LogDebug("Live client connected", "remote", conn.RemoteAddr().String(), "clients", count)

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxInbound)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var in Inbound
		if err := c.conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.LogWarn("Live connection read error", "error", err.Error())
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		if in.Type == InboundHello {
			for _, capability := range in.Capabilities {
				if capability == CapabilityRichClipboard {
					c.mu.Lock()
					c.rich = true
					c.mu.Unlock()
				}
			}
		}

		h.mu.Lock()
		handler := h.handler
		h.mu.Unlock()
		if handler != nil {
			handler(in)
		}
	}
}

// Broadcast sends an event to every connected client and returns how many
// received it. Clients whose buffer is full are dropped.
func (h *Hub) Broadcast(eventType string, data any) int {
	msg, err := json.Marshal(Event{Type: eventType, Data: data})
	if err != nil {
		logging.LogError("Failed to encode live event", err, "type", eventType)
		return 0
	}
	return h.sendTo(msg, func(*client) bool { return true })
}

func (h *Hub) sendTo(msg []byte, accept func(*client) bool) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	sent := 0
	for c := range h.clients {
		if !accept(c) {
			continue
		}
		select {
		case c.send <- msg:
			sent++
		default:
			delete(h.clients, c)
			close(c.send)
			logging.LogWarn("Dropping slow live client")
		}
	}
	return sent
}

// Clients returns the number of connected browsers
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) sendClipboard(ctx context.Context, p ClipboardPayload, accept func(*client) bool, none error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := json.Marshal(Event{Type: EventClipboard, Data: p})
	if err != nil {
		return err
	}
	if h.sendTo(msg, accept) == 0 {
		return none
	}
	return nil
}

// WriteRich asks browsers that announced rich clipboard support to store
// both representations
func (h *Hub) WriteRich(ctx context.Context, html, text string) error {
	return h.sendClipboard(ctx, ClipboardPayload{Mode: "rich", HTML: html, Text: text},
		(*client).richClipboard, export.ErrUnsupported)
}

// WriteText asks every browser to store text as plain text
func (h *Hub) WriteText(ctx context.Context, text string) error {
	return h.sendClipboard(ctx, ClipboardPayload{Mode: "text", Text: text},
		func(*client) bool { return true }, ErrNoClient)
}

// CopySelection asks every browser to copy text through a selection
func (h *Hub) CopySelection(ctx context.Context, text string) error {
	return h.sendClipboard(ctx, ClipboardPayload{Mode: "select", Text: text},
		func(*client) bool { return true }, ErrNoClient)
}

var _ export.Clipboard = (*Hub)(nil)
