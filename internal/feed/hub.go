package feed

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"trading-robot/internal/model"
)

// Hub is the server side of the WebSocket bar feed: it broadcasts bars to
// connected clients, honoring each client's subscribe message.
type Hub struct {
	mu      sync.RWMutex
	clients map[*hubClient]struct{}
	up      websocket.Upgrader
}

type hubClient struct {
	ch      chan []byte
	symbols map[string]bool // nil: every symbol
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*hubClient]struct{}),
		up:      websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
}

// ServeHTTP upgrades the connection and streams bars until the client leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.up.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[feed-hub] upgrade error: %v", err)
		return
	}
	c := &hubClient{ch: make(chan []byte, 256)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	log.Printf("[feed-hub] client connected: %s", r.RemoteAddr)

	go h.readPump(conn, c)

	defer func() {
		conn.Close()
		log.Printf("[feed-hub] client disconnected: %s", r.RemoteAddr)
	}()
	for msg := range c.ch {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.remove(c)
			return
		}
	}
}

// readPump applies subscribe messages and removes the client on disconnect.
func (h *Hub) readPump(conn *websocket.Conn, c *hubClient) {
	defer h.remove(c)
	for {
		var msg subscribeMsg
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Action != "subscribe" {
			continue
		}
		syms := make(map[string]bool, len(msg.Symbols))
		for _, s := range msg.Symbols {
			syms[s] = true
		}
		h.mu.Lock()
		c.symbols = syms
		h.mu.Unlock()
	}
}

func (h *Hub) remove(c *hubClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.ch)
	}
	h.mu.Unlock()
}

// Broadcast sends b to every client subscribed to its symbol. Slow clients
// drop bars rather than block the caller.
func (h *Hub) Broadcast(b model.Bar) {
	raw, err := json.Marshal(b)
	if err != nil {
		return
	}
	h.BroadcastRaw(b.Symbol, raw)
}

// BroadcastRaw sends a pre-encoded message for symbol.
func (h *Hub) BroadcastRaw(symbol string, msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.symbols != nil && !c.symbols[symbol] {
			continue
		}
		select {
		case c.ch <- msg:
		default:
		}
	}
}

// Subscribers counts the clients that would receive bars of symbol.
func (h *Hub) Subscribers(symbol string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for c := range h.clients {
		if c.symbols == nil || c.symbols[symbol] {
			n++
		}
	}
	return n
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
