package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"trading-robot/internal/model"
	"trading-robot/internal/ringbuf"
)

// WSConfig configures a WSSource.
type WSConfig struct {
	// URL of the bar server, e.g. "ws://localhost:9001/bars".
	URL string

	// Symbols are sent in a subscribe message after each connect.
	Symbols []string

	// Buffer is the ring capacity (rounded up to a power of two). Default 4096.
	Buffer int

	ReconnectDelay    time.Duration // default 2s
	MaxReconnectDelay time.Duration // default 30s
}

func (c *WSConfig) defaults() {
	if c.Buffer <= 0 {
		c.Buffer = 4096
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

type subscribeMsg struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
}

// WSSource reads JSON bars from a WebSocket server. A reader goroutine pushes
// into a ring buffer; FetchLatest drains it from the robot loop.
//
// Wire format, one bar per text message:
//
//	{"symbol":"FCEL","ts":"2026-03-02T14:31:00Z","open":1.1,"high":1.2,"low":1.0,"close":1.15,"volume":900}
type WSSource struct {
	cfg  WSConfig
	ring *ringbuf.Ring

	connected  atomic.Bool
	reconnects atomic.Int64

	// Optional hook, called after each disconnect.
	OnReconnect func()
}

// NewWSSource validates the URL and allocates the ring.
func NewWSSource(cfg WSConfig) (*WSSource, error) {
	cfg.defaults()
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("ws source url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("ws source url: unsupported scheme %q", u.Scheme)
	}
	return &WSSource{cfg: cfg, ring: ringbuf.New(cfg.Buffer)}, nil
}

// Connected reports whether the reader currently holds a connection.
func (s *WSSource) Connected() bool { return s.connected.Load() }

// Reconnects returns how many times the connection was lost.
func (s *WSSource) Reconnects() int64 { return s.reconnects.Load() }

// Dropped returns how many bars were discarded because the ring was full.
func (s *WSSource) Dropped() uint64 { return s.ring.Dropped() }

// FetchLatest implements Live.
func (s *WSSource) FetchLatest(ctx context.Context) ([]model.Bar, error) {
	bars := s.ring.Drain(nil)
	model.SortBars(bars)
	return bars, ctx.Err()
}

// Run connects and reads until ctx is cancelled, reconnecting with
// exponential backoff. It must be the only producer for the source.
func (s *WSSource) Run(ctx context.Context) error {
	var delay time.Duration
	for {
		if ctx.Err() != nil {
			return nil
		}
		connected, err := s.runOnce(ctx)
		if err == nil {
			return nil
		}
		delay = s.backoff(delay, connected)
		s.reconnects.Add(1)
		log.Printf("[feed-ws] disconnected (%v), reconnecting in %s", err, delay)
		if s.OnReconnect != nil {
			s.OnReconnect()
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// backoff returns the wait before the next dial. A session that got as far
// as subscribing starts over from ReconnectDelay; failed dials double the
// previous wait up to MaxReconnectDelay.
func (s *WSSource) backoff(prev time.Duration, connected bool) time.Duration {
	if connected || prev <= 0 {
		return s.cfg.ReconnectDelay
	}
	return min(prev*2, s.cfg.MaxReconnectDelay)
}

// runOnce dials and reads until the connection drops. connected reports
// whether the subscription was established.
func (s *WSSource) runOnce(ctx context.Context) (connected bool, err error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	if len(s.cfg.Symbols) > 0 {
		if err := conn.WriteJSON(subscribeMsg{Action: "subscribe", Symbols: s.cfg.Symbols}); err != nil {
			return false, fmt.Errorf("subscribe: %w", err)
		}
	}
	s.connected.Store(true)
	defer s.connected.Store(false)
	log.Printf("[feed-ws] connected to %s", s.cfg.URL)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return true, nil
			}
			return true, err
		}
		var b model.Bar
		if err := json.Unmarshal(raw, &b); err != nil {
			log.Printf("[feed-ws] parse error: %v (raw: %s)", err, raw)
			continue
		}
		if b.Symbol == "" || b.TS.IsZero() {
			log.Printf("[feed-ws] skipping bar without symbol or ts")
			continue
		}
		b.TS = b.TS.UTC()
		if !s.ring.Push(b) {
			log.Printf("[feed-ws] ring full, dropped %s", b.Key())
		}
	}
}
