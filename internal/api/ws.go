package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/servemon/servemon/internal/model"
)

const (
	pingInterval = 30 * time.Second
	readTimeout  = 60 * time.Second
)

// Stream channel names clients can subscribe to. A client with no
// subscriptions receives both.
const (
	streamAlerts  = "alerts"
	streamSamples = "samples"
)

// Hub manages WebSocket connections and fans out alert notifications and
// system samples to subscribed clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	reg     chan *wsClient
	unreg   chan *wsClient
}

type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	subs map[string]bool // subscribed stream names
	mu   sync.Mutex
}

// NewHub creates a new WebSocket hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*wsClient]struct{}),
		reg:     make(chan *wsClient, 16),
		unreg:   make(chan *wsClient, 16),
	}
}

// Run processes register/unregister events.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.reg:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
		case c := <-h.unreg:
			h.mu.Lock()
			delete(h.clients, c)
			h.mu.Unlock()
			close(c.send)
		}
	}
}

// BroadcastSample sends a system sample to clients on the samples stream.
func (h *Hub) BroadcastSample(sample model.SystemSample) {
	h.broadcast(streamSamples, map[string]any{
		"type":   "system_sample",
		"sample": sample,
	})
}

// BroadcastAlert sends a newly triggered alert to clients on the alerts
// stream. Wire this as the alert engine's notifier.
func (h *Hub) BroadcastAlert(alert model.ActiveAlert) {
	h.broadcast(streamAlerts, map[string]any{
		"type":  "alert",
		"alert": alert,
	})
}

func (h *Hub) broadcast(stream string, payload map[string]any) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.clients) == 0 {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return
	}

	for c := range h.clients {
		if !c.subscribed(stream) {
			continue
		}
		select {
		case c.send <- data:
		default:
			// client too slow, skip
		}
	}
}

func (c *wsClient) subscribed(stream string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.subs) == 0 {
		return true // no filter = receive all
	}
	return c.subs[stream]
}

func (c *wsClient) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		}
	}
}

// HandleWS handles WebSocket upgrade and manages the connection.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // allow any origin for local tool
	})
	if err != nil {
		log.Printf("[ws] accept error: %v", err)
		return
	}

	client := &wsClient{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 64),
		subs: make(map[string]bool),
	}

	h.reg <- client

	ctx := r.Context()
	go client.pingLoop(ctx)
	go client.writePump(ctx)
	client.readPump(ctx)
}

func (c *wsClient) readPump(ctx context.Context) {
	defer func() {
		c.hub.unreg <- c
		c.conn.Close(websocket.StatusNormalClosure, "bye")
	}()

	for {
		readCtx, cancel := context.WithTimeout(ctx, readTimeout)
		_, data, err := c.conn.Read(readCtx)
		cancel()
		if err != nil {
			return
		}
		// Parse subscription messages
		var msg struct {
			Type    string   `json:"type"`
			Streams []string `json:"streams"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "subscribe":
			c.mu.Lock()
			for _, s := range msg.Streams {
				c.subs[s] = true
			}
			c.mu.Unlock()
		case "unsubscribe":
			c.mu.Lock()
			for _, s := range msg.Streams {
				delete(c.subs, s)
			}
			c.mu.Unlock()
		}
	}
}

func (c *wsClient) writePump(ctx context.Context) {
	for data := range c.send {
		if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
			return
		}
	}
}
