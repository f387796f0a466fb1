package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/ayusman/drishti/internal/geometry"
	"github.com/ayusman/drishti/internal/logging"
)

const (
	clientBuffer = 8
	writeWait    = 2 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// OverlayMessage is the JSON payload sent for every rendered overlay.
type OverlayMessage struct {
	Type      string           `json:"type"`
	Overlay   geometry.Overlay `json:"overlay"`
	Timestamp int64            `json:"timestamp"`
}

type overlayClient struct {
	conn *websocket.Conn
	send chan []byte
}

// OverlayHub fans rendered overlays out to websocket clients. Slow clients
// drop messages rather than stall the pipeline.
type OverlayHub struct {
	mu      sync.RWMutex
	clients map[*overlayClient]struct{}
	logger  *log.Logger
}

// NewOverlayHub creates an empty hub.
func NewOverlayHub() *OverlayHub {
	return &OverlayHub{
		clients: make(map[*overlayClient]struct{}),
		logger:  logging.WithPrefix("server"),
	}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *OverlayHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade", "err", err)
		return
	}

	c := &overlayClient{conn: conn, send: make(chan []byte, clientBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go c.writeLoop()

	// Keep connection alive by reading until the peer goes away
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.clients, c)
	close(c.send)
	h.mu.Unlock()
	conn.Close()
}

func (c *overlayClient) writeLoop() {
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.conn.Close()
			for range c.send {
			}
			return
		}
	}
}

// Publish sends ov to every connected client.
func (h *OverlayHub) Publish(ov geometry.Overlay) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.clients) == 0 {
		return
	}

	msg, err := json.Marshal(OverlayMessage{
		Type:      "overlay",
		Overlay:   ov,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		h.logger.Error("marshal overlay", "err", err)
		return
	}

	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *OverlayHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
