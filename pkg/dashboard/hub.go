// Package dashboard serves the read-only web view of the engine: a JSON
// stats endpoint, Prometheus metrics, and a WebSocket stream of decisions
// and resolutions.
package dashboard

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Event is one broadcast message.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Hub fans events out to connected WebSocket clients. Slow clients are
// disconnected rather than allowed to stall the engine.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]chan []byte)}
}

// Broadcast sends an event to every connected client without blocking.
func (h *Hub) Broadcast(evt Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		log.Error().Err(err).Msg("marshal dashboard event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, send := range h.clients {
		select {
		case send <- data:
		default:
			close(send)
			delete(h.clients, conn)
			conn.Close()
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Read-only local dashboard; cross-origin reads are harmless.
	CheckOrigin: func(*http.Request) bool { return true },
}

// HandleWS upgrades the connection and streams events until the client
// disconnects.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	send := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[conn] = send
	count := len(h.clients)
	h.mu.Unlock()
	log.Info().Int("clients", count).Msg("dashboard client connected")

	go func() {
		defer conn.Close()
		for msg := range send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}()

	// Reads are discarded; the stream is one-way. Exiting the read loop
	// means the client went away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	if send, ok := h.clients[conn]; ok {
		close(send)
		delete(h.clients, conn)
	}
	count = len(h.clients)
	h.mu.Unlock()
	conn.Close()
	log.Info().Int("clients", count).Msg("dashboard client disconnected")
}
