package realtime

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Hub tracks WebSocket clients watching the order settlement feed and
// broadcasts settlement events to them. A client that cannot be written to
// within the deadline is dropped.
type Hub struct {
	mu           sync.Mutex
	connections  map[*websocket.Conn]struct{}
	writeTimeout time.Duration
}

// NewHub constructs a Hub with the given per-write deadline. A zero timeout
// disables deadlines.
func NewHub(writeTimeout time.Duration) *Hub {
	return &Hub{
		connections:  make(map[*websocket.Conn]struct{}),
		writeTimeout: writeTimeout,
	}
}

// Register adds a client connection to the feed.
func (h *Hub) Register(conn *websocket.Conn) {
	h.mu.Lock()
	h.connections[conn] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes and closes a client connection.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.connections[conn]; ok {
		delete(h.connections, conn)
		conn.Close()
	}
	h.mu.Unlock()
}

// Broadcast writes the message to every connected client, dropping clients
// whose writes fail.
func (h *Hub) Broadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.connections {
		if h.writeTimeout > 0 {
			_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
		}
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			conn.Close()
			delete(h.connections, conn)
		}
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.connections)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.connections {
		conn.Close()
		delete(h.connections, conn)
	}
}
