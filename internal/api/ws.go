package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/xtrntr/marketplace/internal/models"
)

const writeWait = 5 * time.Second

// Message is a frame pushed to websocket subscribers.
type Message struct {
	Type  string                `json:"type"`
	Event *models.Event         `json:"event,omitempty"`
	Stats *models.PlatformStats `json:"stats,omitempty"`
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub fans committed ledger events and periodic stats snapshots out to
// websocket subscribers. It implements marketplace.Emitter.
type Hub struct {
	stats    func() models.PlatformStats
	upgrader websocket.Upgrader
	logger   *slog.Logger
	queue    chan Message

	clientsMu sync.RWMutex
	clients   map[*wsClient]bool
}

// NewHub creates a hub. allowedOrigins limits websocket origins; "*" or an
// empty list accepts any origin.
func NewHub(stats func() models.PlatformStats, allowedOrigins []string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		stats:   stats,
		logger:  logger,
		queue:   make(chan Message, 256),
		clients: make(map[*wsClient]bool),
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: originChecker(allowedOrigins)}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// Emit queues ev for broadcast. It never blocks the caller; events are
// dropped when subscribers cannot keep up.
func (h *Hub) Emit(ev models.Event) {
	select {
	case h.queue <- Message{Type: "event", Event: &ev}:
	default:
		h.logger.Warn("websocket queue full, dropping event",
			slog.String("kind", string(ev.Kind)), slog.Uint64("seq", ev.Seq))
	}
}

// Run delivers queued events and broadcasts a stats snapshot every interval
// until ctx is cancelled.
func (h *Hub) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case msg := <-h.queue:
			h.broadcast(msg)
		case <-ticker.C:
			h.broadcast(h.snapshot())
		}
	}
}

func (h *Hub) snapshot() Message {
	stats := h.stats()
	return Message{Type: "stats", Stats: &stats}
}

func (h *Hub) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal websocket message", slog.Any("error", err))
		return
	}

	h.clientsMu.RLock()
	var failed []*wsClient
	for client := range h.clients {
		if err := client.send(data); err != nil {
			h.logger.Debug("failed to send websocket message", slog.Any("error", err))
			failed = append(failed, client)
		}
	}
	h.clientsMu.RUnlock()

	for _, client := range failed {
		h.remove(client)
	}
}

func (h *Hub) remove(client *wsClient) {
	h.clientsMu.Lock()
	if h.clients[client] {
		delete(h.clients, client)
		client.conn.Close()
	}
	h.clientsMu.Unlock()
}

func (h *Hub) closeAll() {
	h.clientsMu.Lock()
	for client := range h.clients {
		client.conn.Close()
		delete(h.clients, client)
	}
	h.clientsMu.Unlock()
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the connection and registers the subscriber. The first
// frame is a stats snapshot.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade connection", slog.Any("error", err))
		return
	}

	data, err := json.Marshal(h.snapshot())
	if err != nil {
		conn.Close()
		return
	}

	// Holding the client lock across registration keeps broadcasts behind
	// the initial snapshot.
	client := &wsClient{conn: conn}
	client.mu.Lock()
	h.clientsMu.Lock()
	h.clients[client] = true
	h.clientsMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	err = conn.WriteMessage(websocket.TextMessage, data)
	client.mu.Unlock()
	if err != nil {
		h.remove(client)
		return
	}

	// Keep connection alive and handle disconnection
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.remove(client)
			return
		}
	}
}
