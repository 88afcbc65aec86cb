package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kmathis/glucopanel/internal/application"
	"github.com/kmathis/glucopanel/internal/domain/model"
)

// Compile-time interface satisfaction check.
var _ application.LiveBroadcaster = (*Hub)(nil)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// readingMessage is the wire format pushed to dashboard clients. It mirrors
// the REST reading shape so the client JS handles both identically.
type readingMessage struct {
	Value      int    `json:"value"`
	Trend      string `json:"trend"`
	TrendArrow string `json:"trend_arrow"`
	Zone       string `json:"zone"`
	ZoneLabel  string `json:"zone_label"`
	Timestamp  string `json:"timestamp"`
}

// Hub fans new readings out to connected dashboard websockets. A slow or
// dead client is dropped rather than allowed to stall the broadcast.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan model.Reading
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	logger     *slog.Logger
}

// NewHub creates a Hub. Run must be started before clients connect.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan model.Reading, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run processes registrations and broadcasts until the context is canceled,
// then closes all client connections. Run is the only goroutine touching the
// client set; done unblocks handlers that race the shutdown.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for conn := range h.clients {
				_ = conn.Close()
			}
			return

		case conn := <-h.register:
			h.clients[conn] = true
			h.logger.Debug("websocket client connected", "clients", len(h.clients))

		case conn := <-h.unregister:
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				_ = conn.Close()
			}
			h.logger.Debug("websocket client disconnected", "clients", len(h.clients))

		case reading := <-h.broadcast:
			h.send(reading)
		}
	}
}

// Broadcast queues a reading for all connected clients. When the queue is
// full the reading is dropped; clients catch up on the next poll.
func (h *Hub) Broadcast(r model.Reading) {
	select {
	case h.broadcast <- r:
	default:
		h.logger.Warn("websocket broadcast queue full, dropping reading")
	}
}

func (h *Hub) send(r model.Reading) {
	zone := model.Categorize(r.Value)
	data, err := json.Marshal(readingMessage{
		Value:      r.Value,
		Trend:      string(r.Trend),
		TrendArrow: r.Trend.Arrow(),
		Zone:       string(zone),
		ZoneLabel:  zone.Label(),
		Timestamp:  r.Timestamp.UTC().Format(time.RFC3339),
	})
	if err != nil {
		h.logger.Error("failed to encode reading for broadcast", "error", err)
		return
	}

	for conn := range h.clients {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Debug("dropping websocket client", "error", err)
			delete(h.clients, conn)
			_ = conn.Close()
		}
	}
}

// ServeWS upgrades the request and registers the connection. The read loop
// only watches for the client going away. Connections arriving after the hub
// stopped are closed instead of blocking on a register nobody serves.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	select {
	case h.register <- conn:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-h.done:
				_ = conn.Close()
			}
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
