package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Event is one message on the websocket stream.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub fans loop events out to connected websocket clients. Slow clients are
// dropped rather than allowed to block the broadcast.
type Hub struct {
	clients    map[chan Event]bool
	broadcast  chan Event
	register   chan chan Event
	unregister chan chan Event
	logger     *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[chan Event]bool),
		broadcast:  make(chan Event, 16),
		register:   make(chan chan Event),
		unregister: make(chan chan Event),
		logger:     logger,
	}
}

// Run dispatches until ctx is canceled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				close(client)
				delete(h.clients, client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client)
			}

		case event := <-h.broadcast:
			for client := range h.clients {
				select {
				case client <- event:
				default:
					close(client)
					delete(h.clients, client)
				}
			}
		}
	}
}

// Broadcast queues an event for all clients. Drops the event when the hub
// is saturated; the stream is advisory.
func (h *Hub) Broadcast(event Event) {
	select {
	case h.broadcast <- event:
	default:
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API binds to localhost; dashboards connect from file:// or dev
	// servers.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *Server) wsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Warn("websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		client := make(chan Event, 8)
		s.hub.register <- client
		defer func() {
			select {
			case s.hub.unregister <- client:
			default:
			}
		}()

		// Discard inbound frames; the stream is one-way. Read errors mean
		// the client is gone.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-done:
				return
			case event, ok := <-client:
				if !ok {
					return
				}
				conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(event); err != nil {
					return
				}
			}
		}
	}
}
