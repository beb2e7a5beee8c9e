// Package api exposes task state and run history over HTTP, plus a
// websocket stream of loop events for dashboards.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/sahaidachny/saha/internal/history"
	"github.com/sahaidachny/saha/internal/state"
)

// Store is the slice of the state manager the server reads.
type Store interface {
	ListTasks() ([]string, error)
	Load(taskID string) (*state.ExecutionState, error)
}

// History reads recorded runner invocations.
type History interface {
	ForTask(taskID string) ([]*history.Invocation, error)
}

// Server serves the status API. history may be nil when run recording is
// disabled.
type Server struct {
	states  Store
	history History
	addr    string
	mux     *http.ServeMux
	hub     *Hub
	logger  *slog.Logger
}

// NewServer builds a server over the given stores. history may be nil.
func NewServer(states Store, history History, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		states:  states,
		history: history,
		addr:    addr,
		mux:     http.NewServeMux(),
		hub:     NewHub(logger),
		logger:  logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/tasks", s.listTasksHandler())
	s.mux.HandleFunc("/api/tasks/", s.getTaskHandler())
	s.mux.HandleFunc("/api/history/", s.historyHandler())
	s.mux.HandleFunc("/ws", s.wsHandler())
}

// Hub returns the event hub, for wiring a broadcast hook.
func (s *Server) Hub() *Hub { return s.hub }

// Start serves until ctx is canceled, then drains connections.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)

	srv := &http.Server{Addr: s.addr, Handler: s.mux}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
