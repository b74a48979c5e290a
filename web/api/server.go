// Package api exposes the orchestration core over HTTP: task queues,
// schedule configuration, agent runs, learning estimates, and autonomy
// policy, plus SSE and websocket push channels.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/opsdeck/cos/internal/autonomy"
	"github.com/opsdeck/cos/internal/executor"
	"github.com/opsdeck/cos/internal/gate"
	"github.com/opsdeck/cos/internal/learning"
	"github.com/opsdeck/cos/internal/schedule"
	"github.com/opsdeck/cos/internal/taskstore"
)

// Server is the HTTP API server
type Server struct {
	store    *taskstore.Store
	registry *schedule.Registry
	gate     *gate.Gate
	agents   *executor.Manager
	learning *learning.Engine
	policy   *autonomy.Controller
	addr     string
	mux      *http.ServeMux
	sseHub   *SSEHub
}

// NewServer creates a new API server
func NewServer(store *taskstore.Store, registry *schedule.Registry, g *gate.Gate,
	agents *executor.Manager, eng *learning.Engine, policy *autonomy.Controller, addr string) *Server {
	s := &Server{
		store:    store,
		registry: registry,
		gate:     g,
		agents:   agents,
		learning: eng,
		policy:   policy,
		addr:     addr,
		mux:      http.NewServeMux(),
		sseHub:   NewSSEHub(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/status", s.statusHandler())
	s.mux.HandleFunc("/api/tasks", s.tasksHandler())
	s.mux.HandleFunc("/api/tasks/reorder", s.reorderHandler())
	s.mux.HandleFunc("/api/tasks/", s.taskHandler())
	s.mux.HandleFunc("/api/agents", s.listAgentsHandler())
	s.mux.HandleFunc("/api/agents/completed", s.clearAgentsHandler())
	s.mux.HandleFunc("/api/agents/", s.agentHandler())
	s.mux.HandleFunc("/api/schedule", s.listScheduleHandler())
	s.mux.HandleFunc("/api/schedule/", s.scheduleHandler())
	s.mux.HandleFunc("/api/estimate", s.estimateHandler())
	s.mux.HandleFunc("/api/learning/stats", s.statsHandler())
	s.mux.HandleFunc("/api/autonomy", s.autonomyHandler())
	s.mux.HandleFunc("/api/events", s.sseHandler())
}

// Run serves until ctx is cancelled, then shuts down gracefully. The SSE
// hub stops with the same context.
func (s *Server) Run(ctx context.Context) error {
	go s.sseHub.Run(ctx)

	srv := &http.Server{Addr: s.addr, Handler: s.mux}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Handler returns the route mux, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Broadcast sends an event to all SSE clients
func (s *Server) Broadcast(event SSEEvent) {
	s.sseHub.Broadcast(event)
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeStoreError surfaces the underlying error message verbatim with the
// status code its kind deserves.
func writeStoreError(w http.ResponseWriter, err error) {
	var verr *taskstore.ValidationError
	switch {
	case errors.Is(err, taskstore.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
