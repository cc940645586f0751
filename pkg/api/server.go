// Package api provides the HTTP monitoring server for the broker: health,
// stats, queue listing, and a WebSocket live event feed.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/nuulab/jobq/pkg/metrics"
	"github.com/nuulab/jobq/pkg/queue"
)

// Server is the monitoring API server. It reads engine snapshots and
// broker metrics; it never mutates broker state.
type Server struct {
	state      *queue.State
	metrics    *metrics.Metrics
	hub        *Hub
	httpServer *http.Server
}

// Config holds server configuration.
type Config struct {
	State   *queue.State
	Metrics *metrics.Metrics
}

// NewServer creates a new monitoring server.
func NewServer(cfg Config) *Server {
	return &Server{
		state:   cfg.State,
		metrics: cfg.Metrics,
		hub:     NewHub(),
	}
}

// Hub returns the WebSocket hub, for wiring as an event sink.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start starts the HTTP server on the given port.
func (s *Server) Start(port int) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/queues", s.handleQueues)
	mux.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go s.hub.Run()

	return s.httpServer.ListenAndServe()
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// handleStats reports engine depths and broker counters in one document.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap := s.state.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"queues":      snap.Queues,
		"active_jobs": snap.Active,
		"waiters":     snap.Waiters,
		"next_id":     snap.NextID,
		"metrics":     s.metrics.Snapshot(),
		"ws_clients":  s.hub.ConnectionCount(),
	})
}

// QueueInfo describes one named queue.
type QueueInfo struct {
	Name  string `json:"name"`
	Depth int    `json:"depth"`
}

// handleQueues lists every queue the broker has ever seen, emptied ones
// included, sorted by name.
func (s *Server) handleQueues(w http.ResponseWriter, r *http.Request) {
	snap := s.state.Snapshot()

	infos := make([]QueueInfo, 0, len(snap.Queues))
	for name, depth := range snap.Queues {
		infos = append(infos, QueueInfo{Name: name, Depth: depth})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })

	writeJSON(w, http.StatusOK, infos)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
