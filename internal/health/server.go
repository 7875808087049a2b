// Package health exposes liveness and prometheus metrics over HTTP
// while a run is in flight.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Snapshot is what /health reports.
type Snapshot struct {
	State string `json:"state"` // "idle", "running", "done"
}

// Server provides HTTP endpoints for health monitoring.
type Server struct {
	status func() Snapshot
	server *http.Server
}

// NewServer creates a health server on the given port. status is
// called per request and must be safe for concurrent use.
func NewServer(status func() Snapshot, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		status: status,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(s.status())
}
