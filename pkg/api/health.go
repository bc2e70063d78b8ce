package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cuemby/lvs-agent/pkg/metrics"
)

// HealthServer serves the agent's HTTP endpoints: liveness, readiness,
// Prometheus metrics and whatever else is mounted on it
type HealthServer struct {
	mux     *http.ServeMux
	server  *http.Server
	version string
}

// NewHealthServer creates a new HTTP server
func NewHealthServer(version string) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{
		mux:     mux,
		version: version,
	}

	mux.HandleFunc("/health", hs.healthHandler)
	mux.HandleFunc("/ready", hs.readyHandler)
	mux.Handle("/metrics", metrics.Handler())

	return hs
}

// Handle mounts an additional handler
func (hs *HealthServer) Handle(pattern string, handler http.Handler) {
	hs.mux.Handle(pattern, handler)
}

// Start listens on addr and serves until Shutdown
func (hs *HealthServer) Start(addr string) error {
	hs.server = &http.Server{
		Addr:         addr,
		Handler:      hs.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	metrics.UpdateComponent("api", true, "listening on "+addr)
	err := hs.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	metrics.UpdateComponent("api", false, err.Error())
	return err
}

// Shutdown stops the server gracefully
func (hs *HealthServer) Shutdown(ctx context.Context) error {
	if hs.server == nil {
		return nil
	}
	return hs.server.Shutdown(ctx)
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

// healthHandler is a liveness check: 200 while the process runs
func (hs *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   hs.version,
	})
}

// readyHandler reports ready once the store, the table tool and the API
// have all registered healthy
func (hs *HealthServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	readiness := metrics.GetReadiness()
	statusCode := http.StatusOK
	if readiness.Status != "ready" {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, readiness)
}

// GetHandler returns the HTTP handler for embedding in other servers
func (hs *HealthServer) GetHandler() http.Handler {
	return hs.mux
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
