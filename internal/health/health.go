// Package health provides the liveness and readiness endpoints.
//
// /healthz answers 200 while the process is up and reports what the
// conversation is doing. /readyz answers 503 until the conversation loop and
// its collaborators are running. Readiness changes are also pushed to
// watchers, which the gRPC health service uses.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Probe reports the current conversation phase and session.
type Probe func() (phase, session string)

// Status is the JSON body of both endpoints.
type Status struct {
	Status  string `json:"status"`
	Phase   string `json:"phase,omitempty"`
	Session string `json:"session,omitempty"`
}

// Server tracks readiness and serves the health endpoints.
type Server struct {
	port   int
	probe  Probe
	ready  atomic.Bool
	server *http.Server

	mu       sync.Mutex
	watchers []func(ready bool)
}

// New creates a health server. A zero port means the endpoints are only
// mounted on another mux through Handler. probe may be nil.
func New(port int, probe Probe) *Server {
	return &Server{port: port, probe: probe}
}

// SetReady marks the service ready or not and notifies watchers when the
// value changes.
func (s *Server) SetReady(ready bool) {
	if s.ready.Swap(ready) == ready {
		return
	}
	slog.Info("readiness changed", "ready", ready)

	s.mu.Lock()
	watchers := append([]func(bool){}, s.watchers...)
	s.mu.Unlock()
	for _, fn := range watchers {
		fn(ready)
	}
}

// Ready reports the current readiness.
func (s *Server) Ready() bool {
	return s.ready.Load()
}

// Watch registers fn for readiness changes and calls it once with the
// current value.
func (s *Server) Watch(fn func(ready bool)) {
	s.mu.Lock()
	s.watchers = append(s.watchers, fn)
	s.mu.Unlock()
	fn(s.ready.Load())
}

func (s *Server) status(ok string) Status {
	st := Status{Status: ok}
	if s.probe != nil {
		st.Phase, st.Session = s.probe()
	}
	return st
}

// Handler returns a mux serving GET /healthz and GET /readyz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, s.status("ok"))
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			writeStatus(w, http.StatusServiceUnavailable, s.status("not_ready"))
			return
		}
		writeStatus(w, http.StatusOK, s.status("ok"))
	})

	return mux
}

func writeStatus(w http.ResponseWriter, code int, st Status) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(st)
}

// ListenAndServe starts the health check HTTP server.
// It blocks until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("health server listening", "port", s.port)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}
