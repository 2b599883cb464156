// Package web serves the status API used by watch mode.
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"calsync/internal/config"
	"calsync/internal/log"
	"calsync/internal/syncer"
)

// Board keeps the state of the most recent run. It is written by the
// scheduler and read by HTTP handlers.
type Board struct {
	mu      sync.RWMutex
	running bool
	runs    int
	last    *syncer.Status
}

// Begin marks a run as in progress.
func (b *Board) Begin() {
	b.mu.Lock()
	b.running = true
	b.mu.Unlock()
}

// Finish records the result of a run.
func (b *Board) Finish(st syncer.Status) {
	b.mu.Lock()
	b.running = false
	b.runs++
	b.last = &st
	b.mu.Unlock()
}

// Snapshot is the JSON shape of /api/status.
type Snapshot struct {
	Running bool           `json:"running"`
	Runs    int            `json:"runs"`
	Last    *syncer.Status `json:"last,omitempty"`
}

// Snapshot returns a copy of the current state.
func (b *Board) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := Snapshot{Running: b.running, Runs: b.runs}
	if b.last != nil {
		last := *b.last
		s.Last = &last
	}
	return s
}

// Server exposes /health, /api/status and /api/run.
type Server struct {
	cfg   config.WatchConfig
	board *Board
	// trigger starts a run out of schedule. It reports false when a run is
	// already in progress.
	trigger func() bool
	log     *log.Logger
	router  *chi.Mux
}

// NewServer constructs a Server. trigger may be nil, which disables /api/run.
func NewServer(cfg config.WatchConfig, board *Board, trigger func() bool, l *log.Logger) *Server {
	if l == nil {
		l = log.Nop()
	}
	s := &Server{cfg: cfg, board: board, trigger: trigger, log: l, router: chi.NewRouter()}
	s.registerRoutes()
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) registerRoutes() {
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.handleHealth)
	s.router.Group(func(r chi.Router) {
		if s.basicAuthEnabled() {
			r.Use(s.basicAuth)
		}
		r.Get("/api/status", s.handleStatus)
		r.Post("/api/run", s.handleRun)
	})
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured. Blank
// credentials disable it.
func (s *Server) basicAuthEnabled() bool {
	ba := s.cfg.BasicAuth
	return ba != nil && ba.Username != "" && ba.Password != ""
}

func (s *Server) basicAuth(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="calsync", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.board.Snapshot())
}

func (s *Server) handleRun(w http.ResponseWriter, _ *http.Request) {
	if s.trigger == nil {
		s.writeError(w, http.StatusNotImplemented, "manual runs are disabled")
		return
	}
	if !s.trigger() {
		s.writeError(w, http.StatusConflict, "a run is already in progress")
		return
	}
	s.log.Info("manual run requested")
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("failed to write JSON response", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	s.writeJSON(w, status, errResp{Error: msg})
}

// Serve listens on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen, "basic_auth", s.basicAuthEnabled())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
