// Package api serves the supervisor's admin endpoints: status, manual
// rebuilds, captured child output and metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/modelfoxdotdev/sunfish/internal/cycle"
	"github.com/modelfoxdotdev/sunfish/internal/logbuf"
)

// DefaultLogLines is how many lines /v1/logs returns without ?n=.
const DefaultLogLines = 100

// StatusSource reports the current cycle.
type StatusSource interface {
	Status() cycle.Status
}

// Notifier accepts a raw change signal.
type Notifier interface {
	Notify()
}

// Server is the admin API.
type Server struct {
	status   StatusSource
	rebuild  Notifier
	output   *logbuf.Ring
	router   *mux.Router
	server   *http.Server
	listener net.Listener
	logger   *slog.Logger
}

// NewServer wires the admin routes. output and metrics may be nil.
func NewServer(status StatusSource, rebuild Notifier, output *logbuf.Ring, metrics http.Handler) *Server {
	s := &Server{
		status:  status,
		rebuild: rebuild,
		output:  output,
		router:  mux.NewRouter(),
		logger:  slog.With("component", "api"),
	}

	// Full paths on the root router: a method mismatch on a subrouter
	// route falls through to 404 instead of 405.
	s.router.HandleFunc("/v1/status", s.getStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/rebuild", s.postRebuild).Methods(http.MethodPost)
	s.router.HandleFunc("/v1/logs", s.getLogs).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/health", s.health).Methods(http.MethodGet)
	if metrics != nil {
		s.router.Handle("/metrics", metrics).Methods(http.MethodGet)
	}

	s.server = &http.Server{Handler: s.router}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Bind opens the TCP listener.
func (s *Server) Bind(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or nil before Bind.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve runs until Shutdown.
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("api not bound")
	}
	s.logger.Info("API listening", "addr", s.listener.Addr().String())
	if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status.Status())
}

func (s *Server) postRebuild(w http.ResponseWriter, r *http.Request) {
	s.rebuild.Notify()
	s.logger.Info("rebuild requested", "remote", r.RemoteAddr)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) getLogs(w http.ResponseWriter, r *http.Request) {
	n := DefaultLogLines
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "n must be a non-negative integer"})
			return
		}
		n = parsed
	}

	lines := []string{}
	if s.output != nil {
		lines = s.output.Last(n)
	}
	writeJSON(w, http.StatusOK, map[string][]string{"lines": lines})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
