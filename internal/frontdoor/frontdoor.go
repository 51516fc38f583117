// Package frontdoor is the HTTP listener developers point their browser at.
// Requests that arrive while a build is in progress are held until that
// build's child is ready, then forwarded.
package frontdoor

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/modelfoxdotdev/sunfish/internal/gate"
	"github.com/modelfoxdotdev/sunfish/internal/metrics"
)

// Admitter hands out the gate a request must wait on, or nil.
type Admitter interface {
	Admit() *gate.Gate
}

// Handler holds each request on the gate current at its arrival, then
// passes it to next. A client that disconnects while held is dropped.
func Handler(a Admitter, next http.Handler, m *metrics.Metrics) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g := a.Admit()
		if g != nil {
			start := time.Now()
			if err := g.Wait(r.Context()); err != nil {
				return
			}
			if m != nil {
				m.GateWait.Observe(time.Since(start).Seconds())
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Server serves a handler on the front door address.
type Server struct {
	server   *http.Server
	listener net.Listener
	logger   *slog.Logger
}

// New creates a server for h. Nothing is bound until Listen.
func New(h http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		server: &http.Server{
			Handler:           h,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger.With("component", "frontdoor"),
	}
}

// Bind opens the listener so callers can learn the address before serving.
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

// Serve accepts connections on the bound listener until Shutdown.
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("front door not bound")
	}
	s.logger.Info("serving", "addr", s.listener.Addr().String())
	if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
// Requests still held on a gate are abandoned when ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		return s.server.Close()
	}
	return err
}
