package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	rtsup "reminderd/internal/runtime/supervisor"
	logx "reminderd/pkg/logx"
)

type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Server runs the API listener under its own supervisor.
type Server struct {
	mu      sync.Mutex
	cfg     ServerConfig
	handler http.Handler
	log     logx.Logger

	ln  net.Listener
	srv *http.Server
	sup *rtsup.Supervisor
}

func NewServer(cfg ServerConfig, handler http.Handler, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{cfg: cfg, handler: handler, log: log.With(logx.String("comp", "http"))}
}

// Start binds the listener and serves in the background. It is idempotent.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return nil
	}
	addr := strings.TrimSpace(s.cfg.Addr)
	if addr == "" {
		addr = ":5000"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen %s: %w", addr, err)
	}
	// The websocket upgrader clears these deadlines on hijacked connections.
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
	}
	s.ln, s.srv = ln, srv
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log), rtsup.WithCancelOnError(false))
	s.sup.Go("http.serve", func(context.Context) error {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	s.log.Info("http started", logx.String("addr", ln.Addr().String()))
	return nil
}

// Addr is the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Stop shuts down gracefully within ctx, then closes remaining connections.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, sup := s.srv, s.sup
	s.srv, s.sup, s.ln = nil, nil, nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	start := time.Now()
	err := srv.Shutdown(ctx)
	if err != nil {
		_ = srv.Close()
	}
	sup.Cancel()
	_ = sup.Wait(context.Background())
	s.log.Info("http stopped", logx.Duration("took", time.Since(start)), logx.Err(err))
	return err
}

// Err reports a serve failure, if any.
func (s *Server) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup == nil {
		return nil
	}
	return s.sup.Err()
}
