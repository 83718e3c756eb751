package gateway

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"sync"
	"time"

	"tgnotify/pkg/logx"
)

type ServerConfig struct {
	Listen string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// PprofAddr enables a separate pprof listener when non-empty.
	// Bind it to loopback.
	PprofAddr string
}

// Server owns the public listener and the optional pprof listener.
type Server struct {
	log     logx.Logger
	handler *Handler

	mu    sync.Mutex
	srv   *http.Server
	ln    net.Listener
	addr  string
	debug *http.Server
}

func NewServer(h *Handler, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{log: log, handler: h}
}

// Start binds the listener and begins serving. It returns once the listener
// is accepting; serving continues in the background.
func (s *Server) Start(cfg ServerConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return errors.New("server already started")
	}

	srv := &http.Server{
		Addr:         cfg.Listen,
		Handler:      s.handler.Mux(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return err
	}
	s.srv = srv
	s.ln = ln
	s.addr = ln.Addr().String()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("server error", logx.String("addr", s.addr), logx.Err(err))
		}
	}()
	s.log.Info("listening", logx.String("addr", s.addr))

	if cfg.PprofAddr != "" {
		s.startDebugLocked(cfg.PprofAddr)
	}
	return nil
}

func (s *Server) startDebugLocked(addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	dbg := &http.Server{Addr: addr, Handler: mux}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.log.Warn("pprof listen failed", logx.String("addr", addr), logx.Err(err))
		return
	}
	s.debug = dbg
	go func() {
		if err := dbg.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("pprof server error", logx.String("addr", addr), logx.Err(err))
		}
	}()
	s.log.Info("pprof enabled", logx.String("addr", ln.Addr().String()))
}

// Addr reports the actual public listen address if running.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Stop gracefully shuts both listeners down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	dbg := s.debug
	addr := s.addr
	s.srv = nil
	s.debug = nil
	s.addr = ""
	s.mu.Unlock()

	if dbg != nil {
		_ = dbg.Shutdown(ctx)
	}
	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info("stopped", logx.String("addr", addr))
	return nil
}
