// Package server exposes the index over HTTP: health and status checks,
// search, and direct document submission.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Aman-CERP/docindex/internal/search"
	"github.com/Aman-CERP/docindex/internal/store"
	"github.com/Aman-CERP/docindex/internal/telemetry"
)

// Store is the part of the store the handlers use.
type Store interface {
	CountActive(ctx context.Context) (int, error)
	GetStatus(ctx context.Context) (store.Status, error)
	UpsertDocument(ctx context.Context, in store.UpsertInput) (store.UpsertResult, error)
}

// Searcher runs searches. *search.Engine satisfies it.
type Searcher interface {
	Search(ctx context.Context, req search.Request) (search.Response, error)
}

// PollInfo reports poller progress for /status. Optional.
type PollInfo interface {
	LastPoll() time.Time
	Cycles() int
}

var (
	_ Store    = (*store.Store)(nil)
	_ Searcher = (*search.Engine)(nil)
)

// Deps are the components the server is built from.
type Deps struct {
	Store  Store
	Engine Searcher
	Poller PollInfo
	Logger *slog.Logger

	// Metrics records searches for /status. Optional.
	Metrics *telemetry.QueryMetrics
}

// Config is the listen address.
type Config struct {
	Host string
	Port int

	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server is the HTTP API.
type Server struct {
	deps    Deps
	cfg     Config
	logger  *slog.Logger
	started time.Time
	handler http.Handler

	mu   sync.Mutex
	http *http.Server
	ln   net.Listener
	errc chan error
}

// New builds a server. Nothing is bound until Start.
func New(deps Deps, cfg Config) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 10 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	s := &Server{
		deps:    deps,
		cfg:     cfg,
		logger:  deps.Logger,
		started: time.Now(),
	}
	s.handler = s.routes()
	return s
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.http != nil {
		return errors.New("server already started")
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s.ln = ln
	s.http = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	s.errc = make(chan error, 1)
	go func(srv *http.Server, errc chan<- error) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped", slog.String("error", err.Error()))
			errc <- err
		}
		close(errc)
	}(s.http, s.errc)

	s.logger.Info("http server listening", slog.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Err is closed when the server stops and carries the serve error, if any.
func (s *Server) Err() <-chan error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errc
}

// Stop shuts down gracefully, waiting for in-flight requests until ctx or
// the shutdown timeout expires.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
