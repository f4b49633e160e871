// Package server is the Request Router (spec.md §4.1): the HTTP
// surface exposing the four Ollama endpoints plus a liveness probe and
// the static optional endpoints, built the way the teacher's own
// server.Server manages its listener lifecycle (atomic listener/server
// pointers, ready/done/started channels, graceful shutdown).
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"github.com/modelplex/ollamagw/internal/config"
	"github.com/modelplex/ollamagw/internal/upstream"
)

const (
	readTimeout  = 30 * time.Second
	writeTimeout = 0 // streaming responses can run far longer than any fixed write deadline
)

// Server is the gateway's HTTP listener.
type Server struct {
	cfg      *config.Config
	httpAddr string

	ready    chan struct{}
	started  chan struct{}
	listener atomic.Pointer[net.Listener]
	server   atomic.Pointer[http.Server]
	startMtx sync.Mutex

	handlers *Handlers
}

// New builds a Server listening on addr (host:port) that fulfills
// requests via client.
func New(cfg *config.Config, addr string, client upstream.Client) *Server {
	return &Server{
		cfg:      cfg,
		httpAddr: addr,
		ready:    make(chan struct{}),
		started:  make(chan struct{}),
		handlers: NewHandlers(client),
	}
}

// Start begins listening and serving in the background, returning a
// channel that receives the terminal error from http.Server.Serve
// (nil on graceful Stop).
func (s *Server) Start() <-chan error {
	done := make(chan error, 1)

	err := func() error {
		s.startMtx.Lock()
		defer s.startMtx.Unlock()

		if s.listener.Load() != nil {
			return errors.New("server is already running")
		}

		listener, err := net.Listen("tcp", s.httpAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", s.httpAddr, err)
		}
		slog.Info("gateway listening", "address", s.httpAddr)

		s.listener.Store(&listener)
		close(s.started)
		close(s.ready)
		return nil
	}()
	if err != nil {
		done <- err
		return done
	}

	router := mux.NewRouter()
	s.setupRoutes(router)

	srv := &http.Server{
		Handler:      CorrelationIDMiddleware(RequestLoggingMiddleware(router)),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	s.server.Store(srv)

	go func() {
		listenerPtr := s.listener.Load()
		if listenerPtr == nil {
			done <- errors.New("listener vanished before serving started")
			return
		}
		err := srv.Serve(*listenerPtr)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		done <- err
	}()

	return done
}

// Stop gracefully shuts the server down, waiting up to ctx's deadline
// for in-flight requests to finish.
func (s *Server) Stop(ctx context.Context) {
	select {
	case <-s.started:
	default:
		slog.Warn("server not started, nothing to stop")
		return
	}

	if srv := s.server.Load(); srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("error shutting down server", "error", err)
		}
	}
}

// Ready returns a channel closed once the server is accepting
// connections.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// WaitReady blocks until Ready is closed or timeout elapses.
func (s *Server) WaitReady(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for server to be ready")
	}
}

// Addr returns the actual network address the server is listening on,
// or nil if not yet started.
func (s *Server) Addr() net.Addr {
	listenerPtr := s.listener.Load()
	if listenerPtr == nil {
		return nil
	}
	return (*listenerPtr).Addr()
}

func (s *Server) setupRoutes(router *mux.Router) {
	router.HandleFunc("/api/tags", s.handlers.Tags).Methods(http.MethodGet)
	router.HandleFunc("/api/generate", s.handlers.Generate).Methods(http.MethodPost)
	router.HandleFunc("/api/chat", s.handlers.Chat).Methods(http.MethodPost)
	router.HandleFunc("/api/embeddings", s.handlers.Embed).Methods(http.MethodPost)
	router.HandleFunc("/api/embed", s.handlers.Embed).Methods(http.MethodPost)

	router.HandleFunc("/health", s.handlers.Health).Methods(http.MethodGet)

	router.HandleFunc("/api/version", s.handlers.Version).Methods(http.MethodGet)
	for _, name := range []string{"pull", "push", "delete", "show", "copy", "create", "ps"} {
		router.HandleFunc("/api/"+name, s.handlers.StaticSuccess).Methods(http.MethodPost, http.MethodGet)
	}
}
