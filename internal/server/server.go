package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/mgpai22/chitra/internal/logging"
	"github.com/mgpai22/chitra/internal/session"
)

// builds a session for a new id
type SessionFactory func(id string) *session.Session

type entry struct {
	session *session.Session

	// guarded by Server.mu
	uploadDir string
	closed    bool
}

// Server exposes sessions over REST and pushes snapshots over WebSocket.
type Server struct {
	factory  SessionFactory
	catalog  session.Catalog
	logger   *logging.Logger
	upgrader websocket.Upgrader
	router   *mux.Router

	uploadRoot string
	maxUpload  int64

	mu       sync.Mutex
	sessions map[string]*entry
}

type Option func(*Server)

func WithLogger(l *logging.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithUploadRoot sets where uploaded media is stored; defaults to the
// system temp dir.
func WithUploadRoot(dir string) Option {
	return func(s *Server) { s.uploadRoot = dir }
}

func WithMaxUpload(n int64) Option {
	return func(s *Server) { s.maxUpload = n }
}

func New(factory SessionFactory, catalog session.Catalog, opts ...Option) *Server {
	s := &Server{
		factory:   factory,
		catalog:   catalog,
		logger:    logging.Nop(),
		maxUpload: 2 << 30,
		sessions:  make(map[string]*entry),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/presets", s.handleListPresets).Methods(http.MethodGet)
	api.HandleFunc("/sessions", s.handleCreateSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/input", s.handleSelectInput).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/audio", s.handleSetAudio).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/audio", s.handleClearAudio).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/process", s.handleProcess).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/images/{index:[0-9]+}", s.handleOverrideImage).Methods(http.MethodPut)
	api.HandleFunc("/sessions/{id}/playback", s.handlePlayback).Methods(http.MethodPost)

	router.HandleFunc("/ws/{id}", s.handleWebSocket)
	return router
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// and closes every session.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("Server listening", "addr", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		s.Close()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	return err
}

// Close ends every session.
func (s *Server) Close() {
	s.mu.Lock()
	entries := s.sessions
	s.sessions = make(map[string]*entry)
	s.mu.Unlock()

	for _, e := range entries {
		s.closeEntry(e)
	}
}

func (s *Server) lookup(id string) (*entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	return e, ok
}

// closeEntry ends the session and removes its uploads; later uploads to
// the entry fail.
func (s *Server) closeEntry(e *entry) {
	s.mu.Lock()
	e.closed = true
	dir := e.uploadDir
	s.mu.Unlock()

	e.session.Close()
	if dir != "" {
		_ = os.RemoveAll(dir)
	}
}
