// Package server exposes the session store over a small REST API.
// Handlers are thin: they parse parameters, call the query and
// search engines against one snapshot, and serialize the result.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/kmladek/agentsessions/internal/store"
)

const handlerTimeout = 30 * time.Second

// Server is the HTTP API server.
type Server struct {
	store   *store.Store
	mux     *http.ServeMux
	httpSrv *http.Server
}

// New creates a Server reading from st.
func New(st *store.Store) *Server {
	s := &Server{
		store: st,
		mux:   http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("GET /api/sessions",
		s.withTimeout(s.handleListSessions))
	s.mux.Handle("GET /api/sessions/{provider}/{id...}",
		s.withTimeout(s.handleGetSession))
	s.mux.Handle("GET /api/search",
		s.withTimeout(s.handleSearch))
	s.mux.Handle("GET /api/providers",
		s.withTimeout(s.handleListProviders))
	s.mux.Handle("GET /api/working-dirs",
		s.withTimeout(s.handleListWorkingDirs))
	s.mux.Handle("GET /api/health",
		s.withTimeout(s.handleHealth))
}

func (s *Server) withTimeout(h http.HandlerFunc) http.Handler {
	return http.TimeoutHandler(h, handlerTimeout, "request timed out")
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start begins serving on addr. Blocks until the listener fails or
// Shutdown is called.
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
