package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	httpopts "github.com/kart-io/cyplan/pkg/options/server/http"
)

// HTTPServer serves a gin engine.
type HTTPServer struct {
	opts   *httpopts.Options
	engine *gin.Engine

	mu  sync.Mutex
	srv *http.Server
	ln  net.Listener
}

var _ Runnable = (*HTTPServer)(nil)

// NewHTTPServer creates an HTTPServer with an empty engine. Middleware and
// routes are added through Engine before Start.
func NewHTTPServer(opts *httpopts.Options) *HTTPServer {
	if opts == nil {
		opts = httpopts.NewOptions()
	}
	if opts.Mode != "" {
		gin.SetMode(opts.Mode)
	}
	return &HTTPServer{opts: opts, engine: gin.New()}
}

// Name implements Runnable.
func (s *HTTPServer) Name() string { return "http" }

// Engine returns the gin engine.
func (s *HTTPServer) Engine() *gin.Engine { return s.engine }

// Addr returns the bound address once started, else the configured one.
func (s *HTTPServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.opts.Addr
}

// Start listens on the configured address and serves in the background.
func (s *HTTPServer) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return fmt.Errorf("http server already started")
	}

	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.opts.Addr, err)
	}
	srv := &http.Server{
		Handler:      s.engine,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  s.opts.IdleTimeout,
	}
	s.srv, s.ln = srv, ln

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("HTTP server stopped unexpectedly", "error", err)
		}
	}()
	logger.Infow("HTTP server listening", "addr", ln.Addr().String())
	return nil
}

// Stop gracefully shuts the server down.
func (s *HTTPServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv, s.ln = nil, nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
