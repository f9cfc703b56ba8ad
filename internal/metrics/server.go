package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// NewRouter builds the chi router exposing /metrics and /healthz. Each mount
// may register further routes on it.
func NewRouter(mounts ...func(chi.Router)) http.Handler {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Handle("/metrics", Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	for _, mount := range mounts {
		mount(r)
	}
	return r
}

// Server serves the metrics router for the lifetime of a stage run.
type Server struct {
	srv    *http.Server
	ln     net.Listener
	logger *zap.Logger
	done   chan struct{}
}

// Start listens on addr and serves in the background. An empty addr
// returns a nil server, whose Shutdown is a no-op.
func Start(addr string, logger *zap.Logger, mounts ...func(chi.Router)) (*Server, error) {
	if addr == "" {
		return nil, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	s := &Server{
		srv: &http.Server{
			Handler:           NewRouter(mounts...),
			ReadHeaderTimeout: 5 * time.Second,
		},
		ln:     ln,
		logger: logger,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("Metrics server listening", zap.String("addr", ln.Addr().String()))
	return s, nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	err := s.srv.Shutdown(ctx)
	<-s.done
	if err != nil {
		return fmt.Errorf("shutdown metrics server: %w", err)
	}
	return nil
}
