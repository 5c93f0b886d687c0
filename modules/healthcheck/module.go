// Package healthcheck provides a forever job serving an HTTP health
// endpoint for as long as the scheduler runs.
package healthcheck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vk/jobgrid/internal/ctxlog"
	"github.com/vk/jobgrid/internal/grid"
	"github.com/vk/jobgrid/internal/registry"
)

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the healthcheck kind.
type Input struct {
	Address string `hcl:"address,optional"`
	Path    string `hcl:"path,optional" validate:"omitempty,startswith=/"`
}

// Register registers the kind with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterKind("healthcheck", build)
}

func build(_ context.Context, spec *grid.JobSpec) (*registry.Runnable, error) {
	var input Input
	if err := spec.Decode(&input); err != nil {
		return nil, err
	}
	if input.Address == "" {
		input.Address = "127.0.0.1:8080"
	}
	if input.Path == "" {
		input.Path = "/health"
	}

	srv := newServer(input)
	return &registry.Runnable{
		Action:   srv.run,
		Shutdown: srv.shutdown,
		Forever:  true,
	}, nil
}

// server owns one HTTP server per run.
type server struct {
	input Input

	mu    sync.Mutex
	srv   *http.Server
	bound net.Addr
	ready chan struct{}
}

func newServer(input Input) *server {
	return &server{input: input, ready: make(chan struct{})}
}

// run serves until ctx is done, then closes the server gracefully.
func (s *server) run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	ln, err := net.Listen("tcp", s.input.Address)
	if err != nil {
		return fmt.Errorf("health check server cannot listen on %s: %w", s.input.Address, err)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET(s.input.Path, func(c *gin.Context) {
		logger.Debug("Health check endpoint hit.", "remote_addr", c.ClientIP(), "path", c.Request.URL.Path)
		c.String(http.StatusOK, "OK\n")
	})
	srv := &http.Server{Handler: r, ReadHeaderTimeout: 5 * time.Second}

	s.mu.Lock()
	s.srv = srv
	s.bound = ln.Addr()
	close(s.ready)
	s.ready = make(chan struct{})
	s.mu.Unlock()

	served := make(chan error, 1)
	go func() {
		logger.Info("🩺 Health check server starting", "address", fmt.Sprintf("http://%s%s", ln.Addr(), s.input.Path))
		served <- srv.Serve(ln)
	}()

	select {
	case err := <-served:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health check server failed unexpectedly: %w", err)
		}
		return nil
	case <-ctx.Done():
		return s.close(context.WithoutCancel(ctx), logger)
	}
}

// shutdown closes the server if run left it open.
func (s *server) shutdown(ctx context.Context) error {
	return s.close(ctx, ctxlog.FromContext(ctx))
}

func (s *server) close(ctx context.Context, logger *slog.Logger) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	logger.Info("🩺 Shutting down health check server...")
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Health check server shutdown failed", "error", err)
		return err
	}
	return nil
}

// addr waits until the server is listening and returns its address.
func (s *server) addr(ctx context.Context) (net.Addr, error) {
	s.mu.Lock()
	if s.srv != nil {
		defer s.mu.Unlock()
		return s.bound, nil
	}
	ready := s.ready
	s.mu.Unlock()

	select {
	case <-ready:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.bound, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
