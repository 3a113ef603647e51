package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// ListenServer is the lifecycle subset of [http.Server].
type ListenServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPService runs a [ListenServer] as a suture service.
type HTTPService struct {
	server          ListenServer
	shutdownTimeout time.Duration
}

func NewHTTPService(server ListenServer, shutdownTimeout time.Duration) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPService{server: server, shutdownTimeout: shutdownTimeout}
}

// Serve blocks until ctx ends, then shuts the server down gracefully.
func (h *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (h *HTTPService) String() string { return "http-server" }

// Loop is a background loop with a non-blocking start, such as [scheduler.Scheduler].
type Loop interface {
	Start(ctx context.Context) error
	Stop() error
}

// SchedulerService runs a [Loop] as a suture service.
type SchedulerService struct {
	loop Loop
}

func NewSchedulerService(loop Loop) *SchedulerService {
	return &SchedulerService{loop: loop}
}

// Serve starts the loop and stops it, waiting for running jobs, when ctx ends.
func (s *SchedulerService) Serve(ctx context.Context) error {
	if err := s.loop.Start(ctx); err != nil {
		return fmt.Errorf("scheduler failed to start: %w", err)
	}
	<-ctx.Done()
	if err := s.loop.Stop(); err != nil {
		return fmt.Errorf("scheduler failed to stop: %w", err)
	}
	return ctx.Err()
}

func (s *SchedulerService) String() string { return "scheduler" }

// NewSupervisor returns the root supervisor for serve. Supervisor events are logged through logger.
func NewSupervisor(logger *log.Logger, shutdownTimeout time.Duration) *suture.Supervisor {
	hook := (&sutureslog.Handler{Logger: slog.New(logger)}).MustHook()
	return suture.New("curatarr", suture.Spec{
		EventHook: hook,
		Timeout:   shutdownTimeout,
	})
}
