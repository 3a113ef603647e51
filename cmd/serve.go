package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/curatarr/internal/server"
)

const shutdownTimeout = 15 * time.Second

// Serve runs the scheduler and the HTTP API under one supervisor until SIGINT or SIGTERM.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	tree := server.NewSupervisor(r.logger, shutdownTimeout)
	tree.Add(server.NewHTTPService(server.NewHTTPServer(addr, r.api().Handler()), shutdownTimeout))
	if !cmd.Bool("no-scheduler") {
		tree.Add(server.NewSchedulerService(r.scheduler))
	}

	r.logger.Info("serving", "addr", addr, "jobs", len(r.scheduler.Jobs()), "scheduler", !cmd.Bool("no-scheduler"))

	errCh := tree.ServeBackground(ctx)
	select {
	case <-ctx.Done():
		r.logger.Info("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("supervisor stopped", "error", err)
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("supervisor shutdown", "error", err)
		}
	}

	if unstopped, err := tree.UnstoppedServiceReport(); err == nil {
		for _, svc := range unstopped {
			r.logger.Warn("service failed to stop", "service", svc.Name)
		}
	}
	return nil
}
