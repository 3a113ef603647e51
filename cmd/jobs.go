package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/curatarr/internal/models"
	"github.com/desertthunder/curatarr/internal/scheduler"
	"github.com/desertthunder/curatarr/internal/shared"
)

func jobID(cmd *cli.Command) (string, error) {
	id := cmd.StringArg("id")
	if id == "" {
		return "", fmt.Errorf("%w: job id", shared.ErrMissingArgument)
	}
	return id, nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

// JobsList prints every job with its schedule and run state.
func (r *Runner) JobsList(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	jobs := r.scheduler.Jobs()
	if cmd.Bool("json") {
		return r.writeJSON(jobs, cmd.Bool("pretty"))
	}

	r.writePlain("%-20s %-16s %-22s %-8s %-8s %-19s %s\n", "ID", "KIND", "SCHEDULE", "ENABLED", "STATE", "NEXT RUN", "LAST ERROR")
	for _, j := range jobs {
		r.writePlain("%-20s %-16s %-22s %-8t %-8s %-19s %s\n",
			j.ID, j.Kind, j.Schedule.String(), j.Enabled, j.State, formatTime(j.NextRunAt), j.LastError)
	}
	return nil
}

// JobsTrigger runs a job immediately and waits for it, so the result is known before the process exits.
func (r *Runner) JobsTrigger(ctx context.Context, cmd *cli.Command) error {
	id, err := jobID(cmd)
	if err != nil {
		return err
	}
	if err := r.open(ctx); err != nil {
		return err
	}

	r.writePlain("Running %s...\n", id)
	if err := r.scheduler.Trigger(ctx, id); err != nil {
		return err
	}
	r.scheduler.Wait()

	status, err := r.scheduler.Job(id)
	if err != nil {
		return err
	}
	if status.LastError != "" {
		return fmt.Errorf("job %s failed: %s", id, status.LastError)
	}
	return r.writePlain("✓ %s finished in %s\n", id, status.LastDuration.Round(time.Millisecond))
}

// JobsSchedule replaces a job's cron expression.
func (r *Runner) JobsSchedule(ctx context.Context, cmd *cli.Command) error {
	id, err := jobID(cmd)
	if err != nil {
		return err
	}
	expr := cmd.StringArg("schedule")
	if expr == "" {
		return fmt.Errorf("%w: schedule", shared.ErrMissingArgument)
	}

	schedule, err := models.ParseSchedule(expr)
	if err != nil {
		return fmt.Errorf("%w: %v", scheduler.ErrInvalidSchedule, err)
	}
	if err := r.open(ctx); err != nil {
		return err
	}
	if err := r.scheduler.UpdateSchedule(ctx, id, schedule); err != nil {
		return err
	}

	status, err := r.scheduler.Job(id)
	if err != nil {
		return err
	}
	return r.writePlain("✓ %s scheduled %q, next run %s\n", id, schedule.String(), formatTime(status.NextRunAt))
}

func (r *Runner) setJobEnabled(ctx context.Context, cmd *cli.Command, enabled bool) error {
	id, err := jobID(cmd)
	if err != nil {
		return err
	}
	if err := r.open(ctx); err != nil {
		return err
	}
	if err := r.scheduler.SetEnabled(ctx, id, enabled); err != nil {
		return err
	}

	state := "disabled"
	if enabled {
		state = "enabled"
	}
	return r.writePlain("✓ %s %s\n", id, state)
}

// JobsEnable turns a job on.
func (r *Runner) JobsEnable(ctx context.Context, cmd *cli.Command) error {
	return r.setJobEnabled(ctx, cmd, true)
}

// JobsDisable turns a job off. Manual triggers still work.
func (r *Runner) JobsDisable(ctx context.Context, cmd *cli.Command) error {
	return r.setJobEnabled(ctx, cmd, false)
}

// JobsDelete removes a job definition.
func (r *Runner) JobsDelete(ctx context.Context, cmd *cli.Command) error {
	id, err := jobID(cmd)
	if err != nil {
		return err
	}
	if err := r.open(ctx); err != nil {
		return err
	}
	if err := r.scheduler.Unregister(ctx, id); err != nil {
		return err
	}
	return r.writePlain("✓ deleted %s\n", id)
}
