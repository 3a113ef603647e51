package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/curatarr/internal/models"
	"github.com/desertthunder/curatarr/internal/scheduler"
	"github.com/desertthunder/curatarr/internal/shared"
	"github.com/desertthunder/curatarr/internal/tasks"
)

// parseID reads a positive integer argument.
func parseID(raw, what string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s %q", shared.ErrInvalidArgument, what, raw)
	}
	return id, nil
}

func requiredID(cmd *cli.Command, what string) (int64, error) {
	raw := cmd.StringArg("id")
	if raw == "" {
		return 0, fmt.Errorf("%w: %s", shared.ErrMissingArgument, what)
	}
	return parseID(raw, what)
}

// optionalSearch returns nil when no id was given, which selects the default search.
func optionalSearch(cmd *cli.Command) (*int64, error) {
	raw := cmd.StringArg("id")
	if raw == "" {
		return nil, nil
	}
	id, err := parseID(raw, "search id")
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func optionalString(cmd *cli.Command, name string) *string {
	if v := cmd.String(name); v != "" {
		return &v
	}
	return nil
}

// SearchList prints saved searches.
func (r *Runner) SearchList(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	searches, err := r.searches.List(ctx)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(searches, cmd.Bool("pretty"))
	}

	for _, s := range searches {
		job := "-"
		if status, err := r.scheduler.Job(models.SearchJobID(s.ID)); err == nil {
			job = status.Schedule.String()
			if !status.Enabled {
				job += " (disabled)"
			}
		}
		r.writePlain("%d. %s\n", s.ID, s.Name)
		r.writePlain("   schedule: %s  last run: %s\n", job, formatTime(s.LastRunAt))
		if s.FavoritesFilter != "" {
			r.writePlain("   favorites: %s\n", s.FavoritesFilter)
		}
		r.writePlain("   prompt: %s\n", shared.CollapseWhitespace(s.Prompt))
	}
	return nil
}

// SearchSave creates or updates a search and its optional job.
func (r *Runner) SearchSave(ctx context.Context, cmd *cli.Command) error {
	search := &models.Search{
		ID:              cmd.Int64("id"),
		Name:            cmd.String("name"),
		Prompt:          cmd.String("prompt"),
		FavoritesFilter: cmd.String("favorites"),
	}

	var schedule *models.Schedule
	if expr := cmd.String("schedule"); expr != "" {
		parsed, err := models.ParseSchedule(expr)
		if err != nil {
			return fmt.Errorf("%w: %v", scheduler.ErrInvalidSchedule, err)
		}
		schedule = &parsed
	}

	if err := r.open(ctx); err != nil {
		return err
	}
	if err := r.searches.Save(ctx, search, schedule, !cmd.Bool("disabled")); err != nil {
		return err
	}

	r.writePlain("✓ saved search %d (%s)\n", search.ID, search.Name)
	if schedule != nil {
		r.writePlain("  job %s scheduled %q\n", models.SearchJobID(search.ID), schedule.String())
	}
	return nil
}

// SearchDelete removes a search and its job.
func (r *Runner) SearchDelete(ctx context.Context, cmd *cli.Command) error {
	id, err := requiredID(cmd, "search id")
	if err != nil {
		return err
	}
	if err := r.open(ctx); err != nil {
		return err
	}
	if err := r.searches.Delete(ctx, id); err != nil {
		return err
	}
	return r.writePlain("✓ deleted search %d\n", id)
}

// SearchRun generates suggestions for a search and prints what was stored.
func (r *Runner) SearchRun(ctx context.Context, cmd *cli.Command) error {
	id, err := optionalSearch(cmd)
	if err != nil {
		return err
	}
	if err := r.open(ctx); err != nil {
		return err
	}

	useJSON := cmd.Bool("json")
	engine := r.engine
	var stop func()
	if !useJSON {
		var ch chan tasks.ProgressUpdate
		ch, stop = r.progress()
		engine = tasks.NewRecommendationEngine(r.deps, tasks.WithProgress(ch))
	}

	result, err := engine.Run(ctx, id, optionalString(cmd, "media-name"))
	if stop != nil {
		stop()
	}
	if err != nil {
		return err
	}

	if useJSON {
		return r.writeJSON(result, cmd.Bool("pretty"))
	}

	r.writePlain("\n")
	r.writePlainHeader("Run Complete!")
	r.writePlain("Search:    %d\n", result.SearchID)
	r.writePlain("Provider:  %s (%s)\n", result.Provider, result.Model)
	r.writePlain("Saved:     %d of %d candidates (%d dropped)\n", result.SavedCount, len(result.Candidates), result.Dropped)
	r.writePlain("Tokens:    %d\n", result.Usage.TotalTokens)

	for _, c := range result.Candidates {
		mark := "✓"
		if c.Duplicate {
			mark = "="
		} else if !c.Saved {
			mark = "-"
		}
		r.writePlain("  %s %s (%s)\n", mark, c.Title, c.MediaType)
	}
	return nil
}

// SearchPreview prints the rendered prompt.
func (r *Runner) SearchPreview(ctx context.Context, cmd *cli.Command) error {
	id, err := optionalSearch(cmd)
	if err != nil {
		return err
	}
	if err := r.open(ctx); err != nil {
		return err
	}

	preview, err := r.engine.Preview(ctx, id, optionalString(cmd, "media-name"))
	if err != nil {
		return err
	}

	r.writePlainHeader(fmt.Sprintf("Search %d", preview.SearchID))
	r.writePlain("System prompt:\n%s\n\n", preview.SystemPrompt)
	r.writePlain("Prompt:\n%s\n", preview.Prompt)
	return nil
}
