package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/curatarr/internal/formatter"
	"github.com/desertthunder/curatarr/internal/models"
	"github.com/desertthunder/curatarr/internal/shared"
	"github.com/desertthunder/curatarr/internal/tasks"
)

// suggestionCriteria maps the filter flags onto repository criteria. Ignored suggestions are hidden unless --ignored.
func suggestionCriteria(cmd *cli.Command) (map[string]any, error) {
	criteria := map[string]any{"limit": cmd.Int("limit")}
	if t := cmd.String("type"); t != "" {
		mt, ok := models.ParseMediaType(t)
		if !ok {
			return nil, fmt.Errorf("%w: media type %q", shared.ErrInvalidArgument, t)
		}
		criteria["media_type"] = string(mt)
	}
	if !cmd.Bool("ignored") {
		criteria["ignored"] = false
	}
	if cmd.Bool("requested") {
		criteria["requested"] = true
	}
	if id := cmd.Int64("search"); id > 0 {
		criteria["search_id"] = id
	}
	return criteria, nil
}

// SuggestionsList prints stored suggestions, newest first.
func (r *Runner) SuggestionsList(ctx context.Context, cmd *cli.Command) error {
	criteria, err := suggestionCriteria(cmd)
	if err != nil {
		return err
	}
	if err := r.open(ctx); err != nil {
		return err
	}

	suggestions, err := r.suggestions.List(ctx, criteria)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(suggestions, cmd.Bool("pretty"))
	}

	if len(suggestions) == 0 {
		return r.writePlain("No suggestions yet. Run `curatarr search run` to generate some.\n")
	}
	for _, sg := range suggestions {
		flags := ""
		if sg.Requested {
			flags += " [requested]"
		}
		if sg.Ignored {
			flags += " [ignored]"
		}
		r.writePlain("%4d  %-5s %s%s\n", sg.ID, sg.MediaType, sg.Title, flags)
	}
	return nil
}

// SuggestionsExport writes suggestions to a file in the chosen format.
func (r *Runner) SuggestionsExport(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	criteria, err := suggestionCriteria(cmd)
	if err != nil {
		return err
	}
	if err := r.open(ctx); err != nil {
		return err
	}

	suggestions, err := r.suggestions.List(ctx, criteria)
	if err != nil {
		return err
	}

	result, err := formatter.WriteExport(format, cmd.String("title"), suggestions, cmd.String("output"))
	if err != nil {
		return err
	}

	r.logger.Info("exported suggestions", "format", format, "count", len(suggestions), "file", result.File)
	r.writePlain("✓ exported %d suggestions to %s\n", len(suggestions), result.File)
	if result.SummaryFile != "" {
		r.writePlain("  summary: %s\n", result.SummaryFile)
	}
	return nil
}

// SuggestionsRequest submits a suggestion to the active request provider.
func (r *Runner) SuggestionsRequest(ctx context.Context, cmd *cli.Command) error {
	id, err := requiredID(cmd, "suggestion id")
	if err != nil {
		return err
	}
	var profile *int
	if p := cmd.Int("profile"); p > 0 {
		profile = &p
	}
	if err := r.open(ctx); err != nil {
		return err
	}

	requestID, err := r.engine.RequestMedia(ctx, id, profile)
	if err != nil {
		return err
	}
	return r.writePlain("✓ requested suggestion %d (request %s)\n", id, requestID)
}

// SuggestionsIgnore sets or clears the ignored flag.
func (r *Runner) SuggestionsIgnore(ctx context.Context, cmd *cli.Command) error {
	id, err := requiredID(cmd, "suggestion id")
	if err != nil {
		return err
	}
	if err := r.open(ctx); err != nil {
		return err
	}

	ignored := !cmd.Bool("undo")
	if err := r.suggestions.SetIgnored(ctx, id, ignored); err != nil {
		return err
	}
	if ignored {
		return r.writePlain("✓ ignoring suggestion %d\n", id)
	}
	return r.writePlain("✓ suggestion %d is visible again\n", id)
}

// HistoryList prints synced watch history.
func (r *Runner) HistoryList(ctx context.Context, cmd *cli.Command) error {
	criteria := map[string]any{"limit": cmd.Int("limit")}
	if u := cmd.String("user"); u != "" {
		criteria["user"] = u
	}
	if p := cmd.String("provider"); p != "" {
		criteria["provider"] = p
	}
	if cmd.Bool("unprocessed") {
		criteria["processed"] = false
	}
	if err := r.open(ctx); err != nil {
		return err
	}

	entries, err := r.history.List(ctx, criteria)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(entries, cmd.Bool("pretty"))
	}

	for _, e := range entries {
		mark := " "
		if e.Processed {
			mark = "✓"
		}
		r.writePlain("%s %-19s %-10s %-16s %-5s %s\n",
			mark, e.WatchedAt.Local().Format("2006-01-02 15:04:05"), e.Provider, e.User, e.MediaType, e.Title)
	}
	return nil
}

// HistorySync pulls watch history from every enabled library provider.
func (r *Runner) HistorySync(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	opts := []tasks.EngineOption{tasks.WithWorkers(r.config.Sync.MaxWorkers)}
	var stop func()
	if !cmd.Bool("json") {
		var ch chan tasks.ProgressUpdate
		ch, stop = r.progress()
		opts = append(opts, tasks.WithProgress(ch))
	}

	summary, err := tasks.NewHistorySync(r.deps, opts...).Run(ctx)
	if stop != nil {
		stop()
	}

	if cmd.Bool("json") {
		if werr := r.writeJSON(summary, cmd.Bool("pretty")); werr != nil {
			return werr
		}
		return err
	}

	r.writePlain("\n")
	r.writePlainHeader("Sync Complete!")
	r.writePlain("Providers: %d\n", summary.Providers)
	r.writePlain("Users:     %d\n", summary.Items)
	r.writePlain("Fetched:   %d\n", summary.Fetched)
	r.writePlain("Stored:    %d new\n", summary.Stored)
	for _, f := range summary.Failures {
		r.writePlain("  ✗ %s %s: %s\n", f.Provider, f.User, f.Message)
	}
	return err
}
