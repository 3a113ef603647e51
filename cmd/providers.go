package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/curatarr/internal/models"
	"github.com/desertthunder/curatarr/internal/shared"
)

// ProvidersList prints every provider descriptor.
func (r *Runner) ProvidersList(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	descriptors := r.registry.Descriptors()
	if cmd.Bool("json") {
		type view struct {
			Name         string   `json:"name"`
			Capabilities []string `json:"capabilities"`
			Enabled      bool     `json:"enabled"`
			Tier         string   `json:"tier"`
		}
		out := make([]view, len(descriptors))
		for i, d := range descriptors {
			out[i] = view{d.Name, strings.Split(d.Capabilities.String(), "|"), d.Enabled, string(d.Tier)}
		}
		return r.writeJSON(out, cmd.Bool("pretty"))
	}

	r.writePlain("%-12s %-12s %-8s %s\n", "NAME", "CAPABILITY", "TIER", "ENABLED")
	for _, d := range descriptors {
		enabled := "✗"
		if d.Enabled {
			enabled = "✓"
		}
		r.writePlain("%-12s %-12s %-8s %s\n", d.Name, d.Capabilities, d.Tier, enabled)
	}
	return nil
}

// ProvidersModels prints the models offered by a generation provider.
func (r *Runner) ProvidersModels(ctx context.Context, cmd *cli.Command) error {
	name := cmd.StringArg("name")
	if name == "" {
		return fmt.Errorf("%w: provider name", shared.ErrMissingArgument)
	}
	if err := r.open(ctx); err != nil {
		return err
	}

	list, ok := r.registry.Models(name)
	if !ok || cmd.Bool("refresh") {
		var err error
		if list, err = r.registry.RefreshModels(ctx, name); err != nil {
			return err
		}
	}

	if cmd.Bool("json") {
		return r.writeJSON(list, cmd.Bool("pretty"))
	}
	for _, m := range list {
		r.writePlain("%s\n", m)
	}
	return nil
}

// ProvidersProfiles prints the quality profiles of a request provider.
func (r *Runner) ProvidersProfiles(ctx context.Context, cmd *cli.Command) error {
	name := cmd.StringArg("name")
	if name == "" {
		return fmt.Errorf("%w: provider name", shared.ErrMissingArgument)
	}
	var mt models.MediaType
	if t := cmd.String("type"); t != "" {
		parsed, ok := models.ParseMediaType(t)
		if !ok {
			return fmt.Errorf("%w: media type %q", shared.ErrInvalidArgument, t)
		}
		mt = parsed
	}
	if err := r.open(ctx); err != nil {
		return err
	}

	req, err := r.registry.Request(ctx, name)
	if err != nil {
		return err
	}
	profiles, err := req.ListQualityProfiles(ctx, mt)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(profiles, cmd.Bool("pretty"))
	}
	r.writePlain("%-6s %s\n", "ID", "NAME")
	for _, p := range profiles {
		r.writePlain("%-6d %s\n", p.ID, p.Name)
	}
	return nil
}
