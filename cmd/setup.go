package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/curatarr/internal/shared"
)

// Setup writes config.toml from the embedded template when it is missing, then initializes the database, runs
// migrations, seeds settings and registers the default jobs.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := r.configPath
	if configPath == "" {
		configPath = "config.toml"
	}

	if _, err := os.Stat(configPath); err != nil {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
		} else if config, err := shared.LoadConfig(configPath); err != nil {
			r.logger.Warn("failed to load created config, using defaults", "error", err)
		} else {
			r.config = config
		}
	}

	r.logger.Info("initializing database", "path", r.config.Database.Path)
	if err := r.open(ctx); err != nil {
		return err
	}

	migrations, err := shared.Migrations(ctx, r.db)
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	applied := 0
	for _, m := range migrations {
		if m.Applied {
			applied++
		}
	}

	r.writePlainHeader("Setup complete")
	r.writePlain("Config:     %s\n", configPath)
	r.writePlain("Database:   %s\n", r.config.Database.Path)
	r.writePlain("Migrations: %d applied\n", applied)
	r.writePlain("Jobs:       %d registered\n", len(r.scheduler.Jobs()))
	r.writePlainln("Next steps:")
	r.writePlain("1. Configure providers, e.g. `curatarr settings set jellyfin url http://jellyfin:8096`\n")
	r.writePlain("2. Enable one generation provider, e.g. `curatarr settings set gemini enabled true`\n")
	r.writePlain("3. Run `curatarr serve`\n")
	return nil
}
