// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print JSON output",
			Value: true,
		},
	}
}

func withOutput(flags ...cli.Flag) []cli.Flag {
	return append(flags, outputFlags()...)
}

func idArg(name string) []cli.Argument {
	return []cli.Argument{&cli.StringArg{Name: name, UsageText: "<" + name + ">"}}
}

// setupCommand creates the config file and database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create config.toml, initialize the database and seed settings",
		Action: r.Setup,
	}
}

// serveCommand runs the scheduler and HTTP API.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the job scheduler and the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (default: server.host:server.port from config)",
			},
			&cli.BoolFlag{
				Name:  "no-scheduler",
				Usage: "Serve the API without running scheduled jobs",
			},
		},
		Action: r.Serve,
	}
}

// settingsCommand reads and writes settings groups.
func settingsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "settings",
		Usage: "Inspect and change provider and app settings",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List every settings group",
				Flags:  outputFlags(),
				Action: r.SettingsList,
			},
			{
				Name:      "get",
				Usage:     "Show one group, or one key of a group",
				Arguments: []cli.Argument{&cli.StringArg{Name: "group"}, &cli.StringArg{Name: "key"}},
				Flags:     outputFlags(),
				Action:    r.SettingsGet,
			},
			{
				Name:      "set",
				Usage:     "Change a setting; enabling a provider may disable conflicting ones",
				Arguments: []cli.Argument{&cli.StringArg{Name: "group"}, &cli.StringArg{Name: "key"}, &cli.StringArg{Name: "value"}},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "clear",
						Usage: "Unset an optional key instead of passing a value",
					},
				},
				Action: r.SettingsSet,
			},
			{
				Name:      "schema",
				Usage:     "Show field types and descriptions",
				Arguments: []cli.Argument{&cli.StringArg{Name: "group"}},
				Flags:     outputFlags(),
				Action:    r.SettingsSchema,
			},
		},
	}
}

// jobsCommand manages scheduled jobs.
func jobsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "jobs",
		Usage: "Manage scheduled jobs",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List jobs with their state and next run",
				Flags:  outputFlags(),
				Action: r.JobsList,
			},
			{
				Name:      "trigger",
				Usage:     "Run a job now and wait for it to finish",
				Arguments: idArg("id"),
				Action:    r.JobsTrigger,
			},
			{
				Name:      "schedule",
				Usage:     "Change a job's cron schedule (minute hour day month day_of_week year)",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}, &cli.StringArg{Name: "schedule"}},
				Action:    r.JobsSchedule,
			},
			{
				Name:      "enable",
				Usage:     "Enable a job",
				Arguments: idArg("id"),
				Action:    r.JobsEnable,
			},
			{
				Name:      "disable",
				Usage:     "Disable a job",
				Arguments: idArg("id"),
				Action:    r.JobsDisable,
			},
			{
				Name:      "delete",
				Usage:     "Delete a job",
				Arguments: idArg("id"),
				Action:    r.JobsDelete,
			},
		},
	}
}

// searchCommand manages search templates and runs them.
func searchCommand(r *Runner) *cli.Command {
	mediaName := &cli.StringFlag{
		Name:    "media-name",
		Aliases: []string{"m"},
		Usage:   "Value for {{media_name}} (default: recent watch history)",
	}
	return &cli.Command{
		Name:  "search",
		Usage: "Manage and run recommendation searches",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List saved searches",
				Flags:  outputFlags(),
				Action: r.SearchList,
			},
			{
				Name:  "save",
				Usage: "Create a search, or update one with --id",
				Flags: []cli.Flag{
					&cli.Int64Flag{
						Name:  "id",
						Usage: "Search to update",
					},
					&cli.StringFlag{
						Name:     "name",
						Usage:    "Search name",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "prompt",
						Usage:    "Prompt template, e.g. \"Recommend {{limit}} movies like {{media_name}}\"",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "favorites",
						Usage: "Favorites filter for {{favorites}}: all or a username",
					},
					&cli.StringFlag{
						Name:  "schedule",
						Usage: "Cron schedule for a run_search job",
					},
					&cli.BoolFlag{
						Name:  "disabled",
						Usage: "Register the scheduled job disabled",
					},
				},
				Action: r.SearchSave,
			},
			{
				Name:      "delete",
				Usage:     "Delete a search and its job",
				Arguments: idArg("id"),
				Action:    r.SearchDelete,
			},
			{
				Name:      "run",
				Usage:     "Generate and store suggestions (default search when no id is given)",
				Arguments: idArg("id"),
				Flags:     withOutput(mediaName),
				Action:    r.SearchRun,
			},
			{
				Name:      "preview",
				Usage:     "Render a search prompt without calling the generation provider",
				Arguments: idArg("id"),
				Flags:     []cli.Flag{mediaName},
				Action:    r.SearchPreview,
			},
		},
	}
}

func suggestionFilterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "type",
			Usage: "Media type: movie or tv",
		},
		&cli.BoolFlag{
			Name:  "ignored",
			Usage: "Include ignored suggestions",
		},
		&cli.BoolFlag{
			Name:  "requested",
			Usage: "Only requested suggestions",
		},
		&cli.Int64Flag{
			Name:  "search",
			Usage: "Only suggestions from this search",
		},
		&cli.IntFlag{
			Name:  "limit",
			Usage: "Maximum number of suggestions",
			Value: 50,
		},
	}
}

// suggestionsCommand lists, exports and requests stored suggestions.
func suggestionsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "suggestions",
		Aliases: []string{"sg"},
		Usage:   "Browse, export and request suggestions",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List stored suggestions",
				Flags:  withOutput(suggestionFilterFlags()...),
				Action: r.SuggestionsList,
			},
			{
				Name:  "export",
				Usage: "Export suggestions to a file",
				Flags: append(suggestionFilterFlags(),
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "csv, markdown, text or json",
						Value:   "markdown",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path (default: suggestions.<ext>)",
					},
					&cli.StringFlag{
						Name:  "title",
						Usage: "Document title",
						Value: "Suggestions",
					},
				),
				Action: r.SuggestionsExport,
			},
			{
				Name:      "request",
				Usage:     "Send a suggestion to the active request provider",
				Arguments: idArg("id"),
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "profile",
						Usage: "Quality profile id (default: the provider's configured profile)",
					},
				},
				Action: r.SuggestionsRequest,
			},
			{
				Name:      "ignore",
				Usage:     "Hide a suggestion from lists",
				Arguments: idArg("id"),
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "undo",
						Usage: "Clear the ignored flag",
					},
				},
				Action: r.SuggestionsIgnore,
			},
		},
	}
}

// historyCommand shows and syncs watch history.
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Watch history from library providers",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List synced watch history",
				Flags: withOutput(
					&cli.StringFlag{
						Name:  "user",
						Usage: "Only entries for this user",
					},
					&cli.StringFlag{
						Name:  "provider",
						Usage: "Only entries from this provider",
					},
					&cli.BoolFlag{
						Name:  "unprocessed",
						Usage: "Only entries not yet used for recommendations",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of entries",
						Value: 50,
					},
				),
				Action: r.HistoryList,
			},
			{
				Name:   "sync",
				Usage:  "Pull watch history from every enabled library provider",
				Flags:  outputFlags(),
				Action: r.HistorySync,
			},
		},
	}
}

// providersCommand shows provider descriptors.
func providersCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "providers",
		Usage: "Inspect configured providers",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List providers with their capabilities and enablement",
				Flags:  outputFlags(),
				Action: r.ProvidersList,
			},
			{
				Name:      "models",
				Usage:     "List the models offered by a generation provider",
				Arguments: idArg("name"),
				Flags: withOutput(
					&cli.BoolFlag{
						Name:  "refresh",
						Usage: "Query the provider instead of the cache",
					},
				),
				Action: r.ProvidersModels,
			},
			{
				Name:      "profiles",
				Usage:     "List the quality profiles of a request provider",
				Arguments: idArg("name"),
				Flags: withOutput(
					&cli.StringFlag{
						Name:  "type",
						Usage: "Media type: movie or tv",
					},
				),
				Action: r.ProvidersProfiles,
			},
		},
	}
}

// traktCommand handles the Trakt OAuth flow.
func traktCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "trakt",
		Usage: "Trakt account operations",
		Commands: []*cli.Command{
			{
				Name:  "auth",
				Usage: "Authorize curatarr with Trakt using OAuth2",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "port",
						Usage: "Local callback port",
						Value: 8085,
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "How long to wait for the browser callback",
						Value: defaultAuthTimeout,
					},
					&cli.BoolFlag{
						Name:  "no-browser",
						Usage: "Print the authorization URL without opening a browser",
					},
				},
				Action: r.TraktAuth,
			},
		},
	}
}

// tuiCommand launches the terminal UI.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "tui",
		Usage:  "Browse jobs and suggestions in an interactive terminal UI",
		Action: r.TUI,
	}
}
