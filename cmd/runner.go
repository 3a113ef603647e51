package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/curatarr/internal/models"
	"github.com/desertthunder/curatarr/internal/providers"
	"github.com/desertthunder/curatarr/internal/registry"
	"github.com/desertthunder/curatarr/internal/repositories"
	"github.com/desertthunder/curatarr/internal/scheduler"
	"github.com/desertthunder/curatarr/internal/server"
	"github.com/desertthunder/curatarr/internal/settings"
	"github.com/desertthunder/curatarr/internal/shared"
	"github.com/desertthunder/curatarr/internal/tasks"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The database and everything built on it are opened on first use, so setup and --help work without a database.
type Runner struct {
	config     *shared.Config
	configPath string
	logger     *log.Logger
	output     io.Writer
	factory    registry.Factory

	db          *sql.DB
	ownsDB      bool
	settings    *settings.Engine
	registry    *registry.Registry
	scheduler   *scheduler.Scheduler
	searches    *tasks.SearchService
	suggestions *repositories.SuggestionRepository
	history     *repositories.HistoryRepository
	usage       *repositories.UsageRepository
	deps        tasks.Deps
	engine      *tasks.RecommendationEngine
	sync        *tasks.HistorySync
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Logger     *log.Logger
	Output     io.Writer
	DB         *sql.DB          // left open by [Runner.Close]
	Factory    registry.Factory // defaults to the vendor clients
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		logger:     opts.Logger,
		output:     opts.Output,
		factory:    opts.Factory,
		db:         opts.DB,
	}
}

// SetLogger replaces the logger used by the runner and by services built after the call.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, serveCommand, settingsCommand, jobsCommand, searchCommand,
		suggestionsCommand, historyCommand, providersCommand, traktCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Before loads the configuration file named by --config.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := cmd.String("config")
	config, err := shared.LoadConfigOrDefault(path)
	if err != nil {
		return ctx, err
	}
	r.config = config
	r.configPath = path
	shared.ConfigureLogger(r.logger, config.Log)
	return ctx, nil
}

// open builds the service graph once.
func (r *Runner) open(ctx context.Context) error {
	if r.engine != nil {
		return nil
	}

	if r.db == nil {
		db, err := shared.NewDatabase(r.config.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)
		r.db = db
		r.ownsDB = true
	}
	if err := shared.RunMigrations(ctx, r.db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	r.settings = settings.New(repositories.NewSettingsRepository(r.db), settings.DefaultSchemas(), settings.WithLogger(r.logger))
	if err := r.settings.Seed(ctx); err != nil {
		return fmt.Errorf("failed to seed settings: %w", err)
	}

	factory := r.factory
	if factory == nil {
		factory = registry.NewFactory(providers.OptionsFromConfig(r.config.Providers, r.logger))
	}
	r.registry = registry.New(r.settings, factory, r.logger)

	searches := repositories.NewSearchRepository(r.db)
	app, err := r.settings.Values(settings.AppGroup)
	if err != nil {
		return err
	}
	prompt := app.String("default_prompt")
	if prompt == "" {
		prompt = settings.DefaultPromptTemplate
	}
	if _, err := searches.EnsureDefault(ctx, prompt); err != nil {
		return fmt.Errorf("failed to create default search: %w", err)
	}

	r.suggestions = repositories.NewSuggestionRepository(r.db)
	r.history = repositories.NewHistoryRepository(r.db)
	r.usage = repositories.NewUsageRepository(r.db)
	r.deps = tasks.Deps{
		Providers:   r.registry,
		Settings:    r.settings,
		Suggestions: r.suggestions,
		History:     r.history,
		Searches:    searches,
		Usage:       r.usage,
		Logger:      r.logger,
	}

	r.scheduler = scheduler.New(repositories.NewJobRepository(r.db), scheduler.ConfigFrom(r.config.Scheduler), r.logger)
	r.engine = tasks.NewRecommendationEngine(r.deps)
	r.sync = tasks.NewHistorySync(r.deps, tasks.WithWorkers(r.config.Sync.MaxWorkers))
	tasks.RegisterHandlers(r.scheduler, r.engine, r.sync)
	r.searches = tasks.NewSearchService(searches, r.scheduler)

	if err := r.scheduler.Load(ctx); err != nil {
		return fmt.Errorf("failed to load jobs: %w", err)
	}
	return r.bootstrapJobs(ctx)
}

// bootstrapJobs registers the history jobs the first time the database is opened. Existing definitions keep their
// schedules and enablement.
func (r *Runner) bootstrapJobs(ctx context.Context) error {
	defaults := []struct {
		id       string
		kind     models.JobKind
		schedule string
		enabled  bool
	}{
		{models.SyncHistoryJobID, models.JobSyncHistory, "0 */6 * * * *", true},
		{models.ProcessHistoryJobID, models.JobProcessHistory, "30 * * * * *", false},
	}

	for _, d := range defaults {
		if _, err := r.scheduler.Job(d.id); err == nil {
			continue
		} else if !errors.Is(err, scheduler.ErrJobNotFound) {
			return err
		}

		schedule, err := models.ParseSchedule(d.schedule)
		if err != nil {
			return err
		}
		def := models.JobDefinition{ID: d.id, Kind: d.kind, Schedule: schedule, Enabled: d.enabled}
		if err := r.scheduler.Register(ctx, def); err != nil {
			return fmt.Errorf("failed to register %s: %w", d.id, err)
		}
		r.logger.Info("registered job", "id", d.id, "schedule", d.schedule, "enabled", d.enabled)
	}
	return nil
}

// api builds the HTTP API over the opened services.
func (r *Runner) api() *server.API {
	return server.NewAPI(server.Deps{
		Settings:    r.settings,
		Registry:    r.registry,
		Scheduler:   r.scheduler,
		Engine:      r.engine,
		Searches:    r.searches,
		Suggestions: r.suggestions,
		History:     r.history,
		Usage:       r.usage,
		Logger:      r.logger,
	})
}

// Close releases the provider clients and the database, unless the database was passed in [RunnerOpts].
func (r *Runner) Close(ctx context.Context, cmd *cli.Command) error {
	if r.registry != nil {
		r.registry.Close()
	}
	if r.ownsDB {
		return r.db.Close()
	}
	return nil
}

// progress prints updates until the returned stop function is called.
func (r *Runner) progress() (chan tasks.ProgressUpdate, func()) {
	ch := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range ch {
			if update.Total > 0 {
				r.writePlain("   [%d/%d] %s\n", update.Step, update.Total, update.Message)
			} else {
				r.writePlain("→ %s\n", update.Message)
			}
		}
	}()
	return ch, func() {
		close(ch)
		<-done
	}
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
