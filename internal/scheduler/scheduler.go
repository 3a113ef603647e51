// Package scheduler runs persisted jobs on six field cron schedules.
//
// A ticker evaluates every enabled job once per minute. Fired jobs run in their own goroutine, bounded by a
// semaphore and a per-execution timeout. A job never runs twice concurrently: scheduled and manual triggers
// share the same running guard.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/curatarr/internal/metrics"
	"github.com/desertthunder/curatarr/internal/models"
	"github.com/desertthunder/curatarr/internal/shared"
)

var (
	ErrAlreadyRunning = errors.New("job is already running")
	ErrJobDisabled    = errors.New("job is disabled")
	ErrJobNotFound    = fmt.Errorf("%w: job", shared.ErrNotFound)
	ErrNoHandler      = errors.New("no handler registered for job kind")
)

// State is the run state of a job.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	// StateFailed is held only while a failure is recorded; the job then returns to [StateIdle].
	StateFailed State = "failed"
)

// HandlerFunc executes one run of a job.
type HandlerFunc func(ctx context.Context, job models.JobDefinition) error

// JobStore persists job definitions.
type JobStore interface {
	Save(ctx context.Context, job *models.JobDefinition) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, criteria map[string]any) ([]*models.JobDefinition, error)
}

// Config holds configuration for the scheduler.
type Config struct {
	// CheckInterval is how often the tick loop evaluates schedules (default: 1 minute)
	CheckInterval time.Duration

	// MaxConcurrentJobs bounds the number of jobs executing at once
	MaxConcurrentJobs int

	// ExecutionTimeout is the maximum time allowed for a single job execution
	ExecutionTimeout time.Duration

	// Enabled controls whether the tick loop fires jobs. Manual triggers work either way.
	Enabled bool
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		CheckInterval:     time.Minute,
		MaxConcurrentJobs: 4,
		ExecutionTimeout:  30 * time.Minute,
		Enabled:           true,
	}
}

// ConfigFrom converts the [shared.SchedulerConfig] file section.
func ConfigFrom(cfg shared.SchedulerConfig) Config {
	return Config{
		CheckInterval:     cfg.CheckInterval.Duration,
		MaxConcurrentJobs: cfg.MaxConcurrentJobs,
		ExecutionTimeout:  cfg.ExecutionTimeout.Duration,
		Enabled:           cfg.Enabled,
	}
}

// JobStatus is a job definition with its run state.
type JobStatus struct {
	models.JobDefinition
	State        State         `json:"state"`
	LastError    string        `json:"last_error,omitempty"`
	LastRunAt    *time.Time    `json:"last_run_at,omitempty"`
	LastDuration time.Duration `json:"last_duration"`
	NextRunAt    *time.Time    `json:"next_run_at,omitempty"`
}

type job struct {
	def          models.JobDefinition
	cron         *Cron
	state        State
	lastErr      error
	lastRunAt    *time.Time
	lastDuration time.Duration
	lastFired    time.Time
}

// Scheduler owns the run state of every registered job.
type Scheduler struct {
	store  JobStore
	logger *log.Logger
	config Config
	now    func() time.Time

	// writeMu serializes definition changes so a store write never outlives an Unregister.
	writeMu sync.Mutex

	mu       sync.Mutex
	jobs     map[string]*job
	handlers map[models.JobKind]HandlerFunc

	sem      chan struct{}
	inflight sync.WaitGroup

	loopMu  sync.Mutex
	looping bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// Option configures a [Scheduler].
type Option func(*Scheduler)

// WithClock replaces [time.Now], for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a scheduler. Jobs are added with [Scheduler.Load] or [Scheduler.Register].
func New(store JobStore, config Config, logger *log.Logger, opts ...Option) *Scheduler {
	if config.CheckInterval <= 0 {
		config.CheckInterval = time.Minute
	}
	if config.MaxConcurrentJobs <= 0 {
		config.MaxConcurrentJobs = 4
	}
	if config.ExecutionTimeout <= 0 {
		config.ExecutionTimeout = 30 * time.Minute
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	s := &Scheduler{
		store:    store,
		logger:   shared.WithLogger(logger, "component", "scheduler"),
		config:   config,
		now:      time.Now,
		jobs:     make(map[string]*job),
		handlers: make(map[models.JobKind]HandlerFunc),
		sem:      make(chan struct{}, config.MaxConcurrentJobs),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterHandler sets the handler for every job of kind.
func (s *Scheduler) RegisterHandler(kind models.JobKind, fn HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[kind] = fn
}

// Load adds every persisted job. Jobs with invalid schedules are logged and skipped.
func (s *Scheduler) Load(ctx context.Context) error {
	defs, err := s.store.List(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to load jobs: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, def := range defs {
		cron, err := Parse(def.Schedule)
		if err != nil {
			s.logger.Error("skipping job with invalid schedule", "job", def.ID, "error", err)
			continue
		}
		s.jobs[def.ID] = &job{def: *def, cron: cron, state: StateIdle}
	}
	s.logger.Info("loaded jobs", "count", len(s.jobs))
	return nil
}

// Register validates and persists def, replacing any job with the same ID. Run state is kept on replace.
func (s *Scheduler) Register(ctx context.Context, def models.JobDefinition) error {
	cron, err := Parse(def.Schedule)
	if err != nil {
		return err
	}
	if err := def.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.store.Save(ctx, &def); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[def.ID]; ok {
		j.def, j.cron = def, cron
		return nil
	}
	s.jobs[def.ID] = &job{def: def, cron: cron, state: StateIdle}
	s.logger.Info("registered job", "job", def.ID, "kind", def.Kind, "schedule", def.Schedule.String())
	return nil
}

// update applies fn to a copy of the job definition, persists it and swaps it in.
func (s *Scheduler) update(ctx context.Context, id string, fn func(*models.JobDefinition) (*Cron, error)) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	j, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	def := j.def
	s.mu.Unlock()

	cron, err := fn(&def)
	if err != nil {
		return err
	}
	if err := s.store.Save(ctx, &def); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		j.def = def
		if cron != nil {
			j.cron = cron
		}
	}
	return nil
}

// UpdateSchedule replaces the schedule of a job.
func (s *Scheduler) UpdateSchedule(ctx context.Context, id string, sched models.Schedule) error {
	return s.update(ctx, id, func(def *models.JobDefinition) (*Cron, error) {
		cron, err := Parse(sched)
		if err != nil {
			return nil, err
		}
		def.Schedule = sched
		return cron, nil
	})
}

// SetEnabled parks or resumes a job. A parked job keeps its definition but neither ticks nor triggers.
func (s *Scheduler) SetEnabled(ctx context.Context, id string, enabled bool) error {
	return s.update(ctx, id, func(def *models.JobDefinition) (*Cron, error) {
		def.Enabled = enabled
		return nil, nil
	})
}

// Unregister deletes a job. A run in progress finishes.
func (s *Scheduler) Unregister(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	_, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	if err := s.store.Delete(ctx, id); err != nil && !errors.Is(err, shared.ErrNotFound) {
		return err
	}

	s.mu.Lock()
	delete(s.jobs, id)
	s.mu.Unlock()
	s.logger.Info("unregistered job", "job", id)
	return nil
}

// Trigger starts a job now and returns without waiting for it. It returns [ErrAlreadyRunning] when the job is
// running, whether it was started by the tick loop or by another trigger, and [ErrJobDisabled] when it is parked.
func (s *Scheduler) Trigger(ctx context.Context, id string) error {
	s.mu.Lock()
	j, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if !j.def.Enabled {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobDisabled, id)
	}
	if j.state == StateRunning {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, id)
	}
	handler, ok := s.handlers[j.def.Kind]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoHandler, j.def.Kind)
	}
	j.state = StateRunning
	def := j.def
	s.mu.Unlock()

	s.launch(context.WithoutCancel(ctx), def, handler)
	return nil
}

// Jobs returns every job with its status, ordered by ID.
func (s *Scheduler) Jobs() []JobStatus {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobStatus, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, s.status(j, now))
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

// Job returns the status of one job.
func (s *Scheduler) Job(id string) (JobStatus, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return JobStatus{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return s.status(j, now), nil
}

// status copies a job; the caller holds s.mu.
func (s *Scheduler) status(j *job, now time.Time) JobStatus {
	st := JobStatus{
		JobDefinition: j.def,
		State:         j.state,
		LastRunAt:     j.lastRunAt,
		LastDuration:  j.lastDuration,
	}
	if j.lastErr != nil {
		st.LastError = j.lastErr.Error()
	}
	if j.def.Enabled {
		if next, ok := j.cron.Next(now); ok {
			st.NextRunAt = &next
		}
	}
	return st
}

// Tick fires every enabled job scheduled for the minute containing now and returns the IDs it started.
// A job fires at most once per minute and is skipped while it is still running.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) []string {
	minute := now.Truncate(time.Minute)

	type start struct {
		def     models.JobDefinition
		handler HandlerFunc
	}
	var starts []start

	s.mu.Lock()
	for id, j := range s.jobs {
		if !j.def.Enabled || !j.cron.Matches(minute) || j.lastFired.Equal(minute) {
			continue
		}
		j.lastFired = minute

		handler, ok := s.handlers[j.def.Kind]
		if !ok {
			s.logger.Warn("no handler for job kind", "job", id, "kind", j.def.Kind)
			continue
		}
		if j.state == StateRunning {
			s.logger.Warn("job still running, skipping scheduled run", "job", id)
			metrics.JobRuns.WithLabelValues(id, string(j.def.Kind), "skipped").Inc()
			continue
		}
		j.state = StateRunning
		starts = append(starts, start{def: j.def, handler: handler})
	}
	s.mu.Unlock()

	sort.Slice(starts, func(i, k int) bool { return starts[i].def.ID < starts[k].def.ID })
	ids := make([]string, 0, len(starts))
	for _, st := range starts {
		s.launch(ctx, st.def, st.handler)
		ids = append(ids, st.def.ID)
	}
	return ids
}

// launch runs a job marked running in its own goroutine.
func (s *Scheduler) launch(ctx context.Context, def models.JobDefinition, handler HandlerFunc) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		s.sem <- struct{}{}
		defer func() { <-s.sem }()

		s.execute(ctx, def, handler)
	}()
}

func (s *Scheduler) execute(ctx context.Context, def models.JobDefinition, handler HandlerFunc) {
	logger := s.logger.With("job", def.ID, "kind", def.Kind)
	execCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ExecutionTimeout)
	defer cancel()

	metrics.JobsRunning.Inc()
	defer metrics.JobsRunning.Dec()

	start := s.now()
	logger.Info("job started")

	err := runHandler(execCtx, def, handler)
	elapsed := s.now().Sub(start)
	metrics.RecordJob(def.ID, string(def.Kind), elapsed, err)

	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[def.ID]
	if !ok {
		return
	}
	j.lastRunAt = &start
	j.lastDuration = elapsed
	j.lastErr = err
	if err != nil {
		s.transition(logger, j, StateFailed)
		logger.Error("job failed", "error", err, "duration", elapsed)
	} else {
		logger.Info("job finished", "duration", elapsed)
	}
	s.transition(logger, j, StateIdle)
}

// transition moves a job to state; the caller holds s.mu.
func (s *Scheduler) transition(logger *log.Logger, j *job, to State) {
	if j.state == to {
		return
	}
	logger.Debug("job state change", "from", j.state, "to", to)
	j.state = to
}

// runHandler converts a handler panic into an error so one job cannot take down the scheduler.
func runHandler(ctx context.Context, def models.JobDefinition, handler HandlerFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", def.ID, r)
		}
	}()
	return handler(ctx, def)
}

// Wait blocks until every started job has finished.
func (s *Scheduler) Wait() {
	s.inflight.Wait()
}

// Start begins the tick loop. The first tick happens at the next minute boundary.
func (s *Scheduler) Start(ctx context.Context) error {
	s.loopMu.Lock()
	if s.looping {
		s.loopMu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.looping = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.loopMu.Unlock()

	if !s.config.Enabled {
		s.logger.Info("scheduler disabled, jobs run only when triggered")
		go func() {
			defer close(s.doneCh)
			<-s.stopCh
		}()
		return nil
	}

	s.logger.Info("starting scheduler", "check_interval", s.config.CheckInterval, "max_concurrent", s.config.MaxConcurrentJobs)
	go s.run(ctx)
	return nil
}

// Stop ends the tick loop and waits for running jobs to finish.
func (s *Scheduler) Stop() error {
	s.loopMu.Lock()
	if !s.looping {
		s.loopMu.Unlock()
		return nil
	}
	s.loopMu.Unlock()

	close(s.stopCh)
	<-s.doneCh
	s.inflight.Wait()

	s.loopMu.Lock()
	s.looping = false
	s.loopMu.Unlock()

	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	now := s.now()
	align := time.NewTimer(now.Truncate(time.Minute).Add(time.Minute).Sub(now))
	defer align.Stop()

	select {
	case <-align.C:
	case <-s.stopCh:
		return
	case <-ctx.Done():
		return
	}

	s.Tick(ctx, s.now())

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Tick(ctx, s.now())
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}
