package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/curatarr/internal/metrics"
	"github.com/desertthunder/curatarr/internal/models"
	"github.com/desertthunder/curatarr/internal/providers"
)

// SyncFailure is one (provider, user) pair that could not be synced. User is empty when listing
// the provider's users failed.
type SyncFailure struct {
	Provider string `json:"provider"`
	User     string `json:"user,omitempty"`
	Err      error  `json:"-"`
	Message  string `json:"error"`
}

func newSyncFailure(provider, user string, err error) SyncFailure {
	return SyncFailure{Provider: provider, User: user, Err: err, Message: err.Error()}
}

// SyncSummary reports the outcome of one history sync.
type SyncSummary struct {
	Providers int           `json:"providers"`
	Items     int           `json:"items"`
	Fetched   int           `json:"fetched"`
	Stored    int           `json:"stored"`
	Failures  []SyncFailure `json:"failures,omitempty"`
}

// syncItem is one unit of pool work.
type syncItem struct {
	provider string
	lib      providers.Library
	user     providers.User
}

type syncResult struct {
	item    syncItem
	fetched int
	stored  int
	err     error
}

// HistorySync copies watch history from library providers into storage.
type HistorySync struct {
	deps     Deps
	logger   *log.Logger
	progress chan<- ProgressUpdate
	now      func() time.Time
	workers  int
}

// NewHistorySync creates a synchronizer. [WithWorkers] sets the pool size.
func NewHistorySync(deps Deps, opts ...EngineOption) *HistorySync {
	o := buildOptions(opts)
	return &HistorySync{
		deps:     deps,
		logger:   deps.logger("history"),
		progress: o.progress,
		now:      o.now,
		workers:  o.workers,
	}
}

// Run syncs every user of every enabled library with enable_history set.
//
// Failures are collected in the summary. Run returns an error only when every provider failed to list
// users or every work item failed.
func (h *HistorySync) Run(ctx context.Context) (*SyncSummary, error) {
	names := h.deps.enabledLibraries("enable_history")
	summary := &SyncSummary{Providers: len(names)}
	if len(names) == 0 {
		h.logger.Debug("no library providers with history enabled")
		return summary, nil
	}

	items := make([]syncItem, 0)
	for i, name := range names {
		sendProgress(h.progress, listUsersUpdate(i+1, len(names), name))
		users, lib, err := h.users(ctx, name)
		if err != nil {
			h.logger.Warn("failed to list users", "provider", name, "err", err)
			summary.Failures = append(summary.Failures, newSyncFailure(name, "", err))
			continue
		}
		for _, u := range users {
			items = append(items, syncItem{provider: name, lib: lib, user: u})
		}
	}

	if len(summary.Failures) == len(names) {
		return summary, fmt.Errorf("every library failed to list users: %w", failuresErr(summary.Failures))
	}

	summary.Items = len(items)
	listFailures := len(summary.Failures)

	workers := min(h.workers, len(items))
	jobs := make(chan syncItem, len(items))
	results := make(chan syncResult, len(items))

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go h.worker(ctx, &wg, jobs, results)
	}

	for _, item := range items {
		jobs <- item
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for res := range results {
		completed++
		summary.Fetched += res.fetched
		summary.Stored += res.stored
		if res.err != nil {
			summary.Failures = append(summary.Failures, newSyncFailure(res.item.provider, res.item.user.Name, res.err))
			sendProgress(h.progress, syncFailedUpdate(completed, len(items), res))
			continue
		}
		sendProgress(h.progress, syncCompletedUpdate(completed, len(items), res))
	}

	itemFailures := len(summary.Failures) - listFailures
	h.logger.Info("history sync complete",
		"providers", summary.Providers,
		"items", summary.Items,
		"stored", summary.Stored,
		"failures", len(summary.Failures))

	if len(items) > 0 && itemFailures == len(items) {
		return summary, fmt.Errorf("every history sync failed: %w", failuresErr(summary.Failures[listFailures:]))
	}
	return summary, nil
}

func (h *HistorySync) users(ctx context.Context, name string) ([]providers.User, providers.Library, error) {
	lib, err := h.deps.Providers.Library(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	users, err := lib.ListUsers(ctx)
	if err != nil {
		return nil, nil, err
	}

	v, err := h.deps.Settings.Values(name)
	if err != nil {
		return nil, nil, err
	}
	return filterUsers(users, v.String("default_user")), lib, nil
}

// worker is a worker goroutine that syncs pairs from the jobs channel.
func (h *HistorySync) worker(ctx context.Context, wg *sync.WaitGroup, jobs <-chan syncItem, results chan<- syncResult) {
	defer wg.Done()

	for item := range jobs {
		select {
		case <-ctx.Done():
			results <- syncResult{item: item, err: ctx.Err()}
			continue
		default:
		}
		results <- h.syncOne(ctx, item)
	}
}

// syncOne fetches the window for one pair, stores new entries and advances the sync state.
func (h *HistorySync) syncOne(ctx context.Context, item syncItem) syncResult {
	res := syncResult{item: item}
	user := item.user.Name

	state, err := h.deps.History.SyncState(ctx, user, item.provider)
	if err != nil {
		res.err = err
		return res
	}

	var (
		since *time.Time
		limit int
	)
	if state != nil {
		since = &state.LastSyncedAt
	} else {
		app, err := h.deps.app()
		if err != nil {
			res.err = err
			return res
		}
		limit = app.IntOr("recent_limit", 10)
	}

	var newest time.Time
	for entry, err := range item.lib.ListWatchHistory(ctx, item.user, since, limit) {
		if err != nil {
			res.err = err
			return res
		}
		res.fetched++

		rec := &models.WatchHistoryEntry{
			User:            user,
			Provider:        item.provider,
			ExternalMediaID: entry.ExternalID,
			Title:           entry.Title,
			MediaType:       entry.MediaType,
			WatchedAt:       entry.WatchedAt,
		}
		stored, err := h.deps.History.Upsert(ctx, rec)
		if err != nil {
			res.err = err
			return res
		}
		if stored {
			res.stored++
		}
		if entry.WatchedAt.After(newest) {
			newest = entry.WatchedAt
		}
	}

	if newest.IsZero() {
		newest = h.now()
	}
	if state != nil && newest.Before(state.LastSyncedAt) {
		newest = state.LastSyncedAt
	}
	if err := h.deps.History.SaveSyncState(ctx, models.SyncState{User: user, Provider: item.provider, LastSyncedAt: newest}); err != nil {
		res.err = err
		return res
	}

	metrics.HistoryEntriesSynced.WithLabelValues(item.provider).Add(float64(res.stored))
	return res
}

func failuresErr(fs []SyncFailure) error {
	errs := make([]error, 0, len(fs))
	for _, f := range fs {
		if f.User == "" {
			errs = append(errs, fmt.Errorf("%s: %w", f.Provider, f.Err))
		} else {
			errs = append(errs, fmt.Errorf("%s/%s: %w", f.Provider, f.User, f.Err))
		}
	}
	return errors.Join(errs...)
}
