package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/curatarr/internal/models"
	"github.com/desertthunder/curatarr/internal/providers"
	"github.com/desertthunder/curatarr/internal/repositories"
	"github.com/desertthunder/curatarr/internal/scheduler"
	"github.com/desertthunder/curatarr/internal/shared"
)

var base = time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)

func entry(id, title string, hoursAgo int) providers.HistoryEntry {
	return providers.HistoryEntry{
		ExternalID: id,
		Title:      title,
		MediaType:  models.MediaMovie,
		WatchedAt:  base.Add(-time.Duration(hoursAgo) * time.Hour),
	}
}

func TestHistorySync(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.set(t, "jellyfin", "enabled", true)
	f.set(t, "app", "recent_limit", 2)

	lib := f.libs["jellyfin"]
	lib.Users = []providers.User{{ID: "1", Name: "alice"}, {ID: "2", Name: "bob"}}
	lib.History = map[string][]providers.HistoryEntry{
		"alice": {entry("a3", "Heat", 1), entry("a2", "Ronin", 5), entry("a1", "Alien", 9)},
		"bob":   {entry("b1", "Heat", 2)},
	}

	now := base.Add(time.Hour)
	sync := NewHistorySync(f.deps(), WithWorkers(2), WithClock(func() time.Time { return now }))

	summary, err := sync.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Providers)
	assert.Equal(t, 2, summary.Items)
	assert.Equal(t, 3, summary.Stored, "first sync is capped by recent_limit")
	assert.Empty(t, summary.Failures)

	since, limit := lib.SinceFor("alice")
	assert.Nil(t, since)
	assert.Equal(t, 2, limit)

	state, err := f.history.SyncState(ctx, "alice", "jellyfin")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.True(t, state.LastSyncedAt.Equal(base.Add(-time.Hour)))

	t.Run("second sync fetches since the last one", func(t *testing.T) {
		lib.History["alice"] = append([]providers.HistoryEntry{entry("a4", "Sicario", 0)}, lib.History["alice"]...)

		summary, err := sync.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Stored)

		since, limit := lib.SinceFor("alice")
		require.NotNil(t, since)
		assert.True(t, since.Equal(base.Add(-time.Hour)))
		assert.Zero(t, limit)

		state, err := f.history.SyncState(ctx, "bob", "jellyfin")
		require.NoError(t, err)
		assert.True(t, state.LastSyncedAt.Equal(now), "a window with no entries advances to now")
	})

	t.Run("re-running a window stores only what is missing", func(t *testing.T) {
		before, err := f.history.List(ctx, nil)
		require.NoError(t, err)

		_, err = f.db.ExecContext(ctx, `DELETE FROM sync_state`)
		require.NoError(t, err)
		f.set(t, "app", "recent_limit", 10)

		summary, err := sync.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 5, summary.Fetched)
		assert.Equal(t, 1, summary.Stored, "only the entry beyond the first recent_limit window is new")

		after, err := f.history.List(ctx, nil)
		require.NoError(t, err)
		assert.Len(t, after, len(before)+1)
	})
}

func TestHistorySyncDefaultUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.set(t, "jellyfin", "enabled", true)
	f.set(t, "jellyfin", "default_user", "bob")

	lib := f.libs["jellyfin"]
	lib.Users = []providers.User{{ID: "1", Name: "alice"}, {ID: "2", Name: "bob"}}
	lib.History = map[string][]providers.HistoryEntry{
		"alice": {entry("a1", "Heat", 1)},
		"bob":   {entry("b1", "Ronin", 1)},
	}

	summary, err := NewHistorySync(f.deps()).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Items)

	entries, err := f.history.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "bob", entries[0].User)
}

func TestHistorySyncFailures(t *testing.T) {
	ctx := context.Background()
	users := []providers.User{{ID: "1", Name: "alice"}}

	t.Run("no enabled libraries", func(t *testing.T) {
		f := newFixture(t)
		summary, err := NewHistorySync(f.deps()).Run(ctx)
		require.NoError(t, err)
		assert.Zero(t, summary.Providers)
	})

	t.Run("enable_history off", func(t *testing.T) {
		f := newFixture(t)
		f.set(t, "jellyfin", "enabled", true)
		f.set(t, "jellyfin", "enable_history", false)
		summary, err := NewHistorySync(f.deps()).Run(ctx)
		require.NoError(t, err)
		assert.Zero(t, summary.Providers)
	})

	t.Run("partial failure is collected", func(t *testing.T) {
		f := newFixture(t)
		f.set(t, "jellyfin", "enabled", true)
		f.set(t, "plex", "enabled", true)
		f.libs["jellyfin"].Users = users
		f.libs["jellyfin"].History = map[string][]providers.HistoryEntry{"alice": {entry("a1", "Heat", 1)}}
		f.libs["plex"].Users = users
		f.libs["plex"].HistoryErr = &providers.ProviderError{Provider: "plex", Op: "history", Kind: providers.KindUnauthorized}

		summary, err := NewHistorySync(f.deps()).Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Stored)
		require.Len(t, summary.Failures, 1)
		assert.Equal(t, "plex", summary.Failures[0].Provider)
		assert.Equal(t, "alice", summary.Failures[0].User)
		assert.ErrorIs(t, summary.Failures[0].Err, providers.ErrUnauthorized)

		state, err := f.history.SyncState(ctx, "alice", "plex")
		require.NoError(t, err)
		assert.Nil(t, state, "failed pairs keep their window")
	})

	t.Run("every item failing fails the run", func(t *testing.T) {
		f := newFixture(t)
		f.set(t, "jellyfin", "enabled", true)
		f.libs["jellyfin"].Users = users
		f.libs["jellyfin"].HistoryErr = errors.New("boom")

		_, err := NewHistorySync(f.deps()).Run(ctx)
		assert.Error(t, err)
	})

	t.Run("every provider failing to list users fails the run", func(t *testing.T) {
		f := newFixture(t)
		f.set(t, "jellyfin", "enabled", true)
		f.set(t, "plex", "enabled", true)
		f.libs["jellyfin"].UsersErr = errors.New("down")
		f.libs["plex"].UsersErr = errors.New("down")

		summary, err := NewHistorySync(f.deps()).Run(ctx)
		assert.Error(t, err)
		assert.Len(t, summary.Failures, 2)
	})
}

func TestRegisterHandlers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.set(t, "gemini", "enabled", true)
	f.candidates(providers.Candidate{Title: "Arrival", MediaType: "movie"})

	search := &models.Search{Name: "weekly", Prompt: "Recommend {{limit}} films"}
	require.NoError(t, f.searches.Create(ctx, search))

	s := scheduler.New(repositories.NewJobRepository(f.db), scheduler.DefaultConfig(), shared.NewLogger(nil))
	RegisterHandlers(s, NewRecommendationEngine(f.deps()), NewHistorySync(f.deps()))

	sched, err := models.ParseSchedule("0 9 * * 1")
	require.NoError(t, err)
	def := models.JobDefinition{
		ID:       models.SearchJobID(search.ID),
		Kind:     models.JobRunSearch,
		Schedule: sched,
		Enabled:  true,
		Target:   &search.ID,
	}
	require.NoError(t, s.Register(ctx, def))
	require.NoError(t, s.Trigger(ctx, def.ID))
	s.Wait()

	status, err := s.Job(def.ID)
	require.NoError(t, err)
	assert.Empty(t, status.LastError)

	usage, err := f.usage.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, usage, 1)
	assert.Equal(t, def.ID, usage[0].JobID)

	stored, err := f.suggestions.List(ctx, map[string]any{"search_id": search.ID})
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}
