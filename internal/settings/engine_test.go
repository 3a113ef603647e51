package settings

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/curatarr/internal/models"
	"github.com/desertthunder/curatarr/internal/providers"
	mock "github.com/desertthunder/curatarr/internal/testing"
)

func newEngine(t *testing.T) (*Engine, *mock.MemorySettingsStore) {
	t.Helper()
	store := mock.NewMemorySettingsStore()
	e := New(store, DefaultSchemas())
	require.NoError(t, e.Seed(context.Background()))
	return e, store
}

func enabledGroups(e *Engine, cap providers.Capability, tier providers.RequestTier) []string {
	var names []string
	for _, s := range e.Schemas() {
		if !s.Capabilities.Has(cap) {
			continue
		}
		if tier != "" && s.Tier != tier {
			continue
		}
		if e.Enabled(s.Name) {
			names = append(names, s.Name)
		}
	}
	return names
}

func TestEngineDefaults(t *testing.T) {
	e, store := newEngine(t)
	ctx := context.Background()

	t.Run("seed persists every default", func(t *testing.T) {
		v, ok := store.Value("app", "recent_limit")
		assert.True(t, ok)
		assert.Equal(t, int64(10), v)

		v, ok = store.Value("radarr", EnabledKey)
		assert.True(t, ok)
		assert.Equal(t, true, v)
	})

	t.Run("get returns schema metadata", func(t *testing.T) {
		s, err := e.Get(ctx, "ollama", "base_url")
		require.NoError(t, err)
		assert.Equal(t, "http://ollama:11434", s.Value)
		assert.Equal(t, TypeURL, s.Type)
		assert.True(t, s.Required)
	})

	t.Run("unknown group and key", func(t *testing.T) {
		_, err := e.Get(ctx, "nope", "x")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = e.Get(ctx, "app", "nope")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = e.Group(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = e.Update(ctx, "app", "nope", "1")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.True(t, IsUserError(err))
	})

	t.Run("group lists every key", func(t *testing.T) {
		g, err := e.Group(ctx, "trakt")
		require.NoError(t, err)
		assert.Contains(t, g, "authorization")
		assert.True(t, g["authorization"].Hidden)
	})
}

func TestEngineUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("coerces and persists", func(t *testing.T) {
		e, store := newEngine(t)

		g, err := e.Update(ctx, "app", "recent_limit", "25")
		require.NoError(t, err)
		assert.Equal(t, int64(25), g["recent_limit"].Value)

		v, _ := store.Value("app", "recent_limit")
		assert.Equal(t, int64(25), v)
	})

	t.Run("type mismatch changes nothing", func(t *testing.T) {
		e, store := newEngine(t)
		saves := store.Saves

		_, err := e.Update(ctx, "app", "recent_limit", "many")
		require.ErrorIs(t, err, ErrTypeMismatch)
		assert.Equal(t, saves, store.Saves)

		s, _ := e.Get(ctx, "app", "recent_limit")
		assert.Equal(t, int64(10), s.Value)
	})

	t.Run("enabling gemini disables ollama", func(t *testing.T) {
		e, _ := newEngine(t)

		_, err := e.Update(ctx, "ollama", EnabledKey, true)
		require.NoError(t, err)
		_, err = e.Update(ctx, "gemini", EnabledKey, true)
		require.NoError(t, err)

		assert.True(t, e.Enabled("gemini"))
		assert.False(t, e.Enabled("ollama"))
		assert.Equal(t, []string{"gemini"}, enabledGroups(e, providers.CapGeneration, ""))
	})

	t.Run("disabling never cascades", func(t *testing.T) {
		e, _ := newEngine(t)

		_, err := e.Update(ctx, "ollama", EnabledKey, true)
		require.NoError(t, err)
		_, err = e.Update(ctx, "gemini", EnabledKey, false)
		require.NoError(t, err)
		assert.True(t, e.Enabled("ollama"))
	})

	t.Run("enabling a proxy disables direct managers", func(t *testing.T) {
		e, _ := newEngine(t)
		require.ElementsMatch(t, []string{"radarr", "sonarr"}, enabledGroups(e, providers.CapRequest, providers.TierDirect))

		_, err := e.Update(ctx, "jellyseerr", EnabledKey, "true")
		require.NoError(t, err)
		assert.Empty(t, enabledGroups(e, providers.CapRequest, providers.TierDirect))
		assert.Equal(t, []string{"jellyseerr"}, enabledGroups(e, providers.CapRequest, providers.TierProxy))
	})

	t.Run("enabling a direct manager disables proxies but not its sibling", func(t *testing.T) {
		e, _ := newEngine(t)

		_, err := e.Update(ctx, "overseerr", EnabledKey, true)
		require.NoError(t, err)
		_, err = e.Update(ctx, "radarr", EnabledKey, true)
		require.NoError(t, err)
		_, err = e.Update(ctx, "sonarr", EnabledKey, true)
		require.NoError(t, err)

		assert.Empty(t, enabledGroups(e, providers.CapRequest, providers.TierProxy))
		assert.ElementsMatch(t, []string{"radarr", "sonarr"}, enabledGroups(e, providers.CapRequest, providers.TierDirect))
	})

	t.Run("library providers coexist", func(t *testing.T) {
		e, _ := newEngine(t)

		for _, g := range []string{"jellyfin", "plex", "trakt"} {
			_, err := e.Update(ctx, g, EnabledKey, true)
			require.NoError(t, err)
		}
		assert.Len(t, enabledGroups(e, providers.CapLibrary, ""), 3)
	})
}

func TestEngineFailures(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk full")

	t.Run("cascade failure restores and reports a constraint violation", func(t *testing.T) {
		e, store := newEngine(t)
		_, err := e.Update(ctx, "ollama", EnabledKey, true)
		require.NoError(t, err)

		store.FailSave = func(rec models.SettingRecord) error {
			if rec.Group == "ollama" && rec.Value == false {
				return boom
			}
			return nil
		}

		_, err = e.Update(ctx, "gemini", EnabledKey, true)
		require.ErrorIs(t, err, ErrConstraintViolation)
		assert.True(t, IsUserError(err))

		assert.False(t, e.Enabled("gemini"))
		assert.True(t, e.Enabled("ollama"))
		v, _ := store.Value("ollama", EnabledKey)
		assert.Equal(t, true, v)
		v, _ = store.Value("gemini", EnabledKey)
		assert.Equal(t, false, v)
	})

	t.Run("partial cascade is rolled back", func(t *testing.T) {
		e, store := newEngine(t)

		store.FailSave = func(rec models.SettingRecord) error {
			if rec.Group == "sonarr" && rec.Value == false {
				return boom
			}
			return nil
		}

		_, err := e.Update(ctx, "overseerr", EnabledKey, true)
		require.ErrorIs(t, err, ErrConstraintViolation)

		for _, g := range []string{"radarr", "sonarr"} {
			assert.True(t, e.Enabled(g), g)
			v, _ := store.Value(g, EnabledKey)
			assert.Equal(t, true, v, g)
		}
		assert.False(t, e.Enabled("overseerr"))
	})

	t.Run("target failure restores cascades and reports persistence", func(t *testing.T) {
		e, store := newEngine(t)

		store.FailSave = func(rec models.SettingRecord) error {
			if rec.Group == "overseerr" {
				return boom
			}
			return nil
		}

		_, err := e.Update(ctx, "overseerr", EnabledKey, true)
		require.ErrorIs(t, err, ErrPersistence)
		assert.False(t, IsUserError(err))

		assert.ElementsMatch(t, []string{"radarr", "sonarr"}, enabledGroups(e, providers.CapRequest, providers.TierDirect))
		for _, g := range []string{"radarr", "sonarr"} {
			v, _ := store.Value(g, EnabledKey)
			assert.Equal(t, true, v, g)
		}
	})
}

// Random enable/disable sequences never leave two generation providers, or a proxy next to
// a direct manager, enabled at once.
func TestEngineExclusivityHolds(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	rnd := rand.New(rand.NewSource(42))

	var groups []string
	for _, s := range e.Schemas() {
		if s.IsProvider() {
			groups = append(groups, s.Name)
		}
	}

	for i := 0; i < 500; i++ {
		g := groups[rnd.Intn(len(groups))]
		_, err := e.Update(ctx, g, EnabledKey, rnd.Intn(3) > 0)
		require.NoError(t, err)

		assert.LessOrEqual(t, len(enabledGroups(e, providers.CapGeneration, "")), 1)
		proxies := enabledGroups(e, providers.CapRequest, providers.TierProxy)
		assert.LessOrEqual(t, len(proxies), 1)
		if len(proxies) > 0 {
			assert.Empty(t, enabledGroups(e, providers.CapRequest, providers.TierDirect))
		}
	}
}

func TestEngineConcurrentEnables(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)

	var wg sync.WaitGroup
	for _, g := range []string{"gemini", "ollama", "openai", "gemini", "ollama", "openai"} {
		wg.Add(1)
		go func(g string) {
			defer wg.Done()
			_, err := e.Update(ctx, g, EnabledKey, true)
			assert.NoError(t, err)
		}(g)
	}
	wg.Wait()

	assert.Len(t, enabledGroups(e, providers.CapGeneration, ""), 1)
}

func TestEngineSeed(t *testing.T) {
	ctx := context.Background()

	t.Run("keeps stored values", func(t *testing.T) {
		store := mock.NewMemorySettingsStore()
		store.Set("app", "recent_limit", int64(3))

		e := New(store, DefaultSchemas())
		require.NoError(t, e.Seed(ctx))

		s, err := e.Get(ctx, "app", "recent_limit")
		require.NoError(t, err)
		assert.Equal(t, int64(3), s.Value)
	})

	t.Run("environment overrides win", func(t *testing.T) {
		t.Setenv("GEMINI_MODEL", "gemini-2.5-pro")
		t.Setenv("APP_RECENT_LIMIT", "not-a-number")

		store := mock.NewMemorySettingsStore()
		e := New(store, DefaultSchemas())
		require.NoError(t, e.Seed(ctx))

		s, _ := e.Get(ctx, "gemini", "model")
		assert.Equal(t, "gemini-2.5-pro", s.Value)
		v, _ := store.Value("gemini", "model")
		assert.Equal(t, "gemini-2.5-pro", v)

		s, _ = e.Get(ctx, "app", "recent_limit")
		assert.Equal(t, int64(10), s.Value)
	})

	t.Run("environment enable applies constraints", func(t *testing.T) {
		t.Setenv("OVERSEERR_ENABLED", "true")

		e := New(mock.NewMemorySettingsStore(), DefaultSchemas())
		require.NoError(t, e.Seed(ctx))

		assert.True(t, e.Enabled("overseerr"))
		assert.False(t, e.Enabled("radarr"))
	})

	t.Run("load ignores values that no longer coerce", func(t *testing.T) {
		store := mock.NewMemorySettingsStore()
		store.Set("app", "suggestion_limit", "lots")
		store.Set("unknown", "key", "x")

		e := New(store, DefaultSchemas())
		require.NoError(t, e.Load(ctx))

		s, _ := e.Get(ctx, "app", "suggestion_limit")
		assert.Equal(t, int64(20), s.Value)
	})
}

func TestEngineSubscribe(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)

	var mu sync.Mutex
	var got []Change
	unsubscribe := e.Subscribe(func(c Change) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, c)
	})

	_, err := e.Update(ctx, "overseerr", EnabledKey, true)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	var cascaded []string
	for _, c := range got {
		if c.Cascade {
			cascaded = append(cascaded, c.Group)
			assert.Equal(t, false, c.New)
		}
	}
	mu.Unlock()
	assert.ElementsMatch(t, []string{"radarr", "sonarr"}, cascaded)

	unsubscribe()
	_, err = e.Update(ctx, "app", "recent_limit", 5)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	assert.Len(t, got, 3)
	mu.Unlock()
}
