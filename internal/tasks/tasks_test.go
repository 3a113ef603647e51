package tasks

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/desertthunder/curatarr/internal/providers"
	"github.com/desertthunder/curatarr/internal/registry"
	"github.com/desertthunder/curatarr/internal/repositories"
	"github.com/desertthunder/curatarr/internal/settings"
	"github.com/desertthunder/curatarr/internal/shared"
	mock "github.com/desertthunder/curatarr/internal/testing"
)

// fixture wires the engines to an in-memory database, a seeded settings engine, and a registry whose
// factory hands out the fixture's doubles.
type fixture struct {
	db          *sql.DB
	settings    *settings.Engine
	registry    *registry.Registry
	suggestions *repositories.SuggestionRepository
	history     *repositories.HistoryRepository
	searches    *repositories.SearchRepository
	usage       *repositories.UsageRepository

	gen  *mock.MockGeneration
	meta *mock.MockMetadata
	libs map[string]*mock.MockLibrary
	reqs map[string]*mock.MockRequest
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := shared.NewDatabase(":memory:")
	require.NoError(t, err)
	require.NoError(t, shared.RunMigrations(ctx, db))
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		db:          db,
		settings:    settings.New(mock.NewMemorySettingsStore(), settings.DefaultSchemas()),
		suggestions: repositories.NewSuggestionRepository(db),
		history:     repositories.NewHistoryRepository(db),
		searches:    repositories.NewSearchRepository(db),
		usage:       repositories.NewUsageRepository(db),
		gen: &mock.MockGeneration{
			NameValue: "gemini",
			Models:    []string{"gemini-test"},
			Result:    &providers.GenerateResult{Model: "gemini-test"},
		},
		meta: &mock.MockMetadata{NameValue: "tmdb"},
		libs: map[string]*mock.MockLibrary{
			"jellyfin": {NameValue: "jellyfin"},
			"plex":     {NameValue: "plex"},
			"trakt":    {NameValue: "trakt"},
		},
		reqs: map[string]*mock.MockRequest{
			"radarr":     {NameValue: "radarr"},
			"sonarr":     {NameValue: "sonarr"},
			"overseerr":  {NameValue: "overseerr"},
			"jellyseerr": {NameValue: "jellyseerr"},
		},
	}
	require.NoError(t, f.settings.Seed(ctx))

	f.registry = registry.New(f.settings, f.build, shared.NewLogger(nil))
	t.Cleanup(f.registry.Close)

	_, err = f.searches.EnsureDefault(ctx, settings.DefaultPromptTemplate)
	require.NoError(t, err)
	return f
}

func (f *fixture) build(_ context.Context, name string, _, _ settings.Values) (any, error) {
	if lib, ok := f.libs[name]; ok {
		return lib, nil
	}
	if req, ok := f.reqs[name]; ok {
		return req, nil
	}
	if name == "tmdb" {
		return f.meta, nil
	}
	return f.gen, nil
}

func (f *fixture) deps() Deps {
	return Deps{
		Providers:   f.registry,
		Settings:    f.settings,
		Suggestions: f.suggestions,
		History:     f.history,
		Searches:    f.searches,
		Usage:       f.usage,
		Logger:      shared.NewLogger(nil),
	}
}

func (f *fixture) set(t *testing.T, group, key string, v any) {
	t.Helper()
	_, err := f.settings.Update(context.Background(), group, key, v)
	require.NoError(t, err)
}

func (f *fixture) candidates(cs ...providers.Candidate) {
	f.gen.Result = &providers.GenerateResult{
		Candidates: cs,
		Model:      "gemini-test",
		Usage:      providers.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
}

func ptr[T any](v T) *T { return &v }
