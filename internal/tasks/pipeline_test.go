package tasks

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/curatarr/internal/models"
	"github.com/desertthunder/curatarr/internal/providers"
)

func TestRenderPrompt(t *testing.T) {
	vars := map[string]string{"limit": "5", "media_name": "Heat"}

	tests := []struct {
		name string
		tmpl string
		want string
	}{
		{"compact", "Recommend {{limit}} like {{media_name}}", "Recommend 5 like Heat"},
		{"spaced", "Recommend {{ limit }} like {{   media_name\t}}", "Recommend 5 like Heat"},
		{"repeated", "{{limit}}/{{limit}}", "5/5"},
		{"unknown left verbatim", "Exclude {{ all_media }}", "Exclude {{ all_media }}"},
		{"not a placeholder", "{{ 1st }} and {limit}", "{{ 1st }} and {limit}"},
		{"empty value", "[{{media_name}}]", "[Heat]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RenderPrompt(tt.tmpl, vars))
		})
	}

	assert.Equal(t, []string{"limit", "media_name", "all_media"},
		Placeholders("{{limit}} {{ media_name }} {{limit}} {{all_media}}"))
}

func TestPreviewNeverGenerates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.set(t, "gemini", "enabled", true)
	f.candidates(providers.Candidate{Title: "Alien", MediaType: "movie"})

	_, err := f.suggestions.Save(ctx, &models.Suggestion{Title: "Blade Runner", MediaType: models.MediaMovie})
	require.NoError(t, err)

	e := NewRecommendationEngine(f.deps())
	for range 3 {
		res, err := e.Preview(ctx, nil, ptr("Arrival"))
		require.NoError(t, err)
		assert.Contains(t, res.Prompt, "Recommend 20 tv series or movies similar to Arrival")
		assert.Contains(t, res.Prompt, "Blade Runner")
		assert.Equal(t, settingsSystemPrompt(t, f), res.SystemPrompt)
	}
	assert.Zero(t, f.gen.Calls())

	t.Run("works without a generation provider", func(t *testing.T) {
		f.set(t, "gemini", "enabled", false)
		_, err := e.Preview(ctx, nil, nil)
		require.NoError(t, err)
		assert.Zero(t, f.gen.Calls())
	})

	t.Run("unknown search", func(t *testing.T) {
		_, err := e.Preview(ctx, ptr(int64(99)), nil)
		assert.Error(t, err)
	})
}

func settingsSystemPrompt(t *testing.T, f *fixture) string {
	t.Helper()
	v, err := f.settings.Values("app")
	require.NoError(t, err)
	return v.String("system_prompt")
}

func TestRunDropsMalformedCandidates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.set(t, "gemini", "enabled", true)
	f.candidates(
		providers.Candidate{Title: "Alien", MediaType: "Movie"},
		providers.Candidate{Title: "   ", MediaType: "movie"},
		providers.Candidate{Title: "Serial", MediaType: "podcast"},
		providers.Candidate{Title: "The  Expanse", MediaType: "series"},
		providers.Candidate{Title: "Severance", MediaType: ""},
	)

	res, err := NewRecommendationEngine(f.deps()).Run(ctx, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Dropped)
	require.Len(t, res.Candidates, 2)
	assert.Equal(t, "Alien", res.Candidates[0].Title)
	assert.Equal(t, "movie", res.Candidates[0].MediaType)
	assert.Equal(t, "The Expanse", res.Candidates[1].Title)
	assert.Equal(t, "tv", res.Candidates[1].MediaType)
	assert.Equal(t, 2, res.SavedCount)
	assert.Equal(t, 1, f.gen.Calls())
}

func TestRunCountsUndecodableCandidates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.set(t, "gemini", "enabled", true)

	parsed, malformed, err := providers.ParseCandidates(
		`{"suggestions":[{"title":"Heat","mediaType":"movie","rt_score":"88%"},{"title":["Ronin"],"mediaType":"movie"},{"title":"Ronin","mediaType":"movie","rt_score":70}]}`,
	)
	require.NoError(t, err)
	f.gen.Result = &providers.GenerateResult{Candidates: parsed, Malformed: malformed, Model: "gemini-test"}

	res, err := NewRecommendationEngine(f.deps()).Run(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Dropped)
	require.Len(t, res.Candidates, 2)
	assert.Equal(t, 2, res.SavedCount)
	require.NotNil(t, res.Candidates[0].RTScore)
	assert.Equal(t, 88, *res.Candidates[0].RTScore)
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "render_prompt", Render.String())
	assert.Equal(t, "process_history", ProcessHistory.String())
	assert.Empty(t, Phase(99).String())
}

func TestRunDeduplicates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.set(t, "gemini", "enabled", true)

	_, err := f.suggestions.Save(ctx, &models.Suggestion{Title: "Alien", MediaType: models.MediaMovie})
	require.NoError(t, err)
	_, err = f.history.Upsert(ctx, &models.WatchHistoryEntry{
		User: "alice", Provider: "jellyfin", ExternalMediaID: "h1", Title: "Heat",
		MediaType: models.MediaMovie, WatchedAt: time.Now(),
	})
	require.NoError(t, err)

	f.candidates(
		providers.Candidate{Title: "  ALIEN ", MediaType: "film"},
		providers.Candidate{Title: "Alien", MediaType: "tv"},
		providers.Candidate{Title: "Heat", MediaType: "movie"},
		providers.Candidate{Title: "Sicario", MediaType: "movie"},
		providers.Candidate{Title: "sicario", MediaType: "movie"},
	)

	e := NewRecommendationEngine(f.deps())
	res, err := e.Run(ctx, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, map[string]bool{
		"ALIEN|movie":   true,
		"Alien|tv":      true,
		"Heat|movie":    true,
		"Sicario|movie": false,
		"sicario|movie": true,
	}, duplicateFlags(res))
	assert.Len(t, res.Candidates, 5, "duplicates stay in the result")
	assert.Equal(t, 1, res.SavedCount)

	// Without {{all_media}} only stored keys and batch repeats count.
	search := &models.Search{Name: "plain", Prompt: "Recommend {{limit}} titles"}
	require.NoError(t, f.searches.Create(ctx, search))

	res, err = e.Run(ctx, &search.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{
		"ALIEN|movie":   true,
		"Alien|tv":      false,
		"Heat|movie":    false,
		"Sicario|movie": true,
		"sicario|movie": true,
	}, duplicateFlags(res))
	assert.Equal(t, 2, res.SavedCount)

	t.Run("a second run never persists a stored key", func(t *testing.T) {
		before, err := f.suggestions.List(ctx, nil)
		require.NoError(t, err)

		again, err := e.Run(ctx, &search.ID, nil)
		require.NoError(t, err)
		assert.Zero(t, again.SavedCount)
		for _, c := range again.Candidates {
			assert.True(t, c.Duplicate, c.Title)
			assert.False(t, c.Saved, c.Title)
		}

		after, err := f.suggestions.List(ctx, nil)
		require.NoError(t, err)
		assert.Len(t, after, len(before))
	})
}

func duplicateFlags(res *RunResult) map[string]bool {
	flags := map[string]bool{}
	for _, c := range res.Candidates {
		flags[c.Title+"|"+c.MediaType] = c.Duplicate
	}
	return flags
}

func TestRunSavePolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("ad hoc run honours auto_media_save", func(t *testing.T) {
		f := newFixture(t)
		f.set(t, "gemini", "enabled", true)
		f.set(t, "app", "auto_media_save", false)
		f.candidates(providers.Candidate{Title: "Arrival", MediaType: "movie"})

		res, err := NewRecommendationEngine(f.deps()).Run(ctx, nil, nil)
		require.NoError(t, err)
		assert.Zero(t, res.SavedCount)
		assert.False(t, res.Candidates[0].Duplicate)
		assert.False(t, res.Candidates[0].Saved)

		stored, err := f.suggestions.List(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, stored)

		usage, err := f.usage.List(ctx, nil)
		require.NoError(t, err)
		require.Len(t, usage, 1)
		assert.Equal(t, "gemini", usage[0].Provider)
		assert.Equal(t, 15, usage[0].TotalTokens)
	})

	t.Run("explicit search always saves", func(t *testing.T) {
		f := newFixture(t)
		f.set(t, "gemini", "enabled", true)
		f.set(t, "app", "auto_media_save", false)
		f.candidates(providers.Candidate{Title: "Arrival", MediaType: "movie", Description: " aliens "})

		search := &models.Search{Name: "sci-fi", Prompt: "Recommend {{limit}} science fiction films"}
		require.NoError(t, f.searches.Create(ctx, search))

		clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		e := NewRecommendationEngine(f.deps(), WithClock(func() time.Time { return clock }))
		res, err := e.Run(ctx, &search.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, "Recommend 20 science fiction films", res.Prompt)
		require.Equal(t, 1, res.SavedCount)

		sg, err := f.suggestions.Get(ctx, res.Candidates[0].SuggestionID)
		require.NoError(t, err)
		assert.Equal(t, "aliens", sg.Description)
		require.NotNil(t, sg.OriginSearchID)
		assert.Equal(t, search.ID, *sg.OriginSearchID)

		got, err := f.searches.Get(ctx, search.ID)
		require.NoError(t, err)
		require.NotNil(t, got.LastRunAt)
		assert.True(t, clock.Equal(*got.LastRunAt))

		usage, err := f.usage.List(ctx, map[string]any{"search_id": search.ID})
		require.NoError(t, err)
		assert.Len(t, usage, 1)
	})
}

func TestRunErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("no generation provider", func(t *testing.T) {
		f := newFixture(t)
		_, err := NewRecommendationEngine(f.deps()).Run(ctx, nil, nil)
		assert.ErrorIs(t, err, ErrNoProviderEnabled)
	})

	t.Run("provider failure", func(t *testing.T) {
		f := newFixture(t)
		f.set(t, "gemini", "enabled", true)
		f.gen.Err = &providers.ProviderError{Provider: "gemini", Op: "generate", Kind: providers.KindUnreachable, Err: errors.New("dial tcp")}

		_, err := NewRecommendationEngine(f.deps()).Run(ctx, nil, nil)
		assert.ErrorIs(t, err, ErrGenerationFailed)
		assert.ErrorIs(t, err, providers.ErrUnreachable)

		usage, err := f.usage.List(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, usage)
	})
}

func TestFavorites(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.set(t, "jellyfin", "enabled", true)
	f.set(t, "plex", "enabled", true)

	alice := providers.User{ID: "1", Name: "alice"}
	bob := providers.User{ID: "2", Name: "bob"}
	f.libs["jellyfin"].Users = []providers.User{alice, bob}
	f.libs["jellyfin"].Favorites = map[string][]providers.MediaRef{
		"alice": {{Title: "Heat", MediaType: models.MediaMovie}},
		"bob":   {{Title: "Ronin", MediaType: models.MediaMovie}, {Title: "heat", MediaType: models.MediaMovie}},
	}
	f.libs["plex"].UsersErr = errors.New("plex down")

	searches := 0
	preview := func(filter string) string {
		t.Helper()
		searches++
		s := &models.Search{Name: fmt.Sprintf("favs %d", searches), Prompt: "Favs: {{ favorites }}", FavoritesFilter: filter}
		require.NoError(t, f.searches.Create(ctx, s))
		res, err := NewRecommendationEngine(f.deps()).Preview(ctx, &s.ID, nil)
		require.NoError(t, err)
		return res.Prompt
	}

	assert.Equal(t, "Favs: ", preview(""))
	assert.Equal(t, "Favs: Heat", preview("alice"))
	assert.Equal(t, "Favs: Heat, Ronin", preview(FavoritesAll))
	assert.Equal(t, "Favs: ", preview("carol"))

	t.Run("every library failing renders empty", func(t *testing.T) {
		f.libs["jellyfin"].FavoriteErr = errors.New("timeout")
		assert.Equal(t, "Favs: ", preview(FavoritesAll))
		f.libs["jellyfin"].FavoriteErr = nil
	})

	t.Run("enable_media off skips the library", func(t *testing.T) {
		f.set(t, "jellyfin", "enable_media", false)
		assert.Equal(t, "Favs: ", preview(FavoritesAll))
	})
}

func TestProcessHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.set(t, "gemini", "enabled", true)
	f.candidates(providers.Candidate{Title: "Ronin", MediaType: "movie"})

	now := time.Now().UTC()
	for i, e := range []struct{ user, id, title string }{
		{"alice", "a1", "Heat"},
		{"bob", "b1", "Heat"},
		{"alice", "a2", "Alien"},
	} {
		_, err := f.history.Upsert(ctx, &models.WatchHistoryEntry{
			User: e.user, Provider: "jellyfin", ExternalMediaID: e.id, Title: e.title,
			MediaType: models.MediaMovie, WatchedAt: now.Add(-time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	e := NewRecommendationEngine(f.deps())
	n, err := e.ProcessHistory(ctx, "process_history")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, f.gen.Calls())
	assert.Contains(t, f.gen.LastPrompt, "similar to Alien")

	pending, err := f.history.List(ctx, map[string]any{"processed": false})
	require.NoError(t, err)
	assert.Empty(t, pending)

	usage, err := f.usage.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, usage, 2)
	assert.Equal(t, "process_history", usage[0].JobID)

	t.Run("nothing pending", func(t *testing.T) {
		n, err := e.ProcessHistory(ctx, "process_history")
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Equal(t, 2, f.gen.Calls())
	})

	t.Run("no provider stops the batch", func(t *testing.T) {
		_, err := f.history.Upsert(ctx, &models.WatchHistoryEntry{
			User: "alice", Provider: "jellyfin", ExternalMediaID: "a3", Title: "Ronin", MediaType: models.MediaMovie, WatchedAt: now,
		})
		require.NoError(t, err)
		f.set(t, "gemini", "enabled", false)

		_, err = e.ProcessHistory(ctx, "process_history")
		assert.ErrorIs(t, err, ErrNoProviderEnabled)

		pending, err := f.history.List(ctx, map[string]any{"processed": false})
		require.NoError(t, err)
		assert.Len(t, pending, 1)
	})
}

func TestProcessHistorySavesWithoutAutoSave(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.set(t, "gemini", "enabled", true)
	f.set(t, "app", "auto_media_save", false)
	f.candidates(providers.Candidate{Title: "Ronin", MediaType: "movie"})

	_, err := f.history.Upsert(ctx, &models.WatchHistoryEntry{
		User: "alice", Provider: "jellyfin", ExternalMediaID: "a1", Title: "Heat",
		MediaType: models.MediaMovie, WatchedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	n, err := NewRecommendationEngine(f.deps()).ProcessHistory(ctx, "process_history")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := f.suggestions.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "Ronin", stored[0].Title)
	require.NotNil(t, stored[0].OriginSearchID)
	assert.Equal(t, models.DefaultSearchID, *stored[0].OriginSearchID)

	pending, err := f.history.List(ctx, map[string]any{"processed": false})
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRequestMedia(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e := NewRecommendationEngine(f.deps())

	movie := &models.Suggestion{Title: "Heat", MediaType: models.MediaMovie, SourceID: "949"}
	show := &models.Suggestion{Title: "Severance", MediaType: models.MediaTV}
	for _, sg := range []*models.Suggestion{movie, show} {
		_, err := f.suggestions.Save(ctx, sg)
		require.NoError(t, err)
	}

	id, err := e.RequestMedia(ctx, movie.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, providers.RequestID("req-1"), id)
	require.Len(t, f.reqs["radarr"].Submitted, 1)
	assert.Equal(t, "949", f.reqs["radarr"].Submitted[0].SourceID)

	_, err = e.RequestMedia(ctx, show.ID, nil)
	require.NoError(t, err)
	assert.Len(t, f.reqs["sonarr"].Submitted, 1)

	got, err := f.suggestions.Get(ctx, movie.ID)
	require.NoError(t, err)
	assert.True(t, got.Requested)

	t.Run("proxy wins", func(t *testing.T) {
		f.set(t, "overseerr", "enabled", true)
		_, err := e.RequestMedia(ctx, movie.ID, ptr(4))
		require.NoError(t, err)
		assert.Len(t, f.reqs["overseerr"].Submitted, 1)
		assert.Len(t, f.reqs["radarr"].Submitted, 1)
	})

	t.Run("no request provider", func(t *testing.T) {
		f.set(t, "overseerr", "enabled", false)
		_, err := e.RequestMedia(ctx, show.ID, nil)
		assert.ErrorIs(t, err, ErrNoProviderEnabled)
	})

	t.Run("unknown suggestion", func(t *testing.T) {
		_, err := e.RequestMedia(ctx, 404, nil)
		assert.Error(t, err)
	})
}

func TestRunEnrichesNovelCandidates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.set(t, "gemini", "enabled", true)
	f.candidates(
		providers.Candidate{Title: "Severance", MediaType: "tv"},
		providers.Candidate{Title: "Alien", MediaType: "movie", SourceID: "999"},
		providers.Candidate{Title: "Heat", MediaType: "movie"},
		providers.Candidate{Title: "Blade Runner", MediaType: "movie"},
	)
	_, err := f.suggestions.Save(ctx, &models.Suggestion{Title: "Blade Runner", MediaType: models.MediaMovie})
	require.NoError(t, err)

	f.meta.Details = map[string]*providers.MediaDetails{
		"Severance": {SourceID: "95396", Title: "Severance", Genres: []string{"Drama"}, Networks: []string{"Apple TV+"}, ReleaseDate: "2025-03-21"},
		"Alien":     {SourceID: "348", Title: "Alien", Genres: []string{"Horror", "Science Fiction"}, OriginalLanguage: "en"},
	}
	f.meta.Errs = map[string]error{"Heat": errors.New("boom")}

	f.set(t, "tmdb", "enabled", true)
	res, err := NewRecommendationEngine(f.deps()).Run(ctx, ptr(models.DefaultSearchID), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Severance", "Alien", "Heat"}, f.meta.Lookups, "duplicates are not looked up")
	assert.Equal(t, 3, res.SavedCount, "a failed lookup still saves the candidate")

	stored, err := f.suggestions.List(ctx, map[string]any{"media_type": "tv"})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "95396", stored[0].SourceID)
	assert.Equal(t, []string{"Drama"}, stored[0].Genres)
	assert.Equal(t, []string{"Apple TV+"}, stored[0].Networks)
	assert.Equal(t, "2025-03-21", stored[0].ReleaseDate)

	alien, err := f.suggestions.Get(ctx, res.Candidates[1].SuggestionID)
	require.NoError(t, err)
	assert.Equal(t, "348", alien.SourceID, "looked up id replaces the generated one")
	assert.Equal(t, "en", alien.OriginalLanguage)

	heat, err := f.suggestions.Get(ctx, res.Candidates[2].SuggestionID)
	require.NoError(t, err)
	assert.Empty(t, heat.SourceID)
	assert.Nil(t, heat.Genres)

	t.Run("skipped without a metadata provider", func(t *testing.T) {
		f.set(t, "tmdb", "enabled", false)
		f.candidates(providers.Candidate{Title: "Arrival", MediaType: "movie"})
		res, err := NewRecommendationEngine(f.deps()).Run(ctx, ptr(models.DefaultSearchID), nil)
		require.NoError(t, err)
		assert.Equal(t, 1, res.SavedCount)
		assert.Nil(t, res.Candidates[0].Details)
		assert.Len(t, f.meta.Lookups, 3)
	})
}
