package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"

	"github.com/desertthunder/curatarr/internal/models"
	"github.com/desertthunder/curatarr/internal/shared"
)

func TestTMDB(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer token" {
			t.Errorf("unexpected auth header %q", got)
		}
		if got := r.URL.Query().Get("language"); got != "en-US" {
			t.Errorf("expected language en-US, got %q", got)
		}
		switch r.URL.Path {
		case "/search/movie":
			if r.URL.Query().Get("query") == "Nothing" {
				w.Write([]byte(`{"results":[]}`))
				return
			}
			w.Write([]byte(`{"results":[{"id":949},{"id":1}]}`))
		case "/movie/949":
			w.Write([]byte(`{"id":949,"title":"Heat","genres":[{"id":28,"name":"Action"},{"id":80,"name":"Crime"}],
				"release_date":"1995-12-15","status":"Released","original_language":"en","poster_path":"/heat.jpg"}`))
		case "/search/tv":
			w.Write([]byte(`{"results":[{"id":70523}]}`))
		case "/tv/70523":
			w.Write([]byte(`{"id":70523,"name":"Dark","genres":[{"name":"Drama"}],"networks":[{"name":"Netflix"},{"name":""}],
				"first_air_date":"2017-12-01","last_air_date":"2020-06-27","status":"Ended","original_language":"de"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	tmdb := NewTMDB(TMDBConfig{URL: server.URL, APIKey: "token"}, testOptions())
	ctx := context.Background()

	t.Run("Movie", func(t *testing.T) {
		got, err := tmdb.Lookup(ctx, "Heat", models.MediaMovie)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got.SourceID != "949" || got.Title != "Heat" || got.ReleaseDate != "1995-12-15" || got.Status != "Released" {
			t.Errorf("unexpected details %+v", got)
		}
		if !slices.Equal(got.Genres, []string{"Action", "Crime"}) {
			t.Errorf("unexpected genres %v", got.Genres)
		}
		if got.Networks != nil {
			t.Errorf("expected no networks for a movie, got %v", got.Networks)
		}
		if got.PosterURL != "https://image.tmdb.org/t/p/w500/heat.jpg" {
			t.Errorf("unexpected poster %q", got.PosterURL)
		}
	})

	t.Run("Series", func(t *testing.T) {
		got, err := tmdb.Lookup(ctx, "Dark", models.MediaTV)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got.Title != "Dark" || got.ReleaseDate != "2020-06-27" || got.OriginalLanguage != "de" {
			t.Errorf("unexpected details %+v", got)
		}
		if !slices.Equal(got.Networks, []string{"Netflix"}) {
			t.Errorf("unexpected networks %v", got.Networks)
		}
		if got.PosterURL != "" {
			t.Errorf("expected no poster, got %q", got.PosterURL)
		}
	})

	t.Run("NoMatch", func(t *testing.T) {
		got, err := tmdb.Lookup(ctx, "Nothing", models.MediaMovie)
		if err != nil || got != nil {
			t.Errorf("expected no details and no error, got %+v, %v", got, err)
		}
	})

	t.Run("InvalidMediaType", func(t *testing.T) {
		if _, err := tmdb.Lookup(ctx, "Heat", models.MediaType("podcast")); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestTMDBUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := NewTMDB(TMDBConfig{URL: server.URL, APIKey: "bad"}, testOptions()).Lookup(context.Background(), "Heat", models.MediaMovie)
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}
