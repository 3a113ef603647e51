package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/desertthunder/curatarr/internal/models"
)

const jellyfinHistory = `{"Items":[
	{"Id":"ep2","Name":"Pilot","Type":"Episode","SeriesId":"s1","SeriesName":"Severance","ProviderIds":{"Tmdb":"95396"},"UserData":{"LastPlayedDate":"2025-03-03T10:00:00.0000000Z"}},
	{"Id":"m1","Name":"Dune","Type":"Movie","ProviderIds":{"Tmdb":"438631"},"UserData":{"LastPlayedDate":"2025-03-02T10:00:00Z"}},
	{"Id":"a1","Name":"Song","Type":"Audio","UserData":{"LastPlayedDate":"2025-03-01T12:00:00Z"}},
	{"Id":"m2","Name":"Alien","Type":"Movie","ProviderIds":{},"UserData":{"LastPlayedDate":"2025-03-01T10:00:00Z"}}
]}`

func collect(t *testing.T, seq func(func(HistoryEntry, error) bool)) []HistoryEntry {
	t.Helper()
	var out []HistoryEntry
	for entry, err := range seq {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out = append(out, entry)
	}
	return out
}

func TestJellyfin(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if got := r.Header.Get("Authorization"); got != `MediaBrowser Token="key"` {
			t.Errorf("unexpected auth header %q", got)
		}
		switch r.URL.Path {
		case "/Users":
			w.Write([]byte(`[{"Id":"u1","Name":"alice"},{"Id":"u2","Name":"bob"}]`))
		case "/Users/u1/Items":
			if r.URL.Query().Get("IsFavorite") == "true" {
				w.Write([]byte(`{"Items":[{"Id":"s1","Name":"Severance","Type":"Series","ProviderIds":{"Tmdb":"95396"}}]}`))
				return
			}
			if r.URL.Query().Get("SortBy") != "DatePlayed" {
				t.Errorf("expected history sorted by DatePlayed")
			}
			w.Write([]byte(jellyfinHistory))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	j := NewJellyfin(JellyfinConfig{URL: server.URL, APIKey: "key"}, testOptions())
	ctx := context.Background()
	user := User{ID: "u1", Name: "alice"}

	t.Run("ListUsers", func(t *testing.T) {
		users, err := j.ListUsers(ctx)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(users) != 2 || users[0].Name != "alice" {
			t.Errorf("unexpected users %+v", users)
		}
	})

	t.Run("ListFavorites", func(t *testing.T) {
		refs, err := j.ListFavorites(ctx, user)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(refs) != 1 || refs[0].Title != "Severance" || refs[0].MediaType != models.MediaTV || refs[0].SourceID != "95396" {
			t.Errorf("unexpected favorites %+v", refs)
		}
	})

	t.Run("ListWatchHistory", func(t *testing.T) {
		entries := collect(t, j.ListWatchHistory(ctx, user, nil, 0))
		if len(entries) != 3 {
			t.Fatalf("expected 3 entries (audio skipped), got %d", len(entries))
		}

		first := entries[0]
		if first.Title != "Severance" || first.ExternalID != "s1" || first.MediaType != models.MediaTV {
			t.Errorf("expected episode to collapse onto its series, got %+v", first)
		}
		if !first.WatchedAt.Equal(time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)) {
			t.Errorf("unexpected watched_at %v", first.WatchedAt)
		}
	})

	t.Run("ListWatchHistory Since", func(t *testing.T) {
		since := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
		entries := collect(t, j.ListWatchHistory(ctx, user, &since, 0))
		if len(entries) != 2 {
			t.Fatalf("expected 2 entries after %v, got %d", since, len(entries))
		}
	})

	t.Run("ListWatchHistory Limit", func(t *testing.T) {
		entries := collect(t, j.ListWatchHistory(ctx, user, nil, 1))
		if len(entries) != 1 {
			t.Fatalf("expected 1 entry, got %d", len(entries))
		}
	})

	t.Run("Sequence Is Restartable", func(t *testing.T) {
		seq := j.ListWatchHistory(ctx, user, nil, 0)
		before := requests
		a := collect(t, seq)
		b := collect(t, seq)
		if len(a) != len(b) {
			t.Errorf("expected identical ranges, got %d and %d", len(a), len(b))
		}
		if requests-before != 2 {
			t.Errorf("expected one request per range, got %d", requests-before)
		}
	})
}

func TestJellyfinUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	j := NewJellyfin(JellyfinConfig{URL: server.URL, APIKey: "bad"}, testOptions())
	for _, err := range j.ListWatchHistory(context.Background(), User{ID: "u1"}, nil, 0) {
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected unauthorized, got %v", err)
		}
		return
	}
	t.Fatal("expected the sequence to yield an error")
}

func TestPlex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Plex-Token") != "token" {
			t.Errorf("missing plex token")
		}
		switch r.URL.Path {
		case "/accounts":
			w.Write([]byte(`{"MediaContainer":{"Account":[{"id":0,"name":""},{"id":1,"name":"alice"}]}}`))
		case "/status/sessions/history/all":
			if r.URL.Query().Get("accountID") != "1" {
				t.Errorf("expected accountID=1, got %s", r.URL.Query().Get("accountID"))
			}
			w.Write([]byte(`{"MediaContainer":{"Metadata":[
				{"ratingKey":"10","grandparentRatingKey":"5","type":"episode","title":"Pilot","grandparentTitle":"Severance","viewedAt":1740996000},
				{"ratingKey":"20","type":"movie","title":"Dune","viewedAt":1740909600},
				{"ratingKey":"30","type":"track","title":"Song","viewedAt":1740900000}
			]}}`))
		case "/library/sections":
			w.Write([]byte(`{"MediaContainer":{"Directory":[{"key":"1","type":"movie"},{"key":"2","type":"artist"}]}}`))
		case "/library/sections/1/all":
			w.Write([]byte(`{"MediaContainer":{"Metadata":[{"title":"Dune","userRating":10},{"title":"Cats","userRating":2}]}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	p := NewPlex(PlexConfig{URL: server.URL, APIKey: "token"}, testOptions())
	ctx := context.Background()

	users, err := p.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 1 || users[0].ID != "1" {
		t.Fatalf("expected system account to be skipped, got %+v", users)
	}

	entries := collect(t, p.ListWatchHistory(ctx, users[0], nil, 0))
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Title != "Severance" || entries[0].ExternalID != "5" || entries[0].MediaType != models.MediaTV {
		t.Errorf("unexpected episode mapping %+v", entries[0])
	}
	if entries[1].WatchedAt.Unix() != 1740909600 {
		t.Errorf("unexpected viewedAt %v", entries[1].WatchedAt)
	}

	favorites, err := p.ListFavorites(ctx, users[0])
	if err != nil {
		t.Fatalf("ListFavorites: %v", err)
	}
	if len(favorites) != 1 || favorites[0].Title != "Dune" {
		t.Errorf("expected only highly rated items, got %+v", favorites)
	}
}

func TestTrakt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("trakt-api-key") != "client" {
			t.Errorf("missing trakt-api-key header")
		}
		if r.Header.Get("Authorization") != "Bearer access" {
			t.Errorf("expected bearer token, got %q", r.Header.Get("Authorization"))
		}
		switch r.URL.Path {
		case "/users/settings":
			w.Write([]byte(`{"user":{"username":"alice","ids":{"slug":"alice-slug"}}}`))
		case "/users/alice-slug/history":
			w.Write([]byte(`[
				{"id":2,"watched_at":"2025-03-03T10:00:00.000Z","type":"episode","show":{"title":"Severance","ids":{"trakt":7,"tmdb":95396}}},
				{"id":1,"watched_at":"2025-03-02T10:00:00.000Z","type":"movie","movie":{"title":"Dune","ids":{"trakt":9,"tmdb":438631}}}
			]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	ctx := context.Background()
	cfg := TraktConfig{
		ClientID:      "client",
		ClientSecret:  "secret",
		Authorization: `{"access_token":"access","token_type":"Bearer","expiry":"2999-01-01T00:00:00Z"}`,
		BaseURL:       server.URL,
	}
	tr, err := NewTrakt(ctx, cfg, testOptions())
	if err != nil {
		t.Fatalf("NewTrakt: %v", err)
	}

	users, err := tr.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 1 || users[0].ID != "alice-slug" {
		t.Fatalf("unexpected users %+v", users)
	}

	entries := collect(t, tr.ListWatchHistory(ctx, users[0], nil, 0))
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ExternalID != "7" || entries[0].MediaType != models.MediaTV || entries[0].SourceID != "95396" {
		t.Errorf("unexpected show mapping %+v", entries[0])
	}

	t.Run("Missing Authorization", func(t *testing.T) {
		if _, err := NewTrakt(ctx, TraktConfig{ClientID: "client"}, testOptions()); err == nil {
			t.Error("expected error without a stored token")
		}
	})
}
