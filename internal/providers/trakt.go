package providers

import (
	"context"
	"fmt"
	"iter"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"

	"github.com/desertthunder/curatarr/internal/models"
)

const (
	traktBaseURL  = "https://api.trakt.tv"
	traktAuthURL  = "https://trakt.tv/oauth/authorize"
	traktTokenURL = "https://api.trakt.tv/oauth/token"

	// TraktOOBRedirect is the out-of-band redirect used when no callback server is available.
	TraktOOBRedirect = "urn:ietf:wg:oauth:2.0:oob"
)

// TraktConfig holds the settings of the trakt group.
//
// Authorization is the JSON encoded [oauth2.Token] stored by the trakt auth flow.
type TraktConfig struct {
	ClientID      string
	ClientSecret  string
	RedirectURI   string
	Authorization string
	BaseURL       string
}

// Trakt implements [Library] over the Trakt v2 API.
type Trakt struct {
	c *client
}

type traktIDs struct {
	Trakt int    `json:"trakt"`
	Slug  string `json:"slug"`
	TMDB  int    `json:"tmdb"`
}

type traktMedia struct {
	Title string   `json:"title"`
	IDs   traktIDs `json:"ids"`
}

type traktItem struct {
	ID        int64       `json:"id"`
	WatchedAt time.Time   `json:"watched_at"`
	Type      string      `json:"type"`
	Movie     *traktMedia `json:"movie"`
	Show      *traktMedia `json:"show"`
}

type traktSettings struct {
	User struct {
		Username string   `json:"username"`
		Name     string   `json:"name"`
		IDs      traktIDs `json:"ids"`
	} `json:"user"`
}

// TraktOAuthConfig returns the authorization code flow configuration for the given client credentials.
func TraktOAuthConfig(cfg TraktConfig) *oauth2.Config {
	redirect := cfg.RedirectURI
	if redirect == "" {
		redirect = TraktOOBRedirect
	}
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  redirect,
		Endpoint: oauth2.Endpoint{
			AuthURL:  traktAuthURL,
			TokenURL: traktTokenURL,
		},
	}
}

// ParseTraktToken decodes the stored authorization value.
func ParseTraktToken(raw string) (*oauth2.Token, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("trakt is not authorized, run `curatarr trakt auth`")
	}
	var token oauth2.Token
	if err := json.Unmarshal([]byte(raw), &token); err != nil {
		return nil, fmt.Errorf("invalid trakt authorization: %w", err)
	}
	return &token, nil
}

// EncodeTraktToken encodes a token for storage in the trakt authorization setting.
func EncodeTraktToken(token *oauth2.Token) (string, error) {
	data, err := json.Marshal(token)
	if err != nil {
		return "", fmt.Errorf("failed to encode trakt token: %w", err)
	}
	return string(data), nil
}

// NewTrakt creates a Trakt client authenticated with the stored OAuth token.
func NewTrakt(ctx context.Context, cfg TraktConfig, opts ClientOptions) (*Trakt, error) {
	token, err := ParseTraktToken(cfg.Authorization)
	if err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = traktBaseURL
	}

	opts.HTTPClient = TraktOAuthConfig(cfg).Client(ctx, token)
	c := newClient("trakt", cfg.BaseURL, opts)
	c.header.Set("trakt-api-version", "2")
	c.header.Set("trakt-api-key", cfg.ClientID)
	return &Trakt{c: c}, nil
}

func (t *Trakt) Name() string { return "trakt" }

// ListUsers returns the authorized account. Trakt tokens are scoped to a single user.
func (t *Trakt) ListUsers(ctx context.Context) ([]User, error) {
	var resp traktSettings
	if err := t.c.get(ctx, "list users", "/users/settings", nil, &resp); err != nil {
		return nil, err
	}
	if resp.User.Username == "" {
		return nil, malformed("trakt", "list users", fmt.Errorf("settings response has no username"))
	}

	id := resp.User.IDs.Slug
	if id == "" {
		id = resp.User.Username
	}
	return []User{{ID: id, Name: resp.User.Username}}, nil
}

func (t *Trakt) ListFavorites(ctx context.Context, user User) ([]MediaRef, error) {
	var items []traktItem
	if err := t.c.get(ctx, "list favorites", "/users/"+url.PathEscape(user.ID)+"/favorites", nil, &items); err != nil {
		return nil, err
	}

	refs := make([]MediaRef, 0, len(items))
	for _, item := range items {
		if media, mt, ok := item.media(); ok {
			refs = append(refs, MediaRef{Title: media.Title, MediaType: mt, SourceID: tmdbID(media.IDs)})
		}
	}
	return refs, nil
}

func (t *Trakt) ListWatchHistory(ctx context.Context, user User, since *time.Time, limit int) iter.Seq2[HistoryEntry, error] {
	return func(yield func(HistoryEntry, error) bool) {
		q := url.Values{}
		if limit > 0 {
			q.Set("limit", strconv.Itoa(limit))
		}
		if since != nil {
			q.Set("start_at", since.UTC().Add(time.Second).Format(time.RFC3339))
		}

		var items []traktItem
		if err := t.c.get(ctx, "list history", "/users/"+url.PathEscape(user.ID)+"/history", q, &items); err != nil {
			yield(HistoryEntry{}, err)
			return
		}

		for i, item := range items {
			if limit > 0 && i >= limit {
				return
			}
			media, mt, ok := item.media()
			if !ok {
				continue
			}
			if since != nil && !item.WatchedAt.After(*since) {
				return
			}
			entry := HistoryEntry{
				ExternalID: strconv.Itoa(media.IDs.Trakt),
				Title:      media.Title,
				MediaType:  mt,
				SourceID:   tmdbID(media.IDs),
				WatchedAt:  item.WatchedAt.UTC(),
			}
			if !yield(entry, nil) {
				return
			}
		}
	}
}

// media collapses episodes onto their show.
func (i traktItem) media() (*traktMedia, models.MediaType, bool) {
	switch {
	case i.Movie != nil:
		return i.Movie, models.MediaMovie, i.Movie.Title != ""
	case i.Show != nil:
		return i.Show, models.MediaTV, i.Show.Title != ""
	}
	return nil, "", false
}

func tmdbID(ids traktIDs) string {
	if ids.TMDB == 0 {
		return ""
	}
	return strconv.Itoa(ids.TMDB)
}
