package providers

import (
	"context"
	"iter"
	"net/url"
	"strconv"
	"time"

	"github.com/desertthunder/curatarr/internal/models"
)

// PlexConfig holds the settings of the plex group.
type PlexConfig struct {
	URL    string
	APIKey string // X-Plex-Token
}

// Plex implements [Library] over the Plex Media Server JSON API.
type Plex struct {
	c *client
}

type plexAccount struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type plexMetadata struct {
	RatingKey            string  `json:"ratingKey"`
	GrandparentRatingKey string  `json:"grandparentRatingKey"`
	Type                 string  `json:"type"`
	Title                string  `json:"title"`
	GrandparentTitle     string  `json:"grandparentTitle"`
	ViewedAt             int64   `json:"viewedAt"`
	UserRating           float64 `json:"userRating"`
}

type plexDirectory struct {
	Key  string `json:"key"`
	Type string `json:"type"`
}

type plexContainer struct {
	MediaContainer struct {
		Account   []plexAccount   `json:"Account"`
		Metadata  []plexMetadata  `json:"Metadata"`
		Directory []plexDirectory `json:"Directory"`
	} `json:"MediaContainer"`
}

// favoriteRating is the minimum user rating (out of 10) for an item to count as a favorite.
const favoriteRating = 9.0

// NewPlex creates a Plex library client.
func NewPlex(cfg PlexConfig, opts ClientOptions) *Plex {
	c := newClient("plex", cfg.URL, opts)
	c.header.Set("X-Plex-Token", cfg.APIKey)
	return &Plex{c: c}
}

func (p *Plex) Name() string { return "plex" }

// ListUsers skips account 0, the server's internal system account.
func (p *Plex) ListUsers(ctx context.Context) ([]User, error) {
	var resp plexContainer
	if err := p.c.get(ctx, "list users", "/accounts", nil, &resp); err != nil {
		return nil, err
	}

	var users []User
	for _, a := range resp.MediaContainer.Account {
		if a.ID == 0 || a.Name == "" {
			continue
		}
		users = append(users, User{ID: strconv.Itoa(a.ID), Name: a.Name})
	}
	return users, nil
}

// ListFavorites returns highly rated movies and shows. Ratings on Plex are server-wide, so user is unused.
func (p *Plex) ListFavorites(ctx context.Context, _ User) ([]MediaRef, error) {
	var sections plexContainer
	if err := p.c.get(ctx, "list sections", "/library/sections", nil, &sections); err != nil {
		return nil, err
	}

	var refs []MediaRef
	for _, dir := range sections.MediaContainer.Directory {
		var mt models.MediaType
		switch dir.Type {
		case "movie":
			mt = models.MediaMovie
		case "show":
			mt = models.MediaTV
		default:
			continue
		}

		var items plexContainer
		if err := p.c.get(ctx, "list favorites", "/library/sections/"+url.PathEscape(dir.Key)+"/all", nil, &items); err != nil {
			return nil, err
		}
		for _, m := range items.MediaContainer.Metadata {
			if m.UserRating >= favoriteRating && m.Title != "" {
				refs = append(refs, MediaRef{Title: m.Title, MediaType: mt})
			}
		}
	}
	return refs, nil
}

func (p *Plex) ListWatchHistory(ctx context.Context, user User, since *time.Time, limit int) iter.Seq2[HistoryEntry, error] {
	return func(yield func(HistoryEntry, error) bool) {
		q := url.Values{}
		q.Set("accountID", user.ID)
		q.Set("sort", "viewedAt:desc")
		if since != nil {
			q.Set("viewedAt>", strconv.FormatInt(since.Unix(), 10))
		}

		var resp plexContainer
		if err := p.c.get(ctx, "list history", "/status/sessions/history/all", q, &resp); err != nil {
			yield(HistoryEntry{}, err)
			return
		}

		n := 0
		for _, m := range resp.MediaContainer.Metadata {
			entry := HistoryEntry{WatchedAt: time.Unix(m.ViewedAt, 0).UTC()}
			switch m.Type {
			case "episode":
				entry.Title, entry.ExternalID, entry.MediaType = m.GrandparentTitle, m.GrandparentRatingKey, models.MediaTV
			case "show":
				entry.Title, entry.ExternalID, entry.MediaType = m.Title, m.RatingKey, models.MediaTV
			case "movie":
				entry.Title, entry.ExternalID, entry.MediaType = m.Title, m.RatingKey, models.MediaMovie
			default:
				continue
			}
			if entry.Title == "" || entry.ExternalID == "" {
				continue
			}
			if since != nil && !entry.WatchedAt.After(*since) {
				return
			}
			if limit > 0 && n >= limit {
				return
			}
			n++
			if !yield(entry, nil) {
				return
			}
		}
	}
}
