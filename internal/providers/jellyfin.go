package providers

import (
	"context"
	"fmt"
	"iter"
	"net/url"
	"strconv"
	"time"

	"github.com/desertthunder/curatarr/internal/models"
)

// JellyfinConfig holds the settings of the jellyfin group.
type JellyfinConfig struct {
	URL    string
	APIKey string
}

// Jellyfin implements [Library] over the Jellyfin REST API.
type Jellyfin struct {
	c *client
}

type jellyfinUser struct {
	ID   string `json:"Id"`
	Name string `json:"Name"`
}

type jellyfinItem struct {
	ID          string            `json:"Id"`
	Name        string            `json:"Name"`
	Type        string            `json:"Type"`
	SeriesID    string            `json:"SeriesId"`
	SeriesName  string            `json:"SeriesName"`
	ProviderIDs map[string]string `json:"ProviderIds"`
	UserData    struct {
		LastPlayedDate string `json:"LastPlayedDate"`
		IsFavorite     bool   `json:"IsFavorite"`
	} `json:"UserData"`
}

type jellyfinItems struct {
	Items []jellyfinItem `json:"Items"`
}

// NewJellyfin creates a Jellyfin library client.
func NewJellyfin(cfg JellyfinConfig, opts ClientOptions) *Jellyfin {
	c := newClient("jellyfin", cfg.URL, opts)
	c.header.Set("Authorization", fmt.Sprintf("MediaBrowser Token=%q", cfg.APIKey))
	return &Jellyfin{c: c}
}

func (j *Jellyfin) Name() string { return "jellyfin" }

func (j *Jellyfin) ListUsers(ctx context.Context) ([]User, error) {
	var raw []jellyfinUser
	if err := j.c.get(ctx, "list users", "/Users", nil, &raw); err != nil {
		return nil, err
	}

	users := make([]User, 0, len(raw))
	for _, u := range raw {
		users = append(users, User{ID: u.ID, Name: u.Name})
	}
	return users, nil
}

func (j *Jellyfin) ListFavorites(ctx context.Context, user User) ([]MediaRef, error) {
	q := url.Values{}
	q.Set("Recursive", "true")
	q.Set("IncludeItemTypes", "Movie,Series")
	q.Set("IsFavorite", "true")
	q.Set("SortBy", "SortName")
	q.Set("SortOrder", "Ascending")
	q.Set("Fields", "ProviderIds,UserData")
	q.Set("enableUserData", "true")

	var resp jellyfinItems
	if err := j.c.get(ctx, "list favorites", "/Users/"+url.PathEscape(user.ID)+"/Items", q, &resp); err != nil {
		return nil, err
	}

	refs := make([]MediaRef, 0, len(resp.Items))
	for _, item := range resp.Items {
		if ref, ok := item.ref(); ok {
			refs = append(refs, ref.MediaRef)
		}
	}
	return refs, nil
}

func (j *Jellyfin) ListWatchHistory(ctx context.Context, user User, since *time.Time, limit int) iter.Seq2[HistoryEntry, error] {
	return func(yield func(HistoryEntry, error) bool) {
		q := url.Values{}
		q.Set("Recursive", "true")
		q.Set("IncludeItemTypes", "Movie,Episode")
		q.Set("SortBy", "DatePlayed")
		q.Set("SortOrder", "Descending")
		q.Set("IsPlayed", "true")
		q.Set("enableUserData", "true")
		q.Set("Fields", "ProviderIds")
		if limit > 0 && since == nil {
			q.Set("Limit", strconv.Itoa(limit))
		}

		var resp jellyfinItems
		if err := j.c.get(ctx, "list history", "/Users/"+url.PathEscape(user.ID)+"/Items", q, &resp); err != nil {
			yield(HistoryEntry{}, err)
			return
		}

		n := 0
		for _, item := range resp.Items {
			ref, ok := item.ref()
			if !ok {
				continue
			}
			watched, err := time.Parse(time.RFC3339Nano, item.UserData.LastPlayedDate)
			if err != nil {
				if !yield(HistoryEntry{}, malformed("jellyfin", "list history", fmt.Errorf("bad LastPlayedDate %q: %w", item.UserData.LastPlayedDate, err))) {
					return
				}
				continue
			}
			if since != nil && !watched.After(*since) {
				return
			}
			if limit > 0 && n >= limit {
				return
			}
			n++
			entry := HistoryEntry{
				ExternalID: ref.id,
				Title:      ref.Title,
				MediaType:  ref.MediaType,
				SourceID:   ref.SourceID,
				WatchedAt:  watched.UTC(),
			}
			if !yield(entry, nil) {
				return
			}
		}
	}
}

type jellyfinRef struct {
	MediaRef
	id string
}

// ref collapses episodes onto their series.
func (i jellyfinItem) ref() (jellyfinRef, bool) {
	r := jellyfinRef{MediaRef: MediaRef{SourceID: i.ProviderIDs["Tmdb"]}}
	switch i.Type {
	case "Episode":
		r.Title, r.id, r.MediaType = i.SeriesName, i.SeriesID, models.MediaTV
	case "Series":
		r.Title, r.id, r.MediaType = i.Name, i.ID, models.MediaTV
	case "Movie":
		r.Title, r.id, r.MediaType = i.Name, i.ID, models.MediaMovie
	default:
		return r, false
	}
	return r, r.Title != "" && r.id != ""
}
