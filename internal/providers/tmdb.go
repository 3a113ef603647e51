package providers

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/desertthunder/curatarr/internal/models"
	"github.com/desertthunder/curatarr/internal/shared"
)

const (
	TMDBDefaultURL   = "https://api.themoviedb.org/3"
	tmdbPosterPrefix = "https://image.tmdb.org/t/p/w500"
)

// TMDBConfig holds the settings of the tmdb group. APIKey is a v4 read access token.
type TMDBConfig struct {
	URL      string
	APIKey   string
	Language string
}

// TMDB implements [Metadata] over The Movie Database API.
type TMDB struct {
	c        *client
	language string
}

type tmdbNamed struct {
	Name string `json:"name"`
}

type tmdbSearch struct {
	Results []struct {
		ID int `json:"id"`
	} `json:"results"`
}

type tmdbDetail struct {
	ID               int         `json:"id"`
	Title            string      `json:"title"`
	Name             string      `json:"name"`
	Genres           []tmdbNamed `json:"genres"`
	Networks         []tmdbNamed `json:"networks"`
	ReleaseDate      string      `json:"release_date"`
	LastAirDate      string      `json:"last_air_date"`
	Status           string      `json:"status"`
	OriginalLanguage string      `json:"original_language"`
	PosterPath       string      `json:"poster_path"`
}

// NewTMDB creates a TMDB metadata client.
func NewTMDB(cfg TMDBConfig, opts ClientOptions) *TMDB {
	if cfg.URL == "" {
		cfg.URL = TMDBDefaultURL
	}
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	c := newClient("tmdb", cfg.URL, opts)
	c.header.Set("Authorization", "Bearer "+cfg.APIKey)
	return &TMDB{c: c, language: cfg.Language}
}

func (t *TMDB) Name() string { return "tmdb" }

// Lookup searches for title and fetches the details of the first match. Series use their last air date
// as the release date.
func (t *TMDB) Lookup(ctx context.Context, title string, mediaType models.MediaType) (*MediaDetails, error) {
	if mediaType != models.MediaMovie && mediaType != models.MediaTV {
		return nil, fmt.Errorf("%w: media type %q", shared.ErrInvalidInput, mediaType)
	}

	q := url.Values{}
	q.Set("query", title)
	q.Set("language", t.language)
	q.Set("page", "1")
	q.Set("include_adult", "false")

	var search tmdbSearch
	if err := t.c.get(ctx, "search", "/search/"+string(mediaType), q, &search); err != nil {
		return nil, err
	}
	if len(search.Results) == 0 {
		return nil, nil
	}

	id := strconv.Itoa(search.Results[0].ID)
	var detail tmdbDetail
	dq := url.Values{}
	dq.Set("language", t.language)
	if err := t.c.get(ctx, "detail", "/"+string(mediaType)+"/"+id, dq, &detail); err != nil {
		return nil, err
	}

	out := &MediaDetails{
		SourceID:         id,
		Title:            detail.Title,
		Status:           detail.Status,
		OriginalLanguage: detail.OriginalLanguage,
		Genres:           names(detail.Genres),
		ReleaseDate:      detail.ReleaseDate,
	}
	if mediaType == models.MediaTV {
		out.Title = detail.Name
		out.ReleaseDate = detail.LastAirDate
		out.Networks = names(detail.Networks)
	}
	if detail.PosterPath != "" {
		out.PosterURL = tmdbPosterPrefix + detail.PosterPath
	}
	return out, nil
}

func names(in []tmdbNamed) []string {
	var out []string
	for _, n := range in {
		if n.Name != "" {
			out = append(out, n.Name)
		}
	}
	return out
}
