package providers

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/desertthunder/curatarr/internal/models"
	"github.com/desertthunder/curatarr/internal/shared"
)

// ArrConfig holds the settings of the radarr or sonarr group.
type ArrConfig struct {
	URL              string
	APIKey           string
	DefaultProfileID *int
	RootDir          string
	// LanguageProfileID is sent with Sonarr series on v3 servers. Newer servers have no language profiles.
	LanguageProfileID *int
	// SearchOnAdd triggers an immediate search after the title is added. It is false when app.request_only is set.
	SearchOnAdd bool
}

// Arr implements [Request] for Radarr (movies) and Sonarr (series), which share the v3 API shape.
type Arr struct {
	c         *client
	name      string
	mediaType models.MediaType
	resource  string // "movie" or "series"
	cfg       ArrConfig
}

type arrProfile struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// NewRadarr creates a Radarr request client.
func NewRadarr(cfg ArrConfig, opts ClientOptions) *Arr {
	if cfg.RootDir == "" {
		cfg.RootDir = "/movies"
	}
	return newArr("radarr", models.MediaMovie, "movie", cfg, opts)
}

// NewSonarr creates a Sonarr request client.
func NewSonarr(cfg ArrConfig, opts ClientOptions) *Arr {
	if cfg.RootDir == "" {
		cfg.RootDir = "/tv"
	}
	return newArr("sonarr", models.MediaTV, "series", cfg, opts)
}

func newArr(name string, mt models.MediaType, resource string, cfg ArrConfig, opts ClientOptions) *Arr {
	c := newClient(name, cfg.URL+"/api/v3", opts)
	c.header.Set("X-Api-Key", cfg.APIKey)
	return &Arr{c: c, name: name, mediaType: mt, resource: resource, cfg: cfg}
}

func (a *Arr) Name() string { return a.name }

// MediaType reports the only media type this service accepts.
func (a *Arr) MediaType() models.MediaType { return a.mediaType }

func (a *Arr) ListQualityProfiles(ctx context.Context, mediaType models.MediaType) ([]Profile, error) {
	if mediaType != "" && mediaType != a.mediaType {
		return nil, fmt.Errorf("%w: %s only handles %s requests", shared.ErrInvalidInput, a.name, a.mediaType)
	}

	var raw []arrProfile
	if err := a.c.get(ctx, "list quality profiles", "/qualityprofile", nil, &raw); err != nil {
		return nil, err
	}

	profiles := make([]Profile, 0, len(raw))
	for _, p := range raw {
		profiles = append(profiles, Profile(p))
	}
	return profiles, nil
}

// SubmitRequest looks the title up by TMDB id (or by title when the id is unknown) and adds it.
func (a *Arr) SubmitRequest(ctx context.Context, ref MediaRef, profileID *int) (RequestID, error) {
	if ref.MediaType != a.mediaType {
		return "", fmt.Errorf("%s only handles %s requests, got %s", a.name, a.mediaType, ref.MediaType)
	}

	if profileID == nil {
		profileID = a.cfg.DefaultProfileID
	}
	if profileID == nil {
		return "", fmt.Errorf("%s: no quality profile given and no default_quality_profile_id set", a.name)
	}

	item, err := a.lookup(ctx, ref)
	if err != nil {
		return "", err
	}

	item["qualityProfileId"] = *profileID
	item["rootFolderPath"] = a.cfg.RootDir
	item["monitored"] = true
	if a.resource == "movie" {
		item["addOptions"] = map[string]any{"searchForMovie": a.cfg.SearchOnAdd}
	} else {
		item["seasonFolder"] = true
		if a.cfg.LanguageProfileID != nil {
			item["languageProfileId"] = *a.cfg.LanguageProfileID
		}
		item["addOptions"] = map[string]any{"searchForMissingEpisodes": a.cfg.SearchOnAdd}
	}

	var created struct {
		ID int `json:"id"`
	}
	if err := a.c.post(ctx, "submit request", "/"+a.resource, item, &created); err != nil {
		return "", err
	}
	return RequestID(strconv.Itoa(created.ID)), nil
}

func (a *Arr) lookup(ctx context.Context, ref MediaRef) (map[string]any, error) {
	if ref.SourceID != "" && a.resource == "movie" {
		var item map[string]any
		q := url.Values{"tmdbId": {ref.SourceID}}
		if err := a.c.get(ctx, "lookup", "/movie/lookup/tmdb", q, &item); err != nil {
			return nil, err
		}
		if len(item) == 0 {
			return nil, malformed(a.name, "lookup", fmt.Errorf("empty lookup result for tmdb %s", ref.SourceID))
		}
		return item, nil
	}

	term := ref.Title
	if ref.SourceID != "" {
		term = "tmdb:" + ref.SourceID
	}

	var items []map[string]any
	if err := a.c.get(ctx, "lookup", "/"+a.resource+"/lookup", url.Values{"term": {term}}, &items); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%s: no match for %q", a.name, term)
	}
	return items[0], nil
}

// ListKnownUsers returns nil: Radarr and Sonarr have no user accounts.
func (a *Arr) ListKnownUsers(context.Context) ([]User, error) {
	return nil, nil
}
