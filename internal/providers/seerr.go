package providers

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/desertthunder/curatarr/internal/models"
)

// SeerrConfig holds the settings of the overseerr or jellyseerr group.
type SeerrConfig struct {
	URL                   string
	APIKey                string
	DefaultUser           string // displayName of the account requests are made on behalf of
	DefaultMovieProfileID *int
	DefaultTVProfileID    *int
}

// Seerr implements [Request] for Overseerr and Jellyseerr, which share the same v1 API.
type Seerr struct {
	c    *client
	name string
	cfg  SeerrConfig
}

type seerrUser struct {
	ID          int    `json:"id"`
	DisplayName string `json:"displayName"`
}

type seerrServer struct {
	ID        int  `json:"id"`
	IsDefault bool `json:"isDefault"`
	Is4K      bool `json:"is4k"`
}

type seerrSeason struct {
	SeasonNumber int `json:"seasonNumber"`
}

type seerrMedia struct {
	ID        int           `json:"id"`
	MediaType string        `json:"mediaType"`
	Seasons   []seerrSeason `json:"seasons"`
}

// NewOverseerr creates an Overseerr request client.
func NewOverseerr(cfg SeerrConfig, opts ClientOptions) *Seerr {
	return newSeerr("overseerr", cfg, opts)
}

// NewJellyseerr creates a Jellyseerr request client.
func NewJellyseerr(cfg SeerrConfig, opts ClientOptions) *Seerr {
	return newSeerr("jellyseerr", cfg, opts)
}

func newSeerr(name string, cfg SeerrConfig, opts ClientOptions) *Seerr {
	c := newClient(name, cfg.URL+"/api/v1", opts)
	c.header.Set("X-Api-Key", cfg.APIKey)
	return &Seerr{c: c, name: name, cfg: cfg}
}

func (s *Seerr) Name() string { return s.name }

func (s *Seerr) ListKnownUsers(ctx context.Context) ([]User, error) {
	var resp struct {
		Results []seerrUser `json:"results"`
	}
	q := url.Values{"skip": {"0"}, "take": {"100"}}
	if err := s.c.get(ctx, "list users", "/user", q, &resp); err != nil {
		return nil, err
	}

	users := make([]User, 0, len(resp.Results))
	for _, u := range resp.Results {
		users = append(users, User{ID: strconv.Itoa(u.ID), Name: u.DisplayName})
	}
	return users, nil
}

// ListQualityProfiles returns the profiles of the default Radarr (movie) or Sonarr (tv) server configured in the proxy.
func (s *Seerr) ListQualityProfiles(ctx context.Context, mediaType models.MediaType) ([]Profile, error) {
	service := "radarr"
	if mediaType == models.MediaTV {
		service = "sonarr"
	}

	var servers []seerrServer
	if err := s.c.get(ctx, "list servers", "/service/"+service, nil, &servers); err != nil {
		return nil, err
	}

	var server *seerrServer
	for i := range servers {
		if servers[i].IsDefault && !servers[i].Is4K {
			server = &servers[i]
			break
		}
	}
	if server == nil {
		return nil, fmt.Errorf("%s has no default %s server", s.name, service)
	}

	var detail struct {
		Profiles []arrProfile `json:"profiles"`
	}
	if err := s.c.get(ctx, "list quality profiles", fmt.Sprintf("/service/%s/%d", service, server.ID), nil, &detail); err != nil {
		return nil, err
	}

	profiles := make([]Profile, 0, len(detail.Profiles))
	for _, p := range detail.Profiles {
		profiles = append(profiles, Profile(p))
	}
	return profiles, nil
}

func (s *Seerr) SubmitRequest(ctx context.Context, ref MediaRef, profileID *int) (RequestID, error) {
	if ref.MediaType != models.MediaMovie && ref.MediaType != models.MediaTV {
		return "", fmt.Errorf("invalid media type %q", ref.MediaType)
	}

	media, err := s.lookup(ctx, ref)
	if err != nil {
		return "", err
	}

	payload := map[string]any{
		"mediaType": string(ref.MediaType),
		"mediaId":   media.ID,
		"is4k":      false,
	}

	if profileID == nil {
		if ref.MediaType == models.MediaMovie {
			profileID = s.cfg.DefaultMovieProfileID
		} else {
			profileID = s.cfg.DefaultTVProfileID
		}
	}
	if profileID != nil {
		payload["profileId"] = *profileID
	}

	if s.cfg.DefaultUser != "" {
		userID, err := s.userID(ctx, s.cfg.DefaultUser)
		if err != nil {
			return "", err
		}
		payload["userId"] = userID
	}

	if ref.MediaType == models.MediaTV {
		seasons := []int{}
		for _, season := range media.Seasons {
			if season.SeasonNumber != 0 {
				seasons = append(seasons, season.SeasonNumber)
			}
		}
		payload["seasons"] = seasons
	}

	var created struct {
		ID int `json:"id"`
	}
	if err := s.c.post(ctx, "submit request", "/request", payload, &created); err != nil {
		return "", err
	}
	return RequestID(strconv.Itoa(created.ID)), nil
}

func (s *Seerr) lookup(ctx context.Context, ref MediaRef) (*seerrMedia, error) {
	if ref.SourceID != "" {
		var media seerrMedia
		if err := s.c.get(ctx, "lookup", "/"+string(ref.MediaType)+"/"+url.PathEscape(ref.SourceID), nil, &media); err != nil {
			return nil, err
		}
		return &media, nil
	}

	var resp struct {
		Results []seerrMedia `json:"results"`
	}
	if err := s.c.get(ctx, "search", "/search", url.Values{"query": {ref.Title}}, &resp); err != nil {
		return nil, err
	}
	for i := range resp.Results {
		if resp.Results[i].MediaType == string(ref.MediaType) {
			media := resp.Results[i]
			if ref.MediaType == models.MediaTV {
				return s.lookup(ctx, MediaRef{Title: ref.Title, MediaType: ref.MediaType, SourceID: strconv.Itoa(media.ID)})
			}
			return &media, nil
		}
	}
	return nil, fmt.Errorf("%s: no %s match for %q", s.name, ref.MediaType, ref.Title)
}

func (s *Seerr) userID(ctx context.Context, displayName string) (int, error) {
	users, err := s.ListKnownUsers(ctx)
	if err != nil {
		return 0, err
	}
	for _, u := range users {
		if strings.EqualFold(u.Name, displayName) {
			return strconv.Atoi(u.ID)
		}
	}
	return 0, fmt.Errorf("%s: unknown user %q", s.name, displayName)
}
