package registry

import (
	"context"
	"fmt"

	"github.com/desertthunder/curatarr/internal/providers"
	"github.com/desertthunder/curatarr/internal/settings"
)

// Factory builds the provider for a settings group from its values and the app group's values.
type Factory func(ctx context.Context, name string, group, app settings.Values) (any, error)

// NewFactory returns the [Factory] for every built-in provider.
func NewFactory(opts providers.ClientOptions) Factory {
	return func(ctx context.Context, name string, v, app settings.Values) (any, error) {
		switch name {
		case "jellyfin":
			return providers.NewJellyfin(providers.JellyfinConfig{URL: v.String("url"), APIKey: v.String("api_key")}, opts), nil
		case "plex":
			return providers.NewPlex(providers.PlexConfig{URL: v.String("url"), APIKey: v.String("api_key")}, opts), nil
		case "trakt":
			return providers.NewTrakt(ctx, providers.TraktConfig{
				ClientID:      v.String("client_id"),
				ClientSecret:  v.String("client_secret"),
				RedirectURI:   v.String("redirect_uri"),
				Authorization: v.String("authorization"),
			}, opts)
		case "radarr", "sonarr":
			cfg := providers.ArrConfig{
				URL:              v.String("url"),
				APIKey:           v.String("api_key"),
				DefaultProfileID: v.IntPtr("default_quality_profile_id"),
				RootDir:          v.String("root_dir_path"),
				SearchOnAdd:      !app.Bool("request_only"),
			}
			if name == "radarr" {
				return providers.NewRadarr(cfg, opts), nil
			}
			cfg.LanguageProfileID = v.IntPtr("language_profile_id")
			return providers.NewSonarr(cfg, opts), nil
		case "overseerr", "jellyseerr":
			cfg := providers.SeerrConfig{
				URL:                   v.String("url"),
				APIKey:                v.String("api_key"),
				DefaultUser:           v.String("default_user"),
				DefaultMovieProfileID: v.IntPtr("default_radarr_quality_profile_id"),
				DefaultTVProfileID:    v.IntPtr("default_sonarr_quality_profile_id"),
			}
			if name == "overseerr" {
				return providers.NewOverseerr(cfg, opts), nil
			}
			return providers.NewJellyseerr(cfg, opts), nil
		case "gemini":
			return providers.NewGemini(ctx, providers.GeminiConfig{
				APIKey:         v.String("api_key"),
				Model:          v.String("model"),
				Temperature:    v.Float("temperature", 0.7),
				ThinkingBudget: v.Float("thinking_budget", -1),
			}, opts)
		case "ollama":
			return providers.NewOllama(providers.OllamaConfig{
				BaseURL:     v.String("base_url"),
				Model:       v.String("model"),
				Temperature: v.Float("temperature", 0.7),
			}, opts), nil
		case "openai":
			return providers.NewOpenAI(ctx, providers.OpenAIConfig{
				APIKey:      v.String("api_key"),
				BaseURL:     v.String("base_url"),
				Model:       v.String("model"),
				Temperature: v.Float("temperature", 0.7),
			}, opts)
		case "tmdb":
			return providers.NewTMDB(providers.TMDBConfig{
				URL:      v.String("url"),
				APIKey:   v.String("api_key"),
				Language: v.String("language"),
			}, opts), nil
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
		}
	}
}
