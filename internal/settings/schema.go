package settings

import (
	"sort"

	"github.com/desertthunder/curatarr/internal/providers"
)

// FieldType is the declared type of a setting value.
type FieldType string

const (
	TypeString FieldType = "string"
	TypeInt    FieldType = "int"
	TypeFloat  FieldType = "float"
	TypeBool   FieldType = "bool"
	TypeURL    FieldType = "url"
)

// FieldSpec describes one key of a settings group.
type FieldSpec struct {
	Key         string    `json:"key"`
	Type        FieldType `json:"type"`
	Default     any       `json:"default"`
	Description string    `json:"description"`
	Required    bool      `json:"required"`
	Hidden      bool      `json:"hidden"`
}

// GroupSchema describes a settings group. Provider groups carry their capabilities and request tier.
type GroupSchema struct {
	Name         string                `json:"name"`
	Fields       map[string]FieldSpec  `json:"fields"`
	Capabilities providers.Capability  `json:"-"`
	Tier         providers.RequestTier `json:"tier,omitempty"`
}

// IsProvider reports whether the group configures an external provider.
func (g GroupSchema) IsProvider() bool { return g.Capabilities != 0 }

// Keys returns the field keys in sorted order.
func (g GroupSchema) Keys() []string {
	keys := make([]string, 0, len(g.Fields))
	for k := range g.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AppGroup is the group holding application-wide settings.
const AppGroup = "app"

const (
	DefaultPromptTemplate = "Recommend {{limit}} tv series or movies similar to {{media_name}}. \n\nExclude the following media from your recommendations: {{all_media}}"
	DefaultSystemPrompt   = "You are a movie recommendation assistant. Your job is to suggest movies to users based on their preferences and current context."
)

func fields(specs ...FieldSpec) map[string]FieldSpec {
	m := make(map[string]FieldSpec, len(specs))
	for _, s := range specs {
		m[s.Key] = s
	}
	return m
}

func enabled(def bool, name string) FieldSpec {
	return FieldSpec{Key: "enabled", Type: TypeBool, Default: def, Description: "Enable or disable " + name + " integration."}
}

func baseProvider(kind string) FieldSpec {
	return FieldSpec{Key: "base_provider", Type: TypeString, Default: kind, Description: "Base provider type.", Hidden: true}
}

func libraryGroup(name, title, url string) GroupSchema {
	return GroupSchema{
		Name:         name,
		Capabilities: providers.CapLibrary,
		Tier:         providers.TierNone,
		Fields: fields(
			enabled(false, title),
			FieldSpec{Key: "url", Type: TypeURL, Default: url, Description: title + " server URL", Required: true},
			FieldSpec{Key: "api_key", Type: TypeString, Description: title + " API key", Required: true},
			FieldSpec{Key: "default_user", Type: TypeString, Description: title + " user to use for watch history and favorites, all users when unset."},
			FieldSpec{Key: "enable_media", Type: TypeBool, Default: true, Description: "Include favorites from this library in prompts."},
			FieldSpec{Key: "enable_history", Type: TypeBool, Default: true, Description: "Sync watch history from this library."},
			baseProvider("library"),
		),
	}
}

func directGroup(name, title, url, root string, extra ...FieldSpec) GroupSchema {
	specs := append([]FieldSpec{
		enabled(true, title),
		{Key: "url", Type: TypeURL, Default: url, Description: title + " server URL", Required: true},
		{Key: "api_key", Type: TypeString, Description: title + " API key", Required: true},
		{Key: "default_quality_profile_id", Type: TypeInt, Description: title + " default quality profile ID"},
		{Key: "root_dir_path", Type: TypeString, Default: root, Description: "Root directory path for " + title},
	}, extra...)
	return GroupSchema{
		Name:         name,
		Capabilities: providers.CapRequest,
		Tier:         providers.TierDirect,
		Fields:       fields(append(specs, baseProvider("request"))...),
	}
}

func proxyGroup(name, title, url string) GroupSchema {
	return GroupSchema{
		Name:         name,
		Capabilities: providers.CapRequest,
		Tier:         providers.TierProxy,
		Fields: fields(
			enabled(false, title),
			FieldSpec{Key: "url", Type: TypeURL, Default: url, Description: title + " server URL", Required: true},
			FieldSpec{Key: "api_key", Type: TypeString, Description: title + " API key", Required: true},
			FieldSpec{Key: "default_user", Type: TypeString, Description: title + " displayName to make requests as."},
			FieldSpec{Key: "default_radarr_quality_profile_id", Type: TypeInt, Description: "Default Radarr quality profile ID"},
			FieldSpec{Key: "default_sonarr_quality_profile_id", Type: TypeInt, Description: "Default Sonarr quality profile ID"},
			baseProvider("request"),
		),
	}
}

func generationGroup(name string, specs ...FieldSpec) GroupSchema {
	return GroupSchema{
		Name:         name,
		Capabilities: providers.CapGeneration,
		Tier:         providers.TierNone,
		Fields:       fields(append(specs, baseProvider("llm"))...),
	}
}

// DefaultSchemas returns the schema of every settings group.
func DefaultSchemas() []GroupSchema {
	return []GroupSchema{
		{
			Name: AppGroup,
			Fields: fields(
				FieldSpec{Key: "default_prompt", Type: TypeString, Default: DefaultPromptTemplate, Description: "Prompt template of the default search.", Required: true},
				FieldSpec{Key: "system_prompt", Type: TypeString, Default: DefaultSystemPrompt, Description: "System prompt sent with every generation."},
				FieldSpec{Key: "recent_limit", Type: TypeInt, Default: int64(10), Description: "Number of recent history items to use.", Required: true},
				FieldSpec{Key: "suggestion_limit", Type: TypeInt, Default: int64(20), Description: "Number of suggestions to ask for.", Required: true},
				FieldSpec{Key: "request_only", Type: TypeBool, Default: false, Description: "Add media to Radarr and Sonarr without starting a search."},
				FieldSpec{Key: "auto_media_save", Type: TypeBool, Default: true, Description: "Save novel suggestions from ad-hoc runs."},
			),
		},
		libraryGroup("jellyfin", "Jellyfin", "http://jellyfin:8096"),
		libraryGroup("plex", "Plex", "http://plex:32400"),
		{
			Name:         "trakt",
			Capabilities: providers.CapLibrary,
			Tier:         providers.TierNone,
			Fields: fields(
				enabled(false, "Trakt"),
				FieldSpec{Key: "client_id", Type: TypeString, Description: "Trakt client ID.", Required: true},
				FieldSpec{Key: "client_secret", Type: TypeString, Description: "Trakt client secret.", Required: true},
				FieldSpec{Key: "redirect_uri", Type: TypeString, Default: providers.TraktOOBRedirect, Description: "Trakt OAuth redirect URI."},
				FieldSpec{Key: "authorization", Type: TypeString, Description: "Trakt OAuth token.", Hidden: true},
				FieldSpec{Key: "default_user", Type: TypeString, Description: "Trakt user to use for watch history and favorites."},
				FieldSpec{Key: "enable_history", Type: TypeBool, Default: true, Description: "Sync watch history from Trakt."},
				FieldSpec{Key: "enable_media", Type: TypeBool, Default: false, Description: "Include Trakt favorites in prompts."},
				baseProvider("library"),
			),
		},
		directGroup("radarr", "Radarr", "http://radarr:7878", "/movies"),
		directGroup("sonarr", "Sonarr", "http://sonarr:8989", "/tv",
			FieldSpec{Key: "language_profile_id", Type: TypeInt, Description: "Sonarr v3 language profile ID, omitted from requests when unset."},
		),
		proxyGroup("overseerr", "Overseerr", "http://overseerr:5055"),
		proxyGroup("jellyseerr", "Jellyseerr", "http://jellyseerr:5055"),
		generationGroup("gemini",
			enabled(false, "Gemini"),
			FieldSpec{Key: "api_key", Type: TypeString, Description: "Gemini API key", Required: true},
			FieldSpec{Key: "model", Type: TypeString, Default: "gemini-2.5-flash-preview-05-20", Description: "Gemini model name."},
			FieldSpec{Key: "thinking_budget", Type: TypeFloat, Default: 1024.0, Description: "Thinking budget, 0 disables thinking."},
			FieldSpec{Key: "temperature", Type: TypeFloat, Default: 0.7, Description: "Sampling temperature."},
		),
		generationGroup("ollama",
			enabled(false, "Ollama"),
			FieldSpec{Key: "base_url", Type: TypeURL, Default: "http://ollama:11434", Description: "Ollama server base URL.", Required: true},
			FieldSpec{Key: "model", Type: TypeString, Default: "llama3", Description: "Ollama model name."},
			FieldSpec{Key: "temperature", Type: TypeFloat, Default: 0.7, Description: "Sampling temperature."},
		),
		generationGroup("openai",
			enabled(false, "OpenAI"),
			FieldSpec{Key: "api_key", Type: TypeString, Description: "OpenAI API key", Required: true},
			FieldSpec{Key: "base_url", Type: TypeURL, Default: "https://api.openai.com/v1", Description: "OpenAI compatible API base URL.", Required: true},
			FieldSpec{Key: "model", Type: TypeString, Default: "gpt-4.1-mini", Description: "OpenAI model name."},
			FieldSpec{Key: "temperature", Type: TypeFloat, Default: 0.7, Description: "Sampling temperature."},
		),
		{
			Name:         "tmdb",
			Capabilities: providers.CapMetadata,
			Tier:         providers.TierNone,
			Fields: fields(
				enabled(false, "TMDB"),
				FieldSpec{Key: "url", Type: TypeURL, Default: providers.TMDBDefaultURL, Description: "TMDB API base URL.", Required: true},
				FieldSpec{Key: "api_key", Type: TypeString, Description: "TMDB API read access token.", Required: true},
				FieldSpec{Key: "language", Type: TypeString, Default: "en-US", Description: "Language of looked up titles and genres."},
				baseProvider("metadata"),
			),
		},
	}
}
