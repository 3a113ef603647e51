// package providers defines the capability interfaces implemented by external services
//
// Library (jellyfin, plex, trakt), Request (radarr, sonarr, overseerr, jellyseerr), Generation (gemini, ollama, openai),
// Metadata (tmdb)
package providers

import (
	"context"
	"iter"
	"strings"
	"time"

	"github.com/desertthunder/curatarr/internal/models"
)

// Capability is a bitset of the interfaces a provider implements.
type Capability uint8

const (
	CapLibrary Capability = 1 << iota
	CapRequest
	CapGeneration
	CapMetadata
)

// Has reports whether every bit of o is set in c.
func (c Capability) Has(o Capability) bool { return c&o == o && o != 0 }

func (c Capability) String() string {
	var parts []string
	if c.Has(CapLibrary) {
		parts = append(parts, "library")
	}
	if c.Has(CapRequest) {
		parts = append(parts, "request")
	}
	if c.Has(CapGeneration) {
		parts = append(parts, "generation")
	}
	if c.Has(CapMetadata) {
		parts = append(parts, "metadata")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// ParseCapability maps a capability name to its bit.
func ParseCapability(s string) (Capability, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "library":
		return CapLibrary, true
	case "request":
		return CapRequest, true
	case "generation":
		return CapGeneration, true
	case "metadata":
		return CapMetadata, true
	}
	return 0, false
}

// RequestTier distinguishes request proxies (overseerr, jellyseerr) from direct download managers.
type RequestTier string

const (
	TierNone   RequestTier = "none"
	TierProxy  RequestTier = "proxy"
	TierDirect RequestTier = "direct"
)

// User is an account on a library or request service.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MediaRef identifies a title on an external service.
//
// SourceID is the TMDB id when known.
type MediaRef struct {
	Title     string           `json:"title"`
	MediaType models.MediaType `json:"media_type"`
	SourceID  string           `json:"source_id,omitempty"`
}

// HistoryEntry is one watched item reported by a library provider.
type HistoryEntry struct {
	ExternalID string
	Title      string
	MediaType  models.MediaType
	SourceID   string
	WatchedAt  time.Time
}

// Profile is a quality profile on a request service.
type Profile struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// RequestID is the identifier a request service assigns to a submitted request.
type RequestID string

// GenerateRequest is the input of one generation call.
type GenerateRequest struct {
	Prompt       string
	SystemPrompt string
	Limit        int
}

// Candidate is one raw suggestion returned by a generation provider. It has not been validated.
type Candidate struct {
	Title       string `json:"title"`
	MediaType   string `json:"mediaType"`
	Description string `json:"description"`
	Similarity  string `json:"similarity"`
	RTURL       string `json:"rt_url"`
	RTScore     *int   `json:"rt_score"`
	SourceID    string `json:"source_id,omitempty"`
}

// Usage is the token accounting for one generation call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// GenerateResult is the output of one generation call.
type GenerateResult struct {
	Candidates []Candidate
	Malformed  int // items in the response that could not be decoded
	Usage      Usage
	Model      string
}

// Library lists users, favorites, and watch history from a media library server.
type Library interface {
	Name() string
	ListUsers(ctx context.Context) ([]User, error)
	ListFavorites(ctx context.Context, user User) ([]MediaRef, error)

	// ListWatchHistory returns history newest first. When since is set only newer entries are returned,
	// and limit > 0 caps the number of entries. Every range over the sequence issues a fresh request.
	ListWatchHistory(ctx context.Context, user User, since *time.Time, limit int) iter.Seq2[HistoryEntry, error]
}

// Request submits titles to a download-request service.
type Request interface {
	Name() string
	ListQualityProfiles(ctx context.Context, mediaType models.MediaType) ([]Profile, error)
	SubmitRequest(ctx context.Context, ref MediaRef, profileID *int) (RequestID, error)
	ListKnownUsers(ctx context.Context) ([]User, error)
}

// MediaDetails is catalog information about one title.
type MediaDetails struct {
	SourceID         string   `json:"source_id"`
	Title            string   `json:"title"`
	Genres           []string `json:"genres,omitempty"`
	ReleaseDate      string   `json:"release_date,omitempty"`
	Networks         []string `json:"networks,omitempty"`
	Status           string   `json:"status,omitempty"`
	OriginalLanguage string   `json:"original_language,omitempty"`
	PosterURL        string   `json:"poster_url,omitempty"`
}

// Metadata resolves titles against a media catalog. Lookup returns nil details when nothing matches.
type Metadata interface {
	Name() string
	Lookup(ctx context.Context, title string, mediaType models.MediaType) (*MediaDetails, error)
}

// Generation produces media suggestions from a prompt.
type Generation interface {
	Name() string
	ListModels(ctx context.Context) ([]string, error)
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
}
