// package models defines the data model for the media suggestion service
package models

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Model defines the base interface for records that can be validated before they are persisted.
type Model interface {
	Validate() error // Validate checks if the model's data is valid and returns an error if not
}

// Repository defines the interface for data access operations keyed by K.
// Implementations handle database interactions for specific model types.
type Repository[K comparable, T Model] interface {
	Get(ctx context.Context, id K) (T, error)                       // Get retrieves a model by its ID
	Delete(ctx context.Context, id K) error                         // Delete removes a model from the database by its ID
	List(ctx context.Context, criteria map[string]any) ([]T, error) // List retrieves all models matching the given criteria
}

// MediaType is the kind of title a suggestion or history entry refers to.
type MediaType string

const (
	MediaMovie MediaType = "movie"
	MediaTV    MediaType = "tv"
)

// ParseMediaType normalizes free-form media type labels.
//
// "series", "show" and "tv show" map to [MediaTV], "film" maps to [MediaMovie].
func ParseMediaType(s string) (MediaType, bool) {
	switch strings.ToLower(strings.Join(strings.Fields(s), " ")) {
	case "movie", "movies", "film":
		return MediaMovie, true
	case "tv", "series", "show", "tv show", "tv series":
		return MediaTV, true
	default:
		return "", false
	}
}

func (m MediaType) String() string { return string(m) }

// Suggestion is a persisted recommendation.
type Suggestion struct {
	ID             int64     `json:"id"`
	SourceID       string    `json:"source_id,omitempty"`
	Title          string    `json:"title"`
	MediaType      MediaType `json:"media_type"`
	Description    string    `json:"description"`
	Similarity     string    `json:"similarity"`
	RTURL          string    `json:"rt_url,omitempty"`
	RTScore        *int      `json:"rt_score,omitempty"`
	Ignored        bool      `json:"ignored"`
	Requested      bool      `json:"requested"`
	OriginSearchID *int64    `json:"origin_search_id,omitempty"`
	// Filled from the metadata provider when one is enabled.
	Genres           []string  `json:"genres,omitempty"`
	ReleaseDate      string    `json:"release_date,omitempty"`
	Networks         []string  `json:"networks,omitempty"`
	Status           string    `json:"status,omitempty"`
	OriginalLanguage string    `json:"original_language,omitempty"`
	PosterURL        string    `json:"poster_url,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (s *Suggestion) Validate() error {
	if strings.TrimSpace(s.Title) == "" {
		return fmt.Errorf("suggestion title is required")
	}
	if s.MediaType != MediaMovie && s.MediaType != MediaTV {
		return fmt.Errorf("invalid media type %q", s.MediaType)
	}
	return nil
}

// WatchHistoryEntry is one watched item, unique on (User, ExternalMediaID).
type WatchHistoryEntry struct {
	ID              int64     `json:"id"`
	User            string    `json:"user"`
	Provider        string    `json:"provider"`
	ExternalMediaID string    `json:"external_media_id"`
	Title           string    `json:"title"`
	MediaType       MediaType `json:"media_type"`
	WatchedAt       time.Time `json:"watched_at"`
	Processed       bool      `json:"processed"`
	CreatedAt       time.Time `json:"created_at"`
}

func (e *WatchHistoryEntry) Validate() error {
	switch {
	case e.User == "":
		return fmt.Errorf("history user is required")
	case e.ExternalMediaID == "":
		return fmt.Errorf("history media id is required")
	case strings.TrimSpace(e.Title) == "":
		return fmt.Errorf("history title is required")
	}
	return nil
}

// UsageRecord is an append-only token accounting row.
type UsageRecord struct {
	ID               string    `json:"id"`
	SearchID         *int64    `json:"search_id,omitempty"`
	JobID            string    `json:"job_id,omitempty"`
	Provider         string    `json:"provider"`
	Model            string    `json:"model"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	CreatedAt        time.Time `json:"created_at"`
}

func (u *UsageRecord) Validate() error {
	if u.Provider == "" {
		return fmt.Errorf("usage provider is required")
	}
	return nil
}

// UsageSummary totals token usage for one provider.
type UsageSummary struct {
	Provider         string `json:"provider"`
	Calls            int    `json:"calls"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
}

// SyncState records the last successful history sync for a user on a provider.
type SyncState struct {
	User         string    `json:"user"`
	Provider     string    `json:"provider"`
	LastSyncedAt time.Time `json:"last_synced_at"`
}

// DefaultSearchID identifies the built-in search template.
const DefaultSearchID int64 = 1

// Search is a saved prompt template.
//
// FavoritesFilter is "" (none), "all" or a username.
type Search struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name"`
	Prompt          string     `json:"prompt"`
	FavoritesFilter string     `json:"favorites_filter"`
	LastRunAt       *time.Time `json:"last_run_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (s *Search) IsDefault() bool { return s.ID == DefaultSearchID }

func (s *Search) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("search name is required")
	}
	if strings.TrimSpace(s.Prompt) == "" {
		return fmt.Errorf("search prompt is required")
	}
	return nil
}

// JobKind is one of the fixed set of job kinds the scheduler can run.
type JobKind string

const (
	JobSyncHistory    JobKind = "sync_history"
	JobRunSearch      JobKind = "run_search"
	JobProcessHistory JobKind = "process_history"
)

// ParseJobKind validates a job kind label.
func ParseJobKind(s string) (JobKind, error) {
	switch k := JobKind(s); k {
	case JobSyncHistory, JobRunSearch, JobProcessHistory:
		return k, nil
	default:
		return "", fmt.Errorf("unknown job kind %q", s)
	}
}

// IDs of the jobs bootstrapped by serve.
const (
	SyncHistoryJobID    = "sync_history"
	ProcessHistoryJobID = "process_history"
)

// SearchJobID returns the id of the job owned by a search.
func SearchJobID(searchID int64) string {
	return fmt.Sprintf("search:%d", searchID)
}

// Schedule holds the six cron fields of a job. Empty fields mean "*".
type Schedule struct {
	Minute    string `json:"minute"`
	Hour      string `json:"hour"`
	Day       string `json:"day"`
	Month     string `json:"month"`
	DayOfWeek string `json:"day_of_week"`
	Year      string `json:"year"`
}

// ParseSchedule splits a space separated expression into a [Schedule].
//
// Fewer than six fields leave the remaining fields as "*".
func ParseSchedule(expr string) (Schedule, error) {
	parts := strings.Fields(expr)
	if len(parts) == 0 || len(parts) > 6 {
		return Schedule{}, fmt.Errorf("expected 1 to 6 cron fields, got %d", len(parts))
	}
	for len(parts) < 6 {
		parts = append(parts, "*")
	}
	return Schedule{parts[0], parts[1], parts[2], parts[3], parts[4], parts[5]}, nil
}

// Fields returns the schedule fields in order, substituting "*" for empty values.
func (s Schedule) Fields() [6]string {
	f := [6]string{s.Minute, s.Hour, s.Day, s.Month, s.DayOfWeek, s.Year}
	for i := range f {
		if strings.TrimSpace(f[i]) == "" {
			f[i] = "*"
		}
	}
	return f
}

func (s Schedule) String() string {
	f := s.Fields()
	return strings.Join(f[:], " ")
}

// JobDefinition is a persisted job.
type JobDefinition struct {
	ID        string    `json:"id"`
	Kind      JobKind   `json:"kind"`
	Schedule  Schedule  `json:"schedule"`
	Enabled   bool      `json:"enabled"`
	Target    *int64    `json:"target,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (j *JobDefinition) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("job id is required")
	}
	if _, err := ParseJobKind(string(j.Kind)); err != nil {
		return err
	}
	if j.Kind == JobRunSearch && j.Target == nil {
		return fmt.Errorf("run_search job %s requires a target search", j.ID)
	}
	return nil
}

// SettingRecord is a persisted setting value in its coerced form.
type SettingRecord struct {
	Group string
	Key   string
	Value any
}
