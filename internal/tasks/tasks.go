package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/curatarr/internal/models"
	"github.com/desertthunder/curatarr/internal/providers"
	"github.com/desertthunder/curatarr/internal/registry"
	"github.com/desertthunder/curatarr/internal/settings"
	"github.com/desertthunder/curatarr/internal/shared"
)

var (
	ErrNoProviderEnabled = registry.ErrNoProviderEnabled
	ErrGenerationFailed  = fmt.Errorf("generation failed")
)

// ProviderSource resolves providers by capability. Implemented by [registry.Registry].
type ProviderSource interface {
	ProvidersWithCapability(cap providers.Capability) []registry.Descriptor
	Library(ctx context.Context, name string) (providers.Library, error)
	Request(ctx context.Context, name string) (providers.Request, error)
	ActiveGeneration(ctx context.Context) (providers.Generation, error)
	ActiveMetadata(ctx context.Context) (providers.Metadata, error)
}

// SettingsSource returns the current values of a settings group. Implemented by [settings.Engine].
type SettingsSource interface {
	Values(group string) (settings.Values, error)
}

// SuggestionStore persists suggestions (repositories.SuggestionRepository).
type SuggestionStore interface {
	ExistsKey(ctx context.Context, title string, mediaType models.MediaType) (bool, error)
	Save(ctx context.Context, sg *models.Suggestion) (bool, error)
	Titles(ctx context.Context) ([]string, error)
	Get(ctx context.Context, id int64) (*models.Suggestion, error)
	MarkRequested(ctx context.Context, id int64) error
}

// HistoryStore persists watch history and sync state (repositories.HistoryRepository).
type HistoryStore interface {
	Upsert(ctx context.Context, e *models.WatchHistoryEntry) (bool, error)
	MarkProcessed(ctx context.Context, id int64) error
	RecentTitles(ctx context.Context, limit int) ([]string, error)
	Titles(ctx context.Context) ([]string, error)
	List(ctx context.Context, criteria map[string]any) ([]*models.WatchHistoryEntry, error)
	SyncState(ctx context.Context, user, provider string) (*models.SyncState, error)
	SaveSyncState(ctx context.Context, state models.SyncState) error
}

// SearchStore reads search templates (repositories.SearchRepository).
type SearchStore interface {
	Get(ctx context.Context, id int64) (*models.Search, error)
	MarkRun(ctx context.Context, id int64, at time.Time) error
}

// UsageStore appends token usage (repositories.UsageRepository).
type UsageStore interface {
	Append(ctx context.Context, u *models.UsageRecord) error
}

// Deps holds the collaborators shared by the engines in this package.
type Deps struct {
	Providers   ProviderSource
	Settings    SettingsSource
	Suggestions SuggestionStore
	History     HistoryStore
	Searches    SearchStore
	Usage       UsageStore
	Logger      *log.Logger
}

func (d Deps) logger(component string) *log.Logger {
	l := d.Logger
	if l == nil {
		l = shared.NewLogger(nil)
	}
	return shared.WithLogger(l, "component", component)
}

func (d Deps) app() (settings.Values, error) {
	return d.Settings.Values(settings.AppGroup)
}

// enabledLibraries returns the enabled library providers whose group sets flag.
func (d Deps) enabledLibraries(flag string) []string {
	var names []string
	for _, desc := range d.Providers.ProvidersWithCapability(providers.CapLibrary) {
		v, err := d.Settings.Values(desc.Name)
		if err != nil || !v.Bool(flag) {
			continue
		}
		names = append(names, desc.Name)
	}
	return names
}

// filterUsers keeps the users named name. An empty name keeps everyone.
func filterUsers(users []providers.User, name string) []providers.User {
	if name == "" {
		return users
	}
	var out []providers.User
	for _, u := range users {
		if u.Name == name || u.ID == name {
			out = append(out, u)
		}
	}
	return out
}
