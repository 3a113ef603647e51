package server

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/desertthunder/curatarr/internal/registry"
	"github.com/desertthunder/curatarr/internal/repositories"
	"github.com/desertthunder/curatarr/internal/scheduler"
	"github.com/desertthunder/curatarr/internal/settings"
	"github.com/desertthunder/curatarr/internal/shared"
	"github.com/desertthunder/curatarr/internal/tasks"
)

// Deps are the services behind the API.
type Deps struct {
	Settings    *settings.Engine
	Registry    *registry.Registry
	Scheduler   *scheduler.Scheduler
	Engine      *tasks.RecommendationEngine
	Searches    *tasks.SearchService
	Suggestions *repositories.SuggestionRepository
	History     *repositories.HistoryRepository
	Usage       *repositories.UsageRepository
	Logger      *log.Logger
}

// API serves the JSON endpoints.
type API struct {
	settings    *settings.Engine
	registry    *registry.Registry
	scheduler   *scheduler.Scheduler
	engine      *tasks.RecommendationEngine
	searches    *tasks.SearchService
	suggestions *repositories.SuggestionRepository
	history     *repositories.HistoryRepository
	usage       *repositories.UsageRepository
	logger      *log.Logger
}

func NewAPI(d Deps) *API {
	logger := d.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &API{
		settings:    d.Settings,
		registry:    d.Registry,
		scheduler:   d.Scheduler,
		engine:      d.Engine,
		searches:    d.Searches,
		suggestions: d.Suggestions,
		history:     d.History,
		usage:       d.Usage,
		logger:      shared.WithLogger(logger, "component", "api"),
	}
}

// Register adds every API route to r.
func (a *API) Register(r Router) {
	routes := []struct {
		method string
		path   string
		fn     http.HandlerFunc
	}{
		{http.MethodGet, "/healthz", a.health},

		{http.MethodGet, "/api/settings", a.listSettings},
		{http.MethodGet, "/api/settings/{group}", a.getGroup},
		{http.MethodGet, "/api/settings/{group}/schema", a.getSchema},
		{http.MethodPut, "/api/settings/{group}/{key}", a.updateSetting},

		{http.MethodGet, "/api/providers", a.listProviders},
		{http.MethodGet, "/api/providers/{name}/models", a.listModels},
		{http.MethodGet, "/api/providers/{name}/profiles", a.listProfiles},

		{http.MethodGet, "/api/jobs", a.listJobs},
		{http.MethodPost, "/api/jobs", a.registerJob},
		{http.MethodPut, "/api/jobs/{id}/schedule", a.updateSchedule},
		{http.MethodPut, "/api/jobs/{id}/enabled", a.setJobEnabled},
		{http.MethodDelete, "/api/jobs/{id}", a.deleteJob},
		{http.MethodPost, "/api/jobs/{id}/trigger", a.triggerJob},

		{http.MethodGet, "/api/searches", a.listSearches},
		{http.MethodPost, "/api/searches", a.saveSearch},
		{http.MethodDelete, "/api/searches/{id}", a.deleteSearch},
		{http.MethodPost, "/api/searches/{id}/run", a.runSearch},
		{http.MethodGet, "/api/searches/{id}/preview", a.previewSearch},

		{http.MethodGet, "/api/suggestions", a.listSuggestions},
		{http.MethodPost, "/api/suggestions/{id}/request", a.requestSuggestion},
		{http.MethodPut, "/api/suggestions/{id}/ignored", a.setIgnored},

		{http.MethodGet, "/api/history", a.listHistory},
		{http.MethodPost, "/api/sync", a.sync},
		{http.MethodGet, "/api/usage", a.usageSummary},
	}
	for _, rt := range routes {
		r.Handle(rt.method, rt.path, rt.fn)
	}
	r.Handle(http.MethodGet, "/metrics", promhttp.Handler())
}

// Handler returns a [ChiRouter] with the API registered.
func (a *API) Handler() http.Handler {
	r := NewRouter(a.logger)
	a.Register(r)
	return r
}

func (a *API) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
