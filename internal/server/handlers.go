package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/desertthunder/curatarr/internal/models"
	"github.com/desertthunder/curatarr/internal/registry"
	"github.com/desertthunder/curatarr/internal/scheduler"
	"github.com/desertthunder/curatarr/internal/settings"
	"github.com/desertthunder/curatarr/internal/shared"
)

// settingUpdate carries the raw value; null clears an optional key.
type settingUpdate struct {
	Value any `json:"value"`
}

type jobRequest struct {
	ID       string `json:"id" validate:"required"`
	Kind     string `json:"kind" validate:"required,oneof=sync_history run_search process_history"`
	Schedule string `json:"schedule" validate:"required"`
	Enabled  *bool  `json:"enabled"`
	Target   *int64 `json:"target"`
}

type scheduleRequest struct {
	Schedule string `json:"schedule" validate:"required"`
}

type enabledRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// providerView is a [registry.Descriptor] with its capabilities spelled out.
type providerView struct {
	registry.Descriptor
	Capabilities []string `json:"capabilities"`
}

func newProviderView(d registry.Descriptor) providerView {
	return providerView{Descriptor: d, Capabilities: strings.Split(d.Capabilities.String(), "|")}
}

// visible drops hidden settings.
func visible(group map[string]settings.Setting) map[string]settings.Setting {
	out := make(map[string]settings.Setting, len(group))
	for k, s := range group {
		if !s.Hidden {
			out[k] = s
		}
	}
	return out
}

func (a *API) listSettings(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]map[string]settings.Setting)
	for _, name := range a.settings.Groups() {
		group, err := a.settings.Group(r.Context(), name)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		out[name] = visible(group)
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) getGroup(w http.ResponseWriter, r *http.Request) {
	group, err := a.settings.Group(r.Context(), chi.URLParam(r, "group"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, visible(group))
}

func (a *API) getSchema(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "group")
	schema, ok := a.settings.Schema(name)
	if !ok {
		a.writeError(w, r, fmt.Errorf("%w: unknown group %q", settings.ErrNotFound, name))
		return
	}
	writeJSON(w, http.StatusOK, schema)
}

func (a *API) updateSetting(w http.ResponseWriter, r *http.Request) {
	var body settingUpdate
	if err := decode(r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	group, err := a.settings.Update(r.Context(), chi.URLParam(r, "group"), chi.URLParam(r, "key"), body.Value)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, visible(group))
}

func (a *API) listProviders(w http.ResponseWriter, _ *http.Request) {
	descriptors := a.registry.Descriptors()
	out := make([]providerView, 0, len(descriptors))
	for _, d := range descriptors {
		out = append(out, newProviderView(d))
	}
	writeJSON(w, http.StatusOK, out)
}

// listModels serves the cached model list, refreshing it when empty or when ?refresh=true.
func (a *API) listModels(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, err := a.registry.Descriptor(name); err != nil {
		a.writeError(w, r, err)
		return
	}
	refresh, err := queryBool(r, "refresh")
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	if refresh == nil || !*refresh {
		if list, ok := a.registry.Models(name); ok {
			writeJSON(w, http.StatusOK, list)
			return
		}
	}
	list, err := a.registry.RefreshModels(r.Context(), name)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// listProfiles lists the quality profiles of a request provider for the optional media_type.
func (a *API) listProfiles(w http.ResponseWriter, r *http.Request) {
	var mt models.MediaType
	if v := r.URL.Query().Get("media_type"); v != "" {
		parsed, ok := models.ParseMediaType(v)
		if !ok {
			a.writeError(w, r, fmt.Errorf("%w: unknown media type %q", shared.ErrInvalidInput, v))
			return
		}
		mt = parsed
	}

	req, err := a.registry.Request(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	profiles, err := req.ListQualityProfiles(r.Context(), mt)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profiles)
}

func (a *API) listJobs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.scheduler.Jobs())
}

func parseSchedule(expr string) (models.Schedule, error) {
	s, err := models.ParseSchedule(expr)
	if err != nil {
		return models.Schedule{}, fmt.Errorf("%w: %w", scheduler.ErrInvalidSchedule, err)
	}
	return s, nil
}

func (a *API) registerJob(w http.ResponseWriter, r *http.Request) {
	var body jobRequest
	if err := decode(r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	sched, err := parseSchedule(body.Schedule)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	def := models.JobDefinition{
		ID:       body.ID,
		Kind:     models.JobKind(body.Kind),
		Schedule: sched,
		Enabled:  body.Enabled == nil || *body.Enabled,
		Target:   body.Target,
	}
	if err := def.Validate(); err != nil {
		a.writeError(w, r, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err))
		return
	}
	if err := a.scheduler.Register(r.Context(), def); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJob(w, r, http.StatusCreated, def.ID)
}

func (a *API) writeJob(w http.ResponseWriter, r *http.Request, status int, id string) {
	job, err := a.scheduler.Job(id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, status, job)
}

func (a *API) updateSchedule(w http.ResponseWriter, r *http.Request) {
	var body scheduleRequest
	if err := decode(r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	sched, err := parseSchedule(body.Schedule)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	if err := a.scheduler.UpdateSchedule(r.Context(), id, sched); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJob(w, r, http.StatusOK, id)
}

func (a *API) setJobEnabled(w http.ResponseWriter, r *http.Request) {
	var body enabledRequest
	if err := decode(r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	if err := a.scheduler.SetEnabled(r.Context(), id, *body.Enabled); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJob(w, r, http.StatusOK, id)
}

func (a *API) deleteJob(w http.ResponseWriter, r *http.Request) {
	if err := a.scheduler.Unregister(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) triggerJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.scheduler.Trigger(r.Context(), id); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJob(w, r, http.StatusAccepted, id)
}

// sync triggers the history sync job rather than running a second sync beside it.
func (a *API) sync(w http.ResponseWriter, r *http.Request) {
	if err := a.scheduler.Trigger(r.Context(), models.SyncHistoryJobID); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJob(w, r, http.StatusAccepted, models.SyncHistoryJobID)
}
