package server

import (
	"fmt"
	"net/http"

	"github.com/desertthunder/curatarr/internal/models"
	"github.com/desertthunder/curatarr/internal/shared"
)

type searchRequest struct {
	ID              int64  `json:"id"`
	Name            string `json:"name" validate:"required"`
	Prompt          string `json:"prompt" validate:"required"`
	FavoritesFilter string `json:"favorites_filter"`
	Schedule        string `json:"schedule"`
	Enabled         *bool  `json:"enabled"`
}

type runRequest struct {
	MediaName *string `json:"media_name"`
}

type mediaRequest struct {
	ProfileID *int `json:"profile_id" validate:"omitempty,gt=0"`
}

type ignoredRequest struct {
	Ignored *bool `json:"ignored" validate:"required"`
}

func (a *API) listSearches(w http.ResponseWriter, r *http.Request) {
	list, err := a.searches.List(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// saveSearch creates a search, or updates it when the body carries an id.
func (a *API) saveSearch(w http.ResponseWriter, r *http.Request) {
	var body searchRequest
	if err := decode(r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}

	var sched *models.Schedule
	if body.Schedule != "" {
		s, err := parseSchedule(body.Schedule)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		sched = &s
	}

	search := &models.Search{
		ID:              body.ID,
		Name:            body.Name,
		Prompt:          body.Prompt,
		FavoritesFilter: body.FavoritesFilter,
	}
	status := http.StatusOK
	if search.ID == 0 {
		status = http.StatusCreated
	}
	if err := a.searches.Save(r.Context(), search, sched, body.Enabled == nil || *body.Enabled); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, status, search)
}

func (a *API) deleteSearch(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.searches.Delete(r.Context(), id); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) runSearch(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var body runRequest
	if err := decode(r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}

	result, err := a.engine.Run(r.Context(), &id, body.MediaName)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) previewSearch(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var mediaName *string
	if v := r.URL.Query().Get("media_name"); v != "" {
		mediaName = &v
	}

	result, err := a.engine.Preview(r.Context(), &id, mediaName)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// listSuggestions filters on media_type, ignored, requested, search_id, and limit.
func (a *API) listSuggestions(w http.ResponseWriter, r *http.Request) {
	criteria := map[string]any{}
	if v := r.URL.Query().Get("media_type"); v != "" {
		mt, ok := models.ParseMediaType(v)
		if !ok {
			a.writeError(w, r, fmt.Errorf("%w: unknown media type %q", shared.ErrInvalidInput, v))
			return
		}
		criteria["media_type"] = mt.String()
	}
	for _, key := range []string{"ignored", "requested"} {
		b, err := queryBool(r, key)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		if b != nil {
			criteria[key] = *b
		}
	}
	if err := intCriteria(r, criteria); err != nil {
		a.writeError(w, r, err)
		return
	}

	list, err := a.suggestions.List(r.Context(), criteria)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(list))
}

// intCriteria copies search_id and limit from the query string.
func intCriteria(r *http.Request, criteria map[string]any) error {
	searchID, err := queryInt(r, "search_id")
	if err != nil {
		return err
	}
	if searchID != nil {
		criteria["search_id"] = *searchID
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		return err
	}
	if limit != nil {
		criteria["limit"] = int(*limit)
	}
	return nil
}

func (a *API) requestSuggestion(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var body mediaRequest
	if err := decode(r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}

	requestID, err := a.engine.RequestMedia(r.Context(), id, body.ProfileID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestion_id": id, "request_id": requestID})
}

func (a *API) setIgnored(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var body ignoredRequest
	if err := decode(r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}

	if err := a.suggestions.SetIgnored(r.Context(), id, *body.Ignored); err != nil {
		a.writeError(w, r, err)
		return
	}
	sg, err := a.suggestions.Get(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sg)
}

// listHistory filters on user, provider, processed, and limit.
func (a *API) listHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	criteria := map[string]any{"user": q.Get("user"), "provider": q.Get("provider")}
	processed, err := queryBool(r, "processed")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if processed != nil {
		criteria["processed"] = *processed
	}
	if err := intCriteria(r, criteria); err != nil {
		a.writeError(w, r, err)
		return
	}

	entries, err := a.history.List(r.Context(), criteria)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(entries))
}

func (a *API) usageSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := a.usage.Summary(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(summary))
}

// orEmpty keeps empty lists from encoding as null.
func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
