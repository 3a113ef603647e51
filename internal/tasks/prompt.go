package tasks

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/desertthunder/curatarr/internal/models"
	"github.com/desertthunder/curatarr/internal/providers"
	"github.com/desertthunder/curatarr/internal/settings"
	"github.com/desertthunder/curatarr/internal/shared"
)

// Placeholder names understood by [RenderPrompt] callers in this package.
const (
	VarLimit        = "limit"
	VarMediaName    = "media_name"
	VarAllMedia     = "all_media"
	VarWatchHistory = "watch_history"
	VarFavorites    = "favorites"
)

// FavoritesAll selects favorites from every user.
const FavoritesAll = "all"

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// Placeholders returns the distinct placeholder names used by tmpl, in order of first use.
func Placeholders(tmpl string) []string {
	var names []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(tmpl, -1) {
		if !slices.Contains(names, m[1]) {
			names = append(names, m[1])
		}
	}
	return names
}

// RenderPrompt replaces every {{ name }} in tmpl with vars[name]. Whitespace inside the braces is
// ignored and placeholders without a value are left as written.
func RenderPrompt(tmpl string, vars map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := placeholderPattern.FindStringSubmatch(m)[1]
		if v, ok := vars[name]; ok {
			return v
		}
		return m
	})
}

// promptContext is everything a template can reference, computed only for the names it uses.
type promptContext struct {
	vars      map[string]string
	exclusion map[string]bool
}

func (e *RecommendationEngine) promptContext(ctx context.Context, search *models.Search, app settings.Values, mediaName string) (*promptContext, error) {
	pc := &promptContext{vars: map[string]string{}, exclusion: map[string]bool{}}
	used := Placeholders(search.Prompt)

	for _, name := range used {
		switch name {
		case VarLimit:
			pc.vars[name] = strconv.Itoa(app.IntOr("suggestion_limit", 20))
		case VarMediaName:
			pc.vars[name] = mediaName
		case VarAllMedia:
			titles, err := e.allMedia(ctx)
			if err != nil {
				return nil, err
			}
			for _, t := range titles {
				pc.exclusion[shared.NormalizeTitle(t)] = true
			}
			pc.vars[name] = strings.Join(titles, ", ")
		case VarWatchHistory:
			titles, err := e.deps.History.RecentTitles(ctx, app.IntOr("recent_limit", 10))
			if err != nil {
				return nil, err
			}
			pc.vars[name] = strings.Join(titles, ", ")
		case VarFavorites:
			pc.vars[name] = strings.Join(e.favorites(ctx, search.FavoritesFilter), ", ")
		}
	}
	return pc, nil
}

// allMedia merges non-ignored suggestion titles with history titles, sorted and de-duplicated.
func (e *RecommendationEngine) allMedia(ctx context.Context) ([]string, error) {
	suggested, err := e.deps.Suggestions.Titles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list suggestion titles: %w", err)
	}
	watched, err := e.deps.History.Titles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list history titles: %w", err)
	}

	titles := append(suggested, watched...)
	slices.Sort(titles)
	return slices.Compact(titles), nil
}

// favorites collects favorite titles from every enabled library. Provider failures are logged and
// the list is empty only when every provider failed.
func (e *RecommendationEngine) favorites(ctx context.Context, filter string) []string {
	if filter == "" {
		return nil
	}

	libs := e.deps.enabledLibraries("enable_media")
	var (
		titles []string
		seen   = map[string]bool{}
		errs   []error
	)
	for _, name := range libs {
		refs, err := e.libraryFavorites(ctx, name, filter)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, ref := range refs {
			key := shared.NormalizeTitle(ref.Title)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			titles = append(titles, ref.Title)
		}
	}

	switch {
	case len(errs) > 0 && len(errs) == len(libs):
		e.logger.Error("favorites unavailable from every library", "err", errors.Join(errs...))
	case len(errs) > 0:
		e.logger.Warn("some favorites unavailable", "err", errors.Join(errs...))
	}
	return titles
}

func (e *RecommendationEngine) libraryFavorites(ctx context.Context, name, filter string) ([]providers.MediaRef, error) {
	lib, err := e.deps.Providers.Library(ctx, name)
	if err != nil {
		return nil, err
	}
	users, err := lib.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	if filter != FavoritesAll {
		users = filterUsers(users, filter)
	}

	var refs []providers.MediaRef
	for _, u := range users {
		r, err := lib.ListFavorites(ctx, u)
		if err != nil {
			return nil, err
		}
		refs = append(refs, r...)
	}
	return refs, nil
}
