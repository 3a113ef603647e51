package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/curatarr/internal/metrics"
	"github.com/desertthunder/curatarr/internal/models"
	"github.com/desertthunder/curatarr/internal/providers"
	"github.com/desertthunder/curatarr/internal/shared"
)

// CandidateResult is a validated candidate and what the run did with it.
type CandidateResult struct {
	providers.Candidate
	Details      *providers.MediaDetails `json:"details,omitempty"`
	Duplicate    bool                    `json:"duplicate"`
	Saved        bool                    `json:"saved"`
	SuggestionID int64                   `json:"suggestion_id,omitempty"`
}

// RunResult contains everything a recommendation run produced.
type RunResult struct {
	SearchID   int64             `json:"search_id"`
	Provider   string            `json:"provider"`
	Model      string            `json:"model"`
	Prompt     string            `json:"prompt"`
	Candidates []CandidateResult `json:"candidates"`
	Dropped    int               `json:"dropped"`
	SavedCount int               `json:"saved_count"`
	Usage      providers.Usage   `json:"usage"`
}

// PreviewResult is a rendered prompt.
type PreviewResult struct {
	SearchID     int64  `json:"search_id"`
	Prompt       string `json:"prompt"`
	SystemPrompt string `json:"system_prompt"`
}

// RecommendationEngine turns search templates into stored suggestions.
type RecommendationEngine struct {
	deps     Deps
	logger   *log.Logger
	progress chan<- ProgressUpdate
	now      func() time.Time
}

// EngineOption configures a [RecommendationEngine] or a [HistorySync].
type EngineOption func(*engineOptions)

type engineOptions struct {
	progress chan<- ProgressUpdate
	now      func() time.Time
	workers  int
}

// WithProgress sends progress updates to ch.
func WithProgress(ch chan<- ProgressUpdate) EngineOption {
	return func(o *engineOptions) { o.progress = ch }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) EngineOption {
	return func(o *engineOptions) { o.now = now }
}

// WithWorkers bounds the history sync pool.
func WithWorkers(n int) EngineOption {
	return func(o *engineOptions) { o.workers = n }
}

func buildOptions(opts []EngineOption) engineOptions {
	o := engineOptions{now: time.Now, workers: 4}
	for _, opt := range opts {
		opt(&o)
	}
	if o.workers <= 0 {
		o.workers = 1
	}
	return o
}

// NewRecommendationEngine creates an engine over deps.
func NewRecommendationEngine(deps Deps, opts ...EngineOption) *RecommendationEngine {
	o := buildOptions(opts)
	return &RecommendationEngine{
		deps:     deps,
		logger:   deps.logger("pipeline"),
		progress: o.progress,
		now:      o.now,
	}
}

// runParams are the inputs of one run. A nil searchID runs the default search ad hoc.
type runParams struct {
	searchID  *int64
	mediaName *string
	jobID     string
}

// Run renders a search template, generates candidates and persists the novel ones.
//
// With a nil searchID the default search runs ad hoc and results are saved only when
// app.auto_media_save is set. Runs for an explicit search always save.
func (e *RecommendationEngine) Run(ctx context.Context, searchID *int64, mediaName *string) (*RunResult, error) {
	return e.run(ctx, runParams{searchID: searchID, mediaName: mediaName})
}

// Preview renders a search template without calling a generation provider.
func (e *RecommendationEngine) Preview(ctx context.Context, searchID *int64, mediaName *string) (*PreviewResult, error) {
	search, err := e.search(ctx, searchID)
	if err != nil {
		return nil, err
	}
	app, err := e.deps.app()
	if err != nil {
		return nil, err
	}

	sendProgress(e.progress, renderUpdate(search))
	pc, err := e.promptContext(ctx, search, app, deref(mediaName))
	if err != nil {
		return nil, err
	}
	return &PreviewResult{
		SearchID:     search.ID,
		Prompt:       RenderPrompt(search.Prompt, pc.vars),
		SystemPrompt: app.String("system_prompt"),
	}, nil
}

func (e *RecommendationEngine) search(ctx context.Context, id *int64) (*models.Search, error) {
	target := models.DefaultSearchID
	if id != nil {
		target = *id
	}
	s, err := e.deps.Searches.Get(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("failed to load search %d: %w", target, err)
	}
	return s, nil
}

func (e *RecommendationEngine) run(ctx context.Context, p runParams) (*RunResult, error) {
	search, err := e.search(ctx, p.searchID)
	if err != nil {
		return nil, err
	}
	app, err := e.deps.app()
	if err != nil {
		return nil, err
	}
	logger := e.logger.With("search", search.ID)

	sendProgress(e.progress, renderUpdate(search))
	pc, err := e.promptContext(ctx, search, app, deref(p.mediaName))
	if err != nil {
		return nil, err
	}
	prompt := RenderPrompt(search.Prompt, pc.vars)

	gen, err := e.deps.Providers.ActiveGeneration(ctx)
	if err != nil {
		return nil, err
	}

	sendProgress(e.progress, generateUpdate(gen.Name()))
	out, err := gen.Generate(ctx, providers.GenerateRequest{
		Prompt:       prompt,
		SystemPrompt: app.String("system_prompt"),
		Limit:        app.IntOr("suggestion_limit", 20),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrGenerationFailed, gen.Name(), err)
	}

	result := &RunResult{
		SearchID: search.ID,
		Provider: gen.Name(),
		Model:    out.Model,
		Prompt:   prompt,
		Usage:    out.Usage,
	}
	result.Candidates, result.Dropped = validateCandidates(out.Candidates)
	result.Dropped += out.Malformed
	sendProgress(e.progress, validateUpdate(len(result.Candidates), result.Dropped))
	metrics.SuggestionsDropped.Add(float64(result.Dropped))

	if err := e.deduplicate(ctx, result.Candidates, pc.exclusion); err != nil {
		return nil, err
	}

	save := p.searchID != nil || app.Bool("auto_media_save")
	if save {
		e.enrich(ctx, result.Candidates)
		if err := e.persist(ctx, search.ID, result); err != nil {
			return nil, err
		}
	}

	e.recordUsage(ctx, search.ID, p.jobID, result)
	if err := e.deps.Searches.MarkRun(ctx, search.ID, e.now()); err != nil {
		logger.Warn("failed to mark search run", "err", err)
	}

	logger.Info("recommendation run complete",
		"provider", result.Provider,
		"candidates", len(result.Candidates),
		"dropped", result.Dropped,
		"saved", result.SavedCount)
	return result, nil
}

// validateCandidates keeps candidates with a title and a known media type, normalizing both.
func validateCandidates(raw []providers.Candidate) ([]CandidateResult, int) {
	out := make([]CandidateResult, 0, len(raw))
	dropped := 0
	for _, c := range raw {
		title := shared.CollapseWhitespace(c.Title)
		mt, ok := models.ParseMediaType(c.MediaType)
		if title == "" || !ok {
			dropped++
			continue
		}
		c.Title = title
		c.MediaType = mt.String()
		out = append(out, CandidateResult{Candidate: c})
	}
	return out, dropped
}

// deduplicate flags candidates already stored, excluded by the prompt, or repeated in the batch.
func (e *RecommendationEngine) deduplicate(ctx context.Context, cs []CandidateResult, exclusion map[string]bool) error {
	batch := make(map[string]bool, len(cs))
	for i := range cs {
		c := &cs[i]
		key := shared.NormalizeMediaKey(c.Title, c.MediaType)
		if batch[key] || exclusion[shared.NormalizeTitle(c.Title)] {
			c.Duplicate = true
			batch[key] = true
			continue
		}
		batch[key] = true

		exists, err := e.deps.Suggestions.ExistsKey(ctx, c.Title, models.MediaType(c.MediaType))
		if err != nil {
			return fmt.Errorf("failed to check suggestion %q: %w", c.Title, err)
		}
		c.Duplicate = exists
	}
	return nil
}

// enrich looks novel candidates up on the active metadata provider. Lookups are best effort: a failed
// lookup leaves the candidate as generated.
func (e *RecommendationEngine) enrich(ctx context.Context, cs []CandidateResult) {
	md, err := e.deps.Providers.ActiveMetadata(ctx)
	if err != nil {
		if !errors.Is(err, ErrNoProviderEnabled) {
			e.logger.Warn("metadata provider unavailable", "err", err)
		}
		return
	}

	total := 0
	for _, c := range cs {
		if !c.Duplicate {
			total++
		}
	}

	step := 0
	for i := range cs {
		c := &cs[i]
		if c.Duplicate {
			continue
		}
		step++
		sendProgress(e.progress, enrichUpdate(step, total, md.Name(), c.Title))

		d, err := md.Lookup(ctx, c.Title, models.MediaType(c.MediaType))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			e.logger.Warn("metadata lookup failed", "provider", md.Name(), "title", c.Title, "err", err)
			continue
		}
		if d == nil {
			e.logger.Debug("no metadata match", "provider", md.Name(), "title", c.Title)
			continue
		}
		c.Details = d
		if d.SourceID != "" {
			c.SourceID = d.SourceID
		}
	}
}

func (e *RecommendationEngine) persist(ctx context.Context, searchID int64, result *RunResult) error {
	total := len(result.Candidates)
	for i := range result.Candidates {
		c := &result.Candidates[i]
		if !c.Duplicate {
			sg := &models.Suggestion{
				SourceID:       c.SourceID,
				Title:          c.Title,
				MediaType:      models.MediaType(c.MediaType),
				Description:    strings.TrimSpace(c.Description),
				Similarity:     strings.TrimSpace(c.Similarity),
				RTURL:          strings.TrimSpace(c.RTURL),
				RTScore:        c.RTScore,
				OriginSearchID: &searchID,
			}
			if d := c.Details; d != nil {
				sg.Genres = d.Genres
				sg.ReleaseDate = d.ReleaseDate
				sg.Networks = d.Networks
				sg.Status = d.Status
				sg.OriginalLanguage = d.OriginalLanguage
				sg.PosterURL = d.PosterURL
			}
			saved, err := e.deps.Suggestions.Save(ctx, sg)
			if err != nil {
				return fmt.Errorf("failed to save suggestion %q: %w", c.Title, err)
			}
			// A concurrent run may have stored the key since deduplicate checked it.
			if saved {
				c.Saved = true
				c.SuggestionID = sg.ID
				result.SavedCount++
				metrics.SuggestionsSaved.WithLabelValues(c.MediaType).Inc()
			} else {
				c.Duplicate = true
			}
		}
		sendProgress(e.progress, persistUpdate(i+1, total, *c))
	}
	return nil
}

func (e *RecommendationEngine) recordUsage(ctx context.Context, searchID int64, jobID string, result *RunResult) {
	metrics.RecordUsage(result.Provider, result.Usage.PromptTokens, result.Usage.CompletionTokens)
	rec := &models.UsageRecord{
		SearchID:         &searchID,
		JobID:            jobID,
		Provider:         result.Provider,
		Model:            result.Model,
		PromptTokens:     result.Usage.PromptTokens,
		CompletionTokens: result.Usage.CompletionTokens,
		TotalTokens:      result.Usage.TotalTokens,
	}
	if err := e.deps.Usage.Append(ctx, rec); err != nil {
		e.logger.Error("failed to record usage", "provider", result.Provider, "err", err)
	}
}

// ProcessHistory runs the default search once for each unprocessed history title, up to
// app.recent_limit titles, and marks the entries processed after a successful run. The default search is
// named explicitly, so results are saved whatever app.auto_media_save says.
func (e *RecommendationEngine) ProcessHistory(ctx context.Context, jobID string) (int, error) {
	app, err := e.deps.app()
	if err != nil {
		return 0, err
	}
	entries, err := e.deps.History.List(ctx, map[string]any{"processed": false})
	if err != nil {
		return 0, err
	}

	limit := app.IntOr("recent_limit", 10)
	var (
		order   []string
		byTitle = map[string][]int64{}
	)
	for _, entry := range entries {
		key := shared.NormalizeTitle(entry.Title)
		if _, ok := byTitle[key]; !ok {
			if len(order) == limit {
				continue
			}
			order = append(order, entry.Title)
		}
		byTitle[key] = append(byTitle[key], entry.ID)
	}

	searchID := models.DefaultSearchID
	processed := 0
	var errs []error
	for i, title := range order {
		sendProgress(e.progress, processHistoryUpdate(i+1, len(order), title))
		if _, err := e.run(ctx, runParams{searchID: &searchID, mediaName: &title, jobID: jobID}); err != nil {
			if errors.Is(err, ErrNoProviderEnabled) {
				return processed, err
			}
			e.logger.Warn("history title failed", "title", title, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", title, err))
			continue
		}
		for _, id := range byTitle[shared.NormalizeTitle(title)] {
			if err := e.deps.History.MarkProcessed(ctx, id); err != nil {
				errs = append(errs, err)
			}
		}
		processed++
	}

	if len(order) > 0 && processed == 0 {
		return 0, errors.Join(errs...)
	}
	return processed, nil
}

// RequestMedia submits a stored suggestion to the active request provider and marks it requested.
//
// An enabled proxy wins. Otherwise movies go to radarr and tv to sonarr.
func (e *RecommendationEngine) RequestMedia(ctx context.Context, suggestionID int64, profileID *int) (providers.RequestID, error) {
	sg, err := e.deps.Suggestions.Get(ctx, suggestionID)
	if err != nil {
		return "", err
	}

	name, err := e.requestProvider(sg.MediaType)
	if err != nil {
		return "", err
	}
	req, err := e.deps.Providers.Request(ctx, name)
	if err != nil {
		return "", err
	}

	id, err := req.SubmitRequest(ctx, providers.MediaRef{Title: sg.Title, MediaType: sg.MediaType, SourceID: sg.SourceID}, profileID)
	if err != nil {
		return "", err
	}
	if err := e.deps.Suggestions.MarkRequested(ctx, sg.ID); err != nil {
		return id, err
	}

	e.logger.Info("requested media", "title", sg.Title, "provider", name, "request", id)
	return id, nil
}

func (e *RecommendationEngine) requestProvider(mt models.MediaType) (string, error) {
	enabled := e.deps.Providers.ProvidersWithCapability(providers.CapRequest)
	for _, d := range enabled {
		if d.Tier == providers.TierProxy {
			return d.Name, nil
		}
	}

	want := "radarr"
	if mt == models.MediaTV {
		want = "sonarr"
	}
	for _, d := range enabled {
		if d.Name == want {
			return d.Name, nil
		}
	}
	return "", fmt.Errorf("%w: no request provider for %s", ErrNoProviderEnabled, mt)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
