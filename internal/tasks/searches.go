package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/curatarr/internal/models"
	"github.com/desertthunder/curatarr/internal/scheduler"
	"github.com/desertthunder/curatarr/internal/shared"
)

// SearchWriter manages search templates (repositories.SearchRepository).
type SearchWriter interface {
	SearchStore
	Create(ctx context.Context, search *models.Search) error
	Update(ctx context.Context, search *models.Search) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, criteria map[string]any) ([]*models.Search, error)
}

// JobRegistrar owns job definitions. Implemented by [scheduler.Scheduler].
type JobRegistrar interface {
	Register(ctx context.Context, def models.JobDefinition) error
	Unregister(ctx context.Context, id string) error
}

// SearchService keeps search templates and their run_search jobs in step.
type SearchService struct {
	searches SearchWriter
	jobs     JobRegistrar
}

func NewSearchService(searches SearchWriter, jobs JobRegistrar) *SearchService {
	return &SearchService{searches: searches, jobs: jobs}
}

// Save creates the search when its ID is zero and updates it otherwise. A non-nil schedule registers
// (or replaces) the search's job. The schedule is checked before anything is written, and a search
// created here is removed again when its job cannot be registered.
func (s *SearchService) Save(ctx context.Context, search *models.Search, schedule *models.Schedule, enabled bool) error {
	if schedule != nil {
		if _, err := scheduler.Parse(*schedule); err != nil {
			return err
		}
	}

	created := search.ID == 0
	if created {
		if err := s.searches.Create(ctx, search); err != nil {
			return err
		}
	} else if err := s.searches.Update(ctx, search); err != nil {
		return err
	}

	if schedule == nil {
		return nil
	}
	id := search.ID
	err := s.jobs.Register(ctx, models.JobDefinition{
		ID:       models.SearchJobID(id),
		Kind:     models.JobRunSearch,
		Schedule: *schedule,
		Enabled:  enabled,
		Target:   &id,
	})
	if err == nil || !created {
		return err
	}
	if derr := s.searches.Delete(ctx, id); derr != nil {
		return errors.Join(err, fmt.Errorf("failed to remove search %d: %w", id, derr))
	}
	search.ID = 0
	return err
}

// Delete removes a search and its job. Suggestions that came from it are kept.
func (s *SearchService) Delete(ctx context.Context, id int64) error {
	if id == models.DefaultSearchID {
		return fmt.Errorf("%w: the default search cannot be deleted", shared.ErrInvalidInput)
	}
	if _, err := s.searches.Get(ctx, id); err != nil {
		return err
	}
	if err := s.jobs.Unregister(ctx, models.SearchJobID(id)); err != nil && !errors.Is(err, scheduler.ErrJobNotFound) {
		return err
	}
	return s.searches.Delete(ctx, id)
}

// List returns every search.
func (s *SearchService) List(ctx context.Context) ([]*models.Search, error) {
	return s.searches.List(ctx, nil)
}

// Get returns one search.
func (s *SearchService) Get(ctx context.Context, id int64) (*models.Search, error) {
	return s.searches.Get(ctx, id)
}
