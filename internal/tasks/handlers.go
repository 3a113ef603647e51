package tasks

import (
	"context"

	"github.com/desertthunder/curatarr/internal/models"
	"github.com/desertthunder/curatarr/internal/scheduler"
)

// RegisterHandlers binds every job kind to s.
func RegisterHandlers(s *scheduler.Scheduler, engine *RecommendationEngine, history *HistorySync) {
	s.RegisterHandler(models.JobSyncHistory, func(ctx context.Context, _ models.JobDefinition) error {
		_, err := history.Run(ctx)
		return err
	})

	s.RegisterHandler(models.JobRunSearch, func(ctx context.Context, def models.JobDefinition) error {
		_, err := engine.run(ctx, runParams{searchID: def.Target, jobID: def.ID})
		return err
	})

	s.RegisterHandler(models.JobProcessHistory, func(ctx context.Context, def models.JobDefinition) error {
		_, err := engine.ProcessHistory(ctx, def.ID)
		return err
	})
}
