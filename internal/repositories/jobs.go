package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/curatarr/internal/models"
)

// JobRepository implements [models.Repository] for [models.JobDefinition] persistence.
type JobRepository struct {
	db *sql.DB
}

// NewJobRepository creates a new [JobRepository] with the given database connection
func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

const jobColumns = `id, kind, minute, hour, day, month, day_of_week, year, enabled, target, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(s rowScanner) (*models.JobDefinition, error) {
	var (
		job     models.JobDefinition
		kind    string
		enabled int
		target  sql.NullInt64
	)
	err := s.Scan(&job.ID, &kind, &job.Schedule.Minute, &job.Schedule.Hour, &job.Schedule.Day,
		&job.Schedule.Month, &job.Schedule.DayOfWeek, &job.Schedule.Year, &enabled, &target,
		&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}
	job.Kind = models.JobKind(kind)
	job.Enabled = enabled != 0
	job.Target = int64Ptr(target)
	return &job, nil
}

// Save inserts a job or replaces its kind, schedule, enabled flag and target. CreatedAt is kept on update.
func (r *JobRepository) Save(ctx context.Context, job *models.JobDefinition) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	f := job.Schedule.Fields()
	query := `
		INSERT INTO jobs (` + jobColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			kind = excluded.kind, minute = excluded.minute, hour = excluded.hour, day = excluded.day,
			month = excluded.month, day_of_week = excluded.day_of_week, year = excluded.year,
			enabled = excluded.enabled, target = excluded.target, updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query, job.ID, string(job.Kind), f[0], f[1], f[2], f[3], f[4], f[5],
		boolToInt(job.Enabled), nullInt64(job.Target), job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}
	return nil
}

// Get retrieves a job by ID
func (r *JobRepository) Get(ctx context.Context, id string) (*models.JobDefinition, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err != nil {
		return nil, notFound(err, "job", id)
	}
	return job, nil
}

// Delete removes a job by ID
func (r *JobRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return expectAffected(result, "job", id)
}

// List retrieves jobs ordered by ID. Criteria: "kind" (string), "enabled" (bool).
func (r *JobRepository) List(ctx context.Context, criteria map[string]any) ([]*models.JobDefinition, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1 = 1`
	args := []any{}

	if kind, ok := criteria["kind"].(string); ok && kind != "" {
		query += " AND kind = ?"
		args = append(args, kind)
	}
	if enabled, ok := criteria["enabled"].(bool); ok {
		query += " AND enabled = ?"
		args = append(args, boolToInt(enabled))
	}
	query += " ORDER BY id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.JobDefinition
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return jobs, nil
}
