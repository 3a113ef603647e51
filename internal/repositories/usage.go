package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/curatarr/internal/models"
	"github.com/desertthunder/curatarr/internal/shared"
)

// UsageRepository appends and summarizes token usage. Records are never updated.
type UsageRepository struct {
	db *sql.DB
}

// NewUsageRepository creates a new [UsageRepository] with the given database connection
func NewUsageRepository(db *sql.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// Append stores a usage record, generating its ID.
func (r *UsageRepository) Append(ctx context.Context, u *models.UsageRecord) error {
	if err := u.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	u.ID = shared.GenerateID()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO usage (id, search_id, job_id, provider, model, prompt_tokens, completion_tokens, total_tokens, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query, u.ID, nullInt64(u.SearchID), u.JobID, u.Provider, u.Model,
		u.PromptTokens, u.CompletionTokens, u.TotalTokens, u.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert usage: %w", err)
	}
	return nil
}

// List retrieves usage records newest first. Criteria: "provider" (string), "search_id" (int64), "limit" (int).
func (r *UsageRepository) List(ctx context.Context, criteria map[string]any) ([]*models.UsageRecord, error) {
	query := `
		SELECT id, search_id, job_id, provider, model, prompt_tokens, completion_tokens, total_tokens, created_at
		FROM usage WHERE 1 = 1
	`
	args := []any{}

	if provider, ok := criteria["provider"].(string); ok && provider != "" {
		query += " AND provider = ?"
		args = append(args, provider)
	}
	if searchID, ok := criteria["search_id"].(int64); ok {
		query += " AND search_id = ?"
		args = append(args, searchID)
	}
	query += " ORDER BY created_at DESC"
	query, args = limitClause(query, args, criteria)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage: %w", err)
	}
	defer rows.Close()

	var out []*models.UsageRecord
	for rows.Next() {
		var (
			u        models.UsageRecord
			searchID sql.NullInt64
		)
		err := rows.Scan(&u.ID, &searchID, &u.JobID, &u.Provider, &u.Model, &u.PromptTokens, &u.CompletionTokens, &u.TotalTokens, &u.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan usage: %w", err)
		}
		u.SearchID = int64Ptr(searchID)
		out = append(out, &u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}

// Summary totals usage by provider.
func (r *UsageRepository) Summary(ctx context.Context) ([]models.UsageSummary, error) {
	query := `
		SELECT provider, COUNT(1), SUM(prompt_tokens), SUM(completion_tokens), SUM(total_tokens)
		FROM usage GROUP BY provider ORDER BY provider ASC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage summary: %w", err)
	}
	defer rows.Close()

	var out []models.UsageSummary
	for rows.Next() {
		var s models.UsageSummary
		if err := rows.Scan(&s.Provider, &s.Calls, &s.PromptTokens, &s.CompletionTokens, &s.TotalTokens); err != nil {
			return nil, fmt.Errorf("failed to scan usage summary: %w", err)
		}
		out = append(out, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}
