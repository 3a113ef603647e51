package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/curatarr/internal/models"
	"github.com/desertthunder/curatarr/internal/shared"
)

// SearchRepository implements [models.Repository] for [models.Search] persistence.
type SearchRepository struct {
	db *sql.DB
}

// NewSearchRepository creates a new [SearchRepository] with the given database connection
func NewSearchRepository(db *sql.DB) *SearchRepository {
	return &SearchRepository{db: db}
}

const searchColumns = `id, name, prompt, favorites_filter, last_run_at, created_at, updated_at`

func scanSearch(s rowScanner) (*models.Search, error) {
	var (
		search  models.Search
		lastRun sql.NullTime
	)
	err := s.Scan(&search.ID, &search.Name, &search.Prompt, &search.FavoritesFilter, &lastRun, &search.CreatedAt, &search.UpdatedAt)
	if err != nil {
		return nil, err
	}
	search.LastRunAt = timePtr(lastRun)
	return &search, nil
}

// EnsureDefault creates the default search with the given prompt unless it already exists.
func (r *SearchRepository) EnsureDefault(ctx context.Context, prompt string) (*models.Search, error) {
	now := time.Now().UTC()
	query := `
		INSERT INTO searches (id, name, prompt, favorites_filter, created_at, updated_at) VALUES (?, 'default', ?, '', ?, ?)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, models.DefaultSearchID, prompt, now, now); err != nil {
		return nil, fmt.Errorf("failed to create default search: %w", err)
	}
	return r.Get(ctx, models.DefaultSearchID)
}

// Create inserts a search and sets its ID.
func (r *SearchRepository) Create(ctx context.Context, search *models.Search) error {
	if err := search.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	now := time.Now().UTC()
	search.CreatedAt, search.UpdatedAt = now, now

	query := `INSERT INTO searches (name, prompt, favorites_filter, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`
	result, err := r.db.ExecContext(ctx, query, search.Name, search.Prompt, search.FavoritesFilter, now, now)
	if err != nil {
		return fmt.Errorf("failed to insert search: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get search id: %w", err)
	}
	search.ID = id
	return nil
}

// Update modifies a search's prompt and favorites filter. The default search keeps its name.
func (r *SearchRepository) Update(ctx context.Context, search *models.Search) error {
	if err := search.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	existing, err := r.Get(ctx, search.ID)
	if err != nil {
		return err
	}
	if existing.IsDefault() && search.Name != existing.Name {
		return fmt.Errorf("%w: the default search cannot be renamed", shared.ErrInvalidInput)
	}

	search.UpdatedAt = time.Now().UTC()
	query := `UPDATE searches SET name = ?, prompt = ?, favorites_filter = ?, updated_at = ? WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query, search.Name, search.Prompt, search.FavoritesFilter, search.UpdatedAt, search.ID)
	if err != nil {
		return fmt.Errorf("failed to update search: %w", err)
	}
	return expectAffected(result, "search", search.ID)
}

// MarkRun sets last_run_at.
func (r *SearchRepository) MarkRun(ctx context.Context, id int64, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `UPDATE searches SET last_run_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update search run time: %w", err)
	}
	return expectAffected(result, "search", id)
}

// Get retrieves a search by ID
func (r *SearchRepository) Get(ctx context.Context, id int64) (*models.Search, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+searchColumns+` FROM searches WHERE id = ?`, id)
	search, err := scanSearch(row)
	if err != nil {
		return nil, notFound(err, "search", id)
	}
	return search, nil
}

// Delete removes a search. The default search cannot be deleted.
func (r *SearchRepository) Delete(ctx context.Context, id int64) error {
	if id == models.DefaultSearchID {
		return fmt.Errorf("%w: the default search cannot be deleted", shared.ErrInvalidInput)
	}

	result, err := r.db.ExecContext(ctx, `DELETE FROM searches WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete search: %w", err)
	}
	return expectAffected(result, "search", id)
}

// List retrieves searches ordered by ID. Criteria: "name" (string).
func (r *SearchRepository) List(ctx context.Context, criteria map[string]any) ([]*models.Search, error) {
	query := `SELECT ` + searchColumns + ` FROM searches WHERE 1 = 1`
	args := []any{}

	if name, ok := criteria["name"].(string); ok && name != "" {
		query += " AND name = ?"
		args = append(args, name)
	}
	query += " ORDER BY id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query searches: %w", err)
	}
	defer rows.Close()

	var searches []*models.Search
	for rows.Next() {
		search, err := scanSearch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search: %w", err)
		}
		searches = append(searches, search)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return searches, nil
}
