package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/curatarr/internal/models"
	"github.com/desertthunder/curatarr/internal/shared"
)

// HistoryRepository implements [models.Repository] for [models.WatchHistoryEntry] persistence and stores
// per user sync state.
type HistoryRepository struct {
	db *sql.DB
}

// NewHistoryRepository creates a new [HistoryRepository] with the given database connection
func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

const historyColumns = `id, user_name, provider, external_media_id, title, media_type, watched_at, processed, created_at`

func scanHistory(s rowScanner) (*models.WatchHistoryEntry, error) {
	var (
		e         models.WatchHistoryEntry
		mediaType string
		processed int
	)
	err := s.Scan(&e.ID, &e.User, &e.Provider, &e.ExternalMediaID, &e.Title, &mediaType, &e.WatchedAt, &processed, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.MediaType = models.MediaType(mediaType)
	e.Processed = processed != 0
	return &e, nil
}

// Upsert stores an entry unless (user, external_media_id) already exists and reports whether it was new.
func (r *HistoryRepository) Upsert(ctx context.Context, e *models.WatchHistoryEntry) (bool, error) {
	if err := e.Validate(); err != nil {
		return false, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	e.CreatedAt = time.Now().UTC()
	query := `
		INSERT INTO watch_history (user_name, provider, external_media_id, title, media_type, watched_at, processed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_name, external_media_id) DO NOTHING
	`
	result, err := r.db.ExecContext(ctx, query, e.User, e.Provider, e.ExternalMediaID, e.Title, string(e.MediaType),
		e.WatchedAt.UTC(), boolToInt(e.Processed), e.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert history entry: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return false, nil
	}

	if id, err := result.LastInsertId(); err == nil {
		e.ID = id
	}
	return true, nil
}

// MarkProcessed flags an entry as used by the history processing job.
func (r *HistoryRepository) MarkProcessed(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `UPDATE watch_history SET processed = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark history entry processed: %w", err)
	}
	return expectAffected(result, "history entry", id)
}

// RecentTitles returns up to limit distinct titles, most recently watched first.
func (r *HistoryRepository) RecentTitles(ctx context.Context, limit int) ([]string, error) {
	query := `SELECT title FROM watch_history GROUP BY title ORDER BY MAX(watched_at) DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return r.titles(ctx, query, args...)
}

// Titles returns every distinct history title.
func (r *HistoryRepository) Titles(ctx context.Context) ([]string, error) {
	return r.titles(ctx, `SELECT DISTINCT title FROM watch_history ORDER BY title ASC`)
}

func (r *HistoryRepository) titles(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history titles: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("failed to scan history title: %w", err)
		}
		titles = append(titles, title)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return titles, nil
}

// Get retrieves a history entry by ID
func (r *HistoryRepository) Get(ctx context.Context, id int64) (*models.WatchHistoryEntry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+historyColumns+` FROM watch_history WHERE id = ?`, id)
	e, err := scanHistory(row)
	if err != nil {
		return nil, notFound(err, "history entry", id)
	}
	return e, nil
}

// Delete removes a history entry by ID
func (r *HistoryRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM watch_history WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete history entry: %w", err)
	}
	return expectAffected(result, "history entry", id)
}

// List retrieves history entries, most recently watched first.
//
// Criteria: "user" (string), "provider" (string), "processed" (bool), "limit" (int).
func (r *HistoryRepository) List(ctx context.Context, criteria map[string]any) ([]*models.WatchHistoryEntry, error) {
	query := `SELECT ` + historyColumns + ` FROM watch_history WHERE 1 = 1`
	args := []any{}

	if user, ok := criteria["user"].(string); ok && user != "" {
		query += " AND user_name = ?"
		args = append(args, user)
	}
	if provider, ok := criteria["provider"].(string); ok && provider != "" {
		query += " AND provider = ?"
		args = append(args, provider)
	}
	if processed, ok := criteria["processed"].(bool); ok {
		query += " AND processed = ?"
		args = append(args, boolToInt(processed))
	}
	query += " ORDER BY watched_at DESC, id DESC"
	query, args = limitClause(query, args, criteria)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []*models.WatchHistoryEntry
	for rows.Next() {
		e, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return entries, nil
}

// SyncState returns the last successful sync for a user on a provider, nil when the pair never synced.
func (r *HistoryRepository) SyncState(ctx context.Context, user, provider string) (*models.SyncState, error) {
	state := models.SyncState{User: user, Provider: provider}
	query := `SELECT last_synced_at FROM sync_state WHERE user_name = ? AND provider = ?`
	err := r.db.QueryRowContext(ctx, query, user, provider).Scan(&state.LastSyncedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query sync state: %w", err)
	}
	return &state, nil
}

// SaveSyncState records a successful sync.
func (r *HistoryRepository) SaveSyncState(ctx context.Context, state models.SyncState) error {
	query := `
		INSERT INTO sync_state (user_name, provider, last_synced_at) VALUES (?, ?, ?)
		ON CONFLICT (user_name, provider) DO UPDATE SET last_synced_at = excluded.last_synced_at
	`
	if _, err := r.db.ExecContext(ctx, query, state.User, state.Provider, state.LastSyncedAt.UTC()); err != nil {
		return fmt.Errorf("failed to save sync state: %w", err)
	}
	return nil
}
