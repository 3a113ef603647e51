package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/desertthunder/curatarr/internal/models"
	"github.com/desertthunder/curatarr/internal/shared"
)

// SuggestionRepository implements [models.Repository] for [models.Suggestion] persistence.
//
// Suggestions are unique on the normalized title and media type. See [shared.NormalizeTitle].
type SuggestionRepository struct {
	db *sql.DB
}

// NewSuggestionRepository creates a new [SuggestionRepository] with the given database connection
func NewSuggestionRepository(db *sql.DB) *SuggestionRepository {
	return &SuggestionRepository{db: db}
}

const suggestionColumns = `id, source_id, title, media_type, description, similarity, rt_url, rt_score,
	ignored, requested, origin_search_id, genres, release_date, networks, status, original_language, poster_url,
	created_at, updated_at`

func scanSuggestion(s rowScanner) (*models.Suggestion, error) {
	var (
		sg        models.Suggestion
		mediaType string
		rtScore   sql.NullInt64
		ignored   int
		requested int
		origin    sql.NullInt64
		genres    string
		networks  string
	)
	err := s.Scan(&sg.ID, &sg.SourceID, &sg.Title, &mediaType, &sg.Description, &sg.Similarity, &sg.RTURL,
		&rtScore, &ignored, &requested, &origin, &genres, &sg.ReleaseDate, &networks, &sg.Status,
		&sg.OriginalLanguage, &sg.PosterURL, &sg.CreatedAt, &sg.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if sg.Genres, err = decodeList(genres); err != nil {
		return nil, fmt.Errorf("failed to decode genres of suggestion %d: %w", sg.ID, err)
	}
	if sg.Networks, err = decodeList(networks); err != nil {
		return nil, fmt.Errorf("failed to decode networks of suggestion %d: %w", sg.ID, err)
	}
	sg.MediaType = models.MediaType(mediaType)
	sg.RTScore = intPtr(rtScore)
	sg.Ignored = ignored != 0
	sg.Requested = requested != 0
	sg.OriginSearchID = int64Ptr(origin)
	return &sg, nil
}

// ExistsKey reports whether a suggestion with the same normalized title and media type is stored.
func (r *SuggestionRepository) ExistsKey(ctx context.Context, title string, mediaType models.MediaType) (bool, error) {
	var n int
	query := `SELECT COUNT(1) FROM suggestions WHERE normalized_title = ? AND media_type = ?`
	if err := r.db.QueryRowContext(ctx, query, shared.NormalizeTitle(title), string(mediaType)).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to query suggestion key: %w", err)
	}
	return n > 0, nil
}

// Save inserts a suggestion unless its key is already stored. It reports whether a row was written
// and sets the ID of new rows.
func (r *SuggestionRepository) Save(ctx context.Context, sg *models.Suggestion) (bool, error) {
	if err := sg.Validate(); err != nil {
		return false, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	genres, err := encodeList(sg.Genres)
	if err != nil {
		return false, err
	}
	networks, err := encodeList(sg.Networks)
	if err != nil {
		return false, err
	}

	now := time.Now().UTC()
	sg.CreatedAt, sg.UpdatedAt = now, now

	query := `
		INSERT INTO suggestions (source_id, title, normalized_title, media_type, description, similarity, rt_url, rt_score,
			ignored, requested, origin_search_id, genres, release_date, networks, status, original_language, poster_url,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (normalized_title, media_type) DO NOTHING
	`
	result, err := r.db.ExecContext(ctx, query, sg.SourceID, sg.Title, shared.NormalizeTitle(sg.Title), string(sg.MediaType),
		sg.Description, sg.Similarity, sg.RTURL, nullInt(sg.RTScore), boolToInt(sg.Ignored), boolToInt(sg.Requested),
		nullInt64(sg.OriginSearchID), genres, sg.ReleaseDate, networks, sg.Status, sg.OriginalLanguage, sg.PosterURL, now, now)
	if err != nil {
		return false, fmt.Errorf("failed to insert suggestion: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return false, nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("failed to get suggestion id: %w", err)
	}
	sg.ID = id
	return true, nil
}

// SetIgnored sets the ignored flag. Ignored suggestions are left out of exclusion lists.
func (r *SuggestionRepository) SetIgnored(ctx context.Context, id int64, ignored bool) error {
	return r.setFlag(ctx, id, "ignored", ignored)
}

// MarkRequested flags a suggestion as submitted to a request provider.
func (r *SuggestionRepository) MarkRequested(ctx context.Context, id int64) error {
	return r.setFlag(ctx, id, "requested", true)
}

func (r *SuggestionRepository) setFlag(ctx context.Context, id int64, column string, v bool) error {
	query := fmt.Sprintf(`UPDATE suggestions SET %s = ?, updated_at = ? WHERE id = ?`, column)
	result, err := r.db.ExecContext(ctx, query, boolToInt(v), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update suggestion: %w", err)
	}
	return expectAffected(result, "suggestion", id)
}

// Titles returns the titles of every suggestion that is not ignored.
func (r *SuggestionRepository) Titles(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT title FROM suggestions WHERE ignored = 0 ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query suggestion titles: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("failed to scan suggestion title: %w", err)
		}
		titles = append(titles, title)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return titles, nil
}

// Get retrieves a suggestion by ID
func (r *SuggestionRepository) Get(ctx context.Context, id int64) (*models.Suggestion, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+suggestionColumns+` FROM suggestions WHERE id = ?`, id)
	sg, err := scanSuggestion(row)
	if err != nil {
		return nil, notFound(err, "suggestion", id)
	}
	return sg, nil
}

// Delete removes a suggestion by ID
func (r *SuggestionRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM suggestions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete suggestion: %w", err)
	}
	return expectAffected(result, "suggestion", id)
}

// List retrieves suggestions newest first.
//
// Criteria: "media_type" (string), "ignored" (bool), "requested" (bool), "search_id" (int64), "limit" (int).
func (r *SuggestionRepository) List(ctx context.Context, criteria map[string]any) ([]*models.Suggestion, error) {
	query := `SELECT ` + suggestionColumns + ` FROM suggestions WHERE 1 = 1`
	args := []any{}

	if mt, ok := criteria["media_type"].(string); ok && mt != "" {
		query += " AND media_type = ?"
		args = append(args, mt)
	}
	if ignored, ok := criteria["ignored"].(bool); ok {
		query += " AND ignored = ?"
		args = append(args, boolToInt(ignored))
	}
	if requested, ok := criteria["requested"].(bool); ok {
		query += " AND requested = ?"
		args = append(args, boolToInt(requested))
	}
	if searchID, ok := criteria["search_id"].(int64); ok {
		query += " AND origin_search_id = ?"
		args = append(args, searchID)
	}
	query += " ORDER BY created_at DESC, id DESC"
	query, args = limitClause(query, args, criteria)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query suggestions: %w", err)
	}
	defer rows.Close()

	var out []*models.Suggestion
	for rows.Next() {
		sg, err := scanSuggestion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan suggestion: %w", err)
		}
		out = append(out, sg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}

func encodeList(list []string) (string, error) {
	if len(list) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("failed to encode list: %w", err)
	}
	return string(b), nil
}

func decodeList(s string) ([]string, error) {
	var list []string
	if err := json.Unmarshal([]byte(s), &list); err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list, nil
}
