package repositories

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/desertthunder/curatarr/internal/models"
)

// SettingsRepository persists setting values as JSON so their coerced type survives a round trip.
type SettingsRepository struct {
	db *sql.DB
}

// NewSettingsRepository creates a new [SettingsRepository] with the given database connection
func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// LoadAll returns every stored setting. Numbers decode as [json.Number].
func (r *SettingsRepository) LoadAll(ctx context.Context) ([]models.SettingRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT group_name, key, value FROM settings ORDER BY group_name, key`)
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	var records []models.SettingRecord
	for rows.Next() {
		var (
			rec models.SettingRecord
			raw sql.NullString
		)
		if err := rows.Scan(&rec.Group, &rec.Key, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		if raw.Valid {
			v, err := decodeValue(raw.String)
			if err != nil {
				return nil, fmt.Errorf("failed to decode setting %s.%s: %w", rec.Group, rec.Key, err)
			}
			rec.Value = v
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return records, nil
}

// Save inserts or replaces one setting. A nil value is stored as NULL.
func (r *SettingsRepository) Save(ctx context.Context, rec models.SettingRecord) error {
	var value sql.NullString
	if rec.Value != nil {
		b, err := json.Marshal(rec.Value)
		if err != nil {
			return fmt.Errorf("failed to encode setting %s.%s: %w", rec.Group, rec.Key, err)
		}
		value = sql.NullString{String: string(b), Valid: true}
	}

	query := `
		INSERT INTO settings (group_name, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (group_name, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, rec.Group, rec.Key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save setting %s.%s: %w", rec.Group, rec.Key, err)
	}
	return nil
}

func decodeValue(s string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
