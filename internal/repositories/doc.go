// Package repositories implements SQLite persistence for settings, jobs, searches, suggestions,
// watch history, sync state and token usage.
//
// Key Implementations:
//   - [SettingsRepository] : JSON encoded setting values keyed by (group, key)
//   - [JobRepository] : Scheduled job definitions
//   - [SearchRepository] : Saved prompt templates, including the built-in default search
//   - [SuggestionRepository] : Suggestions unique on normalized title and media type
//   - [HistoryRepository] : Watch history and per user sync state
//   - [UsageRepository] : Append-only token accounting
//
// Rows are never soft deleted. References between tables are soft: deleting a search leaves its suggestions in place.
package repositories
