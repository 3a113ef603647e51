// Package tasks runs the work behind scheduled and on-demand jobs.
//
// # Core Operations
//
//  1. [RecommendationEngine.Run] : Generate suggestions from a search template
//     - Renders the template's {{ placeholders }} from settings, storage and library favorites
//     - Calls the enabled generation provider
//     - Drops malformed candidates and flags duplicates
//     - Persists novel suggestions and appends a usage record
//
//  2. [RecommendationEngine.Preview] : Render a template without generating
//
//  3. [HistorySync.Run] : Pull watch history from every enabled library
//     - Fans (provider, user) pairs out to a bounded worker pool
//     - Fetches since the last successful sync, or the most recent entries on first sync
//     - Upserts entries and advances the sync state
//
//  4. [RecommendationEngine.ProcessHistory] : Run the default search for unprocessed history titles
//
//  5. [RecommendationEngine.RequestMedia] : Submit a suggestion to the active request provider
//
// # Progress Reporting
//
// Engines built with a progress channel emit [ProgressUpdate] values. Sends use select with default
// so a slow reader never blocks a run.
//
// # Scheduling
//
// [RegisterHandlers] binds the job kinds to a [scheduler.Scheduler].
package tasks
