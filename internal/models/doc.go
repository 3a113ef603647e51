// Package models defines domain entities and persistence interfaces for curatarr.
//
// The package contains two categories of types:
//
// 1. Media records produced by the recommendation pipeline and history sync
//   - [Suggestion] : a recommended title, unique on its normalized title and media type
//   - [WatchHistoryEntry] : one watched item pulled from a library provider
//   - [UsageRecord] : token accounting for a single generation call
//   - [SyncState] : the last successful history sync per user and provider
//
// 2. Scheduling and configuration records
//   - [Search] : a saved prompt template, id 1 is the immutable default
//   - [JobDefinition] : a cron-scheduled job of a fixed [JobKind]
//   - [SettingRecord] : a raw persisted setting value
//
// Persistent entities implement [Model] and repositories implement [Repository].
package models
