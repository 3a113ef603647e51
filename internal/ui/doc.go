// Package ui implements an interactive job dashboard using bubbletea's Elm architecture.
//
// The TUI has three views:
//  1. [JobsView] : every scheduled job with its state, next run, and last error
//  2. [JobDetailView] : the full status of one job
//  3. [SuggestionsView] : stored suggestions, newest first
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Job status is polled on a tick so triggered jobs move from running to idle without user input.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, s, i, r, q) with contextual help displayed via
// charmbracelet/bubbles/help.
package ui
