package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/curatarr/internal/models"
	"github.com/desertthunder/curatarr/internal/scheduler"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgJobsLoaded MsgKind = iota
	MsgSuggestionsLoaded
	MsgTriggered
	MsgTick
)

type triggered struct {
	id  string
	err error
}

type suggestionsLoaded struct {
	suggestions []*models.Suggestion
	err         error
}

// jobsLoadedMsg is the constructor for [MsgJobsLoaded]
func jobsLoadedMsg(jobs []scheduler.JobStatus) Msg {
	return Msg{kind: MsgJobsLoaded, data: jobs}
}

// suggestionsLoadedMsg is the constructor for [MsgSuggestionsLoaded]
func suggestionsLoadedMsg(suggestions []*models.Suggestion, err error) Msg {
	return Msg{kind: MsgSuggestionsLoaded, data: suggestionsLoaded{suggestions, err}}
}

// triggeredMsg is the constructor for [MsgTriggered]
func triggeredMsg(id string, err error) Msg {
	return Msg{kind: MsgTriggered, data: triggered{id, err}}
}

// tickMsg is the constructor for [MsgTick]
func tickMsg(t time.Time) Msg {
	return Msg{kind: MsgTick, data: t}
}
