package ui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/curatarr/internal/models"
	"github.com/desertthunder/curatarr/internal/scheduler"
)

type fakeJobs struct {
	jobs       []scheduler.JobStatus
	triggerErr error
	triggered  []string
}

func (f *fakeJobs) Jobs() []scheduler.JobStatus { return f.jobs }

func (f *fakeJobs) Trigger(_ context.Context, id string) error {
	f.triggered = append(f.triggered, id)
	return f.triggerErr
}

type fakeSuggestions struct {
	list     []*models.Suggestion
	err      error
	criteria map[string]any
}

func (f *fakeSuggestions) List(_ context.Context, criteria map[string]any) ([]*models.Suggestion, error) {
	f.criteria = criteria
	return f.list, f.err
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// send delivers msg and feeds the resulting command back into the model once.
func send(m *Model, msg tea.Msg) tea.Cmd {
	_, cmd := m.Update(msg)
	return cmd
}

func newTestModel(t *testing.T, jobs *fakeJobs, sg *fakeSuggestions) *Model {
	t.Helper()
	m := NewModel(context.Background(), jobs, sg)
	send(m, tea.WindowSizeMsg{Width: 120, Height: 40})
	send(m, jobsLoadedMsg(jobs.Jobs()))
	return m
}

func TestJobsView(t *testing.T) {
	jobs := &fakeJobs{jobs: []scheduler.JobStatus{
		{JobDefinition: models.JobDefinition{ID: "process_history", Kind: models.JobProcessHistory}, State: scheduler.StateIdle},
		{JobDefinition: models.JobDefinition{ID: "sync_history", Kind: models.JobSyncHistory, Enabled: true}, State: scheduler.StateIdle, LastError: "jellyfin unreachable"},
	}}
	m := newTestModel(t, jobs, &fakeSuggestions{})

	view := m.View()
	for _, want := range []string{"process_history", "sync_history", "jellyfin unreachable"} {
		if !strings.Contains(view, want) {
			t.Errorf("jobs view missing %q", want)
		}
	}

	t.Run("enter triggers the selected job", func(t *testing.T) {
		cmd := send(m, tea.KeyMsg{Type: tea.KeyEnter})
		if cmd == nil {
			t.Fatal("expected a trigger command")
		}
		msg, ok := cmd().(Msg)
		if !ok || msg.kind != MsgTriggered {
			t.Fatalf("expected MsgTriggered, got %#v", msg)
		}
		if len(jobs.triggered) != 1 || jobs.triggered[0] != "process_history" {
			t.Errorf("triggered = %v, want [process_history]", jobs.triggered)
		}

		send(m, msg)
		if !strings.Contains(m.View(), "started process_history") {
			t.Error("expected a started status line")
		}
	})

	t.Run("trigger errors are shown", func(t *testing.T) {
		send(m, triggeredMsg("sync_history", errors.New("job is already running")))
		if !strings.Contains(m.View(), "already running") {
			t.Error("expected the trigger error in the view")
		}
	})

	t.Run("details", func(t *testing.T) {
		send(m, tea.KeyMsg{Type: tea.KeyDown})
		send(m, runes("i"))
		if m.ViewState() != JobDetailView {
			t.Fatalf("view = %v, want JobDetailView", m.ViewState())
		}
		view := m.View()
		if !strings.Contains(view, "sync_history") || !strings.Contains(view, "jellyfin unreachable") {
			t.Errorf("detail view missing job fields:\n%s", view)
		}

		send(m, tea.KeyMsg{Type: tea.KeyEsc})
		if m.ViewState() != JobsView {
			t.Errorf("view = %v, want JobsView", m.ViewState())
		}
	})

	t.Run("tick reloads jobs", func(t *testing.T) {
		if cmd := send(m, tickMsg(jobs.jobs[0].CreatedAt)); cmd == nil {
			t.Error("expected a reload command")
		}
	})

	t.Run("quit", func(t *testing.T) {
		cmd := send(m, runes("q"))
		if cmd == nil {
			t.Fatal("expected quit command")
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Error("expected tea.QuitMsg")
		}
	})
}

func TestSuggestionsView(t *testing.T) {
	sg := &fakeSuggestions{list: []*models.Suggestion{
		{ID: 1, Title: "Arrival", MediaType: models.MediaMovie, Description: "First contact", Requested: true},
		{ID: 2, Title: "Dark", MediaType: models.MediaTV},
	}}
	m := newTestModel(t, &fakeJobs{}, sg)

	cmd := send(m, runes("s"))
	if m.ViewState() != SuggestionsView {
		t.Fatalf("view = %v, want SuggestionsView", m.ViewState())
	}
	if cmd == nil {
		t.Fatal("expected a load command")
	}
	send(m, cmd())

	if sg.criteria["ignored"] != false {
		t.Errorf("ignored suggestions should be filtered, criteria = %v", sg.criteria)
	}
	view := m.View()
	for _, want := range []string{"Arrival (movie) ✓", "Dark (tv)"} {
		if !strings.Contains(view, want) {
			t.Errorf("suggestions view missing %q", want)
		}
	}

	t.Run("load error", func(t *testing.T) {
		send(m, suggestionsLoadedMsg(nil, errors.New("database is locked")))
		if !strings.Contains(m.View(), "database is locked") {
			t.Error("expected the load error in the view")
		}
		send(m, tea.KeyMsg{Type: tea.KeyEsc})
		if m.ViewState() != JobsView {
			t.Errorf("view = %v, want JobsView", m.ViewState())
		}
	})
}
