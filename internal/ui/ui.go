package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/curatarr/internal/models"
	"github.com/desertthunder/curatarr/internal/scheduler"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	JobsView ViewState = iota
	JobDetailView
	SuggestionsView
)

const (
	refreshInterval = 2 * time.Second
	suggestionLimit = 200
)

// JobSource lists and triggers jobs. Implemented by [scheduler.Scheduler].
type JobSource interface {
	Jobs() []scheduler.JobStatus
	Trigger(ctx context.Context, id string) error
}

// SuggestionSource lists stored suggestions. Implemented by repositories.SuggestionRepository.
type SuggestionSource interface {
	List(ctx context.Context, criteria map[string]any) ([]*models.Suggestion, error)
}

// Model represents the TUI application state.
type Model struct {
	ctx         context.Context
	view        ViewState
	jobs        JobSource
	suggestions SuggestionSource
	interval    time.Duration

	width          int
	height         int
	jobList        list.Model
	suggestionList list.Model
	selected       string
	status         string
	err            error
	help           help.Model
	keys           keyMap
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, jobs JobSource, suggestions SuggestionSource) *Model {
	jobList := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	jobList.Title = "Jobs"
	suggestionList := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	suggestionList.Title = "Suggestions"

	return &Model{
		ctx:            ctx,
		view:           JobsView,
		jobs:           jobs,
		suggestions:    suggestions,
		interval:       refreshInterval,
		jobList:        jobList,
		suggestionList: suggestionList,
		help:           help.New(),
		keys:           newKeyMap(),
	}
}

// ViewState returns the active view.
func (m *Model) ViewState() ViewState { return m.view }

// Init loads the jobs and starts the refresh tick.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.loadJobs(), m.tick())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.jobList.SetSize(msg.Width-4, msg.Height-8)
		m.suggestionList.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case tea.KeyMsg:
		if m.filtering() {
			return m.updateLists(msg)
		}
		switch m.view {
		case JobsView:
			return m.handleJobKeys(msg)
		case JobDetailView:
			return m.handleDetailKeys(msg)
		case SuggestionsView:
			return m.handleSuggestionKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateLists(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgJobsLoaded:
		jobs := msg.data.([]scheduler.JobStatus)
		items := make([]list.Item, len(jobs))
		for i, j := range jobs {
			items[i] = jobItem{job: j}
		}
		return m, m.jobList.SetItems(items)

	case MsgSuggestionsLoaded:
		data := msg.data.(suggestionsLoaded)
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		m.err = nil
		items := make([]list.Item, len(data.suggestions))
		for i, sg := range data.suggestions {
			items[i] = suggestionItem{suggestion: sg}
		}
		return m, m.suggestionList.SetItems(items)

	case MsgTriggered:
		data := msg.data.(triggered)
		if data.err != nil {
			m.status = styles.err.Render(fmt.Sprintf("%s: %v", data.id, data.err))
		} else {
			m.status = styles.ok.Render(fmt.Sprintf("started %s", data.id))
		}
		return m, m.loadJobs()

	case MsgTick:
		return m, tea.Batch(m.loadJobs(), m.tick())
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case JobsView:
		return m.renderJobs()
	case JobDetailView:
		return m.renderDetail()
	case SuggestionsView:
		return m.renderSuggestions()
	default:
		return ""
	}
}

func (m *Model) filtering() bool {
	switch m.view {
	case JobsView:
		return m.jobList.FilterState() == list.Filtering
	case SuggestionsView:
		return m.suggestionList.FilterState() == list.Filtering
	}
	return false
}

func (m *Model) selectedJob() (scheduler.JobStatus, bool) {
	if m.view == JobDetailView {
		for _, it := range m.jobList.Items() {
			if j := it.(jobItem); j.job.ID == m.selected {
				return j.job, true
			}
		}
		return scheduler.JobStatus{}, false
	}
	item, ok := m.jobList.SelectedItem().(jobItem)
	return item.job, ok
}

func (m *Model) handleJobKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.trigger):
		if job, ok := m.selectedJob(); ok {
			return m, m.trigger(job.ID)
		}
		return m, nil
	case key.Matches(msg, m.keys.detail):
		if job, ok := m.selectedJob(); ok {
			m.selected = job.ID
			m.view = JobDetailView
		}
		return m, nil
	case key.Matches(msg, m.keys.suggestions):
		m.view = SuggestionsView
		return m, m.loadSuggestions()
	case key.Matches(msg, m.keys.refresh):
		m.status = ""
		return m, m.loadJobs()
	}

	var cmd tea.Cmd
	m.jobList, cmd = m.jobList.Update(msg)
	return m, cmd
}

func (m *Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = JobsView
		m.selected = ""
	case key.Matches(msg, m.keys.trigger):
		return m, m.trigger(m.selected)
	case key.Matches(msg, m.keys.refresh):
		return m, m.loadJobs()
	}
	return m, nil
}

func (m *Model) handleSuggestionKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = JobsView
		m.err = nil
		return m, nil
	case key.Matches(msg, m.keys.refresh):
		return m, m.loadSuggestions()
	}

	var cmd tea.Cmd
	m.suggestionList, cmd = m.suggestionList.Update(msg)
	return m, cmd
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case JobsView:
		m.jobList, cmd = m.jobList.Update(msg)
	case SuggestionsView:
		m.suggestionList, cmd = m.suggestionList.Update(msg)
	}
	return m, cmd
}

func (m *Model) loadJobs() tea.Cmd {
	return func() tea.Msg {
		return jobsLoadedMsg(m.jobs.Jobs())
	}
}

func (m *Model) loadSuggestions() tea.Cmd {
	return func() tea.Msg {
		found, err := m.suggestions.List(m.ctx, map[string]any{"ignored": false, "limit": suggestionLimit})
		return suggestionsLoadedMsg(found, err)
	}
}

func (m *Model) trigger(id string) tea.Cmd {
	return func() tea.Msg {
		return triggeredMsg(id, m.jobs.Trigger(m.ctx, id))
	}
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) renderJobs() string {
	helpKeys := []key.Binding{m.keys.trigger, m.keys.detail, m.keys.suggestions, m.keys.refresh, m.keys.quit}
	out := m.jobList.View()
	if m.status != "" {
		out = fmt.Sprintf("%s\n%s", out, m.status)
	}
	return fmt.Sprintf("%s\n\n%s", out, m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderDetail() string {
	job, ok := m.selectedJob()
	if !ok {
		return styles.err.Render(fmt.Sprintf("Job %s no longer exists\n\nPress esc to go back", m.selected))
	}

	var b strings.Builder
	b.WriteString(styles.title.Render(job.ID))
	b.WriteString("\n")
	row := func(label, value string) {
		fmt.Fprintf(&b, "%s %s\n", styles.label.Render(label), value)
	}
	row("Kind", string(job.Kind))
	row("Schedule", job.Schedule.String())
	row("Enabled", fmt.Sprint(job.Enabled))
	row("State", string(job.State))
	if job.Target != nil {
		row("Search", fmt.Sprint(*job.Target))
	}
	if job.LastRunAt != nil {
		row("Last run", fmt.Sprintf("%s (%s)", job.LastRunAt.Local().Format(time.DateTime), job.LastDuration.Round(time.Millisecond)))
	}
	if job.NextRunAt != nil {
		row("Next run", job.NextRunAt.Local().Format(time.DateTime))
	}
	if job.LastError != "" {
		row("Last error", styles.err.Render(job.LastError))
	}
	if m.status != "" {
		b.WriteString("\n" + m.status + "\n")
	}

	helpKeys := []key.Binding{m.keys.trigger, m.keys.back, m.keys.quit}
	return fmt.Sprintf("%s\n%s", b.String(), m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderSuggestions() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress esc to go back, q to quit", m.err))
	}
	helpKeys := []key.Binding{m.keys.back, m.keys.refresh, m.keys.quit}
	return fmt.Sprintf("%s\n\n%s", m.suggestionList.View(), m.help.ShortHelpView(helpKeys))
}
