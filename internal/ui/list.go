package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"

	"github.com/desertthunder/curatarr/internal/models"
	"github.com/desertthunder/curatarr/internal/scheduler"
)

var (
	_ list.Item = jobItem{}
	_ list.Item = suggestionItem{}
)

// jobItem wraps [scheduler.JobStatus] to implement [list.Item].
type jobItem struct {
	job scheduler.JobStatus
}

func (i jobItem) FilterValue() string { return i.job.ID }
func (i jobItem) Title() string {
	return fmt.Sprintf("%s %s", stateBadge(i.job), i.job.ID)
}
func (i jobItem) Description() string {
	parts := []string{string(i.job.Kind), i.job.Schedule.String()}
	if !i.job.Enabled {
		parts = append(parts, "disabled")
	} else if i.job.NextRunAt != nil {
		parts = append(parts, "next "+i.job.NextRunAt.Local().Format(time.DateTime))
	}
	if i.job.LastError != "" {
		parts = append(parts, "last error: "+i.job.LastError)
	}
	return strings.Join(parts, " • ")
}

func stateBadge(j scheduler.JobStatus) string {
	switch {
	case j.State == scheduler.StateRunning:
		return styles.warn.Render("●")
	case j.LastError != "":
		return styles.err.Render("●")
	case !j.Enabled:
		return styles.help.Render("○")
	default:
		return styles.ok.Render("●")
	}
}

// suggestionItem wraps [models.Suggestion] to implement [list.Item].
type suggestionItem struct {
	suggestion *models.Suggestion
}

func (i suggestionItem) FilterValue() string { return i.suggestion.Title }
func (i suggestionItem) Title() string {
	title := fmt.Sprintf("%s (%s)", i.suggestion.Title, i.suggestion.MediaType)
	switch {
	case i.suggestion.Requested:
		title += " ✓"
	case i.suggestion.Ignored:
		title += " ✗"
	}
	return title
}
func (i suggestionItem) Description() string {
	desc := i.suggestion.Description
	if i.suggestion.Similarity != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.suggestion.Similarity)
	}
	return desc
}
