package tasks

import (
	"fmt"

	"github.com/desertthunder/curatarr/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	Render Phase = iota
	Generate
	Validate
	Enrich
	Persist
	ListUsers
	SyncHistory
	ProcessHistory
)

func (p Phase) String() string {
	switch p {
	case Render:
		return "render_prompt"
	case Generate:
		return "generate"
	case Validate:
		return "validate"
	case Enrich:
		return "enrich"
	case Persist:
		return "persist"
	case ListUsers:
		return "list_users"
	case SyncHistory:
		return "sync_history"
	case ProcessHistory:
		return "process_history"
	default:
		return ""
	}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func renderUpdate(search *models.Search) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Render,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Rendering search %q...", search.Name),
		Data:    search,
	}
}

func generateUpdate(provider string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Generate,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Generating suggestions with %s...", provider),
	}
}

func validateUpdate(kept, dropped int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Validate,
		Step:    kept,
		Total:   kept + dropped,
		Message: fmt.Sprintf("%d candidates kept, %d dropped", kept, dropped),
	}
}

func enrichUpdate(step, total int, provider, title string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Enrich,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Looking up %s on %s...", step, total, title, provider),
	}
}

func persistUpdate(step, total int, c CandidateResult) ProgressUpdate {
	mark := "✓"
	switch {
	case c.Duplicate:
		mark = "="
	case !c.Saved:
		mark = "-"
	}
	return ProgressUpdate{
		Phase:   Persist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s %s (%s)", step, total, mark, c.Title, c.MediaType),
		Data:    c,
	}
}

func listUsersUpdate(step, total int, provider string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ListUsers,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Listing users on %s...", provider),
	}
}

func syncCompletedUpdate(step, total int, res syncResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SyncHistory,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s/%s (%d new)", step, total, res.item.provider, res.item.user.Name, res.stored),
	}
}

func syncFailedUpdate(step, total int, res syncResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SyncHistory,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s/%s: %v", step, total, res.item.provider, res.item.user.Name, res.err),
	}
}

func processHistoryUpdate(step, total int, title string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ProcessHistory,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Finding titles similar to %s...", step, total, title),
	}
}
