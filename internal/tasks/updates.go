package tasks

import (
	"fmt"

	"github.com/desertthunder/repertoire/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Completed items within phase
	Total   int    // Total items in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Operation phase enumeration
type Phase int

const (
	DeleteEntities Phase = iota
	PrefetchLists
)

func (p Phase) String() string {
	switch p {
	case DeleteEntities:
		return "delete"
	case PrefetchLists:
		return "prefetch"
	default:
		return ""
	}
}

func startedUpdate(phase Phase, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   phase,
		Total:   total,
		Message: fmt.Sprintf("Starting %s of %d item(s)...", phase, total),
	}
}

func completedUpdate(phase Phase, step, total int, res ItemResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   phase,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s", step, total, label(res.Ref)),
		Data:    res,
	}
}

func failedUpdate(phase Phase, step, total int, res ItemResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   phase,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, label(res.Ref), res.Err),
		Data:    res,
	}
}

func label(ref models.EntityRef) string {
	if ref.ID == "" {
		return string(ref.Kind)
	}
	return fmt.Sprintf("%s %s", ref.Kind, ref.ID)
}
