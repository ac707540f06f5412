package models

import "time"

type GenerationStatus string

const (
	GenerationPending    GenerationStatus = "pending"
	GenerationProcessing GenerationStatus = "processing"
	GenerationCompleted  GenerationStatus = "completed"
	GenerationError      GenerationStatus = "error"
	GenerationCancelled  GenerationStatus = "cancelled"
)

// ActiveGenerationStatuses are the non-terminal states.
var ActiveGenerationStatuses = []GenerationStatus{GenerationPending, GenerationProcessing}

func (s GenerationStatus) Valid() bool {
	switch s {
	case GenerationPending, GenerationProcessing, GenerationCompleted, GenerationError, GenerationCancelled:
		return true
	}
	return false
}

func (s GenerationStatus) Terminal() bool {
	return s == GenerationCompleted || s == GenerationError || s == GenerationCancelled
}

// rank orders statuses along the lifecycle; all terminal states share a rank.
func (s GenerationStatus) rank() int {
	switch s {
	case GenerationPending:
		return 0
	case GenerationProcessing:
		return 1
	default:
		return 2
	}
}

// CanTransitionTo reports whether moving from s to next keeps the lifecycle
// monotonic. Staying in an active state is allowed; leaving a terminal one is not.
func (s GenerationStatus) CanTransitionTo(next GenerationStatus) bool {
	if s.Terminal() {
		return false
	}
	return next.rank() >= s.rank()
}

// Generation is one tracked request to render a project's script.
type Generation struct {
	ID           int64            `json:"id"`
	ProjectID    int64            `json:"projectId"`
	OutputKind   OutputKind       `json:"outputKind"`
	Status       GenerationStatus `json:"status"`
	Progress     int              `json:"progress"`
	OutputURL    *string          `json:"outputUrl"`
	ErrorMessage *string          `json:"errorMessage"`
	CreatedAt    time.Time        `json:"createdAt"`
	CompletedAt  *time.Time       `json:"completedAt"`
}

func (g *Generation) Clone() *Generation {
	cp := *g
	cp.OutputURL = cloneString(g.OutputURL)
	cp.ErrorMessage = cloneString(g.ErrorMessage)
	if g.CompletedAt != nil {
		t := *g.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// GenerationPatch carries the externally mutable fields of a job.
type GenerationPatch struct {
	Status       *GenerationStatus `json:"status,omitempty"`
	Progress     *int              `json:"progress,omitempty"`
	OutputURL    *string           `json:"outputUrl,omitempty"`
	ErrorMessage *string           `json:"errorMessage,omitempty"`
}

// Apply merges the set fields of p into g.
func (p GenerationPatch) Apply(g *Generation) {
	if p.Status != nil {
		g.Status = *p.Status
	}
	if p.Progress != nil {
		g.Progress = *p.Progress
	}
	if p.OutputURL != nil {
		g.OutputURL = cloneString(p.OutputURL)
	}
	if p.ErrorMessage != nil {
		g.ErrorMessage = cloneString(p.ErrorMessage)
	}
}
