package models

import "time"

type OutputKind string

const (
	OutputPodcast   OutputKind = "podcast"
	OutputVideo     OutputKind = "video"
	OutputSlideshow OutputKind = "slideshow"
	OutputPDF       OutputKind = "pdf"
)

var OutputKinds = []OutputKind{OutputPodcast, OutputVideo, OutputSlideshow, OutputPDF}

func (k OutputKind) Valid() bool {
	for _, known := range OutputKinds {
		if k == known {
			return true
		}
	}
	return false
}

type ProjectStatus string

const (
	ProjectDraft      ProjectStatus = "draft"
	ProjectGenerating ProjectStatus = "generating"
	ProjectCompleted  ProjectStatus = "completed"
	ProjectError      ProjectStatus = "error"
)

func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectDraft, ProjectGenerating, ProjectCompleted, ProjectError:
		return true
	}
	return false
}

type Project struct {
	ID          int64         `json:"id"`
	UserID      int64         `json:"userId"`
	Name        string        `json:"name"`
	Description *string       `json:"description"`
	Script      Script        `json:"script"`
	OutputKind  OutputKind    `json:"outputKind"`
	Status      ProjectStatus `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// Clone returns a deep copy of p.
func (p *Project) Clone() *Project {
	cp := *p
	cp.Description = cloneString(p.Description)
	cp.Script = *p.Script.Clone()
	return &cp
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
