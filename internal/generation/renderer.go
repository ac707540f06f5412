package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mulmocast-backend/internal/models"
)

// RenderJob is the input handed to a Renderer.
type RenderJob struct {
	GenerationID int64
	ProjectID    int64
	OutputKind   models.OutputKind
	Script       models.Script
}

// Artifact is a rendered output.
type Artifact struct {
	ContentType string
	Data        []byte
}

// ProgressFunc receives progress percentages while a render runs.
type ProgressFunc func(progress int)

// Renderer turns a script into media. Render must return promptly once ctx is
// done.
type Renderer interface {
	Render(ctx context.Context, job RenderJob, report ProgressFunc) (*Artifact, error)
}

// SimulatedRenderer stands in for a media pipeline: it reports half progress
// after ProcessingDelay and finishes after a further CompletionDelay with a
// JSON manifest of the script.
type SimulatedRenderer struct {
	ProcessingDelay time.Duration
	CompletionDelay time.Duration
}

type renderManifest struct {
	GenerationID    int64             `json:"generationId"`
	ProjectID       int64             `json:"projectId"`
	OutputKind      models.OutputKind `json:"outputKind"`
	BeatCount       int               `json:"beatCount"`
	TotalDurationMs int64             `json:"totalDurationMs"`
	RenderedAt      time.Time         `json:"renderedAt"`
	Script          models.Script     `json:"script"`
}

func (r SimulatedRenderer) Render(ctx context.Context, job RenderJob, report ProgressFunc) (*Artifact, error) {
	if err := sleep(ctx, r.ProcessingDelay); err != nil {
		return nil, err
	}
	report(50)

	if err := sleep(ctx, r.CompletionDelay); err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(renderManifest{
		GenerationID:    job.GenerationID,
		ProjectID:       job.ProjectID,
		OutputKind:      job.OutputKind,
		BeatCount:       len(job.Script.Beats),
		TotalDurationMs: job.Script.TotalDuration().Milliseconds(),
		RenderedAt:      time.Now().UTC(),
		Script:          job.Script,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode render manifest: %w", err)
	}
	return &Artifact{ContentType: "application/json", Data: data}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
