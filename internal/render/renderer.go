package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"mulmocast-backend/internal/generation"
)

const maxRetries = 3

// Renderer adapts the remote render service to generation.Renderer: it
// submits the script, polls until the render settles and downloads the output.
type Renderer struct {
	client *Client
	logger *slog.Logger
}

var _ generation.Renderer = (*Renderer)(nil)

func NewRenderer(client *Client, logger *slog.Logger) *Renderer {
	return &Renderer{client: client, logger: logger.With("component", "render")}
}

func (r *Renderer) Render(ctx context.Context, job generation.RenderJob, report generation.ProgressFunc) (*generation.Artifact, error) {
	var renderID string
	err := r.client.RetryWithBackoff(ctx, func() error {
		id, err := r.client.CreateRender(ctx, CreateRenderRequest{
			ExternalID: strconv.FormatInt(job.GenerationID, 10),
			OutputKind: job.OutputKind,
			Script:     job.Script,
		})
		renderID = id
		return err
	}, maxRetries)
	if err != nil {
		return nil, err
	}
	r.logger.Info("render submitted", "generation_id", job.GenerationID, "render_id", renderID)

	status, err := r.poll(ctx, renderID, report)
	if err != nil {
		if ctx.Err() != nil {
			r.cancelRemote(renderID)
		}
		return nil, err
	}

	var artifact *generation.Artifact
	err = r.client.RetryWithBackoff(ctx, func() error {
		a, err := r.client.DownloadFile(ctx, status.DownloadURL)
		artifact = a
		return err
	}, maxRetries)
	if err != nil {
		return nil, err
	}
	return artifact, nil
}

func (r *Renderer) poll(ctx context.Context, renderID string, report generation.ProgressFunc) (*RenderStatusResponse, error) {
	ticker := time.NewTicker(r.client.pollInterval)
	defer ticker.Stop()

	for {
		var status *RenderStatusResponse
		err := r.client.RetryWithBackoff(ctx, func() error {
			s, err := r.client.GetRenderStatus(ctx, renderID)
			status = s
			return err
		}, maxRetries)
		if err != nil {
			return nil, err
		}

		switch status.Status {
		case StatusSucceeded:
			if status.DownloadURL == "" {
				return nil, fmt.Errorf("render %s succeeded without a download url", renderID)
			}
			return status, nil
		case StatusFailed:
			if status.Error == "" {
				return nil, errors.New("render failed")
			}
			return nil, fmt.Errorf("render failed: %s", status.Error)
		case StatusRendering:
			report(status.Progress)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// cancelRemote runs on its own context since the job's context is done.
func (r *Renderer) cancelRemote(renderID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.client.CancelRender(ctx, renderID); err != nil {
		r.logger.Warn("failed to cancel remote render", "render_id", renderID, "error", err)
	}
}
