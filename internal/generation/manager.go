// Package generation drives generation jobs from pending to a terminal state.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mulmocast-backend/internal/apperrors"
	"mulmocast-backend/internal/logging"
	"mulmocast-backend/internal/models"
	"mulmocast-backend/internal/store"
)

const (
	restartMessage  = "interrupted by server restart"
	shutdownMessage = "interrupted by server shutdown"
)

// errStale aborts a store update whose precondition no longer holds.
var errStale = errors.New("stale generation transition")

type Options struct {
	// Workers bounds how many renders run at once.
	Workers int
	// Timeout bounds a single render. Zero disables it.
	Timeout    time.Duration
	Logger     *slog.Logger
	Publishers []Publisher
}

type Manager struct {
	store      store.Store
	renderer   Renderer
	artifacts  ArtifactStore
	publishers []Publisher
	logger     *slog.Logger
	timeout    time.Duration
	slots      chan struct{}

	base context.Context
	stop context.CancelFunc

	mu      sync.Mutex
	running map[int64]context.CancelFunc
	closed  bool
	wg      sync.WaitGroup
}

func NewManager(st store.Store, renderer Renderer, artifacts ArtifactStore, opts Options) *Manager {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	base, stop := context.WithCancel(context.Background())
	return &Manager{
		store:      st,
		renderer:   renderer,
		artifacts:  artifacts,
		publishers: opts.Publishers,
		logger:     opts.Logger.With("component", "generation"),
		timeout:    opts.Timeout,
		slots:      make(chan struct{}, opts.Workers),
		base:       base,
		stop:       stop,
		running:    make(map[int64]context.CancelFunc),
	}
}

// RequestGeneration creates a pending job for the project and returns it
// immediately. The job advances in the background.
func (m *Manager) RequestGeneration(ctx context.Context, projectID int64, kind models.OutputKind) (*models.Generation, error) {
	if !kind.Valid() {
		return nil, apperrors.NewValidationError("invalid output kind",
			apperrors.FieldError{Field: "outputKind", Message: fmt.Sprintf("unknown output kind %q", kind)})
	}
	if m.isClosed() {
		return nil, apperrors.NewInternalError("generation manager is shut down", nil)
	}

	project, err := m.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if len(project.Script.Beats) == 0 {
		return nil, apperrors.NewValidationError("project script has no beats",
			apperrors.FieldError{Field: "script.beats", Message: "at least one beat is required to generate"})
	}

	job, err := m.store.CreateGeneration(ctx, models.Generation{
		ProjectID:  project.ID,
		OutputKind: kind,
		Status:     models.GenerationPending,
		Progress:   0,
	})
	if err != nil {
		return nil, err
	}

	if _, err := m.store.UpdateProject(ctx, project.ID, func(p *models.Project) error {
		p.Status = models.ProjectGenerating
		return nil
	}); err != nil && !apperrors.IsNotFoundError(err) {
		m.logger.Warn("failed to mark project generating", "project_id", project.ID, "error", err)
	}

	m.logger.Info("generation requested", "generation_id", job.ID, "project_id", project.ID, "output_kind", kind)
	m.publish(ctx, NewEvent(job))
	m.start(job.Clone(), *project.Script.Clone())
	return job, nil
}

func (m *Manager) start(job *models.Generation, script models.Script) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.transition(job.ID, failWith(shutdownMessage))
		return
	}
	ctx, cancel := context.WithCancel(m.base)
	m.running[job.ID] = cancel
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(ctx, job, script)
}

func (m *Manager) run(ctx context.Context, job *models.Generation, script models.Script) {
	defer m.wg.Done()
	defer func() {
		m.mu.Lock()
		if cancel, ok := m.running[job.ID]; ok {
			cancel()
			delete(m.running, job.ID)
		}
		m.mu.Unlock()
	}()

	select {
	case m.slots <- struct{}{}:
	case <-ctx.Done():
		m.fail(ctx, job.ID, ctx.Err())
		return
	}
	defer func() { <-m.slots }()

	// The timeout covers rendering only, not time spent queued for a slot.
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	started := time.Now()
	// Holding a slot means the job is processing, whether or not the
	// renderer ever reports progress.
	m.transition(job.ID, func(g *models.Generation) bool {
		if g.Status != models.GenerationPending {
			return false
		}
		g.Status = models.GenerationProcessing
		return true
	})

	report := func(progress int) {
		m.transition(job.ID, func(g *models.Generation) bool {
			if g.Status.Terminal() || progress < g.Progress {
				return false
			}
			if progress > 100 {
				progress = 100
			}
			if g.Status == models.GenerationProcessing && progress == g.Progress {
				return false
			}
			g.Status = models.GenerationProcessing
			g.Progress = progress
			return true
		})
	}

	artifact, err := m.renderer.Render(ctx, RenderJob{
		GenerationID: job.ID,
		ProjectID:    job.ProjectID,
		OutputKind:   job.OutputKind,
		Script:       script,
	}, report)
	if err != nil {
		m.fail(ctx, job.ID, err)
		return
	}

	name := ArtifactName(job.ID, job.OutputKind)
	if err := m.artifacts.Save(ctx, name, artifact); err != nil {
		m.fail(ctx, job.ID, fmt.Errorf("failed to store artifact: %w", err))
		return
	}

	url := OutputURL(name)
	done := m.transition(job.ID, func(g *models.Generation) bool {
		if g.Status.Terminal() {
			return false
		}
		g.Status = models.GenerationCompleted
		g.Progress = 100
		g.OutputURL = &url
		return true
	})
	if done == nil {
		if err := m.artifacts.Delete(context.Background(), name); err != nil {
			m.logger.Warn("failed to delete orphaned artifact", "artifact", name, "error", err)
		}
		return
	}
	m.logger.Info("generation completed", "generation_id", job.ID, "duration", time.Since(started))
}

// fail moves the job to error unless it was stopped on purpose.
func (m *Manager) fail(ctx context.Context, id int64, err error) {
	message := err.Error()
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		message = fmt.Sprintf("generation timed out after %s", m.timeout)
	case m.base.Err() != nil:
		message = shutdownMessage
	case ctx.Err() != nil:
		// Cancelled or finished externally; the job is already terminal.
		return
	}
	m.logger.Warn("generation failed", "generation_id", id, "error", message)
	m.transition(id, failWith(message))
}

func failWith(message string) func(*models.Generation) bool {
	return func(g *models.Generation) bool {
		if g.Status.Terminal() {
			return false
		}
		g.Status = models.GenerationError
		g.ErrorMessage = &message
		return true
	}
}

// transition applies a compare-and-set update for background work. It returns
// nil when the precondition failed or the job is gone.
func (m *Manager) transition(id int64, apply func(*models.Generation) bool) *models.Generation {
	ctx := context.Background()
	updated, err := m.store.UpdateGeneration(ctx, id, func(g *models.Generation) error {
		if !apply(g) {
			return errStale
		}
		return nil
	})
	switch {
	case errors.Is(err, errStale):
		return nil
	case apperrors.IsNotFoundError(err):
		m.logger.Debug("generation vanished", "generation_id", id)
		return nil
	case err != nil:
		m.logger.Error("failed to update generation", "generation_id", id, "error", err)
		return nil
	}
	m.afterTransition(ctx, updated)
	return updated
}

func (m *Manager) afterTransition(ctx context.Context, g *models.Generation) {
	m.publish(ctx, NewEvent(g))
	m.syncProject(ctx, g)
}

// syncProject mirrors a terminal job onto its project once no other job of
// the project is still active.
func (m *Manager) syncProject(ctx context.Context, g *models.Generation) {
	var status models.ProjectStatus
	switch g.Status {
	case models.GenerationCompleted:
		status = models.ProjectCompleted
	case models.GenerationError:
		status = models.ProjectError
	case models.GenerationCancelled:
		status = models.ProjectDraft
	default:
		return
	}

	active, err := m.store.ListGenerations(ctx, store.GenerationFilter{
		ProjectID: &g.ProjectID,
		Statuses:  models.ActiveGenerationStatuses,
	})
	if err != nil {
		m.logger.Warn("failed to list active generations", "project_id", g.ProjectID, "error", err)
		return
	}
	if len(active) > 0 {
		return
	}

	if _, err := m.store.UpdateProject(ctx, g.ProjectID, func(p *models.Project) error {
		p.Status = status
		return nil
	}); err != nil && !apperrors.IsNotFoundError(err) {
		m.logger.Warn("failed to sync project status", "project_id", g.ProjectID, "error", err)
	}
}

func (m *Manager) publish(ctx context.Context, event Event) {
	for _, p := range m.publishers {
		if err := p.Publish(ctx, event); err != nil {
			m.logger.Warn("failed to publish generation event",
				"event", event.Type, "generation_id", event.GenerationID, "error", err)
		}
	}
}

// UpdateGeneration applies an external patch. Status may only move forward,
// progress may not decrease and terminal jobs are immutable.
func (m *Manager) UpdateGeneration(ctx context.Context, id int64, patch models.GenerationPatch) (*models.Generation, error) {
	var details []apperrors.FieldError
	if patch.Status != nil && !patch.Status.Valid() {
		details = append(details, apperrors.FieldError{Field: "status", Message: fmt.Sprintf("unknown status %q", *patch.Status)})
	}
	if patch.Progress != nil && (*patch.Progress < 0 || *patch.Progress > 100) {
		details = append(details, apperrors.FieldError{Field: "progress", Message: "must be between 0 and 100"})
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid generation update", details...)
	}

	updated, err := m.store.UpdateGeneration(ctx, id, func(g *models.Generation) error {
		if g.Status.Terminal() {
			return apperrors.NewValidationError(fmt.Sprintf("generation %d is already %s", id, g.Status))
		}
		if patch.Status != nil && !g.Status.CanTransitionTo(*patch.Status) {
			return apperrors.NewValidationError("invalid status transition",
				apperrors.FieldError{Field: "status", Message: fmt.Sprintf("cannot move from %s to %s", g.Status, *patch.Status)})
		}
		if patch.Progress != nil && *patch.Progress < g.Progress {
			return apperrors.NewValidationError("progress cannot decrease",
				apperrors.FieldError{Field: "progress", Message: fmt.Sprintf("must be at least %d", g.Progress)})
		}
		patch.Apply(g)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if updated.Status.Terminal() {
		m.stopWorker(id)
	}
	m.afterTransition(ctx, updated)
	return updated, nil
}

// Cancel moves an active job to cancelled and stops its render.
func (m *Manager) Cancel(ctx context.Context, id int64) (*models.Generation, error) {
	updated, err := m.store.UpdateGeneration(ctx, id, func(g *models.Generation) error {
		if g.Status.Terminal() {
			return apperrors.NewConflictError(fmt.Sprintf("generation %d is already %s", id, g.Status))
		}
		g.Status = models.GenerationCancelled
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.stopWorker(id)
	m.logger.Info("generation cancelled", "generation_id", id)
	m.afterTransition(ctx, updated)
	return updated, nil
}

// CancelProject cancels every active job of the project.
func (m *Manager) CancelProject(ctx context.Context, projectID int64) ([]models.Generation, error) {
	active, err := m.store.ListGenerations(ctx, store.GenerationFilter{
		ProjectID: &projectID,
		Statuses:  models.ActiveGenerationStatuses,
	})
	if err != nil {
		return nil, err
	}

	cancelled := make([]models.Generation, 0, len(active))
	for _, g := range active {
		updated, err := m.Cancel(ctx, g.ID)
		if apperrors.IsConflictError(err) || apperrors.IsNotFoundError(err) {
			continue
		}
		if err != nil {
			return cancelled, err
		}
		cancelled = append(cancelled, *updated)
	}
	return cancelled, nil
}

// RecoverInterrupted fails active jobs that no worker of this process owns,
// which happens after a restart with a persistent store.
func (m *Manager) RecoverInterrupted(ctx context.Context) (int, error) {
	active, err := m.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, g := range active {
		if m.isRunning(g.ID) {
			continue
		}
		if m.transition(g.ID, failWith(restartMessage)) != nil {
			recovered++
		}
	}
	if recovered > 0 {
		m.logger.Info("failed interrupted generations", "count", recovered)
	}
	return recovered, nil
}

func (m *Manager) Get(ctx context.Context, id int64) (*models.Generation, error) {
	return m.store.GetGeneration(ctx, id)
}

// ListActive returns the pending and processing jobs.
func (m *Manager) ListActive(ctx context.Context) ([]models.Generation, error) {
	return m.store.ListGenerations(ctx, store.GenerationFilter{Statuses: models.ActiveGenerationStatuses})
}

func (m *Manager) ListByProject(ctx context.Context, projectID int64) ([]models.Generation, error) {
	return m.store.ListGenerations(ctx, store.GenerationFilter{ProjectID: &projectID})
}

// Download resolves the output of a completed job by its download name. When
// the artifact store serves public links only the link is returned; otherwise
// the artifact itself is loaded.
func (m *Manager) Download(ctx context.Context, name string) (string, *Artifact, error) {
	notFound := apperrors.NewNotFoundError(fmt.Sprintf("output %s not found", name))

	id, kind, ok := ParseArtifactName(name)
	if !ok {
		return "", nil, notFound
	}
	job, err := m.store.GetGeneration(ctx, id)
	if apperrors.IsNotFoundError(err) {
		return "", nil, notFound
	}
	if err != nil {
		return "", nil, err
	}
	if job.Status != models.GenerationCompleted || job.OutputKind != kind ||
		job.OutputURL == nil || *job.OutputURL != OutputURL(name) {
		return "", nil, notFound
	}

	if url, ok := m.PublicURL(name); ok {
		return url, nil, nil
	}
	artifact, err := m.artifacts.Open(ctx, name)
	if err != nil {
		return "", nil, err
	}
	return "", artifact, nil
}

// PublicURL returns a direct link for the artifact when the store offers one.
func (m *Manager) PublicURL(name string) (string, bool) {
	linker, ok := m.artifacts.(PublicLinker)
	if !ok {
		return "", false
	}
	url := linker.PublicURL(name)
	return url, url != ""
}

// Close stops accepting work, fails in-flight jobs and waits for workers.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.stop()
	m.wg.Wait()
	return nil
}

func (m *Manager) stopWorker(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cancel, ok := m.running[id]; ok {
		cancel()
	}
}

func (m *Manager) isRunning(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.running[id]
	return ok
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
