package generation_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mulmocast-backend/internal/apperrors"
	"mulmocast-backend/internal/generation"
	"mulmocast-backend/internal/models"
	"mulmocast-backend/internal/store"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []generation.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event generation.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) forJob(id int64) []generation.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []generation.Event
	for _, e := range p.events {
		if e.GenerationID == id {
			out = append(out, e)
		}
	}
	return out
}

type renderFunc func(ctx context.Context, job generation.RenderJob, report generation.ProgressFunc) (*generation.Artifact, error)

func (f renderFunc) Render(ctx context.Context, job generation.RenderJob, report generation.ProgressFunc) (*generation.Artifact, error) {
	return f(ctx, job, report)
}

// blockingRenderer runs until its context ends.
var blockingRenderer = renderFunc(func(ctx context.Context, _ generation.RenderJob, _ generation.ProgressFunc) (*generation.Artifact, error) {
	<-ctx.Done()
	return nil, ctx.Err()
})

type fixture struct {
	store     *store.MemoryStore
	artifacts *generation.MemoryArtifacts
	events    *recordingPublisher
	manager   *generation.Manager
	project   *models.Project
}

func newFixture(t *testing.T, renderer generation.Renderer, opts generation.Options) *fixture {
	t.Helper()
	f := &fixture{
		store:     store.NewMemoryStore(),
		artifacts: generation.NewMemoryArtifacts(),
		events:    &recordingPublisher{},
	}
	if opts.Workers == 0 {
		opts.Workers = 4
	}
	opts.Publishers = append(opts.Publishers, f.events)
	f.manager = generation.NewManager(f.store, renderer, f.artifacts, opts)
	t.Cleanup(func() { f.manager.Close() })

	project, err := f.store.CreateProject(context.Background(), models.Project{
		UserID:     1,
		Name:       "Demo",
		OutputKind: models.OutputPodcast,
		Script: models.Script{
			FormatVersion: "1.0",
			Beats:         []models.Beat{{Text: "Hello"}, {Text: "World"}},
		},
	})
	require.NoError(t, err)
	f.project = project
	return f
}

func (f *fixture) waitForStatus(t *testing.T, id int64, status models.GenerationStatus) *models.Generation {
	t.Helper()
	var last *models.Generation
	require.Eventually(t, func() bool {
		g, err := f.manager.Get(context.Background(), id)
		if err != nil {
			return false
		}
		last = g
		return g.Status == status
	}, waitFor, tick, "generation %d never reached %s", id, status)
	return last
}

func simulated() generation.SimulatedRenderer {
	return generation.SimulatedRenderer{ProcessingDelay: 20 * time.Millisecond, CompletionDelay: 80 * time.Millisecond}
}

func TestRequestGeneration_AdvancesThroughLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, simulated(), generation.Options{})

	job, err := f.manager.RequestGeneration(ctx, f.project.ID, models.OutputPodcast)
	require.NoError(t, err)
	assert.Equal(t, models.GenerationPending, job.Status)
	assert.Equal(t, 0, job.Progress)
	assert.Nil(t, job.CompletedAt)

	project, err := f.store.GetProject(ctx, f.project.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProjectGenerating, project.Status)

	var processing *models.Generation
	require.Eventually(t, func() bool {
		g, err := f.manager.Get(ctx, job.ID)
		if err != nil {
			return false
		}
		processing = g
		return g.Status == models.GenerationProcessing && g.Progress == 50
	}, waitFor, tick)
	assert.Nil(t, processing.CompletedAt)

	done := f.waitForStatus(t, job.ID, models.GenerationCompleted)
	assert.Equal(t, 100, done.Progress)
	require.NotNil(t, done.CompletedAt)
	require.NotNil(t, done.OutputURL)
	assert.Equal(t, generation.OutputURL(generation.ArtifactName(job.ID, models.OutputPodcast)), *done.OutputURL)

	artifact, err := f.artifacts.Open(ctx, generation.ArtifactName(job.ID, models.OutputPodcast))
	require.NoError(t, err)
	assert.Equal(t, "application/json", artifact.ContentType)
	assert.Contains(t, string(artifact.Data), `"beatCount": 2`)

	var events []generation.Event
	require.Eventually(t, func() bool {
		events = f.events.forJob(job.ID)
		return len(events) == 4
	}, waitFor, tick)
	var (
		types    []generation.EventType
		statuses []models.GenerationStatus
		progress []int
	)
	for _, e := range events {
		types = append(types, e.Type)
		statuses = append(statuses, e.Status)
		progress = append(progress, e.Progress)
	}
	assert.Equal(t, []generation.EventType{generation.EventRequested, generation.EventProgress, generation.EventProgress, generation.EventCompleted}, types)
	assert.Equal(t, []models.GenerationStatus{models.GenerationPending, models.GenerationProcessing, models.GenerationProcessing, models.GenerationCompleted}, statuses)
	assert.Equal(t, []int{0, 0, 50, 100}, progress)

	require.Eventually(t, func() bool {
		p, err := f.store.GetProject(ctx, f.project.ID)
		return err == nil && p.Status == models.ProjectCompleted
	}, waitFor, tick)
}

func TestRequestGeneration_MissingProject(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, simulated(), generation.Options{})

	_, err := f.manager.RequestGeneration(ctx, 9999, models.OutputVideo)
	assert.True(t, apperrors.IsNotFoundError(err))

	jobs, err := f.store.ListGenerations(ctx, store.GenerationFilter{})
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestRequestGeneration_RejectsBadInput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, simulated(), generation.Options{})

	_, err := f.manager.RequestGeneration(ctx, f.project.ID, models.OutputKind("hologram"))
	assert.True(t, apperrors.IsValidationError(err))

	empty, err := f.store.CreateProject(ctx, models.Project{UserID: 1, Name: "Empty", OutputKind: models.OutputPDF,
		Script: models.Script{FormatVersion: "1.0"}})
	require.NoError(t, err)
	_, err = f.manager.RequestGeneration(ctx, empty.ID, models.OutputPDF)
	assert.True(t, apperrors.IsValidationError(err))

	jobs, err := f.store.ListGenerations(ctx, store.GenerationFilter{})
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestRequestGeneration_IndependentJobs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, simulated(), generation.Options{})

	first, err := f.manager.RequestGeneration(ctx, f.project.ID, models.OutputPodcast)
	require.NoError(t, err)
	second, err := f.manager.RequestGeneration(ctx, f.project.ID, models.OutputVideo)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	f.waitForStatus(t, first.ID, models.GenerationCompleted)
	f.waitForStatus(t, second.ID, models.GenerationCompleted)
}

func TestListActive_ExcludesFinishedJobs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, simulated(), generation.Options{})

	job, err := f.manager.RequestGeneration(ctx, f.project.ID, models.OutputPodcast)
	require.NoError(t, err)

	active, err := f.manager.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, job.ID, active[0].ID)

	f.waitForStatus(t, job.ID, models.GenerationCompleted)

	active, err = f.manager.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := f.manager.ListByProject(ctx, f.project.ID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, blockingRenderer, generation.Options{})

	job, err := f.manager.RequestGeneration(ctx, f.project.ID, models.OutputVideo)
	require.NoError(t, err)

	cancelled, err := f.manager.Cancel(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GenerationCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CompletedAt)

	_, err = f.manager.Cancel(ctx, job.ID)
	assert.True(t, apperrors.IsConflictError(err))

	_, err = f.manager.Cancel(ctx, 9999)
	assert.True(t, apperrors.IsNotFoundError(err))

	// The stopped worker must not overwrite the cancellation.
	time.Sleep(30 * time.Millisecond)
	got, err := f.manager.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GenerationCancelled, got.Status)
	assert.Nil(t, got.ErrorMessage)

	project, err := f.store.GetProject(ctx, f.project.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProjectDraft, project.Status)
}

func TestCancelProject(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, blockingRenderer, generation.Options{})

	for i := 0; i < 3; i++ {
		_, err := f.manager.RequestGeneration(ctx, f.project.ID, models.OutputPodcast)
		require.NoError(t, err)
	}

	cancelled, err := f.manager.CancelProject(ctx, f.project.ID)
	require.NoError(t, err)
	assert.Len(t, cancelled, 3)

	active, err := f.manager.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestTimeoutFailsJob(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, blockingRenderer, generation.Options{Timeout: 30 * time.Millisecond})

	job, err := f.manager.RequestGeneration(ctx, f.project.ID, models.OutputSlideshow)
	require.NoError(t, err)

	failed := f.waitForStatus(t, job.ID, models.GenerationError)
	require.NotNil(t, failed.ErrorMessage)
	assert.Contains(t, *failed.ErrorMessage, "timed out")
	assert.NotNil(t, failed.CompletedAt)

	require.Eventually(t, func() bool {
		p, err := f.store.GetProject(ctx, f.project.ID)
		return err == nil && p.Status == models.ProjectError
	}, waitFor, tick)
}

func TestRendererFailureFailsJob(t *testing.T) {
	ctx := context.Background()
	renderer := renderFunc(func(_ context.Context, _ generation.RenderJob, report generation.ProgressFunc) (*generation.Artifact, error) {
		report(30)
		return nil, errors.New("encoder crashed")
	})
	f := newFixture(t, renderer, generation.Options{})

	job, err := f.manager.RequestGeneration(ctx, f.project.ID, models.OutputVideo)
	require.NoError(t, err)

	failed := f.waitForStatus(t, job.ID, models.GenerationError)
	require.NotNil(t, failed.ErrorMessage)
	assert.Equal(t, "encoder crashed", *failed.ErrorMessage)
	assert.Equal(t, 30, failed.Progress)
}

func TestProgressNeverDecreases(t *testing.T) {
	ctx := context.Background()
	renderer := renderFunc(func(_ context.Context, _ generation.RenderJob, report generation.ProgressFunc) (*generation.Artifact, error) {
		report(60)
		report(20)
		report(80)
		return &generation.Artifact{ContentType: "text/plain", Data: []byte("ok")}, nil
	})
	f := newFixture(t, renderer, generation.Options{})

	job, err := f.manager.RequestGeneration(ctx, f.project.ID, models.OutputPDF)
	require.NoError(t, err)
	f.waitForStatus(t, job.ID, models.GenerationCompleted)

	var progress []int
	require.Eventually(t, func() bool {
		progress = progress[:0]
		for _, e := range f.events.forJob(job.ID) {
			progress = append(progress, e.Progress)
		}
		return len(progress) == 5
	}, waitFor, tick)
	assert.Equal(t, []int{0, 0, 60, 80, 100}, progress)
}

func TestSilentRendererStillPassesThroughProcessing(t *testing.T) {
	ctx := context.Background()
	renderer := renderFunc(func(_ context.Context, _ generation.RenderJob, _ generation.ProgressFunc) (*generation.Artifact, error) {
		return &generation.Artifact{ContentType: "text/plain", Data: []byte("ok")}, nil
	})
	f := newFixture(t, renderer, generation.Options{})

	job, err := f.manager.RequestGeneration(ctx, f.project.ID, models.OutputPodcast)
	require.NoError(t, err)
	f.waitForStatus(t, job.ID, models.GenerationCompleted)

	var statuses []models.GenerationStatus
	require.Eventually(t, func() bool {
		statuses = statuses[:0]
		for _, e := range f.events.forJob(job.ID) {
			statuses = append(statuses, e.Status)
		}
		return len(statuses) == 3
	}, waitFor, tick)
	assert.Equal(t, []models.GenerationStatus{
		models.GenerationPending, models.GenerationProcessing, models.GenerationCompleted,
	}, statuses)
}

func TestTimeoutExcludesQueueWait(t *testing.T) {
	ctx := context.Background()
	renderer := renderFunc(func(ctx context.Context, _ generation.RenderJob, _ generation.ProgressFunc) (*generation.Artifact, error) {
		select {
		case <-time.After(40 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return &generation.Artifact{ContentType: "text/plain", Data: []byte("ok")}, nil
	})
	f := newFixture(t, renderer, generation.Options{Workers: 1, Timeout: 100 * time.Millisecond})

	var ids []int64
	for i := 0; i < 4; i++ {
		job, err := f.manager.RequestGeneration(ctx, f.project.ID, models.OutputPodcast)
		require.NoError(t, err)
		ids = append(ids, job.ID)
	}

	// The last job queues for well over the timeout before it gets a slot.
	for _, id := range ids {
		done := f.waitForStatus(t, id, models.GenerationCompleted)
		assert.Nil(t, done.ErrorMessage)
	}
}

func TestWorkersBoundConcurrency(t *testing.T) {
	ctx := context.Background()
	var current, peak int32
	renderer := renderFunc(func(ctx context.Context, _ generation.RenderJob, _ generation.ProgressFunc) (*generation.Artifact, error) {
		n := atomic.AddInt32(&current, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
				break
			}
		}
		time.Sleep(15 * time.Millisecond)
		atomic.AddInt32(&current, -1)
		return &generation.Artifact{ContentType: "text/plain", Data: []byte("ok")}, nil
	})
	f := newFixture(t, renderer, generation.Options{Workers: 1})

	var ids []int64
	for i := 0; i < 3; i++ {
		job, err := f.manager.RequestGeneration(ctx, f.project.ID, models.OutputPodcast)
		require.NoError(t, err)
		ids = append(ids, job.ID)
	}
	for _, id := range ids {
		f.waitForStatus(t, id, models.GenerationCompleted)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&peak))
}

func TestUpdateGeneration(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, blockingRenderer, generation.Options{})
	status := func(s models.GenerationStatus) *models.GenerationStatus { return &s }
	progress := func(p int) *int { return &p }

	job, err := f.manager.RequestGeneration(ctx, f.project.ID, models.OutputPodcast)
	require.NoError(t, err)

	updated, err := f.manager.UpdateGeneration(ctx, job.ID, models.GenerationPatch{
		Status: status(models.GenerationProcessing), Progress: progress(40),
	})
	require.NoError(t, err)
	assert.Equal(t, 40, updated.Progress)
	assert.Nil(t, updated.CompletedAt)

	_, err = f.manager.UpdateGeneration(ctx, job.ID, models.GenerationPatch{Progress: progress(10)})
	assert.True(t, apperrors.IsValidationError(err), "progress decrease")

	_, err = f.manager.UpdateGeneration(ctx, job.ID, models.GenerationPatch{Status: status(models.GenerationPending)})
	assert.True(t, apperrors.IsValidationError(err), "status regression")

	_, err = f.manager.UpdateGeneration(ctx, job.ID, models.GenerationPatch{Progress: progress(101)})
	assert.True(t, apperrors.IsValidationError(err), "progress out of range")

	_, err = f.manager.UpdateGeneration(ctx, job.ID, models.GenerationPatch{Status: status("paused")})
	assert.True(t, apperrors.IsValidationError(err), "unknown status")

	url := "https://cdn.example.com/out.mp3"
	done, err := f.manager.UpdateGeneration(ctx, job.ID, models.GenerationPatch{
		Status: status(models.GenerationCompleted), Progress: progress(100), OutputURL: &url,
	})
	require.NoError(t, err)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, url, *done.OutputURL)

	_, err = f.manager.UpdateGeneration(ctx, job.ID, models.GenerationPatch{Progress: progress(100)})
	assert.True(t, apperrors.IsValidationError(err), "terminal job is immutable")

	_, err = f.manager.UpdateGeneration(ctx, 9999, models.GenerationPatch{Progress: progress(1)})
	assert.True(t, apperrors.IsNotFoundError(err))

	// The stopped worker leaves the manual completion in place.
	time.Sleep(30 * time.Millisecond)
	got, err := f.manager.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GenerationCompleted, got.Status)
}

func TestUpdateGeneration_ManualError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, blockingRenderer, generation.Options{})

	job, err := f.manager.RequestGeneration(ctx, f.project.ID, models.OutputPodcast)
	require.NoError(t, err)

	status := models.GenerationError
	message := "voice model unavailable"
	failed, err := f.manager.UpdateGeneration(ctx, job.ID, models.GenerationPatch{Status: &status, ErrorMessage: &message})
	require.NoError(t, err)
	assert.Equal(t, message, *failed.ErrorMessage)
	assert.NotNil(t, failed.CompletedAt)

	project, err := f.store.GetProject(ctx, f.project.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProjectError, project.Status)
}

func TestRecoverInterrupted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, simulated(), generation.Options{})

	orphan, err := f.store.CreateGeneration(ctx, models.Generation{
		ProjectID: f.project.ID, OutputKind: models.OutputVideo, Status: models.GenerationProcessing, Progress: 50,
	})
	require.NoError(t, err)

	n, err := f.manager.RecoverInterrupted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.manager.Get(ctx, orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GenerationError, got.Status)
	assert.Equal(t, "interrupted by server restart", *got.ErrorMessage)
}

func TestClose_FailsInFlightJobs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, blockingRenderer, generation.Options{})

	job, err := f.manager.RequestGeneration(ctx, f.project.ID, models.OutputPodcast)
	require.NoError(t, err)

	require.NoError(t, f.manager.Close())

	got, err := f.manager.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GenerationError, got.Status)
	assert.Equal(t, "interrupted by server shutdown", *got.ErrorMessage)

	_, err = f.manager.RequestGeneration(ctx, f.project.ID, models.OutputPodcast)
	assert.Error(t, err)
}

func TestPublicURL(t *testing.T) {
	f := newFixture(t, simulated(), generation.Options{})
	_, ok := f.manager.PublicURL("1.podcast")
	assert.False(t, ok)
}

type linkedArtifacts struct {
	*generation.MemoryArtifacts
}

func (linkedArtifacts) PublicURL(name string) string {
	return "https://bucket.example.com/" + name
}

func TestDownload_RequiresCompletedGeneration(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	manager := generation.NewManager(st, simulated(), linkedArtifacts{generation.NewMemoryArtifacts()}, generation.Options{Workers: 1})
	t.Cleanup(func() { manager.Close() })

	for _, name := range []string{"999.podcast", "bogus", "1.hologram", "-3.video"} {
		_, _, err := manager.Download(ctx, name)
		assert.True(t, apperrors.IsNotFoundError(err), name)
	}

	project, err := st.CreateProject(ctx, models.Project{
		UserID:     1,
		Name:       "Linked",
		OutputKind: models.OutputVideo,
		Script:     models.Script{FormatVersion: "1.0", Beats: []models.Beat{{Text: "Hi"}}},
	})
	require.NoError(t, err)
	job, err := manager.RequestGeneration(ctx, project.ID, models.OutputVideo)
	require.NoError(t, err)
	name := generation.ArtifactName(job.ID, models.OutputVideo)

	require.Eventually(t, func() bool {
		got, err := manager.Get(ctx, job.ID)
		return err == nil && got.Status == models.GenerationCompleted
	}, waitFor, tick)

	url, artifact, err := manager.Download(ctx, name)
	require.NoError(t, err)
	assert.Nil(t, artifact)
	assert.Equal(t, "https://bucket.example.com/"+name, url)

	_, _, err = manager.Download(ctx, generation.ArtifactName(job.ID, models.OutputPodcast))
	assert.True(t, apperrors.IsNotFoundError(err))
}

func TestDownload_ServesStoredArtifact(t *testing.T) {
	f := newFixture(t, simulated(), generation.Options{})
	ctx := context.Background()

	job, err := f.manager.RequestGeneration(ctx, f.project.ID, models.OutputPodcast)
	require.NoError(t, err)
	name := generation.ArtifactName(job.ID, models.OutputPodcast)

	_, _, err = f.manager.Download(ctx, name)
	assert.True(t, apperrors.IsNotFoundError(err), "not downloadable before completion")

	f.waitForStatus(t, job.ID, models.GenerationCompleted)

	url, artifact, err := f.manager.Download(ctx, name)
	require.NoError(t, err)
	assert.Empty(t, url)
	require.NotNil(t, artifact)
	assert.NotEmpty(t, artifact.Data)
}

func TestParseArtifactName(t *testing.T) {
	id, kind, ok := generation.ParseArtifactName(generation.ArtifactName(42, models.OutputPDF))
	require.True(t, ok)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, models.OutputPDF, kind)

	for _, name := range []string{"", "42", "42.", ".pdf", "x.pdf", "0.pdf", "42.gif", "42.pdf.exe"} {
		_, _, ok := generation.ParseArtifactName(name)
		assert.False(t, ok, name)
	}
}
