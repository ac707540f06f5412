// Package storetest holds the behavioural contract every store.Store
// implementation is tested against.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mulmocast-backend/internal/apperrors"
	"mulmocast-backend/internal/models"
	"mulmocast-backend/internal/store"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.Store

func sampleScript() models.Script {
	return models.Script{
		FormatVersion: "1.0",
		Speakers:      []models.Speaker{{Name: "Host", Voice: models.VoiceAlloy}},
		Beats:         []models.Beat{{Text: "hi", Speaker: "Host"}},
	}
}

func RunContract(t *testing.T, newStore Factory) {
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("Projects", func(t *testing.T) { testProjects(t, newStore(t)) })
	t.Run("DeleteProjectCascades", func(t *testing.T) { testDeleteCascade(t, newStore(t)) })
	t.Run("Templates", func(t *testing.T) { testTemplates(t, newStore(t)) })
	t.Run("Generations", func(t *testing.T) { testGenerations(t, newStore(t)) })
	t.Run("Seed", func(t *testing.T) { testSeed(t, newStore(t)) })
}

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()

	user, err := s.CreateUser(ctx, models.User{Username: "ada", Email: "ada@example.com", DisplayName: "Ada"})
	require.NoError(t, err)
	assert.NotZero(t, user.ID)
	assert.False(t, user.CreatedAt.IsZero())

	got, err := s.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", got.Email)

	_, err = s.CreateUser(ctx, models.User{Username: "other", Email: "ada@example.com", DisplayName: "X"})
	assert.True(t, apperrors.IsConflictError(err), "duplicate email")
	_, err = s.CreateUser(ctx, models.User{Username: "ada", Email: "new@example.com", DisplayName: "X"})
	assert.True(t, apperrors.IsConflictError(err), "duplicate username")

	bob, err := s.CreateUser(ctx, models.User{Username: "bob", Email: "bob@example.com", DisplayName: "Bob"})
	require.NoError(t, err)

	_, err = s.UpdateUser(ctx, bob.ID, func(u *models.User) error {
		u.Email = "ada@example.com"
		return nil
	})
	assert.True(t, apperrors.IsConflictError(err))

	updated, err := s.UpdateUser(ctx, bob.ID, func(u *models.User) error {
		u.DisplayName = "Robert"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Robert", updated.DisplayName)
	assert.Equal(t, "bob@example.com", updated.Email)

	_, err = s.GetUser(ctx, 999999)
	assert.True(t, apperrors.IsNotFoundError(err))
	_, err = s.UpdateUser(ctx, 999999, func(*models.User) error { return nil })
	assert.True(t, apperrors.IsNotFoundError(err))
}

func testProjects(t *testing.T, s store.Store) {
	ctx := context.Background()
	desc := "first"

	p1, err := s.CreateProject(ctx, models.Project{
		UserID: 1, Name: "Demo", Description: &desc, Script: sampleScript(),
		OutputKind: models.OutputPodcast, Status: models.ProjectCompleted,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ProjectDraft, p1.Status, "status is forced to draft")
	assert.Equal(t, sampleScript(), p1.Script)

	_, err = s.CreateProject(ctx, models.Project{UserID: 2, Name: "Other", Script: sampleScript(), OutputKind: models.OutputPDF})
	require.NoError(t, err)
	p3, err := s.CreateProject(ctx, models.Project{UserID: 1, Name: "Third", Script: sampleScript(), OutputKind: models.OutputVideo})
	require.NoError(t, err)

	userID := int64(1)
	list, err := s.ListProjects(ctx, store.ProjectFilter{UserID: &userID})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, p1.ID, list[0].ID)
	assert.Equal(t, p3.ID, list[1].ID)

	updated, err := s.UpdateProject(ctx, p1.ID, func(p *models.Project) error {
		p.Name = "Renamed"
		p.ID = 12345
		p.Script.Beats = append(p.Script.Beats, models.Beat{Text: "bye"})
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, p1.ID, updated.ID)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Len(t, updated.Script.Beats, 2)
	assert.False(t, updated.UpdatedAt.Before(p1.UpdatedAt))

	abort := errors.New("abort")
	_, err = s.UpdateProject(ctx, p1.ID, func(p *models.Project) error {
		p.Name = "Never"
		return abort
	})
	assert.ErrorIs(t, err, abort)
	got, err := s.GetProject(ctx, p1.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)

	generating, err := s.ListProjects(ctx, store.ProjectFilter{Status: models.ProjectGenerating})
	require.NoError(t, err)
	assert.Empty(t, generating)

	_, err = s.GetProject(ctx, 999999)
	assert.True(t, apperrors.IsNotFoundError(err))
	_, err = s.UpdateProject(ctx, 999999, func(*models.Project) error { return nil })
	assert.True(t, apperrors.IsNotFoundError(err))
}

func testDeleteCascade(t *testing.T, s store.Store) {
	ctx := context.Background()
	project, err := s.CreateProject(ctx, models.Project{UserID: 1, Name: "Demo", Script: sampleScript(), OutputKind: models.OutputPodcast})
	require.NoError(t, err)
	job, err := s.CreateGeneration(ctx, models.Generation{ProjectID: project.ID, OutputKind: models.OutputPodcast, Status: models.GenerationPending})
	require.NoError(t, err)

	deleted, err := s.DeleteProject(ctx, project.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = s.GetProject(ctx, project.ID)
	assert.True(t, apperrors.IsNotFoundError(err))
	_, err = s.GetGeneration(ctx, job.ID)
	assert.True(t, apperrors.IsNotFoundError(err))

	deleted, err = s.DeleteProject(ctx, project.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func testTemplates(t *testing.T, s store.Store) {
	ctx := context.Background()
	mk := func(name, category string, public bool) *models.Template {
		tpl, err := s.CreateTemplate(ctx, models.Template{Name: name, Category: category, IsPublic: public, Script: sampleScript()})
		require.NoError(t, err)
		return tpl
	}
	podcast := mk("Interview", "podcast", true)
	mk("Private", "podcast", false)
	video := mk("Demo", "video", true)

	public, err := s.ListTemplates(ctx, store.TemplateFilter{PublicOnly: true})
	require.NoError(t, err)
	require.Len(t, public, 2)
	assert.Equal(t, podcast.ID, public[0].ID)
	assert.Equal(t, video.ID, public[1].ID)

	podcasts, err := s.ListTemplates(ctx, store.TemplateFilter{PublicOnly: true, Category: "podcast"})
	require.NoError(t, err)
	require.Len(t, podcasts, 1)
	assert.Equal(t, "Interview", podcasts[0].Name)

	updated, err := s.UpdateTemplate(ctx, video.ID, func(tpl *models.Template) error {
		tpl.IsPublic = false
		return nil
	})
	require.NoError(t, err)
	assert.False(t, updated.IsPublic)

	_, err = s.GetTemplate(ctx, 999999)
	assert.True(t, apperrors.IsNotFoundError(err))
}

func testGenerations(t *testing.T, s store.Store) {
	ctx := context.Background()
	project, err := s.CreateProject(ctx, models.Project{UserID: 1, Name: "Demo", Script: sampleScript(), OutputKind: models.OutputVideo})
	require.NoError(t, err)

	job, err := s.CreateGeneration(ctx, models.Generation{ProjectID: project.ID, OutputKind: models.OutputVideo, Status: models.GenerationPending})
	require.NoError(t, err)
	assert.Equal(t, models.GenerationPending, job.Status)
	assert.Equal(t, 0, job.Progress)
	assert.Nil(t, job.CompletedAt)
	assert.Nil(t, job.OutputURL)

	other, err := s.CreateGeneration(ctx, models.Generation{ProjectID: project.ID, OutputKind: models.OutputVideo, Status: models.GenerationPending})
	require.NoError(t, err)

	processing, err := s.UpdateGeneration(ctx, job.ID, func(g *models.Generation) error {
		g.Status = models.GenerationProcessing
		g.Progress = 50
		return nil
	})
	require.NoError(t, err)
	assert.Nil(t, processing.CompletedAt)

	url := "/api/downloads/1.video"
	completed, err := s.UpdateGeneration(ctx, job.ID, func(g *models.Generation) error {
		g.Status = models.GenerationCompleted
		g.Progress = 100
		g.OutputURL = &url
		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, completed.CompletedAt)
	require.NotNil(t, completed.OutputURL)
	assert.Equal(t, url, *completed.OutputURL)

	active, err := s.ListGenerations(ctx, store.GenerationFilter{Statuses: models.ActiveGenerationStatuses})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, other.ID, active[0].ID)

	byProject, err := s.ListGenerations(ctx, store.GenerationFilter{ProjectID: &project.ID})
	require.NoError(t, err)
	assert.Len(t, byProject, 2)

	_, err = s.UpdateGeneration(ctx, 999999, func(*models.Generation) error { return nil })
	assert.True(t, apperrors.IsNotFoundError(err))
}

func testSeed(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, store.Seed(ctx, s))
	require.NoError(t, store.Seed(ctx, s))

	templates, err := s.ListTemplates(ctx, store.TemplateFilter{PublicOnly: true})
	require.NoError(t, err)
	require.Len(t, templates, 2)
	assert.Equal(t, "Interview Podcast", templates[0].Name)

	user, err := s.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "johndoe", user.Username)
}
