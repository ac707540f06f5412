package store_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mulmocast-backend/internal/models"
	"mulmocast-backend/internal/store"
	"mulmocast-backend/internal/store/storetest"
)

func TestMemoryStore_Contract(t *testing.T) {
	storetest.RunContract(t, func(t *testing.T) store.Store {
		return store.NewMemoryStore()
	})
}

func TestMemoryStore_SharedIDSequence(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	user, err := s.CreateUser(ctx, models.User{Username: "a", Email: "a@example.com", DisplayName: "A"})
	require.NoError(t, err)
	project, err := s.CreateProject(ctx, models.Project{UserID: user.ID, Name: "P", OutputKind: models.OutputPDF})
	require.NoError(t, err)
	template, err := s.CreateTemplate(ctx, models.Template{Name: "T", Category: "pdf"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), user.ID)
	assert.Equal(t, int64(2), project.ID)
	assert.Equal(t, int64(3), template.ID)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	project, err := s.CreateProject(ctx, models.Project{
		Name:   "P",
		Script: models.Script{FormatVersion: "1.0", Beats: []models.Beat{{Text: "hi"}}},
	})
	require.NoError(t, err)

	project.Script.Beats[0].Text = "mutated"

	stored, err := s.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, "hi", stored.Script.Beats[0].Text)
}

func TestMemoryStore_ConcurrentUpdatesAreSerialized(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	job, err := s.CreateGeneration(ctx, models.Generation{ProjectID: 1, Status: models.GenerationProcessing})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.UpdateGeneration(ctx, job.ID, func(g *models.Generation) error {
				g.Progress++
				return nil
			})
		}()
	}
	wg.Wait()

	got, err := s.GetGeneration(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, got.Progress)
}
