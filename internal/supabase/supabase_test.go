package supabase_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mulmocast-backend/internal/config"
	"mulmocast-backend/internal/generation"
	"mulmocast-backend/internal/models"
	"mulmocast-backend/internal/supabase"
)

func TestStorageClient_PublicURL(t *testing.T) {
	client := supabase.NewStorageClient("https://abc.supabase.co/", "service-key", "mulmocast-outputs")

	assert.Equal(t,
		"https://abc.supabase.co/storage/v1/object/public/mulmocast-outputs/outputs/3.video",
		client.PublicURL("3.video"))
}

func TestArtifactPath(t *testing.T) {
	assert.Equal(t, "outputs/12.pdf", supabase.ArtifactPath("12.pdf"))
}

func TestEventPublisher_InsertsRow(t *testing.T) {
	var (
		gotPath string
		gotKey  string
		gotRow  map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("apikey")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotRow)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client, err := supabase.NewClient(&config.Config{SupabaseURL: srv.URL, SupabaseKey: "anon-key"})
	require.NoError(t, err)
	publisher := supabase.NewEventPublisher(client.Supabase, "generation_events")

	url := "/api/downloads/5.podcast"
	err = publisher.Publish(context.Background(), generation.Event{
		Type:         generation.EventCompleted,
		GenerationID: 5,
		ProjectID:    2,
		Status:       models.GenerationCompleted,
		Progress:     100,
		OutputURL:    &url,
		OccurredAt:   time.Now().UTC(),
	})
	require.NoError(t, err)

	assert.Equal(t, "/rest/v1/generation_events", gotPath)
	assert.Equal(t, "anon-key", gotKey)
	assert.Equal(t, "generation.completed", gotRow["event"])
	assert.Equal(t, float64(5), gotRow["generation_id"])
	assert.Equal(t, url, gotRow["output_url"])
	assert.NotContains(t, gotRow, "error_message")
}

func TestEventPublisher_ReportsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"code":"42P01","message":"relation \"generation_events\" does not exist"}`))
	}))
	defer srv.Close()

	client, err := supabase.NewClient(&config.Config{SupabaseURL: srv.URL, SupabaseKey: "anon-key"})
	require.NoError(t, err)
	publisher := supabase.NewEventPublisher(client.Supabase, "generation_events")

	err = publisher.Publish(context.Background(), generation.Event{Type: generation.EventRequested})
	assert.Error(t, err)
}
