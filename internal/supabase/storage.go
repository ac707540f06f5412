package supabase

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	storage "github.com/supabase-community/storage-go"
	"mulmocast-backend/internal/apperrors"
	"mulmocast-backend/internal/generation"
)

// StorageClient keeps rendered artifacts in a Supabase Storage bucket.
type StorageClient struct {
	client  *storage.Client
	bucket  string
	baseURL string
}

var (
	_ generation.ArtifactStore = (*StorageClient)(nil)
	_ generation.PublicLinker  = (*StorageClient)(nil)
)

func NewStorageClient(supabaseURL, serviceRoleKey, bucket string) *StorageClient {
	baseURL := strings.TrimSuffix(supabaseURL, "/")
	client := storage.NewClient(baseURL+"/storage/v1", serviceRoleKey, nil)

	return &StorageClient{
		client:  client,
		bucket:  bucket,
		baseURL: baseURL,
	}
}

// ArtifactPath is the object path of an artifact: outputs/{name}.
func ArtifactPath(name string) string {
	return "outputs/" + name
}

func (s *StorageClient) Save(_ context.Context, name string, artifact *generation.Artifact) error {
	contentType := artifact.ContentType
	upsert := true
	_, err := s.client.UploadFile(s.bucket, ArtifactPath(name), bytes.NewReader(artifact.Data), storage.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return fmt.Errorf("failed to upload artifact: %w", err)
	}
	return nil
}

func (s *StorageClient) Open(_ context.Context, name string) (*generation.Artifact, error) {
	data, err := s.client.DownloadFile(s.bucket, ArtifactPath(name))
	if err != nil {
		if isNotFound(err) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("artifact %s not found", name))
		}
		return nil, fmt.Errorf("failed to download artifact: %w", err)
	}
	return &generation.Artifact{ContentType: "application/octet-stream", Data: data}, nil
}

func (s *StorageClient) Delete(_ context.Context, name string) error {
	if _, err := s.client.RemoveFile(s.bucket, []string{ArtifactPath(name)}); err != nil {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}
	return nil
}

func (s *StorageClient) PublicURL(name string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s",
		s.baseURL, s.bucket, ArtifactPath(name))
}

func isNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "404")
}
