package generation

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"mulmocast-backend/internal/apperrors"
	"mulmocast-backend/internal/models"
)

// DownloadPrefix is the API path completed jobs point their outputUrl at.
const DownloadPrefix = "/api/downloads/"

// ArtifactStore keeps rendered outputs addressed by name.
type ArtifactStore interface {
	Save(ctx context.Context, name string, artifact *Artifact) error
	// Open returns an apperrors not-found error for unknown names.
	Open(ctx context.Context, name string) (*Artifact, error)
	Delete(ctx context.Context, name string) error
}

// PublicLinker is implemented by artifact stores whose objects can be fetched
// directly by clients.
type PublicLinker interface {
	PublicURL(name string) string
}

// ArtifactName is the storage name of a job's output, e.g. "7.podcast".
func ArtifactName(generationID int64, kind models.OutputKind) string {
	return fmt.Sprintf("%d.%s", generationID, kind)
}

// ParseArtifactName splits a name produced by ArtifactName.
func ParseArtifactName(name string) (int64, models.OutputKind, bool) {
	idPart, kindPart, ok := strings.Cut(name, ".")
	if !ok {
		return 0, "", false
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	kind := models.OutputKind(kindPart)
	if err != nil || id <= 0 || !kind.Valid() {
		return 0, "", false
	}
	return id, kind, true
}

func OutputURL(name string) string {
	return DownloadPrefix + name
}

// MemoryArtifacts is an in-process ArtifactStore.
type MemoryArtifacts struct {
	mu    sync.RWMutex
	items map[string]Artifact
}

func NewMemoryArtifacts() *MemoryArtifacts {
	return &MemoryArtifacts{items: make(map[string]Artifact)}
}

func (m *MemoryArtifacts) Save(_ context.Context, name string, artifact *Artifact) error {
	data := make([]byte, len(artifact.Data))
	copy(data, artifact.Data)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[name] = Artifact{ContentType: artifact.ContentType, Data: data}
	return nil
}

func (m *MemoryArtifacts) Open(_ context.Context, name string) (*Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	artifact, ok := m.items[name]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("artifact %s not found", name))
	}
	return &artifact, nil
}

func (m *MemoryArtifacts) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, name)
	return nil
}
