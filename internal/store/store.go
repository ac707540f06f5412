// Package store defines the entity store contract shared by the in-memory
// and SQL implementations.
package store

import (
	"context"
	"fmt"

	"mulmocast-backend/internal/apperrors"
	"mulmocast-backend/internal/models"
)

// ProjectFilter narrows ListProjects. Zero values match everything.
type ProjectFilter struct {
	UserID *int64
	Status models.ProjectStatus
}

// TemplateFilter narrows ListTemplates.
type TemplateFilter struct {
	Category   string
	PublicOnly bool
}

// GenerationFilter narrows ListGenerations.
type GenerationFilter struct {
	ProjectID *int64
	Statuses  []models.GenerationStatus
}

// Update functions receive a copy of the stored entity, mutate it in place and
// may return an error to abort the update. Implementations run them atomically
// with respect to other updates of the same entity.
type (
	UserUpdateFunc       func(*models.User) error
	ProjectUpdateFunc    func(*models.Project) error
	TemplateUpdateFunc   func(*models.Template) error
	GenerationUpdateFunc func(*models.Generation) error
)

// Store is the persistence contract. Missing entities are reported as
// apperrors not-found errors, uniqueness violations as conflict errors.
// List results are ordered by id.
type Store interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	CreateUser(ctx context.Context, user models.User) (*models.User, error)
	UpdateUser(ctx context.Context, id int64, fn UserUpdateFunc) (*models.User, error)

	GetProject(ctx context.Context, id int64) (*models.Project, error)
	ListProjects(ctx context.Context, filter ProjectFilter) ([]models.Project, error)
	// CreateProject assigns id and timestamps and forces status to draft.
	CreateProject(ctx context.Context, project models.Project) (*models.Project, error)
	UpdateProject(ctx context.Context, id int64, fn ProjectUpdateFunc) (*models.Project, error)
	// DeleteProject removes the project and its generation jobs.
	DeleteProject(ctx context.Context, id int64) (bool, error)

	GetTemplate(ctx context.Context, id int64) (*models.Template, error)
	ListTemplates(ctx context.Context, filter TemplateFilter) ([]models.Template, error)
	CreateTemplate(ctx context.Context, template models.Template) (*models.Template, error)
	UpdateTemplate(ctx context.Context, id int64, fn TemplateUpdateFunc) (*models.Template, error)

	GetGeneration(ctx context.Context, id int64) (*models.Generation, error)
	ListGenerations(ctx context.Context, filter GenerationFilter) ([]models.Generation, error)
	CreateGeneration(ctx context.Context, generation models.Generation) (*models.Generation, error)
	// UpdateGeneration stamps CompletedAt when the job enters a terminal state.
	UpdateGeneration(ctx context.Context, id int64, fn GenerationUpdateFunc) (*models.Generation, error)

	Close() error
}

func UserNotFound(id int64) error {
	return apperrors.NewNotFoundError(fmt.Sprintf("user %d not found", id))
}

func ProjectNotFound(id int64) error {
	return apperrors.NewNotFoundError(fmt.Sprintf("project %d not found", id))
}

func TemplateNotFound(id int64) error {
	return apperrors.NewNotFoundError(fmt.Sprintf("template %d not found", id))
}

func GenerationNotFound(id int64) error {
	return apperrors.NewNotFoundError(fmt.Sprintf("generation %d not found", id))
}

func EmailTaken(email string) error {
	return apperrors.NewConflictError(fmt.Sprintf("user with email %s already exists", email))
}

func UsernameTaken(username string) error {
	return apperrors.NewConflictError(fmt.Sprintf("user with username %s already exists", username))
}

// MatchStatus reports whether status is in statuses; an empty set matches all.
func MatchStatus(status models.GenerationStatus, statuses []models.GenerationStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}
