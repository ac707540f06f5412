package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"mulmocast-backend/internal/apperrors"
	"mulmocast-backend/internal/models"
	"mulmocast-backend/internal/store"
)

const (
	userColumns       = "id, username, email, display_name, created_at"
	projectColumns    = "id, user_id, name, description, script, output_kind, status, created_at, updated_at"
	templateColumns   = "id, name, description, category, script, is_public, created_at"
	generationColumns = "id, project_id, output_kind, status, progress, output_url, error_message, created_at, completed_at"
)

// SQLStore implements store.Store on Postgres or SQLite.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

var _ store.Store = (*SQLStore)(nil)

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{
		db:      db,
		dialect: dialect,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLStore) q(query string) string {
	return s.dialect.Rebind(query)
}

// Users

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.DisplayName, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *SQLStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, s.q("SELECT "+userColumns+" FROM users WHERE id = ?"), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.UserNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (s *SQLStore) CreateUser(ctx context.Context, user models.User) (*models.User, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.checkUserUnique(ctx, tx, 0, user); err != nil {
			return err
		}
		user.CreatedAt = s.now()
		err := tx.QueryRowContext(ctx, s.q(`
			INSERT INTO users (username, email, display_name, created_at)
			VALUES (?, ?, ?, ?)
			RETURNING id
		`), user.Username, user.Email, user.DisplayName, user.CreatedAt).Scan(&user.ID)
		if err != nil {
			return mapWriteError("failed to create user", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *SQLStore) UpdateUser(ctx context.Context, id int64, fn store.UserUpdateFunc) (*models.User, error) {
	var result *models.User
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := scanUser(tx.QueryRowContext(ctx,
			s.q("SELECT "+userColumns+" FROM users WHERE id = ?"+s.dialect.lockClause()), id))
		if errors.Is(err, sql.ErrNoRows) {
			return store.UserNotFound(id)
		}
		if err != nil {
			return fmt.Errorf("failed to get user: %w", err)
		}

		next := *current
		if err := fn(&next); err != nil {
			return err
		}
		next.ID, next.CreatedAt = current.ID, current.CreatedAt
		if err := s.checkUserUnique(ctx, tx, id, next); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, s.q(`
			UPDATE users SET username = ?, email = ?, display_name = ? WHERE id = ?
		`), next.Username, next.Email, next.DisplayName, id); err != nil {
			return mapWriteError("failed to update user", err)
		}
		result = &next
		return nil
	})
	return result, err
}

func (s *SQLStore) checkUserUnique(ctx context.Context, tx *sql.Tx, selfID int64, user models.User) error {
	var email, username string
	err := tx.QueryRowContext(ctx, s.q(`
		SELECT email, username FROM users
		WHERE (email = ? OR username = ?) AND id <> ?
		LIMIT 1
	`), user.Email, user.Username, selfID).Scan(&email, &username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to check user uniqueness: %w", err)
	}
	if email == user.Email {
		return store.EmailTaken(user.Email)
	}
	return store.UsernameTaken(user.Username)
}

// Projects

func scanProject(row rowScanner) (*models.Project, error) {
	var (
		p           models.Project
		description sql.NullString
		script      []byte
	)
	err := row.Scan(&p.ID, &p.UserID, &p.Name, &description, &script, &p.OutputKind, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Description = fromNullString(description)
	if err := json.Unmarshal(script, &p.Script); err != nil {
		return nil, fmt.Errorf("failed to decode script of project %d: %w", p.ID, err)
	}
	return &p, nil
}

func (s *SQLStore) GetProject(ctx context.Context, id int64) (*models.Project, error) {
	project, err := scanProject(s.db.QueryRowContext(ctx, s.q("SELECT "+projectColumns+" FROM projects WHERE id = ?"), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ProjectNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return project, nil
}

func (s *SQLStore) ListProjects(ctx context.Context, filter store.ProjectFilter) ([]models.Project, error) {
	var (
		where []string
		args  []any
	)
	if filter.UserID != nil {
		where = append(where, "user_id = ?")
		args = append(args, *filter.UserID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}

	rows, err := s.db.QueryContext(ctx, s.q("SELECT "+projectColumns+" FROM projects"+whereClause(where)+" ORDER BY id"), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	projects := make([]models.Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

func (s *SQLStore) CreateProject(ctx context.Context, project models.Project) (*models.Project, error) {
	script, err := json.Marshal(project.Script)
	if err != nil {
		return nil, fmt.Errorf("failed to encode script: %w", err)
	}
	now := s.now()
	project.Status = models.ProjectDraft
	project.CreatedAt = now
	project.UpdatedAt = now

	err = s.db.QueryRowContext(ctx, s.q(`
		INSERT INTO projects (user_id, name, description, script, output_kind, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`), project.UserID, project.Name, toNullString(project.Description), string(script),
		project.OutputKind, project.Status, project.CreatedAt, project.UpdatedAt).Scan(&project.ID)
	if err != nil {
		return nil, mapWriteError("failed to create project", err)
	}
	return project.Clone(), nil
}

func (s *SQLStore) UpdateProject(ctx context.Context, id int64, fn store.ProjectUpdateFunc) (*models.Project, error) {
	var result *models.Project
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := scanProject(tx.QueryRowContext(ctx,
			s.q("SELECT "+projectColumns+" FROM projects WHERE id = ?"+s.dialect.lockClause()), id))
		if errors.Is(err, sql.ErrNoRows) {
			return store.ProjectNotFound(id)
		}
		if err != nil {
			return fmt.Errorf("failed to get project: %w", err)
		}

		next := current.Clone()
		if err := fn(next); err != nil {
			return err
		}
		next.ID, next.CreatedAt = current.ID, current.CreatedAt
		next.UpdatedAt = s.now()

		script, err := json.Marshal(next.Script)
		if err != nil {
			return fmt.Errorf("failed to encode script: %w", err)
		}
		if _, err := tx.ExecContext(ctx, s.q(`
			UPDATE projects
			SET user_id = ?, name = ?, description = ?, script = ?, output_kind = ?, status = ?, updated_at = ?
			WHERE id = ?
		`), next.UserID, next.Name, toNullString(next.Description), string(script),
			next.OutputKind, next.Status, next.UpdatedAt, id); err != nil {
			return mapWriteError("failed to update project", err)
		}
		result = next
		return nil
	})
	return result, err
}

func (s *SQLStore) DeleteProject(ctx context.Context, id int64) (bool, error) {
	var deleted bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.q("DELETE FROM generations WHERE project_id = ?"), id); err != nil {
			return fmt.Errorf("failed to delete project generations: %w", err)
		}
		res, err := tx.ExecContext(ctx, s.q("DELETE FROM projects WHERE id = ?"), id)
		if err != nil {
			return fmt.Errorf("failed to delete project: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to delete project: %w", err)
		}
		deleted = n > 0
		return nil
	})
	return deleted, err
}

// Templates

func scanTemplate(row rowScanner) (*models.Template, error) {
	var (
		t           models.Template
		description sql.NullString
		script      []byte
	)
	err := row.Scan(&t.ID, &t.Name, &description, &t.Category, &script, &t.IsPublic, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	t.Description = fromNullString(description)
	if err := json.Unmarshal(script, &t.Script); err != nil {
		return nil, fmt.Errorf("failed to decode script of template %d: %w", t.ID, err)
	}
	return &t, nil
}

func (s *SQLStore) GetTemplate(ctx context.Context, id int64) (*models.Template, error) {
	template, err := scanTemplate(s.db.QueryRowContext(ctx, s.q("SELECT "+templateColumns+" FROM templates WHERE id = ?"), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.TemplateNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return template, nil
}

func (s *SQLStore) ListTemplates(ctx context.Context, filter store.TemplateFilter) ([]models.Template, error) {
	var (
		where []string
		args  []any
	)
	if filter.PublicOnly {
		where = append(where, "is_public = ?")
		args = append(args, true)
	}
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, filter.Category)
	}

	rows, err := s.db.QueryContext(ctx, s.q("SELECT "+templateColumns+" FROM templates"+whereClause(where)+" ORDER BY id"), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	templates := make([]models.Template, 0)
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, *t)
	}
	return templates, rows.Err()
}

func (s *SQLStore) CreateTemplate(ctx context.Context, template models.Template) (*models.Template, error) {
	script, err := json.Marshal(template.Script)
	if err != nil {
		return nil, fmt.Errorf("failed to encode script: %w", err)
	}
	template.CreatedAt = s.now()

	err = s.db.QueryRowContext(ctx, s.q(`
		INSERT INTO templates (name, description, category, script, is_public, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`), template.Name, toNullString(template.Description), template.Category, string(script),
		template.IsPublic, template.CreatedAt).Scan(&template.ID)
	if err != nil {
		return nil, mapWriteError("failed to create template", err)
	}
	return template.Clone(), nil
}

func (s *SQLStore) UpdateTemplate(ctx context.Context, id int64, fn store.TemplateUpdateFunc) (*models.Template, error) {
	var result *models.Template
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := scanTemplate(tx.QueryRowContext(ctx,
			s.q("SELECT "+templateColumns+" FROM templates WHERE id = ?"+s.dialect.lockClause()), id))
		if errors.Is(err, sql.ErrNoRows) {
			return store.TemplateNotFound(id)
		}
		if err != nil {
			return fmt.Errorf("failed to get template: %w", err)
		}

		next := current.Clone()
		if err := fn(next); err != nil {
			return err
		}
		next.ID, next.CreatedAt = current.ID, current.CreatedAt

		script, err := json.Marshal(next.Script)
		if err != nil {
			return fmt.Errorf("failed to encode script: %w", err)
		}
		if _, err := tx.ExecContext(ctx, s.q(`
			UPDATE templates SET name = ?, description = ?, category = ?, script = ?, is_public = ?
			WHERE id = ?
		`), next.Name, toNullString(next.Description), next.Category, string(script), next.IsPublic, id); err != nil {
			return mapWriteError("failed to update template", err)
		}
		result = next
		return nil
	})
	return result, err
}

// Generations

func scanGeneration(row rowScanner) (*models.Generation, error) {
	var (
		g            models.Generation
		outputURL    sql.NullString
		errorMessage sql.NullString
		completedAt  sql.NullTime
	)
	err := row.Scan(&g.ID, &g.ProjectID, &g.OutputKind, &g.Status, &g.Progress,
		&outputURL, &errorMessage, &g.CreatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	g.OutputURL = fromNullString(outputURL)
	g.ErrorMessage = fromNullString(errorMessage)
	if completedAt.Valid {
		t := completedAt.Time
		g.CompletedAt = &t
	}
	return &g, nil
}

func (s *SQLStore) GetGeneration(ctx context.Context, id int64) (*models.Generation, error) {
	generation, err := scanGeneration(s.db.QueryRowContext(ctx, s.q("SELECT "+generationColumns+" FROM generations WHERE id = ?"), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.GenerationNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get generation: %w", err)
	}
	return generation, nil
}

func (s *SQLStore) ListGenerations(ctx context.Context, filter store.GenerationFilter) ([]models.Generation, error) {
	var (
		where []string
		args  []any
	)
	if filter.ProjectID != nil {
		where = append(where, "project_id = ?")
		args = append(args, *filter.ProjectID)
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, status)
		}
		where = append(where, "status IN ("+strings.Join(placeholders, ", ")+")")
	}

	rows, err := s.db.QueryContext(ctx, s.q("SELECT "+generationColumns+" FROM generations"+whereClause(where)+" ORDER BY id"), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list generations: %w", err)
	}
	defer rows.Close()

	generations := make([]models.Generation, 0)
	for rows.Next() {
		g, err := scanGeneration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan generation: %w", err)
		}
		generations = append(generations, *g)
	}
	return generations, rows.Err()
}

func (s *SQLStore) CreateGeneration(ctx context.Context, generation models.Generation) (*models.Generation, error) {
	now := s.now()
	generation.CreatedAt = now
	store.StampCompletion(&generation, now)

	err := s.db.QueryRowContext(ctx, s.q(`
		INSERT INTO generations (project_id, output_kind, status, progress, output_url, error_message, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`), generation.ProjectID, generation.OutputKind, generation.Status, generation.Progress,
		toNullString(generation.OutputURL), toNullString(generation.ErrorMessage),
		generation.CreatedAt, toNullTime(generation.CompletedAt)).Scan(&generation.ID)
	if err != nil {
		return nil, mapWriteError("failed to create generation", err)
	}
	return generation.Clone(), nil
}

func (s *SQLStore) UpdateGeneration(ctx context.Context, id int64, fn store.GenerationUpdateFunc) (*models.Generation, error) {
	var result *models.Generation
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := scanGeneration(tx.QueryRowContext(ctx,
			s.q("SELECT "+generationColumns+" FROM generations WHERE id = ?"+s.dialect.lockClause()), id))
		if errors.Is(err, sql.ErrNoRows) {
			return store.GenerationNotFound(id)
		}
		if err != nil {
			return fmt.Errorf("failed to get generation: %w", err)
		}

		next := current.Clone()
		if err := fn(next); err != nil {
			return err
		}
		next.ID, next.ProjectID, next.CreatedAt = current.ID, current.ProjectID, current.CreatedAt
		store.StampCompletion(next, s.now())

		if _, err := tx.ExecContext(ctx, s.q(`
			UPDATE generations
			SET output_kind = ?, status = ?, progress = ?, output_url = ?, error_message = ?, completed_at = ?
			WHERE id = ?
		`), next.OutputKind, next.Status, next.Progress, toNullString(next.OutputURL),
			toNullString(next.ErrorMessage), toNullTime(next.CompletedAt), id); err != nil {
			return mapWriteError("failed to update generation", err)
		}
		result = next
		return nil
	})
	return result, err
}

// helpers

func whereClause(conditions []string) string {
	if len(conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conditions, " AND ")
}

func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// mapWriteError turns unique violations that slipped past the pre-checks into
// conflict errors.
func mapWriteError(message string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return apperrors.NewConflictError("resource already exists")
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return apperrors.NewConflictError("resource already exists")
	}
	return fmt.Errorf("%s: %w", message, err)
}
