package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"mulmocast-backend/internal/models"
)

// MemoryStore keeps every entity in process memory. Ids come from a single
// counter shared across entity kinds.
type MemoryStore struct {
	mu          sync.RWMutex
	nextID      int64
	users       map[int64]*models.User
	projects    map[int64]*models.Project
	templates   map[int64]*models.Template
	generations map[int64]*models.Generation
	now         func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[int64]*models.User),
		projects:    make(map[int64]*models.Project),
		templates:   make(map[int64]*models.Template),
		generations: make(map[int64]*models.Generation),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) allocateID() int64 {
	s.nextID++
	return s.nextID
}

func (s *MemoryStore) Close() error { return nil }

// Users

func (s *MemoryStore) GetUser(_ context.Context, id int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return nil, UserNotFound(id)
	}
	cp := *user
	return &cp, nil
}

func (s *MemoryStore) CreateUser(_ context.Context, user models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkUserUnique(0, user); err != nil {
		return nil, err
	}
	user.ID = s.allocateID()
	user.CreatedAt = s.now()
	stored := user
	s.users[user.ID] = &stored
	return &user, nil
}

func (s *MemoryStore) UpdateUser(_ context.Context, id int64, fn UserUpdateFunc) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.users[id]
	if !ok {
		return nil, UserNotFound(id)
	}
	next := *current
	if err := fn(&next); err != nil {
		return nil, err
	}
	next.ID, next.CreatedAt = current.ID, current.CreatedAt
	if err := s.checkUserUnique(id, next); err != nil {
		return nil, err
	}
	s.users[id] = &next
	cp := next
	return &cp, nil
}

// checkUserUnique scans for another user sharing email or username.
func (s *MemoryStore) checkUserUnique(selfID int64, user models.User) error {
	for id, existing := range s.users {
		if id == selfID {
			continue
		}
		if existing.Email == user.Email {
			return EmailTaken(user.Email)
		}
		if existing.Username == user.Username {
			return UsernameTaken(user.Username)
		}
	}
	return nil
}

// Projects

func (s *MemoryStore) GetProject(_ context.Context, id int64) (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	project, ok := s.projects[id]
	if !ok {
		return nil, ProjectNotFound(id)
	}
	return project.Clone(), nil
}

func (s *MemoryStore) ListProjects(_ context.Context, filter ProjectFilter) ([]models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Project, 0)
	for _, p := range s.projects {
		if filter.UserID != nil && p.UserID != *filter.UserID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		out = append(out, *p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CreateProject(_ context.Context, project models.Project) (*models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	project.ID = s.allocateID()
	project.Status = models.ProjectDraft
	project.CreatedAt = now
	project.UpdatedAt = now
	s.projects[project.ID] = project.Clone()
	return project.Clone(), nil
}

func (s *MemoryStore) UpdateProject(_ context.Context, id int64, fn ProjectUpdateFunc) (*models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.projects[id]
	if !ok {
		return nil, ProjectNotFound(id)
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID, next.CreatedAt = current.ID, current.CreatedAt
	next.UpdatedAt = s.now()
	s.projects[id] = next
	return next.Clone(), nil
}

func (s *MemoryStore) DeleteProject(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[id]; !ok {
		return false, nil
	}
	delete(s.projects, id)
	for genID, g := range s.generations {
		if g.ProjectID == id {
			delete(s.generations, genID)
		}
	}
	return true, nil
}

// Templates

func (s *MemoryStore) GetTemplate(_ context.Context, id int64) (*models.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	template, ok := s.templates[id]
	if !ok {
		return nil, TemplateNotFound(id)
	}
	return template.Clone(), nil
}

func (s *MemoryStore) ListTemplates(_ context.Context, filter TemplateFilter) ([]models.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Template, 0)
	for _, t := range s.templates {
		if filter.PublicOnly && !t.IsPublic {
			continue
		}
		if filter.Category != "" && t.Category != filter.Category {
			continue
		}
		out = append(out, *t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CreateTemplate(_ context.Context, template models.Template) (*models.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	template.ID = s.allocateID()
	template.CreatedAt = s.now()
	s.templates[template.ID] = template.Clone()
	return template.Clone(), nil
}

func (s *MemoryStore) UpdateTemplate(_ context.Context, id int64, fn TemplateUpdateFunc) (*models.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.templates[id]
	if !ok {
		return nil, TemplateNotFound(id)
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID, next.CreatedAt = current.ID, current.CreatedAt
	s.templates[id] = next
	return next.Clone(), nil
}

// Generations

func (s *MemoryStore) GetGeneration(_ context.Context, id int64) (*models.Generation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	generation, ok := s.generations[id]
	if !ok {
		return nil, GenerationNotFound(id)
	}
	return generation.Clone(), nil
}

func (s *MemoryStore) ListGenerations(_ context.Context, filter GenerationFilter) ([]models.Generation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Generation, 0)
	for _, g := range s.generations {
		if filter.ProjectID != nil && g.ProjectID != *filter.ProjectID {
			continue
		}
		if !MatchStatus(g.Status, filter.Statuses) {
			continue
		}
		out = append(out, *g.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CreateGeneration(_ context.Context, generation models.Generation) (*models.Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	generation.ID = s.allocateID()
	generation.CreatedAt = now
	StampCompletion(&generation, now)
	s.generations[generation.ID] = generation.Clone()
	return generation.Clone(), nil
}

func (s *MemoryStore) UpdateGeneration(_ context.Context, id int64, fn GenerationUpdateFunc) (*models.Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.generations[id]
	if !ok {
		return nil, GenerationNotFound(id)
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID, next.ProjectID, next.CreatedAt = current.ID, current.ProjectID, current.CreatedAt
	StampCompletion(next, s.now())
	s.generations[id] = next
	return next.Clone(), nil
}

// StampCompletion sets CompletedAt the first time g is seen in a terminal state.
func StampCompletion(g *models.Generation, now time.Time) {
	if g.Status.Terminal() && g.CompletedAt == nil {
		g.CompletedAt = &now
	}
}
