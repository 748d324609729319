package service

import (
	"context"

	"github.com/spec-kit/teamspace-service/internal/domain"
	"github.com/spec-kit/teamspace-service/internal/repository"
)

// ProjectService is the thin collaborator for project reads. CRUD
// business rules are out of core scope; the chat surface only needs to
// list and resolve projects.
type ProjectService struct {
	projects repository.ProjectRepository
}

// NewProjectService builds the service.
func NewProjectService(projects repository.ProjectRepository) *ProjectService {
	return &ProjectService{projects: projects}
}

// ListForUser returns the projects the user owns or is a member of.
func (s *ProjectService) ListForUser(ctx context.Context, userID int64) ([]domain.Project, error) {
	return s.projects.ListForUser(ctx, userID)
}

// Get resolves one project.
func (s *ProjectService) Get(ctx context.Context, id int64) (*domain.Project, error) {
	return s.projects.GetByID(ctx, id)
}
