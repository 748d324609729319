package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/teamspace-service/internal/api/dto"
	"github.com/spec-kit/teamspace-service/internal/auth"
	"github.com/spec-kit/teamspace-service/internal/service"
	apperrors "github.com/spec-kit/teamspace-service/pkg/util"
)

// ProjectsHandler exposes the thin project read surface.
type ProjectsHandler struct {
	projects *service.ProjectService
}

// NewProjectsHandler constructs handler.
func NewProjectsHandler(projectService *service.ProjectService) *ProjectsHandler {
	return &ProjectsHandler{projects: projectService}
}

// List handles GET /api/projects.
func (h *ProjectsHandler) List(c *fiber.Ctx) error {
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	projects, err := h.projects.ListForUser(c.Context(), identity.UserID)
	if err != nil {
		return apperrors.MapError(err)
	}

	out := make([]dto.ProjectResponse, 0, len(projects))
	for _, p := range projects {
		out = append(out, dto.ProjectFromDomain(p))
	}
	return c.JSON(fiber.Map{"data": out})
}

// Get handles GET /api/projects/:id.
func (h *ProjectsHandler) Get(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid project id")
	}

	project, err := h.projects.Get(c.Context(), id)
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": dto.ProjectFromDomain(*project)})
}
