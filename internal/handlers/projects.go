package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"mulmocast-backend/internal/generation"
	"mulmocast-backend/internal/middleware"
	"mulmocast-backend/internal/models"
	"mulmocast-backend/internal/mulmoscript"
	"mulmocast-backend/internal/store"
)

type ProjectsHandler struct {
	store         store.Store
	manager       *generation.Manager
	defaultUserID int64
	logger        *slog.Logger
}

func NewProjectsHandler(st store.Store, manager *generation.Manager, defaultUserID int64, logger *slog.Logger) *ProjectsHandler {
	return &ProjectsHandler{
		store:         st,
		manager:       manager,
		defaultUserID: defaultUserID,
		logger:        logger,
	}
}

// ListProjects godoc
// @Summary     List projects
// @Description Lists the projects of a user, defaulting to the caller
// @Tags        projects
// @Produce     json
// @Param       userId query int false "User ID"
// @Success     200 {array}  models.Project
// @Failure     400 {object} models.ErrorResponse
// @Router      /api/projects [get]
func (h *ProjectsHandler) ListProjects(c *gin.Context) {
	userID, err := parseQueryID(c, "userId", "user")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if userID == nil {
		id := middleware.UserID(c, h.defaultUserID)
		userID = &id
	}

	projects, err := h.store.ListProjects(c.Request.Context(), store.ProjectFilter{UserID: userID})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, projects)
}

func (h *ProjectsHandler) GetProject(c *gin.Context) {
	id, err := parseID(c, "id", "project")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	project, err := h.store.GetProject(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, project)
}

// CreateProject godoc
// @Summary     Create project
// @Description Creates a draft project after validating its MulmoScript. Omitting the script uses the starter document
// @Tags        projects
// @Accept      json
// @Produce     json
// @Param       request body models.CreateProjectRequest true "Project"
// @Success     201 {object} models.Project
// @Failure     400 {object} models.ErrorResponse
// @Router      /api/projects [post]
func (h *ProjectsHandler) CreateProject(c *gin.Context) {
	var req models.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, bindError("invalid project data", err))
		return
	}

	// Projects created without a script start from the starter document.
	script := mulmoscript.DefaultScript()
	if len(req.Script) > 0 {
		var err error
		script, err = validateScript("invalid project data", req.Script)
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
	}

	userID := middleware.UserID(c, h.defaultUserID)
	if req.UserID != nil {
		userID = *req.UserID
	}

	project, err := h.store.CreateProject(c.Request.Context(), models.Project{
		UserID:      userID,
		Name:        req.Name,
		Description: req.Description,
		Script:      *script,
		OutputKind:  req.OutputKind,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, project)
}

func (h *ProjectsHandler) UpdateProject(c *gin.Context) {
	id, err := parseID(c, "id", "project")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	var req models.UpdateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, bindError("invalid update data", err))
		return
	}

	var script *models.Script
	if len(req.Script) > 0 {
		script, err = validateScript("invalid update data", req.Script)
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
	}

	project, err := h.store.UpdateProject(c.Request.Context(), id, func(p *models.Project) error {
		if req.Name != nil {
			p.Name = *req.Name
		}
		if req.Description != nil {
			p.Description = req.Description
		}
		if script != nil {
			p.Script = *script
		}
		if req.OutputKind != nil {
			p.OutputKind = *req.OutputKind
		}
		return nil
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, project)
}

// DeleteProject cancels the project's active generations, then removes the
// project and its generation history.
func (h *ProjectsHandler) DeleteProject(c *gin.Context) {
	id, err := parseID(c, "id", "project")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	ctx := c.Request.Context()
	if _, err := h.manager.CancelProject(ctx, id); err != nil {
		respondError(c, h.logger, err)
		return
	}

	deleted, err := h.store.DeleteProject(ctx, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if !deleted {
		respondError(c, h.logger, store.ProjectNotFound(id))
		return
	}

	c.Status(http.StatusNoContent)
}
