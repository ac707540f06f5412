package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"mulmocast-backend/internal/generation"
	"mulmocast-backend/internal/models"
	"mulmocast-backend/internal/store"
)

type GenerationsHandler struct {
	store   store.Store
	manager *generation.Manager
	logger  *slog.Logger
}

func NewGenerationsHandler(st store.Store, manager *generation.Manager, logger *slog.Logger) *GenerationsHandler {
	return &GenerationsHandler{
		store:   st,
		manager: manager,
		logger:  logger,
	}
}

// ListGenerations returns a project's jobs, or every active job when no
// project is given.
func (h *GenerationsHandler) ListGenerations(c *gin.Context) {
	projectID, err := parseQueryID(c, "projectId", "project")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	var jobs []models.Generation
	if projectID != nil {
		jobs, err = h.manager.ListByProject(c.Request.Context(), *projectID)
	} else {
		jobs, err = h.manager.ListActive(c.Request.Context())
	}
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, jobs)
}

func (h *GenerationsHandler) GetGeneration(c *gin.Context) {
	id, err := parseID(c, "id", "generation")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	job, err := h.manager.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// CreateGeneration godoc
// @Summary     Create generation job
// @Description Creates a pending job for an existing project and starts it
// @Tags        generations
// @Accept      json
// @Produce     json
// @Param       request body models.CreateGenerationRequest true "Generation"
// @Success     201 {object} models.Generation
// @Failure     400 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Router      /api/generations [post]
func (h *GenerationsHandler) CreateGeneration(c *gin.Context) {
	var req models.CreateGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, bindError("invalid generation data", err))
		return
	}

	ctx := c.Request.Context()
	kind := req.OutputKind
	if kind == "" {
		project, err := h.store.GetProject(ctx, req.ProjectID)
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		kind = project.OutputKind
	}

	job, err := h.manager.RequestGeneration(ctx, req.ProjectID, kind)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, job)
}

func (h *GenerationsHandler) UpdateGeneration(c *gin.Context) {
	id, err := parseID(c, "id", "generation")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	var patch models.GenerationPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		respondError(c, h.logger, bindError("invalid update data", err))
		return
	}

	job, err := h.manager.UpdateGeneration(c.Request.Context(), id, patch)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

func (h *GenerationsHandler) CancelGeneration(c *gin.Context) {
	id, err := parseID(c, "id", "generation")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	job, err := h.manager.Cancel(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// Generate godoc
// @Summary     Start generation
// @Description Creates a generation job for a project and returns immediately
// @Tags        generations
// @Accept      json
// @Produce     json
// @Param       request body models.GenerateRequest true "Generate"
// @Success     200 {object} models.GenerateResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Router      /api/generate [post]
func (h *GenerationsHandler) Generate(c *gin.Context) {
	var req models.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, bindError("project id and output type are required", err))
		return
	}

	job, err := h.manager.RequestGeneration(c.Request.Context(), req.ProjectID, req.OutputType)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, models.GenerateResponse{
		Message:      "Generation started",
		GenerationID: job.ID,
		Status:       job.Status,
	})
}
