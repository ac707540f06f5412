package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"mulmocast-backend/internal/models"
	"mulmocast-backend/internal/store"
)

// allCategories disables the category filter.
const allCategories = "all"

type TemplatesHandler struct {
	store  store.Store
	logger *slog.Logger
}

func NewTemplatesHandler(st store.Store, logger *slog.Logger) *TemplatesHandler {
	return &TemplatesHandler{
		store:  st,
		logger: logger,
	}
}

// ListTemplates returns public templates, optionally narrowed to a category.
func (h *TemplatesHandler) ListTemplates(c *gin.Context) {
	filter := store.TemplateFilter{PublicOnly: true}
	if category := c.Query("category"); category != "" && category != allCategories {
		filter.Category = category
	}

	templates, err := h.store.ListTemplates(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, templates)
}

func (h *TemplatesHandler) GetTemplate(c *gin.Context) {
	id, err := parseID(c, "id", "template")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	template, err := h.store.GetTemplate(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, template)
}

func (h *TemplatesHandler) CreateTemplate(c *gin.Context) {
	var req models.CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, bindError("invalid template data", err))
		return
	}

	script, err := validateScript("invalid template data", req.Script)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	template, err := h.store.CreateTemplate(c.Request.Context(), models.Template{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Script:      *script,
		IsPublic:    req.IsPublic,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, template)
}

func (h *TemplatesHandler) UpdateTemplate(c *gin.Context) {
	id, err := parseID(c, "id", "template")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	var req models.UpdateTemplateRequest
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

	template, err := h.store.UpdateTemplate(c.Request.Context(), id, func(t *models.Template) error {
		if req.Name != nil {
			t.Name = *req.Name
		}
		if req.Description != nil {
			t.Description = req.Description
		}
		if req.Category != nil {
			t.Category = *req.Category
		}
		if script != nil {
			t.Script = *script
		}
		if req.IsPublic != nil {
			t.IsPublic = *req.IsPublic
		}
		return nil
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, template)
}
