package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"mulmocast-backend/internal/generation"
)

type DownloadsHandler struct {
	manager *generation.Manager
	logger  *slog.Logger
}

func NewDownloadsHandler(manager *generation.Manager, logger *slog.Logger) *DownloadsHandler {
	return &DownloadsHandler{
		manager: manager,
		logger:  logger,
	}
}

// Download serves the output of a completed generation, redirecting to the
// storage bucket when the artifact store exposes public links.
func (h *DownloadsHandler) Download(c *gin.Context) {
	name := c.Param("file")

	url, artifact, err := h.manager.Download(c.Request.Context(), name)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if url != "" {
		c.Redirect(http.StatusFound, url)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, artifact.ContentType, artifact.Data)
}
