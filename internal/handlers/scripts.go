package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"mulmocast-backend/internal/apperrors"
	"mulmocast-backend/internal/models"
	"mulmocast-backend/internal/mulmoscript"
)

type ScriptsHandler struct {
	logger *slog.Logger
}

func NewScriptsHandler(logger *slog.Logger) *ScriptsHandler {
	return &ScriptsHandler{logger: logger}
}

// Validate checks a standalone MulmoScript document. Valid documents come back
// in canonical form with any lint warnings.
func (h *ScriptsHandler) Validate(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		respondError(c, h.logger, apperrors.NewValidationError("failed to read request body"))
		return
	}

	script, err := mulmoscript.Validate(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ValidateScriptResponse{
			Valid:   false,
			Error:   "invalid MulmoScript format",
			Details: apperrors.DetailsOf(err),
		})
		return
	}

	c.JSON(http.StatusOK, models.ValidateScriptResponse{
		Valid:    true,
		Script:   script,
		Warnings: mulmoscript.Lint(script),
	})
}
