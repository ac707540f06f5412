package models

import (
	"time"

	"mulmocast-backend/internal/apperrors"
)

type ErrorResponse struct {
	Error   string                 `json:"error"`
	Message string                 `json:"message,omitempty"`
	Details []apperrors.FieldError `json:"details,omitempty"`
}

type ValidateScriptResponse struct {
	Valid    bool                   `json:"valid"`
	Script   *Script                `json:"script,omitempty"`
	Warnings []apperrors.FieldError `json:"warnings,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Details  []apperrors.FieldError `json:"details,omitempty"`
}

type GenerateResponse struct {
	Message      string           `json:"message"`
	GenerationID int64            `json:"generationId"`
	Status       GenerationStatus `json:"status"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}
