package models

import "encoding/json"

type CreateUserRequest struct {
	Username    string `json:"username" binding:"required"`
	Email       string `json:"email" binding:"required,email"`
	DisplayName string `json:"displayName" binding:"required"`
}

type UpdateUserRequest struct {
	Username    *string `json:"username" binding:"omitempty,min=1"`
	Email       *string `json:"email" binding:"omitempty,email"`
	DisplayName *string `json:"displayName" binding:"omitempty,min=1"`
}

type CreateProjectRequest struct {
	// UserID defaults to the authenticated or configured default user.
	UserID      *int64  `json:"userId"`
	Name        string  `json:"name" binding:"required"`
	Description *string `json:"description"`
	// Script is validated separately so field-level errors can be reported.
	Script     json.RawMessage `json:"script"`
	OutputKind OutputKind      `json:"outputKind" binding:"required,oneof=podcast video slideshow pdf"`
}

type UpdateProjectRequest struct {
	Name        *string         `json:"name" binding:"omitempty,min=1"`
	Description *string         `json:"description"`
	Script      json.RawMessage `json:"script"`
	OutputKind  *OutputKind     `json:"outputKind" binding:"omitempty,oneof=podcast video slideshow pdf"`
}

type CreateTemplateRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description *string         `json:"description"`
	Category    string          `json:"category" binding:"required"`
	Script      json.RawMessage `json:"script"`
	IsPublic    bool            `json:"isPublic"`
}

type UpdateTemplateRequest struct {
	Name        *string         `json:"name" binding:"omitempty,min=1"`
	Description *string         `json:"description"`
	Category    *string         `json:"category" binding:"omitempty,min=1"`
	Script      json.RawMessage `json:"script"`
	IsPublic    *bool           `json:"isPublic"`
}

type CreateGenerationRequest struct {
	ProjectID int64 `json:"projectId" binding:"required"`
	// OutputKind defaults to the project's output kind.
	OutputKind OutputKind `json:"outputKind" binding:"omitempty,oneof=podcast video slideshow pdf"`
}

type GenerateRequest struct {
	ProjectID  int64      `json:"projectId" binding:"required"`
	OutputType OutputKind `json:"outputType" binding:"required,oneof=podcast video slideshow pdf"`
}
