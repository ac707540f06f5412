package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"mulmocast-backend/internal/models"
	"mulmocast-backend/internal/store"
)

type UsersHandler struct {
	store  store.Store
	logger *slog.Logger
}

func NewUsersHandler(st store.Store, logger *slog.Logger) *UsersHandler {
	return &UsersHandler{
		store:  st,
		logger: logger,
	}
}

func (h *UsersHandler) GetUser(c *gin.Context) {
	id, err := parseID(c, "id", "user")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	user, err := h.store.GetUser(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

func (h *UsersHandler) CreateUser(c *gin.Context) {
	var req models.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, bindError("invalid user data", err))
		return
	}

	user, err := h.store.CreateUser(c.Request.Context(), models.User{
		Username:    req.Username,
		Email:       req.Email,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, user)
}

func (h *UsersHandler) UpdateUser(c *gin.Context) {
	id, err := parseID(c, "id", "user")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	var req models.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, bindError("invalid update data", err))
		return
	}

	user, err := h.store.UpdateUser(c.Request.Context(), id, func(u *models.User) error {
		if req.Username != nil {
			u.Username = *req.Username
		}
		if req.Email != nil {
			u.Email = *req.Email
		}
		if req.DisplayName != nil {
			u.DisplayName = *req.DisplayName
		}
		return nil
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, user)
}
