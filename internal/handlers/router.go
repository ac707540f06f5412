package handlers

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	_ "mulmocast-backend/docs"
	"mulmocast-backend/internal/config"
	"mulmocast-backend/internal/generation"
	"mulmocast-backend/internal/logging"
	"mulmocast-backend/internal/middleware"
	"mulmocast-backend/internal/store"
)

type Dependencies struct {
	Config  *config.Config
	Store   store.Store
	Manager *generation.Manager
	Logger  *slog.Logger
}

// NewRouter wires every API route onto a fresh gin engine.
func NewRouter(deps Dependencies) *gin.Engine {
	useJSONFieldNames()

	usersHandler := NewUsersHandler(deps.Store, deps.Logger)
	projectsHandler := NewProjectsHandler(deps.Store, deps.Manager, deps.Config.DefaultUserID, deps.Logger)
	templatesHandler := NewTemplatesHandler(deps.Store, deps.Logger)
	generationsHandler := NewGenerationsHandler(deps.Store, deps.Manager, deps.Logger)
	scriptsHandler := NewScriptsHandler(deps.Logger)
	downloadsHandler := NewDownloadsHandler(deps.Manager, deps.Logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logging.RequestID())
	router.Use(logging.GinMiddleware(deps.Logger))

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check (no auth)
	router.GET("/api/health", HealthHandler)

	api := router.Group("/api")
	api.Use(middleware.AuthMiddleware(deps.Config))

	// Users
	api.GET("/users/:id", usersHandler.GetUser)
	api.POST("/users", usersHandler.CreateUser)
	api.PUT("/users/:id", usersHandler.UpdateUser)

	// Projects
	api.GET("/projects", projectsHandler.ListProjects)
	api.GET("/projects/:id", projectsHandler.GetProject)
	api.POST("/projects", projectsHandler.CreateProject)
	api.PUT("/projects/:id", projectsHandler.UpdateProject)
	api.DELETE("/projects/:id", projectsHandler.DeleteProject)

	// Templates
	api.GET("/templates", templatesHandler.ListTemplates)
	api.GET("/templates/:id", templatesHandler.GetTemplate)
	api.POST("/templates", templatesHandler.CreateTemplate)
	api.PUT("/templates/:id", templatesHandler.UpdateTemplate)

	// Generations
	api.GET("/generations", generationsHandler.ListGenerations)
	api.GET("/generations/:id", generationsHandler.GetGeneration)
	api.POST("/generations", generationsHandler.CreateGeneration)
	api.PUT("/generations/:id", generationsHandler.UpdateGeneration)
	api.POST("/generations/:id/cancel", generationsHandler.CancelGeneration)
	api.POST("/generate", generationsHandler.Generate)

	// Scripts and outputs
	api.POST("/mulmo-script/validate", scriptsHandler.Validate)
	api.GET("/downloads/:file", downloadsHandler.Download)

	return router
}
