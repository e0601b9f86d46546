package routes

import (
	"github.com/gin-gonic/gin"

	authhttp "github.com/reelnotes/reelnotes-backend/internal/auth/http"
	"github.com/reelnotes/reelnotes-backend/internal/auth/middleware"
	authservice "github.com/reelnotes/reelnotes-backend/internal/auth/service"
	projhttp "github.com/reelnotes/reelnotes-backend/internal/projects/http"
)

type V1Deps struct {
	AuthService *authservice.AuthService
	Projects    *projhttp.Handler
}

// RegisterV1 mounts /api/v1. Everything under /projects needs a session.
func RegisterV1(r *gin.Engine, dep V1Deps) {
	api := r.Group("/api/v1")

	authhttp.New(dep.AuthService).Register(api.Group("/auth"))

	projectsGroup := api.Group("/projects")
	projectsGroup.Use(middleware.RequireSession(dep.AuthService))
	dep.Projects.Register(projectsGroup)
}
