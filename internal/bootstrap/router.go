package bootstrap

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	httpapi "github.com/reelnotes/reelnotes-backend/internal/api/http"
	"github.com/reelnotes/reelnotes-backend/internal/api/http/middleware"
	"github.com/reelnotes/reelnotes-backend/internal/api/http/routes"
	authservice "github.com/reelnotes/reelnotes-backend/internal/auth/service"
	projhttp "github.com/reelnotes/reelnotes-backend/internal/projects/http"
)

type RouterDeps struct {
	ServiceName    string
	Version        string
	AllowedOrigins []string
	Store          httpapi.Pinger
	Cache          httpapi.Pinger
	AuthService    *authservice.AuthService
	Projects       *projhttp.Handler
}

func BuildRouter(dep RouterDeps) *gin.Engine {
	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     dep.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Session-Token", middleware.HeaderRequestID},
		ExposeHeaders:    []string{middleware.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(middleware.RequestIDMiddleware())

	healthHandler := httpapi.NewHealthHandler(dep.ServiceName, dep.Version, dep.Store, dep.Cache)
	healthHandler.RegisterRoutes(r)

	routes.RegisterV1(r, routes.V1Deps{
		AuthService: dep.AuthService,
		Projects:    dep.Projects,
	})

	return r
}
