package http

import (
	"github.com/gin-gonic/gin"

	"github.com/reelnotes/reelnotes-backend/internal/auth/middleware"
)

func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/register", h.RegisterUser)
	rg.POST("/login", h.LoginUser)

	authed := rg.Group("")
	authed.Use(middleware.RequireSession(h.authService))
	authed.POST("/logout", h.LogoutUser)
	authed.GET("/me", h.Me)
}
