package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/reelnotes/reelnotes-backend/internal/auth"
	"github.com/reelnotes/reelnotes-backend/internal/auth/domain"
	"github.com/reelnotes/reelnotes-backend/internal/logger"
)

// RegisterUser creates an account and returns its first session token
func (h *Handler) RegisterUser(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}

	user, token, err := h.authService.RegisterUser(c.Request.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		h.writeAuthError(c, "register_user", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ok": true, "user": user, "token": token})
}

// LoginUser exchanges credentials for a session token
func (h *Handler) LoginUser(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}

	user, token, err := h.authService.LoginUser(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.writeAuthError(c, "login_user", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "user": user, "token": token})
}

// LogoutUser ends the current session
func (h *Handler) LogoutUser(c *gin.Context) {
	if err := h.authService.LogoutUser(c.Request.Context(), auth.SessionToken(c)); err != nil {
		logger.New(c.Request.Context()).LogError("logout_user", err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "failed to log out"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Me returns the current user
func (h *Handler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "user": auth.CurrentUser(c)})
}

func (h *Handler) writeAuthError(c *gin.Context, op string, err error) {
	var ae *domain.AuthError
	if errors.As(err, &ae) {
		status := http.StatusUnauthorized
		switch ae.Code {
		case domain.CodeEmailTaken:
			status = http.StatusConflict
		case domain.CodeInvalidInput:
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{"ok": false, "error": ae.Message, "code": ae.Code})
		return
	}
	logger.New(c.Request.Context()).LogError(op, err)
	c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "internal error"})
}
