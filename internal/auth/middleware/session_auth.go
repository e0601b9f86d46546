package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/reelnotes/reelnotes-backend/internal/auth"
	"github.com/reelnotes/reelnotes-backend/internal/auth/service"
	"github.com/reelnotes/reelnotes-backend/internal/logger"
)

// RequireSession resolves the session token to a user and aborts with 401
// when there is none.
func RequireSession(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "missing session token"})
			return
		}

		user, err := authService.CurrentUser(c.Request.Context(), token)
		if err != nil {
			logger.New(c.Request.Context()).LogError("require_session", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "session lookup failed"})
			return
		}
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "invalid or expired session"})
			return
		}

		c.Set(auth.CtxUserID, user.ID)
		c.Set(auth.CtxUser, user)
		c.Set(auth.CtxSessionToken, token)
		c.Next()
	}
}

// ExtractToken reads "Authorization: Bearer <token>", falling back to the
// X-Session-Token header.
func ExtractToken(c *gin.Context) string {
	bearerToken := c.GetHeader("Authorization")
	if len(bearerToken) > 7 && strings.HasPrefix(bearerToken, "Bearer ") {
		return strings.TrimSpace(bearerToken[7:])
	}
	return strings.TrimSpace(c.GetHeader("X-Session-Token"))
}
