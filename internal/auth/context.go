package auth

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/reelnotes/reelnotes-backend/internal/auth/domain"
)

const (
	CtxUserID       = "user_id"
	CtxUser         = "user"
	CtxSessionToken = "session_token"
)

// UserID extracts the authenticated user id from the Gin context.
// This is set by middleware.RequireSession.
func UserID(c *gin.Context) string {
	return strings.TrimSpace(c.GetString(CtxUserID))
}

// CurrentUser returns the authenticated user, or nil.
func CurrentUser(c *gin.Context) *domain.User {
	v, ok := c.Get(CtxUser)
	if !ok {
		return nil
	}
	u, _ := v.(*domain.User)
	return u
}

func SessionToken(c *gin.Context) string {
	return c.GetString(CtxSessionToken)
}
