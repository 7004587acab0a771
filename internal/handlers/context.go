package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/filehub/internal/auth"
	"github.com/charlesng35/filehub/internal/middleware"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// currentClaims returns the authenticated token claims set by the auth middleware.
func currentClaims(c *gin.Context) *iauth.Claims {
	return middleware.ClaimsFromContext(c)
}

// currentUserID returns the authenticated user id, or "" when unauthenticated.
func currentUserID(c *gin.Context) string {
	if value, ok := c.Get(middleware.CtxUserIDKey); ok {
		if id, ok := value.(string); ok {
			return strings.TrimSpace(id)
		}
	}
	return ""
}

// clientIP resolves the originating address of the request.
func clientIP(c *gin.Context) string {
	if c == nil {
		return ""
	}
	return c.ClientIP()
}
