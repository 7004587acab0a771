package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/filehub/internal/auth"
	"github.com/charlesng35/filehub/pkg/errors"
	"github.com/charlesng35/filehub/pkg/response"
)

const (
	CtxClaimsKey    = "authClaims"
	CtxUserIDKey    = "userID"
	CtxSessionIDKey = "sessionID"
)

// Auth enforces JWT authentication and live-session validation. Every
// authenticated request revalidates the session — which is also where idle
// sessions get terminated — and counts as activity against the idle timer.
func Auth(jwt *iauth.JWTService, sessions *iauth.SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		token := strings.TrimSpace(authz[7:])
		claims, err := jwt.ParseAccessToken(c.Request.Context(), token)
		if err != nil {
			// Normalise all validation failures to 401
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		if sessions != nil {
			if _, err := sessions.ValidateSession(c.Request.Context(), claims.SessionID); err != nil {
				c.Header("WWW-Authenticate", "Bearer")
				response.Error(c, errors.FromError(err))
				c.Abort()
				return
			}
			_ = sessions.Touch(c.Request.Context(), claims.SessionID)
		}

		// Propagate identity into request context
		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, claims.UserID)
		if claims.SessionID != "" {
			c.Set(CtxSessionIDKey, claims.SessionID)
		}

		c.Next()
	}
}

// RequireAdmin allows only admin-role callers past. It must run after Auth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := ClaimsFromContext(c)
		if claims == nil || !strings.EqualFold(claims.Role, "admin") {
			response.Error(c, errors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// ClaimsFromContext returns the authenticated claims, or nil when the
// request did not pass Auth.
func ClaimsFromContext(c *gin.Context) *iauth.Claims {
	value, ok := c.Get(CtxClaimsKey)
	if !ok {
		return nil
	}
	claims, ok := value.(*iauth.Claims)
	if !ok {
		return nil
	}
	return claims
}
