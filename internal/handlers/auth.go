package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	iauth "github.com/charlesng35/filehub/internal/auth"
	"github.com/charlesng35/filehub/pkg/errors"
	"github.com/charlesng35/filehub/pkg/response"
)

// AuthHandler exposes login, logout, token refresh and identity lookup.
type AuthHandler struct {
	sessions *iauth.SessionManager
}

// NewAuthHandler constructs an AuthHandler backed by the session manager.
func NewAuthHandler(sessions *iauth.SessionManager) *AuthHandler {
	return &AuthHandler{sessions: sessions}
}

type loginRequest struct {
	Username   string         `json:"username" validate:"required,min=1,max=255"`
	Password   string         `json:"password" validate:"required,min=1"`
	DeviceInfo datatypes.JSON `json:"device_info,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// Login authenticates credentials, admits a seat and opens a session.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.sessions.Login(requestContext(c), iauth.LoginInput{
		Username:   strings.TrimSpace(req.Username),
		Password:   req.Password,
		IPAddress:  clientIP(c),
		UserAgent:  c.GetHeader("User-Agent"),
		DeviceInfo: req.DeviceInfo,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// Logout terminates the caller's session and returns its seat. Logout is
// idempotent: a stale or already-terminated session still yields success.
func (h *AuthHandler) Logout(c *gin.Context) {
	claims := currentClaims(c)
	if claims == nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	if err := h.sessions.Logout(requestContext(c), claims); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Logged out"})
}

// Refresh rotates the token pair bound to an active session.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if !bindAndValidate(c, &req) {
		return
	}

	pair, err := h.sessions.Refresh(requestContext(c), strings.TrimSpace(req.RefreshToken))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, pair)
}

// Me returns the authenticated user together with the current session.
func (h *AuthHandler) Me(c *gin.Context) {
	claims := currentClaims(c)
	if claims == nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	session, err := h.sessions.ValidateSession(requestContext(c), claims.SessionID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"user_id":  claims.UserID,
		"username": claims.Username,
		"role":     claims.Role,
		"session":  session,
	})
}
