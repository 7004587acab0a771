package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/filehub/internal/auth"
	"github.com/charlesng35/filehub/pkg/errors"
	"github.com/charlesng35/filehub/pkg/response"
)

// LimitHandler manages per-user session limit overrides.
type LimitHandler struct {
	limiter *iauth.GormSessionLimiter
}

// NewLimitHandler constructs a LimitHandler.
func NewLimitHandler(limiter *iauth.GormSessionLimiter) *LimitHandler {
	return &LimitHandler{limiter: limiter}
}

type setLimitRequest struct {
	MaxSessions int    `json:"max_sessions" validate:"gte=0,lte=1000"`
	Reason      string `json:"reason" validate:"max=500"`
}

// Set upserts a per-user override. A zero max_sessions means unlimited.
func (h *LimitHandler) Set(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("id"))
	if userID == "" {
		response.Error(c, errors.NewBadRequest("user id is required"))
		return
	}

	var req setLimitRequest
	if !bindAndValidate(c, &req) {
		return
	}

	err := h.limiter.SetUserLimit(requestContext(c), userID, req.MaxSessions, req.Reason, currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"user_id":      userID,
		"max_sessions": req.MaxSessions,
	})
}

// Remove drops the override so the role default applies again.
func (h *LimitHandler) Remove(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("id"))
	if userID == "" {
		response.Error(c, errors.NewBadRequest("user id is required"))
		return
	}

	if err := h.limiter.RemoveUserLimit(requestContext(c), userID); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Session limit override removed"})
}
