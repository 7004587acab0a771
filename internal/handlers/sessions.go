package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/filehub/internal/auth"
	"github.com/charlesng35/filehub/pkg/errors"
	"github.com/charlesng35/filehub/pkg/response"
)

// SessionHandler exposes administrative session inspection and termination.
type SessionHandler struct {
	manager *iauth.SessionManager
	store   iauth.SessionStore
}

// NewSessionHandler constructs a SessionHandler.
func NewSessionHandler(manager *iauth.SessionManager, store iauth.SessionStore) *SessionHandler {
	return &SessionHandler{manager: manager, store: store}
}

type terminateRequest struct {
	Reason string `json:"reason" validate:"required,min=1,max=500"`
}

// List returns active sessions, optionally filtered by user_id.
func (h *SessionHandler) List(c *gin.Context) {
	ctx := requestContext(c)

	userID := strings.TrimSpace(c.Query("user_id"))
	if userID != "" {
		sessions, err := h.store.FindActiveByUser(ctx, userID)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Success(c, http.StatusOK, gin.H{"sessions": sessions, "count": len(sessions)})
		return
	}

	sessions, err := h.store.FindAllActive(ctx)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"sessions": sessions, "count": len(sessions)})
}

// Get returns a single session by id, terminated ones included.
func (h *SessionHandler) Get(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		response.Error(c, errors.NewBadRequest("session id is required"))
		return
	}

	session, err := h.store.FindByID(requestContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, session)
}

// Terminate force-terminates one session with an audit reason.
func (h *SessionHandler) Terminate(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		response.Error(c, errors.NewBadRequest("session id is required"))
		return
	}

	var req terminateRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.manager.AdminTerminate(requestContext(c), id, currentUserID(c), req.Reason); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Session terminated"})
}

// TerminateUser terminates every active session belonging to one user.
func (h *SessionHandler) TerminateUser(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("id"))
	if userID == "" {
		response.Error(c, errors.NewBadRequest("user id is required"))
		return
	}

	var req terminateRequest
	if !bindAndValidate(c, &req) {
		return
	}

	count, err := h.manager.TerminateAllUserSessions(requestContext(c), userID, currentUserID(c), req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"terminated": count})
}

// TerminateAllNonAdmin evicts every non-administrator session, e.g. ahead
// of maintenance windows.
func (h *SessionHandler) TerminateAllNonAdmin(c *gin.Context) {
	var req terminateRequest
	if !bindAndValidate(c, &req) {
		return
	}

	count, err := h.manager.TerminateAllNonAdmin(requestContext(c), currentUserID(c), req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"terminated": count})
}
