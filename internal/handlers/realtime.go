package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/filehub/internal/auth"
	"github.com/charlesng35/filehub/internal/realtime"
	"github.com/charlesng35/filehub/pkg/errors"
	"github.com/charlesng35/filehub/pkg/response"
)

// RealtimeHandler upgrades HTTP connections into authenticated WebSocket streams.
type RealtimeHandler struct {
	hub      *realtime.Hub
	jwt      *iauth.JWTService
	sessions *iauth.SessionManager
}

// NewRealtimeHandler constructs a realtime handler.
func NewRealtimeHandler(hub *realtime.Hub, jwt *iauth.JWTService, sessions *iauth.SessionManager) *RealtimeHandler {
	return &RealtimeHandler{hub: hub, jwt: jwt, sessions: sessions}
}

// Stream validates the caller and upgrades the request to the realtime hub.
// Browsers cannot set headers on WebSocket upgrades, so the access token is
// also accepted as a query parameter.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	if h.jwt == nil || h.hub == nil {
		response.Error(c, errors.ErrNotFound)
		return
	}

	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		token = strings.TrimSpace(c.Query("access_token"))
	}
	if token == "" {
		authz := c.GetHeader("Authorization")
		if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			token = strings.TrimSpace(authz[7:])
		}
	}

	if token == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	claims, err := h.jwt.ParseAccessToken(requestContext(c), token)
	if err != nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	userID := strings.TrimSpace(claims.UserID)
	if userID == "" || claims.SessionID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	// The session must still be live; a kicked or idle-expired session
	// cannot reattach through the websocket entry point.
	if h.sessions != nil {
		if _, err := h.sessions.ValidateSession(requestContext(c), claims.SessionID); err != nil {
			response.Error(c, err)
			return
		}
	}

	allowed := allowedStreamsForRole(claims.Role)

	streams := gatherStreams(c)
	if len(streams) == 0 {
		streams = []string{realtime.StreamPresence}
	}
	for _, stream := range streams {
		if _, ok := allowed[stream]; !ok {
			response.Error(c, errors.ErrForbidden)
			return
		}
	}

	h.hub.Serve(userID, claims.SessionID, streams, allowed, c.Writer, c.Request)
}

// allowedStreamsForRole scopes stream visibility: presence is open to every
// authenticated user, session lifecycle and pool telemetry are admin-only.
func allowedStreamsForRole(role string) map[string]struct{} {
	allowed := map[string]struct{}{
		realtime.StreamPresence: {},
	}
	if strings.EqualFold(role, "admin") {
		allowed[realtime.StreamSessions] = struct{}{}
		allowed[realtime.StreamPool] = struct{}{}
	}
	return allowed
}

func gatherStreams(c *gin.Context) []string {
	var streams []string

	for _, queryStream := range c.QueryArray("stream") {
		if normalized := normalizeStream(queryStream); normalized != "" {
			streams = append(streams, normalized)
		}
	}

	raw := c.Query("streams")
	if raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if normalized := normalizeStream(part); normalized != "" {
				streams = append(streams, normalized)
			}
		}
	}

	return uniqueStreams(streams)
}

func normalizeStream(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func uniqueStreams(streams []string) []string {
	seen := make(map[string]struct{}, len(streams))
	unique := make([]string, 0, len(streams))
	for _, stream := range streams {
		if _, ok := seen[stream]; ok {
			continue
		}
		seen[stream] = struct{}{}
		unique = append(unique, stream)
	}
	return unique
}
