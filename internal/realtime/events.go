package realtime

// SessionBroadcaster publishes session lifecycle events onto the sessions
// stream. It satisfies the session manager's event hook.
type SessionBroadcaster struct {
	hub *Hub
}

func NewSessionBroadcaster(hub *Hub) *SessionBroadcaster {
	return &SessionBroadcaster{hub: hub}
}

func (b *SessionBroadcaster) SessionCreated(userID, sessionID, ipAddress string) {
	b.hub.BroadcastStream(StreamSessions, Message{
		Event: "session.created",
		Data: map[string]any{
			"user_id":    userID,
			"session_id": sessionID,
			"ip_address": ipAddress,
		},
	})
}

func (b *SessionBroadcaster) SessionTerminated(userID, sessionID, reason string) {
	b.hub.BroadcastStream(StreamSessions, Message{
		Event: "session.terminated",
		Data: map[string]any{
			"user_id":    userID,
			"session_id": sessionID,
			"reason":     reason,
		},
	})
	// Sever any live connections the terminated session still holds.
	b.hub.DisconnectSession(sessionID)
}
