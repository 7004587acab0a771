package realtime

// Named realtime streams.
const (
	// StreamSessions carries session lifecycle events (created, terminated)
	// to administrative subscribers and to the affected user.
	StreamSessions = "sessions"

	// StreamPresence carries presence changes for collaborators.
	StreamPresence = "presence"

	// StreamPool carries seat pool state changes after reconfiguration or
	// reconciliation.
	StreamPool = "pool"
)
