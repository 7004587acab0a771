package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/filehub/internal/models"
)

type presenceRecorder struct {
	mu        sync.Mutex
	connected map[string]bool
	statuses  map[string]models.PresenceStatus
}

func newPresenceRecorder() *presenceRecorder {
	return &presenceRecorder{
		connected: map[string]bool{},
		statuses:  map[string]models.PresenceStatus{},
	}
}

func (p *presenceRecorder) SetWSConnected(ctx context.Context, sessionID string, connected bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected[sessionID] = connected
	return nil
}

func (p *presenceRecorder) SetPresenceStatus(ctx context.Context, sessionID string, status models.PresenceStatus) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses[sessionID] = status
	return nil
}

func (p *presenceRecorder) isConnected(sessionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected[sessionID]
}

func (p *presenceRecorder) status(sessionID string) models.PresenceStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statuses[sessionID]
}

func dialHub(t *testing.T, hub *Hub, userID, sessionID string, streams []string) *websocket.Conn {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(userID, sessionID, streams, nil, w, r)
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitForSubscriber(t *testing.T, hub *Hub, stream, userID string) {
	t.Helper()
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.subscriptions[stream][userID]) > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHubBroadcastStream(t *testing.T) {
	presence := newPresenceRecorder()
	hub := NewHub(presence)

	conn := dialHub(t, hub, "user-1", "session-1", []string{StreamSessions})

	// Connection state is mirrored into the session record.
	require.Eventually(t, func() bool {
		return presence.isConnected("session-1")
	}, 2*time.Second, 10*time.Millisecond)

	hub.BroadcastStream(StreamSessions, Message{
		Event: "session.created",
		Data:  map[string]any{"session_id": "session-2"},
	})

	msg := readMessage(t, conn)
	require.Equal(t, StreamSessions, msg.Stream)
	require.Equal(t, "session.created", msg.Event)
}

func TestHubBroadcastToUserTargetsOnlyThatUser(t *testing.T) {
	hub := NewHub(nil)

	aliceConn := dialHub(t, hub, "alice", "session-a", []string{StreamSessions})
	bobConn := dialHub(t, hub, "bob", "session-b", []string{StreamSessions})
	waitForSubscriber(t, hub, StreamSessions, "alice")
	waitForSubscriber(t, hub, StreamSessions, "bob")

	hub.BroadcastToUser(StreamSessions, "alice", Message{Event: "session.terminated"})

	msg := readMessage(t, aliceConn)
	require.Equal(t, "session.terminated", msg.Event)

	// Bob receives nothing.
	require.NoError(t, bobConn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	var stray Message
	require.Error(t, bobConn.ReadJSON(&stray))
}

func TestHubPresenceControl(t *testing.T) {
	presence := newPresenceRecorder()
	hub := NewHub(presence)

	conn := dialHub(t, hub, "user-1", "session-1", []string{StreamPresence})
	waitForSubscriber(t, hub, StreamPresence, "user-1")

	require.NoError(t, conn.WriteJSON(map[string]any{
		"action":   "presence",
		"presence": "away",
	}))

	require.Eventually(t, func() bool {
		return presence.status("session-1") == models.PresenceAway
	}, 2*time.Second, 10*time.Millisecond)

	// The change is echoed to presence subscribers.
	msg := readMessage(t, conn)
	require.Equal(t, "presence.changed", msg.Event)

	// Offline cannot be set through the control channel.
	require.NoError(t, conn.WriteJSON(map[string]any{
		"action":   "presence",
		"presence": "offline",
	}))
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, models.PresenceAway, presence.status("session-1"))
}

func TestHubDisconnectSession(t *testing.T) {
	presence := newPresenceRecorder()
	hub := NewHub(presence)

	conn := dialHub(t, hub, "user-1", "session-1", []string{StreamSessions})
	require.Eventually(t, func() bool {
		return presence.isConnected("session-1")
	}, 2*time.Second, 10*time.Millisecond)

	hub.DisconnectSession("session-1")

	require.Eventually(t, func() bool {
		return !presence.isConnected("session-1")
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	var msg Message
	require.Error(t, conn.ReadJSON(&msg))
}

func TestHubUnauthorizedStreamIgnored(t *testing.T) {
	hub := NewHub(nil)

	allowed := map[string]struct{}{StreamPresence: {}}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve("user-1", "session-1", []string{StreamSessions, StreamPresence}, allowed, w, r)
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	waitForSubscriber(t, hub, StreamPresence, "user-1")

	// The disallowed sessions stream delivers nothing to this client.
	hub.BroadcastStream(StreamSessions, Message{Event: "session.created"})
	hub.BroadcastStream(StreamPresence, Message{Event: "presence.changed"})

	msg := readMessage(t, conn)
	require.Equal(t, StreamPresence, msg.Stream)
}
