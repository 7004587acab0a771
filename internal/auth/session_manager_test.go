package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/filehub/internal/auth/seat"
	"github.com/charlesng35/filehub/internal/database/testutil"
	"github.com/charlesng35/filehub/internal/models"
	"github.com/charlesng35/filehub/pkg/crypto"
	apperrors "github.com/charlesng35/filehub/pkg/errors"
)

const testPassword = "correct horse battery staple"

type recordedEvent struct {
	kind      string
	userID    string
	sessionID string
	detail    string
}

type eventRecorder struct {
	events []recordedEvent
}

func (r *eventRecorder) SessionCreated(userID, sessionID, ipAddress string) {
	r.events = append(r.events, recordedEvent{kind: "created", userID: userID, sessionID: sessionID, detail: ipAddress})
}

func (r *eventRecorder) SessionTerminated(userID, sessionID, reason string) {
	r.events = append(r.events, recordedEvent{kind: "terminated", userID: userID, sessionID: sessionID, detail: reason})
}

type managerFixture struct {
	db      *gorm.DB
	manager *SessionManager
	alloc   *seat.MemoryAllocator
	store   *GormSessionStore
	users   *GormUserRepository
	events  *eventRecorder
	now     time.Time
}

type fixtureOptions struct {
	totalSeats       int
	adminReserved    int
	overflowStrategy string
	roleLimits       map[string]int
	sessionStore     func(*GormSessionStore) SessionStore
	seats            func(*seat.MemoryAllocator) seat.Allocator
}

func newManagerFixture(t *testing.T, opts fixtureOptions) *managerFixture {
	t.Helper()

	if opts.totalSeats == 0 {
		opts.totalSeats = 10
	}
	if opts.overflowStrategy == "" {
		opts.overflowStrategy = OverflowDeny
	}

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	f := &managerFixture{db: db, now: time.Now().Truncate(time.Second), events: &eventRecorder{}}
	clock := func() time.Time { return f.now }

	f.alloc = seat.NewMemoryAllocator(opts.totalSeats, opts.adminReserved)
	f.store = NewGormSessionStore(db, SessionStoreConfig{AbsoluteTimeout: 12 * time.Hour, Clock: clock})
	f.users = NewGormUserRepository(db)

	tokens, err := NewJWTService(JWTConfig{
		Secret:     "test-secret",
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
		Clock:      clock,
	}, newMemoryStore())
	require.NoError(t, err)

	var sessions SessionStore = f.store
	if opts.sessionStore != nil {
		sessions = opts.sessionStore(f.store)
	}
	var seats seat.Allocator = f.alloc
	if opts.seats != nil {
		seats = opts.seats(f.alloc)
	}

	manager, err := NewSessionManager(SessionManagerDeps{
		Users:    f.users,
		Sessions: sessions,
		Limiter:  NewGormSessionLimiter(db, LimiterConfig{RoleLimits: opts.roleLimits}),
		Seats:    seats,
		Tokens:   tokens,
		Events:   f.events,
	}, SessionManagerConfig{
		MaxFailedAttempts: 3,
		LockoutDuration:   15 * time.Minute,
		IdleTimeout:       30 * time.Minute,
		OverflowStrategy:  opts.overflowStrategy,
		Clock:             clock,
	})
	require.NoError(t, err)
	f.manager = manager
	return f
}

func (f *managerFixture) createUser(t *testing.T, username string, role models.UserRole) *models.User {
	t.Helper()
	hash, err := crypto.HashPassword(testPassword)
	require.NoError(t, err)
	user := &models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		Status:       models.UserStatusActive,
		Role:         role,
	}
	require.NoError(t, f.db.Create(user).Error)
	return user
}

func (f *managerFixture) login(t *testing.T, username string) *LoginResult {
	t.Helper()
	result, err := f.manager.Login(context.Background(), LoginInput{
		Username:  username,
		Password:  testPassword,
		IPAddress: "203.0.113.9",
		UserAgent: "test-agent",
	})
	require.NoError(t, err)
	return result
}

func (f *managerFixture) checkedOut(t *testing.T) int {
	t.Helper()
	state, err := f.alloc.State(context.Background())
	require.NoError(t, err)
	return state.CheckedOut
}

func TestLoginHappyPath(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t, fixtureOptions{})
	user := f.createUser(t, "alice", models.UserRoleViewer)

	result := f.login(t, "alice")
	require.Equal(t, user.ID, result.User.ID)
	require.NotEmpty(t, result.Tokens.AccessToken)
	require.NotEmpty(t, result.Tokens.RefreshToken)
	require.NotNil(t, result.Session.SeatAllocatedAt)
	require.Equal(t, 1, f.checkedOut(t))

	// Tokens are bound to the durable session id.
	claims, err := f.manager.tokens.ParseAccessToken(ctx, result.Tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, result.Session.ID, claims.SessionID)

	// Persisted hashes match the returned pair.
	stored, err := f.store.FindByID(ctx, result.Session.ID)
	require.NoError(t, err)
	require.Equal(t, crypto.HashToken(result.Tokens.AccessToken), stored.TokenHash)
	require.Equal(t, crypto.HashToken(result.Tokens.RefreshToken), stored.RefreshTokenHash)
	require.NotNil(t, stored.SeatAllocatedAt)

	// Last login is recorded.
	refreshed, err := f.users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, refreshed.LastLoginAt)

	require.Len(t, f.events.events, 1)
	require.Equal(t, "created", f.events.events[0].kind)
	require.Equal(t, result.Session.ID, f.events.events[0].sessionID)
}

func TestLoginInvalidCredentials(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t, fixtureOptions{})
	f.createUser(t, "alice", models.UserRoleViewer)

	_, err := f.manager.Login(ctx, LoginInput{Username: "alice", Password: "wrong"})
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	// Unknown usernames yield the same error.
	_, err = f.manager.Login(ctx, LoginInput{Username: "nobody", Password: "wrong"})
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	// No seat was consumed by either failure.
	require.Equal(t, 0, f.checkedOut(t))
}

func TestLoginLockoutAfterRepeatedFailures(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t, fixtureOptions{})
	user := f.createUser(t, "alice", models.UserRoleViewer)

	for i := 0; i < 3; i++ {
		_, err := f.manager.Login(ctx, LoginInput{Username: "alice", Password: "wrong"})
		require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	}

	locked, err := f.users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, models.UserStatusLocked, locked.Status)
	require.NotNil(t, locked.LockedUntil)

	// Even the right password is refused while the lock holds.
	_, err = f.manager.Login(ctx, LoginInput{Username: "alice", Password: testPassword})
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, apperrors.ErrForbidden.Code, appErr.Code)

	// Once the lock expires the login proceeds.
	f.now = f.now.Add(16 * time.Minute)
	result := f.login(t, "alice")
	require.NotNil(t, result.Session)
}

func TestLoginInactiveAccount(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t, fixtureOptions{})
	user := f.createUser(t, "alice", models.UserRoleViewer)
	require.NoError(t, f.db.Model(user).Update("status", models.UserStatusInactive).Error)

	_, err := f.manager.Login(ctx, LoginInput{Username: "alice", Password: testPassword})
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, apperrors.ErrForbidden.Code, appErr.Code)
}

func TestLoginSeatExhaustion(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t, fixtureOptions{totalSeats: 1})
	f.createUser(t, "alice", models.UserRoleViewer)
	f.createUser(t, "bob", models.UserRoleViewer)

	f.login(t, "alice")

	_, err := f.manager.Login(ctx, LoginInput{Username: "bob", Password: testPassword})
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, apperrors.ErrSeatsExhausted.Code, appErr.Code)

	// The denied login left no session behind.
	count, err := f.store.CountAllActive(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestLoginAdminReservedSeats(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t, fixtureOptions{totalSeats: 2, adminReserved: 1})
	f.createUser(t, "user-a", models.UserRoleViewer)
	f.createUser(t, "user-b", models.UserRoleViewer)
	f.createUser(t, "root", models.UserRoleAdmin)

	// The single unreserved seat goes to the first standard user.
	first := f.login(t, "user-a")

	// The second standard user is denied despite a seat being physically free.
	_, err := f.manager.Login(ctx, LoginInput{Username: "user-b", Password: testPassword})
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, apperrors.ErrSeatsExhausted.Code, appErr.Code)

	// The admin takes the reserved seat.
	f.login(t, "root")
	require.Equal(t, 2, f.checkedOut(t))

	// Once the first user logs out the admin occupies the unreserved
	// slot, leaving only the reserved one free. The second standard user
	// is still denied.
	claims, err := f.manager.tokens.ParseAccessToken(ctx, first.Tokens.AccessToken)
	require.NoError(t, err)
	require.NoError(t, f.manager.Logout(ctx, claims))
	require.Equal(t, 1, f.checkedOut(t))

	_, err = f.manager.Login(ctx, LoginInput{Username: "user-b", Password: testPassword})
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, apperrors.ErrSeatsExhausted.Code, appErr.Code)
}

type failingCreateStore struct {
	SessionStore
}

func (s *failingCreateStore) Create(ctx context.Context, input CreateSessionInput) (*models.Session, error) {
	return nil, apperrors.ErrInternalServer.WithMessage("induced failure")
}

func TestLoginRollsBackSeatOnSessionFailure(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t, fixtureOptions{
		sessionStore: func(real *GormSessionStore) SessionStore {
			return &failingCreateStore{SessionStore: real}
		},
	})
	f.createUser(t, "alice", models.UserRoleViewer)

	_, err := f.manager.Login(ctx, LoginInput{Username: "alice", Password: testPassword})
	require.Error(t, err)

	// The seat allocated before the failure was returned to the pool.
	require.Equal(t, 0, f.checkedOut(t))
}

func TestLoginOverflowDeny(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t, fixtureOptions{
		roleLimits: map[string]int{"viewer": 1},
	})
	f.createUser(t, "alice", models.UserRoleViewer)

	f.login(t, "alice")

	_, err := f.manager.Login(ctx, LoginInput{Username: "alice", Password: testPassword})
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, apperrors.ErrConflict.Code, appErr.Code)
}

func TestLoginOverflowKickOldest(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t, fixtureOptions{
		overflowStrategy: OverflowKickOldest,
		roleLimits:       map[string]int{"viewer": 1},
	})
	f.createUser(t, "alice", models.UserRoleViewer)

	first := f.login(t, "alice")
	f.now = f.now.Add(time.Minute)
	second := f.login(t, "alice")

	// The older session was evicted and records why.
	kicked, err := f.store.FindByID(ctx, first.Session.ID)
	require.NoError(t, err)
	require.True(t, kicked.IsTerminated())
	require.Equal(t, "Kicked: session limit overflow (oldest)", *kicked.TerminatedReason)

	// The new session remembers which session made room for it.
	fresh, err := f.store.FindByID(ctx, second.Session.ID)
	require.NoError(t, err)
	require.NotNil(t, fresh.OverflowKickedID)
	require.Equal(t, first.Session.ID, *fresh.OverflowKickedID)

	// The evicted session's tokens no longer verify.
	_, err = f.manager.tokens.ParseAccessToken(ctx, first.Tokens.AccessToken)
	require.Error(t, err)

	count, err := f.store.CountActiveByUser(ctx, first.Session.UserID)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestLoginOverflowKickIdle(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t, fixtureOptions{
		overflowStrategy: OverflowKickIdle,
		roleLimits:       map[string]int{"viewer": 2},
	})
	f.createUser(t, "alice", models.UserRoleViewer)

	first := f.login(t, "alice")
	f.now = f.now.Add(time.Minute)
	second := f.login(t, "alice")

	// Touch the first session so the second becomes the most idle.
	f.now = f.now.Add(time.Minute)
	require.NoError(t, f.store.TouchActivity(ctx, first.Session.ID))

	f.now = f.now.Add(time.Minute)
	f.login(t, "alice")

	kicked, err := f.store.FindByID(ctx, second.Session.ID)
	require.NoError(t, err)
	require.True(t, kicked.IsTerminated())
	require.Equal(t, "Kicked: session limit overflow (most idle)", *kicked.TerminatedReason)

	survivor, err := f.store.FindByID(ctx, first.Session.ID)
	require.NoError(t, err)
	require.False(t, survivor.IsTerminated())
}

func TestLoginRejectsUnknownOverflowStrategy(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t, fixtureOptions{
		overflowStrategy: "bogus",
		roleLimits:       map[string]int{"viewer": 1},
	})
	f.createUser(t, "alice", models.UserRoleViewer)

	f.login(t, "alice")

	_, err := f.manager.Login(ctx, LoginInput{Username: "alice", Password: testPassword})
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, apperrors.ErrInternalServer.Code, appErr.Code)
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t, fixtureOptions{})
	f.createUser(t, "alice", models.UserRoleViewer)

	result := f.login(t, "alice")
	claims, err := f.manager.tokens.ParseAccessToken(ctx, result.Tokens.AccessToken)
	require.NoError(t, err)

	require.NoError(t, f.manager.Logout(ctx, claims))

	// Seat returned, session terminated, tokens revoked.
	require.Equal(t, 0, f.checkedOut(t))
	stored, err := f.store.FindByID(ctx, result.Session.ID)
	require.NoError(t, err)
	require.True(t, stored.IsTerminated())
	require.Equal(t, "User logout", *stored.TerminatedReason)

	_, err = f.manager.tokens.ParseAccessToken(ctx, result.Tokens.AccessToken)
	require.Error(t, err)
	_, err = f.manager.Refresh(ctx, result.Tokens.RefreshToken)
	require.Error(t, err)

	// A second logout of the same session still reports success.
	require.NoError(t, f.manager.Logout(ctx, claims))
}

type failingReleaseAllocator struct {
	seat.Allocator
}

func (a *failingReleaseAllocator) Release(ctx context.Context, userKey string) error {
	return apperrors.ErrInternalServer.WithMessage("induced failure")
}

func TestLogoutSucceedsWhenSeatReleaseFails(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t, fixtureOptions{
		seats: func(real *seat.MemoryAllocator) seat.Allocator {
			return &failingReleaseAllocator{Allocator: real}
		},
	})
	f.createUser(t, "alice", models.UserRoleViewer)

	result := f.login(t, "alice")
	claims, err := f.manager.tokens.ParseAccessToken(ctx, result.Tokens.AccessToken)
	require.NoError(t, err)

	// A broken seat backend must not block the user from logging out.
	require.NoError(t, f.manager.Logout(ctx, claims))

	stored, err := f.store.FindByID(ctx, result.Session.ID)
	require.NoError(t, err)
	require.True(t, stored.IsTerminated())
	require.Equal(t, "User logout", *stored.TerminatedReason)

	_, err = f.manager.tokens.ParseAccessToken(ctx, result.Tokens.AccessToken)
	require.Error(t, err)

	// Reconciliation, not logout, is responsible for the leaked seat.
	require.Equal(t, 1, f.checkedOut(t))
}

func TestRefreshRotatesTokens(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t, fixtureOptions{})
	f.createUser(t, "alice", models.UserRoleViewer)

	result := f.login(t, "alice")

	pair, err := f.manager.Refresh(ctx, result.Tokens.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, result.Tokens.RefreshToken, pair.RefreshToken)

	// The consumed refresh token cannot be replayed.
	_, err = f.manager.Refresh(ctx, result.Tokens.RefreshToken)
	require.Error(t, err)

	// The rotated token works and stays bound to the same session.
	claims, err := f.manager.tokens.ParseRefreshToken(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, result.Session.ID, claims.SessionID)

	stored, err := f.store.FindByID(ctx, result.Session.ID)
	require.NoError(t, err)
	require.Equal(t, crypto.HashToken(pair.RefreshToken), stored.RefreshTokenHash)
}

func TestRefreshRejectsTerminatedSession(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t, fixtureOptions{})
	admin := f.createUser(t, "root", models.UserRoleAdmin)
	f.createUser(t, "alice", models.UserRoleViewer)

	result := f.login(t, "alice")
	require.NoError(t, f.manager.AdminTerminate(ctx, result.Session.ID, admin.ID, "policy violation"))

	_, err := f.manager.Refresh(ctx, result.Tokens.RefreshToken)
	require.Error(t, err)
}

func TestAdminTerminate(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t, fixtureOptions{})
	admin := f.createUser(t, "root", models.UserRoleAdmin)
	f.createUser(t, "alice", models.UserRoleViewer)

	result := f.login(t, "alice")
	require.NoError(t, f.manager.AdminTerminate(ctx, result.Session.ID, admin.ID, "policy violation"))

	stored, err := f.store.FindByID(ctx, result.Session.ID)
	require.NoError(t, err)
	require.True(t, stored.IsTerminated())
	require.Equal(t, "Admin termination: policy violation", *stored.TerminatedReason)
	require.Equal(t, admin.ID, *stored.TerminatedBy)
	require.Equal(t, 0, f.checkedOut(t))

	// Terminating again conflicts.
	err = f.manager.AdminTerminate(ctx, result.Session.ID, admin.ID, "again")
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, apperrors.ErrConflict.Code, appErr.Code)

	// Unknown sessions are a 404.
	err = f.manager.AdminTerminate(ctx, "missing", admin.ID, "x")
	require.True(t, apperrors.IsNotFound(err))
}

func TestTerminateAllUserSessions(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t, fixtureOptions{})
	admin := f.createUser(t, "root", models.UserRoleAdmin)
	alice := f.createUser(t, "alice", models.UserRoleViewer)
	f.createUser(t, "bob", models.UserRoleViewer)

	f.login(t, "alice")
	f.login(t, "alice")
	bobResult := f.login(t, "bob")

	terminated, err := f.manager.TerminateAllUserSessions(ctx, alice.ID, admin.ID, "maintenance")
	require.NoError(t, err)
	require.Equal(t, 2, terminated)

	// Bob's session is untouched.
	stored, err := f.store.FindByID(ctx, bobResult.Session.ID)
	require.NoError(t, err)
	require.False(t, stored.IsTerminated())
}

func TestTerminateAllNonAdmin(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t, fixtureOptions{})
	admin := f.createUser(t, "root", models.UserRoleAdmin)
	f.createUser(t, "alice", models.UserRoleViewer)

	adminResult := f.login(t, "root")
	f.login(t, "alice")

	terminated, err := f.manager.TerminateAllNonAdmin(ctx, admin.ID, "maintenance window")
	require.NoError(t, err)
	require.Equal(t, 1, terminated)

	stored, err := f.store.FindByID(ctx, adminResult.Session.ID)
	require.NoError(t, err)
	require.False(t, stored.IsTerminated())
}

func TestValidateSession(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t, fixtureOptions{})
	f.createUser(t, "alice", models.UserRoleViewer)

	result := f.login(t, "alice")

	session, err := f.manager.ValidateSession(ctx, result.Session.ID)
	require.NoError(t, err)
	require.Equal(t, result.Session.ID, session.ID)

	_, err = f.manager.ValidateSession(ctx, "missing")
	require.Error(t, err)
}

func TestValidateSessionTerminatesIdle(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t, fixtureOptions{})
	f.createUser(t, "alice", models.UserRoleViewer)

	result := f.login(t, "alice")

	// Past the idle timeout validation terminates the session on the spot.
	f.now = f.now.Add(31 * time.Minute)
	_, err := f.manager.ValidateSession(ctx, result.Session.ID)
	require.Error(t, err)

	stored, err := f.store.FindByID(ctx, result.Session.ID)
	require.NoError(t, err)
	require.True(t, stored.IsTerminated())
	require.Equal(t, "Idle timeout", *stored.TerminatedReason)
	require.Nil(t, stored.TerminatedBy)
	require.Equal(t, 0, f.checkedOut(t))
}

func TestCleanupExpired(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t, fixtureOptions{})
	f.createUser(t, "alice", models.UserRoleViewer)
	f.createUser(t, "bob", models.UserRoleViewer)

	idle := f.login(t, "alice")
	f.now = f.now.Add(31 * time.Minute)
	fresh := f.login(t, "bob")

	cleaned, err := f.manager.CleanupExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, cleaned)

	stored, err := f.store.FindByID(ctx, idle.Session.ID)
	require.NoError(t, err)
	require.True(t, stored.IsTerminated())
	require.Equal(t, "Idle timeout", *stored.TerminatedReason)

	kept, err := f.store.FindByID(ctx, fresh.Session.ID)
	require.NoError(t, err)
	require.False(t, kept.IsTerminated())
}
