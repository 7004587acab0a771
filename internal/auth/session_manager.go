package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/charlesng35/filehub/internal/auth/seat"
	"github.com/charlesng35/filehub/internal/cache"
	"github.com/charlesng35/filehub/internal/models"
	"github.com/charlesng35/filehub/pkg/crypto"
	apperrors "github.com/charlesng35/filehub/pkg/errors"
	"github.com/charlesng35/filehub/pkg/logger"
	"github.com/charlesng35/filehub/pkg/metrics"
)

// Overflow strategies applied when a user is at their session limit.
const (
	OverflowDeny       = "deny"
	OverflowKickOldest = "kick_oldest"
	OverflowKickIdle   = "kick_idle"
)

const (
	userCacheTTL    = 15 * time.Minute
	sessionCacheTTL = 5 * time.Minute
)

// PasswordVerifier checks a candidate password against a stored hash.
type PasswordVerifier interface {
	Verify(hash, password string) bool
}

type bcryptVerifier struct{}

func (bcryptVerifier) Verify(hash, password string) bool {
	return crypto.VerifyPassword(hash, password)
}

// SessionEvents receives lifecycle notifications. Implementations must not
// block; the manager calls them inline.
type SessionEvents interface {
	SessionCreated(userID, sessionID, ipAddress string)
	SessionTerminated(userID, sessionID, reason string)
}

// LoginInput carries the credentials and client metadata for a login.
type LoginInput struct {
	Username   string
	Password   string
	IPAddress  string
	UserAgent  string
	DeviceInfo datatypes.JSON
}

// LoginResult is returned on successful login.
type LoginResult struct {
	Tokens  TokenPair       `json:"tokens"`
	Session *models.Session `json:"session"`
	User    *models.User    `json:"user"`
}

// SessionManagerConfig tunes lockout, idle and overflow behaviour.
type SessionManagerConfig struct {
	MaxFailedAttempts int
	LockoutDuration   time.Duration
	IdleTimeout       time.Duration
	OverflowStrategy  string

	// Clock supplies the current time; defaults to time.Now.
	Clock func() time.Time
}

// SessionManagerDeps lists the collaborators the manager orchestrates.
// Cache, Events and Verifier are optional.
type SessionManagerDeps struct {
	Users    UserRepository
	Sessions SessionStore
	Limiter  SessionLimiter
	Seats    seat.Allocator
	Tokens   *JWTService
	Cache    cache.Store
	Events   SessionEvents
	Verifier PasswordVerifier
}

// SessionManager owns the session lifecycle: login with seat admission,
// logout, token refresh, administrative termination and validation.
type SessionManager struct {
	users    UserRepository
	sessions SessionStore
	limiter  SessionLimiter
	seats    seat.Allocator
	tokens   *JWTService
	cache    cache.Store
	events   SessionEvents
	verifier PasswordVerifier
	cfg      SessionManagerConfig
	log      *zap.Logger
}

// NewSessionManager wires the manager. Required collaborators missing from
// deps cause an error rather than a late nil dereference.
func NewSessionManager(deps SessionManagerDeps, cfg SessionManagerConfig) (*SessionManager, error) {
	if deps.Users == nil || deps.Sessions == nil || deps.Seats == nil || deps.Tokens == nil {
		return nil, fmt.Errorf("session manager: users, sessions, seats and tokens are required")
	}
	if deps.Verifier == nil {
		deps.Verifier = bcryptVerifier{}
	}
	if cfg.MaxFailedAttempts <= 0 {
		cfg.MaxFailedAttempts = 5
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = 15 * time.Minute
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	if cfg.OverflowStrategy == "" {
		cfg.OverflowStrategy = OverflowDeny
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &SessionManager{
		users:    deps.Users,
		sessions: deps.Sessions,
		limiter:  deps.Limiter,
		seats:    deps.Seats,
		tokens:   deps.Tokens,
		cache:    deps.Cache,
		events:   deps.Events,
		verifier: deps.Verifier,
		cfg:      cfg,
		log:      logger.WithModule("session"),
	}, nil
}

// Login runs the full admission flow: credentials, lockout, session limit
// with overflow handling, seat allocation, then session creation with a
// token pair bound to the durable session id. The allocated seat is
// released if anything after admission fails.
func (m *SessionManager) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	user := m.cachedUserByName(ctx, input.Username)
	if user == nil {
		found, err := m.users.FindByUsername(ctx, input.Username)
		if err != nil {
			metrics.AuthAttempts.WithLabelValues("failure").Inc()
			if apperrors.IsNotFound(err) {
				return nil, apperrors.ErrInvalidCredentials
			}
			return nil, err
		}
		user = found
		m.cacheUser(ctx, user)
	}

	if err := m.checkUserStatus(user); err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, err
	}

	if !m.verifier.Verify(user.PasswordHash, input.Password) {
		if err := m.handleFailedLogin(ctx, user); err != nil {
			m.log.Error("failed login bookkeeping error", zap.Error(err))
		}
		m.invalidateUserCache(ctx, user)
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}

	if user.FailedLoginAttempts > 0 {
		if err := m.users.ResetLoginState(ctx, user.ID); err != nil {
			return nil, err
		}
		user.FailedLoginAttempts = 0
		m.cacheUser(ctx, user)
	}

	limit, err := m.resolveLimit(ctx, user)
	if err != nil {
		return nil, err
	}

	var kickedID *string
	if limit != nil {
		active, err := m.sessions.CountActiveByUser(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		if active >= int64(*limit) {
			kickedID, err = m.handleOverflow(ctx, user, *limit)
			if err != nil {
				return nil, err
			}
		}
	}

	allocation, err := m.seats.TryAllocate(ctx, user.ID, string(user.Role))
	if err != nil {
		m.log.Error("seat allocation error", zap.String("user_id", user.ID), zap.Error(err))
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}
	if !allocation.Granted {
		m.log.Warn("seat allocation denied",
			zap.String("user_id", user.ID),
			zap.String("reason", allocation.Reason))
		return nil, apperrors.ErrSeatsExhausted.WithMessage("Cannot login: " + allocation.Reason)
	}

	result, err := m.createSessionAndTokens(ctx, user, input, kickedID)
	if err != nil {
		m.log.Error("failed to create session, releasing seat",
			zap.String("user_id", user.ID), zap.Error(err))
		if relErr := m.seats.Release(ctx, user.ID); relErr != nil {
			m.log.Error("seat rollback failed", zap.String("user_id", user.ID), zap.Error(relErr))
		}
		return nil, err
	}

	if err := m.users.UpdateLastLogin(ctx, user.ID, m.cfg.Clock()); err != nil {
		m.log.Warn("failed to record last login", zap.String("user_id", user.ID), zap.Error(err))
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	metrics.ActiveSessions.Inc()
	if m.events != nil {
		m.events.SessionCreated(user.ID, result.Session.ID, input.IPAddress)
	}
	m.log.Info("login successful",
		zap.String("user_id", user.ID),
		zap.String("session_id", result.Session.ID))
	return result, nil
}

// Logout revokes the presented token, blocklists the session, releases the
// seat and terminates the session record. It always succeeds from the
// caller's point of view; partial failures are logged and absorbed.
func (m *SessionManager) Logout(ctx context.Context, claims *Claims) error {
	now := m.cfg.Clock()
	m.log.Info("processing logout",
		zap.String("user_id", claims.UserID),
		zap.String("session_id", claims.SessionID))

	if err := m.tokens.BlocklistToken(ctx, claims.ID, claims.RemainingTTL(now)); err != nil {
		m.log.Error("failed to blocklist token during logout", zap.Error(err))
	}
	if err := m.tokens.BlocklistSession(ctx, claims.SessionID); err != nil {
		m.log.Error("failed to blocklist session during logout", zap.Error(err))
	}
	if err := m.seats.Release(ctx, claims.UserID); err != nil {
		m.log.Error("failed to release seat during logout",
			zap.String("user_id", claims.UserID), zap.Error(err))
	}

	changed, err := m.sessions.TerminateSession(ctx, claims.SessionID, &claims.UserID, "User logout")
	if err != nil {
		m.log.Error("failed to terminate session during logout", zap.Error(err))
	} else if changed {
		metrics.ActiveSessions.Dec()
		metrics.SessionTerminations.WithLabelValues("logout").Inc()
	}

	m.invalidateSessionCache(ctx, claims.SessionID)
	if m.events != nil {
		m.events.SessionTerminated(claims.UserID, claims.SessionID, "User logout")
	}
	return nil
}

// Refresh rotates a refresh token: the presented token is consumed and a
// new pair bound to the same session is minted.
func (m *SessionManager) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := m.tokens.ParseRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	session, err := m.sessions.FindByID(ctx, claims.SessionID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.ErrUnauthorized.WithMessage("Session not found")
		}
		return nil, err
	}
	if session.IsTerminated() {
		return nil, apperrors.ErrUnauthorized.WithMessage("Session has been terminated")
	}
	now := m.cfg.Clock()
	if !session.ExpiresAt.After(now) {
		return nil, apperrors.ErrUnauthorized.WithMessage("Session has expired")
	}

	// Re-fetch the user: role or status may have changed since login.
	user := m.cachedUserByID(ctx, claims.UserID)
	if user == nil {
		found, err := m.users.FindByID(ctx, claims.UserID)
		if err != nil {
			if apperrors.IsNotFound(err) {
				return nil, apperrors.ErrUnauthorized.WithMessage("User not found")
			}
			return nil, err
		}
		user = found
		m.cacheUser(ctx, user)
	}
	if err := m.checkUserStatus(user); err != nil {
		return nil, err
	}

	if err := m.tokens.BlocklistToken(ctx, claims.ID, claims.RemainingTTL(now)); err != nil {
		return nil, err
	}

	pair, err := m.tokens.GenerateTokenPair(user.ID, session.ID, user.Username, string(user.Role))
	if err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}
	if err := m.sessions.UpdateRefreshTokenHash(ctx, session.ID, crypto.HashToken(pair.RefreshToken)); err != nil {
		return nil, err
	}
	if err := m.sessions.TouchActivity(ctx, session.ID); err != nil {
		return nil, err
	}

	m.invalidateSessionCache(ctx, session.ID)
	m.log.Info("token refreshed",
		zap.String("user_id", user.ID),
		zap.String("session_id", session.ID))
	return &pair, nil
}

// AdminTerminate forcibly ends a session on behalf of an administrator.
func (m *SessionManager) AdminTerminate(ctx context.Context, sessionID, adminID, reason string) error {
	session, err := m.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.IsTerminated() {
		return apperrors.ErrConflict.WithMessage("Session is already terminated")
	}

	m.log.Info("admin terminating session",
		zap.String("session_id", sessionID),
		zap.String("admin_id", adminID),
		zap.String("user_id", session.UserID),
		zap.String("reason", reason))

	if err := m.tokens.BlocklistSession(ctx, sessionID); err != nil {
		return err
	}
	if err := m.seats.Release(ctx, session.UserID); err != nil {
		m.log.Error("failed to release seat during admin termination", zap.Error(err))
	}

	changed, err := m.sessions.TerminateSession(ctx, sessionID, &adminID, "Admin termination: "+reason)
	if err != nil {
		return err
	}
	if changed {
		metrics.ActiveSessions.Dec()
		metrics.SessionTerminations.WithLabelValues("admin").Inc()
	}

	m.invalidateSessionCache(ctx, sessionID)
	if m.events != nil {
		m.events.SessionTerminated(session.UserID, sessionID, reason)
	}
	return nil
}

// TerminateAllUserSessions ends every active session of one user and
// reports how many were terminated. Per-session failures are logged and
// skipped.
func (m *SessionManager) TerminateAllUserSessions(ctx context.Context, userID, adminID, reason string) (int, error) {
	sessions, err := m.sessions.FindActiveByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	terminated := 0
	for _, session := range sessions {
		if err := m.AdminTerminate(ctx, session.ID, adminID, reason); err != nil {
			m.log.Error("failed to terminate session",
				zap.String("session_id", session.ID), zap.Error(err))
			continue
		}
		terminated++
	}
	return terminated, nil
}

// TerminateAllNonAdmin ends every active session not held by an admin,
// typically ahead of maintenance windows.
func (m *SessionManager) TerminateAllNonAdmin(ctx context.Context, adminID, reason string) (int, error) {
	sessions, err := m.sessions.FindAllActive(ctx)
	if err != nil {
		return 0, err
	}
	terminated := 0
	for _, session := range sessions {
		if user, err := m.users.FindByID(ctx, session.UserID); err == nil && user.Role.IsAdmin() {
			continue
		}
		if err := m.AdminTerminate(ctx, session.ID, adminID, reason); err != nil {
			m.log.Error("failed to terminate non-admin session",
				zap.String("session_id", session.ID), zap.Error(err))
			continue
		}
		terminated++
	}
	return terminated, nil
}

// ValidateSession checks that a session is live. A session found to be past
// the idle timeout is terminated on the spot and its seat released.
func (m *SessionManager) ValidateSession(ctx context.Context, sessionID string) (*models.Session, error) {
	blocked, err := m.tokens.IsSessionBlocked(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, apperrors.ErrUnauthorized.WithMessage("Session has been blocked")
	}

	session := m.cachedSession(ctx, sessionID)
	if session == nil {
		found, err := m.sessions.FindByID(ctx, sessionID)
		if err != nil {
			if apperrors.IsNotFound(err) {
				return nil, apperrors.ErrUnauthorized.WithMessage("Session not found")
			}
			return nil, err
		}
		session = found
		m.cacheSession(ctx, session)
	}

	if session.IsTerminated() {
		return nil, apperrors.ErrUnauthorized.WithMessage("Session has been terminated")
	}
	now := m.cfg.Clock()
	if !session.ExpiresAt.After(now) {
		return nil, apperrors.ErrUnauthorized.WithMessage("Session has expired")
	}

	if session.IdleSince(now) > m.cfg.IdleTimeout {
		changed, err := m.sessions.TerminateSession(ctx, session.ID, nil, "Idle timeout")
		if err != nil {
			return nil, err
		}
		if err := m.seats.Release(ctx, session.UserID); err != nil {
			m.log.Error("failed to release seat for idle session", zap.Error(err))
		}
		if changed {
			metrics.ActiveSessions.Dec()
			metrics.SessionTerminations.WithLabelValues("idle").Inc()
		}
		m.invalidateSessionCache(ctx, session.ID)
		if m.events != nil {
			m.events.SessionTerminated(session.UserID, session.ID, "Idle timeout")
		}
		return nil, apperrors.ErrUnauthorized.WithMessage("Session expired due to inactivity")
	}

	return session, nil
}

// CleanupExpired sweeps sessions past their absolute expiry or idle cutoff,
// terminating them and returning their seats. It reports how many sessions
// were cleaned.
func (m *SessionManager) CleanupExpired(ctx context.Context) (int, error) {
	stale, err := m.sessions.FindExpiredOrIdle(ctx, m.cfg.IdleTimeout)
	if err != nil {
		return 0, err
	}

	now := m.cfg.Clock()
	cleaned := 0
	for _, session := range stale {
		reason := "Idle timeout"
		label := "idle"
		if !session.ExpiresAt.After(now) {
			reason = "Session expired"
			label = "expired"
		}

		if err := m.tokens.BlocklistSession(ctx, session.ID); err != nil {
			m.log.Error("failed to blocklist stale session", zap.Error(err))
		}
		if err := m.seats.Release(ctx, session.UserID); err != nil {
			m.log.Error("failed to release seat for stale session", zap.Error(err))
		}
		changed, err := m.sessions.TerminateSession(ctx, session.ID, nil, reason)
		if err != nil {
			m.log.Error("failed to terminate stale session",
				zap.String("session_id", session.ID), zap.Error(err))
			continue
		}
		if changed {
			metrics.ActiveSessions.Dec()
			metrics.SessionTerminations.WithLabelValues(label).Inc()
			if m.events != nil {
				m.events.SessionTerminated(session.UserID, session.ID, reason)
			}
			cleaned++
		}
		m.invalidateSessionCache(ctx, session.ID)
	}
	return cleaned, nil
}

// Touch records request activity against a session so it does not trip the
// idle timeout.
func (m *SessionManager) Touch(ctx context.Context, sessionID string) error {
	return m.sessions.TouchActivity(ctx, sessionID)
}

func (m *SessionManager) resolveLimit(ctx context.Context, user *models.User) (*int, error) {
	if m.limiter == nil {
		return nil, nil
	}
	return m.limiter.ResolveLimit(ctx, user.ID, user.Role)
}

// checkUserStatus enforces account state. An expired lock lets the login
// proceed; the status itself is corrected by the next administrative
// action, not here.
func (m *SessionManager) checkUserStatus(user *models.User) error {
	switch user.Status {
	case models.UserStatusInactive:
		return apperrors.ErrForbidden.WithMessage("Account is deactivated. Contact an administrator.")
	case models.UserStatusLocked:
		if user.LockedUntil == nil {
			return apperrors.ErrForbidden.WithMessage("Account is locked. Contact an administrator.")
		}
		if user.LockedUntil.After(m.cfg.Clock()) {
			return apperrors.ErrForbidden.WithMessage(fmt.Sprintf(
				"Account is locked until %s",
				user.LockedUntil.UTC().Format("2006-01-02 15:04:05 UTC")))
		}
	}
	return nil
}

func (m *SessionManager) handleFailedLogin(ctx context.Context, user *models.User) error {
	newCount := user.FailedLoginAttempts + 1
	if newCount >= m.cfg.MaxFailedAttempts {
		lockedUntil := m.cfg.Clock().Add(m.cfg.LockoutDuration)
		if err := m.users.LockAccount(ctx, user.ID, lockedUntil); err != nil {
			return err
		}
		m.log.Warn("account locked after failed login attempts",
			zap.String("user_id", user.ID),
			zap.String("username", user.Username),
			zap.Int("attempts", newCount),
			zap.Time("locked_until", lockedUntil))
		return nil
	}
	_, err := m.users.IncrementFailedAttempts(ctx, user.ID)
	return err
}

// handleOverflow resolves the at-limit condition according to the
// configured strategy and returns the id of any session it evicted.
func (m *SessionManager) handleOverflow(ctx context.Context, user *models.User, limit int) (*string, error) {
	switch m.cfg.OverflowStrategy {
	case OverflowDeny:
		return nil, apperrors.ErrConflict.WithMessage(fmt.Sprintf(
			"Maximum concurrent sessions (%d) reached. Please log out of another session first.", limit))

	case OverflowKickOldest:
		victim, err := m.sessions.FindOldestActiveByUser(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		if victim == nil {
			return nil, apperrors.ErrInternalServer.WithMessage("No session found to kick despite overflow")
		}
		m.log.Info("kicking oldest session due to overflow",
			zap.String("user_id", user.ID),
			zap.String("kicked_session", victim.ID))
		return m.kickSession(ctx, victim, "Kicked: session limit overflow (oldest)")

	case OverflowKickIdle:
		victim, err := m.sessions.FindMostIdleActiveByUser(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		if victim == nil {
			return nil, apperrors.ErrInternalServer.WithMessage("No session found to kick despite overflow")
		}
		m.log.Info("kicking most idle session due to overflow",
			zap.String("user_id", user.ID),
			zap.String("kicked_session", victim.ID),
			zap.Time("last_activity", victim.LastActivity))
		return m.kickSession(ctx, victim, "Kicked: session limit overflow (most idle)")

	default:
		return nil, apperrors.ErrInternalServer.WithMessage(
			"Unknown overflow strategy: " + m.cfg.OverflowStrategy)
	}
}

func (m *SessionManager) kickSession(ctx context.Context, victim *models.Session, reason string) (*string, error) {
	if err := m.tokens.BlocklistSession(ctx, victim.ID); err != nil {
		return nil, err
	}
	if err := m.seats.Release(ctx, victim.UserID); err != nil {
		m.log.Error("failed to release seat for kicked session", zap.Error(err))
	}
	changed, err := m.sessions.TerminateSession(ctx, victim.ID, nil, reason)
	if err != nil {
		return nil, err
	}
	if changed {
		metrics.ActiveSessions.Dec()
		metrics.SessionTerminations.WithLabelValues("overflow").Inc()
	}
	m.invalidateSessionCache(ctx, victim.ID)
	if m.events != nil {
		m.events.SessionTerminated(victim.UserID, victim.ID, reason)
	}
	id := victim.ID
	return &id, nil
}

// createSessionAndTokens persists the session and binds a token pair to its
// durable id. An initial pair is minted against a provisional id purely so
// the record is never stored without token hashes; the final pair replaces
// both hashes in the same flow.
func (m *SessionManager) createSessionAndTokens(ctx context.Context, user *models.User, input LoginInput, kickedID *string) (*LoginResult, error) {
	provisional, err := m.tokens.GenerateTokenPair(user.ID, uuid.NewString(), user.Username, string(user.Role))
	if err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}

	session, err := m.sessions.Create(ctx, CreateSessionInput{
		UserID:           user.ID,
		TokenHash:        crypto.HashToken(provisional.AccessToken),
		RefreshTokenHash: crypto.HashToken(provisional.RefreshToken),
		IPAddress:        input.IPAddress,
		UserAgent:        input.UserAgent,
		DeviceInfo:       input.DeviceInfo,
		OverflowKickedID: kickedID,
	})
	if err != nil {
		return nil, err
	}

	pair, err := m.tokens.GenerateTokenPair(user.ID, session.ID, user.Username, string(user.Role))
	if err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}

	tokenHash := crypto.HashToken(pair.AccessToken)
	refreshHash := crypto.HashToken(pair.RefreshToken)
	if err := m.sessions.UpdateTokenHashes(ctx, session.ID, tokenHash, refreshHash); err != nil {
		return nil, err
	}
	if err := m.sessions.MarkSeatAllocated(ctx, session.ID); err != nil {
		return nil, err
	}

	now := m.cfg.Clock()
	session.TokenHash = tokenHash
	session.RefreshTokenHash = refreshHash
	session.SeatAllocatedAt = &now

	return &LoginResult{Tokens: pair, Session: session, User: user}, nil
}

func (m *SessionManager) cacheUser(ctx context.Context, user *models.User) {
	if m.cache == nil {
		return
	}
	if payload, err := json.Marshal(user); err == nil {
		_ = m.cache.Set(ctx, "user:id:"+user.ID, payload, userCacheTTL)
		_ = m.cache.Set(ctx, "user:name:"+user.Username, payload, userCacheTTL)
	}
}

func (m *SessionManager) invalidateUserCache(ctx context.Context, user *models.User) {
	if m.cache == nil {
		return
	}
	_ = m.cache.Delete(ctx, "user:id:"+user.ID, "user:name:"+user.Username)
}

func (m *SessionManager) cachedUserByName(ctx context.Context, username string) *models.User {
	return m.cachedUser(ctx, "user:name:"+username)
}

func (m *SessionManager) cachedUserByID(ctx context.Context, id string) *models.User {
	return m.cachedUser(ctx, "user:id:"+id)
}

func (m *SessionManager) cachedUser(ctx context.Context, key string) *models.User {
	if m.cache == nil {
		return nil
	}
	payload, found, err := m.cache.Get(ctx, key)
	if err != nil || !found {
		return nil
	}
	var user models.User
	if err := json.Unmarshal(payload, &user); err != nil {
		return nil
	}
	return &user
}

func (m *SessionManager) cacheSession(ctx context.Context, session *models.Session) {
	if m.cache == nil {
		return
	}
	if payload, err := json.Marshal(session); err == nil {
		_ = m.cache.Set(ctx, "session:"+session.ID, payload, sessionCacheTTL)
	}
}

func (m *SessionManager) cachedSession(ctx context.Context, sessionID string) *models.Session {
	if m.cache == nil {
		return nil
	}
	payload, found, err := m.cache.Get(ctx, "session:"+sessionID)
	if err != nil || !found {
		return nil
	}
	var session models.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil
	}
	return &session
}

func (m *SessionManager) invalidateSessionCache(ctx context.Context, sessionID string) {
	if m.cache == nil {
		return
	}
	_ = m.cache.Delete(ctx, "session:"+sessionID)
}
