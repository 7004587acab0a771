package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/charlesng35/filehub/internal/cache"
	apperrors "github.com/charlesng35/filehub/pkg/errors"
)

// TokenType discriminates access tokens from refresh tokens so one can
// never be presented in place of the other.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

const (
	jwtBlocklistPrefix     = "jwt:blocklist:"
	sessionBlocklistPrefix = "session:blocklist:"
)

// Claims carries the identity bound into every token. SessionID ties the
// token to a durable session record; revoking the session invalidates all
// tokens minted for it.
type Claims struct {
	UserID    string    `json:"uid"`
	SessionID string    `json:"sid"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	TokenType TokenType `json:"token_type"`
	jwt.RegisteredClaims
}

// RemainingTTL reports how long the token is still valid at the given
// instant. Expired tokens report zero.
func (c *Claims) RemainingTTL(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	remaining := c.ExpiresAt.Time.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// TokenPair is the result of a successful mint: a short-lived access token
// and a longer-lived refresh token, both bound to the same session.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// JWTConfig configures token minting and validation.
type JWTConfig struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Clock supplies the current time; defaults to time.Now. Tests inject
	// a fixed clock here.
	Clock func() time.Time
}

// JWTService mints and validates HMAC-signed token pairs and tracks
// revocations through a cache-backed blocklist.
type JWTService struct {
	cfg       JWTConfig
	blocklist cache.Store
}

// NewJWTService validates the configuration and builds the service. The
// blocklist store may be nil, in which case revocation checks are skipped.
func NewJWTService(cfg JWTConfig, blocklist cache.Store) (*JWTService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt: signing secret is required")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "filehub"
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &JWTService{cfg: cfg, blocklist: blocklist}, nil
}

// GenerateTokenPair mints an access and refresh token bound to the given
// session. Each token carries its own unique jti so they can be revoked
// independently.
func (s *JWTService) GenerateTokenPair(userID, sessionID, username, role string) (TokenPair, error) {
	now := s.cfg.Clock()

	accessExpiry := now.Add(s.cfg.AccessTTL)
	access, err := s.sign(userID, sessionID, username, role, TokenTypeAccess, now, accessExpiry)
	if err != nil {
		return TokenPair{}, fmt.Errorf("jwt: sign access token: %w", err)
	}

	refreshExpiry := now.Add(s.cfg.RefreshTTL)
	refresh, err := s.sign(userID, sessionID, username, role, TokenTypeRefresh, now, refreshExpiry)
	if err != nil {
		return TokenPair{}, fmt.Errorf("jwt: sign refresh token: %w", err)
	}

	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExpiry,
		RefreshExpiresAt: refreshExpiry,
	}, nil
}

func (s *JWTService) sign(userID, sessionID, username, role string, tokenType TokenType, now, expiry time.Time) (string, error) {
	claims := Claims{
		UserID:    userID,
		SessionID: sessionID,
		Username:  username,
		Role:      role,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.cfg.Issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.Secret))
}

// ParseAccessToken verifies an access token, rejecting revoked tokens and
// tokens whose session has been blocklisted.
func (s *JWTService) ParseAccessToken(ctx context.Context, token string) (*Claims, error) {
	return s.parse(ctx, token, TokenTypeAccess)
}

// ParseRefreshToken verifies a refresh token the same way.
func (s *JWTService) ParseRefreshToken(ctx context.Context, token string) (*Claims, error) {
	return s.parse(ctx, token, TokenTypeRefresh)
}

func (s *JWTService) parse(ctx context.Context, token string, want TokenType) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("jwt: unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
	},
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithLeeway(5*time.Second),
		jwt.WithTimeFunc(s.cfg.Clock),
	)
	if err != nil || !parsed.Valid {
		return nil, apperrors.ErrUnauthorized.WithMessage("Invalid or expired token")
	}
	if claims.TokenType != want {
		return nil, apperrors.ErrUnauthorized.WithMessage("Invalid token type")
	}

	blocked, err := s.isTokenBlocked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, apperrors.ErrUnauthorized.WithMessage("Token has been revoked")
	}
	blocked, err = s.IsSessionBlocked(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, apperrors.ErrUnauthorized.WithMessage("Session has been terminated")
	}
	return claims, nil
}

// BlocklistToken revokes a single token by jti for the given duration.
// Callers pass the token's remaining lifetime so the entry expires on its
// own once the token would no longer verify anyway.
func (s *JWTService) BlocklistToken(ctx context.Context, jti string, ttl time.Duration) error {
	if s.blocklist == nil || jti == "" || ttl <= 0 {
		return nil
	}
	return s.blocklist.Set(ctx, jwtBlocklistPrefix+jti, []byte("1"), ttl)
}

// BlocklistSession revokes every token bound to a session. The entry lives
// as long as the longest-lived token that could reference the session.
func (s *JWTService) BlocklistSession(ctx context.Context, sessionID string) error {
	if s.blocklist == nil || sessionID == "" {
		return nil
	}
	return s.blocklist.Set(ctx, sessionBlocklistPrefix+sessionID, []byte("1"), s.cfg.RefreshTTL)
}

// IsSessionBlocked reports whether a session has been revoked.
func (s *JWTService) IsSessionBlocked(ctx context.Context, sessionID string) (bool, error) {
	if s.blocklist == nil || sessionID == "" {
		return false, nil
	}
	_, found, err := s.blocklist.Get(ctx, sessionBlocklistPrefix+sessionID)
	if err != nil {
		return false, fmt.Errorf("jwt: blocklist lookup: %w", err)
	}
	return found, nil
}

func (s *JWTService) isTokenBlocked(ctx context.Context, jti string) (bool, error) {
	if s.blocklist == nil || jti == "" {
		return false, nil
	}
	_, found, err := s.blocklist.Get(ctx, jwtBlocklistPrefix+jti)
	if err != nil {
		return false, fmt.Errorf("jwt: blocklist lookup: %w", err)
	}
	return found, nil
}
