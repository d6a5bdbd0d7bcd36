package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/noah-isme/secure-auth-api/internal/models"
	"github.com/noah-isme/secure-auth-api/pkg/config"
	appErrors "github.com/noah-isme/secure-auth-api/pkg/errors"
)

// Replay of a consumed token inside this window is treated as the loser of a
// benign concurrent refresh; anything later is a compromise signal.
const reuseGraceWindow = 10 * time.Second

const chainLockShards = 32

type tokenRepository interface {
	Create(ctx context.Context, token *models.RefreshToken) error
	FindByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	Consume(ctx context.Context, id string, consumedAt time.Time) (bool, error)
	RevokeChain(ctx context.Context, chainID string, revokedAt time.Time) error
	RevokeBySession(ctx context.Context, sessionID string, revokedAt time.Time) error
}

type tokenSessionRepository interface {
	FindByID(ctx context.Context, id string) (*models.Session, error)
	Revoke(ctx context.Context, id string, revokedAt time.Time) error
}

type tokenUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type reuseListener interface {
	TokenReuseDetected(ctx context.Context, session *models.Session)
}

// TokenService issues and rotates access/refresh token pairs. Access tokens
// are signed JWTs; refresh tokens are opaque values stored only as SHA-256
// hashes and bound to a per-session rotation chain.
type TokenService struct {
	tokens   tokenRepository
	sessions tokenSessionRepository
	users    tokenUserRepository
	cfg      config.JWTConfig
	logger   *zap.Logger
	onReuse  reuseListener
	now      func() time.Time

	chainLocks [chainLockShards]sync.Mutex
}

// NewTokenService constructs a TokenService.
func NewTokenService(tokens tokenRepository, sessions tokenSessionRepository, users tokenUserRepository, cfg config.JWTConfig, logger *zap.Logger) *TokenService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Expiration <= 0 {
		cfg.Expiration = 15 * time.Minute
	}
	if cfg.RefreshExpiration <= 0 {
		cfg.RefreshExpiration = 7 * 24 * time.Hour
	}
	return &TokenService{
		tokens:   tokens,
		sessions: sessions,
		users:    users,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetReuseListener registers a callback fired when token reuse is detected.
func (s *TokenService) SetReuseListener(l reuseListener) {
	s.onReuse = l
}

// Issue creates an access/refresh pair bound to the session and its rotation
// chain.
func (s *TokenService) Issue(ctx context.Context, user *models.User, session *models.Session, fingerprint string) (*models.TokenPair, error) {
	access, err := s.generateAccessToken(user, session, fingerprint)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign access token")
	}

	refresh, err := generateOpaqueToken()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate refresh token")
	}

	now := s.now()
	record := &models.RefreshToken{
		SessionID:   session.ID,
		UserID:      user.ID,
		ChainID:     session.ChainID,
		TokenHash:   hashToken(refresh),
		Fingerprint: fingerprint,
		ExpiresAt:   s.refreshExpiry(now, session),
		CreatedAt:   now,
	}
	if err := s.tokens.Create(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist refresh token")
	}

	return &models.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.cfg.Expiration.Seconds()),
		IssuedAt:     now,
	}, nil
}

// Refresh rotates a refresh token, returning a new pair in the same chain.
// Calls for one chain are serialized; a raced call loses with a stale-token
// error, while replay of a token rotated out earlier revokes the session and
// its whole chain.
func (s *TokenService) Refresh(ctx context.Context, rawToken string) (*models.TokenPair, *models.Session, error) {
	stored, err := s.tokens.FindByHash(ctx, hashToken(rawToken))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrTokenInvalid, "")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load refresh token")
	}

	lock := s.chainLock(stored.ChainID)
	lock.Lock()
	defer lock.Unlock()

	now := s.now()

	session, err := s.sessions.FindByID(ctx, stored.SessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrTokenInvalid, "")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if !session.IsActive(now) {
		return nil, nil, appErrors.Clone(appErrors.ErrTokenInvalid, "")
	}

	if stored.Revoked || now.After(stored.ExpiresAt) {
		return nil, nil, appErrors.Clone(appErrors.ErrTokenInvalid, "")
	}

	if stored.ConsumedAt != nil {
		if now.Sub(*stored.ConsumedAt) <= reuseGraceWindow {
			return nil, nil, appErrors.Clone(appErrors.ErrTokenInvalid, "stale refresh token")
		}
		s.revokeOnReuse(ctx, session, now)
		return nil, nil, appErrors.Clone(appErrors.ErrTokenInvalid, "")
	}

	consumed, err := s.tokens.Consume(ctx, stored.ID, now)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to consume refresh token")
	}
	if !consumed {
		// Lost the conditional update despite the chain lock: another
		// instance rotated it. Stale, not compromise.
		return nil, nil, appErrors.Clone(appErrors.ErrTokenInvalid, "stale refresh token")
	}

	// Rebuild full claims from the owning user so role and fingerprint
	// survive rotation.
	user, err := s.users.FindByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrTokenInvalid, "")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	access, err := s.generateAccessToken(user, session, stored.Fingerprint)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign access token")
	}

	refresh, err := generateOpaqueToken()
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate refresh token")
	}

	record := &models.RefreshToken{
		SessionID:   session.ID,
		UserID:      stored.UserID,
		ChainID:     stored.ChainID,
		TokenHash:   hashToken(refresh),
		Fingerprint: stored.Fingerprint,
		ExpiresAt:   s.refreshExpiry(now, session),
		CreatedAt:   now,
	}
	if err := s.tokens.Create(ctx, record); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist refresh token")
	}

	return &models.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.cfg.Expiration.Seconds()),
		IssuedAt:     now,
	}, session, nil
}

// SessionIDForToken resolves the session a refresh token belongs to, without
// consuming it. Used on logout.
func (s *TokenService) SessionIDForToken(ctx context.Context, rawToken string) (string, error) {
	stored, err := s.tokens.FindByHash(ctx, hashToken(rawToken))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrTokenInvalid, "")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load refresh token")
	}
	return stored.SessionID, nil
}

// ValidateAccess parses an access token and lazily re-checks the owning
// session, so revocation and blocks take effect without push invalidation.
func (s *TokenService) ValidateAccess(ctx context.Context, tokenString string) (*models.JWTClaims, error) {
	claims, err := s.ParseClaims(tokenString)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.FindByID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrTokenInvalid, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if !session.IsActive(s.now()) {
		return nil, appErrors.Clone(appErrors.ErrTokenInvalid, "session revoked or expired")
	}
	return claims, nil
}

// ParseClaims verifies the signature and expiry of an access token without
// touching session state.
func (s *TokenService) ParseClaims(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrTokenInvalid.Code, appErrors.ErrTokenInvalid.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrTokenInvalid, "invalid token claims")
	}
	return claims, nil
}

func (s *TokenService) revokeOnReuse(ctx context.Context, session *models.Session, now time.Time) {
	s.logger.Warn("refresh token reuse detected, revoking session",
		zap.String("session_id", session.ID),
		zap.String("user_id", session.UserID),
	)
	if err := s.sessions.Revoke(ctx, session.ID, now); err != nil {
		s.logger.Error("failed to revoke session on reuse", zap.Error(err))
	}
	if err := s.tokens.RevokeChain(ctx, session.ChainID, now); err != nil {
		s.logger.Error("failed to revoke token chain on reuse", zap.Error(err))
	}
	if s.onReuse != nil {
		s.onReuse.TokenReuseDetected(ctx, session)
	}
}

func (s *TokenService) generateAccessToken(user *models.User, session *models.Session, fingerprint string) (string, error) {
	now := s.now()
	claims := &models.JWTClaims{
		UserID:      user.ID,
		Email:       user.Email,
		Role:        user.Role,
		SessionID:   session.ID,
		Fingerprint: fingerprint,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   user.ID,
			Audience:  s.cfg.Audience,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.Expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.Secret))
}

// refreshExpiry bounds the token TTL by the absolute session lifetime.
func (s *TokenService) refreshExpiry(now time.Time, session *models.Session) time.Time {
	expiry := now.Add(s.cfg.RefreshExpiration)
	if expiry.After(session.ExpiresAt) {
		return session.ExpiresAt
	}
	return expiry
}

func (s *TokenService) chainLock(chainID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(chainID))
	return &s.chainLocks[h.Sum32()%chainLockShards]
}

func generateOpaqueToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
