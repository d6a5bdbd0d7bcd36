package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/secure-auth-api/internal/models"
	"github.com/noah-isme/secure-auth-api/pkg/config"
	appErrors "github.com/noah-isme/secure-auth-api/pkg/errors"
)

type sessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	FindByID(ctx context.Context, id string) (*models.Session, error)
	ListActiveByUser(ctx context.Context, userID string) ([]models.Session, error)
	Revoke(ctx context.Context, id string, revokedAt time.Time) error
	RevokeAllByUser(ctx context.Context, userID, exceptID string, revokedAt time.Time) error
}

type sessionTokenRepository interface {
	RevokeBySession(ctx context.Context, sessionID string, revokedAt time.Time) error
}

// SessionService tracks authenticated sessions and cascades revocation to
// the refresh tokens bound to them.
type SessionService struct {
	sessions sessionRepository
	tokens   sessionTokenRepository
	cfg      config.SessionConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewSessionService constructs a SessionService.
func NewSessionService(sessions sessionRepository, tokens sessionTokenRepository, cfg config.SessionConfig, logger *zap.Logger) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.AbsoluteLifetime <= 0 {
		cfg.AbsoluteLifetime = 30 * 24 * time.Hour
	}
	return &SessionService{
		sessions: sessions,
		tokens:   tokens,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create opens a new session for a user on a device. Each session starts its
// own refresh rotation chain.
func (s *SessionService) Create(ctx context.Context, userID, deviceID, ip, userAgent string) (*models.Session, error) {
	now := s.now()
	session := &models.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		DeviceID:  deviceID,
		ChainID:   uuid.NewString(),
		IPAddress: ip,
		UserAgent: userAgent,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.AbsoluteLifetime),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
	}
	return session, nil
}

// Get returns a session by id.
func (s *SessionService) Get(ctx context.Context, id string) (*models.Session, error) {
	session, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}

// ListActive returns a user's live sessions, newest first.
func (s *SessionService) ListActive(ctx context.Context, userID string) ([]models.Session, error) {
	sessions, err := s.sessions.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	return sessions, nil
}

// Revoke ends a session and invalidates every refresh token bound to it.
// Revoking an already-revoked session is a no-op.
func (s *SessionService) Revoke(ctx context.Context, id string) error {
	now := s.now()
	if err := s.sessions.Revoke(ctx, id, now); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke session")
	}
	if err := s.tokens.RevokeBySession(ctx, id, now); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke session tokens")
	}
	return nil
}

// RevokeOthers ends every session of the user except the one given. Used
// after a password change on an authenticated session.
func (s *SessionService) RevokeOthers(ctx context.Context, userID, keepSessionID string) error {
	sessions, err := s.sessions.ListActiveByUser(ctx, userID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}

	now := s.now()
	if err := s.sessions.RevokeAllByUser(ctx, userID, keepSessionID, now); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke sessions")
	}
	for _, session := range sessions {
		if session.ID == keepSessionID {
			continue
		}
		if err := s.tokens.RevokeBySession(ctx, session.ID, now); err != nil {
			s.logger.Error("failed to revoke tokens for session",
				zap.String("session_id", session.ID), zap.Error(err))
		}
	}
	return nil
}

// RevokeAll ends every session of the user, tokens included. Used on
// password reset and account compromise.
func (s *SessionService) RevokeAll(ctx context.Context, userID string) error {
	return s.RevokeOthers(ctx, userID, "")
}
