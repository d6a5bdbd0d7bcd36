package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/secure-auth-api/internal/models"
)

// SessionRepository provides database access for sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new instance of SessionRepository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, user_id, device_id, chain_id, ip_address, user_agent, issued_at, expires_at, revoked, revoked_at`

// Create inserts a new session.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.IssuedAt.IsZero() {
		session.IssuedAt = time.Now().UTC()
	}

	const query = `INSERT INTO sessions (id, user_id, device_id, chain_id, ip_address, user_agent, issued_at, expires_at, revoked, revoked_at) VALUES (:id, :user_id, :device_id, :chain_id, :ip_address, :user_agent, :issued_at, :expires_at, :revoked, :revoked_at)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// FindByID returns a session by identifier.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1 LIMIT 1`
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &session, nil
}

// ListActiveByUser returns all non-revoked, unexpired sessions for a user.
func (r *SessionRepository) ListActiveByUser(ctx context.Context, userID string) ([]models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE user_id = $1 AND revoked = FALSE AND expires_at > $2 ORDER BY issued_at DESC`
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, userID, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	return sessions, nil
}

// Revoke marks a session revoked.
func (r *SessionRepository) Revoke(ctx context.Context, id string, revokedAt time.Time) error {
	const query = `UPDATE sessions SET revoked = TRUE, revoked_at = $2 WHERE id = $1 AND revoked = FALSE`
	if _, err := r.db.ExecContext(ctx, query, id, revokedAt); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// RevokeAllByUser revokes every active session for a user except the one given.
func (r *SessionRepository) RevokeAllByUser(ctx context.Context, userID, exceptID string, revokedAt time.Time) error {
	const query = `UPDATE sessions SET revoked = TRUE, revoked_at = $3 WHERE user_id = $1 AND id <> $2 AND revoked = FALSE`
	if _, err := r.db.ExecContext(ctx, query, userID, exceptID, revokedAt); err != nil {
		return fmt.Errorf("revoke user sessions: %w", err)
	}
	return nil
}

// CountActive returns the number of live sessions.
func (r *SessionRepository) CountActive(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM sessions WHERE revoked = FALSE AND expires_at > $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, time.Now().UTC()); err != nil {
		return 0, fmt.Errorf("count active sessions: %w", err)
	}
	return count, nil
}
