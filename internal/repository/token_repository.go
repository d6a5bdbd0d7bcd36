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

// TokenRepository provides database access for refresh tokens.
type TokenRepository struct {
	db *sqlx.DB
}

// NewTokenRepository creates a new instance of TokenRepository.
func NewTokenRepository(db *sqlx.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

const tokenColumns = `id, session_id, user_id, chain_id, token_hash, fingerprint, expires_at, created_at, consumed_at, revoked, revoked_at`

// Create persists a refresh token entry.
func (r *TokenRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}

	const query = `INSERT INTO refresh_tokens (id, session_id, user_id, chain_id, token_hash, fingerprint, expires_at, created_at, consumed_at, revoked, revoked_at) VALUES (:id, :session_id, :user_id, :chain_id, :token_hash, :fingerprint, :expires_at, :created_at, :consumed_at, :revoked, :revoked_at)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// FindByHash returns a refresh token by its stored hash.
func (r *TokenRepository) FindByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM refresh_tokens WHERE token_hash = $1 LIMIT 1`
	var rt models.RefreshToken
	if err := r.db.GetContext(ctx, &rt, query, tokenHash); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return &rt, nil
}

// Consume marks a token consumed only if it has not been consumed or revoked
// yet. The condition is the arbiter for racing refresh calls: exactly one
// caller observes true.
func (r *TokenRepository) Consume(ctx context.Context, id string, consumedAt time.Time) (bool, error) {
	const query = `UPDATE refresh_tokens SET consumed_at = $2 WHERE id = $1 AND consumed_at IS NULL AND revoked = FALSE`
	res, err := r.db.ExecContext(ctx, query, id, consumedAt)
	if err != nil {
		return false, fmt.Errorf("consume refresh token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume refresh token rows: %w", err)
	}
	return affected == 1, nil
}

// RevokeChain revokes every token in a rotation chain.
func (r *TokenRepository) RevokeChain(ctx context.Context, chainID string, revokedAt time.Time) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE chain_id = $1 AND revoked = FALSE`
	if _, err := r.db.ExecContext(ctx, query, chainID, revokedAt); err != nil {
		return fmt.Errorf("revoke token chain: %w", err)
	}
	return nil
}

// RevokeBySession revokes every token belonging to a session.
func (r *TokenRepository) RevokeBySession(ctx context.Context, sessionID string, revokedAt time.Time) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE session_id = $1 AND revoked = FALSE`
	if _, err := r.db.ExecContext(ctx, query, sessionID, revokedAt); err != nil {
		return fmt.Errorf("revoke session tokens: %w", err)
	}
	return nil
}
