package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/secure-auth-api/internal/models"
)

// ChallengeRepository provides database access for single-use challenges
// (MFA codes, password reset tokens, email verification tokens).
type ChallengeRepository struct {
	db *sqlx.DB
}

// NewChallengeRepository creates a new instance of ChallengeRepository.
func NewChallengeRepository(db *sqlx.DB) *ChallengeRepository {
	return &ChallengeRepository{db: db}
}

const challengeColumns = `token, user_id, purpose, code_hash, device_id, attempts, expires_at, created_at, consumed_at`

// Create persists a challenge.
func (r *ChallengeRepository) Create(ctx context.Context, challenge *models.Challenge) error {
	if challenge.CreatedAt.IsZero() {
		challenge.CreatedAt = time.Now().UTC()
	}

	const query = `INSERT INTO challenges (token, user_id, purpose, code_hash, device_id, attempts, expires_at, created_at, consumed_at) VALUES (:token, :user_id, :purpose, :code_hash, :device_id, :attempts, :expires_at, :created_at, :consumed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, challenge); err != nil {
		return fmt.Errorf("create challenge: %w", err)
	}
	return nil
}

// FindByToken returns a challenge by its token for a given purpose.
func (r *ChallengeRepository) FindByToken(ctx context.Context, token string, purpose models.ChallengePurpose) (*models.Challenge, error) {
	query := `SELECT ` + challengeColumns + ` FROM challenges WHERE token = $1 AND purpose = $2 LIMIT 1`
	var challenge models.Challenge
	if err := r.db.GetContext(ctx, &challenge, query, token, purpose); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find challenge: %w", err)
	}
	return &challenge, nil
}

// IncrementAttempts bumps the attempt counter and returns the new value.
func (r *ChallengeRepository) IncrementAttempts(ctx context.Context, token string) (int, error) {
	const query = `UPDATE challenges SET attempts = attempts + 1 WHERE token = $1 RETURNING attempts`
	var attempts int
	if err := r.db.GetContext(ctx, &attempts, query, token); err != nil {
		return 0, fmt.Errorf("increment challenge attempts: %w", err)
	}
	return attempts, nil
}

// Consume marks a challenge consumed only if it is still unconsumed. Exactly
// one concurrent verifier observes true.
func (r *ChallengeRepository) Consume(ctx context.Context, token string, consumedAt time.Time) (bool, error) {
	const query = `UPDATE challenges SET consumed_at = $2 WHERE token = $1 AND consumed_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, token, consumedAt)
	if err != nil {
		return false, fmt.Errorf("consume challenge: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume challenge rows: %w", err)
	}
	return affected == 1, nil
}

// InvalidateByUser consumes all outstanding challenges of a purpose for a
// user, so a fresh issue supersedes older ones.
func (r *ChallengeRepository) InvalidateByUser(ctx context.Context, userID string, purpose models.ChallengePurpose, ts time.Time) error {
	const query = `UPDATE challenges SET consumed_at = $3 WHERE user_id = $1 AND purpose = $2 AND consumed_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, userID, purpose, ts); err != nil {
		return fmt.Errorf("invalidate challenges: %w", err)
	}
	return nil
}

// DeleteExpired removes challenges past their TTL; used by cleanup routines.
func (r *ChallengeRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	const query = `DELETE FROM challenges WHERE expires_at < $1`
	res, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired challenges: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired challenges rows: %w", err)
	}
	return deleted, nil
}
