package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/secure-auth-api/internal/models"
)

// AuditRepository provides append-only access to security events. There are
// deliberately no update or delete operations.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates a new instance of AuditRepository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

const eventColumns = `id, user_id, action, outcome, high_risk, metadata, ip_address, user_agent, created_at`

// Append stores a security event.
func (r *AuditRepository) Append(ctx context.Context, event *models.SecurityEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	const query = `INSERT INTO security_events (id, user_id, action, outcome, high_risk, metadata, ip_address, user_agent, created_at) VALUES (:id, :user_id, :action, :outcome, :high_risk, :metadata, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("append security event: %w", err)
	}
	return nil
}

// RecentHighRisk returns high-risk events recorded since the given time.
func (r *AuditRepository) RecentHighRisk(ctx context.Context, since time.Time) ([]models.SecurityEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM security_events WHERE high_risk = TRUE AND created_at >= $1 ORDER BY created_at DESC`
	var events []models.SecurityEvent
	if err := r.db.SelectContext(ctx, &events, query, since); err != nil {
		return nil, fmt.Errorf("recent high risk events: %w", err)
	}
	return events, nil
}

// CountSince returns event counts grouped by action and outcome since the
// given time.
func (r *AuditRepository) CountSince(ctx context.Context, since time.Time) (map[string]int, error) {
	const query = `SELECT action || ':' || outcome AS bucket, COUNT(*) FROM security_events WHERE created_at >= $1 GROUP BY action, outcome`
	rows, err := r.db.QueryxContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var bucket string
		var count int
		if err := rows.Scan(&bucket, &count); err != nil {
			return nil, fmt.Errorf("scan event count: %w", err)
		}
		counts[bucket] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event counts: %w", err)
	}
	return counts, nil
}
