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

// DeviceRepository provides database access for device trust records.
type DeviceRepository struct {
	db *sqlx.DB
}

// NewDeviceRepository creates a new instance of DeviceRepository.
func NewDeviceRepository(db *sqlx.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

const deviceColumns = `id, user_id, fingerprint, name, trust_state, user_agent, last_seen_at, created_at, updated_at`

// FindByUserAndFingerprint returns the device for a user/fingerprint pair.
func (r *DeviceRepository) FindByUserAndFingerprint(ctx context.Context, userID, fingerprint string) (*models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE user_id = $1 AND fingerprint = $2 LIMIT 1`
	var device models.Device
	if err := r.db.GetContext(ctx, &device, query, userID, fingerprint); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find device: %w", err)
	}
	return &device, nil
}

// FindByID returns a device by identifier.
func (r *DeviceRepository) FindByID(ctx context.Context, id string) (*models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = $1 LIMIT 1`
	var device models.Device
	if err := r.db.GetContext(ctx, &device, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find device by id: %w", err)
	}
	return &device, nil
}

// Create inserts a new device record.
func (r *DeviceRepository) Create(ctx context.Context, device *models.Device) error {
	if device.ID == "" {
		device.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now
	if device.LastSeenAt.IsZero() {
		device.LastSeenAt = now
	}

	const query = `INSERT INTO devices (id, user_id, fingerprint, name, trust_state, user_agent, last_seen_at, created_at, updated_at) VALUES (:id, :user_id, :fingerprint, :name, :trust_state, :user_agent, :last_seen_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, device); err != nil {
		return fmt.Errorf("create device: %w", err)
	}
	return nil
}

// UpdateTrustState transitions a device conditionally on its current state so
// concurrent transitions cannot interleave.
func (r *DeviceRepository) UpdateTrustState(ctx context.Context, id string, from, to models.DeviceTrustState) (bool, error) {
	const query = `UPDATE devices SET trust_state = $3, updated_at = $4 WHERE id = $1 AND trust_state = $2`
	res, err := r.db.ExecContext(ctx, query, id, from, to, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("update trust state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update trust state rows: %w", err)
	}
	return affected == 1, nil
}

// TouchLastSeen refreshes the last_seen_at timestamp.
func (r *DeviceRepository) TouchLastSeen(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE devices SET last_seen_at = $2, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts); err != nil {
		return fmt.Errorf("touch last seen: %w", err)
	}
	return nil
}

// ListByUser returns all devices observed for a user.
func (r *DeviceRepository) ListByUser(ctx context.Context, userID string) ([]models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE user_id = $1 ORDER BY last_seen_at DESC`
	var devices []models.Device
	if err := r.db.SelectContext(ctx, &devices, query, userID); err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return devices, nil
}

// ListByUserAndState returns devices in a given trust state for a user.
func (r *DeviceRepository) ListByUserAndState(ctx context.Context, userID string, state models.DeviceTrustState) ([]models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE user_id = $1 AND trust_state = $2 ORDER BY last_seen_at DESC`
	var devices []models.Device
	if err := r.db.SelectContext(ctx, &devices, query, userID, state); err != nil {
		return nil, fmt.Errorf("list devices by state: %w", err)
	}
	return devices, nil
}

// CountByUser returns the number of devices registered to a user.
func (r *DeviceRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	const query = `SELECT COUNT(*) FROM devices WHERE user_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, userID); err != nil {
		return 0, fmt.Errorf("count devices: %w", err)
	}
	return count, nil
}

// CountByState returns device counts grouped by trust state.
func (r *DeviceRepository) CountByState(ctx context.Context) (map[models.DeviceTrustState]int, error) {
	const query = `SELECT trust_state, COUNT(*) FROM devices GROUP BY trust_state`
	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("count devices by state: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.DeviceTrustState]int)
	for rows.Next() {
		var state models.DeviceTrustState
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, fmt.Errorf("scan device count: %w", err)
		}
		counts[state] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate device counts: %w", err)
	}
	return counts, nil
}

// GetTrustSettings returns per-user trust preferences.
func (r *DeviceRepository) GetTrustSettings(ctx context.Context, userID string) (*models.DeviceTrustSettings, error) {
	const query = `SELECT user_id, require_mfa_always, notify_on_new_device, updated_at FROM device_trust_settings WHERE user_id = $1 LIMIT 1`
	var settings models.DeviceTrustSettings
	if err := r.db.GetContext(ctx, &settings, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get trust settings: %w", err)
	}
	return &settings, nil
}

// UpsertTrustSettings creates or updates per-user trust preferences.
func (r *DeviceRepository) UpsertTrustSettings(ctx context.Context, settings *models.DeviceTrustSettings) error {
	settings.UpdatedAt = time.Now().UTC()
	const query = `INSERT INTO device_trust_settings (user_id, require_mfa_always, notify_on_new_device, updated_at) VALUES (:user_id, :require_mfa_always, :notify_on_new_device, :updated_at) ON CONFLICT (user_id) DO UPDATE SET require_mfa_always = :require_mfa_always, notify_on_new_device = :notify_on_new_device, updated_at = :updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, settings); err != nil {
		return fmt.Errorf("upsert trust settings: %w", err)
	}
	return nil
}
