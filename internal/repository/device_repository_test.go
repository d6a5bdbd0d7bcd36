package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/secure-auth-api/internal/models"
)

var deviceCols = []string{"id", "user_id", "fingerprint", "name", "trust_state", "user_agent", "last_seen_at", "created_at", "updated_at"}

func TestFindByUserAndFingerprint(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDeviceRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(deviceCols).
		AddRow("d1", "u1", "fp1", "chrome-desktop", string(models.DeviceRegistered), "Chrome/124", now, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, fingerprint, name, trust_state, user_agent, last_seen_at, created_at, updated_at FROM devices WHERE user_id = $1 AND fingerprint = $2 LIMIT 1")).
		WithArgs("u1", "fp1").
		WillReturnRows(rows)

	device, err := repo.FindByUserAndFingerprint(context.Background(), "u1", "fp1")
	require.NoError(t, err)
	assert.Equal(t, models.DeviceRegistered, device.TrustState)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByUserAndFingerprintNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDeviceRepository(db)

	mock.ExpectQuery("SELECT .+ FROM devices").
		WithArgs("u1", "missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByUserAndFingerprint(context.Background(), "u1", "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTrustStateConditional(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDeviceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE devices SET trust_state = $3, updated_at = $4 WHERE id = $1 AND trust_state = $2")).
		WithArgs("d1", models.DeviceRegistered, models.DeviceTrusted, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.UpdateTrustState(context.Background(), "d1", models.DeviceRegistered, models.DeviceTrusted)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTrustStateLosesRace(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDeviceRepository(db)

	mock.ExpectExec("UPDATE devices SET trust_state").
		WithArgs("d1", models.DeviceRegistered, models.DeviceTrusted, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.UpdateTrustState(context.Background(), "d1", models.DeviceRegistered, models.DeviceTrusted)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDevice(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDeviceRepository(db)

	mock.ExpectExec("INSERT INTO devices").WillReturnResult(sqlmock.NewResult(1, 1))

	device := &models.Device{UserID: "u1", Fingerprint: "fp1", Name: "chrome-desktop", TrustState: models.DeviceUnknown}
	require.NoError(t, repo.Create(context.Background(), device))
	assert.NotEmpty(t, device.ID)
	assert.False(t, device.LastSeenAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountByState(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDeviceRepository(db)

	rows := sqlmock.NewRows([]string{"trust_state", "count"}).
		AddRow(string(models.DeviceTrusted), 2).
		AddRow(string(models.DeviceBlocked), 1)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT trust_state, COUNT(*) FROM devices GROUP BY trust_state")).
		WillReturnRows(rows)

	counts, err := repo.CountByState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, counts[models.DeviceTrusted])
	assert.Equal(t, 1, counts[models.DeviceBlocked])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertTrustSettings(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDeviceRepository(db)

	mock.ExpectExec("INSERT INTO device_trust_settings").WillReturnResult(sqlmock.NewResult(0, 1))

	settings := &models.DeviceTrustSettings{UserID: "u1", RequireMFAAlways: true, NotifyOnNewDevice: true}
	require.NoError(t, repo.UpsertTrustSettings(context.Background(), settings))
	assert.False(t, settings.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}
