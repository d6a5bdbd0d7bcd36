package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/secure-auth-api/internal/models"
	"github.com/noah-isme/secure-auth-api/pkg/config"
	appErrors "github.com/noah-isme/secure-auth-api/pkg/errors"
)

func newTestDevices(repo deviceRepository) *DeviceService {
	return NewDeviceService(repo, nil, config.DeviceConfig{
		FingerprintSecret: "fp_secret",
		MaxPerUser:        3,
	}, zap.NewNop())
}

func TestFingerprintStableAcrossMinorChurn(t *testing.T) {
	svc := newTestDevices(newMemDeviceRepo())

	base := models.DeviceSignals{
		UserAgent:      "Mozilla/5.0 (X11; Linux x86_64) Chrome/124.0",
		IP:             "203.0.113.10",
		ClientDeviceID: "cid-1",
	}
	sameNetwork := base
	sameNetwork.IP = "203.0.113.99"
	minorVersionBump := base
	minorVersionBump.UserAgent = "Mozilla/5.0 (X11; Linux x86_64) Chrome/125.0"

	assert.Equal(t, svc.Fingerprint(base), svc.Fingerprint(sameNetwork))
	assert.Equal(t, svc.Fingerprint(base), svc.Fingerprint(minorVersionBump))

	otherDevice := base
	otherDevice.ClientDeviceID = "cid-2"
	assert.NotEqual(t, svc.Fingerprint(base), svc.Fingerprint(otherDevice))

	otherNetwork := base
	otherNetwork.IP = "198.51.100.1"
	assert.NotEqual(t, svc.Fingerprint(base), svc.Fingerprint(otherNetwork))
}

func TestFingerprintLength(t *testing.T) {
	svc := newTestDevices(newMemDeviceRepo())
	assert.Len(t, svc.Fingerprint(models.DeviceSignals{IP: "203.0.113.10"}), 32)
}

func TestObserveCreatesUnknownDevice(t *testing.T) {
	svc := newTestDevices(newMemDeviceRepo())

	signals := models.DeviceSignals{UserAgent: "Firefox/126", IP: "203.0.113.10"}
	device, err := svc.Observe(context.Background(), "u1", signals)
	require.NoError(t, err)
	assert.Equal(t, models.DeviceUnknown, device.TrustState)

	// A second observation resolves to the same record.
	again, err := svc.Observe(context.Background(), "u1", signals)
	require.NoError(t, err)
	assert.Equal(t, device.ID, again.ID)
}

func TestObserveEnforcesDeviceLimit(t *testing.T) {
	svc := newTestDevices(newMemDeviceRepo())

	for i := 0; i < 3; i++ {
		signals := models.DeviceSignals{IP: "203.0.113.10", ClientDeviceID: fmt.Sprintf("cid-%d", i)}
		_, err := svc.Observe(context.Background(), "u1", signals)
		require.NoError(t, err)
	}

	_, err := svc.Observe(context.Background(), "u1", models.DeviceSignals{IP: "203.0.113.10", ClientDeviceID: "cid-overflow"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestDeviceTrustLifecycle(t *testing.T) {
	svc := newTestDevices(newMemDeviceRepo())
	signals := models.DeviceSignals{UserAgent: "Chrome/124", IP: "203.0.113.10"}

	device, err := svc.Observe(context.Background(), "u1", signals)
	require.NoError(t, err)
	fingerprint := device.Fingerprint

	// Unknown devices cannot be trusted outright.
	_, err = svc.Trust(context.Background(), "u1", fingerprint)
	require.Error(t, err)

	require.NoError(t, svc.Register(context.Background(), device))
	assert.Equal(t, models.DeviceRegistered, device.TrustState)

	trusted, err := svc.Trust(context.Background(), "u1", fingerprint)
	require.NoError(t, err)
	assert.Equal(t, models.DeviceTrusted, trusted.TrustState)

	blocked, err := svc.Block(context.Background(), "u1", fingerprint)
	require.NoError(t, err)
	assert.Equal(t, models.DeviceBlocked, blocked.TrustState)

	// A blocked device cannot be promoted.
	_, err = svc.Trust(context.Background(), "u1", fingerprint)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	// Unblocking lands on REGISTERED, never straight back to TRUSTED.
	unblocked, err := svc.Unblock(context.Background(), "u1", fingerprint)
	require.NoError(t, err)
	assert.Equal(t, models.DeviceRegistered, unblocked.TrustState)
}

func TestUnblockRequiresBlockedState(t *testing.T) {
	svc := newTestDevices(newMemDeviceRepo())

	device, err := svc.Observe(context.Background(), "u1", models.DeviceSignals{IP: "203.0.113.10"})
	require.NoError(t, err)

	_, err = svc.Unblock(context.Background(), "u1", device.Fingerprint)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestTrustSettingsDefaultAndUpdate(t *testing.T) {
	svc := newTestDevices(newMemDeviceRepo())

	settings, err := svc.GetTrustSettings(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, settings.NotifyOnNewDevice)
	assert.False(t, settings.RequireMFAAlways)

	requireMFA := true
	updated, err := svc.UpdateTrustSettings(context.Background(), "u1", models.UpdateTrustSettingsRequest{RequireMFAAlways: &requireMFA})
	require.NoError(t, err)
	assert.True(t, updated.RequireMFAAlways)
	assert.True(t, updated.NotifyOnNewDevice)

	reloaded, err := svc.GetTrustSettings(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, reloaded.RequireMFAAlways)
}

func TestTrustUnknownFingerprintNotFound(t *testing.T) {
	svc := newTestDevices(newMemDeviceRepo())

	_, err := svc.Trust(context.Background(), "u1", "deadbeef")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
