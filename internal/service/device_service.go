package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/secure-auth-api/internal/models"
	"github.com/noah-isme/secure-auth-api/pkg/config"
	appErrors "github.com/noah-isme/secure-auth-api/pkg/errors"
)

type deviceRepository interface {
	FindByUserAndFingerprint(ctx context.Context, userID, fingerprint string) (*models.Device, error)
	FindByID(ctx context.Context, id string) (*models.Device, error)
	Create(ctx context.Context, device *models.Device) error
	UpdateTrustState(ctx context.Context, id string, from, to models.DeviceTrustState) (bool, error)
	TouchLastSeen(ctx context.Context, id string, ts time.Time) error
	ListByUser(ctx context.Context, userID string) ([]models.Device, error)
	ListByUserAndState(ctx context.Context, userID string, state models.DeviceTrustState) ([]models.Device, error)
	CountByUser(ctx context.Context, userID string) (int, error)
	GetTrustSettings(ctx context.Context, userID string) (*models.DeviceTrustSettings, error)
	UpsertTrustSettings(ctx context.Context, settings *models.DeviceTrustSettings) error
}

type deviceCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) error
}

// DeviceService fingerprints requesting devices and drives their trust
// lifecycle.
type DeviceService struct {
	repo   deviceRepository
	cache  deviceCache
	cfg    config.DeviceConfig
	logger *zap.Logger
}

// NewDeviceService constructs a DeviceService.
func NewDeviceService(repo deviceRepository, cache deviceCache, cfg config.DeviceConfig, logger *zap.Logger) *DeviceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeviceService{repo: repo, cache: cache, cfg: cfg, logger: logger}
}

// Fingerprint derives a stable identifier from low-entropy request signals:
// the user-agent class, the network prefix and an optional client-supplied
// device id. Stable across requests from one physical device, keyed so it is
// not reproducible from request content alone.
func (s *DeviceService) Fingerprint(signals models.DeviceSignals) string {
	material := strings.Join([]string{
		userAgentClass(signals.UserAgent),
		networkPrefix(signals.IP),
		signals.ClientDeviceID,
	}, "|")

	mac := hmac.New(sha256.New, []byte(s.cfg.FingerprintSecret))
	_, _ = mac.Write([]byte(material))
	return hex.EncodeToString(mac.Sum(nil))[:32]
}

// Observe looks up or creates the device record for a user/fingerprint pair
// and refreshes its last-seen timestamp.
func (s *DeviceService) Observe(ctx context.Context, userID string, signals models.DeviceSignals) (*models.Device, error) {
	fingerprint := s.Fingerprint(signals)

	device, err := s.repo.FindByUserAndFingerprint(ctx, userID, fingerprint)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load device")
		}

		count, err := s.repo.CountByUser(ctx, userID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count devices")
		}
		if s.cfg.MaxPerUser > 0 && count >= s.cfg.MaxPerUser {
			return nil, appErrors.Clone(appErrors.ErrConflict, "device limit reached")
		}

		device = &models.Device{
			UserID:      userID,
			Fingerprint: fingerprint,
			Name:        userAgentClass(signals.UserAgent),
			TrustState:  models.DeviceUnknown,
			UserAgent:   signals.UserAgent,
		}
		if err := s.repo.Create(ctx, device); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create device")
		}
		s.invalidateCache(ctx, userID)
		return device, nil
	}

	if err := s.repo.TouchLastSeen(ctx, device.ID, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to touch device last seen", zap.Error(err))
	}
	return device, nil
}

// Register transitions an UNKNOWN device to REGISTERED after the first
// successful credential+MFA verification.
func (s *DeviceService) Register(ctx context.Context, device *models.Device) error {
	if device.TrustState != models.DeviceUnknown {
		return nil
	}
	return s.transition(ctx, device, models.DeviceRegistered)
}

// Trust promotes a REGISTERED device to TRUSTED. Explicit user action only.
func (s *DeviceService) Trust(ctx context.Context, userID, fingerprint string) (*models.Device, error) {
	device, err := s.getOwned(ctx, userID, fingerprint)
	if err != nil {
		return nil, err
	}
	if device.TrustState == models.DeviceTrusted {
		return device, nil
	}
	if err := s.transition(ctx, device, models.DeviceTrusted); err != nil {
		return nil, err
	}
	return device, nil
}

// RevokeTrust demotes a TRUSTED device back to REGISTERED.
func (s *DeviceService) RevokeTrust(ctx context.Context, userID, fingerprint string) (*models.Device, error) {
	device, err := s.getOwned(ctx, userID, fingerprint)
	if err != nil {
		return nil, err
	}
	if device.TrustState == models.DeviceRegistered {
		return device, nil
	}
	if err := s.transition(ctx, device, models.DeviceRegistered); err != nil {
		return nil, err
	}
	return device, nil
}

// Block moves a device to BLOCKED from any state.
func (s *DeviceService) Block(ctx context.Context, userID, fingerprint string) (*models.Device, error) {
	device, err := s.getOwned(ctx, userID, fingerprint)
	if err != nil {
		return nil, err
	}
	if device.TrustState == models.DeviceBlocked {
		return device, nil
	}
	if err := s.transition(ctx, device, models.DeviceBlocked); err != nil {
		return nil, err
	}
	return device, nil
}

// Unblock returns a BLOCKED device to REGISTERED. It never restores TRUSTED
// directly; trust requires a fresh explicit action.
func (s *DeviceService) Unblock(ctx context.Context, userID, fingerprint string) (*models.Device, error) {
	device, err := s.getOwned(ctx, userID, fingerprint)
	if err != nil {
		return nil, err
	}
	if device.TrustState != models.DeviceBlocked {
		return nil, appErrors.Clone(appErrors.ErrConflict, "device is not blocked")
	}
	if err := s.transition(ctx, device, models.DeviceRegistered); err != nil {
		return nil, err
	}
	return device, nil
}

// List returns all devices for a user, cached briefly.
func (s *DeviceService) List(ctx context.Context, userID string) ([]models.Device, error) {
	cacheKey := deviceListCacheKey(userID)
	if s.cache != nil {
		var cached []models.Device
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return cached, nil
		}
	}

	devices, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list devices")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, devices, 30*time.Second); err != nil {
			s.logger.Warn("failed to cache device list", zap.Error(err))
		}
	}
	return devices, nil
}

// ListTrusted returns the TRUSTED devices for a user.
func (s *DeviceService) ListTrusted(ctx context.Context, userID string) ([]models.Device, error) {
	devices, err := s.repo.ListByUserAndState(ctx, userID, models.DeviceTrusted)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list trusted devices")
	}
	return devices, nil
}

// Get returns a device owned by the user.
func (s *DeviceService) Get(ctx context.Context, userID, fingerprint string) (*models.Device, error) {
	return s.getOwned(ctx, userID, fingerprint)
}

// GetByID returns a device by identifier.
func (s *DeviceService) GetByID(ctx context.Context, id string) (*models.Device, error) {
	device, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "device not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load device")
	}
	return device, nil
}

// GetTrustSettings returns per-user trust preferences, defaulting when unset.
func (s *DeviceService) GetTrustSettings(ctx context.Context, userID string) (*models.DeviceTrustSettings, error) {
	settings, err := s.repo.GetTrustSettings(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.DeviceTrustSettings{UserID: userID, NotifyOnNewDevice: true}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load trust settings")
	}
	return settings, nil
}

// UpdateTrustSettings applies a partial settings update.
func (s *DeviceService) UpdateTrustSettings(ctx context.Context, userID string, req models.UpdateTrustSettingsRequest) (*models.DeviceTrustSettings, error) {
	settings, err := s.GetTrustSettings(ctx, userID)
	if err != nil {
		return nil, err
	}
	if req.RequireMFAAlways != nil {
		settings.RequireMFAAlways = *req.RequireMFAAlways
	}
	if req.NotifyOnNewDevice != nil {
		settings.NotifyOnNewDevice = *req.NotifyOnNewDevice
	}
	if err := s.repo.UpsertTrustSettings(ctx, settings); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save trust settings")
	}
	return settings, nil
}

func (s *DeviceService) getOwned(ctx context.Context, userID, fingerprint string) (*models.Device, error) {
	device, err := s.repo.FindByUserAndFingerprint(ctx, userID, fingerprint)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "device not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load device")
	}
	return device, nil
}

func (s *DeviceService) transition(ctx context.Context, device *models.Device, to models.DeviceTrustState) error {
	if !device.CanTransition(to) {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("cannot transition device from %s to %s", device.TrustState, to))
	}
	ok, err := s.repo.UpdateTrustState(ctx, device.ID, device.TrustState, to)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update device state")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrConflict, "device state changed concurrently")
	}
	device.TrustState = to
	s.invalidateCache(ctx, device.UserID)
	return nil
}

func (s *DeviceService) invalidateCache(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, deviceListCacheKey(userID)); err != nil {
		s.logger.Warn("failed to invalidate device cache", zap.Error(err))
	}
}

func deviceListCacheKey(userID string) string {
	return "devices:user:" + userID
}

// userAgentClass buckets a raw user-agent into a coarse family so minor
// version churn does not rotate fingerprints.
func userAgentClass(userAgent string) string {
	ua := strings.ToLower(userAgent)
	var family string
	switch {
	case strings.Contains(ua, "edg"):
		family = "edge"
	case strings.Contains(ua, "firefox"):
		family = "firefox"
	case strings.Contains(ua, "chrome"):
		family = "chrome"
	case strings.Contains(ua, "safari"):
		family = "safari"
	case ua == "":
		family = "unknown"
	default:
		family = "other"
	}

	switch {
	case strings.Contains(ua, "android"), strings.Contains(ua, "iphone"), strings.Contains(ua, "mobile"):
		return family + "-mobile"
	default:
		return family + "-desktop"
	}
}

// networkPrefix reduces an address to its routing prefix (/24 for IPv4, /48
// for IPv6) so DHCP churn inside one network keeps the fingerprint stable.
func networkPrefix(addr string) string {
	ip := net.ParseIP(addr)
	if ip == nil {
		return "net-unknown"
	}
	if v4 := ip.To4(); v4 != nil {
		return v4.Mask(net.CIDRMask(24, 32)).String()
	}
	return ip.Mask(net.CIDRMask(48, 128)).String()
}
