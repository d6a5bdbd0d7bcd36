package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/secure-auth-api/internal/models"
	"github.com/noah-isme/secure-auth-api/pkg/config"
	appErrors "github.com/noah-isme/secure-auth-api/pkg/errors"
)

type statsUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	CountByStatus(ctx context.Context) (total, active, locked int, err error)
}

type statsSessionRepository interface {
	CountActive(ctx context.Context) (int, error)
}

type statsDeviceRepository interface {
	CountByState(ctx context.Context) (map[models.DeviceTrustState]int, error)
}

type statsCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

const statsCacheKey = "internal:stats"

// InternalService backs the service-to-service surface: identity lookups for
// sibling services and aggregate statistics.
type InternalService struct {
	users    statsUserRepository
	sessions statsSessionRepository
	devices  statsDeviceRepository
	audit    *AuditService
	tokens   *TokenService
	metrics  *MetricsService
	cache    statsCache
	cfg      config.InternalAPIConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewInternalService constructs an InternalService.
func NewInternalService(
	users statsUserRepository,
	sessions statsSessionRepository,
	devices statsDeviceRepository,
	audit *AuditService,
	tokens *TokenService,
	metrics *MetricsService,
	cache statsCache,
	cfg config.InternalAPIConfig,
	logger *zap.Logger,
) *InternalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.StatsTTL <= 0 {
		cfg.StatsTTL = time.Minute
	}
	return &InternalService{
		users:    users,
		sessions: sessions,
		devices:  devices,
		audit:    audit,
		tokens:   tokens,
		metrics:  metrics,
		cache:    cache,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// GetUser returns the profile of an identity for sibling services.
func (s *InternalService) GetUser(ctx context.Context, userID string) (*models.UserInfo, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up user")
	}
	info := user.Info()
	return &info, nil
}

// ValidateUser answers the cheap liveness question sibling services ask
// before acting on a user id. Unknown ids are a negative answer, not an
// error.
func (s *InternalService) ValidateUser(ctx context.Context, userID string) (*models.UserValidation, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.UserValidation{UserID: userID}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up user")
	}
	return &models.UserValidation{
		UserID:        user.ID,
		Exists:        true,
		Active:        user.Active,
		Locked:        user.Locked,
		EmailVerified: user.EmailVerified,
	}, nil
}

// HighRiskEvents returns the recent high-risk feed for sibling services.
func (s *InternalService) HighRiskEvents(ctx context.Context, window time.Duration) ([]models.SecurityEvent, error) {
	return s.audit.RecentHighRisk(ctx, window)
}

// ValidateToken verifies an access token on behalf of a sibling service and
// returns its claims.
func (s *InternalService) ValidateToken(ctx context.Context, tokenString string) (*models.JWTClaims, error) {
	return s.tokens.ValidateAccess(ctx, tokenString)
}

// Stats aggregates persisted counts, cached briefly so sibling dashboards do
// not hammer the database.
func (s *InternalService) Stats(ctx context.Context) (*models.SystemStats, error) {
	if s.cache != nil {
		var cached models.SystemStats
		if err := s.cache.Get(ctx, statsCacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	total, active, locked, err := s.users.CountByStatus(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count users")
	}
	activeSessions, err := s.sessions.CountActive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count sessions")
	}
	deviceCounts, err := s.devices.CountByState(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count devices")
	}
	eventCounts, err := s.audit.CountSince(ctx, 24*time.Hour)
	if err != nil {
		return nil, err
	}

	devices := make(map[string]int, len(deviceCounts))
	for state, count := range deviceCounts {
		devices[string(state)] = count
	}

	stats := &models.SystemStats{
		Users: models.UserStats{
			Total:  total,
			Active: active,
			Locked: locked,
		},
		ActiveSessions: activeSessions,
		Devices:        devices,
		Events:         eventCounts,
		GeneratedAt:    s.now(),
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, statsCacheKey, stats, s.cfg.StatsTTL); err != nil {
			s.logger.Warn("failed to cache stats", zap.Error(err))
		}
	}
	return stats, nil
}

// Metrics returns the process-level metrics snapshot.
func (s *InternalService) Metrics() models.MetricsSnapshot {
	return s.metrics.Snapshot()
}
