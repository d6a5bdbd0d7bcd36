package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/secure-auth-api/internal/models"
	appErrors "github.com/noah-isme/secure-auth-api/pkg/errors"
)

type auditRepository interface {
	Append(ctx context.Context, event *models.SecurityEvent) error
	RecentHighRisk(ctx context.Context, since time.Time) ([]models.SecurityEvent, error)
	CountSince(ctx context.Context, since time.Time) (map[string]int, error)
}

// Actions flagged high-risk regardless of the event's own flag.
var highRiskActions = map[string]bool{
	models.AuditActionTokenReuse:  true,
	models.AuditActionDeviceBlock: true,
	models.AuditActionAccountLock: true,
	models.AuditActionRateLimit:   true,
}

// AuditService appends security events. Audit failures are logged but never
// surfaced; recording must not break the authentication path.
type AuditService struct {
	repo   auditRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewAuditService constructs an AuditService.
func NewAuditService(repo auditRepository, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{repo: repo, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Record appends a security event. userID may be empty for anonymous
// attempts; metadata holds small structured detail.
func (s *AuditService) Record(ctx context.Context, userID, action, outcome, ip, userAgent string, metadata map[string]string) {
	event := &models.SecurityEvent{
		Action:    action,
		Outcome:   outcome,
		HighRisk:  highRiskActions[action],
		IPAddress: ip,
		UserAgent: userAgent,
		CreatedAt: s.now(),
	}
	if userID != "" {
		event.UserID = &userID
	}
	if len(metadata) > 0 {
		payload, err := json.Marshal(metadata)
		if err != nil {
			s.logger.Warn("failed to marshal audit metadata", zap.Error(err))
		} else {
			event.Metadata = payload
		}
	}

	if err := s.repo.Append(ctx, event); err != nil {
		s.logger.Error("failed to append security event",
			zap.String("action", action),
			zap.String("outcome", outcome),
			zap.Error(err),
		)
	}
}

// RecentHighRisk returns high-risk events from the trailing window.
func (s *AuditService) RecentHighRisk(ctx context.Context, window time.Duration) ([]models.SecurityEvent, error) {
	events, err := s.repo.RecentHighRisk(ctx, s.now().Add(-window))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load events")
	}
	return events, nil
}

// CountSince returns per action:outcome event counts from the trailing window.
func (s *AuditService) CountSince(ctx context.Context, window time.Duration) (map[string]int, error) {
	counts, err := s.repo.CountSince(ctx, s.now().Add(-window))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count events")
	}
	return counts, nil
}
