package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/secure-auth-api/internal/models"
	"github.com/noah-isme/secure-auth-api/pkg/config"
	appErrors "github.com/noah-isme/secure-auth-api/pkg/errors"
)

func newTestLimiter() (*RateLimitService, *time.Time) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := NewRateLimitService(config.RateLimitConfig{
		Window:      time.Minute,
		LoginMax:    5,
		BackoffBase: 30 * time.Second,
		BackoffCap:  time.Hour,
	}, zap.NewNop())
	svc.now = func() time.Time { return now }
	return svc, &now
}

func TestRateLimitAllowsUnderThreshold(t *testing.T) {
	svc, _ := newTestLimiter()

	for i := 0; i < 4; i++ {
		require.NoError(t, svc.Allow(models.RateScopeLoginIP, "10.0.0.1"))
		svc.RecordAttempt(models.RateScopeLoginIP, "10.0.0.1")
	}
	assert.NoError(t, svc.Allow(models.RateScopeLoginIP, "10.0.0.1"))
}

func TestRateLimitBlocksSixthAttemptInWindow(t *testing.T) {
	svc, _ := newTestLimiter()

	for i := 0; i < 5; i++ {
		svc.RecordAttempt(models.RateScopeLoginIP, "10.0.0.1")
	}

	err := svc.Allow(models.RateScopeLoginIP, "10.0.0.1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrRateLimited.Code, appErr.Code)
	assert.Greater(t, appErr.RetryAfter, 0)
}

func TestRateLimitKeysAreIndependent(t *testing.T) {
	svc, _ := newTestLimiter()

	for i := 0; i < 5; i++ {
		svc.RecordAttempt(models.RateScopeLoginIP, "10.0.0.1")
	}

	require.Error(t, svc.Allow(models.RateScopeLoginIP, "10.0.0.1"))
	assert.NoError(t, svc.Allow(models.RateScopeLoginIP, "10.0.0.2"))
	assert.NoError(t, svc.Allow(models.RateScopeLoginIdentity, "10.0.0.1"))
}

func TestRateLimitBackoffDoublesPerViolation(t *testing.T) {
	svc, now := newTestLimiter()

	for i := 0; i < 5; i++ {
		svc.RecordAttempt(models.RateScopeLoginIP, "10.0.0.1")
	}
	first := svc.RetryAfter(models.RateScopeLoginIP, "10.0.0.1")
	assert.Equal(t, 30, first)

	// Past the cooldown and the counting window, then trip again.
	*now = now.Add(2 * time.Minute)
	require.NoError(t, svc.Allow(models.RateScopeLoginIP, "10.0.0.1"))
	for i := 0; i < 5; i++ {
		svc.RecordAttempt(models.RateScopeLoginIP, "10.0.0.1")
	}
	second := svc.RetryAfter(models.RateScopeLoginIP, "10.0.0.1")
	assert.Equal(t, 60, second)
}

func TestRateLimitSuccessClearsViolationStreak(t *testing.T) {
	svc, now := newTestLimiter()

	for i := 0; i < 5; i++ {
		svc.RecordAttempt(models.RateScopeLoginIP, "10.0.0.1")
	}
	svc.RecordSuccess(models.RateScopeLoginIP, "10.0.0.1")

	// The next violation starts the backoff ladder from the base again.
	*now = now.Add(2 * time.Minute)
	for i := 0; i < 5; i++ {
		svc.RecordAttempt(models.RateScopeLoginIP, "10.0.0.1")
	}
	assert.Equal(t, 30, svc.RetryAfter(models.RateScopeLoginIP, "10.0.0.1"))
}

func TestRateLimitWindowExpiryResetsCount(t *testing.T) {
	svc, now := newTestLimiter()

	for i := 0; i < 4; i++ {
		svc.RecordAttempt(models.RateScopeLoginIP, "10.0.0.1")
	}
	*now = now.Add(61 * time.Second)

	require.NoError(t, svc.Allow(models.RateScopeLoginIP, "10.0.0.1"))
	svc.RecordAttempt(models.RateScopeLoginIP, "10.0.0.1")
	assert.NoError(t, svc.Allow(models.RateScopeLoginIP, "10.0.0.1"))
}

func TestRateLimitEmptyIdentifierPasses(t *testing.T) {
	svc, _ := newTestLimiter()
	assert.NoError(t, svc.Allow(models.RateScopeLoginIP, ""))
	svc.RecordAttempt(models.RateScopeLoginIP, "")
	assert.Equal(t, 0, svc.RetryAfter(models.RateScopeLoginIP, ""))
}
