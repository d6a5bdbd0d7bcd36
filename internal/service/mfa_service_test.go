package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/secure-auth-api/internal/models"
	"github.com/noah-isme/secure-auth-api/pkg/config"
	appErrors "github.com/noah-isme/secure-auth-api/pkg/errors"
)

func newTestMFA(repo challengeRepository) *MFAService {
	return NewMFAService(repo, config.MFAConfig{
		ChallengeTTL: 5 * time.Minute,
		MaxAttempts:  3,
		CodeLength:   6,
		Secret:       "test_secret",
	}, zap.NewNop())
}

func TestMFAChallengeVerifySucceedsOnce(t *testing.T) {
	repo := newMemChallengeRepo()
	svc := newTestMFA(repo)

	token, code, err := svc.CreateChallenge(context.Background(), "u1", "d1")
	require.NoError(t, err)
	require.Len(t, code, 6)

	challenge, err := svc.VerifyChallenge(context.Background(), token, code)
	require.NoError(t, err)
	assert.Equal(t, "u1", challenge.UserID)
	assert.Equal(t, "d1", challenge.DeviceID)

	// Consumed challenges never verify again, even with the right code.
	_, err = svc.VerifyChallenge(context.Background(), token, code)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrMfaInvalid.Code, appErrors.FromError(err).Code)
}

func TestMFAChallengeWrongCodeExhaustsAttempts(t *testing.T) {
	repo := newMemChallengeRepo()
	svc := newTestMFA(repo)

	token, code, err := svc.CreateChallenge(context.Background(), "u1", "d1")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := svc.VerifyChallenge(context.Background(), token, "000000")
		require.Error(t, err)
	}

	// Attempts are spent; the correct code no longer helps.
	_, err = svc.VerifyChallenge(context.Background(), token, code)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrMfaInvalid.Code, appErrors.FromError(err).Code)
}

func TestMFAChallengeExpires(t *testing.T) {
	repo := newMemChallengeRepo()
	svc := newTestMFA(repo)

	token, code, err := svc.CreateChallenge(context.Background(), "u1", "d1")
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().UTC().Add(6 * time.Minute) }

	_, err = svc.VerifyChallenge(context.Background(), token, code)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrMfaInvalid.Code, appErrors.FromError(err).Code)
}

func TestMFANewChallengeInvalidatesPrevious(t *testing.T) {
	repo := newMemChallengeRepo()
	svc := newTestMFA(repo)

	oldToken, oldCode, err := svc.CreateChallenge(context.Background(), "u1", "d1")
	require.NoError(t, err)
	_, _, err = svc.CreateChallenge(context.Background(), "u1", "d1")
	require.NoError(t, err)

	_, err = svc.VerifyChallenge(context.Background(), oldToken, oldCode)
	require.Error(t, err)
}

func TestSingleUseTokenRoundTrip(t *testing.T) {
	repo := newMemChallengeRepo()
	svc := newTestMFA(repo)

	raw, err := svc.CreateToken(context.Background(), "u1", models.ChallengePasswordReset, 30*time.Minute)
	require.NoError(t, err)
	require.Contains(t, raw, ".")

	challenge, err := svc.ConsumeToken(context.Background(), raw, models.ChallengePasswordReset)
	require.NoError(t, err)
	assert.Equal(t, "u1", challenge.UserID)

	// Single use.
	_, err = svc.ConsumeToken(context.Background(), raw, models.ChallengePasswordReset)
	require.Error(t, err)
}

func TestSingleUseTokenPurposeMismatch(t *testing.T) {
	repo := newMemChallengeRepo()
	svc := newTestMFA(repo)

	raw, err := svc.CreateToken(context.Background(), "u1", models.ChallengePasswordReset, 30*time.Minute)
	require.NoError(t, err)

	_, err = svc.ConsumeToken(context.Background(), raw, models.ChallengeEmailVerify)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrTokenInvalid.Code, appErrors.FromError(err).Code)
}

func TestSingleUseTokenMalformed(t *testing.T) {
	svc := newTestMFA(newMemChallengeRepo())

	for _, raw := range []string{"", "nodot", ".", "id.", ".secret"} {
		_, err := svc.ConsumeToken(context.Background(), raw, models.ChallengePasswordReset)
		require.Error(t, err, "raw=%q", raw)
	}
}

func TestSingleUseTokenTamperedSecret(t *testing.T) {
	repo := newMemChallengeRepo()
	svc := newTestMFA(repo)

	raw, err := svc.CreateToken(context.Background(), "u1", models.ChallengePasswordReset, 30*time.Minute)
	require.NoError(t, err)

	_, err = svc.ConsumeToken(context.Background(), raw+"x", models.ChallengePasswordReset)
	require.Error(t, err)
}
