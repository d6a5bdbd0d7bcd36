package service

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/secure-auth-api/internal/models"
	"github.com/noah-isme/secure-auth-api/pkg/config"
	appErrors "github.com/noah-isme/secure-auth-api/pkg/errors"
)

type challengeRepository interface {
	Create(ctx context.Context, challenge *models.Challenge) error
	FindByToken(ctx context.Context, token string, purpose models.ChallengePurpose) (*models.Challenge, error)
	IncrementAttempts(ctx context.Context, token string) (int, error)
	Consume(ctx context.Context, token string, consumedAt time.Time) (bool, error)
	InvalidateByUser(ctx context.Context, userID string, purpose models.ChallengePurpose, ts time.Time) error
}

// MFAService manages short-lived single-use secrets: MFA challenge codes and
// the reset/verification tokens sharing the same consume-once lifecycle.
// Storage only ever holds HMACs of the secrets.
type MFAService struct {
	repo   challengeRepository
	cfg    config.MFAConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewMFAService constructs an MFAService.
func NewMFAService(repo challengeRepository, cfg config.MFAConfig, logger *zap.Logger) *MFAService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = 6
	}
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = 5 * time.Minute
	}
	return &MFAService{repo: repo, cfg: cfg, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// CreateChallenge issues an MFA challenge for the user. The returned code is
// delivered out of band; only the token travels back to the client.
func (s *MFAService) CreateChallenge(ctx context.Context, userID, deviceID string) (token, code string, err error) {
	code, err = s.generateCode()
	if err != nil {
		return "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate challenge code")
	}
	token = uuid.NewString()

	if err := s.repo.InvalidateByUser(ctx, userID, models.ChallengeMFA, s.now()); err != nil {
		s.logger.Warn("failed to invalidate previous challenges", zap.Error(err))
	}

	challenge := &models.Challenge{
		Token:     token,
		UserID:    userID,
		Purpose:   models.ChallengeMFA,
		CodeHash:  s.hash(token, code),
		DeviceID:  deviceID,
		ExpiresAt: s.now().Add(s.cfg.ChallengeTTL),
		CreatedAt: s.now(),
	}
	if err := s.repo.Create(ctx, challenge); err != nil {
		return "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist challenge")
	}
	return token, code, nil
}

// VerifyChallenge checks an MFA code against a pending challenge. Expired,
// consumed and attempt-exhausted challenges are terminally invalid; a correct
// code succeeds exactly once.
func (s *MFAService) VerifyChallenge(ctx context.Context, token, code string) (*models.Challenge, error) {
	challenge, err := s.repo.FindByToken(ctx, token, models.ChallengeMFA)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrMfaInvalid, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load challenge")
	}

	now := s.now()
	if challenge.IsConsumed() || challenge.IsExpired(now) || challenge.Attempts >= s.cfg.MaxAttempts {
		return nil, appErrors.Clone(appErrors.ErrMfaInvalid, "")
	}

	if !hmac.Equal([]byte(s.hash(token, code)), []byte(challenge.CodeHash)) {
		if _, err := s.repo.IncrementAttempts(ctx, token); err != nil {
			s.logger.Warn("failed to increment challenge attempts", zap.Error(err))
		}
		return nil, appErrors.Clone(appErrors.ErrMfaInvalid, "")
	}

	consumed, err := s.repo.Consume(ctx, token, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to consume challenge")
	}
	if !consumed {
		return nil, appErrors.Clone(appErrors.ErrMfaInvalid, "")
	}
	return challenge, nil
}

// CreateToken issues a single-use opaque token (password reset or email
// verification). The returned value embeds a lookup id and a secret; the
// secret never reaches storage.
func (s *MFAService) CreateToken(ctx context.Context, userID string, purpose models.ChallengePurpose, ttl time.Duration) (string, error) {
	id := uuid.NewString()
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate token")
	}
	secret := base64.RawURLEncoding.EncodeToString(buf)

	if err := s.repo.InvalidateByUser(ctx, userID, purpose, s.now()); err != nil {
		s.logger.Warn("failed to invalidate previous tokens", zap.Error(err))
	}

	challenge := &models.Challenge{
		Token:     id,
		UserID:    userID,
		Purpose:   purpose,
		CodeHash:  s.hash(id, secret),
		ExpiresAt: s.now().Add(ttl),
		CreatedAt: s.now(),
	}
	if err := s.repo.Create(ctx, challenge); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist token")
	}
	return id + "." + secret, nil
}

// ConsumeToken validates and consumes a single-use opaque token, returning
// the owning challenge.
func (s *MFAService) ConsumeToken(ctx context.Context, raw string, purpose models.ChallengePurpose) (*models.Challenge, error) {
	id, secret, ok := splitToken(raw)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrTokenInvalid, "")
	}

	challenge, err := s.repo.FindByToken(ctx, id, purpose)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrTokenInvalid, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load token")
	}

	now := s.now()
	if challenge.IsConsumed() || challenge.IsExpired(now) {
		return nil, appErrors.Clone(appErrors.ErrTokenInvalid, "")
	}
	if !hmac.Equal([]byte(s.hash(id, secret)), []byte(challenge.CodeHash)) {
		return nil, appErrors.Clone(appErrors.ErrTokenInvalid, "")
	}

	consumed, err := s.repo.Consume(ctx, id, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to consume token")
	}
	if !consumed {
		return nil, appErrors.Clone(appErrors.ErrTokenInvalid, "")
	}
	return challenge, nil
}

func (s *MFAService) generateCode() (string, error) {
	var sb strings.Builder
	for i := 0; i < s.cfg.CodeLength; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&sb, "%d", n.Int64())
	}
	return sb.String(), nil
}

func (s *MFAService) hash(token, code string) string {
	mac := hmac.New(sha256.New, []byte(s.cfg.Secret))
	_, _ = mac.Write([]byte(token + "|" + code))
	return hex.EncodeToString(mac.Sum(nil))
}

func splitToken(raw string) (id, secret string, ok bool) {
	parts := strings.SplitN(raw, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
