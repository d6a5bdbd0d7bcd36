package service

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/secure-auth-api/internal/models"
	"github.com/noah-isme/secure-auth-api/pkg/config"
	appErrors "github.com/noah-isme/secure-auth-api/pkg/errors"
	"github.com/noah-isme/secure-auth-api/pkg/jobs"
)

// Notification job kinds dispatched by the auth flows.
const (
	NotifyEmailVerification = "email_verification"
	NotifyMFACode           = "mfa_code"
	NotifyPasswordReset     = "password_reset"
	NotifyPasswordChanged   = "password_changed"
	NotifyNewDevice         = "new_device"
	NotifySecurityAlert     = "security_alert"
)

const emailVerifyTTL = 24 * time.Hour

// Compared against on unknown-identity logins so both failure branches cost a
// bcrypt verification. bcrypt of "password" at DefaultCost.
var unknownUserHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

type authUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
	MarkEmailVerified(ctx context.Context, id string, ts time.Time) error
	IncrementFailedAttempts(ctx context.Context, id string) (int, error)
	ResetFailedAttempts(ctx context.Context, id string) error
	SetLocked(ctx context.Context, id string, locked bool) error
	SetMFAEnabled(ctx context.Context, id string, enabled bool) error
}

// AuthService orchestrates the authentication flows: registration, login with
// device-aware MFA, token rotation, password lifecycle and logout. Side
// effects such as outbound notifications are dispatched asynchronously so the
// authentication path never waits on delivery.
type AuthService struct {
	users     authUserRepository
	devices   *DeviceService
	sessions  *SessionService
	tokens    *TokenService
	mfa       *MFAService
	rate      *RateLimitService
	audit     *AuditService
	metrics   *MetricsService
	notify    *jobs.Queue
	validator *validator.Validate
	cfg       *config.Config
	logger    *zap.Logger
	now       func() time.Time
}

// NewAuthService constructs the orchestrator and registers it as the token
// reuse listener.
func NewAuthService(
	users authUserRepository,
	devices *DeviceService,
	sessions *SessionService,
	tokens *TokenService,
	mfa *MFAService,
	rate *RateLimitService,
	audit *AuditService,
	metrics *MetricsService,
	notify *jobs.Queue,
	v *validator.Validate,
	cfg *config.Config,
	logger *zap.Logger,
) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if v == nil {
		v = validator.New()
	}
	s := &AuthService{
		users:     users,
		devices:   devices,
		sessions:  sessions,
		tokens:    tokens,
		mfa:       mfa,
		rate:      rate,
		audit:     audit,
		metrics:   metrics,
		notify:    notify,
		validator: v,
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	if tokens != nil {
		tokens.SetReuseListener(s)
	}
	return s
}

// Register creates a new identity and dispatches an email verification token.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.UserInfo, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}

	if err := s.allow(ctx, models.RateScopeRegistration, req.IP, req.IP, req.UserAgent); err != nil {
		return nil, err
	}
	s.rate.RecordAttempt(models.RateScopeRegistration, req.IP)

	if _, err := s.users.FindByEmail(ctx, req.Email); err == nil {
		s.audit.Record(ctx, "", models.AuditActionRegister, models.AuditOutcomeFailure, req.IP, req.UserAgent, map[string]string{"reason": "email_taken"})
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up user")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:        req.Email,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		Role:         models.RoleUser,
		Active:       true,
		// New accounts challenge untrusted devices until the user opts out
		// via SetMFA.
		MFAEnabled: true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	token, err := s.mfa.CreateToken(ctx, user.ID, models.ChallengeEmailVerify, emailVerifyTTL)
	if err != nil {
		s.logger.Error("failed to create verification token", zap.Error(err))
	} else {
		s.enqueue(NotifyEmailVerification, user.Email, map[string]string{"token": token})
	}

	s.audit.Record(ctx, user.ID, models.AuditActionRegister, models.AuditOutcomeSuccess, req.IP, req.UserAgent, nil)
	info := user.Info()
	return &info, nil
}

// Login authenticates credentials with device awareness. Untrusted devices
// (or accounts preferring it) get an MFA continuation instead of tokens.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	if err := s.allow(ctx, models.RateScopeLoginIP, req.IP, req.IP, req.UserAgent); err != nil {
		return nil, err
	}
	if err := s.allow(ctx, models.RateScopeLoginIdentity, req.Email, req.IP, req.UserAgent); err != nil {
		return nil, err
	}
	s.rate.RecordAttempt(models.RateScopeLoginIP, req.IP)
	s.rate.RecordAttempt(models.RateScopeLoginIdentity, req.Email)

	signals := models.DeviceSignals{UserAgent: req.UserAgent, IP: req.IP, ClientDeviceID: req.ClientDeviceID}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			_ = bcrypt.CompareHashAndPassword(unknownUserHash, []byte(req.Password))
			return nil, s.loginFailure(ctx, "", req.IP, req.UserAgent, "unknown_identity")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up user")
	}

	device, err := s.devices.Observe(ctx, user.ID, signals)
	if err != nil {
		return nil, err
	}
	// A blocked device is rejected before credentials are even evaluated.
	if device.IsBlocked() {
		s.audit.Record(ctx, user.ID, models.AuditActionLogin, models.AuditOutcomeDenied, req.IP, req.UserAgent, map[string]string{"reason": "device_blocked"})
		if s.metrics != nil {
			s.metrics.RecordLogin(false)
		}
		return nil, appErrors.Clone(appErrors.ErrDeviceBlocked, "")
	}

	if user.Locked {
		s.audit.Record(ctx, user.ID, models.AuditActionLogin, models.AuditOutcomeDenied, req.IP, req.UserAgent, map[string]string{"reason": "account_locked"})
		return nil, appErrors.Clone(appErrors.ErrAccountLocked, "")
	}
	if !user.Active {
		s.audit.Record(ctx, user.ID, models.AuditActionLogin, models.AuditOutcomeDenied, req.IP, req.UserAgent, map[string]string{"reason": "account_inactive"})
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.recordCredentialFailure(ctx, user, req.IP, req.UserAgent)
		return nil, s.loginFailure(ctx, user.ID, req.IP, req.UserAgent, "bad_credentials")
	}

	if err := s.users.ResetFailedAttempts(ctx, user.ID); err != nil {
		s.logger.Warn("failed to reset failure counter", zap.Error(err))
	}
	s.rate.RecordSuccess(models.RateScopeLoginIP, req.IP)
	s.rate.RecordSuccess(models.RateScopeLoginIdentity, req.Email)

	settings, err := s.devices.GetTrustSettings(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	if user.MFAEnabled && (device.RequiresMFA() || settings.RequireMFAAlways) {
		token, code, err := s.mfa.CreateChallenge(ctx, user.ID, device.ID)
		if err != nil {
			return nil, err
		}
		s.enqueue(NotifyMFACode, user.Email, map[string]string{"code": code})
		s.audit.Record(ctx, user.ID, models.AuditActionMFAChallenge, models.AuditOutcomeSuccess, req.IP, req.UserAgent, map[string]string{"device_id": device.ID})
		return &models.LoginResponse{Status: models.LoginStatusMFARequired, MFAToken: token}, nil
	}

	return s.completeLogin(ctx, user, device, settings, req.IP, req.UserAgent)
}

// VerifyMFA completes a pending login challenge and issues tokens.
func (s *AuthService) VerifyMFA(ctx context.Context, req models.MFAVerifyRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid verification payload")
	}

	challenge, err := s.mfa.VerifyChallenge(ctx, req.Token, req.Code)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordMFA(false)
		}
		s.audit.Record(ctx, "", models.AuditActionMFAVerify, models.AuditOutcomeFailure, req.IP, req.UserAgent, nil)
		return nil, err
	}

	user, err := s.users.FindByID(ctx, challenge.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up user")
	}
	if user.Locked || !user.Active {
		s.audit.Record(ctx, user.ID, models.AuditActionMFAVerify, models.AuditOutcomeDenied, req.IP, req.UserAgent, nil)
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "")
	}

	device, err := s.devices.GetByID(ctx, challenge.DeviceID)
	if err != nil {
		return nil, err
	}
	if device.IsBlocked() {
		s.audit.Record(ctx, user.ID, models.AuditActionMFAVerify, models.AuditOutcomeDenied, req.IP, req.UserAgent, map[string]string{"reason": "device_blocked"})
		return nil, appErrors.Clone(appErrors.ErrDeviceBlocked, "")
	}

	settings, err := s.devices.GetTrustSettings(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordMFA(true)
	}
	s.audit.Record(ctx, user.ID, models.AuditActionMFAVerify, models.AuditOutcomeSuccess, req.IP, req.UserAgent, map[string]string{"device_id": device.ID})
	return s.completeLogin(ctx, user, device, settings, req.IP, req.UserAgent)
}

// Refresh rotates a refresh token.
func (s *AuthService) Refresh(ctx context.Context, req models.RefreshRequest) (*models.TokenPair, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid refresh payload")
	}

	pair, session, err := s.tokens.Refresh(ctx, req.RefreshToken)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordRefresh(false)
		}
		s.audit.Record(ctx, "", models.AuditActionTokenRefresh, models.AuditOutcomeFailure, req.IP, req.UserAgent, nil)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordRefresh(true)
	}
	s.audit.Record(ctx, session.UserID, models.AuditActionTokenRefresh, models.AuditOutcomeSuccess, req.IP, req.UserAgent, map[string]string{"session_id": session.ID})
	return pair, nil
}

// Logout revokes the session owning the presented refresh token.
func (s *AuthService) Logout(ctx context.Context, req models.LogoutRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid logout payload")
	}

	sessionID, err := s.tokens.SessionIDForToken(ctx, req.RefreshToken)
	if err != nil {
		return err
	}
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := s.sessions.Revoke(ctx, sessionID); err != nil {
		return err
	}

	s.audit.Record(ctx, session.UserID, models.AuditActionLogout, models.AuditOutcomeSuccess, req.IP, req.UserAgent, map[string]string{"session_id": sessionID})
	return nil
}

// ForgotPassword starts the reset flow. The response is identical whether or
// not the address exists, so the endpoint cannot be used for enumeration.
func (s *AuthService) ForgotPassword(ctx context.Context, req models.ForgotPasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}

	if err := s.allow(ctx, models.RateScopePasswordReset, req.Email, req.IP, req.UserAgent); err != nil {
		return err
	}
	s.rate.RecordAttempt(models.RateScopePasswordReset, req.Email)

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.audit.Record(ctx, "", models.AuditActionPasswordReset, models.AuditOutcomeFailure, req.IP, req.UserAgent, map[string]string{"stage": "requested", "reason": "unknown_identity"})
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up user")
	}

	token, err := s.mfa.CreateToken(ctx, user.ID, models.ChallengePasswordReset, s.cfg.PasswordReset.TokenTTL)
	if err != nil {
		s.logger.Error("failed to create reset token", zap.Error(err))
		return nil
	}
	s.enqueue(NotifyPasswordReset, user.Email, map[string]string{"token": token})
	s.audit.Record(ctx, user.ID, models.AuditActionPasswordReset, models.AuditOutcomeSuccess, req.IP, req.UserAgent, map[string]string{"stage": "requested"})
	return nil
}

// ResetPassword completes the reset flow with a single-use token. All
// sessions of the user are revoked.
func (s *AuthService) ResetPassword(ctx context.Context, req models.ResetPasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}

	challenge, err := s.mfa.ConsumeToken(ctx, req.Token, models.ChallengePasswordReset)
	if err != nil {
		s.audit.Record(ctx, "", models.AuditActionPasswordReset, models.AuditOutcomeFailure, req.IP, req.UserAgent, map[string]string{"stage": "completed"})
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	if err := s.users.UpdatePassword(ctx, challenge.UserID, string(hash), s.now()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update password")
	}
	if err := s.users.SetLocked(ctx, challenge.UserID, false); err != nil {
		s.logger.Warn("failed to unlock account after reset", zap.Error(err))
	}
	if err := s.users.ResetFailedAttempts(ctx, challenge.UserID); err != nil {
		s.logger.Warn("failed to reset failure counter", zap.Error(err))
	}
	if err := s.sessions.RevokeAll(ctx, challenge.UserID); err != nil {
		s.logger.Error("failed to revoke sessions after reset", zap.Error(err))
	}

	if user, err := s.users.FindByID(ctx, challenge.UserID); err == nil {
		s.enqueue(NotifyPasswordChanged, user.Email, nil)
	}
	s.audit.Record(ctx, challenge.UserID, models.AuditActionPasswordReset, models.AuditOutcomeSuccess, req.IP, req.UserAgent, map[string]string{"stage": "completed"})
	return nil
}

// VerifyEmail completes registration with a single-use token.
func (s *AuthService) VerifyEmail(ctx context.Context, req models.VerifyEmailRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}

	if err := s.allow(ctx, models.RateScopeVerification, req.IP, req.IP, req.UserAgent); err != nil {
		return err
	}
	s.rate.RecordAttempt(models.RateScopeVerification, req.IP)

	challenge, err := s.mfa.ConsumeToken(ctx, req.Token, models.ChallengeEmailVerify)
	if err != nil {
		s.audit.Record(ctx, "", models.AuditActionEmailVerify, models.AuditOutcomeFailure, req.IP, req.UserAgent, nil)
		return err
	}
	if err := s.users.MarkEmailVerified(ctx, challenge.UserID, s.now()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark email verified")
	}

	s.audit.Record(ctx, challenge.UserID, models.AuditActionEmailVerify, models.AuditOutcomeSuccess, req.IP, req.UserAgent, nil)
	return nil
}

// ChangePassword updates the password on an authenticated session and ends
// every other session of the user.
func (s *AuthService) ChangePassword(ctx context.Context, userID, sessionID, ip, userAgent string, req models.ChangePasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up user")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.OldPassword)); err != nil {
		s.audit.Record(ctx, userID, models.AuditActionPasswordChange, models.AuditOutcomeFailure, ip, userAgent, nil)
		return appErrors.Clone(appErrors.ErrInvalidCredentials, "current password is incorrect")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	if err := s.users.UpdatePassword(ctx, userID, string(hash), s.now()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update password")
	}
	if err := s.sessions.RevokeOthers(ctx, userID, sessionID); err != nil {
		s.logger.Error("failed to revoke other sessions", zap.Error(err))
	}

	s.enqueue(NotifyPasswordChanged, user.Email, nil)
	s.audit.Record(ctx, userID, models.AuditActionPasswordChange, models.AuditOutcomeSuccess, ip, userAgent, nil)
	return nil
}

// SetMFA toggles MFA for the user after re-verifying their password.
func (s *AuthService) SetMFA(ctx context.Context, userID, password string, enabled bool) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up user")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return appErrors.Clone(appErrors.ErrInvalidCredentials, "password is incorrect")
	}
	if err := s.users.SetMFAEnabled(ctx, userID, enabled); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update mfa setting")
	}
	return nil
}

// UnlockAccount clears a lockout. Operator action.
func (s *AuthService) UnlockAccount(ctx context.Context, actorID, userID, ip, userAgent string) error {
	if err := s.users.SetLocked(ctx, userID, false); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unlock account")
	}
	if err := s.users.ResetFailedAttempts(ctx, userID); err != nil {
		s.logger.Warn("failed to reset failure counter", zap.Error(err))
	}
	s.audit.Record(ctx, userID, models.AuditActionAccountUnlock, models.AuditOutcomeSuccess, ip, userAgent, map[string]string{"actor_id": actorID})
	return nil
}

// GetProfile returns the response projection of a user.
func (s *AuthService) GetProfile(ctx context.Context, userID string) (*models.UserInfo, error) {
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

// ValidateAccess exposes token validation for middleware.
func (s *AuthService) ValidateAccess(ctx context.Context, tokenString string) (*models.JWTClaims, error) {
	return s.tokens.ValidateAccess(ctx, tokenString)
}

// TokenReuseDetected implements the reuse listener: the session and chain are
// already revoked by the token service, this records the signal and alerts
// the user.
func (s *AuthService) TokenReuseDetected(ctx context.Context, session *models.Session) {
	if s.metrics != nil {
		s.metrics.RecordTokenReuse()
	}
	s.audit.Record(ctx, session.UserID, models.AuditActionTokenReuse, models.AuditOutcomeDenied, session.IPAddress, session.UserAgent, map[string]string{"session_id": session.ID})
	if user, err := s.users.FindByID(ctx, session.UserID); err == nil {
		s.enqueue(NotifySecurityAlert, user.Email, map[string]string{"reason": "refresh_token_reuse"})
	}
}

func (s *AuthService) completeLogin(ctx context.Context, user *models.User, device *models.Device, settings *models.DeviceTrustSettings, ip, userAgent string) (*models.LoginResponse, error) {
	newDevice := device.TrustState == models.DeviceUnknown
	if newDevice {
		if err := s.devices.Register(ctx, device); err != nil {
			s.logger.Warn("failed to register device", zap.Error(err))
		}
	}

	session, err := s.sessions.Create(ctx, user.ID, device.ID, ip, userAgent)
	if err != nil {
		return nil, err
	}
	pair, err := s.tokens.Issue(ctx, user, session, device.Fingerprint)
	if err != nil {
		return nil, err
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID, s.now()); err != nil {
		s.logger.Warn("failed to update last login", zap.Error(err))
	}
	if newDevice && settings.NotifyOnNewDevice {
		s.enqueue(NotifyNewDevice, user.Email, map[string]string{"device_name": device.Name})
	}

	if s.metrics != nil {
		s.metrics.RecordLogin(true)
	}
	s.audit.Record(ctx, user.ID, models.AuditActionLogin, models.AuditOutcomeSuccess, ip, userAgent, map[string]string{"device_id": device.ID, "session_id": session.ID})

	info := user.Info()
	return &models.LoginResponse{
		Status:    models.LoginStatusOK,
		Tokens:    pair,
		SessionID: session.ID,
		User:      &info,
	}, nil
}

func (s *AuthService) recordCredentialFailure(ctx context.Context, user *models.User, ip, userAgent string) {
	count, err := s.users.IncrementFailedAttempts(ctx, user.ID)
	if err != nil {
		s.logger.Warn("failed to increment failure counter", zap.Error(err))
		return
	}
	if s.cfg.PasswordReset.LockoutMax > 0 && count >= s.cfg.PasswordReset.LockoutMax {
		if err := s.users.SetLocked(ctx, user.ID, true); err != nil {
			s.logger.Error("failed to lock account", zap.Error(err))
			return
		}
		s.audit.Record(ctx, user.ID, models.AuditActionAccountLock, models.AuditOutcomeSuccess, ip, userAgent, map[string]string{"failures": strconv.Itoa(count)})
		s.enqueue(NotifySecurityAlert, user.Email, map[string]string{"reason": "account_locked"})
	}
}

func (s *AuthService) loginFailure(ctx context.Context, userID, ip, userAgent, reason string) error {
	if s.metrics != nil {
		s.metrics.RecordLogin(false)
	}
	s.audit.Record(ctx, userID, models.AuditActionLogin, models.AuditOutcomeFailure, ip, userAgent, map[string]string{"reason": reason})
	return appErrors.Clone(appErrors.ErrInvalidCredentials, "")
}

// allow checks the limiter and converts a rejection into audit and metric
// signals.
func (s *AuthService) allow(ctx context.Context, scope models.RateLimitScope, identifier, ip, userAgent string) error {
	if err := s.rate.Allow(scope, identifier); err != nil {
		if s.metrics != nil {
			s.metrics.RecordRateLimitTrip(scope)
		}
		s.audit.Record(ctx, "", models.AuditActionRateLimit, models.AuditOutcomeDenied, ip, userAgent, map[string]string{"scope": string(scope)})
		return err
	}
	return nil
}

func (s *AuthService) enqueue(kind, recipient string, payload map[string]string) {
	if s.notify == nil {
		return
	}
	job := jobs.Job{ID: uuid.NewString(), Kind: kind, Recipient: recipient, Payload: payload}
	if err := s.notify.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue notification", zap.String("kind", kind), zap.Error(err))
	}
}
