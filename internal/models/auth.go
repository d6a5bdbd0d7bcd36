package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// Login response statuses.
const (
	LoginStatusOK          = "ok"
	LoginStatusMFARequired = "mfa_required"
)

// RegisterRequest creates a new identity.
type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FullName  string `json:"full_name" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email          string `json:"email" validate:"required,email"`
	Password       string `json:"password" validate:"required"`
	ClientDeviceID string `json:"device_id"`
	IP             string `json:"-"`
	UserAgent      string `json:"-"`
}

// LoginResponse returns either issued tokens or an MFA continuation.
type LoginResponse struct {
	Status    string     `json:"status"`
	MFAToken  string     `json:"mfa_token,omitempty"`
	Tokens    *TokenPair `json:"tokens,omitempty"`
	SessionID string     `json:"session_id,omitempty"`
	User      *UserInfo  `json:"user,omitempty"`
}

// MFAVerifyRequest completes a pending challenge.
type MFAVerifyRequest struct {
	Token          string `json:"token" validate:"required"`
	Code           string `json:"code" validate:"required"`
	ClientDeviceID string `json:"device_id"`
	IP             string `json:"-"`
	UserAgent      string `json:"-"`
}

// RefreshRequest exchanges a refresh token for a new pair.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
	IP           string `json:"-"`
	UserAgent    string `json:"-"`
}

// LogoutRequest revokes the current session.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
	IP           string `json:"-"`
	UserAgent    string `json:"-"`
}

// ForgotPasswordRequest initiates the reset flow.
type ForgotPasswordRequest struct {
	Email     string `json:"email" validate:"required,email"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// ResetPasswordRequest completes the reset flow with a single-use token.
type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
	IP          string `json:"-"`
	UserAgent   string `json:"-"`
}

// VerifyEmailRequest completes registration.
type VerifyEmailRequest struct {
	Token     string `json:"token" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// ChangePasswordRequest updates the password of an authenticated user.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

// UpdateTrustSettingsRequest updates per-user device trust preferences.
type UpdateTrustSettingsRequest struct {
	RequireMFAAlways  *bool `json:"require_mfa_always"`
	NotifyOnNewDevice *bool `json:"notify_on_new_device"`
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID      string   `json:"user_id"`
	Email       string   `json:"email"`
	Role        UserRole `json:"role"`
	SessionID   string   `json:"session_id"`
	Fingerprint string   `json:"fingerprint"`
	jwt.RegisteredClaims
}
