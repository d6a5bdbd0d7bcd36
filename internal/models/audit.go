package models

import "time"

// Security audit actions.
const (
	AuditActionRegister       = "REGISTER"
	AuditActionLogin          = "LOGIN"
	AuditActionLogout         = "LOGOUT"
	AuditActionMFAChallenge   = "MFA_CHALLENGE"
	AuditActionMFAVerify      = "MFA_VERIFY"
	AuditActionTokenRefresh   = "TOKEN_REFRESH"
	AuditActionTokenReuse     = "TOKEN_REUSE"
	AuditActionRateLimit      = "RATE_LIMIT"
	AuditActionDeviceTrust    = "DEVICE_TRUST"
	AuditActionDeviceBlock    = "DEVICE_BLOCK"
	AuditActionDeviceUnblock  = "DEVICE_UNBLOCK"
	AuditActionPasswordChange = "PASSWORD_CHANGE"
	AuditActionPasswordReset  = "PASSWORD_RESET"
	AuditActionEmailVerify    = "EMAIL_VERIFY"
	AuditActionAccountLock    = "ACCOUNT_LOCK"
	AuditActionAccountUnlock  = "ACCOUNT_UNLOCK"
	AuditActionSessionRevoke  = "SESSION_REVOKE"
)

// Audit outcomes.
const (
	AuditOutcomeSuccess = "SUCCESS"
	AuditOutcomeFailure = "FAILURE"
	AuditOutcomeDenied  = "DENIED"
)

// SecurityEvent is an append-only audit record. Rows are never updated or
// deleted once written.
type SecurityEvent struct {
	ID        string    `db:"id" json:"id"`
	UserID    *string   `db:"user_id" json:"user_id,omitempty"`
	Action    string    `db:"action" json:"action"`
	Outcome   string    `db:"outcome" json:"outcome"`
	HighRisk  bool      `db:"high_risk" json:"high_risk"`
	Metadata  []byte    `db:"metadata" json:"metadata,omitempty"`
	IPAddress string    `db:"ip_address" json:"ip_address"`
	UserAgent string    `db:"user_agent" json:"user_agent"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
