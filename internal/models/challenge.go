package models

import "time"

// ChallengePurpose distinguishes the single-use secrets sharing the
// consume-once lifecycle.
type ChallengePurpose string

const (
	ChallengeMFA           ChallengePurpose = "MFA"
	ChallengePasswordReset ChallengePurpose = "PASSWORD_RESET"
	ChallengeEmailVerify   ChallengePurpose = "EMAIL_VERIFY"
)

// Challenge represents a short-lived single-use secret: an MFA code, a
// password reset token or an email verification token. Only the HMAC of the
// secret is stored.
type Challenge struct {
	Token      string           `db:"token" json:"token"`
	UserID     string           `db:"user_id" json:"user_id"`
	Purpose    ChallengePurpose `db:"purpose" json:"purpose"`
	CodeHash   string           `db:"code_hash" json:"-"`
	DeviceID   string           `db:"device_id" json:"device_id"`
	Attempts   int              `db:"attempts" json:"attempts"`
	ExpiresAt  time.Time        `db:"expires_at" json:"expires_at"`
	CreatedAt  time.Time        `db:"created_at" json:"created_at"`
	ConsumedAt *time.Time       `db:"consumed_at" json:"consumed_at,omitempty"`
}

// IsExpired reports whether the challenge has passed its TTL.
func (c *Challenge) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// IsConsumed reports whether the challenge was already used.
func (c *Challenge) IsConsumed() bool {
	return c.ConsumedAt != nil
}
