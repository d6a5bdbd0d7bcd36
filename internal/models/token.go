package models

import "time"

// RefreshToken represents a persisted refresh token. Only the SHA-256 hash of
// the opaque token is stored. Tokens in one session share a rotation chain;
// consuming a token appends its successor to the chain.
type RefreshToken struct {
	ID          string     `db:"id" json:"id"`
	SessionID   string     `db:"session_id" json:"session_id"`
	UserID      string     `db:"user_id" json:"user_id"`
	ChainID     string     `db:"chain_id" json:"chain_id"`
	TokenHash   string     `db:"token_hash" json:"-"`
	Fingerprint string     `db:"fingerprint" json:"-"`
	ExpiresAt   time.Time  `db:"expires_at" json:"expires_at"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	ConsumedAt  *time.Time `db:"consumed_at" json:"consumed_at,omitempty"`
	Revoked     bool       `db:"revoked" json:"revoked"`
	RevokedAt   *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
}

// TokenPair is the issued access/refresh pair returned to clients.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	IssuedAt     time.Time `json:"issued_at"`
}
