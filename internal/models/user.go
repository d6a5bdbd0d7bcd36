package models

import "time"

// UserRole represents the available roles.
type UserRole string

const (
	RoleUser     UserRole = "USER"
	RoleOperator UserRole = "OPERATOR"
)

// User represents an identity stored in the users table. Accounts are never
// hard-deleted; Active is flipped off instead.
type User struct {
	ID             string     `db:"id" json:"id"`
	Email          string     `db:"email" json:"email"`
	PasswordHash   string     `db:"password_hash" json:"-"`
	FullName       string     `db:"full_name" json:"full_name"`
	Role           UserRole   `db:"role" json:"role"`
	Active         bool       `db:"active" json:"active"`
	Locked         bool       `db:"locked" json:"locked"`
	MFAEnabled     bool       `db:"mfa_enabled" json:"mfa_enabled"`
	EmailVerified  bool       `db:"email_verified" json:"email_verified"`
	FailedAttempts int        `db:"failed_attempts" json:"-"`
	LastLogin      *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// UserInfo describes a user in API responses.
type UserInfo struct {
	ID            string   `json:"id"`
	Email         string   `json:"email"`
	FullName      string   `json:"full_name"`
	Role          UserRole `json:"role"`
	MFAEnabled    bool     `json:"mfa_enabled"`
	EmailVerified bool     `json:"email_verified"`
}

// UserValidation is the lightweight existence check served to sibling
// services. A missing user is Exists=false, not an error.
type UserValidation struct {
	UserID        string `json:"user_id"`
	Exists        bool   `json:"exists"`
	Active        bool   `json:"active"`
	Locked        bool   `json:"locked"`
	EmailVerified bool   `json:"email_verified"`
}

// Info projects the stored record into its response shape.
func (u *User) Info() UserInfo {
	return UserInfo{
		ID:            u.ID,
		Email:         u.Email,
		FullName:      u.FullName,
		Role:          u.Role,
		MFAEnabled:    u.MFAEnabled,
		EmailVerified: u.EmailVerified,
	}
}
