package models

// RateLimitScope names the operation a bucket counts attempts for. Buckets are
// keyed by scope crossed with an identifier (source IP or account email).
type RateLimitScope string

const (
	RateScopeLoginIP       RateLimitScope = "login:ip"
	RateScopeLoginIdentity RateLimitScope = "login:identity"
	RateScopeRegistration  RateLimitScope = "registration"
	RateScopePasswordReset RateLimitScope = "password-reset"
	RateScopeVerification  RateLimitScope = "email-verification"
)
