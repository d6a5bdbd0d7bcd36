package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	RateLimit     RateLimitConfig
	MFA           MFAConfig
	PasswordReset PasswordResetConfig
	Devices       DeviceConfig
	Sessions      SessionConfig
	InternalAPI   InternalAPIConfig
	Notifications NotificationsConfig
	CORS          CORSConfig
	Log           LogConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
	Issuer            string
	Audience          []string
}

// RateLimitConfig tunes the fixed attempt window and the backoff layered on it.
type RateLimitConfig struct {
	Window          time.Duration
	LoginMax        int
	RegistrationMax int
	PasswordMax     int
	VerificationMax int
	BackoffBase     time.Duration
	BackoffCap      time.Duration
}

// MFAConfig governs challenge issuance and verification.
type MFAConfig struct {
	ChallengeTTL time.Duration
	MaxAttempts  int
	CodeLength   int
	Secret       string
}

// PasswordResetConfig governs the reset token lifecycle.
type PasswordResetConfig struct {
	TokenTTL   time.Duration
	LockoutMax int
	Secret     string
}

// DeviceConfig tunes fingerprinting and trust behaviour.
type DeviceConfig struct {
	FingerprintSecret string
	MaxPerUser        int
}

// SessionConfig bounds session lifetime.
type SessionConfig struct {
	AbsoluteLifetime time.Duration
}

// InternalAPIConfig secures the service-to-service surface.
type InternalAPIConfig struct {
	Enabled    bool
	ServiceKey string
	StatsTTL   time.Duration
}

// NotificationsConfig tunes the asynchronous delivery workers.
type NotificationsConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 15*time.Minute),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
		Issuer:            v.GetString("JWT_ISSUER"),
		Audience:          splitAndTrim(v.GetString("JWT_AUDIENCE")),
	}

	cfg.RateLimit = RateLimitConfig{
		Window:          parseDuration(v.GetString("RATE_LIMIT_WINDOW"), time.Minute),
		LoginMax:        v.GetInt("RATE_LIMIT_LOGIN_MAX"),
		RegistrationMax: v.GetInt("RATE_LIMIT_REGISTRATION_MAX"),
		PasswordMax:     v.GetInt("RATE_LIMIT_PASSWORD_MAX"),
		VerificationMax: v.GetInt("RATE_LIMIT_VERIFICATION_MAX"),
		BackoffBase:     parseDuration(v.GetString("RATE_LIMIT_BACKOFF_BASE"), 30*time.Second),
		BackoffCap:      parseDuration(v.GetString("RATE_LIMIT_BACKOFF_CAP"), time.Hour),
	}

	cfg.MFA = MFAConfig{
		ChallengeTTL: parseDuration(v.GetString("MFA_CHALLENGE_TTL"), 5*time.Minute),
		MaxAttempts:  v.GetInt("MFA_MAX_ATTEMPTS"),
		CodeLength:   v.GetInt("MFA_CODE_LENGTH"),
		Secret:       v.GetString("MFA_HASH_SECRET"),
	}

	cfg.PasswordReset = PasswordResetConfig{
		TokenTTL:   parseDuration(v.GetString("PASSWORD_RESET_TTL"), 30*time.Minute),
		LockoutMax: v.GetInt("ACCOUNT_LOCKOUT_MAX_FAILURES"),
		Secret:     v.GetString("PASSWORD_RESET_SECRET"),
	}

	cfg.Devices = DeviceConfig{
		FingerprintSecret: v.GetString("DEVICE_FINGERPRINT_SECRET"),
		MaxPerUser:        v.GetInt("DEVICE_MAX_PER_USER"),
	}

	cfg.Sessions = SessionConfig{
		AbsoluteLifetime: parseDuration(v.GetString("SESSION_ABSOLUTE_LIFETIME"), 30*24*time.Hour),
	}

	cfg.InternalAPI = InternalAPIConfig{
		Enabled:    v.GetBool("ENABLE_INTERNAL_API"),
		ServiceKey: v.GetString("INTERNAL_SERVICE_KEY"),
		StatsTTL:   parseDuration(v.GetString("INTERNAL_STATS_CACHE_TTL"), time.Minute),
	}

	cfg.Notifications = NotificationsConfig{
		Workers:    v.GetInt("NOTIFICATION_WORKERS"),
		BufferSize: v.GetInt("NOTIFICATION_BUFFER_SIZE"),
		MaxRetries: v.GetInt("NOTIFICATION_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("NOTIFICATION_RETRY_DELAY"), 5*time.Second),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "secure_auth")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "15m")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")
	v.SetDefault("JWT_ISSUER", "secure-auth-api")
	v.SetDefault("JWT_AUDIENCE", "")

	v.SetDefault("RATE_LIMIT_WINDOW", "1m")
	v.SetDefault("RATE_LIMIT_LOGIN_MAX", 5)
	v.SetDefault("RATE_LIMIT_REGISTRATION_MAX", 3)
	v.SetDefault("RATE_LIMIT_PASSWORD_MAX", 3)
	v.SetDefault("RATE_LIMIT_VERIFICATION_MAX", 5)
	v.SetDefault("RATE_LIMIT_BACKOFF_BASE", "30s")
	v.SetDefault("RATE_LIMIT_BACKOFF_CAP", "1h")

	v.SetDefault("MFA_CHALLENGE_TTL", "5m")
	v.SetDefault("MFA_MAX_ATTEMPTS", 3)
	v.SetDefault("MFA_CODE_LENGTH", 6)
	v.SetDefault("MFA_HASH_SECRET", "dev_mfa_secret")

	v.SetDefault("PASSWORD_RESET_TTL", "30m")
	v.SetDefault("ACCOUNT_LOCKOUT_MAX_FAILURES", 10)
	v.SetDefault("PASSWORD_RESET_SECRET", "dev_reset_secret")

	v.SetDefault("DEVICE_FINGERPRINT_SECRET", "dev_fingerprint_secret")
	v.SetDefault("DEVICE_MAX_PER_USER", 20)

	v.SetDefault("SESSION_ABSOLUTE_LIFETIME", "720h")

	v.SetDefault("ENABLE_INTERNAL_API", false)
	v.SetDefault("INTERNAL_SERVICE_KEY", "")
	v.SetDefault("INTERNAL_STATS_CACHE_TTL", "1m")

	v.SetDefault("NOTIFICATION_WORKERS", 2)
	v.SetDefault("NOTIFICATION_BUFFER_SIZE", 64)
	v.SetDefault("NOTIFICATION_MAX_RETRIES", 3)
	v.SetDefault("NOTIFICATION_RETRY_DELAY", "5s")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
