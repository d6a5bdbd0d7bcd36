package service

import (
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/secure-auth-api/internal/models"
	"github.com/noah-isme/secure-auth-api/pkg/config"
	appErrors "github.com/noah-isme/secure-auth-api/pkg/errors"
)

const rateLimitShards = 32

type rateBucket struct {
	windowStart  time.Time
	count        int
	violations   int
	blockedUntil time.Time
}

type rateShard struct {
	mu      sync.Mutex
	buckets map[string]*rateBucket
}

// RateLimitService enforces per-key attempt ceilings. Buckets use a fixed
// counting window; exceeding a threshold starts an exponential-backoff
// cooldown that doubles per consecutive violation, independent of the window.
// State is sharded so concurrent keys never contend on one lock.
type RateLimitService struct {
	cfg    config.RateLimitConfig
	limits map[models.RateLimitScope]int
	shards [rateLimitShards]*rateShard
	logger *zap.Logger
	now    func() time.Time
}

// NewRateLimitService constructs a RateLimitService.
func NewRateLimitService(cfg config.RateLimitConfig, logger *zap.Logger) *RateLimitService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 30 * time.Second
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = time.Hour
	}

	s := &RateLimitService{
		cfg: cfg,
		limits: map[models.RateLimitScope]int{
			models.RateScopeLoginIP:       orDefault(cfg.LoginMax, 5),
			models.RateScopeLoginIdentity: orDefault(cfg.LoginMax, 5),
			models.RateScopeRegistration:  orDefault(cfg.RegistrationMax, 3),
			models.RateScopePasswordReset: orDefault(cfg.PasswordMax, 3),
			models.RateScopeVerification:  orDefault(cfg.VerificationMax, 5),
		},
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for i := range s.shards {
		s.shards[i] = &rateShard{buckets: make(map[string]*rateBucket)}
	}
	return s
}

func orDefault(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

// Allow reports whether an attempt under the key may proceed. Unknown keys
// are treated as zero count and always pass.
func (s *RateLimitService) Allow(scope models.RateLimitScope, identifier string) error {
	if identifier == "" {
		return nil
	}
	shard := s.shard(scope, identifier)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	bucket, ok := shard.buckets[s.key(scope, identifier)]
	if !ok {
		return nil
	}

	now := s.now()
	if now.Before(bucket.blockedUntil) {
		return appErrors.RateLimited(remainingSeconds(bucket.blockedUntil, now))
	}
	if now.Sub(bucket.windowStart) >= s.cfg.Window {
		return nil
	}
	if bucket.count >= s.limit(scope) {
		retry := remainingSeconds(bucket.windowStart.Add(s.cfg.Window), now)
		return appErrors.RateLimited(retry)
	}
	return nil
}

// RecordAttempt counts an attempt against the key. Crossing the threshold
// starts (or extends) the backoff cooldown. Counts are never decremented
// before the window boundary.
func (s *RateLimitService) RecordAttempt(scope models.RateLimitScope, identifier string) {
	if identifier == "" {
		return
	}
	shard := s.shard(scope, identifier)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	key := s.key(scope, identifier)
	now := s.now()
	bucket, ok := shard.buckets[key]
	if !ok {
		shard.buckets[key] = &rateBucket{windowStart: now, count: 1}
		return
	}

	if now.Sub(bucket.windowStart) >= s.cfg.Window {
		bucket.windowStart = now
		bucket.count = 0
	}
	bucket.count++

	if bucket.count >= s.limit(scope) {
		bucket.violations++
		backoff := s.backoff(bucket.violations)
		bucket.blockedUntil = now.Add(backoff)
		s.logger.Warn("rate limit threshold reached",
			zap.String("scope", string(scope)),
			zap.String("identifier", identifier),
			zap.Int("violations", bucket.violations),
			zap.Duration("cooldown", backoff),
		)
	}
}

// RecordSuccess clears the consecutive-violation streak for a key. The
// in-window count is left untouched.
func (s *RateLimitService) RecordSuccess(scope models.RateLimitScope, identifier string) {
	if identifier == "" {
		return
	}
	shard := s.shard(scope, identifier)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if bucket, ok := shard.buckets[s.key(scope, identifier)]; ok {
		bucket.violations = 0
	}
}

// RetryAfter returns the seconds until the next attempt under the key may
// proceed, or zero when attempts are currently allowed.
func (s *RateLimitService) RetryAfter(scope models.RateLimitScope, identifier string) int {
	if err := s.Allow(scope, identifier); err != nil {
		return appErrors.FromError(err).RetryAfter
	}
	return 0
}

func (s *RateLimitService) limit(scope models.RateLimitScope) int {
	if max, ok := s.limits[scope]; ok {
		return max
	}
	return 5
}

func (s *RateLimitService) backoff(violations int) time.Duration {
	d := s.cfg.BackoffBase
	for i := 1; i < violations; i++ {
		d *= 2
		if d >= s.cfg.BackoffCap {
			return s.cfg.BackoffCap
		}
	}
	if d > s.cfg.BackoffCap {
		return s.cfg.BackoffCap
	}
	return d
}

func (s *RateLimitService) key(scope models.RateLimitScope, identifier string) string {
	return string(scope) + "|" + identifier
}

func (s *RateLimitService) shard(scope models.RateLimitScope, identifier string) *rateShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s.key(scope, identifier)))
	return s.shards[h.Sum32()%rateLimitShards]
}

func remainingSeconds(until, now time.Time) int {
	secs := int(until.Sub(now).Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}
