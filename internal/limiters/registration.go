package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRegistrationMaxAttempts = 5
	defaultRegistrationCooldown    = 15 * time.Minute
)

var (
	ErrRegistrationRateLimited = errors.New("registration rate limited")
	ErrRegistrationUnavailable = errors.New("registration limiter unavailable")
)

// RegistrationLimiterConfig holds configurable thresholds for account creation.
type RegistrationLimiterConfig struct {
	MaxAttempts int
	Cooldown    time.Duration
}

// RegistrationLimiter throttles account creation per client IP and per
// normalized email, to slow both mass sign-up and duplicate-email probing.
type RegistrationLimiter struct {
	redis       redis.UniversalClient
	maxAttempts int64
	cooldown    time.Duration
}

// NewRegistrationLimiter creates a registration limiter. Zero-value fields
// in cfg fall back to defaults (5 attempts / 15m).
func NewRegistrationLimiter(redisClient redis.UniversalClient, cfg RegistrationLimiterConfig) *RegistrationLimiter {
	max := cfg.MaxAttempts
	if max <= 0 {
		max = defaultRegistrationMaxAttempts
	}
	cd := cfg.Cooldown
	if cd <= 0 {
		cd = defaultRegistrationCooldown
	}
	return &RegistrationLimiter{redis: redisClient, maxAttempts: int64(max), cooldown: cd}
}

func (l *RegistrationLimiter) ipKey(ip string) string {
	return "reg:ip:" + ip
}

func (l *RegistrationLimiter) emailKey(email string) string {
	return "reg:em:" + email
}

// Enforce counts this attempt against both windows and returns
// ErrRegistrationRateLimited when either is exhausted. Counting before the
// outcome is deliberate: failed creations burn budget too.
func (l *RegistrationLimiter) Enforce(ctx context.Context, email, ip string) error {
	if ip != "" {
		if err := l.incrementWithTTL(ctx, l.ipKey(ip)); err != nil {
			return err
		}
	}
	if email != "" {
		if err := l.incrementWithTTL(ctx, l.emailKey(email)); err != nil {
			return err
		}
	}
	return nil
}

func (l *RegistrationLimiter) incrementWithTTL(ctx context.Context, key string) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRegistrationUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.cooldown).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRegistrationUnavailable, err)
		}
	}
	if count > l.maxAttempts {
		return ErrRegistrationRateLimited
	}
	return nil
}
