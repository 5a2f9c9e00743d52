package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultMFAMaxAttempts = 3
	defaultMFAWindow      = 5 * time.Minute
)

var (
	ErrMFARateLimited = errors.New("mfa rate limited")
	ErrMFAUnavailable = errors.New("mfa limiter unavailable")
)

// MFALimiterConfig holds configurable thresholds for the MFA attempt limiter.
type MFALimiterConfig struct {
	MaxAttempts int
	Window      time.Duration
}

// MFALimiter is a fixed-window failure throttle keyed by account and method,
// so exhausting TOTP attempts does not consume the email-code budget.
type MFALimiter struct {
	redis       redis.UniversalClient
	maxAttempts int64
	window      time.Duration
}

// NewMFALimiter creates an MFA attempt limiter. Zero-value fields in cfg
// fall back to defaults (3 attempts / 5m).
func NewMFALimiter(redisClient redis.UniversalClient, cfg MFALimiterConfig) *MFALimiter {
	max := cfg.MaxAttempts
	if max <= 0 {
		max = defaultMFAMaxAttempts
	}
	w := cfg.Window
	if w <= 0 {
		w = defaultMFAWindow
	}
	return &MFALimiter{redis: redisClient, maxAttempts: int64(max), window: w}
}

func (l *MFALimiter) key(userID, method string) string {
	return "mfaatt:" + userID + ":" + method
}

// Check returns ErrMFARateLimited with the remaining window when the
// account+method pair has exhausted its attempt budget.
func (l *MFALimiter) Check(ctx context.Context, userID, method string) (time.Duration, error) {
	count, err := l.redis.Get(ctx, l.key(userID, method)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrMFAUnavailable, err)
	}
	if count >= l.maxAttempts {
		return l.retryAfter(ctx, userID, method), ErrMFARateLimited
	}
	return 0, nil
}

// RecordFailure counts one failed attempt. The failure that spends the last
// budgeted attempt still reports its own outcome; only attempts beyond the
// budget come back ErrMFARateLimited.
func (l *MFALimiter) RecordFailure(ctx context.Context, userID, method string) (time.Duration, error) {
	key := l.key(userID, method)
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMFAUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrMFAUnavailable, err)
		}
	}
	if count > l.maxAttempts {
		return l.retryAfter(ctx, userID, method), ErrMFARateLimited
	}
	return 0, nil
}

func (l *MFALimiter) Reset(ctx context.Context, userID, method string) error {
	if err := l.redis.Del(ctx, l.key(userID, method)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrMFAUnavailable, err)
	}
	return nil
}

func (l *MFALimiter) retryAfter(ctx context.Context, userID, method string) time.Duration {
	pttl, err := l.redis.PTTL(ctx, l.key(userID, method)).Result()
	if err != nil || pttl <= 0 {
		return l.window
	}
	return pttl
}
