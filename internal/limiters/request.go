package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRequestMaxAttempts = 3
	defaultRequestWindow      = 15 * time.Minute
)

var (
	ErrRequestRateLimited = errors.New("request rate limited")
	ErrRequestUnavailable = errors.New("request limiter unavailable")
)

// RequestLimiterConfig holds configurable thresholds for code-request
// operations.
type RequestLimiterConfig struct {
	MaxAttempts int
	Window      time.Duration
}

// RequestLimiter throttles notifier-backed code requests per subject and per
// client IP. Each instance lives under its own key prefix so verification
// and reset requests keep separate budgets.
type RequestLimiter struct {
	redis       redis.UniversalClient
	prefix      string
	maxAttempts int64
	window      time.Duration
}

// NewRequestLimiter creates a request limiter. Zero-value fields in cfg fall
// back to defaults (3 requests / 15m).
func NewRequestLimiter(redisClient redis.UniversalClient, prefix string, cfg RequestLimiterConfig) *RequestLimiter {
	max := cfg.MaxAttempts
	if max <= 0 {
		max = defaultRequestMaxAttempts
	}
	w := cfg.Window
	if w <= 0 {
		w = defaultRequestWindow
	}
	return &RequestLimiter{redis: redisClient, prefix: prefix, maxAttempts: int64(max), window: w}
}

func (l *RequestLimiter) ipKey(ip string) string {
	return l.prefix + ":ip:" + ip
}

func (l *RequestLimiter) subjectKey(subject string) string {
	return l.prefix + ":sub:" + subject
}

// Enforce counts this request against both windows and returns
// ErrRequestRateLimited when either is exhausted. Requests for unknown
// subjects burn budget too, so the limiter cannot be used as an oracle.
func (l *RequestLimiter) Enforce(ctx context.Context, subject, ip string) error {
	if ip != "" {
		if err := l.incrementWithTTL(ctx, l.ipKey(ip)); err != nil {
			return err
		}
	}
	if subject != "" {
		if err := l.incrementWithTTL(ctx, l.subjectKey(subject)); err != nil {
			return err
		}
	}
	return nil
}

func (l *RequestLimiter) incrementWithTTL(ctx context.Context, key string) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequestUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRequestUnavailable, err)
		}
	}
	if count > l.maxAttempts {
		return ErrRequestRateLimited
	}
	return nil
}
