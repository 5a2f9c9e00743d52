package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultMaxFailures   = 5
	defaultFailureWindow = 15 * time.Minute
	defaultLockDuration  = 15 * time.Minute
	defaultHistoryLimit  = 256
	defaultHistoryTTL    = 30 * 24 * time.Hour
)

// ErrLedgerUnavailable is an exported constant or variable used by the authentication engine.
var ErrLedgerUnavailable = errors.New("attempt ledger unavailable")

// The failure counter and the lock mark are updated in one script so two
// concurrent racing failures cannot both observe count == max-1 and neither
// set the lock.
const recordFailureScript = `
local fail_key = KEYS[1]
local lock_key = KEYS[2]
local max = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local lock_ms = tonumber(ARGV[3])

local count = redis.call("INCR", fail_key)
if count == 1 then
  redis.call("PEXPIRE", fail_key, window_ms)
end
if count >= max then
  redis.call("SET", lock_key, "1", "PX", lock_ms)
  redis.call("DEL", fail_key)
  return {1, lock_ms}
end
return {0, count}
`

var recordFailureLua = redis.NewScript(recordFailureScript)

// Config defines the lockout policy thresholds. Zero-value fields fall back
// to defaults (5 failures in 15m locks for 15m; 256 history entries, 30d).
type Config struct {
	MaxFailures   int
	FailureWindow time.Duration
	LockDuration  time.Duration
	HistoryLimit  int
	HistoryTTL    time.Duration
}

// Entry is one append-only attempt record. The history is observational;
// the counters are what lockout decisions read.
type Entry struct {
	At      int64
	Method  string
	Success bool
	IP      string
}

// Ledger tracks authentication attempts per account: an append-only history
// list plus the transactional failure counter and lock mark that drive
// lockout decisions.
type Ledger struct {
	redis         redis.UniversalClient
	maxFailures   int
	failureWindow time.Duration
	lockDuration  time.Duration
	historyLimit  int64
	historyTTL    time.Duration
}

// New creates a [Ledger] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Ledger {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = defaultMaxFailures
	}
	if cfg.FailureWindow <= 0 {
		cfg.FailureWindow = defaultFailureWindow
	}
	if cfg.LockDuration <= 0 {
		cfg.LockDuration = defaultLockDuration
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	if cfg.HistoryTTL <= 0 {
		cfg.HistoryTTL = defaultHistoryTTL
	}
	return &Ledger{
		redis:         redisClient,
		maxFailures:   cfg.MaxFailures,
		failureWindow: cfg.FailureWindow,
		lockDuration:  cfg.LockDuration,
		historyLimit:  int64(cfg.HistoryLimit),
		historyTTL:    cfg.HistoryTTL,
	}
}

func (l *Ledger) failKey(userID string) string {
	return "lfail:" + userID
}

func (l *Ledger) lockKey(userID string) string {
	return "lock:" + userID
}

func (l *Ledger) historyKey(userID string) string {
	return "attempts:" + userID
}

// IsLocked returns the remaining lock duration, or zero when not locked.
func (l *Ledger) IsLocked(ctx context.Context, userID string) (time.Duration, error) {
	pttl, err := l.redis.PTTL(ctx, l.lockKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	if pttl <= 0 {
		return 0, nil
	}
	return pttl, nil
}

// RecordFailure atomically increments the failure counter and, when the
// threshold is reached, sets the lock mark in the same script call. Returns
// whether the account is now locked and, if so, for how long.
func (l *Ledger) RecordFailure(ctx context.Context, userID string) (bool, time.Duration, error) {
	result, err := recordFailureLua.Run(
		ctx,
		l.redis,
		[]string{l.failKey(userID), l.lockKey(userID)},
		l.maxFailures,
		l.failureWindow.Milliseconds(),
		l.lockDuration.Milliseconds(),
	).Result()
	if err != nil {
		return false, 0, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) != 2 {
		return false, 0, fmt.Errorf("%w: invalid lockout script response", ErrLedgerUnavailable)
	}
	locked, ok := parts[0].(int64)
	if !ok {
		return false, 0, fmt.Errorf("%w: invalid lockout script status", ErrLedgerUnavailable)
	}
	if locked == 1 {
		lockMS, _ := parts[1].(int64)
		return true, time.Duration(lockMS) * time.Millisecond, nil
	}
	return false, 0, nil
}

// Reset clears the failure counter after a successful credential check.
// An active lock is never cleared here; it expires on its own.
func (l *Ledger) Reset(ctx context.Context, userID string) error {
	if err := l.redis.Del(ctx, l.failKey(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return nil
}

// Append records one attempt in the append-only history list. History is
// trimmed to the configured limit and never edited in the online path.
func (l *Ledger) Append(ctx context.Context, userID string, entry Entry) error {
	if entry.At == 0 {
		entry.At = time.Now().Unix()
	}
	key := l.historyKey(userID)

	_, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, encodeEntry(entry))
		pipe.LTrim(ctx, key, 0, l.historyLimit-1)
		pipe.Expire(ctx, key, l.historyTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return nil
}

// History returns up to n most-recent attempt entries, newest first.
func (l *Ledger) History(ctx context.Context, userID string, n int64) ([]Entry, error) {
	if n <= 0 {
		n = l.historyLimit
	}

	raw, err := l.redis.LRange(ctx, l.historyKey(userID), 0, n-1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}

	entries := make([]Entry, 0, len(raw))
	for _, line := range raw {
		entry, ok := decodeEntry(line)
		if !ok {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func encodeEntry(e Entry) string {
	ok := "0"
	if e.Success {
		ok = "1"
	}
	return strconv.FormatInt(e.At, 10) + "|" + e.Method + "|" + ok + "|" + e.IP
}

func decodeEntry(line string) (Entry, bool) {
	parts := strings.SplitN(line, "|", 4)
	if len(parts) != 4 {
		return Entry{}, false
	}
	at, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Entry{}, false
	}
	return Entry{
		At:      at,
		Method:  parts[1],
		Success: parts[2] == "1",
		IP:      parts[3],
	}, true
}
