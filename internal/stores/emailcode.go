package stores

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrEmailCodeNotFound = errors.New("email code not found")
	ErrEmailCodeMismatch = errors.New("email code mismatch")
	ErrEmailCodeBackend  = errors.New("email code backend unavailable")
)

// Comparison and deletion happen in one script so a concurrent request
// cannot observe the code between a successful GET and the DEL.
const consumeEmailCodeScript = `
local key = KEYS[1]
local expected = ARGV[1]

local stored = redis.call("GET", key)
if not stored then
  return 0
end
if stored ~= expected then
  return 1
end
redis.call("DEL", key)
return 2
`

var consumeEmailCodeLua = redis.NewScript(consumeEmailCodeScript)

// EmailCodeStore holds the hash of the most recently issued email one-time
// code per account. There is at most one live code per account; issuing a
// new one supersedes the previous one.
type EmailCodeStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewEmailCodeStore(redisClient redis.UniversalClient) *EmailCodeStore {
	return NewOneTimeCodeStore(redisClient, "ecode")
}

// NewOneTimeCodeStore creates a code store under its own key prefix, so
// login, address-verification, and reset codes cannot redeem one another.
func NewOneTimeCodeStore(redisClient redis.UniversalClient, prefix string) *EmailCodeStore {
	return &EmailCodeStore{redis: redisClient, prefix: prefix}
}

func (s *EmailCodeStore) key(userID string) string {
	return s.prefix + ":" + userID
}

// Issue stores the hash of a freshly generated code, overwriting any code
// issued earlier for the same account.
func (s *EmailCodeStore) Issue(ctx context.Context, userID, code string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.key(userID), hashEmailCode(userID, code), ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrEmailCodeBackend, err)
	}
	return nil
}

// Consume validates the submitted code against the stored hash and deletes
// it on match. The code is single-use either way: a match burns it, and a
// mismatch leaves it in place for the remaining attempts budget.
func (s *EmailCodeStore) Consume(ctx context.Context, userID, code string) error {
	result, err := consumeEmailCodeLua.Run(
		ctx,
		s.redis,
		[]string{s.key(userID)},
		hashEmailCode(userID, code),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEmailCodeBackend, err)
	}

	switch result {
	case 0:
		return ErrEmailCodeNotFound
	case 1:
		return ErrEmailCodeMismatch
	case 2:
		return nil
	default:
		return fmt.Errorf("%w: invalid consume script response", ErrEmailCodeBackend)
	}
}

// Clear removes any outstanding code for the account.
func (s *EmailCodeStore) Clear(ctx context.Context, userID string) error {
	if err := s.redis.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrEmailCodeBackend, err)
	}
	return nil
}

func hashEmailCode(userID, code string) string {
	sum := sha256.Sum256([]byte(userID + ":" + code))
	return hex.EncodeToString(sum[:])
}
