package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const idempotencyKeyPrefix = "payments:idem:"

// IdempotencyStore remembers which idempotency key produced which intent,
// so a retried create or refund returns the original result instead of
// charging twice.
type IdempotencyStore interface {
	// Reserve claims a key with the given value. It returns the value
	// already stored under the key and false when the key was claimed
	// earlier, or the given value and true when this call claimed it.
	Reserve(ctx context.Context, key, value string) (string, bool, error)
	// Store overwrites the value under a claimed key.
	Store(ctx context.Context, key, value string) error
	Release(ctx context.Context, key string) error
}

type idempotencyStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewIdempotencyStore creates a Redis-backed idempotency store.
func NewIdempotencyStore(client redis.UniversalClient, ttl time.Duration) IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &idempotencyStore{client: client, ttl: ttl}
}

func (s *idempotencyStore) Reserve(ctx context.Context, key, value string) (string, bool, error) {
	redisKey := idempotencyKeyPrefix + key

	claimed, err := s.client.SetNX(ctx, redisKey, value, s.ttl).Result()
	if err != nil {
		return "", false, err
	}
	if claimed {
		return value, true, nil
	}

	existing, err := s.client.Get(ctx, redisKey).Result()
	if err != nil {
		if err == redis.Nil {
			// Key expired between SetNX and Get; treat as fresh.
			return value, true, s.client.Set(ctx, redisKey, value, s.ttl).Err()
		}
		return "", false, err
	}
	return existing, false, nil
}

func (s *idempotencyStore) Store(ctx context.Context, key, value string) error {
	return s.client.Set(ctx, idempotencyKeyPrefix+key, value, s.ttl).Err()
}

func (s *idempotencyStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, idempotencyKeyPrefix+key).Err()
}

// Compile-time check
var _ IdempotencyStore = (*idempotencyStore)(nil)
