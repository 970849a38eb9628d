// Package redis keeps idempotency-key state for order placement in Redis.
package redis

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/bazaar/internal/domain/order"
)

// DefaultTTL bounds how long a key claim and its result are kept.
const DefaultTTL = 24 * time.Hour

var _ order.IdempotencyStore = (*IdempotencyStore)(nil)

// IdempotencyStore implements order.IdempotencyStore with SET NX claims and
// plain string results, both under a TTL.
type IdempotencyStore struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

// NewIdempotencyStore returns a store on rdb. A non-positive ttl means
// DefaultTTL.
func NewIdempotencyStore(rdb redis.UniversalClient, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &IdempotencyStore{rdb: rdb, ttl: ttl}
}

func lockKey(scope, key string) string   { return "idemp:lock:" + scope + ":" + key }
func resultKey(scope, key string) string { return "idemp:order:" + scope + ":" + key }

func (s *IdempotencyStore) TryLock(ctx context.Context, scope, key string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, lockKey(scope, key), "1", s.ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "setnx")
	}
	return ok, nil
}

func (s *IdempotencyStore) Release(ctx context.Context, scope, key string) error {
	if err := s.rdb.Del(ctx, lockKey(scope, key)).Err(); err != nil {
		return errors.Wrap(err, "del")
	}
	return nil
}

func (s *IdempotencyStore) Remember(ctx context.Context, scope, key, orderID string) error {
	if err := s.rdb.Set(ctx, resultKey(scope, key), orderID, s.ttl).Err(); err != nil {
		return errors.Wrap(err, "set")
	}
	return nil
}

func (s *IdempotencyStore) Recall(ctx context.Context, scope, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, resultKey(scope, key)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return "", false, nil
	case err != nil:
		return "", false, errors.Wrap(err, "get")
	}
	return v, true, nil
}

// Ping checks connectivity for readiness probes.
func (s *IdempotencyStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
