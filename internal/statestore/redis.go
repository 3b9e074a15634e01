package statestore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/smallbiznis/cartloop/internal/config"
)

// RedisSessionStore keeps each visitor session as a Redis hash. The hash TTL
// is refreshed on every write so active carts never expire mid-checkout.
type RedisSessionStore struct {
	rdb    *redis.Client
	holder *config.RuntimeHolder
	log    *zap.Logger
}

func NewRedisSessionStore(rdb *redis.Client, holder *config.RuntimeHolder, log *zap.Logger) *RedisSessionStore {
	return &RedisSessionStore{
		rdb:    rdb,
		holder: holder,
		log:    log.Named("statestore.session"),
	}
}

func (s *RedisSessionStore) key(sessionID string) string {
	return fmt.Sprintf("cartloop:session:%s", sessionID)
}

func (s *RedisSessionStore) ttl() time.Duration {
	minutes := s.holder.Current().SessionTTLMinutes
	if minutes <= 0 {
		minutes = 24 * 60
	}
	return time.Duration(minutes) * time.Minute
}

func (s *RedisSessionStore) Get(ctx context.Context, sessionID, key string) (string, error) {
	val, err := s.rdb.HGet(ctx, s.key(sessionID), key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("session get %s: %w", key, err)
	}
	return val, nil
}

func (s *RedisSessionStore) Set(ctx context.Context, sessionID, key, value string) error {
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, s.key(sessionID), key, value)
	pipe.Expire(ctx, s.key(sessionID), s.ttl())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session set %s: %w", key, err)
	}
	return nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, sessionID string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.rdb.HDel(ctx, s.key(sessionID), keys...).Err(); err != nil {
		return fmt.Errorf("session delete: %w", err)
	}
	return nil
}

var _ SessionStore = (*RedisSessionStore)(nil)
