package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/user/seller-collector/internal/domain"
)

// RedisKV stores sealed session records in Redis, one key per service. It
// satisfies the session store's KV backend interface.
type RedisKV struct {
	client *redis.Client
}

func NewRedisKV(addr string) *RedisKV {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisKV{client: rdb}
}

func (s *RedisKV) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func key(serviceID string) string {
	return fmt.Sprintf("session:%s", serviceID)
}

func (s *RedisKV) Get(ctx context.Context, serviceID string) ([]byte, error) {
	val, err := s.client.Get(ctx, key(serviceID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNoSession
		}
		return nil, err
	}
	return val, nil
}

func (s *RedisKV) Set(ctx context.Context, serviceID string, value []byte) error {
	return s.client.Set(ctx, key(serviceID), value, 0).Err()
}

func (s *RedisKV) Delete(ctx context.Context, serviceID string) error {
	return s.client.Del(ctx, key(serviceID)).Err()
}
