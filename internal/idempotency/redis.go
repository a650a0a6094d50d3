package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const pending = "pending"

type RedisStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisStore(client redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Reserve(ctx context.Context, key string) (Result, error) {
	ok, err := s.client.SetNX(ctx, key, pending, s.ttl).Result()
	if err != nil {
		return Result{}, fmt.Errorf("reserving idempotency key: %w", err)
	}
	if ok {
		return Result{Reserved: true}, nil
	}

	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET.
		return s.Reserve(ctx, key)
	}
	if err != nil {
		return Result{}, fmt.Errorf("reading idempotency key: %w", err)
	}
	if val == pending {
		return Result{}, ErrInFlight
	}

	id, err := uuid.Parse(val)
	if err != nil {
		return Result{}, fmt.Errorf("decoding idempotency key: %w", err)
	}
	return Result{MessageID: id}, nil
}

func (s *RedisStore) Complete(ctx context.Context, key string, messageID uuid.UUID) error {
	return s.client.Set(ctx, key, messageID.String(), s.ttl).Err()
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}
