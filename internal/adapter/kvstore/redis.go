package kvstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ahmetbombaplant-boop/instagramposts222/internal/domain"
)

// Redis implements domain.Store with plain string keys and lists. The caller
// owns the client lifecycle.
type Redis struct {
	client redis.Cmdable
}

// NewRedis wraps an existing go-redis client.
func NewRedis(client redis.Cmdable) *Redis {
	return &Redis{client: client}
}

func (s *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.Persistence("redis get", err)
	}
	return raw, nil
}

func (s *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return domain.Persistence("redis set", err)
	}
	return nil
}

func (s *Redis) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, domain.Persistence("redis setnx", err)
	}
	return ok, nil
}

func (s *Redis) SetXX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetXX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, domain.Persistence("redis setxx", err)
	}
	return ok, nil
}

func (s *Redis) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return domain.Persistence("redis del", err)
	}
	return nil
}

func (s *Redis) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return domain.Persistence("redis ping", err)
	}
	return nil
}

func (s *Redis) Push(ctx context.Context, queue string, value []byte) error {
	if err := s.client.RPush(ctx, queue, value).Err(); err != nil {
		return domain.Persistence("redis rpush", err)
	}
	return nil
}

// Pop blocks on BLPOP for at most wait. A non-positive wait polls once.
func (s *Redis) Pop(ctx context.Context, queue string, wait time.Duration) ([]byte, error) {
	if wait <= 0 {
		raw, err := s.client.LPop(ctx, queue).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, domain.ErrNotFound
			}
			return nil, domain.Persistence("redis lpop", err)
		}
		return raw, nil
	}
	res, err := s.client.BLPop(ctx, wait, queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, domain.Persistence("redis blpop", err)
	}
	if len(res) < 2 {
		return nil, domain.ErrNotFound
	}
	return []byte(res[1]), nil
}

var _ domain.Store = (*Redis)(nil)
