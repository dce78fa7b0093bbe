package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nkiryanov/blogauth/internal/models"
)

// Storage of issued exchange codes
// Take has to be atomic per code: of concurrent takes only one gets the code
type CodeStore interface {
	Put(ctx context.Context, code models.ExchangeCode) error

	// Remove and return the code, ok is false if it is absent
	Take(ctx context.Context, code string) (c models.ExchangeCode, ok bool, err error)

	// Remove codes expired at 'now', return how many were removed
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// Process local code store
// Codes issued by one instance can't be redeemed by another, use RedisCodeStore then
type MemoryCodeStore struct {
	codes sync.Map // string -> models.ExchangeCode
}

func NewMemoryCodeStore() *MemoryCodeStore {
	return &MemoryCodeStore{}
}

func (s *MemoryCodeStore) Put(_ context.Context, code models.ExchangeCode) error {
	s.codes.Store(code.Code, code)
	return nil
}

func (s *MemoryCodeStore) Take(_ context.Context, code string) (models.ExchangeCode, bool, error) {
	v, ok := s.codes.LoadAndDelete(code)
	if !ok {
		return models.ExchangeCode{}, false, nil
	}
	return v.(models.ExchangeCode), true, nil
}

func (s *MemoryCodeStore) Sweep(_ context.Context, now time.Time) (int, error) {
	swept := 0
	s.codes.Range(func(key, value any) bool {
		if value.(models.ExchangeCode).ExpiredAt(now) && s.codes.CompareAndDelete(key, value) {
			swept++
		}
		return true
	})
	return swept, nil
}

// Len counts stored codes, expired but not swept ones included
func (s *MemoryCodeStore) Len() int {
	n := 0
	s.codes.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

const (
	redisKeyPrefix = "blogauth:exchange:"

	// Keys outlive codes a bit so late redemption is reported as expired, not as unknown
	redisExpiryGrace = time.Minute
)

// Code store shared by all instances
// Redis evicts expired keys by itself so Sweep is a noop
type RedisCodeStore struct {
	client redis.Cmdable
}

func NewRedisCodeStore(client redis.Cmdable) *RedisCodeStore {
	return &RedisCodeStore{client: client}
}

func (s *RedisCodeStore) Put(ctx context.Context, code models.ExchangeCode) error {
	data, err := json.Marshal(code)
	if err != nil {
		return fmt.Errorf("marshal code: %w", err)
	}

	ttl := code.ExpiresAt.Sub(code.IssuedAt) + redisExpiryGrace
	if err := s.client.Set(ctx, redisKeyPrefix+code.Code, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

func (s *RedisCodeStore) Take(ctx context.Context, code string) (models.ExchangeCode, bool, error) {
	var c models.ExchangeCode

	data, err := s.client.GetDel(ctx, redisKeyPrefix+code).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return c, false, nil
	case err != nil:
		return c, false, fmt.Errorf("redis getdel: %w", err)
	}

	if err := json.Unmarshal(data, &c); err != nil {
		return c, false, fmt.Errorf("unmarshal code: %w", err)
	}

	return c, true, nil
}

func (s *RedisCodeStore) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}
