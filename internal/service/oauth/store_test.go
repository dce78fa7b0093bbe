package oauth

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/blogauth/internal/models"
)

func testCode(code string, issuedAt time.Time) models.ExchangeCode {
	return models.ExchangeCode{
		Code:      code,
		Identity:  models.Identity{Provider: "google", ProviderID: "g1"},
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(5 * time.Minute),
	}
}

func setupRedisStore(t *testing.T) (*RedisCodeStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCodeStore(client), mr
}

func TestCodeStores(t *testing.T) {
	stores := map[string]func(t *testing.T) CodeStore{
		"memory": func(t *testing.T) CodeStore { return NewMemoryCodeStore() },
		"redis": func(t *testing.T) CodeStore {
			s, _ := setupRedisStore(t)
			return s
		},
	}

	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			t.Run("put take", func(t *testing.T) {
				s := newStore(t)
				code := testCode("abc", time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC))
				require.NoError(t, s.Put(t.Context(), code))

				got, ok, err := s.Take(t.Context(), "abc")

				require.NoError(t, err)
				require.True(t, ok)
				assert.Equal(t, code.Identity, got.Identity)
				assert.True(t, code.ExpiresAt.Equal(got.ExpiresAt))
			})

			t.Run("take removes", func(t *testing.T) {
				s := newStore(t)
				require.NoError(t, s.Put(t.Context(), testCode("abc", time.Now())))
				_, _, err := s.Take(t.Context(), "abc")
				require.NoError(t, err)

				_, ok, err := s.Take(t.Context(), "abc")

				require.NoError(t, err)
				require.False(t, ok)
			})

			t.Run("take unknown", func(t *testing.T) {
				s := newStore(t)

				_, ok, err := s.Take(t.Context(), "unknown")

				require.NoError(t, err)
				require.False(t, ok)
			})

			t.Run("concurrent take only one wins", func(t *testing.T) {
				s := newStore(t)
				require.NoError(t, s.Put(t.Context(), testCode("abc", time.Now())))

				var wins atomic.Int32
				var wg sync.WaitGroup
				for range 20 {
					wg.Add(1)
					go func() {
						defer wg.Done()
						_, ok, err := s.Take(t.Context(), "abc")
						assert.NoError(t, err)
						if ok {
							wins.Add(1)
						}
					}()
				}
				wg.Wait()

				require.Equal(t, int32(1), wins.Load())
			})
		})
	}
}

func TestMemoryCodeStore_Sweep(t *testing.T) {
	s := NewMemoryCodeStore()
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.Put(t.Context(), testCode("old", now.Add(-10*time.Minute))))
	require.NoError(t, s.Put(t.Context(), testCode("edge", now.Add(-5*time.Minute))))
	require.NoError(t, s.Put(t.Context(), testCode("fresh", now)))

	swept, err := s.Sweep(t.Context(), now)

	require.NoError(t, err)
	require.Equal(t, 1, swept, "only codes past expiry are swept")
	require.Equal(t, 2, s.Len())
	_, ok, _ := s.Take(t.Context(), "old")
	require.False(t, ok)
	_, ok, _ = s.Take(t.Context(), "edge")
	require.True(t, ok, "code expiring exactly now is still valid")
}

func TestRedisCodeStore(t *testing.T) {
	t.Run("key ttl has grace", func(t *testing.T) {
		s, mr := setupRedisStore(t)
		require.NoError(t, s.Put(t.Context(), testCode("abc", time.Now())))

		require.Equal(t, 5*time.Minute+redisExpiryGrace, mr.TTL(redisKeyPrefix+"abc"))
	})

	t.Run("evicted by redis", func(t *testing.T) {
		s, mr := setupRedisStore(t)
		require.NoError(t, s.Put(t.Context(), testCode("abc", time.Now())))

		mr.FastForward(5*time.Minute + redisExpiryGrace + time.Second)

		_, ok, err := s.Take(t.Context(), "abc")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("sweep noop", func(t *testing.T) {
		s, _ := setupRedisStore(t)

		swept, err := s.Sweep(t.Context(), time.Now())

		require.NoError(t, err)
		require.Zero(t, swept)
	})

	t.Run("redis down", func(t *testing.T) {
		s, mr := setupRedisStore(t)
		mr.Close()

		err := s.Put(t.Context(), testCode("abc", time.Now()))
		require.Error(t, err)

		_, _, err = s.Take(t.Context(), "abc")
		require.Error(t, err)
	})

	t.Run("garbage value", func(t *testing.T) {
		s, mr := setupRedisStore(t)
		require.NoError(t, mr.Set(redisKeyPrefix+"abc", "not json"))

		_, ok, err := s.Take(t.Context(), "abc")

		require.Error(t, err)
		require.False(t, ok)
	})
}
