package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const RefreshKeyPrefix = "weddingdesk:auth:refresh:"

// RefreshTokenStore is the allow-list of live refresh tokens, keyed by JTI.
// Consume removes the entry in the same step that reads it, so a rotated
// token can be presented successfully only once.
type RefreshTokenStore interface {
	Allow(ctx context.Context, jti, userID string, ttl time.Duration) error
	Consume(ctx context.Context, jti string) (userID string, ok bool, err error)
	Revoke(ctx context.Context, jti string) error
}

type RedisRefreshStore struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisRefreshStore(rdb redis.UniversalClient) *RedisRefreshStore {
	return &RedisRefreshStore{rdb: rdb, prefix: RefreshKeyPrefix}
}

func (s *RedisRefreshStore) Allow(ctx context.Context, jti, userID string, ttl time.Duration) error {
	return s.rdb.Set(ctx, s.prefix+jti, userID, ttl).Err()
}

func (s *RedisRefreshStore) Consume(ctx context.Context, jti string) (string, bool, error) {
	userID, err := s.rdb.GetDel(ctx, s.prefix+jti).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return userID, true, nil
}

func (s *RedisRefreshStore) Revoke(ctx context.Context, jti string) error {
	return s.rdb.Del(ctx, s.prefix+jti).Err()
}

type memoryEntry struct {
	userID  string
	expires time.Time
}

// MemoryRefreshStore keeps the allow-list in process. It serves single-node
// development setups without Redis and tests.
type MemoryRefreshStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryRefreshStore() *MemoryRefreshStore {
	return &MemoryRefreshStore{entries: make(map[string]memoryEntry), now: time.Now}
}

func (s *MemoryRefreshStore) Allow(_ context.Context, jti, userID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[jti] = memoryEntry{userID: userID, expires: s.now().Add(ttl)}
	return nil
}

func (s *MemoryRefreshStore) Consume(_ context.Context, jti string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[jti]
	if !ok {
		return "", false, nil
	}
	delete(s.entries, jti)
	if !s.now().Before(e.expires) {
		return "", false, nil
	}
	return e.userID, true, nil
}

func (s *MemoryRefreshStore) Revoke(_ context.Context, jti string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, jti)
	return nil
}

// Len reports live and expired entries alike.
func (s *MemoryRefreshStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
