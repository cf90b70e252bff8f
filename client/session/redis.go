package session

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisPrefix = "weddingdesk:session:"

// RedisBackend shares one session between dashboard processes. The three
// entries live under prefix+name and are written in a MULTI/EXEC block.
type RedisBackend struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisBackend stores entries under prefix. ttl of zero keeps them until
// cleared.
func NewRedisBackend(rdb redis.UniversalClient, prefix string, ttl time.Duration) *RedisBackend {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisBackend{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (b *RedisBackend) keys() []string {
	return []string{b.prefix + keyAccessToken, b.prefix + keyRefreshToken, b.prefix + keyUser}
}

func (b *RedisBackend) Load(ctx context.Context) (Entries, error) {
	vals, err := b.rdb.MGet(ctx, b.keys()...).Result()
	if err != nil {
		return Entries{}, err
	}
	str := func(v any) string {
		s, _ := v.(string)
		return s
	}
	return Entries{
		AccessToken:  str(vals[0]),
		RefreshToken: str(vals[1]),
		User:         str(vals[2]),
	}, nil
}

func (b *RedisBackend) Store(ctx context.Context, e Entries) error {
	k := b.keys()
	_, err := b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, k[0], e.AccessToken, b.ttl)
		pipe.Set(ctx, k[1], e.RefreshToken, b.ttl)
		if e.User == "" {
			pipe.Del(ctx, k[2])
		} else {
			pipe.Set(ctx, k[2], e.User, b.ttl)
		}
		return nil
	})
	return err
}

func (b *RedisBackend) Clear(ctx context.Context) error {
	return b.rdb.Del(ctx, b.keys()...).Err()
}
