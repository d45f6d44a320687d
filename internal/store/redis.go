package store

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisPrefix = "schoolportal:"

// RedisBlobs is the Redis implementation of Blobs.
type RedisBlobs struct {
	rdb *redis.Client
}

var _ Blobs = (*RedisBlobs)(nil)

// NewRedis connects to the Redis server at url and verifies the connection.
func NewRedis(ctx context.Context, url string) (*RedisBlobs, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected", "addr", opt.Addr, "db", opt.DB)
	return &RedisBlobs{rdb: rdb}, nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(rdb *redis.Client) *RedisBlobs {
	return &RedisBlobs{rdb: rdb}
}

func (r *RedisBlobs) Close() error {
	return r.rdb.Close()
}

// Put stores value with a TTL matching expiresAt. Values that are already
// expired are not stored.
func (r *RedisBlobs) Put(ctx context.Context, id string, value []byte, expiresAt time.Time) error {
	var ttl time.Duration
	if !expiresAt.IsZero() {
		ttl = time.Until(expiresAt)
		if ttl <= 0 {
			return r.Delete(ctx, id)
		}
	}
	return r.rdb.Set(ctx, redisPrefix+"blob:"+id, value, ttl).Err()
}

func (r *RedisBlobs) Get(ctx context.Context, id string) ([]byte, error) {
	v, err := r.rdb.Get(ctx, redisPrefix+"blob:"+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return v, err
}

func (r *RedisBlobs) Delete(ctx context.Context, id string) error {
	return r.rdb.Del(ctx, redisPrefix+"blob:"+id).Err()
}

// Salt returns the shared key-derivation salt. The first portal to start
// creates it; SETNX keeps later ones from overwriting it.
func (r *RedisBlobs) Salt(ctx context.Context) ([]byte, error) {
	key := redisPrefix + "kdf_salt"
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	if err := r.rdb.SetNX(ctx, key, salt, 0).Err(); err != nil {
		return nil, err
	}
	return r.rdb.Get(ctx, key).Bytes()
}
