package embcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/rueidis"
)

// ErrKeyNotFound signals a cache miss.
var ErrKeyNotFound = errors.New("key not found")

// KV is the consumer interface for the embedding cache store.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// RedisKV is a rueidis-backed key-value store with a fixed TTL.
type RedisKV struct {
	client rueidis.Client
	ttl    time.Duration
}

// NewRedisKV connects to Redis for embedding caching.
func NewRedisKV(addrs []string, password string, ttl time.Duration) (*RedisKV, error) {
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: addrs,
		Password:    password,
	})
	if err != nil {
		return nil, fmt.Errorf("create redis client: %w", err)
	}
	return &RedisKV{client: client, ttl: ttl}, nil
}

// Get returns the cached value or ErrKeyNotFound.
func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	resp := r.client.Do(ctx, r.client.B().Get().Key(key).Build())
	if err := resp.Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	data, err := resp.AsBytes()
	if err != nil {
		return nil, fmt.Errorf("redis get bytes: %w", err)
	}
	return data, nil
}

// Set stores a value under the configured TTL.
func (r *RedisKV) Set(ctx context.Context, key string, value []byte) error {
	cmd := r.client.B().Set().Key(key).Value(rueidis.BinaryString(value))
	var built rueidis.Completed
	if r.ttl > 0 {
		built = cmd.Ex(r.ttl).Build()
	} else {
		built = cmd.Build()
	}
	if err := r.client.Do(ctx, built).Error(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (r *RedisKV) Close() {
	r.client.Close()
}
