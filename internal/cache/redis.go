package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"
)

// Redis stores gob-encoded entries in a redis instance shared between runs.
type Redis struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type RedisOption func(*Redis)

// WithTTL sets the expiration of cached entries; 0 keeps them forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) { r.ttl = ttl }
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) { r.prefix = prefix }
}

// NewRedis connects to address.
func NewRedis(address, password string, db int, opts ...RedisOption) *Redis {
	return NewRedisFromClient(backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	}), opts...)
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *backend.Client, opts ...RedisOption) *Redis {
	r := &Redis{client: client, prefix: "benchml:precompute:"}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Get(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, backend.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis get: %w", err)
	}
	e, err := Decode(raw)
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis decode %s: %w", key, err)
	}
	return e, true, nil
}

func (r *Redis) Put(ctx context.Context, key string, e Entry) error {
	raw, err := Encode(e)
	if err != nil {
		return fmt.Errorf("redis encode %s: %w", key, err)
	}
	if err := r.client.Set(ctx, r.prefix+key, raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *Redis) Close() error { return r.client.Close() }
