// Package redisstore provides a Redis-backed sessionstore.Store. Records are
// plain string keys with a server-side TTL, so abandoned sessions expire
// without any process having to own their cleanup.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/ggoodman/mcp-sse-relay/sessionstore"
	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"
)

// Config for the Redis-backed Store. Defaults can be loaded via envdecode.
type Config struct {
	// RedisURL like "redis://localhost:6379". A "rediss://" scheme enables
	// TLS. Required; a store without a reachable backend is a fatal
	// misconfiguration. ENV: REDIS_URL
	RedisURL string `env:"REDIS_URL,required"`
	// KeyPrefix for all liveness records. ENV: SESSION_KEY_PREFIX
	KeyPrefix string `env:"SESSION_KEY_PREFIX,default=mcp_session:"`
	// TTLSeconds is the default record lifetime. ENV: SESSION_TTL_SECONDS
	TTLSeconds int `env:"SESSION_TTL_SECONDS,default=3600"`
}

// TTL returns the configured default record lifetime.
func (c Config) TTL() time.Duration {
	if c.TTLSeconds <= 0 {
		return sessionstore.DefaultTTL
	}
	return time.Duration(c.TTLSeconds) * time.Second
}

// Store implements sessionstore.Store on a Redis client.
type Store struct {
	client    *redis.Client
	keyPrefix string
}

// New connects to Redis per cfg and verifies the connection with a ping.
// TLS is inferred from the URL scheme by redis.ParseURL.
func New(cfg Config) (*Store, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis url is required")
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	cl := redis.NewClient(opts)
	if err := cl.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "mcp_session:"
	}
	return &Store{client: cl, keyPrefix: prefix}, nil
}

// NewFromEnv builds a Store from the environment. A missing REDIS_URL is an
// error so that misconfigured deployments fail at startup rather than at
// the first call.
func NewFromEnv() (*Store, error) {
	var cfg Config
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return nil, fmt.Errorf("decode redis store config: %w", err)
	}
	return New(cfg)
}

// NewWithClient wraps an existing Redis client. Used by tests and callers
// that manage their own client lifecycle.
func NewWithClient(client *redis.Client, keyPrefix string) *Store {
	if keyPrefix == "" {
		keyPrefix = "mcp_session:"
	}
	return &Store{client: client, keyPrefix: keyPrefix}
}

func (s *Store) key(id string) string { return s.keyPrefix + id }

func (s *Store) Put(ctx context.Context, id string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = sessionstore.DefaultTTL
	}
	if err := s.client.Set(ctx, s.key(id), "1", ttl).Err(); err != nil {
		return fmt.Errorf("put session %s: %w", id, err)
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("check session %s: %w", id, err)
	}
	return n == 1, nil
}

func (s *Store) Refresh(ctx context.Context, id string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = sessionstore.DefaultTTL
	}
	// EXPIRE on a missing key is a no-op returning false; a record that
	// expired between the caller's existence check and now is acceptable.
	if err := s.client.Expire(ctx, s.key(id), ttl).Err(); err != nil {
		return fmt.Errorf("refresh session %s: %w", id, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	// Teardown paths call this with a possibly canceled request context.
	c := context.WithoutCancel(ctx)
	if err := s.client.Del(c, s.key(id)).Err(); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

func (s *Store) Close() error { return s.client.Close() }

var _ sessionstore.Store = (*Store)(nil)
