// Package cache provides the shared TTL key/value store backing token
// blacklisting and distributed rate-limit counters. All service processes
// share one Redis instance, so blacklist entries and counters are visible
// across the fleet.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const blacklistPrefix = "blacklist:"

// Config holds Redis connection configuration.
type Config struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns a Config with local defaults and bounded timeouts.
func DefaultConfig() *Config {
	return &Config{
		Addr:         "localhost:6379",
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// clientInterface abstracts the Redis operations the store actually uses.
type clientInterface interface {
	setEx(ctx context.Context, key, value string, ttl time.Duration) error
	exists(ctx context.Context, key string) (bool, error)
	incr(ctx context.Context, key string) (int64, error)
	expire(ctx context.Context, key string, ttl time.Duration) error
	ttl(ctx context.Context, key string) (time.Duration, error)
	ping(ctx context.Context) error
	close() error
}

// Store implements jti blacklisting and windowed counters over Redis.
//
// Errors are always surfaced to the caller; the store never substitutes a
// default on a failed read. Whether to fail open or closed is the caller's
// decision (blacklist checks fail closed, rate-limit checks fail open).
type Store struct {
	client clientInterface
}

// NewStore connects to Redis and verifies the connection with a ping.
func NewStore(cfg *Config) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: connect to redis at %s: %w", cfg.Addr, err)
	}

	return &Store{client: &redisClientWrapper{client: client}}, nil
}

// BlacklistToken marks jti as revoked for ttl. The TTL should equal the
// remaining validity of the token; after that the entry is redundant and
// expires on its own. A non-positive ttl is a no-op.
func (s *Store) BlacklistToken(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := s.client.setEx(ctx, blacklistPrefix+jti, "1", ttl); err != nil {
		return fmt.Errorf("cache: blacklist token: %w", err)
	}
	return nil
}

// IsTokenBlacklisted reports whether jti has been revoked before its natural
// expiry. On store failure the error is returned and the bool is meaningless.
func (s *Store) IsTokenBlacklisted(ctx context.Context, jti string) (bool, error) {
	found, err := s.client.exists(ctx, blacklistPrefix+jti)
	if err != nil {
		return false, fmt.Errorf("cache: blacklist check: %w", err)
	}
	return found, nil
}

// IncrementCounter atomically increments the counter at key and returns the
// new count. The first increment in a window starts the window by setting the
// key's TTL; later increments leave the TTL untouched so the window does not
// slide.
func (s *Store) IncrementCounter(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := s.client.incr(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("cache: increment %s: %w", key, err)
	}
	if count == 1 {
		if err := s.client.expire(ctx, key, window); err != nil {
			return count, fmt.Errorf("cache: set window on %s: %w", key, err)
		}
	}
	return count, nil
}

// RemainingTTL returns the time until key expires, or 0 if the key is absent
// or has no expiry.
func (s *Store) RemainingTTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := s.client.ttl(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("cache: ttl %s: %w", key, err)
	}
	if d < 0 {
		return 0, nil
	}
	return d, nil
}

// Ping verifies the Redis connection; used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.ping(ctx)
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.client.close()
}

// redisClientWrapper adapts redis.Client to clientInterface.
type redisClientWrapper struct {
	client *redis.Client
}

func (r *redisClientWrapper) setEx(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.SetEx(ctx, key, value, ttl).Err()
}

func (r *redisClientWrapper) exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *redisClientWrapper) incr(ctx context.Context, key string) (int64, error) {
	return r.client.Incr(ctx, key).Result()
}

func (r *redisClientWrapper) expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.client.Expire(ctx, key, ttl).Err()
}

func (r *redisClientWrapper) ttl(ctx context.Context, key string) (time.Duration, error) {
	return r.client.TTL(ctx, key).Result()
}

func (r *redisClientWrapper) ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *redisClientWrapper) close() error {
	return r.client.Close()
}
