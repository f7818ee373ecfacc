package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/infrastructure/config"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "settlement:idempotency:"

// RedisIdempotencyCache implements IdempotencyCache using Redis so that
// several instances share replayable command results
type RedisIdempotencyCache struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisClient opens a client and verifies the connection
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewRedisIdempotencyCache creates a cache with an existing Redis client.
// The client is closed by Close.
func NewRedisIdempotencyCache(client *redis.Client, keyPrefix string) *RedisIdempotencyCache {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisIdempotencyCache{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func (c *RedisIdempotencyCache) key(companyID uuid.UUID, key string) string {
	return c.keyPrefix + companyID.String() + ":" + key
}

// Get returns the cached result for the key. A missing key is a miss, not an error.
func (c *RedisIdempotencyCache) Get(ctx context.Context, companyID uuid.UUID, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, c.key(companyID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read idempotency cache: %w", err)
	}
	return val, true, nil
}

// Put stores the result with a TTL
func (c *RedisIdempotencyCache) Put(ctx context.Context, companyID uuid.UUID, key string, result []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.key(companyID, key), result, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write idempotency cache: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (c *RedisIdempotencyCache) Close() error {
	return c.client.Close()
}

// Client returns the underlying Redis client
func (c *RedisIdempotencyCache) Client() *redis.Client {
	return c.client
}

var _ shared.IdempotencyCache = (*RedisIdempotencyCache)(nil)
