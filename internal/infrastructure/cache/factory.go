package cache

import (
	"fmt"

	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// IdempotencyCacheFactory creates idempotency caches based on configuration
type IdempotencyCacheFactory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// IdempotencyCacheFactoryOption is a functional option for configuring the factory
type IdempotencyCacheFactoryOption func(*IdempotencyCacheFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) IdempotencyCacheFactoryOption {
	return func(f *IdempotencyCacheFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to the in-memory cache
// when Redis is unavailable. Default is true.
func WithInMemoryFallback(allow bool) IdempotencyCacheFactoryOption {
	return func(f *IdempotencyCacheFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewIdempotencyCacheFactory creates a new factory
func NewIdempotencyCacheFactory(cfg config.RedisConfig, opts ...IdempotencyCacheFactoryOption) *IdempotencyCacheFactory {
	f := &IdempotencyCacheFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// CreateCache returns a Redis-backed cache together with its client, or the
// in-memory cache and a nil client when Redis is not configured or not
// reachable and fallback is allowed
func (f *IdempotencyCacheFactory) CreateCache() (shared.IdempotencyCache, *redis.Client, error) {
	if f.redisConfig.Host == "" {
		f.logger.Info("redis not configured, using in-memory idempotency cache")
		return NewInMemoryIdempotencyCache(), nil, nil
	}

	client, err := NewRedisClient(f.redisConfig)
	if err == nil {
		f.logger.Info("using Redis idempotency cache", zap.String("host", f.redisConfig.Host))
		return NewRedisIdempotencyCache(client, ""), client, nil
	}

	if !f.allowInMemoryFallback {
		return nil, nil, fmt.Errorf("redis required for idempotency cache but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory idempotency cache. "+
		"Durable idempotency records still prevent duplicate commands.",
		zap.Error(err),
	)
	return NewInMemoryIdempotencyCache(), nil, nil
}
