// Package lock provides the cross-process funding source lock.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	appfinance "github.com/erp/settlement/internal/application/finance"
	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Options tunes lock acquisition
type Options struct {
	// TTL bounds how long a crashed holder can keep a source locked
	TTL time.Duration
	// WaitTimeout is how long Lock retries before giving up
	WaitTimeout time.Duration
	// RetryInterval is the pause between attempts
	RetryInterval time.Duration
	KeyPrefix     string
}

// DefaultOptions returns the default lock options
func DefaultOptions() Options {
	return Options{
		TTL:           30 * time.Second,
		WaitTimeout:   2 * time.Second,
		RetryInterval: 50 * time.Millisecond,
		KeyPrefix:     "settlement:lock:",
	}
}

// RedisSourceLocker serialises commands on one funding source with a Redis lock
type RedisSourceLocker struct {
	client *redislock.Client
	opts   Options
	logger *zap.Logger
}

// NewRedisSourceLocker creates a locker on an existing Redis client
func NewRedisSourceLocker(client redis.UniversalClient, opts Options, logger *zap.Logger) *RedisSourceLocker {
	defaults := DefaultOptions()
	if opts.TTL <= 0 {
		opts.TTL = defaults.TTL
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = defaults.RetryInterval
	}
	if opts.WaitTimeout < 0 {
		opts.WaitTimeout = 0
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = defaults.KeyPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisSourceLocker{
		client: redislock.New(client),
		opts:   opts,
		logger: logger,
	}
}

// Key returns the Redis key guarding a funding source
func (l *RedisSourceLocker) Key(companyID uuid.UUID, sourceType finance.SourceType, sourceID uuid.UUID) string {
	return fmt.Sprintf("%s%s:%s:%s", l.opts.KeyPrefix, companyID, sourceType, sourceID)
}

func (l *RedisSourceLocker) retryStrategy() redislock.RetryStrategy {
	attempts := int(l.opts.WaitTimeout / l.opts.RetryInterval)
	if attempts <= 0 {
		return redislock.NoRetry()
	}
	return redislock.LimitRetry(redislock.LinearBackoff(l.opts.RetryInterval), attempts)
}

// Lock obtains the source lock, retrying until WaitTimeout. It returns
// shared.ErrLockNotObtained when another command keeps holding it.
func (l *RedisSourceLocker) Lock(ctx context.Context, companyID uuid.UUID, sourceType finance.SourceType, sourceID uuid.UUID) (appfinance.Unlock, error) {
	key := l.Key(companyID, sourceType, sourceID)
	held, err := l.client.Obtain(ctx, key, l.opts.TTL, &redislock.Options{
		RetryStrategy: l.retryStrategy(),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		l.logger.Debug("funding source lock busy", zap.String("key", key))
		return nil, shared.ErrLockNotObtained
	}
	if err != nil {
		return nil, fmt.Errorf("failed to obtain lock %s: %w", key, err)
	}

	return func(ctx context.Context) error {
		err := held.Release(ctx)
		if errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.Warn("funding source lock expired before release", zap.String("key", key))
			return nil
		}
		return err
	}, nil
}

var _ appfinance.SourceLocker = (*RedisSourceLocker)(nil)
