package lock

import (
	"context"
	"testing"
	"time"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisSourceLocker_Defaults(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()

	l := NewRedisSourceLocker(client, Options{}, nil)
	assert.Equal(t, 30*time.Second, l.opts.TTL)
	assert.Equal(t, 50*time.Millisecond, l.opts.RetryInterval)
	assert.Equal(t, "settlement:lock:", l.opts.KeyPrefix)
	assert.NotNil(t, l.logger)
}

func TestRedisSourceLocker_Key(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()

	l := NewRedisSourceLocker(client, Options{KeyPrefix: "test:"}, nil)
	companyID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	sourceID := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	assert.Equal(t,
		"test:11111111-1111-1111-1111-111111111111:payment:22222222-2222-2222-2222-222222222222",
		l.Key(companyID, finance.SourceTypePayment, sourceID))
	assert.NotEqual(t,
		l.Key(companyID, finance.SourceTypePayment, sourceID),
		l.Key(companyID, finance.SourceTypeCreditNote, sourceID))
}

func TestRedisSourceLocker_UnreachableRedis(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer client.Close()

	l := NewRedisSourceLocker(client, Options{WaitTimeout: 0}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	unlock, err := l.Lock(ctx, uuid.New(), finance.SourceTypePayment, uuid.New())
	require.Error(t, err)
	assert.Nil(t, unlock)
}
