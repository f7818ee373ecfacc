package shared

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// IdempotencyRecord binds a caller-supplied key to the stored result of the
// first command executed with it. Keys are unique per company.
type IdempotencyRecord struct {
	ID        uuid.UUID
	CompanyID uuid.UUID
	Key       string
	Command   string
	Result    []byte
	CreatedAt time.Time
}

// NewIdempotencyRecord creates a record for a command that is about to run
func NewIdempotencyRecord(companyID uuid.UUID, key, command string) *IdempotencyRecord {
	return &IdempotencyRecord{
		ID:        uuid.New(),
		CompanyID: companyID,
		Key:       key,
		Command:   command,
		CreatedAt: time.Now(),
	}
}

// IdempotencyRepository is the durable store of idempotency records.
// Create must return ErrIdempotencyConflict when the key already exists.
type IdempotencyRepository interface {
	FindByKey(ctx context.Context, companyID uuid.UUID, key string) (*IdempotencyRecord, error)
	Create(ctx context.Context, record *IdempotencyRecord) error
	SaveResult(ctx context.Context, record *IdempotencyRecord) error
}

// IdempotencyCache is a fast lookup in front of the repository
type IdempotencyCache interface {
	// Get returns the cached result for the key, if present
	Get(ctx context.Context, companyID uuid.UUID, key string) ([]byte, bool, error)

	// Put stores the result with a TTL
	Put(ctx context.Context, companyID uuid.UUID, key string, result []byte, ttl time.Duration) error

	// Close releases resources
	Close() error
}

// IdempotencyConfig holds configuration for idempotency handling
type IdempotencyConfig struct {
	// CacheTTL is how long results stay in the fast cache.
	// The durable record never expires.
	CacheTTL time.Duration
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		CacheTTL: 24 * time.Hour,
	}
}
