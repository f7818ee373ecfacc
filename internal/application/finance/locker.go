package finance

import (
	"context"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/google/uuid"
)

// Unlock releases a lock obtained from a SourceLocker
type Unlock func(ctx context.Context) error

// SourceLocker serialises commands on one funding source across processes.
// It sits in front of the database row locks, which remain authoritative.
type SourceLocker interface {
	// Lock returns shared.ErrLockNotObtained when another command holds the source
	Lock(ctx context.Context, companyID uuid.UUID, sourceType finance.SourceType, sourceID uuid.UUID) (Unlock, error)
}

// NoopSourceLocker never blocks; row locks alone guard the source
type NoopSourceLocker struct{}

// Lock always succeeds
func (NoopSourceLocker) Lock(context.Context, uuid.UUID, finance.SourceType, uuid.UUID) (Unlock, error) {
	return func(context.Context) error { return nil }, nil
}
