package finance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type eventSource interface {
	GetDomainEvents() []shared.DomainEvent
	ClearDomainEvents()
}

// eventCollector gathers aggregate events during a transaction so they can
// be published once it commits
type eventCollector struct {
	events []shared.DomainEvent
}

func (c *eventCollector) collect(sources ...eventSource) {
	for _, src := range sources {
		if src == nil {
			continue
		}
		c.events = append(c.events, src.GetDomainEvents()...)
		src.ClearDomainEvents()
	}
}

func (c *eventCollector) add(events ...shared.DomainEvent) {
	c.events = append(c.events, events...)
}

// commandRunner holds what every command needs: the transaction scope, the
// idempotency guard, the event publisher and metrics.
type commandRunner struct {
	txScope   TransactionScope
	idem      *idempotencyGuard
	publisher shared.EventPublisher
	metrics   *telemetry.AllocationMetrics
	logger    *zap.Logger
	clock     func() time.Time
}

func newCommandRunner(repos RepositorySet, txScope TransactionScope, logger *zap.Logger) *commandRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &commandRunner{
		txScope: txScope,
		idem: &idempotencyGuard{
			repo:   repos.IdempotencyRepo,
			ttl:    shared.DefaultIdempotencyConfig().CacheTTL,
			logger: logger,
		},
		logger: logger,
		clock:  time.Now,
	}
}

func (r *commandRunner) now() time.Time {
	return r.clock()
}

// replay decodes the stored result of command for key into out
func (r *commandRunner) replay(ctx context.Context, companyID uuid.UUID, key, command string, out any) (bool, error) {
	stored, ok, err := r.idem.lookup(ctx, companyID, key, command)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(stored, out); err != nil {
		return false, fmt.Errorf("failed to decode stored result: %w", err)
	}
	return true, nil
}

func (r *commandRunner) publish(ctx context.Context, events []shared.DomainEvent) {
	if r.publisher == nil || len(events) == 0 {
		return
	}
	if err := r.publisher.Publish(ctx, events...); err != nil {
		r.logger.Error("Failed to publish domain events",
			zap.Int("count", len(events)),
			zap.Error(err),
		)
	}
}

func (r *commandRunner) record(ctx context.Context, command string, err error, replayed bool, started time.Time) {
	outcome := telemetry.OutcomeSuccess
	switch {
	case replayed:
		outcome = telemetry.OutcomeReplayed
	case err != nil:
		outcome = telemetry.OutcomeFailed
		if _, ok := shared.AsDomainError(err); ok {
			outcome = telemetry.OutcomeRejected
		}
	}
	r.metrics.RecordCommand(ctx, command, outcome, time.Since(started))
}

// runInTx executes fn in a transaction guarded by key and publishes the
// collected events after commit. A concurrent duplicate of key is answered
// with the stored result of the command that won.
func runInTx[T any](
	ctx context.Context,
	r *commandRunner,
	companyID uuid.UUID,
	key, command string,
	fn func(repos TransactionalRepositories, events *eventCollector) (*T, error),
) (*T, bool, error) {
	var (
		result *T
		rec    *shared.IdempotencyRecord
		events = &eventCollector{}
	)
	err := r.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		if rec, err = r.idem.claim(ctx, repos, companyID, key, command); err != nil {
			return err
		}
		if result, err = fn(repos, events); err != nil {
			return err
		}
		return r.idem.complete(ctx, repos, rec, result)
	})
	if errors.Is(err, shared.ErrIdempotencyConflict) {
		replayed := new(T)
		ok, lerr := r.replay(ctx, companyID, key, command, replayed)
		if lerr != nil {
			return nil, false, lerr
		}
		if ok {
			return replayed, true, nil
		}
		return nil, false, err
	}
	if err != nil {
		return nil, false, err
	}
	if rec != nil {
		r.idem.remember(ctx, companyID, key, command, rec.Result)
	}
	r.publish(ctx, events.events)
	return result, false, nil
}

// execute is runInTx preceded by a replay check and followed by metrics
func execute[T any](
	ctx context.Context,
	r *commandRunner,
	companyID uuid.UUID,
	key, command string,
	fn func(repos TransactionalRepositories, events *eventCollector) (*T, error),
) (*T, bool, error) {
	started := time.Now()
	if err := validateIdempotencyKey(key); err != nil {
		return nil, false, err
	}
	stored := new(T)
	ok, err := r.replay(ctx, companyID, key, command, stored)
	if err != nil {
		return nil, false, err
	}
	if ok {
		r.record(ctx, command, nil, true, started)
		return stored, true, nil
	}
	result, replayed, err := runInTx(ctx, r, companyID, key, command, fn)
	r.record(ctx, command, err, replayed, started)
	return result, replayed, err
}
