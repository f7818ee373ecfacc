package finance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/erp/settlement/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxIdempotencyKeyLength = 128

// idempotencyGuard dedupes commands per (company, key). The durable record
// is inserted first inside the command transaction so a concurrent duplicate
// fails on the unique constraint; the cache only shortcuts replays.
type idempotencyGuard struct {
	repo   shared.IdempotencyRepository
	cache  shared.IdempotencyCache
	ttl    time.Duration
	logger *zap.Logger
}

func validateIdempotencyKey(key string) error {
	if len(key) > maxIdempotencyKeyLength {
		return shared.NewValidationError("Invalid idempotency key", map[string]string{
			"idempotency_key": fmt.Sprintf("must be at most %d characters", maxIdempotencyKeyLength),
		})
	}
	if key != "" && strings.TrimSpace(key) == "" {
		return shared.NewValidationError("Invalid idempotency key", map[string]string{
			"idempotency_key": "must not be blank",
		})
	}
	return nil
}

func cacheKey(command, key string) string {
	return command + ":" + key
}

// lookup returns the stored result of a finished command. A key first used
// by a different command is rejected rather than replayed.
func (g *idempotencyGuard) lookup(ctx context.Context, companyID uuid.UUID, key, command string) ([]byte, bool, error) {
	if key == "" || g.repo == nil {
		return nil, false, nil
	}
	if g.cache != nil {
		cached, ok, err := g.cache.Get(ctx, companyID, cacheKey(command, key))
		if err != nil {
			g.logger.Warn("Idempotency cache read failed", zap.String("key", key), zap.Error(err))
		} else if ok {
			return cached, true, nil
		}
	}

	rec, err := g.repo.FindByKey(ctx, companyID, key)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read idempotency record: %w", err)
	}
	if rec.Command != command {
		return nil, false, shared.NewDomainErrorf(shared.CodeIdempotencyConflict,
			"Idempotency key was already used for %s", rec.Command)
	}
	if len(rec.Result) == 0 {
		return nil, false, nil
	}
	g.remember(ctx, companyID, key, command, rec.Result)
	return rec.Result, true, nil
}

// claim inserts the record for key; a duplicate yields shared.ErrIdempotencyConflict
func (g *idempotencyGuard) claim(ctx context.Context, repos TransactionalRepositories, companyID uuid.UUID, key, command string) (*shared.IdempotencyRecord, error) {
	if key == "" || repos.Idempotency() == nil {
		return nil, nil
	}
	rec := shared.NewIdempotencyRecord(companyID, key, command)
	if err := repos.Idempotency().Create(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// complete stores result on the claimed record
func (g *idempotencyGuard) complete(ctx context.Context, repos TransactionalRepositories, rec *shared.IdempotencyRecord, result any) error {
	if rec == nil {
		return nil
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode command result: %w", err)
	}
	rec.Result = payload
	return repos.Idempotency().SaveResult(ctx, rec)
}

func (g *idempotencyGuard) remember(ctx context.Context, companyID uuid.UUID, key, command string, result []byte) {
	if g.cache == nil || key == "" || len(result) == 0 {
		return
	}
	if err := g.cache.Put(ctx, companyID, cacheKey(command, key), result, g.ttl); err != nil {
		g.logger.Warn("Idempotency cache write failed", zap.String("key", key), zap.Error(err))
	}
}
