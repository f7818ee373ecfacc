package finance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/domain/shared/valueobject"
	"github.com/erp/settlement/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Command names used for idempotency records and metrics
const (
	commandAllocate          = "allocate"
	commandReverseAllocation = "reverse_allocation"
	commandApplyCredit       = "apply_credit_note"
)

// AllocationService is the payment allocation engine. It is the only
// component that changes balances on documents, payments and credit notes.
type AllocationService struct {
	repos    RepositorySet
	runner   *commandRunner
	selector *finance.StrategySelector
	locker   SourceLocker
}

// NewAllocationService creates a new AllocationService
func NewAllocationService(repos RepositorySet, txScope TransactionScope, logger *zap.Logger) *AllocationService {
	return &AllocationService{
		repos:    repos,
		runner:   newCommandRunner(repos, txScope, logger),
		selector: finance.NewStrategySelector(),
		locker:   NoopSourceLocker{},
	}
}

// SetEventPublisher sets the publisher that receives events after commit
func (s *AllocationService) SetEventPublisher(publisher shared.EventPublisher) {
	s.runner.publisher = publisher
}

// SetMetrics sets the allocation metrics recorder
func (s *AllocationService) SetMetrics(m *telemetry.AllocationMetrics) {
	s.runner.metrics = m
}

// SetIdempotencyCache puts a result cache in front of the idempotency table
func (s *AllocationService) SetIdempotencyCache(cache shared.IdempotencyCache, cfg shared.IdempotencyConfig) {
	s.runner.idem.cache = cache
	if cfg.CacheTTL > 0 {
		s.runner.idem.ttl = cfg.CacheTTL
	}
}

// SetSourceLocker sets the cross-process funding source lock
func (s *AllocationService) SetSourceLocker(locker SourceLocker) {
	if locker == nil {
		locker = NoopSourceLocker{}
	}
	s.locker = locker
}

// SetClock overrides the clock used for allocation dates and overdue checks
func (s *AllocationService) SetClock(clock func() time.Time) {
	s.runner.clock = clock
	s.selector = finance.NewStrategySelector(finance.WithSelectorClock(clock))
}

// SetSelector replaces the strategy selector
func (s *AllocationService) SetSelector(selector *finance.StrategySelector) {
	s.selector = selector
}

// ==================== Commands ====================

// Allocate distributes a payment or credit note across open documents.
// An automatic strategy that finds nothing to pay returns Success=false and
// leaves an audit entry; every other rejection is returned as an error and
// nothing is written.
func (s *AllocationService) Allocate(ctx context.Context, cc shared.CommandContext, req AllocateRequest) (*AllocationResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "allocation", "allocate")
	defer span.End()
	started := time.Now()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrCompanyID, cc.CompanyID.String(),
		telemetry.SpanAttrActorID, cc.ActorID.String(),
		telemetry.SpanAttrSourceType, string(req.SourceType),
		telemetry.SpanAttrSourceID, req.SourceID.String(),
		telemetry.SpanAttrStrategy, string(req.strategy()),
		telemetry.SpanAttrIdempotencyKey, req.IdempotencyKey,
	)

	result, err := s.allocate(ctx, cc, req)
	replayed := result != nil && result.Replayed
	s.runner.record(ctx, commandAllocate, err, replayed, started)
	if result != nil {
		telemetry.SetAttributes(span,
			telemetry.SpanAttrPlanSize, len(result.Allocations),
			telemetry.SpanAttrAmount, result.AllocatedTotal.String(),
			telemetry.SpanAttrReplayed, replayed,
		)
	}
	telemetry.Finish(span, err)
	return result, err
}

func (s *AllocationService) allocate(ctx context.Context, cc shared.CommandContext, req AllocateRequest) (*AllocationResult, error) {
	if err := cc.Validate(); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	var stored AllocationResult
	if ok, err := s.runner.replay(ctx, cc.CompanyID, req.IdempotencyKey, commandAllocate, &stored); err != nil {
		return nil, err
	} else if ok {
		stored.Replayed = true
		return &stored, nil
	}

	unlock, err := s.locker.Lock(ctx, cc.CompanyID, req.SourceType, req.SourceID)
	if err != nil {
		return nil, err
	}
	defer s.release(ctx, unlock)

	// Selection runs on an unlocked read; the transaction re-validates
	// the plan against locked rows.
	source, err := loadSource(ctx, s.repos, cc.CompanyID, req.SourceType, req.SourceID, false)
	if err != nil {
		return nil, err
	}
	if err := source.CanFund(); err != nil {
		return nil, err
	}
	plan, err := s.plan(ctx, cc.CompanyID, req, source)
	if err != nil {
		return nil, err
	}
	if plan.IsEmpty() {
		return s.recordEmptyPlan(ctx, cc, req, source, plan.Strategy), nil
	}

	meta := commandMeta{id: uuid.New(), key: req.IdempotencyKey, notes: req.Notes}
	result, replayed, err := runInTx(ctx, s.runner, cc.CompanyID, req.IdempotencyKey, commandAllocate,
		func(repos TransactionalRepositories, events *eventCollector) (*AllocationResult, error) {
			locked, err := loadSource(ctx, repos, cc.CompanyID, req.SourceType, req.SourceID, true)
			if err != nil {
				return nil, err
			}
			if err := locked.CanFund(); err != nil {
				return nil, err
			}
			return s.applyPlan(ctx, repos, cc, locked, plan, meta, events)
		})
	if err != nil {
		return nil, err
	}
	result.Replayed = replayed
	if !replayed {
		s.runner.metrics.RecordAllocations(ctx, string(plan.Strategy), string(req.SourceType), len(result.Allocations), result.AllocatedTotal)
		s.runner.logger.Info("Funding source allocated",
			zap.String("company_id", cc.CompanyID.String()),
			zap.String("source_type", string(req.SourceType)),
			zap.String("source_id", req.SourceID.String()),
			zap.String("strategy", string(plan.Strategy)),
			zap.Int("allocations", len(result.Allocations)),
			zap.String("allocated_total", result.AllocatedTotal.StringFixed(valueobject.AmountScale)),
		)
	}
	return result, nil
}

// Reverse undoes one allocation, restoring the document balance and the
// source remaining amount and moving both statuses backward.
func (s *AllocationService) Reverse(ctx context.Context, cc shared.CommandContext, req ReverseAllocationRequest) (*ReverseResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "allocation", "reverse")
	defer span.End()
	started := time.Now()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrCompanyID, cc.CompanyID.String(),
		telemetry.SpanAttrActorID, cc.ActorID.String(),
		telemetry.SpanAttrAllocationID, req.AllocationID.String(),
		telemetry.SpanAttrIdempotencyKey, req.IdempotencyKey,
	)

	result, err := s.reverse(ctx, cc, req)
	replayed := result != nil && result.Replayed
	s.runner.record(ctx, commandReverseAllocation, err, replayed, started)
	if result != nil && !replayed {
		s.runner.metrics.RecordReversal(ctx, string(result.Allocation.Strategy))
	}
	telemetry.Finish(span, err)
	return result, err
}

func (s *AllocationService) reverse(ctx context.Context, cc shared.CommandContext, req ReverseAllocationRequest) (*ReverseResult, error) {
	if err := cc.Validate(); err != nil {
		return nil, err
	}
	details := map[string]string{}
	if req.AllocationID == uuid.Nil {
		details["allocation_id"] = "allocation is required"
	}
	if strings.TrimSpace(req.Reason) == "" {
		details["reason"] = "reversal reason is required"
	}
	if len(details) > 0 {
		return nil, shared.NewValidationError("Invalid reversal", details)
	}
	if err := validateIdempotencyKey(req.IdempotencyKey); err != nil {
		return nil, err
	}

	var stored ReverseResult
	if ok, err := s.runner.replay(ctx, cc.CompanyID, req.IdempotencyKey, commandReverseAllocation, &stored); err != nil {
		return nil, err
	} else if ok {
		stored.Replayed = true
		return &stored, nil
	}

	existing, err := s.repos.Allocations().FindByIDForCompany(ctx, cc.CompanyID, req.AllocationID)
	if err != nil {
		return nil, err
	}
	if existing.IsReversed {
		return nil, shared.NewDomainError(finance.CodeAlreadyReversed, "Allocation has already been reversed")
	}

	unlock, err := s.locker.Lock(ctx, cc.CompanyID, existing.SourceType, existing.SourceID)
	if err != nil {
		return nil, err
	}
	defer s.release(ctx, unlock)

	result, replayed, err := runInTx(ctx, s.runner, cc.CompanyID, req.IdempotencyKey, commandReverseAllocation,
		func(repos TransactionalRepositories, events *eventCollector) (*ReverseResult, error) {
			return s.reverseInTx(ctx, repos, cc, req, events)
		})
	if err != nil {
		return nil, err
	}
	result.Replayed = replayed
	return result, nil
}

// reverseInTx locks the allocation, then its source, then its document
func (s *AllocationService) reverseInTx(
	ctx context.Context,
	repos TransactionalRepositories,
	cc shared.CommandContext,
	req ReverseAllocationRequest,
	events *eventCollector,
) (*ReverseResult, error) {
	alloc, err := repos.Allocations().FindByIDForUpdate(ctx, cc.CompanyID, req.AllocationID)
	if err != nil {
		return nil, err
	}
	now := s.runner.now()
	if err := alloc.Reverse(cc.ActorID, req.Reason, now); err != nil {
		return nil, err
	}

	source, err := loadSource(ctx, repos, cc.CompanyID, alloc.SourceType, alloc.SourceID, true)
	if err != nil {
		return nil, err
	}
	doc, err := repos.Documents().FindByIDForUpdate(ctx, cc.CompanyID, alloc.DocumentID)
	if err != nil {
		return nil, err
	}

	docBefore := documentState(doc, decimal.Zero)
	sourceBefore := sourceState(source)
	if err := doc.RestoreAllocation(alloc.AllocatedAmount); err != nil {
		return nil, err
	}
	if err := source.Restore(alloc.AllocatedAmount); err != nil {
		return nil, err
	}

	if err := repos.Allocations().SaveReversal(ctx, alloc); err != nil {
		return nil, err
	}
	if err := repos.Documents().SaveWithLock(ctx, doc); err != nil {
		return nil, err
	}
	if err := saveSource(ctx, repos, source); err != nil {
		return nil, err
	}

	entry := finance.NewAuditEntry(cc, finance.AuditAllocationReversed, finance.AggregateTypeAllocation, alloc.ID, finance.AuditPayload{
		"amount":          alloc.AllocatedAmount.StringFixed(valueobject.AmountScale),
		"reason":          alloc.ReversalReason,
		"document_before": docBefore,
		"document_after":  documentState(doc, decimal.Zero),
		"source_before":   sourceBefore,
		"source_after":    sourceState(source),
	}).WithCommand(uuid.New(), req.IdempotencyKey)
	if err := repos.Audit().Create(ctx, entry); err != nil {
		return nil, err
	}

	events.collect(doc, source.(eventSource))
	events.add(finance.NewAllocationEvent(finance.EventTypeAllocationReversed, alloc))

	return &ReverseResult{
		Success:         true,
		Message:         "Allocation reversed",
		Allocation:      ToAllocationResponse(alloc),
		DocumentStatus:  doc.Status,
		DocumentBalance: doc.BalanceDue,
		SourceStatus:    source.SourceStatus(),
		SourceRemaining: source.Remaining(),
	}, nil
}

func (s *AllocationService) release(ctx context.Context, unlock Unlock) {
	if err := unlock(context.WithoutCancel(ctx)); err != nil {
		s.runner.logger.Warn("Failed to release funding source lock", zap.Error(err))
	}
}

// ==================== Planning ====================

func (r AllocateRequest) strategy() finance.StrategyType {
	if r.Strategy == "" && len(r.Plan) > 0 {
		return finance.StrategyManual
	}
	return r.Strategy
}

func (r AllocateRequest) validate() error {
	details := map[string]string{}
	if !r.SourceType.IsValid() {
		details["source_type"] = "must be payment or credit_note"
	}
	if r.SourceID == uuid.Nil {
		details["source_id"] = "source is required"
	}
	if r.Amount.IsNegative() {
		details["amount"] = "amount cannot be negative"
	} else if !valueobject.IsAmountScale(r.Amount) {
		details["amount"] = "amount has too many decimal places"
	}
	strategy := r.strategy()
	if strategy == "" {
		details["strategy"] = "strategy or manual plan is required"
	}
	if strategy != finance.StrategyManual && len(r.Plan) > 0 {
		details["plan"] = "a plan is only accepted with the manual strategy"
	}
	if len(details) > 0 {
		return shared.NewValidationError("Invalid allocation request", details)
	}
	if !strategy.IsValid() {
		return shared.NewDomainErrorf(finance.CodeUnknownStrategy, "Unknown allocation strategy %q", strategy)
	}
	if strategy == finance.StrategyManual && len(r.Plan) == 0 {
		return shared.NewDomainError(finance.CodeEmptyPlan, "A manual allocation needs at least one plan entry")
	}
	return validateIdempotencyKey(r.IdempotencyKey)
}

// plan produces the allocation plan from an unlocked view of the ledger
func (s *AllocationService) plan(ctx context.Context, companyID uuid.UUID, req AllocateRequest, source finance.FundingSource) (finance.AllocationPlan, error) {
	strategy := req.strategy()
	if strategy == finance.StrategyManual {
		entries := make([]finance.PlanEntry, len(req.Plan))
		for i, e := range req.Plan {
			entries[i] = finance.PlanEntry{DocumentID: e.DocumentID, Amount: e.Amount}
		}
		return s.selector.Select(strategy, decimal.Zero, nil, entries)
	}

	amount := source.Remaining()
	if req.Amount.IsPositive() {
		if req.Amount.GreaterThan(amount) {
			return finance.AllocationPlan{}, shared.NewDomainErrorf(finance.CodePlanExceedsRemaining,
				"Requested %s exceeds remaining %s on %s", req.Amount.StringFixed(valueobject.AmountScale),
				amount.StringFixed(valueobject.AmountScale), source.SourceNumber())
		}
		amount = req.Amount
	}

	candidates, err := s.candidates(ctx, companyID, source)
	if err != nil {
		return finance.AllocationPlan{}, err
	}
	return s.selector.Select(strategy, amount, candidates, nil)
}

// candidates returns the open documents the source may pay
func (s *AllocationService) candidates(ctx context.Context, companyID uuid.UUID, source finance.FundingSource) ([]finance.AllocationCandidate, error) {
	docs, err := s.repos.Documents().FindOpenByCounterpart(ctx, companyID, source.Counterpart())
	if err != nil {
		return nil, fmt.Errorf("failed to load open documents: %w", err)
	}
	out := make([]finance.AllocationCandidate, 0, len(docs))
	for i := range docs {
		d := &docs[i]
		if !source.AllowsTarget(d.ID) || d.Currency != source.SourceCurrency() || !d.IsPayable() {
			continue
		}
		out = append(out, finance.CandidateFromDocument(d))
	}
	return out, nil
}

func (s *AllocationService) recordEmptyPlan(
	ctx context.Context,
	cc shared.CommandContext,
	req AllocateRequest,
	source finance.FundingSource,
	strategy finance.StrategyType,
) *AllocationResult {
	message := fmt.Sprintf("No open documents to allocate %s to", source.SourceNumber())
	entry := finance.NewAuditEntry(cc, finance.AuditAllocationFailed, sourceAggregateType(source), source.SourceID(), finance.AuditPayload{
		"strategy":         string(strategy),
		"remaining_amount": source.Remaining().StringFixed(valueobject.AmountScale),
		"reason":           message,
	})
	entry.IdempotencyKey = req.IdempotencyKey
	if s.repos.Audit() != nil {
		if err := s.repos.Audit().Create(ctx, entry); err != nil {
			s.runner.logger.Warn("Failed to record empty allocation", zap.Error(err))
		}
	}
	s.runner.logger.Info("Allocation found no open documents",
		zap.String("source_id", source.SourceID().String()),
		zap.String("strategy", string(strategy)),
	)
	return &AllocationResult{
		Success:         false,
		Message:         message,
		SourceType:      source.SourceType(),
		SourceID:        source.SourceID(),
		SourceNumber:    source.SourceNumber(),
		SourceStatus:    source.SourceStatus(),
		Strategy:        strategy,
		Allocations:     []AllocationResponse{},
		AllocatedTotal:  decimal.Zero,
		RemainingAmount: source.Remaining(),
	}
}

// ==================== Validation & application ====================

type commandMeta struct {
	id    uuid.UUID
	key   string
	notes string
}

// planViolations collects per-entry failures. The resulting error carries
// the shared code when every failure agrees, VALIDATION_FAILED otherwise.
type planViolations struct {
	code    string
	mixed   bool
	details map[string]string
}

func (v *planViolations) add(field, code, message string) {
	if v.details == nil {
		v.details = map[string]string{}
	}
	if v.code == "" {
		v.code = code
	} else if v.code != code {
		v.mixed = true
	}
	if prev, ok := v.details[field]; ok {
		message = prev + "; " + message
	}
	v.details[field] = message
}

func (v *planViolations) err() error {
	if len(v.details) == 0 {
		return nil
	}
	code := v.code
	if v.mixed {
		code = shared.CodeValidationFailed
	}
	return &shared.DomainError{Code: code, Message: "Allocation plan is invalid", Details: v.details}
}

// validatePlan checks every precondition before anything is written.
// docs holds only documents owned by the commanding company.
func validatePlan(source finance.FundingSource, plan finance.AllocationPlan, docs map[uuid.UUID]*finance.PayableDocument) error {
	if plan.IsEmpty() {
		return shared.NewDomainError(finance.CodeEmptyPlan, "Allocation plan is empty")
	}
	v := &planViolations{}
	seen := make(map[uuid.UUID]bool, len(plan.Entries))
	total := decimal.Zero
	for i, e := range plan.Entries {
		field := fmt.Sprintf("plan[%d]", i)
		if seen[e.DocumentID] {
			v.add(field, finance.CodeDuplicateTarget, "document appears more than once")
			continue
		}
		seen[e.DocumentID] = true

		if !e.Amount.IsPositive() {
			v.add(field, finance.CodeInvalidAmount, "amount must be positive")
		} else if !valueobject.IsAmountScale(e.Amount) {
			v.add(field, finance.CodeInvalidAmount, "amount has too many decimal places")
		}
		total = total.Add(e.Amount)

		doc, ok := docs[e.DocumentID]
		if !ok {
			v.add(field, shared.CodeNotFound, "document not found")
			continue
		}
		if doc.CounterpartID != source.Counterpart() {
			v.add(field, finance.CodeCounterpartMismatch, "document belongs to a different counterpart")
		}
		if !source.AllowsTarget(doc.ID) {
			v.add(field, finance.CodeCreditTargetMismatch, "credit can only be applied to its source document")
		}
		if doc.Currency != source.SourceCurrency() {
			v.add(field, finance.CodeCurrencyMismatch, fmt.Sprintf("document currency %s differs from %s", doc.Currency, source.SourceCurrency()))
		}
		if !doc.Status.AcceptsAllocations() {
			v.add(field, finance.CodeDocumentNotPayable, fmt.Sprintf("document is %s", doc.Status))
		} else if e.Amount.GreaterThan(doc.BalanceDue) {
			v.add(field, finance.CodeAmountExceedsBalance, fmt.Sprintf("amount %s exceeds balance due %s",
				e.Amount.StringFixed(valueobject.AmountScale), doc.BalanceDue.StringFixed(valueobject.AmountScale)))
		}
	}
	if total.GreaterThan(source.Remaining()) {
		v.add("plan", finance.CodePlanExceedsRemaining, fmt.Sprintf("plan total %s exceeds remaining %s",
			total.StringFixed(valueobject.AmountScale), source.Remaining().StringFixed(valueobject.AmountScale)))
	}
	return v.err()
}

func planDocumentIDs(plan finance.AllocationPlan) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(plan.Entries))
	ids := make([]uuid.UUID, 0, len(plan.Entries))
	for _, e := range plan.Entries {
		if !seen[e.DocumentID] {
			seen[e.DocumentID] = true
			ids = append(ids, e.DocumentID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// applyPlan locks the planned documents in ID order, validates the plan
// against their locked state and writes allocations, balances and audit.
// The source must already be locked by the caller.
func (s *AllocationService) applyPlan(
	ctx context.Context,
	repos TransactionalRepositories,
	cc shared.CommandContext,
	source finance.FundingSource,
	plan finance.AllocationPlan,
	meta commandMeta,
	events *eventCollector,
) (*AllocationResult, error) {
	locked, err := repos.Documents().FindByIDsForUpdate(ctx, cc.CompanyID, planDocumentIDs(plan))
	if err != nil {
		return nil, err
	}
	docs := make(map[uuid.UUID]*finance.PayableDocument, len(locked))
	for _, d := range locked {
		docs[d.ID] = d
	}
	if err := validatePlan(source, plan, docs); err != nil {
		return nil, err
	}

	now := s.runner.now()
	sourceBefore := sourceState(source)
	allocations := make([]AllocationResponse, 0, len(plan.Entries))
	documents := make([]finance.AuditPayload, 0, len(plan.Entries))
	total := decimal.Zero

	for _, e := range plan.Entries {
		doc := docs[e.DocumentID]
		before := documentState(doc, decimal.Zero)

		if err := doc.ApplyAllocation(e.Amount, now); err != nil {
			return nil, err
		}
		alloc, err := finance.NewPaymentAllocation(meta.id, source, doc, e.Amount, plan.Strategy, cc.ActorID, now)
		if err != nil {
			return nil, err
		}
		alloc.Notes = meta.notes

		if err := repos.Allocations().Create(ctx, alloc); err != nil {
			return nil, err
		}
		if err := repos.Documents().SaveWithLock(ctx, doc); err != nil {
			return nil, err
		}

		after := documentState(doc, e.Amount)
		entry := finance.NewAuditEntry(cc, finance.AuditAllocationCreated, finance.AggregateTypeAllocation, alloc.ID, finance.AuditPayload{
			"source_type":     string(alloc.SourceType),
			"source_id":       alloc.SourceID.String(),
			"amount":          e.Amount.StringFixed(valueobject.AmountScale),
			"strategy":        string(plan.Strategy),
			"document_before": before,
			"document_after":  after,
		}).WithCommand(meta.id, meta.key)
		if err := repos.Audit().Create(ctx, entry); err != nil {
			return nil, err
		}

		documents = append(documents, finance.AuditPayload{"before": before, "after": after})
		allocations = append(allocations, ToAllocationResponse(alloc))
		total = total.Add(e.Amount)
		events.collect(doc)
		events.add(finance.NewAllocationEvent(finance.EventTypeAllocationCreated, alloc))
	}

	if err := source.Consume(total, now); err != nil {
		return nil, err
	}
	if err := saveSource(ctx, repos, source); err != nil {
		return nil, err
	}

	method := finance.AllocationMethodAutomatic
	if plan.Strategy == finance.StrategyManual {
		method = finance.AllocationMethodManual
	}
	entry := finance.NewAuditEntry(cc, finance.AuditAllocationCommand, sourceAggregateType(source), source.SourceID(), finance.AuditPayload{
		"strategy":      string(plan.Strategy),
		"method":        string(method),
		"total":         total.StringFixed(valueobject.AmountScale),
		"allocations":   len(allocations),
		"source_before": sourceBefore,
		"source_after":  sourceState(source),
		"documents":     documents,
	}).WithCommand(meta.id, meta.key)
	if err := repos.Audit().Create(ctx, entry); err != nil {
		return nil, err
	}
	events.collect(source.(eventSource))

	return &AllocationResult{
		CommandID:       meta.id,
		Success:         true,
		Message:         fmt.Sprintf("Allocated %s across %d document(s)", total.StringFixed(valueobject.AmountScale), len(allocations)),
		SourceType:      source.SourceType(),
		SourceID:        source.SourceID(),
		SourceNumber:    source.SourceNumber(),
		SourceStatus:    source.SourceStatus(),
		Strategy:        plan.Strategy,
		Allocations:     allocations,
		AllocatedTotal:  total,
		RemainingAmount: source.Remaining(),
	}, nil
}

// ==================== Source helpers ====================

type sourceReader interface {
	Payments() finance.PaymentRepository
	CreditNotes() finance.CreditNoteRepository
}

func loadSource(ctx context.Context, repos sourceReader, companyID uuid.UUID, t finance.SourceType, id uuid.UUID, forUpdate bool) (finance.FundingSource, error) {
	switch t {
	case finance.SourceTypePayment:
		var (
			p   *finance.Payment
			err error
		)
		if forUpdate {
			p, err = repos.Payments().FindByIDForUpdate(ctx, companyID, id)
		} else {
			p, err = repos.Payments().FindByIDForCompany(ctx, companyID, id)
		}
		if err != nil {
			return nil, err
		}
		return p, nil
	case finance.SourceTypeCreditNote:
		var (
			c   *finance.CreditNote
			err error
		)
		if forUpdate {
			c, err = repos.CreditNotes().FindByIDForUpdate(ctx, companyID, id)
		} else {
			c, err = repos.CreditNotes().FindByIDForCompany(ctx, companyID, id)
		}
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, shared.NewValidationError("Invalid funding source", map[string]string{"source_type": "must be payment or credit_note"})
}

func saveSource(ctx context.Context, repos TransactionalRepositories, source finance.FundingSource) error {
	switch src := source.(type) {
	case *finance.Payment:
		return repos.Payments().SaveWithLock(ctx, src)
	case *finance.CreditNote:
		return repos.CreditNotes().SaveWithLock(ctx, src)
	}
	return errors.New("unsupported funding source")
}

func sourceAggregateType(source finance.FundingSource) string {
	if source.SourceType() == finance.SourceTypeCreditNote {
		return finance.AggregateTypeCreditNote
	}
	return finance.AggregateTypePayment
}

func sourceState(source finance.FundingSource) finance.AuditPayload {
	return finance.AuditPayload{
		"status":           source.SourceStatus(),
		"remaining_amount": source.Remaining().StringFixed(valueobject.AmountScale),
	}
}

func documentState(doc *finance.PayableDocument, allocated decimal.Decimal) finance.AuditPayload {
	state := finance.AuditPayload{
		"document_id":     doc.ID.String(),
		"document_number": doc.DocumentNumber,
		"status":          string(doc.Status),
		"balance_due":     doc.BalanceDue.StringFixed(valueobject.AmountScale),
	}
	if allocated.IsPositive() {
		state["allocated"] = allocated.StringFixed(valueobject.AmountScale)
	}
	return state
}
