package finance

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAllocationService_ManualPlan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.postedInvoice(t, "400", 10)
	b := f.postedInvoice(t, "800", 20)
	pay := f.payment(t, "1000")

	result, err := f.allocations.Allocate(ctx, f.cc, AllocateRequest{
		SourceType: finance.SourceTypePayment,
		SourceID:   pay.ID,
		Plan: []PlanEntryInput{
			{DocumentID: a.ID, Amount: dec("300")},
			{DocumentID: b.ID, Amount: dec("500")},
		},
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, finance.StrategyManual, result.Strategy)
	assert.Len(t, result.Allocations, 2)
	assert.True(t, dec("800").Equal(result.AllocatedTotal))
	assert.True(t, dec("200").Equal(result.RemainingAmount))

	docA, docB := f.document(t, a.ID), f.document(t, b.ID)
	assert.True(t, dec("100").Equal(docA.BalanceDue))
	assert.Equal(t, finance.DocumentStatusPartiallyPaid, docA.Status)
	assert.True(t, dec("300").Equal(docB.BalanceDue))
	assert.Equal(t, finance.DocumentStatusPartiallyPaid, docB.Status)

	p := f.paymentByID(t, pay.ID)
	assert.True(t, dec("200").Equal(p.RemainingAmount))
	assert.Equal(t, finance.PaymentStatusPending, p.Status)

	actions := f.auditActions()
	assert.Contains(t, actions, finance.AuditAllocationCommand)
	assert.Contains(t, actions, finance.AuditAllocationCreated)
	assert.Contains(t, f.publisher.types(), finance.EventTypeAllocationCreated)
}

func TestAllocationService_FIFO(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.postedInvoice(t, "300", -10)
	second := f.postedInvoice(t, "400", -5)
	third := f.postedInvoice(t, "500", 5)
	pay := f.payment(t, "1000")

	result, err := f.allocations.Allocate(ctx, f.cc, AllocateRequest{
		SourceType: finance.SourceTypePayment,
		SourceID:   pay.ID,
		Strategy:   finance.StrategyFIFO,
	})
	require.NoError(t, err)
	require.Len(t, result.Allocations, 3)
	assert.True(t, result.RemainingAmount.IsZero())

	assert.Equal(t, finance.DocumentStatusPaid, f.document(t, first.ID).Status)
	assert.Equal(t, finance.DocumentStatusPaid, f.document(t, second.ID).Status)
	last := f.document(t, third.ID)
	assert.Equal(t, finance.DocumentStatusPartiallyPaid, last.Status)
	assert.True(t, dec("200").Equal(last.BalanceDue))

	p := f.paymentByID(t, pay.ID)
	assert.Equal(t, finance.PaymentStatusCompleted, p.Status)
	assert.True(t, p.RemainingAmount.IsZero())

	types := f.publisher.types()
	assert.Contains(t, types, finance.EventTypeDocumentPaid)
	assert.Contains(t, types, finance.EventTypePaymentCompleted)
}

func TestAllocationService_FIFOAmountCapLeavesLaterDocumentUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.postedInvoice(t, "300", -10)
	second := f.postedInvoice(t, "400", -5)
	third := f.postedInvoice(t, "500", 5)
	pay := f.payment(t, "1000")

	result, err := f.allocations.Allocate(ctx, f.cc, AllocateRequest{
		SourceType: finance.SourceTypePayment,
		SourceID:   pay.ID,
		Strategy:   finance.StrategyFIFO,
		Amount:     dec("700"),
	})
	require.NoError(t, err)
	require.Len(t, result.Allocations, 2)
	assert.True(t, dec("300").Equal(result.RemainingAmount))

	assert.Equal(t, finance.DocumentStatusPaid, f.document(t, first.ID).Status)
	assert.Equal(t, finance.DocumentStatusPaid, f.document(t, second.ID).Status)
	last := f.document(t, third.ID)
	assert.Equal(t, finance.DocumentStatusPosted, last.Status)
	assert.True(t, dec("500").Equal(last.BalanceDue))

	p := f.paymentByID(t, pay.ID)
	assert.Equal(t, finance.PaymentStatusPending, p.Status)
	assert.True(t, dec("300").Equal(p.RemainingAmount))
}

func TestAllocationService_OverdueFirstAndAmountCap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	current := f.postedInvoice(t, "300", 5)
	overdue := f.postedInvoice(t, "300", -5)
	pay := f.payment(t, "1000")

	result, err := f.allocations.Allocate(ctx, f.cc, AllocateRequest{
		SourceType: finance.SourceTypePayment,
		SourceID:   pay.ID,
		Strategy:   finance.StrategyOverdueFirst,
		Amount:     dec("400"),
	})
	require.NoError(t, err)
	require.Len(t, result.Allocations, 2)
	assert.Equal(t, overdue.ID, result.Allocations[0].DocumentID)
	assert.True(t, dec("300").Equal(result.Allocations[0].AllocatedAmount))
	assert.Equal(t, current.ID, result.Allocations[1].DocumentID)
	assert.True(t, dec("100").Equal(result.Allocations[1].AllocatedAmount))
	assert.True(t, dec("600").Equal(result.RemainingAmount))
}

func TestAllocationService_Proportional(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.postedInvoice(t, "100", 10)
	b := f.postedInvoice(t, "200", 20)
	pay := f.payment(t, "150")

	result, err := f.allocations.Allocate(ctx, f.cc, AllocateRequest{
		SourceType: finance.SourceTypePayment,
		SourceID:   pay.ID,
		Strategy:   finance.StrategyProportional,
	})
	require.NoError(t, err)
	amounts := map[uuid.UUID]string{}
	for _, al := range result.Allocations {
		amounts[al.DocumentID] = al.AllocatedAmount.StringFixed(2)
	}
	assert.Equal(t, "50.00", amounts[a.ID])
	assert.Equal(t, "100.00", amounts[b.ID])
}

func TestAllocationService_RejectsOverBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.postedInvoice(t, "400", 10)
	pay := f.payment(t, "1000")
	auditBefore := len(f.auditActions())

	_, err := f.allocations.Allocate(ctx, f.cc, AllocateRequest{
		SourceType: finance.SourceTypePayment,
		SourceID:   pay.ID,
		Plan:       []PlanEntryInput{{DocumentID: doc.ID, Amount: dec("500")}},
	})
	de := requireCode(t, err, finance.CodeAmountExceedsBalance)
	assert.Contains(t, de.Details, "plan[0]")

	assert.Zero(t, f.allocationCount())
	assert.True(t, dec("400").Equal(f.document(t, doc.ID).BalanceDue))
	assert.True(t, dec("1000").Equal(f.paymentByID(t, pay.ID).RemainingAmount))
	assert.Len(t, f.auditActions(), auditBefore)
}

func TestAllocationService_ValidationCodes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.postedInvoice(t, "400", 10)
	other := f.postedDocument(t, uuid.New(), "400", 10)
	pay := f.payment(t, "500")

	home := f.cc
	f.cc = shared.NewCommandContext(uuid.New(), home.ActorID)
	foreign := f.postedInvoice(t, "400", 10)
	f.cc = home

	tests := []struct {
		name string
		plan []PlanEntryInput
		code string
	}{
		{"counterpart mismatch", []PlanEntryInput{{DocumentID: other.ID, Amount: dec("100")}}, finance.CodeCounterpartMismatch},
		{"unknown document", []PlanEntryInput{{DocumentID: uuid.New(), Amount: dec("100")}}, shared.CodeNotFound},
		{"document of another company", []PlanEntryInput{{DocumentID: foreign.ID, Amount: dec("100")}}, shared.CodeNotFound},
		{"duplicate target", []PlanEntryInput{{DocumentID: doc.ID, Amount: dec("100")}, {DocumentID: doc.ID, Amount: dec("100")}}, finance.CodeDuplicateTarget},
		{"too many decimals", []PlanEntryInput{{DocumentID: doc.ID, Amount: dec("10.001")}}, finance.CodeInvalidAmount},
		{"exceeds remaining", []PlanEntryInput{{DocumentID: doc.ID, Amount: dec("400")}, {DocumentID: f.postedInvoice(t, "400", 12).ID, Amount: dec("400")}}, finance.CodePlanExceedsRemaining},
		{"mixed failures", []PlanEntryInput{{DocumentID: other.ID, Amount: dec("100")}, {DocumentID: doc.ID, Amount: dec("450")}}, shared.CodeValidationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.allocations.Allocate(ctx, f.cc, AllocateRequest{
				SourceType: finance.SourceTypePayment,
				SourceID:   pay.ID,
				Plan:       tt.plan,
			})
			requireCode(t, err, tt.code)
			assert.Zero(t, f.allocationCount())
		})
	}
}

func TestAllocationService_RequestValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pay := f.payment(t, "100")

	_, err := f.allocations.Allocate(ctx, f.cc, AllocateRequest{SourceType: finance.SourceTypePayment, SourceID: pay.ID, Strategy: "largest_first"})
	requireCode(t, err, finance.CodeUnknownStrategy)

	_, err = f.allocations.Allocate(ctx, f.cc, AllocateRequest{SourceType: finance.SourceTypePayment, SourceID: pay.ID, Strategy: finance.StrategyManual})
	requireCode(t, err, finance.CodeEmptyPlan)

	_, err = f.allocations.Allocate(ctx, f.cc, AllocateRequest{SourceType: "cash", SourceID: pay.ID, Strategy: finance.StrategyFIFO})
	requireCode(t, err, shared.CodeValidationFailed)

	_, err = f.allocations.Allocate(ctx, shared.CommandContext{}, AllocateRequest{SourceType: finance.SourceTypePayment, SourceID: pay.ID, Strategy: finance.StrategyFIFO})
	requireCode(t, err, shared.CodeValidationFailed)

	_, err = f.allocations.Allocate(ctx, f.cc, AllocateRequest{SourceType: finance.SourceTypePayment, SourceID: uuid.New(), Strategy: finance.StrategyFIFO})
	requireCode(t, err, shared.CodeNotFound)
}

func TestAllocationService_OtherCompanyCannotUseSource(t *testing.T) {
	f := newFixture(t)
	f.postedInvoice(t, "100", 10)
	pay := f.payment(t, "100")

	intruder := shared.NewCommandContext(uuid.New(), uuid.New())
	_, err := f.allocations.Allocate(context.Background(), intruder, AllocateRequest{
		SourceType: finance.SourceTypePayment,
		SourceID:   pay.ID,
		Strategy:   finance.StrategyFIFO,
	})
	requireCode(t, err, shared.CodeNotFound)
	assert.Zero(t, f.allocationCount())
}

func TestAllocationService_EmptyAutomaticPlan(t *testing.T) {
	f := newFixture(t)
	pay := f.payment(t, "100")

	result, err := f.allocations.Allocate(context.Background(), f.cc, AllocateRequest{
		SourceType:     finance.SourceTypePayment,
		SourceID:       pay.ID,
		Strategy:       finance.StrategyFIFO,
		IdempotencyKey: "empty-1",
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Message)
	assert.Contains(t, f.auditActions(), finance.AuditAllocationFailed)

	_, err = f.repos.Idempotency().FindByKey(context.Background(), f.cc.CompanyID, "empty-1")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestAllocationService_IdempotentReplay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.postedInvoice(t, "500", 10)
	pay := f.payment(t, "300")
	req := AllocateRequest{
		SourceType:     finance.SourceTypePayment,
		SourceID:       pay.ID,
		Strategy:       finance.StrategyFIFO,
		IdempotencyKey: "alloc-42",
	}

	first, err := f.allocations.Allocate(ctx, f.cc, req)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := f.allocations.Allocate(ctx, f.cc, req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.CommandID, second.CommandID)
	assert.True(t, first.AllocatedTotal.Equal(second.AllocatedTotal))

	assert.Equal(t, 1, f.allocationCount())
	assert.True(t, dec("200").Equal(f.document(t, doc.ID).BalanceDue))

	_, err = f.allocations.Reverse(ctx, f.cc, ReverseAllocationRequest{
		AllocationID:   first.Allocations[0].ID,
		Reason:         "wrong key reuse",
		IdempotencyKey: "alloc-42",
	})
	requireCode(t, err, shared.CodeIdempotencyConflict)
}

// racingIdempotency hides the winner's record from the first lookup, as if
// it committed between the replay check and the claim
type racingIdempotency struct {
	*memIdempotency
	hidden bool
}

func (r *racingIdempotency) FindByKey(ctx context.Context, companyID uuid.UUID, key string) (*shared.IdempotencyRecord, error) {
	if !r.hidden {
		r.hidden = true
		return nil, shared.ErrNotFound
	}
	return r.memIdempotency.FindByKey(ctx, companyID, key)
}

func TestAllocationService_ConcurrentDuplicateReplaysWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.postedInvoice(t, "500", 10)
	pay := f.payment(t, "300")

	winner := AllocationResult{CommandID: uuid.New(), Success: true, Message: "won elsewhere", SourceID: pay.ID}
	payload, err := json.Marshal(winner)
	require.NoError(t, err)
	rec := shared.NewIdempotencyRecord(f.cc.CompanyID, "race-1", commandAllocate)
	rec.Result = payload
	require.NoError(t, f.repos.Idempotency().Create(ctx, rec))

	repos := f.repos
	repos.IdempotencyRepo = &racingIdempotency{memIdempotency: &memIdempotency{f.store}}
	svc := NewAllocationService(repos, &memTxScope{store: f.store, repos: repos}, zap.NewNop())

	result, err := svc.Allocate(ctx, f.cc, AllocateRequest{
		SourceType:     finance.SourceTypePayment,
		SourceID:       pay.ID,
		Strategy:       finance.StrategyFIFO,
		IdempotencyKey: "race-1",
	})
	require.NoError(t, err)
	assert.True(t, result.Replayed)
	assert.Equal(t, winner.CommandID, result.CommandID)
	assert.Zero(t, f.allocationCount())
	assert.True(t, dec("300").Equal(f.paymentByID(t, pay.ID).RemainingAmount))
}

func TestAllocationService_Reverse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.postedInvoice(t, "500", 10)
	pay := f.payment(t, "500")

	_, err := f.allocations.Allocate(ctx, f.cc, AllocateRequest{
		SourceType: finance.SourceTypePayment,
		SourceID:   pay.ID,
		Plan:       []PlanEntryInput{{DocumentID: doc.ID, Amount: dec("200")}},
	})
	require.NoError(t, err)
	second, err := f.allocations.Allocate(ctx, f.cc, AllocateRequest{
		SourceType: finance.SourceTypePayment,
		SourceID:   pay.ID,
		Plan:       []PlanEntryInput{{DocumentID: doc.ID, Amount: dec("300")}},
	})
	require.NoError(t, err)
	require.Equal(t, finance.DocumentStatusPaid, f.document(t, doc.ID).Status)
	require.Equal(t, finance.PaymentStatusCompleted, f.paymentByID(t, pay.ID).Status)

	result, err := f.allocations.Reverse(ctx, f.cc, ReverseAllocationRequest{
		AllocationID: second.Allocations[0].ID,
		Reason:       "bank returned funds",
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.Allocation.IsReversed)
	assert.Equal(t, finance.DocumentStatusPartiallyPaid, result.DocumentStatus)
	assert.True(t, dec("300").Equal(result.DocumentBalance))
	assert.True(t, dec("300").Equal(result.SourceRemaining))

	p := f.paymentByID(t, pay.ID)
	assert.Equal(t, finance.PaymentStatusPending, p.Status)
	assert.True(t, dec("300").Equal(p.RemainingAmount))
	assert.Contains(t, f.publisher.types(), finance.EventTypeAllocationReversed)
	assert.Contains(t, f.publisher.types(), finance.EventTypeDocumentReopened)

	_, err = f.allocations.Reverse(ctx, f.cc, ReverseAllocationRequest{
		AllocationID: second.Allocations[0].ID,
		Reason:       "again",
	})
	requireCode(t, err, finance.CodeAlreadyReversed)

	_, err = f.allocations.Reverse(ctx, f.cc, ReverseAllocationRequest{AllocationID: second.Allocations[0].ID})
	requireCode(t, err, shared.CodeValidationFailed)
}

func TestAllocationService_ReverseRestoresPosted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.postedInvoice(t, "500", 10)
	pay := f.payment(t, "200")

	res, err := f.allocations.Allocate(ctx, f.cc, AllocateRequest{
		SourceType: finance.SourceTypePayment,
		SourceID:   pay.ID,
		Strategy:   finance.StrategyFIFO,
	})
	require.NoError(t, err)

	_, err = f.allocations.Reverse(ctx, f.cc, ReverseAllocationRequest{AllocationID: res.Allocations[0].ID, Reason: "duplicate"})
	require.NoError(t, err)

	d := f.document(t, doc.ID)
	assert.Equal(t, finance.DocumentStatusPosted, d.Status)
	assert.True(t, dec("500").Equal(d.BalanceDue))
}

func TestAllocationService_Preview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.postedInvoice(t, "300", 10)
	f.postedInvoice(t, "400", 20)
	pay := f.payment(t, "500")

	preview, err := f.allocations.PreviewAllocation(ctx, f.cc.CompanyID, AllocateRequest{
		SourceType: finance.SourceTypePayment,
		SourceID:   pay.ID,
		Strategy:   finance.StrategyFIFO,
	})
	require.NoError(t, err)
	assert.True(t, preview.Valid)
	require.Len(t, preview.Lines, 2)
	assert.Equal(t, a.ID, preview.Lines[0].DocumentID)
	assert.True(t, preview.Lines[0].BalanceAfter.IsZero())
	assert.True(t, preview.RemainingAfter.IsZero())
	assert.Zero(t, f.allocationCount())

	invalid, err := f.allocations.PreviewAllocation(ctx, f.cc.CompanyID, AllocateRequest{
		SourceType: finance.SourceTypePayment,
		SourceID:   pay.ID,
		Plan:       []PlanEntryInput{{DocumentID: a.ID, Amount: dec("301")}},
	})
	require.NoError(t, err)
	assert.False(t, invalid.Valid)
	assert.Contains(t, invalid.Errors, "plan[0]")
}

func TestAllocationService_Queries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.postedInvoice(t, "300", -3)
	f.postedInvoice(t, "400", 20)
	pay := f.payment(t, "500")

	_, err := f.allocations.Allocate(ctx, f.cc, AllocateRequest{
		SourceType: finance.SourceTypePayment,
		SourceID:   pay.ID,
		Strategy:   finance.StrategyFIFO,
		Amount:     dec("100"),
	})
	require.NoError(t, err)

	summary, err := f.allocations.GetPaymentSummary(ctx, f.cc.CompanyID, pay.ID)
	require.NoError(t, err)
	assert.True(t, dec("100").Equal(summary.AllocatedAmount))
	assert.True(t, dec("400").Equal(summary.RemainingAmount))
	assert.False(t, summary.FullyAllocated)
	assert.Len(t, summary.Allocations, 1)

	balance, err := f.allocations.GetCounterpartBalance(ctx, f.cc.CompanyID, f.counterpart)
	require.NoError(t, err)
	assert.Len(t, balance.Documents, 2)
	assert.True(t, dec("600").Equal(balance.TotalBalanceDue))
	assert.True(t, dec("200").Equal(balance.OverdueBalance))
	assert.True(t, dec("400").Equal(balance.UnallocatedPayments))
	assert.True(t, dec("200").Equal(balance.NetBalance))

	page, err := f.allocations.GetAllocations(ctx, f.cc.CompanyID, AllocationListFilter{PaymentID: &pay.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Total)

	_, err = f.allocations.GetAllocations(ctx, f.cc.CompanyID, AllocationListFilter{PaymentID: &pay.ID, CreditNoteID: &pay.ID})
	requireCode(t, err, shared.CodeValidationFailed)

	stats, err := f.allocations.GetAllocationStatistics(ctx, f.cc.CompanyID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Active)
	assert.EqualValues(t, 1, stats.ByStrategy[finance.StrategyFIFO].Count)

	strategies := f.allocations.AvailableStrategies()
	assert.Len(t, strategies, len(finance.AllStrategyTypes()))
}

type stubLocker struct {
	err      error
	locked   int
	released int
}

func (l *stubLocker) Lock(context.Context, uuid.UUID, finance.SourceType, uuid.UUID) (Unlock, error) {
	if l.err != nil {
		return nil, l.err
	}
	l.locked++
	return func(context.Context) error { l.released++; return nil }, nil
}

func TestAllocationService_SourceLocker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.postedInvoice(t, "100", 10)
	pay := f.payment(t, "100")
	req := AllocateRequest{SourceType: finance.SourceTypePayment, SourceID: pay.ID, Strategy: finance.StrategyFIFO}

	busy := &stubLocker{err: shared.ErrLockNotObtained}
	f.allocations.SetSourceLocker(busy)
	_, err := f.allocations.Allocate(ctx, f.cc, req)
	requireCode(t, err, shared.CodeLockNotObtained)

	locker := &stubLocker{}
	f.allocations.SetSourceLocker(locker)
	_, err = f.allocations.Allocate(ctx, f.cc, req)
	require.NoError(t, err)
	assert.Equal(t, 1, locker.locked)
	assert.Equal(t, 1, locker.released)
}

func TestNewCommandResult(t *testing.T) {
	ok := NewCommandResult(nil, "done")
	assert.True(t, ok.Success)

	failed := NewCommandResult(shared.NewValidationError("bad", map[string]string{"amount": "required"}), "")
	assert.False(t, failed.Success)
	assert.Equal(t, shared.CodeValidationFailed, failed.Code)
	assert.Equal(t, "required", failed.Errors["amount"])

	internal := NewCommandResult(errBoom, "")
	assert.Equal(t, "INTERNAL_ERROR", internal.Code)
	assert.NotContains(t, internal.Message, "boom")
}
