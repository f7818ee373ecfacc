package finance

import (
	"context"
	"testing"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentService_Register(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := RegisterPaymentRequest{
		PaymentNumber:  "PAY-0001",
		CounterpartID:  f.counterpart,
		Amount:         dec("250"),
		Method:         finance.PaymentMethodCash,
		IdempotencyKey: "pay-1",
	}

	p, err := f.payments.Register(ctx, f.cc, req)
	require.NoError(t, err)
	assert.Equal(t, finance.PaymentStatusPending, p.Status)
	assert.Equal(t, "USD", p.Currency)
	assert.True(t, dec("250").Equal(p.RemainingAmount))
	assert.False(t, p.Replayed)

	again, err := f.payments.Register(ctx, f.cc, req)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, p.ID, again.ID)

	page, err := f.payments.List(ctx, f.cc.CompanyID, finance.PaymentFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Total)
	assert.Contains(t, f.auditActions(), finance.AuditPaymentRegistered)
}

func TestPaymentService_RegisterValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.payments.Register(ctx, f.cc, RegisterPaymentRequest{
		PaymentNumber: "PAY-0002",
		CounterpartID: f.counterpart,
		Amount:        dec("0"),
		Method:        finance.PaymentMethodCash,
	})
	require.Error(t, err)
	_, ok := shared.AsDomainError(err)
	assert.True(t, ok)

	_, err = f.payments.Register(ctx, f.cc, RegisterPaymentRequest{
		PaymentNumber:  "PAY-0003",
		CounterpartID:  f.counterpart,
		Amount:         dec("10"),
		Method:         finance.PaymentMethodCash,
		IdempotencyKey: "   ",
	})
	requireCode(t, err, shared.CodeValidationFailed)
}

func TestPaymentService_Void(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.postedInvoice(t, "100", 10)
	pay := f.payment(t, "60")

	res, err := f.allocations.Allocate(ctx, f.cc, AllocateRequest{
		SourceType: finance.SourceTypePayment,
		SourceID:   pay.ID,
		Strategy:   finance.StrategyFIFO,
	})
	require.NoError(t, err)

	_, err = f.payments.Void(ctx, f.cc, pay.ID, VoidPaymentRequest{Reason: "bounced"})
	requireCode(t, err, finance.CodeHasActiveAllocations)

	_, err = f.allocations.Reverse(ctx, f.cc, ReverseAllocationRequest{AllocationID: res.Allocations[0].ID, Reason: "bounced"})
	require.NoError(t, err)
	assert.True(t, dec("100").Equal(f.document(t, doc.ID).BalanceDue))

	_, err = f.payments.Void(ctx, f.cc, pay.ID, VoidPaymentRequest{})
	requireCode(t, err, shared.CodeValidationFailed)

	voided, err := f.payments.Void(ctx, f.cc, pay.ID, VoidPaymentRequest{Reason: "bounced"})
	require.NoError(t, err)
	assert.Equal(t, finance.PaymentStatusCancelled, voided.Status)

	_, err = f.allocations.Allocate(ctx, f.cc, AllocateRequest{
		SourceType: finance.SourceTypePayment,
		SourceID:   pay.ID,
		Strategy:   finance.StrategyFIFO,
	})
	requireCode(t, err, finance.CodeSourceNotAvailable)
	assert.Contains(t, f.publisher.types(), finance.EventTypePaymentVoided)
}
