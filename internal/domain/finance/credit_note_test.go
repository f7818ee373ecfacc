package finance

import (
	"testing"
	"time"

	"github.com/erp/settlement/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(t *testing.T, qty, price, rate string) CreditNoteItem {
	t.Helper()
	it, err := NewCreditNoteItem("Returned goods", d(qty), d(price), d(rate))
	require.NoError(t, err)
	return it
}

func TestCreditNoteStatus_Transitions(t *testing.T) {
	assert.True(t, CreditNoteStatusDraft.CanTransitionTo(CreditNoteStatusPosted))
	assert.True(t, CreditNoteStatusPosted.CanTransitionTo(CreditNoteStatusCancelled))
	assert.False(t, CreditNoteStatusPosted.CanTransitionTo(CreditNoteStatusDraft))
	assert.False(t, CreditNoteStatusCancelled.CanTransitionTo(CreditNoteStatusPosted))
	assert.Equal(t, "CN-2026-0042", FormatCreditNoteNumber(2026, 42))
}

func TestNewCreditNoteItem(t *testing.T) {
	it := item(t, "2", "10.005", "10")
	assert.Equal(t, "20.01", it.Amount.StringFixed(2))
	assert.Equal(t, "2.00", it.TaxAmount.StringFixed(2))
	assert.Equal(t, "22.01", it.Total.StringFixed(2))

	_, err := NewCreditNoteItem("", decimal.Zero, d("-1"), d("120"))
	de, ok := shared.AsDomainError(err)
	require.True(t, ok)
	assert.Len(t, de.Details, 4)
}

func TestNewCreditNote(t *testing.T) {
	companyID := uuid.New()
	source := newPostedInvoice(t, companyID, uuid.New(), "300", nil)

	t.Run("credits a posted document", func(t *testing.T) {
		cn, err := NewCreditNote(companyID, "CN-2026-0001", source, "damaged", []CreditNoteItem{item(t, "1", "100", "10")}, time.Now(), uuid.New())
		require.NoError(t, err)
		assert.Equal(t, CreditNoteStatusDraft, cn.Status)
		assert.Equal(t, "110.00", cn.TotalAmount.StringFixed(2))
		assert.Equal(t, source.CounterpartID, cn.CounterpartID)
		assert.Equal(t, source.Currency, cn.Currency)
	})

	t.Run("cannot exceed the source balance", func(t *testing.T) {
		_, err := NewCreditNote(companyID, "CN-2026-0002", source, "", []CreditNoteItem{item(t, "1", "300.01", "0")}, time.Now(), uuid.New())
		assertCode(t, err, CodeCreditExceedsBalance)
	})

	t.Run("requires a posted source", func(t *testing.T) {
		draft, err := NewPayableDocument(companyID, DocumentKindInvoice, "INV-D", uuid.New(), "USD", decimal.Zero, time.Now(), nil, uuid.New())
		require.NoError(t, err)
		_, err = NewCreditNote(companyID, "CN-2026-0003", draft, "", []CreditNoteItem{item(t, "1", "1", "0")}, time.Now(), uuid.New())
		assertCode(t, err, CodeDocumentNotPosted)
	})

	t.Run("rejects other companies' documents", func(t *testing.T) {
		_, err := NewCreditNote(uuid.New(), "CN-2026-0004", source, "", []CreditNoteItem{item(t, "1", "1", "0")}, time.Now(), uuid.New())
		assertCode(t, err, shared.CodeTenantMismatch)
	})

	t.Run("requires items", func(t *testing.T) {
		_, err := NewCreditNote(companyID, "CN-2026-0005", source, "", nil, time.Now(), uuid.New())
		assertCode(t, err, CodeNoLineItems)
	})
}

func TestCreditNote_Lifecycle(t *testing.T) {
	companyID := uuid.New()
	source := newPostedInvoice(t, companyID, uuid.New(), "300", nil)
	cn, err := NewCreditNote(companyID, "CN-2026-0001", source, "damaged", []CreditNoteItem{item(t, "1", "100", "0")}, time.Now(), uuid.New())
	require.NoError(t, err)

	assertCode(t, cn.CanFund(), CodeSourceNotAvailable)
	assert.True(t, cn.AllowsTarget(source.ID))
	assert.False(t, cn.AllowsTarget(uuid.New()))

	require.NoError(t, source.ApplyAllocation(d("250"), time.Now()))
	assertCode(t, cn.Post(uuid.New(), source), CodeCreditExceedsBalance)
	require.NoError(t, source.RestoreAllocation(d("250")))

	require.NoError(t, cn.Post(uuid.New(), source))
	assert.Equal(t, CreditNoteStatusPosted, cn.Status)
	assertCode(t, cn.Post(uuid.New(), source), CodeInvalidTransition)

	require.NoError(t, cn.Consume(d("60"), time.Now()))
	assert.Equal(t, "40.00", cn.RemainingAmount.StringFixed(2))
	assertCode(t, cn.Consume(d("41"), time.Now()), CodePlanExceedsRemaining)
	assert.False(t, cn.CanBeCancelled(true))
	assertCode(t, cn.Cancel("wrong", true), CodeHasActiveAllocations)

	require.NoError(t, cn.Restore(d("60")))
	require.NoError(t, cn.Cancel("issued in error", false))
	assert.Equal(t, CreditNoteStatusCancelled, cn.Status)
	assertCode(t, cn.CanFund(), CodeSourceNotAvailable)
}
