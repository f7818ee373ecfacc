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

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	de, ok := shared.AsDomainError(err)
	require.True(t, ok, "expected domain error, got %v", err)
	assert.Equal(t, code, de.Code)
}

func TestDocumentStatus_TransitionTable(t *testing.T) {
	assert.True(t, DocumentStatusDraft.CanTransitionTo(DocumentStatusPendingApproval))
	assert.True(t, DocumentStatusPendingApproval.CanTransitionTo(DocumentStatusRejected))
	assert.True(t, DocumentStatusApproved.CanTransitionTo(DocumentStatusPosted))
	assert.True(t, DocumentStatusPaid.CanTransitionTo(DocumentStatusPartiallyPaid))

	assert.False(t, DocumentStatusDraft.CanTransitionTo(DocumentStatusPosted))
	assert.False(t, DocumentStatusPaid.CanTransitionTo(DocumentStatusCancelled))
	assert.False(t, DocumentStatusDraft.CanTransitionTo(DocumentStatusRejected))

	for _, s := range AllDocumentStatuses() {
		assert.True(t, s.IsValid())
		assert.False(t, DocumentStatusCancelled.CanTransitionTo(s))
		assert.False(t, DocumentStatusRejected.CanTransitionTo(s))
	}
	assert.False(t, DocumentStatus("void").IsValid())
}

func TestNewPayableDocument_Validation(t *testing.T) {
	_, err := NewPayableDocument(uuid.Nil, "receipt", " ", uuid.Nil, "usd", decimal.NewFromInt(-1), time.Now(), nil, uuid.New())
	de, ok := shared.AsDomainError(err)
	require.True(t, ok)
	assert.Equal(t, shared.CodeValidationFailed, de.Code)
	for _, field := range []string{"company_id", "kind", "document_number", "counterpart_id", "currency", "exchange_rate"} {
		assert.Contains(t, de.Details, field)
	}

	issue := time.Now()
	due := issue.AddDate(0, 0, -1)
	_, err = NewPayableDocument(uuid.New(), DocumentKindBill, "B-1", uuid.New(), "USD", decimal.Zero, issue, &due, uuid.New())
	de, _ = shared.AsDomainError(err)
	assert.Contains(t, de.Details, "due_date")
}

func TestPayableDocument_Lifecycle(t *testing.T) {
	calc := NewTaxCalculator()
	doc, err := NewPayableDocument(uuid.New(), DocumentKindInvoice, "INV-1", uuid.New(), "USD", decimal.Zero, time.Now(), nil, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, DocumentStatusDraft, doc.Status)
	assert.True(t, doc.ExchangeRate.Equal(decimal.NewFromInt(1)))

	t.Run("submit without lines is rejected", func(t *testing.T) {
		assertCode(t, doc.Submit(uuid.New()), CodeNoLineItems)
	})

	require.NoError(t, doc.ReplaceLines([]DocumentLine{
		NewDocumentLine("Consulting", d("2"), d("50"), d("10"), []TaxRate{{Name: "VAT", Type: TaxRateTypePercentage, Rate: d("10")}}),
		NewDocumentLine("Travel", d("1"), d("20"), decimal.Zero, nil),
	}, calc))
	assert.Equal(t, "110.00", doc.Subtotal.StringFixed(2))
	assert.Equal(t, "9.00", doc.TaxAmount.StringFixed(2))
	assert.Equal(t, "119.00", doc.TotalAmount.StringFixed(2))
	assert.Equal(t, 2, doc.Lines[1].LineNumber)

	t.Run("cannot post before approval", func(t *testing.T) {
		_, err := doc.Post(uuid.New(), calc)
		assertCode(t, err, CodeInvalidTransition)
	})

	require.NoError(t, doc.Submit(uuid.New()))
	assert.False(t, doc.CanBeEdited(), "invoices are locked once submitted")
	assertCode(t, doc.ReplaceLines(nil, calc), CodeNotEditable)

	approver := uuid.New()
	require.NoError(t, doc.Approve(approver))
	assert.Equal(t, approver, *doc.ApprovedBy)

	components, err := doc.Post(uuid.New(), calc)
	require.NoError(t, err)
	assert.Equal(t, DocumentStatusPosted, doc.Status)
	assert.True(t, doc.BalanceDue.Equal(doc.TotalAmount))
	require.Len(t, components, 1)
	assert.Equal(t, "9.00", components[0].TaxAmount.StringFixed(2))
	assert.Equal(t, 1, components[0].LineNumber)
	assert.NotNil(t, doc.PostedAt)

	var types []string
	for _, e := range doc.GetDomainEvents() {
		types = append(types, e.EventType())
	}
	assert.Equal(t, []string{EventTypeDocumentCreated, EventTypeDocumentSubmitted, EventTypeDocumentApproved, EventTypeDocumentPosted}, types)
}

func TestPayableDocument_ReplaceLinesReportsLineNumber(t *testing.T) {
	doc, err := NewPayableDocument(uuid.New(), DocumentKindInvoice, "INV-2", uuid.New(), "USD", decimal.Zero, time.Now(), nil, uuid.New())
	require.NoError(t, err)

	err = doc.ReplaceLines([]DocumentLine{
		NewDocumentLine("Consulting", d("1"), d("50"), decimal.Zero, nil),
		NewDocumentLine("Refund", d("-1"), d("20"), decimal.Zero, nil),
	}, NewTaxCalculator())
	assertCode(t, err, shared.CodeInvalidInput)
	de, _ := shared.AsDomainError(err)
	assert.Equal(t, "line 2: Quantity must be positive", de.Details["lines"])
}

func TestPayableDocument_BillEditableWhilePending(t *testing.T) {
	doc, err := NewPayableDocument(uuid.New(), DocumentKindBill, "BILL-1", uuid.New(), "EUR", decimal.Zero, time.Now(), nil, uuid.New())
	require.NoError(t, err)
	require.NoError(t, doc.ReplaceLines([]DocumentLine{NewDocumentLine("Paper", d("3"), d("4"), decimal.Zero, nil)}, NewTaxCalculator()))
	require.NoError(t, doc.Submit(uuid.New()))
	assert.True(t, doc.CanBeEdited())
	require.NoError(t, doc.ReplaceLines([]DocumentLine{NewDocumentLine("Paper", d("5"), d("4"), decimal.Zero, nil)}, NewTaxCalculator()))
	assert.Equal(t, "20.00", doc.TotalAmount.StringFixed(2))
}

func TestPayableDocument_Reject(t *testing.T) {
	doc, err := NewPayableDocument(uuid.New(), DocumentKindPurchaseOrder, "PO-1", uuid.New(), "USD", decimal.Zero, time.Now(), nil, uuid.New())
	require.NoError(t, err)
	require.NoError(t, doc.ReplaceLines([]DocumentLine{NewDocumentLine("Chairs", d("1"), d("99"), decimal.Zero, nil)}, NewTaxCalculator()))
	assertCode(t, doc.Reject(uuid.New(), "nope"), CodeInvalidTransition)
	require.NoError(t, doc.Submit(uuid.New()))
	assertCode(t, doc.Reject(uuid.New(), ""), shared.CodeValidationFailed)
	require.NoError(t, doc.Reject(uuid.New(), "over budget"))
	assert.Equal(t, DocumentStatusRejected, doc.Status)
	assert.False(t, doc.CanBeCancelled(false))
}

func TestPayableDocument_ApplyAndRestore(t *testing.T) {
	doc := newPostedInvoice(t, uuid.New(), uuid.New(), "500", nil)
	now := time.Now()

	assertCode(t, doc.ApplyAllocation(d("600"), now), CodeAmountExceedsBalance)
	assertCode(t, doc.ApplyAllocation(decimal.Zero, now), CodeInvalidAmount)

	require.NoError(t, doc.ApplyAllocation(d("200"), now))
	assert.Equal(t, DocumentStatusPartiallyPaid, doc.Status)
	assert.Equal(t, "300.00", doc.BalanceDue.StringFixed(2))

	require.NoError(t, doc.ApplyAllocation(d("300"), now))
	assert.Equal(t, DocumentStatusPaid, doc.Status)
	assert.True(t, doc.BalanceDue.IsZero())
	require.NotNil(t, doc.PaidAt)

	assertCode(t, doc.ApplyAllocation(d("1"), now), CodeDocumentNotPayable)

	require.NoError(t, doc.RestoreAllocation(d("300")))
	assert.Equal(t, DocumentStatusPartiallyPaid, doc.Status)
	assert.Nil(t, doc.PaidAt)

	require.NoError(t, doc.RestoreAllocation(d("200")))
	assert.Equal(t, DocumentStatusPosted, doc.Status)
	assert.True(t, doc.BalanceDue.Equal(doc.TotalAmount))

	assertCode(t, doc.RestoreAllocation(d("1")), CodeInvalidAmount)
}

func TestPayableDocument_Cancel(t *testing.T) {
	doc := newPostedInvoice(t, uuid.New(), uuid.New(), "100", nil)
	assert.False(t, doc.CanBeCancelled(true))
	assertCode(t, doc.Cancel(uuid.New(), "duplicate", true), CodeHasActiveAllocations)
	assert.Equal(t, DocumentStatusPosted, doc.Status)

	require.NoError(t, doc.Cancel(uuid.New(), "duplicate", false))
	assert.Equal(t, DocumentStatusCancelled, doc.Status)
	assert.Equal(t, "duplicate", doc.CancelReason)
	assertCode(t, doc.Cancel(uuid.New(), "again", false), CodeInvalidTransition)

	paid := newPostedInvoice(t, uuid.New(), uuid.New(), "100", nil)
	require.NoError(t, paid.ApplyAllocation(d("100"), time.Now()))
	assertCode(t, paid.Cancel(uuid.New(), "x", false), CodeInvalidTransition)
}

func TestPayableDocument_Overdue(t *testing.T) {
	now := time.Now()
	overdue := newPostedInvoice(t, uuid.New(), uuid.New(), "100", dayOffset(-3))
	assert.True(t, overdue.IsOverdue(now))
	assert.Equal(t, 3, overdue.DaysOverdue(now))

	dueToday := newPostedInvoice(t, uuid.New(), uuid.New(), "100", dayOffset(0))
	assert.False(t, dueToday.IsOverdue(now))

	noDue := newPostedInvoice(t, uuid.New(), uuid.New(), "100", nil)
	assert.False(t, noDue.IsOverdue(now))
	assert.Equal(t, 0, noDue.DaysOverdue(now))
}
