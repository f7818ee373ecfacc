package finance

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func dayOffset(days int) *time.Time {
	t := StartOfDay(time.Now()).AddDate(0, 0, days)
	return &t
}

// newPostedInvoice builds an invoice with a single untaxed line and walks it to posted
func newPostedInvoice(t *testing.T, companyID, counterpartID uuid.UUID, total string, due *time.Time) *PayableDocument {
	t.Helper()
	issue := StartOfDay(time.Now()).AddDate(0, -1, 0)
	doc, err := NewPayableDocument(companyID, DocumentKindInvoice, "INV-"+uuid.NewString()[:8], counterpartID, "USD", decimal.Zero, issue, due, uuid.New())
	require.NoError(t, err)
	calc := NewTaxCalculator()
	require.NoError(t, doc.ReplaceLines([]DocumentLine{
		NewDocumentLine("Services", d("1"), d(total), decimal.Zero, nil),
	}, calc))
	require.NoError(t, doc.Submit(uuid.New()))
	require.NoError(t, doc.Approve(uuid.New()))
	_, err = doc.Post(uuid.New(), calc)
	require.NoError(t, err)
	doc.ClearDomainEvents()
	return doc
}
