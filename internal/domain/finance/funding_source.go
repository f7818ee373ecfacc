package finance

import (
	"time"

	"github.com/erp/settlement/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SourceType identifies what funds an allocation
type SourceType string

const (
	SourceTypePayment    SourceType = "payment"
	SourceTypeCreditNote SourceType = "credit_note"
)

// IsValid checks if the source type is known
func (t SourceType) IsValid() bool {
	return t == SourceTypePayment || t == SourceTypeCreditNote
}

// String returns the string representation
func (t SourceType) String() string {
	return string(t)
}

// FundingSource is a payment or credit note whose remaining amount can be
// allocated to documents. Payment and CreditNote implement it.
type FundingSource interface {
	SourceType() SourceType
	SourceID() uuid.UUID
	OwnerCompanyID() uuid.UUID
	Counterpart() uuid.UUID
	SourceCurrency() valueobject.Currency
	SourceNumber() string
	SourceStatus() string
	Remaining() decimal.Decimal
	// CanFund returns an error when the source cannot currently fund allocations
	CanFund() error
	// AllowsTarget reports whether the source may pay the given document
	AllowsTarget(documentID uuid.UUID) bool
	Consume(amount decimal.Decimal, at time.Time) error
	Restore(amount decimal.Decimal) error
}
