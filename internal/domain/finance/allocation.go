package finance

import (
	"strings"
	"time"

	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AggregateTypeAllocation is the aggregate type name used in events and audit
const AggregateTypeAllocation = "PaymentAllocation"

// AllocationMethod records whether the caller chose the amounts
type AllocationMethod string

const (
	AllocationMethodManual    AllocationMethod = "manual"
	AllocationMethodAutomatic AllocationMethod = "automatic"
)

// AllocationStatus is derived from IsReversed and used for filtering
type AllocationStatus string

const (
	AllocationStatusActive   AllocationStatus = "active"
	AllocationStatusReversed AllocationStatus = "reversed"
)

// IsValid checks if the status is known
func (s AllocationStatus) IsValid() bool {
	return s == AllocationStatusActive || s == AllocationStatusReversed
}

// PaymentAllocation assigns part of a funding source to one document.
// The amount never changes after creation; Reverse is the only mutation.
type PaymentAllocation struct {
	shared.BaseEntity
	CompanyID       uuid.UUID
	CommandID       uuid.UUID
	SourceType      SourceType
	SourceID        uuid.UUID
	DocumentID      uuid.UUID
	CounterpartID   uuid.UUID
	AllocatedAmount decimal.Decimal
	Currency        valueobject.Currency
	AllocationDate  time.Time
	Strategy        StrategyType
	Method          AllocationMethod
	Notes           string
	CreatedBy       uuid.UUID
	IsReversed      bool
	ReversedAt      *time.Time
	ReversedBy      *uuid.UUID
	ReversalReason  string
}

// CreditNoteApplication is an allocation funded by a credit note
type CreditNoteApplication = PaymentAllocation

// NewPaymentAllocation creates an active allocation from source to document
func NewPaymentAllocation(
	commandID uuid.UUID,
	source FundingSource,
	document *PayableDocument,
	amount decimal.Decimal,
	strategy StrategyType,
	actor uuid.UUID,
	at time.Time,
) (*PaymentAllocation, error) {
	if !amount.IsPositive() {
		return nil, shared.NewDomainError(CodeInvalidAmount, "Allocated amount must be positive")
	}
	method := AllocationMethodAutomatic
	if strategy == StrategyManual {
		method = AllocationMethodManual
	}
	return &PaymentAllocation{
		BaseEntity:      shared.NewBaseEntity(),
		CompanyID:       source.OwnerCompanyID(),
		CommandID:       commandID,
		SourceType:      source.SourceType(),
		SourceID:        source.SourceID(),
		DocumentID:      document.ID,
		CounterpartID:   document.CounterpartID,
		AllocatedAmount: amount,
		Currency:        document.Currency,
		AllocationDate:  at,
		Strategy:        strategy,
		Method:          method,
		CreatedBy:       actor,
	}, nil
}

// Status returns active or reversed
func (a *PaymentAllocation) Status() AllocationStatus {
	if a.IsReversed {
		return AllocationStatusReversed
	}
	return AllocationStatusActive
}

// Reverse flips the allocation to reversed and stamps who, when and why
func (a *PaymentAllocation) Reverse(actor uuid.UUID, reason string, at time.Time) error {
	if a.IsReversed {
		return shared.NewDomainError(CodeAlreadyReversed, "Allocation has already been reversed")
	}
	if strings.TrimSpace(reason) == "" {
		return shared.NewValidationError("Reversal reason is required", map[string]string{"reason": "required"})
	}
	a.IsReversed = true
	a.ReversedAt = &at
	a.ReversedBy = &actor
	a.ReversalReason = strings.TrimSpace(reason)
	a.UpdatedAt = at
	return nil
}
