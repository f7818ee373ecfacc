package finance

import (
	"strings"
	"time"

	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AggregateTypePayment is the aggregate type name used in events and audit
const AggregateTypePayment = "Payment"

// PaymentStatus represents the status of a payment
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// IsValid checks if the status is known
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusCompleted, PaymentStatusCancelled:
		return true
	}
	return false
}

// PaymentMethod is how the money was received or paid out
type PaymentMethod string

const (
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodCheck        PaymentMethod = "check"
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodOther        PaymentMethod = "other"
)

// IsValid checks if the method is known
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodBankTransfer, PaymentMethodCash, PaymentMethodCheck, PaymentMethodCard, PaymentMethodOther:
		return true
	}
	return false
}

// Payment is money received from or paid to a counterpart, waiting to be
// allocated to documents. Invariant: 0 <= RemainingAmount <= Amount.
type Payment struct {
	shared.CompanyAggregateRoot
	PaymentNumber   string
	CounterpartID   uuid.UUID
	Amount          decimal.Decimal
	RemainingAmount decimal.Decimal
	Currency        valueobject.Currency
	PaymentDate     time.Time
	Method          PaymentMethod
	Reference       string
	Status          PaymentStatus
	CompletedAt     *time.Time
	CancelledAt     *time.Time
	CancelReason    string
}

// NewPayment registers a pending payment
func NewPayment(
	companyID uuid.UUID,
	paymentNumber string,
	counterpartID uuid.UUID,
	amount decimal.Decimal,
	currency valueobject.Currency,
	paymentDate time.Time,
	method PaymentMethod,
	reference string,
	createdBy uuid.UUID,
) (*Payment, error) {
	details := map[string]string{}
	if companyID == uuid.Nil {
		details["company_id"] = "company is required"
	}
	if strings.TrimSpace(paymentNumber) == "" {
		details["payment_number"] = "payment number is required"
	}
	if counterpartID == uuid.Nil {
		details["counterpart_id"] = "counterpart is required"
	}
	if !amount.IsPositive() {
		details["amount"] = "amount must be positive"
	} else if !valueobject.IsAmountScale(amount) {
		details["amount"] = "amount has too many decimal places"
	}
	if err := currency.Validate(); err != nil {
		details["currency"] = err.Error()
	}
	if method == "" {
		method = PaymentMethodBankTransfer
	}
	if !method.IsValid() {
		details["method"] = "unknown payment method"
	}
	if len(details) > 0 {
		return nil, shared.NewValidationError("Invalid payment", details)
	}

	p := &Payment{
		CompanyAggregateRoot: shared.NewCompanyAggregateRoot(companyID, createdBy),
		PaymentNumber:        strings.TrimSpace(paymentNumber),
		CounterpartID:        counterpartID,
		Amount:               amount,
		RemainingAmount:      amount,
		Currency:             currency,
		PaymentDate:          paymentDate,
		Method:               method,
		Reference:            reference,
		Status:               PaymentStatusPending,
	}
	p.AddDomainEvent(NewPaymentEvent(EventTypePaymentRegistered, p))
	return p, nil
}

// AllocatedAmount returns amount minus remaining
func (p *Payment) AllocatedAmount() decimal.Decimal {
	return p.Amount.Sub(p.RemainingAmount)
}

// IsFullyAllocated returns true when nothing remains to allocate
func (p *Payment) IsFullyAllocated() bool {
	return p.RemainingAmount.IsZero()
}

// SourceType implements FundingSource
func (p *Payment) SourceType() SourceType { return SourceTypePayment }

// SourceID implements FundingSource
func (p *Payment) SourceID() uuid.UUID { return p.ID }

// OwnerCompanyID implements FundingSource
func (p *Payment) OwnerCompanyID() uuid.UUID { return p.CompanyID }

// Counterpart implements FundingSource
func (p *Payment) Counterpart() uuid.UUID { return p.CounterpartID }

// SourceCurrency implements FundingSource
func (p *Payment) SourceCurrency() valueobject.Currency { return p.Currency }

// SourceNumber implements FundingSource
func (p *Payment) SourceNumber() string { return p.PaymentNumber }

// SourceStatus implements FundingSource
func (p *Payment) SourceStatus() string { return string(p.Status) }

// Remaining implements FundingSource
func (p *Payment) Remaining() decimal.Decimal { return p.RemainingAmount }

// AllowsTarget implements FundingSource; payments may pay any matching document
func (p *Payment) AllowsTarget(uuid.UUID) bool { return true }

// CanFund implements FundingSource
func (p *Payment) CanFund() error {
	if p.Status == PaymentStatusCancelled {
		return shared.NewDomainErrorf(CodeSourceNotAvailable, "Payment %s is cancelled", p.PaymentNumber)
	}
	if !p.RemainingAmount.IsPositive() {
		return shared.NewDomainErrorf(CodeSourceNotAvailable, "Payment %s is fully allocated", p.PaymentNumber)
	}
	return nil
}

// Consume takes amount from the remaining balance, completing the payment
// when nothing remains.
func (p *Payment) Consume(amount decimal.Decimal, at time.Time) error {
	if err := p.CanFund(); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return shared.NewDomainError(CodeInvalidAmount, "Amount must be positive")
	}
	if amount.GreaterThan(p.RemainingAmount) {
		return shared.NewDomainErrorf(CodePlanExceedsRemaining, "Amount %s exceeds remaining %s on payment %s", amount.StringFixed(2), p.RemainingAmount.StringFixed(2), p.PaymentNumber)
	}
	p.RemainingAmount = p.RemainingAmount.Sub(amount)
	p.UpdatedAt = at
	if p.RemainingAmount.IsZero() {
		p.Status = PaymentStatusCompleted
		p.CompletedAt = &at
		p.AddDomainEvent(NewPaymentEvent(EventTypePaymentCompleted, p))
	}
	return nil
}

// Restore gives amount back to the remaining balance after a reversal
func (p *Payment) Restore(amount decimal.Decimal) error {
	if p.Status == PaymentStatusCancelled {
		return shared.NewDomainErrorf(CodeSourceNotAvailable, "Payment %s is cancelled", p.PaymentNumber)
	}
	if !amount.IsPositive() {
		return shared.NewDomainError(CodeInvalidAmount, "Amount must be positive")
	}
	if amount.GreaterThan(p.AllocatedAmount()) {
		return shared.NewDomainErrorf(CodeInvalidAmount, "Restored amount %s exceeds allocated %s on payment %s", amount.StringFixed(2), p.AllocatedAmount().StringFixed(2), p.PaymentNumber)
	}
	p.RemainingAmount = p.RemainingAmount.Add(amount)
	p.Status = PaymentStatusPending
	p.CompletedAt = nil
	p.UpdatedAt = time.Now()
	return nil
}

// Void cancels the payment. Payments with active allocations cannot be voided.
func (p *Payment) Void(reason string, hasActiveAllocations bool) error {
	if p.Status == PaymentStatusCancelled {
		return shared.NewDomainErrorf(CodeInvalidTransition, "Payment %s is already cancelled", p.PaymentNumber)
	}
	if hasActiveAllocations {
		return shared.NewDomainErrorf(CodeHasActiveAllocations, "Payment %s has active allocations; reverse them first", p.PaymentNumber)
	}
	if strings.TrimSpace(reason) == "" {
		return shared.NewValidationError("Void reason is required", map[string]string{"reason": "required"})
	}
	now := time.Now()
	p.Status = PaymentStatusCancelled
	p.CancelledAt = &now
	p.CancelReason = reason
	p.UpdatedAt = now
	p.AddDomainEvent(NewPaymentEvent(EventTypePaymentVoided, p))
	return nil
}

var _ FundingSource = (*Payment)(nil)
