package finance

import (
	"fmt"
	"strings"
	"time"

	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AggregateTypeCreditNote is the aggregate type name used in events and audit
const AggregateTypeCreditNote = "CreditNote"

// CreditNoteStatus is the lifecycle state of a credit note
type CreditNoteStatus string

const (
	CreditNoteStatusDraft     CreditNoteStatus = "draft"
	CreditNoteStatusPosted    CreditNoteStatus = "posted"
	CreditNoteStatusCancelled CreditNoteStatus = "cancelled"
)

var creditNoteTransitions = map[CreditNoteStatus][]CreditNoteStatus{
	CreditNoteStatusDraft:     {CreditNoteStatusPosted, CreditNoteStatusCancelled},
	CreditNoteStatusPosted:    {CreditNoteStatusCancelled},
	CreditNoteStatusCancelled: {},
}

// IsValid checks if the status is known
func (s CreditNoteStatus) IsValid() bool {
	_, ok := creditNoteTransitions[s]
	return ok
}

// CanTransitionTo reports whether the table allows moving to next
func (s CreditNoteStatus) CanTransitionTo(next CreditNoteStatus) bool {
	for _, allowed := range creditNoteTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AllCreditNoteStatuses returns every credit note status
func AllCreditNoteStatuses() []CreditNoteStatus {
	return []CreditNoteStatus{CreditNoteStatusDraft, CreditNoteStatusPosted, CreditNoteStatusCancelled}
}

// FormatCreditNoteNumber renders CN-YYYY-NNNN
func FormatCreditNoteNumber(year, sequence int) string {
	return fmt.Sprintf("CN-%d-%04d", year, sequence)
}

// CreditNoteItem is a line on a credit note. TaxRate is a percentage.
type CreditNoteItem struct {
	ID          uuid.UUID
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	TaxRate     decimal.Decimal
	Amount      decimal.Decimal
	TaxAmount   decimal.Decimal
	Total       decimal.Decimal
}

// NewCreditNoteItem creates an item and computes its amounts
func NewCreditNoteItem(description string, quantity, unitPrice, taxRate decimal.Decimal) (CreditNoteItem, error) {
	details := map[string]string{}
	if strings.TrimSpace(description) == "" {
		details["description"] = "description is required"
	}
	if !quantity.IsPositive() {
		details["quantity"] = "quantity must be positive"
	}
	if unitPrice.IsNegative() {
		details["unit_price"] = "unit price cannot be negative"
	}
	if taxRate.IsNegative() || taxRate.GreaterThan(hundred) {
		details["tax_rate"] = "tax rate must be between 0 and 100"
	}
	if len(details) > 0 {
		return CreditNoteItem{}, shared.NewValidationError("Invalid credit note item", details)
	}
	amount := valueobject.RoundAmount(quantity.Mul(unitPrice))
	tax := valueobject.RoundAmount(amount.Mul(taxRate).Div(hundred))
	return CreditNoteItem{
		ID:          uuid.New(),
		Description: strings.TrimSpace(description),
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		TaxRate:     taxRate,
		Amount:      amount,
		TaxAmount:   tax,
		Total:       amount.Add(tax),
	}, nil
}

// CreditNote reduces what is owed on one posted source document.
// Once posted its remaining amount is applied to the source document through
// the allocation engine until it reaches zero.
type CreditNote struct {
	shared.CompanyAggregateRoot
	CreditNoteNumber   string
	SourceDocumentID   uuid.UUID
	CounterpartID      uuid.UUID
	Currency           valueobject.Currency
	Reason             string
	IssueDate          time.Time
	Items              []CreditNoteItem
	Amount             decimal.Decimal
	TaxAmount          decimal.Decimal
	TotalAmount        decimal.Decimal
	RemainingAmount    decimal.Decimal
	Status             CreditNoteStatus
	PostedAt           *time.Time
	PostedBy           *uuid.UUID
	CancelledAt        *time.Time
	CancellationReason string
}

func validateCreditSource(companyID uuid.UUID, source *PayableDocument, total decimal.Decimal) error {
	if source.CompanyID != companyID {
		return shared.NewDomainError(shared.CodeTenantMismatch, "Source document belongs to a different company")
	}
	if !source.Status.AcceptsAllocations() {
		return shared.NewDomainErrorf(CodeDocumentNotPosted, "Credit notes can only target posted documents; %s is %s", source.DocumentNumber, source.Status)
	}
	if total.GreaterThan(source.BalanceDue) {
		return shared.NewDomainErrorf(CodeCreditExceedsBalance, "Credit total %s exceeds balance due %s on %s", total.StringFixed(2), source.BalanceDue.StringFixed(2), source.DocumentNumber)
	}
	return nil
}

// NewCreditNote creates a draft credit note against a posted document
func NewCreditNote(
	companyID uuid.UUID,
	number string,
	source *PayableDocument,
	reason string,
	items []CreditNoteItem,
	issueDate time.Time,
	createdBy uuid.UUID,
) (*CreditNote, error) {
	if strings.TrimSpace(number) == "" {
		return nil, shared.NewValidationError("Invalid credit note", map[string]string{"credit_note_number": "required"})
	}
	if len(items) == 0 {
		return nil, shared.NewDomainError(CodeNoLineItems, "Credit note has no items")
	}
	amount, tax := decimal.Zero, decimal.Zero
	for _, it := range items {
		amount = amount.Add(it.Amount)
		tax = tax.Add(it.TaxAmount)
	}
	total := amount.Add(tax)
	if !total.IsPositive() {
		return nil, shared.NewDomainError(CodeInvalidAmount, "Credit note total must be positive")
	}
	if err := validateCreditSource(companyID, source, total); err != nil {
		return nil, err
	}

	cn := &CreditNote{
		CompanyAggregateRoot: shared.NewCompanyAggregateRoot(companyID, createdBy),
		CreditNoteNumber:     number,
		SourceDocumentID:     source.ID,
		CounterpartID:        source.CounterpartID,
		Currency:             source.Currency,
		Reason:               strings.TrimSpace(reason),
		IssueDate:            issueDate,
		Items:                items,
		Amount:               amount,
		TaxAmount:            tax,
		TotalAmount:          total,
		RemainingAmount:      total,
		Status:               CreditNoteStatusDraft,
	}
	cn.AddDomainEvent(NewCreditNoteEvent(EventTypeCreditNoteCreated, cn))
	return cn, nil
}

// CanBePosted returns true only for drafts
func (c *CreditNote) CanBePosted() bool {
	return c.Status.CanTransitionTo(CreditNoteStatusPosted)
}

// CanBeCancelled returns true for drafts and posted notes without active applications
func (c *CreditNote) CanBeCancelled(hasActiveApplications bool) bool {
	return !hasActiveApplications && c.Status.CanTransitionTo(CreditNoteStatusCancelled)
}

// AppliedAmount returns total minus remaining
func (c *CreditNote) AppliedAmount() decimal.Decimal {
	return c.TotalAmount.Sub(c.RemainingAmount)
}

// Post validates against the current source document and opens the note for application
func (c *CreditNote) Post(actor uuid.UUID, source *PayableDocument) error {
	if !c.CanBePosted() {
		return shared.NewDomainErrorf(CodeInvalidTransition, "Cannot post credit note %s in status %s", c.CreditNoteNumber, c.Status)
	}
	if source.ID != c.SourceDocumentID {
		return shared.NewDomainError(CodeCreditTargetMismatch, "Source document does not match the credit note")
	}
	if err := validateCreditSource(c.CompanyID, source, c.TotalAmount); err != nil {
		return err
	}
	now := time.Now()
	c.Status = CreditNoteStatusPosted
	c.PostedAt = &now
	c.PostedBy = &actor
	c.RemainingAmount = c.TotalAmount
	c.UpdatedAt = now
	c.AddDomainEvent(NewCreditNoteEvent(EventTypeCreditNotePosted, c))
	return nil
}

// Cancel cancels a draft or posted note that has no active applications
func (c *CreditNote) Cancel(reason string, hasActiveApplications bool) error {
	if hasActiveApplications {
		return shared.NewDomainErrorf(CodeHasActiveAllocations, "Credit note %s has active applications; reverse them first", c.CreditNoteNumber)
	}
	if !c.Status.CanTransitionTo(CreditNoteStatusCancelled) {
		return shared.NewDomainErrorf(CodeInvalidTransition, "Cannot cancel credit note %s in status %s", c.CreditNoteNumber, c.Status)
	}
	if strings.TrimSpace(reason) == "" {
		return shared.NewValidationError("Cancellation reason is required", map[string]string{"reason": "required"})
	}
	now := time.Now()
	c.Status = CreditNoteStatusCancelled
	c.CancelledAt = &now
	c.CancellationReason = strings.TrimSpace(reason)
	c.UpdatedAt = now
	c.AddDomainEvent(NewCreditNoteEvent(EventTypeCreditNoteCancelled, c))
	return nil
}

// SourceType implements FundingSource
func (c *CreditNote) SourceType() SourceType { return SourceTypeCreditNote }

// SourceID implements FundingSource
func (c *CreditNote) SourceID() uuid.UUID { return c.ID }

// OwnerCompanyID implements FundingSource
func (c *CreditNote) OwnerCompanyID() uuid.UUID { return c.CompanyID }

// Counterpart implements FundingSource
func (c *CreditNote) Counterpart() uuid.UUID { return c.CounterpartID }

// SourceCurrency implements FundingSource
func (c *CreditNote) SourceCurrency() valueobject.Currency { return c.Currency }

// SourceNumber implements FundingSource
func (c *CreditNote) SourceNumber() string { return c.CreditNoteNumber }

// SourceStatus implements FundingSource
func (c *CreditNote) SourceStatus() string { return string(c.Status) }

// Remaining implements FundingSource
func (c *CreditNote) Remaining() decimal.Decimal { return c.RemainingAmount }

// AllowsTarget implements FundingSource; a credit note only pays its source document
func (c *CreditNote) AllowsTarget(documentID uuid.UUID) bool {
	return documentID == c.SourceDocumentID
}

// CanFund implements FundingSource
func (c *CreditNote) CanFund() error {
	if c.Status != CreditNoteStatusPosted {
		return shared.NewDomainErrorf(CodeSourceNotAvailable, "Credit note %s is %s", c.CreditNoteNumber, c.Status)
	}
	if !c.RemainingAmount.IsPositive() {
		return shared.NewDomainErrorf(CodeSourceNotAvailable, "Credit note %s is fully applied", c.CreditNoteNumber)
	}
	return nil
}

// Consume implements FundingSource
func (c *CreditNote) Consume(amount decimal.Decimal, at time.Time) error {
	if err := c.CanFund(); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return shared.NewDomainError(CodeInvalidAmount, "Amount must be positive")
	}
	if amount.GreaterThan(c.RemainingAmount) {
		return shared.NewDomainErrorf(CodePlanExceedsRemaining, "Amount %s exceeds remaining credit %s on %s", amount.StringFixed(2), c.RemainingAmount.StringFixed(2), c.CreditNoteNumber)
	}
	c.RemainingAmount = c.RemainingAmount.Sub(amount)
	c.UpdatedAt = at
	return nil
}

// Restore implements FundingSource
func (c *CreditNote) Restore(amount decimal.Decimal) error {
	if c.Status != CreditNoteStatusPosted {
		return shared.NewDomainErrorf(CodeSourceNotAvailable, "Credit note %s is %s", c.CreditNoteNumber, c.Status)
	}
	if !amount.IsPositive() || amount.GreaterThan(c.AppliedAmount()) {
		return shared.NewDomainErrorf(CodeInvalidAmount, "Restored amount %s is invalid for %s", amount.StringFixed(2), c.CreditNoteNumber)
	}
	c.RemainingAmount = c.RemainingAmount.Add(amount)
	c.UpdatedAt = time.Now()
	return nil
}

var _ FundingSource = (*CreditNote)(nil)
