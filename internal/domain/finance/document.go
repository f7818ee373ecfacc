package finance

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AggregateTypeDocument is the aggregate type name used in events and audit
const AggregateTypeDocument = "PayableDocument"

// DocumentLine is a line item of a payable document
type DocumentLine struct {
	ID              uuid.UUID
	LineNumber      int
	Description     string
	Quantity        decimal.Decimal
	UnitPrice       decimal.Decimal
	DiscountPercent decimal.Decimal
	TaxRates        TaxRates
	TaxableAmount   decimal.Decimal
	TaxAmount       decimal.Decimal
	LineTotal       decimal.Decimal
}

// NewDocumentLine creates an uncomputed line
func NewDocumentLine(description string, quantity, unitPrice, discountPercent decimal.Decimal, rates []TaxRate) DocumentLine {
	return DocumentLine{
		ID:              uuid.New(),
		Description:     description,
		Quantity:        quantity,
		UnitPrice:       unitPrice,
		DiscountPercent: discountPercent,
		TaxRates:        rates,
	}
}

// PayableDocument is an invoice, bill, purchase order or tax return that
// carries a total, a balance due and a lifecycle status.
//
// BalanceDue only moves through ApplyAllocation and RestoreAllocation, which
// keep 0 <= BalanceDue <= TotalAmount.
type PayableDocument struct {
	shared.CompanyAggregateRoot
	Kind            DocumentKind
	DocumentNumber  string
	CounterpartID   uuid.UUID
	Status          DocumentStatus
	Currency        valueobject.Currency
	ExchangeRate    decimal.Decimal
	IssueDate       time.Time
	DueDate         *time.Time
	Lines           []DocumentLine
	Subtotal        decimal.Decimal
	TaxAmount       decimal.Decimal
	TotalAmount     decimal.Decimal
	BalanceDue      decimal.Decimal
	Notes           string
	SubmittedAt     *time.Time
	ApprovedAt      *time.Time
	ApprovedBy      *uuid.UUID
	PostedAt        *time.Time
	PostedBy        *uuid.UUID
	PaidAt          *time.Time
	RejectedAt      *time.Time
	RejectionReason string
	CancelledAt     *time.Time
	CancelReason    string
}

// NewPayableDocument creates a draft document
func NewPayableDocument(
	companyID uuid.UUID,
	kind DocumentKind,
	documentNumber string,
	counterpartID uuid.UUID,
	currency valueobject.Currency,
	exchangeRate decimal.Decimal,
	issueDate time.Time,
	dueDate *time.Time,
	createdBy uuid.UUID,
) (*PayableDocument, error) {
	details := map[string]string{}
	if companyID == uuid.Nil {
		details["company_id"] = "company is required"
	}
	if !kind.IsValid() {
		details["kind"] = "unknown document kind"
	}
	if strings.TrimSpace(documentNumber) == "" {
		details["document_number"] = "document number is required"
	}
	if counterpartID == uuid.Nil {
		details["counterpart_id"] = "counterpart is required"
	}
	if err := currency.Validate(); err != nil {
		details["currency"] = err.Error()
	}
	if exchangeRate.IsZero() {
		exchangeRate = decimal.NewFromInt(1)
	}
	if !exchangeRate.IsPositive() {
		details["exchange_rate"] = "exchange rate must be positive"
	}
	if dueDate != nil && dueDate.Before(issueDate) {
		details["due_date"] = "due date cannot be before issue date"
	}
	if len(details) > 0 {
		return nil, shared.NewValidationError("Invalid document", details)
	}

	doc := &PayableDocument{
		CompanyAggregateRoot: shared.NewCompanyAggregateRoot(companyID, createdBy),
		Kind:                 kind,
		DocumentNumber:       strings.TrimSpace(documentNumber),
		CounterpartID:        counterpartID,
		Status:               DocumentStatusDraft,
		Currency:             currency,
		ExchangeRate:         exchangeRate,
		IssueDate:            issueDate,
		DueDate:              dueDate,
		Lines:                make([]DocumentLine, 0),
		Subtotal:             decimal.Zero,
		TaxAmount:            decimal.Zero,
		TotalAmount:          decimal.Zero,
		BalanceDue:           decimal.Zero,
	}
	doc.AddDomainEvent(NewDocumentEvent(EventTypeDocumentCreated, doc))
	return doc, nil
}

func (d *PayableDocument) transition(next DocumentStatus) error {
	if !d.Status.CanTransitionTo(next) {
		return shared.NewDomainErrorf(CodeInvalidTransition, "Cannot move %s %s from %s to %s", d.Kind, d.DocumentNumber, d.Status, next)
	}
	d.Status = next
	d.UpdatedAt = time.Now()
	return nil
}

// CanBeEdited returns true while lines may still change
func (d *PayableDocument) CanBeEdited() bool {
	if d.Status == DocumentStatusDraft {
		return true
	}
	return d.Status == DocumentStatusPendingApproval && d.Kind.EditableWhilePending()
}

// CanBeApproved returns true only from pending_approval
func (d *PayableDocument) CanBeApproved() bool {
	return d.Status == DocumentStatusPendingApproval
}

// CanBePosted returns true only from approved
func (d *PayableDocument) CanBePosted() bool {
	return d.Status == DocumentStatusApproved
}

// CanBeCancelled returns true when the status allows cancelling and no
// active allocations or credits are applied
func (d *PayableDocument) CanBeCancelled(hasActiveAllocations bool) bool {
	if hasActiveAllocations {
		return false
	}
	return d.Status.CanTransitionTo(DocumentStatusCancelled)
}

// IsPayable returns true if allocations can be applied
func (d *PayableDocument) IsPayable() bool {
	return d.Status.AcceptsAllocations() && d.BalanceDue.IsPositive()
}

// AppliedAmount returns total minus balance due
func (d *PayableDocument) AppliedAmount() decimal.Decimal {
	return d.TotalAmount.Sub(d.BalanceDue)
}

// IsOverdue returns true if the due date is before the start of now's day
func (d *PayableDocument) IsOverdue(now time.Time) bool {
	if d.DueDate == nil || !d.BalanceDue.IsPositive() {
		return false
	}
	return d.DueDate.Before(StartOfDay(now))
}

// DaysOverdue returns whole days past the due date, zero when not overdue
func (d *PayableDocument) DaysOverdue(now time.Time) int {
	if !d.IsOverdue(now) {
		return 0
	}
	return int(math.Round(StartOfDay(now).Sub(StartOfDay(*d.DueDate)).Hours() / 24))
}

// ReplaceLines replaces all lines and recomputes totals
func (d *PayableDocument) ReplaceLines(lines []DocumentLine, calc *TaxCalculator) error {
	if !d.CanBeEdited() {
		return shared.NewDomainErrorf(CodeNotEditable, "Cannot edit %s %s in status %s", d.Kind, d.DocumentNumber, d.Status)
	}
	d.Lines = lines
	if _, err := d.Recalculate(calc); err != nil {
		return err
	}
	d.UpdatedAt = time.Now()
	return nil
}

// Recalculate recomputes every line and the document totals from the lines.
// It is idempotent and returns the tax components the lines produce.
func (d *PayableDocument) Recalculate(calc *TaxCalculator) ([]*TaxComponent, error) {
	subtotal, tax, total := decimal.Zero, decimal.Zero, decimal.Zero
	components := make([]*TaxComponent, 0)
	for i := range d.Lines {
		line := &d.Lines[i]
		line.LineNumber = i + 1
		if line.ID == uuid.Nil {
			line.ID = uuid.New()
		}
		res, err := calc.CalculateLine(LineInput{
			Quantity:        line.Quantity,
			UnitPrice:       line.UnitPrice,
			DiscountPercent: line.DiscountPercent,
			Rates:           line.TaxRates,
		})
		if err != nil {
			if de, ok := shared.AsDomainError(err); ok {
				return nil, de.WithDetail("lines", "line "+strconv.Itoa(line.LineNumber)+": "+de.Message)
			}
			return nil, err
		}
		line.TaxableAmount = res.TaxableAmount
		line.TaxAmount = res.CustomerTax
		line.LineTotal = res.Total
		subtotal = subtotal.Add(res.TaxableAmount)
		tax = tax.Add(res.CustomerTax)
		total = total.Add(res.Total)
		for _, t := range res.Taxes {
			components = append(components, NewTaxComponent(d.CompanyID, d.ID, line.LineNumber, t))
		}
	}
	d.Subtotal = subtotal
	d.TaxAmount = tax
	d.TotalAmount = total
	if !d.Status.AcceptsAllocations() && d.Status != DocumentStatusPaid {
		d.BalanceDue = total
	}
	return components, nil
}

// Submit moves a draft into pending_approval
func (d *PayableDocument) Submit(actor uuid.UUID) error {
	if len(d.Lines) == 0 {
		return shared.NewDomainErrorf(CodeNoLineItems, "%s %s has no line items", d.Kind, d.DocumentNumber)
	}
	if err := d.transition(DocumentStatusPendingApproval); err != nil {
		return err
	}
	now := time.Now()
	d.SubmittedAt = &now
	d.AddDomainEvent(NewDocumentEvent(EventTypeDocumentSubmitted, d))
	return nil
}

// Approve moves a pending document to approved
func (d *PayableDocument) Approve(actor uuid.UUID) error {
	if !d.CanBeApproved() {
		return shared.NewDomainErrorf(CodeInvalidTransition, "Cannot approve %s %s in status %s", d.Kind, d.DocumentNumber, d.Status)
	}
	if err := d.transition(DocumentStatusApproved); err != nil {
		return err
	}
	now := time.Now()
	d.ApprovedAt = &now
	d.ApprovedBy = &actor
	d.AddDomainEvent(NewDocumentEvent(EventTypeDocumentApproved, d))
	return nil
}

// Reject moves a pending document to rejected
func (d *PayableDocument) Reject(actor uuid.UUID, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return shared.NewValidationError("Rejection reason is required", map[string]string{"reason": "required"})
	}
	if err := d.transition(DocumentStatusRejected); err != nil {
		return err
	}
	now := time.Now()
	d.RejectedAt = &now
	d.RejectionReason = reason
	d.AddDomainEvent(NewDocumentEvent(EventTypeDocumentRejected, d))
	return nil
}

// Post recomputes totals from the lines and opens the document for payment.
// It returns the tax components produced by the lines.
func (d *PayableDocument) Post(actor uuid.UUID, calc *TaxCalculator) ([]*TaxComponent, error) {
	if !d.CanBePosted() {
		return nil, shared.NewDomainErrorf(CodeInvalidTransition, "Cannot post %s %s in status %s", d.Kind, d.DocumentNumber, d.Status)
	}
	if len(d.Lines) == 0 {
		return nil, shared.NewDomainErrorf(CodeNoLineItems, "%s %s has no line items", d.Kind, d.DocumentNumber)
	}
	components, err := d.Recalculate(calc)
	if err != nil {
		return nil, err
	}
	if !d.TotalAmount.IsPositive() {
		return nil, shared.NewDomainErrorf(CodeInvalidAmount, "%s %s total must be positive", d.Kind, d.DocumentNumber)
	}
	if err := d.transition(DocumentStatusPosted); err != nil {
		return nil, err
	}
	now := time.Now()
	d.BalanceDue = d.TotalAmount
	d.PostedAt = &now
	d.PostedBy = &actor
	d.AddDomainEvent(NewDocumentEvent(EventTypeDocumentPosted, d))
	return components, nil
}

// Cancel moves the document to cancelled. Documents with active allocations
// or applied credits are rejected, never cascaded.
func (d *PayableDocument) Cancel(actor uuid.UUID, reason string, hasActiveAllocations bool) error {
	if hasActiveAllocations {
		return shared.NewDomainErrorf(CodeHasActiveAllocations, "%s %s has active allocations; reverse them first", d.Kind, d.DocumentNumber)
	}
	if err := d.transition(DocumentStatusCancelled); err != nil {
		return err
	}
	now := time.Now()
	d.CancelledAt = &now
	d.CancelReason = reason
	d.BalanceDue = decimal.Zero
	d.AddDomainEvent(NewDocumentEvent(EventTypeDocumentCancelled, d))
	return nil
}

// ApplyAllocation reduces the balance due and moves the status to
// partially_paid or paid accordingly.
func (d *PayableDocument) ApplyAllocation(amount decimal.Decimal, at time.Time) error {
	if !d.Status.AcceptsAllocations() {
		return shared.NewDomainErrorf(CodeDocumentNotPayable, "%s %s cannot accept payments in status %s", d.Kind, d.DocumentNumber, d.Status)
	}
	if !amount.IsPositive() {
		return shared.NewDomainError(CodeInvalidAmount, "Allocation amount must be positive")
	}
	if amount.GreaterThan(d.BalanceDue) {
		return shared.NewDomainErrorf(CodeAmountExceedsBalance, "Amount %s exceeds balance due %s on %s", amount.StringFixed(2), d.BalanceDue.StringFixed(2), d.DocumentNumber)
	}

	d.BalanceDue = d.BalanceDue.Sub(amount)
	next := DocumentStatusPartiallyPaid
	if d.BalanceDue.IsZero() {
		next = DocumentStatusPaid
	}
	if err := d.transition(next); err != nil {
		return err
	}
	if next == DocumentStatusPaid {
		d.PaidAt = &at
		d.AddDomainEvent(NewDocumentEvent(EventTypeDocumentPaid, d))
	}
	return nil
}

// RestoreAllocation adds a reversed amount back to the balance due and
// moves the status backward.
func (d *PayableDocument) RestoreAllocation(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return shared.NewDomainError(CodeInvalidAmount, "Restored amount must be positive")
	}
	if amount.GreaterThan(d.AppliedAmount()) {
		return shared.NewDomainErrorf(CodeInvalidAmount, "Restored amount %s exceeds applied amount %s on %s", amount.StringFixed(2), d.AppliedAmount().StringFixed(2), d.DocumentNumber)
	}
	if d.Status != DocumentStatusPaid && d.Status != DocumentStatusPartiallyPaid {
		return shared.NewDomainErrorf(CodeInvalidTransition, "Cannot restore balance on %s %s in status %s", d.Kind, d.DocumentNumber, d.Status)
	}

	d.BalanceDue = d.BalanceDue.Add(amount)
	next := DocumentStatusPartiallyPaid
	if d.BalanceDue.Equal(d.TotalAmount) {
		next = DocumentStatusPosted
	}
	wasPaid := d.Status == DocumentStatusPaid
	if err := d.transition(next); err != nil {
		return err
	}
	d.PaidAt = nil
	if wasPaid {
		d.AddDomainEvent(NewDocumentEvent(EventTypeDocumentReopened, d))
	}
	return nil
}

// StartOfDay truncates t to midnight in its own location
func StartOfDay(t time.Time) time.Time {
	y, m, day := t.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, t.Location())
}
