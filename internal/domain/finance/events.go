package finance

import (
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeDocumentCreated   = "document.created"
	EventTypeDocumentSubmitted = "document.submitted"
	EventTypeDocumentApproved  = "document.approved"
	EventTypeDocumentRejected  = "document.rejected"
	EventTypeDocumentPosted    = "document.posted"
	EventTypeDocumentCancelled = "document.cancelled"
	EventTypeDocumentPaid      = "document.paid"
	EventTypeDocumentReopened  = "document.reopened"

	EventTypePaymentRegistered = "payment.registered"
	EventTypePaymentCompleted  = "payment.completed"
	EventTypePaymentVoided     = "payment.voided"

	EventTypeCreditNoteCreated   = "credit_note.created"
	EventTypeCreditNotePosted    = "credit_note.posted"
	EventTypeCreditNoteCancelled = "credit_note.cancelled"

	EventTypeAllocationCreated  = "allocation.created"
	EventTypeAllocationReversed = "allocation.reversed"
)

// DocumentEvent is raised on every lifecycle change of a payable document
type DocumentEvent struct {
	shared.BaseDomainEvent
	Kind           DocumentKind    `json:"kind"`
	DocumentNumber string          `json:"document_number"`
	CounterpartID  uuid.UUID       `json:"counterpart_id"`
	Status         DocumentStatus  `json:"status"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	BalanceDue     decimal.Decimal `json:"balance_due"`
}

// NewDocumentEvent snapshots the document into an event
func NewDocumentEvent(eventType string, d *PayableDocument) *DocumentEvent {
	return &DocumentEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, AggregateTypeDocument, d.ID, d.CompanyID),
		Kind:            d.Kind,
		DocumentNumber:  d.DocumentNumber,
		CounterpartID:   d.CounterpartID,
		Status:          d.Status,
		TotalAmount:     d.TotalAmount,
		BalanceDue:      d.BalanceDue,
	}
}

// PaymentEvent is raised when a payment is registered, completed or voided
type PaymentEvent struct {
	shared.BaseDomainEvent
	PaymentNumber   string          `json:"payment_number"`
	CounterpartID   uuid.UUID       `json:"counterpart_id"`
	Status          PaymentStatus   `json:"status"`
	Amount          decimal.Decimal `json:"amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
}

// NewPaymentEvent snapshots the payment into an event
func NewPaymentEvent(eventType string, p *Payment) *PaymentEvent {
	return &PaymentEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, AggregateTypePayment, p.ID, p.CompanyID),
		PaymentNumber:   p.PaymentNumber,
		CounterpartID:   p.CounterpartID,
		Status:          p.Status,
		Amount:          p.Amount,
		RemainingAmount: p.RemainingAmount,
	}
}

// CreditNoteEvent is raised on credit note lifecycle changes
type CreditNoteEvent struct {
	shared.BaseDomainEvent
	CreditNoteNumber string           `json:"credit_note_number"`
	SourceDocumentID uuid.UUID        `json:"source_document_id"`
	Status           CreditNoteStatus `json:"status"`
	TotalAmount      decimal.Decimal  `json:"total_amount"`
	RemainingAmount  decimal.Decimal  `json:"remaining_amount"`
}

// NewCreditNoteEvent snapshots the credit note into an event
func NewCreditNoteEvent(eventType string, c *CreditNote) *CreditNoteEvent {
	return &CreditNoteEvent{
		BaseDomainEvent:  shared.NewBaseDomainEvent(eventType, AggregateTypeCreditNote, c.ID, c.CompanyID),
		CreditNoteNumber: c.CreditNoteNumber,
		SourceDocumentID: c.SourceDocumentID,
		Status:           c.Status,
		TotalAmount:      c.TotalAmount,
		RemainingAmount:  c.RemainingAmount,
	}
}

// AllocationEvent is raised when an allocation is created or reversed
type AllocationEvent struct {
	shared.BaseDomainEvent
	SourceType SourceType      `json:"source_type"`
	SourceID   uuid.UUID       `json:"source_id"`
	DocumentID uuid.UUID       `json:"document_id"`
	Amount     decimal.Decimal `json:"amount"`
	Strategy   StrategyType    `json:"strategy"`
}

// NewAllocationEvent snapshots the allocation into an event
func NewAllocationEvent(eventType string, a *PaymentAllocation) *AllocationEvent {
	return &AllocationEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, AggregateTypeAllocation, a.ID, a.CompanyID),
		SourceType:      a.SourceType,
		SourceID:        a.SourceID,
		DocumentID:      a.DocumentID,
		Amount:          a.AllocatedAmount,
		Strategy:        a.Strategy,
	}
}
