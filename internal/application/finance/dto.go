package finance

import (
	"time"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ==================== Command Result ====================

// CommandResult is the structured outcome handed to callers of any command
type CommandResult struct {
	Success bool              `json:"success"`
	Message string            `json:"message,omitempty"`
	Code    string            `json:"code,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// NewCommandResult converts a command error into a CommandResult.
// Domain errors keep their code, message and details; anything else is a
// generic failure so storage internals never leak.
func NewCommandResult(err error, successMessage string) CommandResult {
	if err == nil {
		return CommandResult{Success: true, Message: successMessage}
	}
	if de, ok := shared.AsDomainError(err); ok {
		return CommandResult{Success: false, Message: de.Message, Code: de.Code, Errors: de.Details}
	}
	return CommandResult{Success: false, Message: "The operation failed; no changes were saved", Code: "INTERNAL_ERROR"}
}

// ==================== Allocation DTOs ====================

// PlanEntryInput is one manual {document, amount} pair
type PlanEntryInput struct {
	DocumentID uuid.UUID       `json:"document_id"`
	Amount     decimal.Decimal `json:"amount"`
}

// AllocateRequest asks the engine to distribute a funding source.
// Amount caps automatic strategies; zero means the whole remaining amount.
type AllocateRequest struct {
	SourceType     finance.SourceType   `json:"source_type"`
	SourceID       uuid.UUID            `json:"source_id"`
	Strategy       finance.StrategyType `json:"strategy"`
	Plan           []PlanEntryInput     `json:"plan,omitempty"`
	Amount         decimal.Decimal      `json:"amount"`
	Notes          string               `json:"notes,omitempty"`
	IdempotencyKey string               `json:"idempotency_key,omitempty"`
}

// ReverseAllocationRequest asks the engine to undo one allocation
type ReverseAllocationRequest struct {
	AllocationID   uuid.UUID `json:"allocation_id"`
	Reason         string    `json:"reason"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
}

// AllocationResponse is the API view of an allocation or credit application
type AllocationResponse struct {
	ID              uuid.UUID                `json:"id"`
	CommandID       uuid.UUID                `json:"command_id"`
	SourceType      finance.SourceType       `json:"source_type"`
	SourceID        uuid.UUID                `json:"source_id"`
	DocumentID      uuid.UUID                `json:"document_id"`
	CounterpartID   uuid.UUID                `json:"counterpart_id"`
	AllocatedAmount decimal.Decimal          `json:"allocated_amount"`
	Currency        string                   `json:"currency"`
	AllocationDate  time.Time                `json:"allocation_date"`
	Strategy        finance.StrategyType     `json:"allocation_strategy"`
	Method          finance.AllocationMethod `json:"allocation_method"`
	Status          finance.AllocationStatus `json:"status"`
	Notes           string                   `json:"notes,omitempty"`
	CreatedBy       uuid.UUID                `json:"created_by"`
	CreatedAt       time.Time                `json:"created_at"`
	IsReversed      bool                     `json:"is_reversed"`
	ReversedAt      *time.Time               `json:"reversed_at,omitempty"`
	ReversedBy      *uuid.UUID               `json:"reversed_by,omitempty"`
	ReversalReason  string                   `json:"reversal_reason,omitempty"`
}

// ToAllocationResponse converts a domain allocation
func ToAllocationResponse(a *finance.PaymentAllocation) AllocationResponse {
	return AllocationResponse{
		ID:              a.ID,
		CommandID:       a.CommandID,
		SourceType:      a.SourceType,
		SourceID:        a.SourceID,
		DocumentID:      a.DocumentID,
		CounterpartID:   a.CounterpartID,
		AllocatedAmount: a.AllocatedAmount,
		Currency:        a.Currency.String(),
		AllocationDate:  a.AllocationDate,
		Strategy:        a.Strategy,
		Method:          a.Method,
		Status:          a.Status(),
		Notes:           a.Notes,
		CreatedBy:       a.CreatedBy,
		CreatedAt:       a.CreatedAt,
		IsReversed:      a.IsReversed,
		ReversedAt:      a.ReversedAt,
		ReversedBy:      a.ReversedBy,
		ReversalReason:  a.ReversalReason,
	}
}

// ToAllocationResponses converts a slice of allocations
func ToAllocationResponses(items []finance.PaymentAllocation) []AllocationResponse {
	out := make([]AllocationResponse, len(items))
	for i := range items {
		out[i] = ToAllocationResponse(&items[i])
	}
	return out
}

// AllocationResult is the outcome of an allocate command
type AllocationResult struct {
	CommandID       uuid.UUID            `json:"command_id"`
	Success         bool                 `json:"success"`
	Message         string               `json:"message,omitempty"`
	SourceType      finance.SourceType   `json:"source_type"`
	SourceID        uuid.UUID            `json:"source_id"`
	SourceNumber    string               `json:"source_number"`
	SourceStatus    string               `json:"source_status"`
	Strategy        finance.StrategyType `json:"strategy"`
	Allocations     []AllocationResponse `json:"allocations"`
	AllocatedTotal  decimal.Decimal      `json:"allocated_total"`
	RemainingAmount decimal.Decimal      `json:"remaining_amount"`
	Replayed        bool                 `json:"replayed"`
}

// ReverseResult is the outcome of a reverse command
type ReverseResult struct {
	Success         bool                   `json:"success"`
	Message         string                 `json:"message,omitempty"`
	Allocation      AllocationResponse     `json:"allocation"`
	DocumentStatus  finance.DocumentStatus `json:"document_status"`
	DocumentBalance decimal.Decimal        `json:"document_balance_due"`
	SourceStatus    string                 `json:"source_status"`
	SourceRemaining decimal.Decimal        `json:"source_remaining_amount"`
	Replayed        bool                   `json:"replayed"`
}

// PreviewLine is one proposed allocation in a preview
type PreviewLine struct {
	DocumentID     uuid.UUID       `json:"document_id"`
	DocumentNumber string          `json:"document_number"`
	BalanceDue     decimal.Decimal `json:"balance_due"`
	Amount         decimal.Decimal `json:"amount"`
	BalanceAfter   decimal.Decimal `json:"balance_after"`
}

// AllocationPreview shows what an allocate command would do without doing it
type AllocationPreview struct {
	SourceType      finance.SourceType   `json:"source_type"`
	SourceID        uuid.UUID            `json:"source_id"`
	Strategy        finance.StrategyType `json:"strategy"`
	Lines           []PreviewLine        `json:"lines"`
	Total           decimal.Decimal      `json:"total"`
	RemainingBefore decimal.Decimal      `json:"remaining_before"`
	RemainingAfter  decimal.Decimal      `json:"remaining_after"`
	Valid           bool                 `json:"valid"`
	Message         string               `json:"message,omitempty"`
	Errors          map[string]string    `json:"errors,omitempty"`
}

// PaymentSummary describes how much of a payment has been allocated
type PaymentSummary struct {
	PaymentID       uuid.UUID             `json:"payment_id"`
	PaymentNumber   string                `json:"payment_number"`
	Status          finance.PaymentStatus `json:"status"`
	Amount          decimal.Decimal       `json:"amount"`
	AllocatedAmount decimal.Decimal       `json:"allocated_amount"`
	RemainingAmount decimal.Decimal       `json:"remaining_amount"`
	FullyAllocated  bool                  `json:"fully_allocated"`
	Allocations     []AllocationResponse  `json:"allocations"`
}

// OpenDocumentLine is an unpaid document in a counterpart balance
type OpenDocumentLine struct {
	DocumentID     uuid.UUID              `json:"document_id"`
	DocumentNumber string                 `json:"document_number"`
	Kind           finance.DocumentKind   `json:"kind"`
	Status         finance.DocumentStatus `json:"status"`
	TotalAmount    decimal.Decimal        `json:"total_amount"`
	BalanceDue     decimal.Decimal        `json:"balance_due"`
	DueDate        *time.Time             `json:"due_date,omitempty"`
	IsOverdue      bool                   `json:"is_overdue"`
	DaysOverdue    int                    `json:"days_overdue"`
}

// CounterpartBalance summarises what a counterpart owes
type CounterpartBalance struct {
	CounterpartID       uuid.UUID          `json:"counterpart_id"`
	Documents           []OpenDocumentLine `json:"documents"`
	TotalBalanceDue     decimal.Decimal    `json:"total_balance_due"`
	OverdueBalance      decimal.Decimal    `json:"overdue_balance"`
	UnallocatedPayments decimal.Decimal    `json:"unallocated_payments"`
	NetBalance          decimal.Decimal    `json:"net_balance"`
}

// StrategyInfo names an allocation strategy
type StrategyInfo struct {
	Name        finance.StrategyType `json:"name"`
	Description string               `json:"description"`
}

// AllocationListFilter narrows GetAllocations
type AllocationListFilter struct {
	shared.Filter
	PaymentID    *uuid.UUID
	CreditNoteID *uuid.UUID
	DocumentID   *uuid.UUID
	Strategy     *finance.StrategyType
	Status       *finance.AllocationStatus
}

// ==================== Document DTOs ====================

// TaxRateInput attaches a tax rate to a line
type TaxRateInput struct {
	ID              uuid.UUID           `json:"id"`
	Name            string              `json:"name"`
	Type            finance.TaxRateType `json:"type"`
	Rate            decimal.Decimal     `json:"rate"`
	FixedAmount     decimal.Decimal     `json:"fixed_amount"`
	IsCompound      bool                `json:"is_compound"`
	IsInclusive     bool                `json:"is_inclusive"`
	IsReverseCharge bool                `json:"is_reverse_charge"`
}

// DocumentLineInput is a line of a create or replace-lines request
type DocumentLineInput struct {
	Description     string          `json:"description"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TaxRates        []TaxRateInput  `json:"tax_rates"`
}

// CreateDocumentRequest creates a draft document
type CreateDocumentRequest struct {
	Kind           finance.DocumentKind `json:"kind"`
	DocumentNumber string               `json:"document_number"`
	CounterpartID  uuid.UUID            `json:"counterpart_id"`
	Currency       string               `json:"currency"`
	ExchangeRate   decimal.Decimal      `json:"exchange_rate"`
	IssueDate      time.Time            `json:"issue_date"`
	DueDate        *time.Time           `json:"due_date"`
	Notes          string               `json:"notes"`
	Lines          []DocumentLineInput  `json:"lines"`
}

// DocumentTransitionRequest carries the optional reason and idempotency key
// of a lifecycle command
type DocumentTransitionRequest struct {
	Reason         string `json:"reason"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// DocumentLineResponse is the API view of a document line
type DocumentLineResponse struct {
	ID              uuid.UUID       `json:"id"`
	LineNumber      int             `json:"line_number"`
	Description     string          `json:"description"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TaxableAmount   decimal.Decimal `json:"taxable_amount"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	LineTotal       decimal.Decimal `json:"line_total"`
	TaxRates        []TaxRateInput  `json:"tax_rates"`
}

// DocumentResponse is the API view of a payable document
type DocumentResponse struct {
	ID              uuid.UUID              `json:"id"`
	CompanyID       uuid.UUID              `json:"company_id"`
	Kind            finance.DocumentKind   `json:"kind"`
	DocumentNumber  string                 `json:"document_number"`
	CounterpartID   uuid.UUID              `json:"counterpart_id"`
	Status          finance.DocumentStatus `json:"status"`
	Currency        string                 `json:"currency"`
	ExchangeRate    decimal.Decimal        `json:"exchange_rate"`
	IssueDate       time.Time              `json:"issue_date"`
	DueDate         *time.Time             `json:"due_date,omitempty"`
	Subtotal        decimal.Decimal        `json:"subtotal"`
	TaxAmount       decimal.Decimal        `json:"tax_amount"`
	TotalAmount     decimal.Decimal        `json:"total_amount"`
	BalanceDue      decimal.Decimal        `json:"balance_due"`
	Notes           string                 `json:"notes,omitempty"`
	Lines           []DocumentLineResponse `json:"lines"`
	PostedAt        *time.Time             `json:"posted_at,omitempty"`
	PaidAt          *time.Time             `json:"paid_at,omitempty"`
	CancelledAt     *time.Time             `json:"cancelled_at,omitempty"`
	CancelReason    string                 `json:"cancel_reason,omitempty"`
	RejectionReason string                 `json:"rejection_reason,omitempty"`
	Version         int                    `json:"version"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// DocumentCommandResult is the outcome of a document lifecycle command
type DocumentCommandResult struct {
	Success   bool                   `json:"success"`
	Message   string                 `json:"message,omitempty"`
	NewStatus finance.DocumentStatus `json:"new_status"`
	Document  DocumentResponse       `json:"document"`
	Replayed  bool                   `json:"replayed"`
}

func toTaxRates(in []TaxRateInput) []finance.TaxRate {
	out := make([]finance.TaxRate, len(in))
	for i, r := range in {
		out[i] = finance.TaxRate{
			ID:              r.ID,
			Name:            r.Name,
			Type:            r.Type,
			Rate:            r.Rate,
			FixedAmount:     r.FixedAmount,
			IsCompound:      r.IsCompound,
			IsInclusive:     r.IsInclusive,
			IsReverseCharge: r.IsReverseCharge,
		}
	}
	return out
}

func fromTaxRates(in []finance.TaxRate) []TaxRateInput {
	out := make([]TaxRateInput, len(in))
	for i, r := range in {
		out[i] = TaxRateInput{
			ID:              r.ID,
			Name:            r.Name,
			Type:            r.Type,
			Rate:            r.Rate,
			FixedAmount:     r.FixedAmount,
			IsCompound:      r.IsCompound,
			IsInclusive:     r.IsInclusive,
			IsReverseCharge: r.IsReverseCharge,
		}
	}
	return out
}

func toDocumentLines(in []DocumentLineInput) []finance.DocumentLine {
	lines := make([]finance.DocumentLine, len(in))
	for i, l := range in {
		lines[i] = finance.NewDocumentLine(l.Description, l.Quantity, l.UnitPrice, l.DiscountPercent, toTaxRates(l.TaxRates))
	}
	return lines
}

// ToDocumentResponse converts a domain document
func ToDocumentResponse(d *finance.PayableDocument) DocumentResponse {
	lines := make([]DocumentLineResponse, len(d.Lines))
	for i, l := range d.Lines {
		lines[i] = DocumentLineResponse{
			ID:              l.ID,
			LineNumber:      l.LineNumber,
			Description:     l.Description,
			Quantity:        l.Quantity,
			UnitPrice:       l.UnitPrice,
			DiscountPercent: l.DiscountPercent,
			TaxableAmount:   l.TaxableAmount,
			TaxAmount:       l.TaxAmount,
			LineTotal:       l.LineTotal,
			TaxRates:        fromTaxRates(l.TaxRates),
		}
	}
	return DocumentResponse{
		ID:              d.ID,
		CompanyID:       d.CompanyID,
		Kind:            d.Kind,
		DocumentNumber:  d.DocumentNumber,
		CounterpartID:   d.CounterpartID,
		Status:          d.Status,
		Currency:        d.Currency.String(),
		ExchangeRate:    d.ExchangeRate,
		IssueDate:       d.IssueDate,
		DueDate:         d.DueDate,
		Subtotal:        d.Subtotal,
		TaxAmount:       d.TaxAmount,
		TotalAmount:     d.TotalAmount,
		BalanceDue:      d.BalanceDue,
		Notes:           d.Notes,
		Lines:           lines,
		PostedAt:        d.PostedAt,
		PaidAt:          d.PaidAt,
		CancelledAt:     d.CancelledAt,
		CancelReason:    d.CancelReason,
		RejectionReason: d.RejectionReason,
		Version:         d.Version,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

// ToDocumentResponses converts a slice of documents
func ToDocumentResponses(docs []finance.PayableDocument) []DocumentResponse {
	out := make([]DocumentResponse, len(docs))
	for i := range docs {
		out[i] = ToDocumentResponse(&docs[i])
	}
	return out
}

// TaxComponentResponse is the API view of a tax component
type TaxComponentResponse struct {
	ID              uuid.UUID           `json:"id"`
	LineNumber      int                 `json:"line_number"`
	TaxRateName     string              `json:"tax_rate_name"`
	RateType        finance.TaxRateType `json:"rate_type"`
	Rate            decimal.Decimal     `json:"rate"`
	TaxableAmount   decimal.Decimal     `json:"taxable_amount"`
	TaxAmount       decimal.Decimal     `json:"tax_amount"`
	PaidAmount      decimal.Decimal     `json:"paid_amount"`
	CreditedAmount  decimal.Decimal     `json:"credited_amount"`
	IsInclusive     bool                `json:"is_inclusive"`
	IsReverseCharge bool                `json:"is_reverse_charge"`
	IsReversed      bool                `json:"is_reversed"`
}

// ToTaxComponentResponses converts tax components
func ToTaxComponentResponses(components []*finance.TaxComponent) []TaxComponentResponse {
	out := make([]TaxComponentResponse, len(components))
	for i, c := range components {
		out[i] = TaxComponentResponse{
			ID:              c.ID,
			LineNumber:      c.LineNumber,
			TaxRateName:     c.TaxRateName,
			RateType:        c.RateType,
			Rate:            c.Rate,
			TaxableAmount:   c.TaxableAmount,
			TaxAmount:       c.TaxAmount,
			PaidAmount:      c.PaidAmount,
			CreditedAmount:  c.CreditedAmount,
			IsInclusive:     c.IsInclusive,
			IsReverseCharge: c.IsReverseCharge,
			IsReversed:      c.IsReversed,
		}
	}
	return out
}

// ==================== Payment DTOs ====================

// RegisterPaymentRequest registers an incoming payment
type RegisterPaymentRequest struct {
	PaymentNumber  string                `json:"payment_number"`
	CounterpartID  uuid.UUID             `json:"counterpart_id"`
	Amount         decimal.Decimal       `json:"amount"`
	Currency       string                `json:"currency"`
	PaymentDate    time.Time             `json:"payment_date"`
	Method         finance.PaymentMethod `json:"method"`
	Reference      string                `json:"reference"`
	IdempotencyKey string                `json:"idempotency_key,omitempty"`
}

// PaymentResponse is the API view of a payment
type PaymentResponse struct {
	ID              uuid.UUID             `json:"id"`
	CompanyID       uuid.UUID             `json:"company_id"`
	PaymentNumber   string                `json:"payment_number"`
	CounterpartID   uuid.UUID             `json:"counterpart_id"`
	Amount          decimal.Decimal       `json:"amount"`
	RemainingAmount decimal.Decimal       `json:"remaining_amount"`
	AllocatedAmount decimal.Decimal       `json:"allocated_amount"`
	Currency        string                `json:"currency"`
	PaymentDate     time.Time             `json:"payment_date"`
	Method          finance.PaymentMethod `json:"method"`
	Reference       string                `json:"reference,omitempty"`
	Status          finance.PaymentStatus `json:"status"`
	CompletedAt     *time.Time            `json:"completed_at,omitempty"`
	CancelledAt     *time.Time            `json:"cancelled_at,omitempty"`
	CancelReason    string                `json:"cancel_reason,omitempty"`
	Version         int                   `json:"version"`
	CreatedAt       time.Time             `json:"created_at"`
	Replayed        bool                  `json:"replayed,omitempty"`
}

// ToPaymentResponse converts a domain payment
func ToPaymentResponse(p *finance.Payment) PaymentResponse {
	return PaymentResponse{
		ID:              p.ID,
		CompanyID:       p.CompanyID,
		PaymentNumber:   p.PaymentNumber,
		CounterpartID:   p.CounterpartID,
		Amount:          p.Amount,
		RemainingAmount: p.RemainingAmount,
		AllocatedAmount: p.AllocatedAmount(),
		Currency:        p.Currency.String(),
		PaymentDate:     p.PaymentDate,
		Method:          p.Method,
		Reference:       p.Reference,
		Status:          p.Status,
		CompletedAt:     p.CompletedAt,
		CancelledAt:     p.CancelledAt,
		CancelReason:    p.CancelReason,
		Version:         p.Version,
		CreatedAt:       p.CreatedAt,
	}
}

// ==================== Credit Note DTOs ====================

// CreditNoteItemInput is an item of a create credit note request
type CreditNoteItemInput struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
}

// CreateCreditNoteRequest drafts a credit note against a posted document
type CreateCreditNoteRequest struct {
	SourceDocumentID uuid.UUID             `json:"source_document_id"`
	Reason           string                `json:"reason"`
	IssueDate        time.Time             `json:"issue_date"`
	Items            []CreditNoteItemInput `json:"items"`
}

// PostCreditNoteRequest posts a draft credit note
type PostCreditNoteRequest struct {
	AutoApply      bool   `json:"auto_apply"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// ApplyCreditNoteRequest applies posted credit to its source document
type ApplyCreditNoteRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

// CreditNoteItemResponse is the API view of a credit note item
type CreditNoteItemResponse struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
	Amount      decimal.Decimal `json:"amount"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	Total       decimal.Decimal `json:"total"`
}

// CreditNoteResponse is the API view of a credit note
type CreditNoteResponse struct {
	ID                 uuid.UUID                `json:"id"`
	CompanyID          uuid.UUID                `json:"company_id"`
	CreditNoteNumber   string                   `json:"credit_note_number"`
	SourceDocumentID   uuid.UUID                `json:"source_document_id"`
	CounterpartID      uuid.UUID                `json:"counterpart_id"`
	Currency           string                   `json:"currency"`
	Reason             string                   `json:"reason"`
	IssueDate          time.Time                `json:"issue_date"`
	Items              []CreditNoteItemResponse `json:"items"`
	Amount             decimal.Decimal          `json:"amount"`
	TaxAmount          decimal.Decimal          `json:"tax_amount"`
	TotalAmount        decimal.Decimal          `json:"total_amount"`
	RemainingAmount    decimal.Decimal          `json:"remaining_amount"`
	AppliedAmount      decimal.Decimal          `json:"applied_amount"`
	Status             finance.CreditNoteStatus `json:"status"`
	PostedAt           *time.Time               `json:"posted_at,omitempty"`
	CancelledAt        *time.Time               `json:"cancelled_at,omitempty"`
	CancellationReason string                   `json:"cancellation_reason,omitempty"`
	Version            int                      `json:"version"`
	CreatedAt          time.Time                `json:"created_at"`
}

// ToCreditNoteResponse converts a domain credit note
func ToCreditNoteResponse(c *finance.CreditNote) CreditNoteResponse {
	items := make([]CreditNoteItemResponse, len(c.Items))
	for i, it := range c.Items {
		items[i] = CreditNoteItemResponse{
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			TaxRate:     it.TaxRate,
			Amount:      it.Amount,
			TaxAmount:   it.TaxAmount,
			Total:       it.Total,
		}
	}
	return CreditNoteResponse{
		ID:                 c.ID,
		CompanyID:          c.CompanyID,
		CreditNoteNumber:   c.CreditNoteNumber,
		SourceDocumentID:   c.SourceDocumentID,
		CounterpartID:      c.CounterpartID,
		Currency:           c.Currency.String(),
		Reason:             c.Reason,
		IssueDate:          c.IssueDate,
		Items:              items,
		Amount:             c.Amount,
		TaxAmount:          c.TaxAmount,
		TotalAmount:        c.TotalAmount,
		RemainingAmount:    c.RemainingAmount,
		AppliedAmount:      c.AppliedAmount(),
		Status:             c.Status,
		PostedAt:           c.PostedAt,
		CancelledAt:        c.CancelledAt,
		CancellationReason: c.CancellationReason,
		Version:            c.Version,
		CreatedAt:          c.CreatedAt,
	}
}

// CreditNoteCommandResult is the outcome of a credit note command
type CreditNoteCommandResult struct {
	Success    bool               `json:"success"`
	Message    string             `json:"message,omitempty"`
	CreditNote CreditNoteResponse `json:"credit_note"`
	Applied    *AllocationResult  `json:"applied,omitempty"`
	Replayed   bool               `json:"replayed"`
}

// CreditNoteStatistics summarises a company's credit notes
type CreditNoteStatistics struct {
	CountByStatus map[finance.CreditNoteStatus]int64 `json:"count_by_status"`
	TotalIssued   decimal.Decimal                    `json:"total_issued"`
	TotalApplied  decimal.Decimal                    `json:"total_applied"`
	TotalOpen     decimal.Decimal                    `json:"total_open"`
}

// ==================== Audit DTOs ====================

// AuditEntryResponse is the API view of an audit entry
type AuditEntryResponse struct {
	ID             uuid.UUID            `json:"id"`
	ActorID        uuid.UUID            `json:"actor_id"`
	Action         finance.AuditAction  `json:"action"`
	EntityType     string               `json:"entity_type"`
	EntityID       uuid.UUID            `json:"entity_id"`
	CommandID      *uuid.UUID           `json:"command_id,omitempty"`
	IdempotencyKey string               `json:"idempotency_key,omitempty"`
	RequestID      string               `json:"request_id,omitempty"`
	IPAddress      string               `json:"ip_address,omitempty"`
	UserAgent      string               `json:"user_agent,omitempty"`
	Payload        finance.AuditPayload `json:"payload"`
	CreatedAt      time.Time            `json:"created_at"`
}

// ToAuditEntryResponses converts audit entries
func ToAuditEntryResponses(entries []finance.AuditEntry) []AuditEntryResponse {
	out := make([]AuditEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = AuditEntryResponse{
			ID:             e.ID,
			ActorID:        e.ActorID,
			Action:         e.Action,
			EntityType:     e.EntityType,
			EntityID:       e.EntityID,
			CommandID:      e.CommandID,
			IdempotencyKey: e.IdempotencyKey,
			RequestID:      e.RequestID,
			IPAddress:      e.IPAddress,
			UserAgent:      e.UserAgent,
			Payload:        e.Payload,
			CreatedAt:      e.CreatedAt,
		}
	}
	return out
}
