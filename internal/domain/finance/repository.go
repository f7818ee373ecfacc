package finance

import (
	"context"
	"time"

	"github.com/erp/settlement/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DocumentFilter filters payable documents
type DocumentFilter struct {
	shared.Filter
	Kind          *DocumentKind
	Status        *DocumentStatus
	CounterpartID *uuid.UUID
	DueBefore     *time.Time
}

// PayableDocumentRepository persists payable documents and their lines
type PayableDocumentRepository interface {
	// FindByIDForCompany loads a document owned by companyID
	FindByIDForCompany(ctx context.Context, companyID, id uuid.UUID) (*PayableDocument, error)
	// FindByIDForUpdate loads and row-locks a document owned by companyID
	FindByIDForUpdate(ctx context.Context, companyID, id uuid.UUID) (*PayableDocument, error)
	// FindByIDsForUpdate row-locks the documents owned by companyID in ID order.
	// IDs that are missing or owned by another company are omitted.
	FindByIDsForUpdate(ctx context.Context, companyID uuid.UUID, ids []uuid.UUID) ([]*PayableDocument, error)
	// FindOpenByCounterpart returns posted or partially paid documents with a positive balance
	FindOpenByCounterpart(ctx context.Context, companyID, counterpartID uuid.UUID) ([]PayableDocument, error)
	FindAllForCompany(ctx context.Context, companyID uuid.UUID, filter DocumentFilter) ([]PayableDocument, error)
	CountForCompany(ctx context.Context, companyID uuid.UUID, filter DocumentFilter) (int64, error)
	ExistsByNumber(ctx context.Context, companyID uuid.UUID, kind DocumentKind, number string) (bool, error)
	// Create inserts the document and its lines
	Create(ctx context.Context, doc *PayableDocument) error
	// SaveWithLock updates the header when the stored version matches and bumps it
	SaveWithLock(ctx context.Context, doc *PayableDocument) error
	// SaveLines replaces the stored lines of the document
	SaveLines(ctx context.Context, doc *PayableDocument) error
}

// PaymentFilter filters payments
type PaymentFilter struct {
	shared.Filter
	Status        *PaymentStatus
	CounterpartID *uuid.UUID
}

// PaymentRepository persists payments
type PaymentRepository interface {
	FindByIDForCompany(ctx context.Context, companyID, id uuid.UUID) (*Payment, error)
	FindByIDForUpdate(ctx context.Context, companyID, id uuid.UUID) (*Payment, error)
	FindAllForCompany(ctx context.Context, companyID uuid.UUID, filter PaymentFilter) ([]Payment, error)
	CountForCompany(ctx context.Context, companyID uuid.UUID, filter PaymentFilter) (int64, error)
	// SumUnallocated totals the remaining amount of pending payments of a counterpart
	SumUnallocated(ctx context.Context, companyID, counterpartID uuid.UUID) (decimal.Decimal, error)
	Create(ctx context.Context, payment *Payment) error
	SaveWithLock(ctx context.Context, payment *Payment) error
}

// CreditNoteFilter filters credit notes
type CreditNoteFilter struct {
	shared.Filter
	Status           *CreditNoteStatus
	SourceDocumentID *uuid.UUID
}

// CreditNoteTotals aggregates issued and applied credit
type CreditNoteTotals struct {
	CountByStatus map[CreditNoteStatus]int64
	TotalIssued   decimal.Decimal
	TotalApplied  decimal.Decimal
	TotalOpen     decimal.Decimal
}

// CreditNoteRepository persists credit notes and their items
type CreditNoteRepository interface {
	FindByIDForCompany(ctx context.Context, companyID, id uuid.UUID) (*CreditNote, error)
	FindByIDForUpdate(ctx context.Context, companyID, id uuid.UUID) (*CreditNote, error)
	FindAllForCompany(ctx context.Context, companyID uuid.UUID, filter CreditNoteFilter) ([]CreditNote, error)
	CountForCompany(ctx context.Context, companyID uuid.UUID, filter CreditNoteFilter) (int64, error)
	// NextSequence returns the next CN-YYYY-NNNN sequence number for the year
	NextSequence(ctx context.Context, companyID uuid.UUID, year int) (int, error)
	Totals(ctx context.Context, companyID uuid.UUID) (*CreditNoteTotals, error)
	Create(ctx context.Context, note *CreditNote) error
	SaveWithLock(ctx context.Context, note *CreditNote) error
}

// AllocationFilter filters allocations
type AllocationFilter struct {
	shared.Filter
	SourceType *SourceType
	SourceID   *uuid.UUID
	DocumentID *uuid.UUID
	Strategy   *StrategyType
	Status     *AllocationStatus
	CommandID  *uuid.UUID
}

// StrategyStatistics aggregates allocations of one strategy
type StrategyStatistics struct {
	Count        int64           `json:"count"`
	Active       int64           `json:"active"`
	Reversed     int64           `json:"reversed"`
	ActiveAmount decimal.Decimal `json:"active_amount"`
}

// AllocationStatistics aggregates allocations of a company
type AllocationStatistics struct {
	Total          int64                               `json:"total"`
	Active         int64                               `json:"active"`
	Reversed       int64                               `json:"reversed"`
	ActiveAmount   decimal.Decimal                     `json:"active_amount"`
	ReversedAmount decimal.Decimal                     `json:"reversed_amount"`
	ByStrategy     map[StrategyType]StrategyStatistics `json:"by_strategy"`
}

// AllocationRepository persists allocations and credit note applications
type AllocationRepository interface {
	FindByIDForCompany(ctx context.Context, companyID, id uuid.UUID) (*PaymentAllocation, error)
	FindByIDForUpdate(ctx context.Context, companyID, id uuid.UUID) (*PaymentAllocation, error)
	FindAll(ctx context.Context, companyID uuid.UUID, filter AllocationFilter) ([]PaymentAllocation, error)
	Count(ctx context.Context, companyID uuid.UUID, filter AllocationFilter) (int64, error)
	HasActiveForDocument(ctx context.Context, companyID, documentID uuid.UUID) (bool, error)
	HasActiveForSource(ctx context.Context, companyID uuid.UUID, sourceType SourceType, sourceID uuid.UUID) (bool, error)
	Statistics(ctx context.Context, companyID uuid.UUID) (*AllocationStatistics, error)
	Create(ctx context.Context, allocation *PaymentAllocation) error
	// SaveReversal persists the reversal fields; amounts are never updated
	SaveReversal(ctx context.Context, allocation *PaymentAllocation) error
}

// TaxComponentRepository persists tax components
type TaxComponentRepository interface {
	FindByDocument(ctx context.Context, companyID, documentID uuid.UUID) ([]*TaxComponent, error)
	CreateBatch(ctx context.Context, components []*TaxComponent) error
	Save(ctx context.Context, component *TaxComponent) error
}

// AuditRepository appends audit entries
type AuditRepository interface {
	Create(ctx context.Context, entry *AuditEntry) error
	FindByEntity(ctx context.Context, companyID uuid.UUID, entityType string, entityID uuid.UUID) ([]AuditEntry, error)
}
