package models

import (
	"time"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PayableDocumentModel is the persistence model for the PayableDocument aggregate root.
type PayableDocumentModel struct {
	CompanyAggregateModel
	Kind            finance.DocumentKind   `gorm:"type:varchar(30);not null;index"`
	DocumentNumber  string                 `gorm:"type:varchar(50);not null"`
	CounterpartID   uuid.UUID              `gorm:"type:uuid;not null;index"`
	Status          finance.DocumentStatus `gorm:"type:varchar(30);not null;default:'draft';index"`
	Currency        valueobject.Currency   `gorm:"type:varchar(3);not null"`
	ExchangeRate    decimal.Decimal        `gorm:"type:decimal(18,6);not null"`
	IssueDate       time.Time              `gorm:"not null"`
	DueDate         *time.Time             `gorm:"index"`
	Subtotal        decimal.Decimal        `gorm:"type:decimal(18,4);not null"`
	TaxAmount       decimal.Decimal        `gorm:"type:decimal(18,4);not null"`
	TotalAmount     decimal.Decimal        `gorm:"type:decimal(18,4);not null"`
	BalanceDue      decimal.Decimal        `gorm:"type:decimal(18,4);not null"`
	Notes           string                 `gorm:"type:text"`
	SubmittedAt     *time.Time
	ApprovedAt      *time.Time
	ApprovedBy      *uuid.UUID `gorm:"type:uuid"`
	PostedAt        *time.Time
	PostedBy        *uuid.UUID `gorm:"type:uuid"`
	PaidAt          *time.Time
	RejectedAt      *time.Time
	RejectionReason string `gorm:"type:varchar(500)"`
	CancelledAt     *time.Time
	CancelReason    string              `gorm:"type:varchar(500)"`
	Lines           []DocumentLineModel `gorm:"foreignKey:DocumentID;references:ID"`
}

// TableName returns the table name for GORM
func (PayableDocumentModel) TableName() string {
	return "payable_documents"
}

// ToDomain converts the persistence model to a domain PayableDocument.
func (m *PayableDocumentModel) ToDomain() *finance.PayableDocument {
	lines := make([]finance.DocumentLine, len(m.Lines))
	for i := range m.Lines {
		lines[i] = m.Lines[i].ToDomain()
	}
	return &finance.PayableDocument{
		CompanyAggregateRoot: m.CompanyAggregateRoot(),
		Kind:                 m.Kind,
		DocumentNumber:       m.DocumentNumber,
		CounterpartID:        m.CounterpartID,
		Status:               m.Status,
		Currency:             m.Currency,
		ExchangeRate:         m.ExchangeRate,
		IssueDate:            m.IssueDate,
		DueDate:              m.DueDate,
		Lines:                lines,
		Subtotal:             m.Subtotal,
		TaxAmount:            m.TaxAmount,
		TotalAmount:          m.TotalAmount,
		BalanceDue:           m.BalanceDue,
		Notes:                m.Notes,
		SubmittedAt:          m.SubmittedAt,
		ApprovedAt:           m.ApprovedAt,
		ApprovedBy:           m.ApprovedBy,
		PostedAt:             m.PostedAt,
		PostedBy:             m.PostedBy,
		PaidAt:               m.PaidAt,
		RejectedAt:           m.RejectedAt,
		RejectionReason:      m.RejectionReason,
		CancelledAt:          m.CancelledAt,
		CancelReason:         m.CancelReason,
	}
}

// FromDomain populates the persistence model, lines included.
func (m *PayableDocumentModel) FromDomain(d *finance.PayableDocument) {
	m.FromDomainCompanyAggregateRoot(d.CompanyAggregateRoot)
	m.Kind = d.Kind
	m.DocumentNumber = d.DocumentNumber
	m.CounterpartID = d.CounterpartID
	m.Status = d.Status
	m.Currency = d.Currency
	m.ExchangeRate = d.ExchangeRate
	m.IssueDate = d.IssueDate
	m.DueDate = d.DueDate
	m.Subtotal = d.Subtotal
	m.TaxAmount = d.TaxAmount
	m.TotalAmount = d.TotalAmount
	m.BalanceDue = d.BalanceDue
	m.Notes = d.Notes
	m.SubmittedAt = d.SubmittedAt
	m.ApprovedAt = d.ApprovedAt
	m.ApprovedBy = d.ApprovedBy
	m.PostedAt = d.PostedAt
	m.PostedBy = d.PostedBy
	m.PaidAt = d.PaidAt
	m.RejectedAt = d.RejectedAt
	m.RejectionReason = d.RejectionReason
	m.CancelledAt = d.CancelledAt
	m.CancelReason = d.CancelReason
	m.Lines = DocumentLineModelsFromDomain(d)
}

// PayableDocumentModelFromDomain creates a new persistence model from a domain document.
func PayableDocumentModelFromDomain(d *finance.PayableDocument) *PayableDocumentModel {
	m := &PayableDocumentModel{}
	m.FromDomain(d)
	return m
}

// DocumentLineModel is the persistence model for a document line.
type DocumentLineModel struct {
	ID              uuid.UUID        `gorm:"type:uuid;primary_key"`
	DocumentID      uuid.UUID        `gorm:"type:uuid;not null;index"`
	LineNumber      int              `gorm:"not null"`
	Description     string           `gorm:"type:varchar(500);not null"`
	Quantity        decimal.Decimal  `gorm:"type:decimal(18,4);not null"`
	UnitPrice       decimal.Decimal  `gorm:"type:decimal(18,4);not null"`
	DiscountPercent decimal.Decimal  `gorm:"type:decimal(7,4);not null"`
	TaxRates        finance.TaxRates `gorm:"type:jsonb;default:'[]'"`
	TaxableAmount   decimal.Decimal  `gorm:"type:decimal(18,4);not null"`
	TaxAmount       decimal.Decimal  `gorm:"type:decimal(18,4);not null"`
	LineTotal       decimal.Decimal  `gorm:"type:decimal(18,4);not null"`
}

// TableName returns the table name for GORM
func (DocumentLineModel) TableName() string {
	return "payable_document_lines"
}

// ToDomain converts the line model to a domain line
func (m *DocumentLineModel) ToDomain() finance.DocumentLine {
	return finance.DocumentLine{
		ID:              m.ID,
		LineNumber:      m.LineNumber,
		Description:     m.Description,
		Quantity:        m.Quantity,
		UnitPrice:       m.UnitPrice,
		DiscountPercent: m.DiscountPercent,
		TaxRates:        m.TaxRates,
		TaxableAmount:   m.TaxableAmount,
		TaxAmount:       m.TaxAmount,
		LineTotal:       m.LineTotal,
	}
}

// DocumentLineModelsFromDomain converts the lines of d
func DocumentLineModelsFromDomain(d *finance.PayableDocument) []DocumentLineModel {
	lines := make([]DocumentLineModel, len(d.Lines))
	for i, l := range d.Lines {
		id := l.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		lines[i] = DocumentLineModel{
			ID:              id,
			DocumentID:      d.ID,
			LineNumber:      l.LineNumber,
			Description:     l.Description,
			Quantity:        l.Quantity,
			UnitPrice:       l.UnitPrice,
			DiscountPercent: l.DiscountPercent,
			TaxRates:        l.TaxRates,
			TaxableAmount:   l.TaxableAmount,
			TaxAmount:       l.TaxAmount,
			LineTotal:       l.LineTotal,
		}
	}
	return lines
}
