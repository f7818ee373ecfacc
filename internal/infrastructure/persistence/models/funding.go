package models

import (
	"time"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentModel is the persistence model for the Payment aggregate root.
type PaymentModel struct {
	CompanyAggregateModel
	PaymentNumber   string                `gorm:"type:varchar(50);not null"`
	CounterpartID   uuid.UUID             `gorm:"type:uuid;not null;index"`
	Amount          decimal.Decimal       `gorm:"type:decimal(18,4);not null"`
	RemainingAmount decimal.Decimal       `gorm:"type:decimal(18,4);not null"`
	Currency        valueobject.Currency  `gorm:"type:varchar(3);not null"`
	PaymentDate     time.Time             `gorm:"not null"`
	Method          finance.PaymentMethod `gorm:"type:varchar(30);not null"`
	Reference       string                `gorm:"type:varchar(200)"`
	Status          finance.PaymentStatus `gorm:"type:varchar(20);not null;default:'pending';index"`
	CompletedAt     *time.Time
	CancelledAt     *time.Time
	CancelReason    string `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "payments"
}

// ToDomain converts the persistence model to a domain Payment.
func (m *PaymentModel) ToDomain() *finance.Payment {
	return &finance.Payment{
		CompanyAggregateRoot: m.CompanyAggregateRoot(),
		PaymentNumber:        m.PaymentNumber,
		CounterpartID:        m.CounterpartID,
		Amount:               m.Amount,
		RemainingAmount:      m.RemainingAmount,
		Currency:             m.Currency,
		PaymentDate:          m.PaymentDate,
		Method:               m.Method,
		Reference:            m.Reference,
		Status:               m.Status,
		CompletedAt:          m.CompletedAt,
		CancelledAt:          m.CancelledAt,
		CancelReason:         m.CancelReason,
	}
}

// FromDomain populates the persistence model from a domain Payment.
func (m *PaymentModel) FromDomain(p *finance.Payment) {
	m.FromDomainCompanyAggregateRoot(p.CompanyAggregateRoot)
	m.PaymentNumber = p.PaymentNumber
	m.CounterpartID = p.CounterpartID
	m.Amount = p.Amount
	m.RemainingAmount = p.RemainingAmount
	m.Currency = p.Currency
	m.PaymentDate = p.PaymentDate
	m.Method = p.Method
	m.Reference = p.Reference
	m.Status = p.Status
	m.CompletedAt = p.CompletedAt
	m.CancelledAt = p.CancelledAt
	m.CancelReason = p.CancelReason
}

// PaymentModelFromDomain creates a new persistence model from a domain Payment.
func PaymentModelFromDomain(p *finance.Payment) *PaymentModel {
	m := &PaymentModel{}
	m.FromDomain(p)
	return m
}

// CreditNoteModel is the persistence model for the CreditNote aggregate root.
type CreditNoteModel struct {
	CompanyAggregateModel
	CreditNoteNumber   string                   `gorm:"type:varchar(50);not null"`
	SourceDocumentID   uuid.UUID                `gorm:"type:uuid;not null;index"`
	CounterpartID      uuid.UUID                `gorm:"type:uuid;not null;index"`
	Currency           valueobject.Currency     `gorm:"type:varchar(3);not null"`
	Reason             string                   `gorm:"type:varchar(500)"`
	IssueDate          time.Time                `gorm:"not null"`
	Amount             decimal.Decimal          `gorm:"type:decimal(18,4);not null"`
	TaxAmount          decimal.Decimal          `gorm:"type:decimal(18,4);not null"`
	TotalAmount        decimal.Decimal          `gorm:"type:decimal(18,4);not null"`
	RemainingAmount    decimal.Decimal          `gorm:"type:decimal(18,4);not null"`
	Status             finance.CreditNoteStatus `gorm:"type:varchar(20);not null;default:'draft';index"`
	PostedAt           *time.Time
	PostedBy           *uuid.UUID `gorm:"type:uuid"`
	CancelledAt        *time.Time
	CancellationReason string                `gorm:"type:varchar(500)"`
	Items              []CreditNoteItemModel `gorm:"foreignKey:CreditNoteID;references:ID"`
}

// TableName returns the table name for GORM
func (CreditNoteModel) TableName() string {
	return "credit_notes"
}

// ToDomain converts the persistence model to a domain CreditNote.
func (m *CreditNoteModel) ToDomain() *finance.CreditNote {
	items := make([]finance.CreditNoteItem, len(m.Items))
	for i, it := range m.Items {
		items[i] = finance.CreditNoteItem{
			ID:          it.ID,
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			TaxRate:     it.TaxRate,
			Amount:      it.Amount,
			TaxAmount:   it.TaxAmount,
			Total:       it.Total,
		}
	}
	return &finance.CreditNote{
		CompanyAggregateRoot: m.CompanyAggregateRoot(),
		CreditNoteNumber:     m.CreditNoteNumber,
		SourceDocumentID:     m.SourceDocumentID,
		CounterpartID:        m.CounterpartID,
		Currency:             m.Currency,
		Reason:               m.Reason,
		IssueDate:            m.IssueDate,
		Items:                items,
		Amount:               m.Amount,
		TaxAmount:            m.TaxAmount,
		TotalAmount:          m.TotalAmount,
		RemainingAmount:      m.RemainingAmount,
		Status:               m.Status,
		PostedAt:             m.PostedAt,
		PostedBy:             m.PostedBy,
		CancelledAt:          m.CancelledAt,
		CancellationReason:   m.CancellationReason,
	}
}

// FromDomain populates the persistence model, items included.
func (m *CreditNoteModel) FromDomain(c *finance.CreditNote) {
	m.FromDomainCompanyAggregateRoot(c.CompanyAggregateRoot)
	m.CreditNoteNumber = c.CreditNoteNumber
	m.SourceDocumentID = c.SourceDocumentID
	m.CounterpartID = c.CounterpartID
	m.Currency = c.Currency
	m.Reason = c.Reason
	m.IssueDate = c.IssueDate
	m.Amount = c.Amount
	m.TaxAmount = c.TaxAmount
	m.TotalAmount = c.TotalAmount
	m.RemainingAmount = c.RemainingAmount
	m.Status = c.Status
	m.PostedAt = c.PostedAt
	m.PostedBy = c.PostedBy
	m.CancelledAt = c.CancelledAt
	m.CancellationReason = c.CancellationReason
	m.Items = make([]CreditNoteItemModel, len(c.Items))
	for i, it := range c.Items {
		m.Items[i] = CreditNoteItemModel{
			ID:           it.ID,
			CreditNoteID: c.ID,
			Description:  it.Description,
			Quantity:     it.Quantity,
			UnitPrice:    it.UnitPrice,
			TaxRate:      it.TaxRate,
			Amount:       it.Amount,
			TaxAmount:    it.TaxAmount,
			Total:        it.Total,
		}
	}
}

// CreditNoteModelFromDomain creates a new persistence model from a domain CreditNote.
func CreditNoteModelFromDomain(c *finance.CreditNote) *CreditNoteModel {
	m := &CreditNoteModel{}
	m.FromDomain(c)
	return m
}

// CreditNoteItemModel is the persistence model for a credit note item.
type CreditNoteItemModel struct {
	ID           uuid.UUID       `gorm:"type:uuid;primary_key"`
	CreditNoteID uuid.UUID       `gorm:"type:uuid;not null;index"`
	Description  string          `gorm:"type:varchar(500);not null"`
	Quantity     decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	UnitPrice    decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	TaxRate      decimal.Decimal `gorm:"type:decimal(7,4);not null"`
	Amount       decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	TaxAmount    decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Total        decimal.Decimal `gorm:"type:decimal(18,4);not null"`
}

// TableName returns the table name for GORM
func (CreditNoteItemModel) TableName() string {
	return "credit_note_items"
}
