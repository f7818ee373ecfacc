package models

import (
	"time"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentAllocationModel is the persistence model for allocations and credit
// note applications. Rows are inserted once; only the reversal columns change.
type PaymentAllocationModel struct {
	BaseModel
	CompanyID       uuid.UUID                `gorm:"type:uuid;not null;index"`
	CommandID       uuid.UUID                `gorm:"type:uuid;not null;index"`
	SourceType      finance.SourceType       `gorm:"type:varchar(20);not null;index:idx_allocation_source,priority:1"`
	SourceID        uuid.UUID                `gorm:"type:uuid;not null;index:idx_allocation_source,priority:2"`
	DocumentID      uuid.UUID                `gorm:"type:uuid;not null;index"`
	CounterpartID   uuid.UUID                `gorm:"type:uuid;not null"`
	AllocatedAmount decimal.Decimal          `gorm:"type:decimal(18,4);not null"`
	Currency        valueobject.Currency     `gorm:"type:varchar(3);not null"`
	AllocationDate  time.Time                `gorm:"not null"`
	Strategy        finance.StrategyType     `gorm:"type:varchar(20);not null;index"`
	Method          finance.AllocationMethod `gorm:"type:varchar(20);not null"`
	Notes           string                   `gorm:"type:text"`
	CreatedBy       uuid.UUID                `gorm:"type:uuid;not null"`
	IsReversed      bool                     `gorm:"not null;default:false;index"`
	ReversedAt      *time.Time
	ReversedBy      *uuid.UUID `gorm:"type:uuid"`
	ReversalReason  string     `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (PaymentAllocationModel) TableName() string {
	return "payment_allocations"
}

// ToDomain converts the persistence model to a domain allocation.
func (m *PaymentAllocationModel) ToDomain() *finance.PaymentAllocation {
	return &finance.PaymentAllocation{
		BaseEntity:      m.BaseModel.ToDomain(),
		CompanyID:       m.CompanyID,
		CommandID:       m.CommandID,
		SourceType:      m.SourceType,
		SourceID:        m.SourceID,
		DocumentID:      m.DocumentID,
		CounterpartID:   m.CounterpartID,
		AllocatedAmount: m.AllocatedAmount,
		Currency:        m.Currency,
		AllocationDate:  m.AllocationDate,
		Strategy:        m.Strategy,
		Method:          m.Method,
		Notes:           m.Notes,
		CreatedBy:       m.CreatedBy,
		IsReversed:      m.IsReversed,
		ReversedAt:      m.ReversedAt,
		ReversedBy:      m.ReversedBy,
		ReversalReason:  m.ReversalReason,
	}
}

// PaymentAllocationModelFromDomain creates a persistence model from a domain allocation.
func PaymentAllocationModelFromDomain(a *finance.PaymentAllocation) *PaymentAllocationModel {
	m := &PaymentAllocationModel{
		CompanyID:       a.CompanyID,
		CommandID:       a.CommandID,
		SourceType:      a.SourceType,
		SourceID:        a.SourceID,
		DocumentID:      a.DocumentID,
		CounterpartID:   a.CounterpartID,
		AllocatedAmount: a.AllocatedAmount,
		Currency:        a.Currency,
		AllocationDate:  a.AllocationDate,
		Strategy:        a.Strategy,
		Method:          a.Method,
		Notes:           a.Notes,
		CreatedBy:       a.CreatedBy,
		IsReversed:      a.IsReversed,
		ReversedAt:      a.ReversedAt,
		ReversedBy:      a.ReversedBy,
		ReversalReason:  a.ReversalReason,
	}
	m.FromDomainBaseEntity(a.BaseEntity)
	return m
}

// TaxComponentModel is the persistence model for a tax component.
type TaxComponentModel struct {
	BaseModel
	CompanyID       uuid.UUID           `gorm:"type:uuid;not null;index"`
	DocumentID      uuid.UUID           `gorm:"type:uuid;not null;index"`
	LineNumber      int                 `gorm:"not null"`
	TaxRateID       uuid.UUID           `gorm:"type:uuid"`
	TaxRateName     string              `gorm:"type:varchar(100);not null"`
	RateType        finance.TaxRateType `gorm:"type:varchar(20);not null"`
	Rate            decimal.Decimal     `gorm:"type:decimal(18,4);not null"`
	TaxableAmount   decimal.Decimal     `gorm:"type:decimal(18,4);not null"`
	TaxAmount       decimal.Decimal     `gorm:"type:decimal(18,4);not null"`
	PaidAmount      decimal.Decimal     `gorm:"type:decimal(18,4);not null"`
	CreditedAmount  decimal.Decimal     `gorm:"type:decimal(18,4);not null"`
	IsInclusive     bool                `gorm:"not null;default:false"`
	IsReverseCharge bool                `gorm:"not null;default:false"`
	IsReversed      bool                `gorm:"not null;default:false"`
	ReversedAt      *time.Time
	PeriodStart     *time.Time
	PeriodEnd       *time.Time
	TaxReturnID     *uuid.UUID `gorm:"type:uuid"`
}

// TableName returns the table name for GORM
func (TaxComponentModel) TableName() string {
	return "tax_components"
}

// ToDomain converts the persistence model to a domain tax component.
func (m *TaxComponentModel) ToDomain() *finance.TaxComponent {
	return &finance.TaxComponent{
		BaseEntity:      shared.BaseEntity{ID: m.ID, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		CompanyID:       m.CompanyID,
		DocumentID:      m.DocumentID,
		LineNumber:      m.LineNumber,
		TaxRateID:       m.TaxRateID,
		TaxRateName:     m.TaxRateName,
		RateType:        m.RateType,
		Rate:            m.Rate,
		TaxableAmount:   m.TaxableAmount,
		TaxAmount:       m.TaxAmount,
		PaidAmount:      m.PaidAmount,
		CreditedAmount:  m.CreditedAmount,
		IsInclusive:     m.IsInclusive,
		IsReverseCharge: m.IsReverseCharge,
		IsReversed:      m.IsReversed,
		ReversedAt:      m.ReversedAt,
		PeriodStart:     m.PeriodStart,
		PeriodEnd:       m.PeriodEnd,
		TaxReturnID:     m.TaxReturnID,
	}
}

// TaxComponentModelFromDomain creates a persistence model from a domain tax component.
func TaxComponentModelFromDomain(c *finance.TaxComponent) *TaxComponentModel {
	m := &TaxComponentModel{
		CompanyID:       c.CompanyID,
		DocumentID:      c.DocumentID,
		LineNumber:      c.LineNumber,
		TaxRateID:       c.TaxRateID,
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
		ReversedAt:      c.ReversedAt,
		PeriodStart:     c.PeriodStart,
		PeriodEnd:       c.PeriodEnd,
		TaxReturnID:     c.TaxReturnID,
	}
	m.FromDomainBaseEntity(c.BaseEntity)
	return m
}
