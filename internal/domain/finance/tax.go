package finance

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/erp/settlement/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TaxRateType distinguishes percentage and flat rates
type TaxRateType string

const (
	TaxRateTypePercentage TaxRateType = "percentage"
	TaxRateTypeFixed      TaxRateType = "fixed"
)

// IsValid checks if the rate type is known
func (t TaxRateType) IsValid() bool {
	return t == TaxRateTypePercentage || t == TaxRateTypeFixed
}

// TaxRate is a tax rate attached to a document line.
// Rates on a line are applied in slice order; compound rates see the
// taxes computed before them.
type TaxRate struct {
	ID              uuid.UUID       `json:"id"`
	Name            string          `json:"name"`
	Type            TaxRateType     `json:"type"`
	Rate            decimal.Decimal `json:"rate"`
	FixedAmount     decimal.Decimal `json:"fixed_amount"`
	IsCompound      bool            `json:"is_compound"`
	IsInclusive     bool            `json:"is_inclusive"`
	IsReverseCharge bool            `json:"is_reverse_charge"`
}

// Validate checks the rate is usable
func (r TaxRate) Validate() error {
	if !r.Type.IsValid() {
		return shared.NewDomainErrorf(CodeInvalidTax, "Tax rate %q has unknown type %q", r.Name, r.Type)
	}
	if r.Type == TaxRateTypePercentage && (r.Rate.IsNegative() || r.Rate.GreaterThan(decimal.NewFromInt(100))) {
		return shared.NewDomainErrorf(CodeInvalidTax, "Tax rate %q must be between 0 and 100 percent", r.Name)
	}
	if r.Type == TaxRateTypeFixed && r.FixedAmount.IsNegative() {
		return shared.NewDomainErrorf(CodeInvalidTax, "Tax rate %q fixed amount cannot be negative", r.Name)
	}
	return nil
}

// TaxRates is a slice of TaxRate stored as JSONB
type TaxRates []TaxRate

// Value implements driver.Valuer for JSONB storage
func (t TaxRates) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	b, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for JSONB retrieval
func (t *TaxRates) Scan(value any) error {
	if value == nil {
		*t = TaxRates{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan TaxRates: unsupported type")
	}
	if len(bytes) == 0 {
		*t = TaxRates{}
		return nil
	}
	return json.Unmarshal(bytes, t)
}

// TaxComponent is the immutable tax record of one rate on one document line.
// Only the paid/credited counters, filing period and reversal flag change after creation.
type TaxComponent struct {
	shared.BaseEntity
	CompanyID       uuid.UUID
	DocumentID      uuid.UUID
	LineNumber      int
	TaxRateID       uuid.UUID
	TaxRateName     string
	RateType        TaxRateType
	Rate            decimal.Decimal
	TaxableAmount   decimal.Decimal
	TaxAmount       decimal.Decimal
	PaidAmount      decimal.Decimal
	CreditedAmount  decimal.Decimal
	IsInclusive     bool
	IsReverseCharge bool
	IsReversed      bool
	ReversedAt      *time.Time
	PeriodStart     *time.Time
	PeriodEnd       *time.Time
	TaxReturnID     *uuid.UUID
}

// NewTaxComponent creates a component from a computed line tax
func NewTaxComponent(companyID, documentID uuid.UUID, lineNumber int, tax LineTax) *TaxComponent {
	rate := tax.Rate.Rate
	if tax.Rate.Type == TaxRateTypeFixed {
		rate = tax.Rate.FixedAmount
	}
	return &TaxComponent{
		BaseEntity:      shared.NewBaseEntity(),
		CompanyID:       companyID,
		DocumentID:      documentID,
		LineNumber:      lineNumber,
		TaxRateID:       tax.Rate.ID,
		TaxRateName:     tax.Rate.Name,
		RateType:        tax.Rate.Type,
		Rate:            rate,
		TaxableAmount:   tax.TaxableAmount,
		TaxAmount:       tax.TaxAmount,
		PaidAmount:      decimal.Zero,
		CreditedAmount:  decimal.Zero,
		IsInclusive:     tax.Rate.IsInclusive,
		IsReverseCharge: tax.Rate.IsReverseCharge,
	}
}

// Outstanding returns tax not yet paid or credited
func (c *TaxComponent) Outstanding() decimal.Decimal {
	return c.TaxAmount.Sub(c.PaidAmount).Sub(c.CreditedAmount)
}

func (c *TaxComponent) checkApplicable(amount decimal.Decimal) error {
	if c.IsReversed {
		return shared.NewDomainError(CodeAlreadyReversed, "Tax component has been reversed")
	}
	if !amount.IsPositive() {
		return shared.NewDomainError(CodeInvalidAmount, "Amount must be positive")
	}
	if amount.GreaterThan(c.Outstanding()) {
		return shared.NewDomainErrorf(CodeTaxOverApplied, "Amount %s exceeds outstanding tax %s", amount.StringFixed(2), c.Outstanding().StringFixed(2))
	}
	return nil
}

// RecordPayment records tax paid to the agency
func (c *TaxComponent) RecordPayment(amount decimal.Decimal) error {
	if err := c.checkApplicable(amount); err != nil {
		return err
	}
	c.PaidAmount = c.PaidAmount.Add(amount)
	c.UpdatedAt = time.Now()
	return nil
}

// RecordCredit records tax credited back through a credit note
func (c *TaxComponent) RecordCredit(amount decimal.Decimal) error {
	if err := c.checkApplicable(amount); err != nil {
		return err
	}
	c.CreditedAmount = c.CreditedAmount.Add(amount)
	c.UpdatedAt = time.Now()
	return nil
}

// AssignFilingPeriod marks the component as belonging to a tax return period
func (c *TaxComponent) AssignFilingPeriod(start, end time.Time, taxReturnID *uuid.UUID) error {
	if c.IsReversed {
		return shared.NewDomainError(CodeAlreadyReversed, "Tax component has been reversed")
	}
	if end.Before(start) {
		return shared.NewDomainError(shared.CodeInvalidInput, "Filing period end is before its start")
	}
	c.PeriodStart = &start
	c.PeriodEnd = &end
	c.TaxReturnID = taxReturnID
	c.UpdatedAt = time.Now()
	return nil
}

// Reverse marks the component reversed
func (c *TaxComponent) Reverse(at time.Time) error {
	if c.IsReversed {
		return shared.NewDomainError(CodeAlreadyReversed, "Tax component has already been reversed")
	}
	c.IsReversed = true
	c.ReversedAt = &at
	c.UpdatedAt = at
	return nil
}
