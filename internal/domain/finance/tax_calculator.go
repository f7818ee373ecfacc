package finance

import (
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// LineInput is what the calculator needs from a document line
type LineInput struct {
	Quantity        decimal.Decimal
	UnitPrice       decimal.Decimal
	DiscountPercent decimal.Decimal
	Rates           []TaxRate
}

// LineTax is the computed tax for one rate on one line
type LineTax struct {
	Rate          TaxRate
	TaxableAmount decimal.Decimal
	TaxAmount     decimal.Decimal
}

// LineResult is the computed amounts for one line
type LineResult struct {
	GrossAmount   decimal.Decimal
	TaxableAmount decimal.Decimal
	// CustomerTax excludes reverse-charge taxes
	CustomerTax decimal.Decimal
	// ReportedTax includes every tax, reverse-charge included
	ReportedTax decimal.Decimal
	Total       decimal.Decimal
	Taxes       []LineTax
}

// TaxCalculator computes per-line taxes. It is pure and holds no state.
type TaxCalculator struct{}

// NewTaxCalculator creates a tax calculator
func NewTaxCalculator() *TaxCalculator {
	return &TaxCalculator{}
}

// CalculateLine computes gross, taxable, tax and total amounts for one line.
//
// The gross is quantity x unit price less the discount. Exclusive rates are
// added on top of the taxable amount. Inclusive rates are backed out of the
// gross so taxable + inclusive taxes == gross to the cent. Reverse-charge
// rates are computed for reporting only and never reach the customer total.
func (c *TaxCalculator) CalculateLine(in LineInput) (*LineResult, error) {
	if !in.Quantity.IsPositive() {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Quantity must be positive")
	}
	if in.UnitPrice.IsNegative() {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Unit price cannot be negative")
	}
	if in.DiscountPercent.IsNegative() || in.DiscountPercent.GreaterThan(hundred) {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Discount must be between 0 and 100 percent")
	}
	hasInclusive := false
	for _, r := range in.Rates {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if r.IsInclusive && !r.IsReverseCharge {
			hasInclusive = true
		}
	}

	gross := valueobject.RoundAmount(
		in.Quantity.Mul(in.UnitPrice).Mul(hundred.Sub(in.DiscountPercent)).Div(hundred),
	)

	taxable := gross
	if hasInclusive {
		taxable = backOutInclusive(gross, in.Rates)
	}
	taxes := applyRates(taxable, in.Rates, nil)

	if hasInclusive {
		// absorb rounding into taxable so gross stays exact
		fixed := make(map[int]decimal.Decimal)
		inclusiveSum := decimal.Zero
		for i, t := range taxes {
			if t.Rate.IsInclusive && !t.Rate.IsReverseCharge {
				fixed[i] = t.TaxAmount
				inclusiveSum = inclusiveSum.Add(t.TaxAmount)
			}
		}
		taxable = gross.Sub(inclusiveSum)
		taxes = applyRates(taxable, in.Rates, fixed)
	}

	result := &LineResult{
		GrossAmount:   gross,
		TaxableAmount: taxable,
		CustomerTax:   decimal.Zero,
		ReportedTax:   decimal.Zero,
		Taxes:         taxes,
	}
	for _, t := range taxes {
		result.ReportedTax = result.ReportedTax.Add(t.TaxAmount)
		if !t.Rate.IsReverseCharge {
			result.CustomerTax = result.CustomerTax.Add(t.TaxAmount)
		}
	}
	result.Total = taxable.Add(result.CustomerTax)
	return result, nil
}

// applyRates runs the rates in order over taxable. Entries in fixed override
// the computed amount for that index.
func applyRates(taxable decimal.Decimal, rates []TaxRate, fixed map[int]decimal.Decimal) []LineTax {
	taxes := make([]LineTax, 0, len(rates))
	prior := decimal.Zero
	for i, r := range rates {
		base := taxable
		if r.IsCompound {
			base = taxable.Add(prior)
		}
		amount, pinned := fixed[i]
		switch {
		case pinned:
		case r.Type == TaxRateTypeFixed:
			amount = valueobject.RoundAmount(r.FixedAmount)
		default:
			amount = valueobject.RoundAmount(base.Mul(r.Rate).Div(hundred))
		}
		taxes = append(taxes, LineTax{Rate: r, TaxableAmount: base, TaxAmount: amount})
		if !r.IsReverseCharge {
			prior = prior.Add(amount)
		}
	}
	return taxes
}

// backOutInclusive solves gross = taxable*(1+a) + b for taxable, where the
// inclusive taxes are expressed as the linear form a*taxable + b.
func backOutInclusive(gross decimal.Decimal, rates []TaxRate) decimal.Decimal {
	a, b := decimal.Zero, decimal.Zero
	for _, r := range rates {
		if !r.IsInclusive || r.IsReverseCharge {
			continue
		}
		if r.Type == TaxRateTypeFixed {
			b = b.Add(r.FixedAmount)
			continue
		}
		pct := r.Rate.Div(hundred)
		ta, tb := pct, decimal.Zero
		if r.IsCompound {
			ta = decimal.NewFromInt(1).Add(a).Mul(pct)
			tb = b.Mul(pct)
		}
		a = a.Add(ta)
		b = b.Add(tb)
	}
	return valueobject.RoundAmount(gross.Sub(b).DivRound(decimal.NewFromInt(1).Add(a), 10))
}
