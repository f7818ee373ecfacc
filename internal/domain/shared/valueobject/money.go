package valueobject

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// AmountScale is the precision monetary amounts are kept at.
// Storage columns carry StorageScale digits so rounding never happens in the database.
const (
	AmountScale  int32 = 2
	StorageScale int32 = 4
)

// Currency represents a currency code (ISO 4217)
type Currency string

// Validate checks the code is three uppercase letters
func (c Currency) Validate() error {
	if len(c) != 3 {
		return fmt.Errorf("invalid currency code %q", string(c))
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return fmt.Errorf("invalid currency code %q", string(c))
		}
	}
	return nil
}

// String returns the currency code
func (c Currency) String() string {
	return string(c)
}

// RoundAmount rounds half away from zero to AmountScale
func RoundAmount(d decimal.Decimal) decimal.Decimal {
	return d.Round(AmountScale)
}

// IsAmountScale reports whether d carries no more than AmountScale fractional digits
func IsAmountScale(d decimal.Decimal) bool {
	return d.Equal(d.Round(AmountScale))
}

// MinorUnit returns the smallest representable amount at the given scale
func MinorUnit(scale int32) decimal.Decimal {
	return decimal.New(1, -scale)
}

// Money is a value object representing monetary amounts.
// It is immutable; all operations return new Money instances.
type Money struct {
	amount   decimal.Decimal
	currency Currency
}

// NewMoney creates a new Money with the specified amount and currency
func NewMoney(amount decimal.Decimal, currency Currency) (Money, error) {
	if currency == "" {
		return Money{}, errors.New("currency cannot be empty")
	}
	return Money{
		amount:   amount,
		currency: currency,
	}, nil
}

// NewMoneyFromString creates Money from a string representation
func NewMoneyFromString(amount string, currency Currency) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount string: %w", err)
	}
	return NewMoney(d, currency)
}

// MustMoney creates Money and panics on an empty currency
func MustMoney(amount decimal.Decimal, currency Currency) Money {
	m, err := NewMoney(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// Zero returns a zero-value Money in the specified currency
func Zero(currency Currency) Money {
	return Money{amount: decimal.Zero, currency: currency}
}

// Amount returns the decimal amount
func (m Money) Amount() decimal.Decimal {
	return m.amount
}

// Currency returns the currency code
func (m Money) Currency() Currency {
	return m.currency
}

// IsZero returns true if the amount is zero
func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

// IsPositive returns true if the amount is positive
func (m Money) IsPositive() bool {
	return m.amount.IsPositive()
}

// IsNegative returns true if the amount is negative
func (m Money) IsNegative() bool {
	return m.amount.IsNegative()
}

func (m Money) sameCurrency(other Money, op string) error {
	if m.currency != other.currency {
		return fmt.Errorf("cannot %s money with different currencies: %s and %s", op, m.currency, other.currency)
	}
	return nil
}

// Add returns a new Money with the sum of both amounts
func (m Money) Add(other Money) (Money, error) {
	if err := m.sameCurrency(other, "add"); err != nil {
		return Money{}, err
	}
	return Money{amount: m.amount.Add(other.amount), currency: m.currency}, nil
}

// Subtract returns a new Money with the difference
func (m Money) Subtract(other Money) (Money, error) {
	if err := m.sameCurrency(other, "subtract"); err != nil {
		return Money{}, err
	}
	return Money{amount: m.amount.Sub(other.amount), currency: m.currency}, nil
}

// Multiply returns a new Money multiplied by the given factor
func (m Money) Multiply(factor decimal.Decimal) Money {
	return Money{amount: m.amount.Mul(factor), currency: m.currency}
}

// Round returns a new Money rounded half away from zero to AmountScale
func (m Money) Round() Money {
	return Money{amount: RoundAmount(m.amount), currency: m.currency}
}

// Min returns the smaller of the two amounts
func (m Money) Min(other Money) (Money, error) {
	if err := m.sameCurrency(other, "compare"); err != nil {
		return Money{}, err
	}
	if other.amount.LessThan(m.amount) {
		return other, nil
	}
	return m, nil
}

// Cmp compares two amounts of the same currency
func (m Money) Cmp(other Money) (int, error) {
	if err := m.sameCurrency(other, "compare"); err != nil {
		return 0, err
	}
	return m.amount.Cmp(other.amount), nil
}

// Equals returns true if both Money values are equal (same amount and currency)
func (m Money) Equals(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

// Percentage returns percent% of this Money, unrounded
func (m Money) Percentage(percent decimal.Decimal) Money {
	return Money{
		amount:   m.amount.Mul(percent).Div(decimal.NewFromInt(100)),
		currency: m.currency,
	}
}

// String returns a string representation of the Money
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.amount.StringFixed(AmountScale), m.currency)
}

// MarshalJSON implements json.Marshaler
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   string   `json:"amount"`
		Currency Currency `json:"currency"`
	}{
		Amount:   m.amount.StringFixed(AmountScale),
		Currency: m.currency,
	})
}

// UnmarshalJSON implements json.Unmarshaler
func (m *Money) UnmarshalJSON(data []byte) error {
	var v struct {
		Amount   string   `json:"amount"`
		Currency Currency `json:"currency"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	amount, err := decimal.NewFromString(v.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}
	if v.Currency == "" {
		return errors.New("currency cannot be empty")
	}
	m.amount = amount
	m.currency = v.Currency
	return nil
}

// Value implements driver.Valuer; only the amount is stored
func (m Money) Value() (driver.Value, error) {
	return m.amount.StringFixed(StorageScale), nil
}

// AllocateByWeights splits total across weights using the largest-remainder
// method at the given scale. The shares always sum to total exactly.
// Each share is floored to the scale; leftover minor units go to the
// weights with the largest fractional remainders, earlier index first on ties.
func AllocateByWeights(total decimal.Decimal, weights []decimal.Decimal, scale int32) ([]decimal.Decimal, error) {
	if len(weights) == 0 {
		return nil, errors.New("weights cannot be empty")
	}
	if total.IsNegative() {
		return nil, errors.New("total cannot be negative")
	}
	if !total.Equal(total.Round(scale)) {
		return nil, fmt.Errorf("total %s has more than %d fractional digits", total, scale)
	}

	sum := decimal.Zero
	for i, w := range weights {
		if w.IsNegative() {
			return nil, fmt.Errorf("weight %d is negative", i)
		}
		sum = sum.Add(w)
	}
	if sum.IsZero() {
		return nil, errors.New("weights sum to zero")
	}

	shares := make([]decimal.Decimal, len(weights))
	remainders := make([]decimal.Decimal, len(weights))
	floored := decimal.Zero
	for i, w := range weights {
		exact := total.Mul(w).DivRound(sum, 16)
		shares[i] = exact.RoundFloor(scale)
		remainders[i] = exact.Sub(shares[i])
		floored = floored.Add(shares[i])
	}

	unit := MinorUnit(scale)
	leftover := total.Sub(floored).Div(unit).IntPart()
	if leftover == 0 {
		return shares, nil
	}

	order := make([]int, len(weights))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]].GreaterThan(remainders[order[b]])
	})
	for k := int64(0); k < leftover; k++ {
		idx := order[int(k)%len(order)]
		shares[idx] = shares[idx].Add(unit)
	}
	return shares, nil
}
