package valueobject

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCurrency_Validate(t *testing.T) {
	assert.NoError(t, Currency("USD").Validate())
	assert.Error(t, Currency("usd").Validate())
	assert.Error(t, Currency("US").Validate())
	assert.Error(t, Currency("").Validate())
}

func TestRoundAmount(t *testing.T) {
	assert.True(t, RoundAmount(dec("10.005")).Equal(dec("10.01")))
	assert.True(t, RoundAmount(dec("10.004")).Equal(dec("10.00")))
	assert.True(t, RoundAmount(dec("-10.005")).Equal(dec("-10.01")))
	assert.True(t, IsAmountScale(dec("1.10")))
	assert.False(t, IsAmountScale(dec("1.101")))
}

func TestMoney_Arithmetic(t *testing.T) {
	a := MustMoney(dec("100.50"), "USD")
	b := MustMoney(dec("20.25"), "USD")

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.True(t, sum.Amount().Equal(dec("120.75")))

	diff, err := a.Subtract(b)
	require.NoError(t, err)
	assert.True(t, diff.Amount().Equal(dec("80.25")))

	min, err := a.Min(b)
	require.NoError(t, err)
	assert.True(t, min.Equals(b))

	_, err = a.Add(MustMoney(dec("1"), "EUR"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "different currencies")

	_, err = NewMoney(dec("1"), "")
	assert.Error(t, err)
}

func TestMoney_Percentage(t *testing.T) {
	m := MustMoney(dec("200"), "USD")
	assert.True(t, m.Percentage(dec("7.5")).Amount().Equal(dec("15")))
	assert.True(t, MustMoney(dec("33.335"), "USD").Round().Amount().Equal(dec("33.34")))
}

func TestMoney_JSON(t *testing.T) {
	m := MustMoney(dec("12.5"), "USD")
	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"12.50","currency":"USD"}`, string(data))

	var parsed Money
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.True(t, parsed.Equals(MustMoney(dec("12.50"), "USD")))

	assert.Error(t, json.Unmarshal([]byte(`{"amount":"1","currency":""}`), &parsed))
}

func TestAllocateByWeights(t *testing.T) {
	t.Run("splits evenly with leftover cent to first on ties", func(t *testing.T) {
		shares, err := AllocateByWeights(dec("100"), []decimal.Decimal{dec("1"), dec("1"), dec("1")}, AmountScale)
		require.NoError(t, err)
		assert.Equal(t, "33.34", shares[0].StringFixed(2))
		assert.Equal(t, "33.33", shares[1].StringFixed(2))
		assert.Equal(t, "33.33", shares[2].StringFixed(2))
	})

	t.Run("gives leftover to the largest remainder", func(t *testing.T) {
		// exact shares: 33.333.., 66.666..
		shares, err := AllocateByWeights(dec("100"), []decimal.Decimal{dec("100"), dec("200")}, AmountScale)
		require.NoError(t, err)
		assert.Equal(t, "33.33", shares[0].StringFixed(2))
		assert.Equal(t, "66.67", shares[1].StringFixed(2))
	})

	t.Run("shares always sum to total", func(t *testing.T) {
		weights := []decimal.Decimal{dec("17.13"), dec("0.01"), dec("999.99"), dec("3.33"), dec("42")}
		shares, err := AllocateByWeights(dec("777.77"), weights, AmountScale)
		require.NoError(t, err)
		sum := decimal.Zero
		for _, s := range shares {
			sum = sum.Add(s)
			assert.False(t, s.IsNegative())
		}
		assert.True(t, sum.Equal(dec("777.77")))
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		_, err := AllocateByWeights(dec("10"), nil, AmountScale)
		assert.Error(t, err)
		_, err = AllocateByWeights(dec("10"), []decimal.Decimal{decimal.Zero}, AmountScale)
		assert.Error(t, err)
		_, err = AllocateByWeights(dec("10.001"), []decimal.Decimal{dec("1")}, AmountScale)
		assert.Error(t, err)
		_, err = AllocateByWeights(dec("10"), []decimal.Decimal{dec("-1")}, AmountScale)
		assert.Error(t, err)
	})
}
