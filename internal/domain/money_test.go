package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestMoney_ToDecimal(t *testing.T) {
	m := NewMoney(10_500_000, "USD") // 10.50 USD
	d := m.ToDecimal()
	assert.Equal(t, "10.5", d.String())
}

func TestFromDecimal(t *testing.T) {
	d := decimal.NewFromFloat(10.50)
	micros := FromDecimal(d)
	assert.Equal(t, int64(10_500_000), micros)
}

func TestParseAmount(t *testing.T) {
	micros, err := ParseAmount("25.99")
	assert.NoError(t, err)
	assert.Equal(t, int64(25_990_000), micros)

	micros, err = ParseAmount(" -3.5 ")
	assert.NoError(t, err)
	assert.Equal(t, int64(-3_500_000), micros)

	_, err = ParseAmount("ten dollars")
	assert.Error(t, err)

	_, err = ParseAmount("")
	assert.Error(t, err)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "10.5", FormatAmount(10_500_000))
	assert.Equal(t, "-0.25", FormatAmount(-250_000))
	assert.Equal(t, "0", FormatAmount(0))
}

func TestNormalizeCurrency(t *testing.T) {
	assert.Equal(t, "USD", NormalizeCurrency(" usd "))
	assert.Equal(t, "EUR", NormalizeCurrency("eur"))
}
