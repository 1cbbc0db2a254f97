package models

import (
	"github.com/shopspring/decimal"
)

// All monetary amounts are quantized to euro cents, rounding half away
// from zero, before they are stored or combined with other amounts.
func Quantize(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ToEUR converts a native-currency amount using the given rate-to-EUR.
// EUR amounts pass through unchanged apart from re-quantization.
func ToEUR(amount decimal.Decimal, currency string, rate decimal.Decimal) decimal.Decimal {
	if currency == "EUR" {
		return Quantize(amount)
	}
	return Quantize(amount.Mul(rate))
}
