package enums

import (
	"fmt"
	"strings"
)

// Currency is an ISO-4217 code supported for cart totals.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyCAD Currency = "CAD"
	CurrencyAUD Currency = "AUD"
	CurrencyJPY Currency = "JPY"
	CurrencyKRW Currency = "KRW"
)

// minor-unit exponent per currency
var currencyExponents = map[Currency]int32{
	CurrencyUSD: 2,
	CurrencyEUR: 2,
	CurrencyGBP: 2,
	CurrencyCAD: 2,
	CurrencyAUD: 2,
	CurrencyJPY: 0,
	CurrencyKRW: 0,
}

// String implements fmt.Stringer.
func (c Currency) String() string {
	return string(c)
}

// IsValid reports whether the currency is recognized.
func (c Currency) IsValid() bool {
	_, ok := currencyExponents[c]
	return ok
}

// Exponent returns the number of minor-unit digits (2 for cents).
func (c Currency) Exponent() int32 {
	return currencyExponents[c]
}

// ParseCurrency validates a three-letter upper-case code.
func ParseCurrency(value string) (Currency, error) {
	value = strings.TrimSpace(value)
	if len(value) != 3 || strings.ToUpper(value) != value {
		return "", fmt.Errorf("invalid currency %q", value)
	}
	currency := Currency(value)
	if !currency.IsValid() {
		return "", fmt.Errorf("unsupported currency %q", value)
	}
	return currency, nil
}
