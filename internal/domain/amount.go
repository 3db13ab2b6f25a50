package domain

import "github.com/shopspring/decimal"

// FormatAmount renders d keeping the scale it was given with,
// so 1000.00 stays "1000.00" rather than "1000".
func FormatAmount(d decimal.Decimal) string {
	if exp := d.Exponent(); exp < 0 {
		return d.StringFixed(-exp)
	}
	return d.String()
}
