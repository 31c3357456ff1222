// Package currency formats monetary amounts for user-facing output.
// All prices are handled as decimal.Decimal to avoid floating-point errors;
// scraped SaaS prices are treated as USD.
package currency

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatUSD renders an amount as "$1,299.00".
func FormatUSD(amount decimal.Decimal) string {
	negative := amount.IsNegative()
	fixed := amount.Abs().StringFixed(2)

	parts := strings.SplitN(fixed, ".", 2)
	whole := groupThousands(parts[0])

	var b strings.Builder
	if negative {
		b.WriteByte('-')
	}
	b.WriteByte('$')
	b.WriteString(whole)
	b.WriteByte('.')
	b.WriteString(parts[1])
	return b.String()
}

// SignedPercent renders a percent change with an explicit sign, so increases
// read as "+25" and decreases as "-10.5".
func SignedPercent(pct decimal.Decimal) string {
	if pct.IsPositive() {
		return "+" + pct.String()
	}
	return pct.String()
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
