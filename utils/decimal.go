package utils

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount accepts user-formatted amounts such as "20,000", "USD 1,234.50"
// or "-15". Keeps digits, '.', and a leading '-' only.
func ParseAmount(v string) (decimal.Decimal, error) {
	s := strings.TrimSpace(v)
	neg := false
	if s != "" {
		s = strings.ReplaceAll(s, ",", "")
		// drop a leading currency code or symbol
		s = strings.TrimLeftFunc(s, func(r rune) bool {
			return (r < '0' || r > '9') && r != '-' && r != '.'
		})
		s = strings.TrimSpace(s)
	}
	if strings.HasPrefix(s, "-") {
		neg = true
		s = strings.TrimSpace(strings.TrimPrefix(s, "-"))
	}
	var b strings.Builder
	b.Grow(len(s) + 1)
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	clean := b.String()
	if clean == "" {
		return decimal.Zero, fmt.Errorf("invalid amount %q", v)
	}
	if neg {
		clean = "-" + clean
	}
	return decimal.NewFromString(clean)
}
