package validation

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ParseMoney accepts "1234.5", "$1,234.50" and similar; negatives are rejected.
func ParseMoney(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("amount must not be negative")
	}
	return d.Round(2), nil
}

// ParseDate parses YYYY-MM-DD; empty input yields nil.
func ParseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q", s)
	}
	return &t, nil
}

// NormalizeState upper-cases and trims a state code.
func NormalizeState(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
