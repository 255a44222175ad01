// Package money holds the fixed-point helpers shared by every settlement calculation.
package money

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/aluga-erp/aluga/internal/shared"
)

// Scale is the number of decimal places kept for currency values.
const Scale int32 = 2

var (
	// Zero is the decimal zero value.
	Zero = decimal.Zero
	// Hundred is used for percentage math.
	Hundred = decimal.NewFromInt(100)
	// Cent is the smallest representable currency unit.
	Cent = decimal.New(1, -Scale)
	// ShareTolerance is the accepted deviation when percentages must total 100.
	ShareTolerance = Cent
)

// Round rounds to two decimal places, half away from zero (0.005 -> 0.01).
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// Sum adds the supplied values without rounding.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// Percent returns base * pct / 100 without rounding.
func Percent(base, pct decimal.Decimal) decimal.Decimal {
	return base.Mul(pct).Div(Hundred)
}

// WithinTolerance reports whether |a-b| <= tolerance.
func WithinTolerance(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}

var (
	// "1.234,56", "1234,56", "0,52"
	brazilianDecimal = regexp.MustCompile(`^(\d+|[1-9]\d{0,2}(\.\d{3})+),\d+$`)
	// "1.234", "12.345.678"
	groupedInteger = regexp.MustCompile(`^[1-9]\d{0,2}(\.\d{3})+$`)
	// "1234.56", "0.125", "10"
	plainDecimal = regexp.MustCompile(`^\d+(\.\d+)?$`)
)

// ParseBRL parses amounts in Brazilian ("R$ 1.234,56") or plain ("1234.56")
// notation. Dots in a dot-grouped integer ("1.234") are thousands separators.
// Mixed separators ("1,234.56"), exponents and stray characters are rejected.
func ParseBRL(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	negative := strings.HasPrefix(s, "-")
	s = strings.TrimSpace(strings.TrimPrefix(s, "-"))
	s = strings.TrimSpace(strings.TrimPrefix(s, "R$"))
	if !negative && strings.HasPrefix(s, "-") {
		negative = true
		s = strings.TrimSpace(strings.TrimPrefix(s, "-"))
	}
	if s == "" {
		return decimal.Zero, fmt.Errorf("money: empty amount: %w", shared.ErrInvalidArgument)
	}

	switch {
	case brazilianDecimal.MatchString(s):
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case groupedInteger.MatchString(s):
		s = strings.ReplaceAll(s, ".", "")
	case plainDecimal.MatchString(s):
	default:
		return decimal.Zero, fmt.Errorf("money: parse %q: %w", raw, shared.ErrInvalidArgument)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("money: parse %q: %w", raw, shared.ErrInvalidArgument)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

var brPrinter = message.NewPrinter(language.BrazilianPortuguese)

// FormatBRL renders a rounded amount with pt-BR grouping, e.g. "R$ 1.717,13".
// Output is for display only; never parse it back into a calculation.
func FormatBRL(d decimal.Decimal) string {
	rounded := Round(d)
	sign := ""
	if rounded.IsNegative() {
		sign = "-"
		rounded = rounded.Neg()
	}
	units := rounded.Truncate(0)
	cents := rounded.Sub(units).Shift(Scale).IntPart()
	return fmt.Sprintf("%sR$ %s,%02d", sign, brPrinter.Sprint(number.Decimal(units.IntPart())), cents)
}
