package accrual

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/aluga-erp/aluga/internal/money"
	"github.com/aluga-erp/aluga/internal/shared"
)

// interestDays is the proration basis for the monthly interest rate.
var interestDays = decimal.NewFromInt(30)

// Breakdown is the late-payment accrual on one charge component.
type Breakdown struct {
	Interest   decimal.Decimal `json:"interest"`
	Penalty    decimal.Decimal `json:"penalty"`
	Correction decimal.Decimal `json:"correction"`
	Total      decimal.Decimal `json:"total"`
}

// IsZero reports whether nothing accrued.
func (b Breakdown) IsZero() bool {
	return b.Interest.IsZero() && b.Penalty.IsZero() && b.Correction.IsZero()
}

// Normalize rounds every term and re-derives Total as the sum of the rounded terms.
func Normalize(b Breakdown) Breakdown {
	out := Breakdown{
		Interest:   money.Round(b.Interest),
		Penalty:    money.Round(b.Penalty),
		Correction: money.Round(b.Correction),
	}
	out.Total = money.Sum(out.Interest, out.Penalty, out.Correction)
	return out
}

// Policy holds the accrual rates; it is injected so recomputation is reproducible.
type Policy struct {
	// MonthlyInterestRate is prorated daily over 30 days (0.01 = 1% per 30 days).
	MonthlyInterestRate decimal.Decimal
	// PenaltyRate is applied once, independent of days overdue (0.02 = 2%).
	PenaltyRate decimal.Decimal
}

// DefaultPolicy returns 1% per 30 days of simple interest and a 2% flat penalty.
func DefaultPolicy() Policy {
	return Policy{
		MonthlyInterestRate: decimal.RequireFromString("0.01"),
		PenaltyRate:         decimal.RequireFromString("0.02"),
	}
}

// Validate rejects negative rates.
func (p Policy) Validate() error {
	if p.MonthlyInterestRate.IsNegative() || p.PenaltyRate.IsNegative() {
		return fmt.Errorf("accrual: negative rate in policy: %w", shared.ErrInvalidArgument)
	}
	return nil
}

// Calculator computes interest, penalty and index correction for overdue amounts.
type Calculator struct {
	policy Policy
}

// NewCalculator constructs a calculator for the supplied policy.
func NewCalculator(policy Policy) *Calculator {
	return &Calculator{policy: policy}
}

// Policy exposes the configured rates.
func (c *Calculator) Policy() Policy {
	return c.policy
}

// Calculate returns the accrual breakdown. Each term is rounded on its own and
// Total is the sum of the rounded terms.
func (c *Calculator) Calculate(original decimal.Decimal, daysOverdue int, indexPercent decimal.Decimal) (Breakdown, error) {
	if original.IsNegative() {
		return Breakdown{}, fmt.Errorf("accrual: negative original amount %s: %w", original, shared.ErrInvalidArgument)
	}
	zero := Breakdown{Interest: decimal.Zero, Penalty: decimal.Zero, Correction: decimal.Zero, Total: decimal.Zero}
	if daysOverdue <= 0 {
		return zero, nil
	}

	interest := original.
		Mul(c.policy.MonthlyInterestRate).
		Mul(decimal.NewFromInt(int64(daysOverdue))).
		Div(interestDays)
	penalty := original.Mul(c.policy.PenaltyRate)
	correction := decimal.Zero
	if indexPercent.IsPositive() {
		correction = money.Percent(original, indexPercent)
	}

	return Normalize(Breakdown{
		Interest:   interest,
		Penalty:    penalty,
		Correction: correction,
	}), nil
}
