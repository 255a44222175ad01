package accrual

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/aluga-erp/aluga/internal/shared"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, got.Equal(dec(want)), "expected %s got %s", want, got)
}

func TestCalculateTenDaysLateRent(t *testing.T) {
	calc := NewCalculator(DefaultPolicy())
	b, err := calc.Calculate(dec("1877.91"), 10, decimal.Zero)
	require.NoError(t, err)
	requireDecimal(t, "6.26", b.Interest)
	requireDecimal(t, "37.56", b.Penalty)
	requireDecimal(t, "0", b.Correction)
	requireDecimal(t, "43.82", b.Total)
}

func TestCalculateNotOverdueIsZero(t *testing.T) {
	calc := NewCalculator(DefaultPolicy())
	for _, days := range []int{0, -1, -30} {
		b, err := calc.Calculate(dec("1500"), days, dec("1.5"))
		require.NoError(t, err)
		require.True(t, b.IsZero())
		require.True(t, b.Total.IsZero())
	}
}

func TestCalculateAppliesCorrection(t *testing.T) {
	calc := NewCalculator(DefaultPolicy())
	b, err := calc.Calculate(dec("1000"), 30, dec("0.45"))
	require.NoError(t, err)
	requireDecimal(t, "10", b.Interest)
	requireDecimal(t, "20", b.Penalty)
	requireDecimal(t, "4.5", b.Correction)
	requireDecimal(t, "34.5", b.Total)
}

func TestCalculateIgnoresNegativeIndex(t *testing.T) {
	calc := NewCalculator(DefaultPolicy())
	b, err := calc.Calculate(dec("1000"), 1, dec("-0.30"))
	require.NoError(t, err)
	require.True(t, b.Correction.IsZero())
}

func TestCalculateRoundsEachTermBeforeSumming(t *testing.T) {
	calc := NewCalculator(Policy{MonthlyInterestRate: dec("0.01"), PenaltyRate: dec("0.02")})
	// interest 0.0050 and penalty 0.0050 sum to 0.01 unrounded, 0.02 rounded per term
	b, err := calc.Calculate(dec("0.25"), 60, decimal.Zero)
	require.NoError(t, err)
	requireDecimal(t, "0.01", b.Interest)
	requireDecimal(t, "0.01", b.Penalty)
	requireDecimal(t, "0.02", b.Total)
}

func TestCalculateRejectsNegativeOriginal(t *testing.T) {
	calc := NewCalculator(DefaultPolicy())
	_, err := calc.Calculate(dec("-1"), 10, decimal.Zero)
	require.Error(t, err)
	require.True(t, errors.Is(err, shared.ErrInvalidArgument))
}

func TestPolicyValidate(t *testing.T) {
	require.NoError(t, DefaultPolicy().Validate())
	err := Policy{MonthlyInterestRate: dec("-0.01"), PenaltyRate: dec("0.02")}.Validate()
	require.True(t, errors.Is(err, shared.ErrInvalidArgument))
}

func TestNormalize(t *testing.T) {
	b := Normalize(Breakdown{Interest: dec("1.005"), Penalty: dec("2.004"), Correction: dec("0")})
	requireDecimal(t, "1.01", b.Interest)
	requireDecimal(t, "2", b.Penalty)
	requireDecimal(t, "3.01", b.Total)
}

func TestDaysOverdue(t *testing.T) {
	loc := time.FixedZone("BRT", -3*3600)
	due := time.Date(2024, 3, 10, 0, 0, 0, 0, loc)

	require.Equal(t, 0, DaysOverdue(due, time.Date(2024, 3, 9, 23, 0, 0, 0, loc)))
	require.Equal(t, 0, DaysOverdue(due, time.Date(2024, 3, 10, 18, 0, 0, 0, loc)))
	require.Equal(t, 10, DaysOverdue(due, time.Date(2024, 3, 20, 8, 0, 0, 0, loc)))
	// 2024-03-21 01:00 UTC is still 2024-03-20 in BRT
	require.Equal(t, 10, DaysOverdue(due, time.Date(2024, 3, 21, 1, 0, 0, 0, time.UTC)))
	require.Equal(t, 0, DaysOverdue(time.Time{}, time.Now()))
}
