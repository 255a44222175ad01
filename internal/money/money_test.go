package money

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/aluga-erp/aluga/internal/shared"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestRoundHalfUp(t *testing.T) {
	cases := map[string]string{
		"0.005":    "0.01",
		"0.004":    "0",
		"6.2597":   "6.26",
		"37.5582":  "37.56",
		"1.125":    "1.13",
		"-0.005":   "-0.01",
		"1717.130": "1717.13",
	}
	for in, want := range cases {
		got := Round(d(in))
		require.Truef(t, got.Equal(d(want)), "Round(%s) = %s, want %s", in, got, want)
	}
}

func TestSumKeepsSubCentPrecision(t *testing.T) {
	// three thirds of a cent would vanish if each term were rounded first
	third := d("0.003333333")
	got := Sum(third, third, third, d("0.001"))
	require.True(t, got.Equal(d("0.010999999")))
	require.True(t, Round(got).Equal(d("0.01")))
}

func TestPercent(t *testing.T) {
	require.True(t, Percent(d("1000"), d("33.34")).Equal(d("333.4")))
	require.True(t, Percent(d("1877.91"), d("0.5")).Equal(d("9.38955")))
}

func TestWithinTolerance(t *testing.T) {
	require.True(t, WithinTolerance(d("99.99"), Hundred, ShareTolerance))
	require.True(t, WithinTolerance(d("100.01"), Hundred, ShareTolerance))
	require.False(t, WithinTolerance(d("99.98"), Hundred, ShareTolerance))
}

func TestParseBRL(t *testing.T) {
	valid := map[string]string{
		"R$ 1.234,56":  "1234.56",
		"1877.91":      "1877.91",
		" 0,45 ":       "0.45",
		"R$ 1.234":     "1234",
		"1.234":        "1234",
		"12.345.678":   "12345678",
		"1234,5":       "1234.5",
		"0.125":        "0.125",
		"10":           "10",
		"-0,52":        "-0.52",
		"-R$ 1.234,56": "-1234.56",
		"R$ -10,00":    "-10",
	}
	for in, want := range valid {
		got, err := ParseBRL(in)
		require.NoError(t, err, in)
		require.Truef(t, got.Equal(d(want)), "ParseBRL(%q) = %s, want %s", in, got, want)
	}

	for _, in := range []string{
		"abc",
		"  ",
		"1,234.56",
		"1.234,56.7",
		"1,2,3",
		"1e3",
		"1.5E2",
		"12.34.56",
		".5",
		"1.",
		"R$",
		"--1",
		"1 234",
	} {
		_, err := ParseBRL(in)
		require.Truef(t, errors.Is(err, shared.ErrInvalidArgument), "ParseBRL(%q) err = %v", in, err)
	}
}

func TestFormatBRL(t *testing.T) {
	require.Equal(t, "R$ 43,82", FormatBRL(d("43.8199")))
	require.Equal(t, "-R$ 0,50", FormatBRL(d("-0.5")))
	require.Equal(t, "R$ 0,00", FormatBRL(decimal.Zero))
}
