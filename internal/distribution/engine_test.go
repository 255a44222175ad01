package distribution

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluga-erp/aluga/internal/ownership"
	"github.com/aluga-erp/aluga/internal/shared"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func landlord(id int64, share string, primary bool, channel string) ownership.Participant {
	return ownership.Participant{
		ID:            id,
		Name:          fmt.Sprintf("Locador %d", id),
		SharePercent:  dec(share),
		IsPrimary:     primary,
		PayoutChannel: channel,
	}
}

func TestDistributeThreeWaySplit(t *testing.T) {
	engine := NewEngine(FeePolicy{})
	plan, err := engine.Distribute(1, dec("1000.00"), []ownership.Participant{
		landlord(1, "33.34", true, "pix:a"),
		landlord(2, "33.33", false, "pix:b"),
		landlord(3, "33.33", false, "pix:c"),
	})
	require.NoError(t, err)
	require.Len(t, plan.Rows, 3)
	require.Equal(t, "333.4", plan.Rows[0].Payout.String())
	require.Equal(t, "333.3", plan.Rows[1].Payout.String())
	require.Equal(t, "333.3", plan.Rows[2].Payout.String())
	require.True(t, plan.TotalPayout.Equal(dec("1000.00")))
	require.Equal(t, int64(3), plan.RemainderRecipientID)
	require.True(t, plan.Rows[2].AbsorbsRemainder)
	require.True(t, plan.Remainder.IsZero())
	require.Equal(t, ResidualPolicy, plan.Policy)
}

func TestDistributeRemainderGoesToLastNotPrimary(t *testing.T) {
	engine := NewEngine(FeePolicy{})
	plan, err := engine.Distribute(1, dec("0.10"), []ownership.Participant{
		landlord(1, "33.33", false, ""),
		landlord(2, "33.33", false, ""),
		landlord(3, "33.34", true, ""),
	})
	require.NoError(t, err)
	require.Equal(t, "0.03", plan.Rows[0].GrossShare.StringFixed(2))
	require.Equal(t, "0.03", plan.Rows[1].GrossShare.StringFixed(2))
	require.Equal(t, "0.04", plan.Rows[2].GrossShare.StringFixed(2))
	require.True(t, plan.Remainder.Equal(dec("0.01")))

	plan, err = engine.Distribute(1, dec("0.10"), []ownership.Participant{
		landlord(3, "33.34", true, ""),
		landlord(1, "33.33", false, ""),
		landlord(2, "33.33", false, ""),
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), plan.RemainderRecipientID)
	require.Equal(t, "0.03", plan.Rows[0].GrossShare.StringFixed(2))
	require.Equal(t, "0.04", plan.Rows[2].GrossShare.StringFixed(2))
}

func TestDistributeSumIsExact(t *testing.T) {
	nets := []string{"0.01", "0.10", "1.00", "99.99", "1717.13", "3280.76", "123456.78"}
	splits := [][]string{
		{"100"},
		{"50", "50"},
		{"33.34", "33.33", "33.33"},
		{"33.33", "33.33", "33.33"},
		{"12.5", "87.5"},
		{"14.29", "14.29", "14.29", "14.29", "14.28", "14.28", "14.28"},
		{"0.01", "99.99"},
	}
	engine := NewEngine(FeePolicy{TransferFee: dec("3.50")})
	for _, net := range nets {
		for _, split := range splits {
			participants := make([]ownership.Participant, len(split))
			for i, share := range split {
				participants[i] = landlord(int64(i+1), share, i == 0, fmt.Sprintf("pix:%d", i))
			}
			plan, err := engine.Distribute(9, dec(net), participants)
			require.NoError(t, err)

			gross := decimal.Zero
			payout := decimal.Zero
			for _, row := range plan.Rows {
				gross = gross.Add(row.GrossShare)
				payout = payout.Add(row.Payout)
				assert.False(t, row.Payout.IsNegative(), "net %s split %v", net, split)
			}
			assert.True(t, gross.Equal(dec(net)), "net %s split %v gross %s", net, split, gross)
			assert.True(t, payout.Equal(dec(net).Sub(plan.TotalTransferFees)), "net %s split %v", net, split)
			assert.True(t, payout.Equal(plan.TotalPayout))
		}
	}
}

func TestDistributeIsDeterministic(t *testing.T) {
	engine := NewEngine(FeePolicy{TransferFee: dec("5")})
	participants := []ownership.Participant{
		landlord(1, "60", true, "pix:a"),
		landlord(2, "40", false, "pix:b"),
	}
	first, err := engine.Distribute(1, dec("1717.13"), participants)
	require.NoError(t, err)
	second, err := engine.Distribute(1, dec("1717.13"), participants)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestTransferFeeChargedPerExtraDestination(t *testing.T) {
	engine := NewEngine(FeePolicy{TransferFee: dec("5.00")})
	plan, err := engine.Distribute(1, dec("1000.00"), []ownership.Participant{
		landlord(1, "25", false, "pix:shared"),
		landlord(2, "25", true, "pix:primary"),
		landlord(3, "25", false, "PIX:Shared "),
		landlord(4, "25", false, "ted:001/1234/5678-9"),
	})
	require.NoError(t, err)

	require.True(t, plan.Rows[0].TransferFee.Equal(dec("5.00")))
	require.True(t, plan.Rows[1].TransferFee.IsZero())
	require.True(t, plan.Rows[2].TransferFee.IsZero())
	require.True(t, plan.Rows[3].TransferFee.Equal(dec("5.00")))
	require.True(t, plan.TotalTransferFees.Equal(dec("10.00")))

	require.True(t, plan.Rows[0].Payout.Equal(dec("245.00")))
	require.True(t, plan.Rows[1].Payout.Equal(dec("250.00")))
	require.True(t, plan.Rows[2].Payout.Equal(dec("250.00")))
	require.True(t, plan.TotalPayout.Equal(dec("990.00")))
}

func TestTransferFeeSharedWithPrimaryDestinationIsFree(t *testing.T) {
	engine := NewEngine(FeePolicy{TransferFee: dec("5.00")})
	plan, err := engine.Distribute(1, dec("500.00"), []ownership.Participant{
		landlord(1, "50", true, "pix:familia"),
		landlord(2, "50", false, "pix:familia"),
	})
	require.NoError(t, err)
	require.True(t, plan.TotalTransferFees.IsZero())
	require.True(t, plan.TotalPayout.Equal(dec("500.00")))
}

func TestTransferFeeWithoutChannelCountsAsDistinct(t *testing.T) {
	engine := NewEngine(FeePolicy{TransferFee: dec("2.00")})
	plan, err := engine.Distribute(1, dec("300.00"), []ownership.Participant{
		landlord(1, "34", true, ""),
		landlord(2, "33", false, ""),
		landlord(3, "33", false, ""),
	})
	require.NoError(t, err)
	require.True(t, plan.Rows[0].TransferFee.IsZero())
	require.True(t, plan.Rows[1].TransferFee.Equal(dec("2.00")))
	require.True(t, plan.Rows[2].TransferFee.Equal(dec("2.00")))
}

func TestDistributeNegativeNet(t *testing.T) {
	engine := NewEngine(FeePolicy{TransferFee: dec("5.00")})
	plan, err := engine.Distribute(1, dec("-120.50"), []ownership.Participant{
		landlord(1, "50", true, "pix:a"),
		landlord(2, "50", false, "pix:b"),
	})
	require.NoError(t, err)
	require.True(t, plan.Rows[0].GrossShare.Equal(dec("-60.25")))
	require.True(t, plan.Rows[1].GrossShare.Equal(dec("-60.25")))
	require.True(t, plan.TotalTransferFees.IsZero())
	require.True(t, plan.TotalPayout.Equal(dec("-120.50")))
}

func TestTransferFeeCappedAtGrossShare(t *testing.T) {
	engine := NewEngine(FeePolicy{TransferFee: dec("5.00")})
	plan, err := engine.Distribute(1, dec("10.00"), []ownership.Participant{
		landlord(1, "70", true, "pix:a"),
		landlord(2, "30", false, "pix:b"),
	})
	require.NoError(t, err)
	require.True(t, plan.Rows[1].TransferFee.Equal(dec("3.00")))
	require.True(t, plan.Rows[1].Payout.IsZero())
}

func TestDistributeWithoutLandlords(t *testing.T) {
	_, err := NewEngine(FeePolicy{}).Distribute(42, dec("100"), nil)
	var npErr *ownership.NoParticipantsError
	require.True(t, errors.As(err, &npErr))
	require.Equal(t, int64(42), npErr.ContractID)
	require.Equal(t, ownership.RoleLandlord, npErr.Role)
}

func TestDistributeRejectsInvalidInput(t *testing.T) {
	_, err := NewEngine(FeePolicy{}).Distribute(1, dec("100"), []ownership.Participant{landlord(1, "0", true, "")})
	require.True(t, errors.Is(err, shared.ErrInvalidArgument))

	_, err = NewEngine(FeePolicy{TransferFee: dec("-1")}).Distribute(1, dec("100"), []ownership.Participant{landlord(1, "100", true, "")})
	require.True(t, errors.Is(err, shared.ErrInvalidArgument))
}
