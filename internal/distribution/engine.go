// Package distribution splits a settlement's net amount across the landlords
// of a contract and charges the per-destination transfer fee.
package distribution

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/aluga-erp/aluga/internal/money"
	"github.com/aluga-erp/aluga/internal/ownership"
	"github.com/aluga-erp/aluga/internal/shared"
)

// ResidualPolicy documents who absorbs the rounding remainder. It is stored with
// every plan so the tie-break can be audited later.
const ResidualPolicy = "rounding remainder assigned to the last landlord in resolution order; " +
	"transfer fee charged once per payout destination other than the primary landlord's"

// FeePolicy is the injected transfer-fee configuration.
type FeePolicy struct {
	TransferFee decimal.Decimal
}

// Validate rejects negative fees.
func (p FeePolicy) Validate() error {
	if p.TransferFee.IsNegative() {
		return fmt.Errorf("distribution: negative transfer fee: %w", shared.ErrInvalidArgument)
	}
	return nil
}

// Row is the payout of one landlord.
type Row struct {
	LandlordID       int64           `json:"landlord_id"`
	Name             string          `json:"name"`
	SharePercent     decimal.Decimal `json:"share_percent"`
	IsPrimary        bool            `json:"is_primary"`
	PayoutChannel    string          `json:"payout_channel,omitempty"`
	GrossShare       decimal.Decimal `json:"gross_share"`
	TransferFee      decimal.Decimal `json:"transfer_fee"`
	Payout           decimal.Decimal `json:"payout"`
	AbsorbsRemainder bool            `json:"absorbs_remainder"`
}

// Plan is the full split for one settlement. Gross shares add up to Net and
// payouts add up to Net minus TotalTransferFees.
type Plan struct {
	Net                  decimal.Decimal `json:"net"`
	Rows                 []Row           `json:"rows"`
	RemainderRecipientID int64           `json:"remainder_recipient_id"`
	Remainder            decimal.Decimal `json:"remainder"`
	TotalTransferFees    decimal.Decimal `json:"total_transfer_fees"`
	TotalPayout          decimal.Decimal `json:"total_payout"`
	Policy               string          `json:"policy"`
}

// Engine computes distribution plans.
type Engine struct {
	fees FeePolicy
}

// NewEngine constructs an engine with the supplied fee policy.
func NewEngine(fees FeePolicy) *Engine {
	return &Engine{fees: fees}
}

// FeePolicy exposes the configured fees.
func (e *Engine) FeePolicy() FeePolicy {
	return e.fees
}

// Distribute splits net across landlords, which must already be in resolution
// order. The last landlord receives net minus the other rounded shares.
func (e *Engine) Distribute(contractID int64, net decimal.Decimal, landlords []ownership.Participant) (Plan, error) {
	if len(landlords) == 0 {
		return Plan{}, &ownership.NoParticipantsError{ContractID: contractID, Role: ownership.RoleLandlord}
	}
	if err := e.fees.Validate(); err != nil {
		return Plan{}, err
	}
	for _, l := range landlords {
		if !l.SharePercent.IsPositive() {
			return Plan{}, fmt.Errorf("distribution: contract %d landlord %d share %s: %w",
				contractID, l.ID, l.SharePercent, shared.ErrInvalidArgument)
		}
	}

	net = money.Round(net)
	plan := Plan{
		Net:               net,
		Rows:              make([]Row, len(landlords)),
		TotalTransferFees: decimal.Zero,
		TotalPayout:       decimal.Zero,
		Policy:            ResidualPolicy,
	}

	allocated := decimal.Zero
	last := len(landlords) - 1
	for i, l := range landlords {
		row := Row{
			LandlordID:    l.ID,
			Name:          l.Name,
			SharePercent:  l.SharePercent,
			IsPrimary:     l.IsPrimary,
			PayoutChannel: l.PayoutChannel,
			TransferFee:   decimal.Zero,
		}
		proportional := money.Round(money.Percent(net, l.SharePercent))
		if i == last {
			row.GrossShare = net.Sub(allocated)
			row.AbsorbsRemainder = true
			plan.RemainderRecipientID = l.ID
			plan.Remainder = row.GrossShare.Sub(proportional)
		} else {
			row.GrossShare = proportional
			allocated = allocated.Add(proportional)
		}
		plan.Rows[i] = row
	}

	e.applyTransferFees(plan.Rows)

	for i := range plan.Rows {
		row := &plan.Rows[i]
		row.Payout = row.GrossShare.Sub(row.TransferFee)
		plan.TotalTransferFees = plan.TotalTransferFees.Add(row.TransferFee)
		plan.TotalPayout = plan.TotalPayout.Add(row.Payout)
	}
	return plan, nil
}

// applyTransferFees bills each distinct destination once, to the first landlord
// using it. The primary landlord's destination is free, and a landlord with
// nothing to receive is never billed. A fee never exceeds the gross share.
func (e *Engine) applyTransferFees(rows []Row) {
	if !e.fees.TransferFee.IsPositive() {
		return
	}
	free := freeDestination(rows)
	billed := make(map[string]struct{}, len(rows))
	for i := range rows {
		row := &rows[i]
		if !row.GrossShare.IsPositive() {
			continue
		}
		key := destinationKey(*row)
		if key == free {
			continue
		}
		if _, ok := billed[key]; ok {
			continue
		}
		billed[key] = struct{}{}
		row.TransferFee = decimal.Min(e.fees.TransferFee, row.GrossShare)
	}
}

func freeDestination(rows []Row) string {
	for _, row := range rows {
		if row.IsPrimary {
			return destinationKey(row)
		}
	}
	return destinationKey(rows[0])
}

// destinationKey normalises the channel reference. Landlords without one are
// each treated as a separate destination.
func destinationKey(row Row) string {
	channel := strings.ToLower(strings.TrimSpace(row.PayoutChannel))
	if channel == "" {
		return fmt.Sprintf("landlord:%d", row.LandlordID)
	}
	return channel
}
