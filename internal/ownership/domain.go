package ownership

import "github.com/shopspring/decimal"

// Role distinguishes the two sides of a lease contract.
type Role string

const (
	RoleLandlord Role = "LANDLORD"
	RoleTenant   Role = "TENANT"
)

// Participant is a resolved landlord or tenant of a contract.
type Participant struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	SharePercent  decimal.Decimal `json:"share_percent"`
	IsPrimary     bool            `json:"is_primary"`
	PayoutChannel string          `json:"payout_channel,omitempty"`
}

// Share is a contract association row (contract_landlords / contract_tenants).
type Share struct {
	RowID         int64
	ContractID    int64
	PartyID       int64
	Name          string
	Percent       decimal.Decimal
	IsPrimary     bool
	Active        bool
	PayoutChannel string
}

// LegacyParty is the single-owner reference still held on property/contract rows.
type LegacyParty struct {
	PartyID       int64
	Name          string
	PayoutChannel string
}

// LegacyParties groups the legacy references of one contract. Nil means the
// column is NULL.
type LegacyParties struct {
	ContractID int64
	Landlord   *LegacyParty
	Tenant     *LegacyParty
}

func (l LegacyParties) forRole(role Role) *LegacyParty {
	if role == RoleTenant {
		return l.Tenant
	}
	return l.Landlord
}
