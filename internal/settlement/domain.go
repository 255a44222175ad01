package settlement

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aluga-erp/aluga/internal/accrual"
	"github.com/aluga-erp/aluga/internal/distribution"
	"github.com/aluga-erp/aluga/internal/shared"
)

// ComponentKind classifies a charge line.
type ComponentKind string

const (
	KindRent             ComponentKind = "RENT"
	KindPropertyTax      ComponentKind = "PROPERTY_TAX"
	KindCondoFee         ComponentKind = "CONDO_FEE"
	KindFireInsurance    ComponentKind = "FIRE_INSURANCE"
	KindSuretyInsurance  ComponentKind = "SURETY_INSURANCE"
	KindConservationFund ComponentKind = "CONSERVATION_FUND"
	KindOther            ComponentKind = "OTHER"

	KindReimbursement ComponentKind = "REIMBURSEMENT"
	KindDiscount      ComponentKind = "DISCOUNT"
	KindBonus         ComponentKind = "BONUS"
)

// Subtractive reports whether lines of this kind reduce the gross total.
func (k ComponentKind) Subtractive() bool {
	switch k {
	case KindReimbursement, KindDiscount, KindBonus:
		return true
	default:
		return false
	}
}

// Valid reports whether k is a known kind.
func (k ComponentKind) Valid() bool {
	switch k {
	case KindRent, KindPropertyTax, KindCondoFee, KindFireInsurance, KindSuretyInsurance,
		KindConservationFund, KindOther, KindReimbursement, KindDiscount, KindBonus:
		return true
	default:
		return false
	}
}

// RetainedKind classifies amounts withheld from the landlord.
type RetainedKind string

const (
	RetainedAdministrationFee RetainedKind = "ADMINISTRATION_FEE"
	RetainedBoletoFee         RetainedKind = "BOLETO_FEE"
	RetainedBankTransferFee   RetainedKind = "BANK_TRANSFER_FEE"
	RetainedPassThrough       RetainedKind = "PASS_THROUGH"
	RetainedOther             RetainedKind = "OTHER"
)

// ChargeComponent is one billable line of a settlement.
type ChargeComponent struct {
	ID              int64             `json:"id"`
	Kind            ComponentKind     `json:"kind"`
	Description     string            `json:"description"`
	Original        decimal.Decimal   `json:"original"`
	AccrualEligible bool              `json:"accrual_eligible"`
	PassThrough     bool              `json:"pass_through"`
	Accrual         accrual.Breakdown `json:"accrual"`
	Final           decimal.Decimal   `json:"final"`
	// ManualAccrual replaces the computed accrual when set.
	ManualAccrual *accrual.Breakdown `json:"manual_accrual,omitempty"`
}

// RetainedItem is an amount withheld for a service provider or as commission.
type RetainedItem struct {
	Kind        RetainedKind    `json:"kind"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	// ComponentID links synthesized pass-through items to their component.
	ComponentID int64 `json:"component_id,omitempty"`
}

// Period is a billing month.
type Period struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

// Validate checks the month range.
func (p Period) Validate() error {
	if p.Month < 1 || p.Month > 12 {
		return fmt.Errorf("settlement: month %d out of range: %w", p.Month, shared.ErrInvalidArgument)
	}
	if p.Year < 1900 || p.Year > 9999 {
		return fmt.Errorf("settlement: year %d out of range: %w", p.Year, shared.ErrInvalidArgument)
	}
	return nil
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// DueDate returns dueDay of the period, clamped to the last day of the month.
func (p Period) DueDate(dueDay int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	last := time.Date(p.Year, time.Month(p.Month)+1, 0, 0, 0, 0, 0, loc).Day()
	if dueDay < 1 {
		dueDay = 1
	}
	if dueDay > last {
		dueDay = last
	}
	return time.Date(p.Year, time.Month(p.Month), dueDay, 0, 0, 0, 0, loc)
}

// Status is the settlement lifecycle stage.
type Status string

const (
	StatusPending      Status = "PENDING"
	StatusRecalculated Status = "RECALCULATED"
	StatusPaid         Status = "PAID"
	StatusCancelled    Status = "CANCELLED"
)

// Terminal reports whether no further recomputation is allowed.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusCancelled
}

// Contract carries the contract attributes the engine needs.
type Contract struct {
	ID         int64      `json:"id"`
	PropertyID int64      `json:"property_id"`
	StartDate  time.Time  `json:"start_date"`
	EndDate    *time.Time `json:"end_date,omitempty"`
	DueDay     int        `json:"due_day"`
	IndexName  string     `json:"index_name,omitempty"`
	Active     bool       `json:"active"`
}

// Covers reports whether the contract is in force during the period.
func (c Contract) Covers(p Period) bool {
	first := time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	if !c.StartDate.IsZero() && dateOnly(c.StartDate).After(last) {
		return false
	}
	if c.EndDate != nil && dateOnly(*c.EndDate).Before(first) {
		return false
	}
	return true
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Settlement is the monthly statement of one contract.
type Settlement struct {
	ID            int64             `json:"id"`
	ContractID    int64             `json:"contract_id"`
	Period        Period            `json:"period"`
	Components    []ChargeComponent `json:"components"`
	Retained      []RetainedItem    `json:"retained"`
	GrossCharged  decimal.Decimal   `json:"gross_charged"`
	TotalRetained decimal.Decimal   `json:"total_retained"`
	Net           decimal.Decimal   `json:"net"`
	DueDate       time.Time         `json:"due_date"`
	DaysOverdue   int               `json:"days_overdue"`
	IndexPercent  decimal.Decimal   `json:"index_percent"`
	NegativeNet   bool              `json:"negative_net"`
	Status        Status            `json:"status"`
	Active        bool              `json:"active"`
	PaidAt        *time.Time        `json:"paid_at,omitempty"`
	CancelledAt   *time.Time        `json:"cancelled_at,omitempty"`
	ComputedAt    time.Time         `json:"computed_at"`
}

// Distribution is a persisted payout row.
type Distribution struct {
	SettlementID int64 `json:"settlement_id"`
	distribution.Row
}

// LockedError is returned when a terminal settlement would be recomputed.
type LockedError struct {
	ContractID int64
	Period     Period
	Status     Status
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("settlement: contract %d period %s is %s", e.ContractID, e.Period, e.Status)
}

func (e *LockedError) Unwrap() error { return shared.ErrSettlementLocked }

// ErrInvalidTransition indicates an unsupported status change.
var ErrInvalidTransition = fmt.Errorf("settlement: invalid status transition: %w", shared.ErrSettlementLocked)

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to Status) bool {
	switch from {
	case "":
		return to == StatusPending || to == StatusRecalculated
	case StatusPending:
		return to == StatusRecalculated || to == StatusPaid || to == StatusCancelled
	case StatusRecalculated:
		return to == StatusRecalculated || to == StatusPaid || to == StatusCancelled
	default:
		return false
	}
}
