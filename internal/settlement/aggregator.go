package settlement

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aluga-erp/aluga/internal/accrual"
	"github.com/aluga-erp/aluga/internal/money"
	"github.com/aluga-erp/aluga/internal/shared"
)

// BuildInput is everything Build needs; nothing is read from ambient state.
type BuildInput struct {
	ContractID   int64
	Period       Period
	Components   []ChargeComponent
	Retained     []RetainedItem
	DueDate      time.Time
	Today        time.Time
	IndexPercent decimal.Decimal
	// Previous is the stored settlement, nil when none exists yet.
	Previous *Settlement
	// ActorID is carried into the history note.
	ActorID int64
}

// Aggregator turns charge lines into gross, retained and net figures.
type Aggregator struct {
	calc *accrual.Calculator
}

// NewAggregator constructs an aggregator using calc for late accrual.
func NewAggregator(calc *accrual.Calculator) *Aggregator {
	return &Aggregator{calc: calc}
}

// Build computes the settlement. Inputs are not modified and identical inputs
// yield identical output.
func (a *Aggregator) Build(in BuildInput) (Settlement, error) {
	if in.Previous != nil && in.Previous.Status.Terminal() {
		return Settlement{}, &LockedError{ContractID: in.ContractID, Period: in.Period, Status: in.Previous.Status}
	}
	if in.ContractID <= 0 {
		return Settlement{}, fmt.Errorf("settlement: contract id required: %w", shared.ErrInvalidArgument)
	}
	if err := in.Period.Validate(); err != nil {
		return Settlement{}, err
	}
	if a == nil || a.calc == nil {
		return Settlement{}, fmt.Errorf("settlement: aggregator not configured")
	}

	additive, subtractive, err := partition(in.Components)
	if err != nil {
		return Settlement{}, err
	}

	days := accrual.DaysOverdue(in.DueDate, in.Today)
	index := in.IndexPercent
	accrued := false
	for i := range additive {
		c := &additive[i]
		switch {
		case c.ManualAccrual != nil:
			c.Accrual = accrual.Normalize(*c.ManualAccrual)
			manual := c.Accrual
			c.ManualAccrual = &manual
		case c.AccrualEligible:
			b, err := a.calc.Calculate(c.Original, days, index)
			if err != nil {
				return Settlement{}, fmt.Errorf("settlement: component %q: %w", c.Description, err)
			}
			c.Accrual = b
		default:
			c.Accrual = zeroBreakdown()
		}
		c.Final = money.Round(c.Original.Add(c.Accrual.Total))
		if !c.Accrual.IsZero() {
			accrued = true
		}
	}
	for i := range subtractive {
		c := &subtractive[i]
		c.Accrual = zeroBreakdown()
		c.Final = money.Round(c.Original)
	}

	gross := decimal.Zero
	for _, c := range additive {
		gross = gross.Add(c.Final)
	}
	for _, c := range subtractive {
		gross = gross.Add(c.Final)
	}
	gross = money.Round(gross)

	retained, err := retainedItems(in.Retained, additive)
	if err != nil {
		return Settlement{}, err
	}
	totalRetained := decimal.Zero
	for _, r := range retained {
		totalRetained = totalRetained.Add(r.Amount)
	}
	totalRetained = money.Round(totalRetained)

	net := gross.Sub(totalRetained)

	out := Settlement{
		ContractID:    in.ContractID,
		Period:        in.Period,
		Components:    append(additive, subtractive...),
		Retained:      retained,
		GrossCharged:  gross,
		TotalRetained: totalRetained,
		Net:           net,
		DueDate:       in.DueDate,
		DaysOverdue:   days,
		IndexPercent:  index,
		NegativeNet:   net.IsNegative(),
		Status:        nextStatus(in.Previous, accrued),
		Active:        true,
		ComputedAt:    in.Today,
	}
	if in.Previous != nil {
		out.ID = in.Previous.ID
	}
	return out, nil
}

func nextStatus(previous *Settlement, accrued bool) Status {
	if previous != nil || accrued {
		return StatusRecalculated
	}
	return StatusPending
}

// partition copies components into additive and subtractive lists, each in
// input order, rejecting lines that break the sign convention.
func partition(components []ChargeComponent) ([]ChargeComponent, []ChargeComponent, error) {
	var additive, subtractive []ChargeComponent
	for _, c := range components {
		if !c.Kind.Valid() {
			return nil, nil, fmt.Errorf("settlement: unknown component kind %q: %w", c.Kind, shared.ErrInvalidArgument)
		}
		if c.Kind.Subtractive() {
			if !c.Original.IsNegative() {
				return nil, nil, fmt.Errorf("settlement: %s %q must be negative, got %s: %w",
					c.Kind, c.Description, c.Original, shared.ErrInvalidArgument)
			}
			if c.AccrualEligible || c.ManualAccrual != nil || c.PassThrough {
				return nil, nil, fmt.Errorf("settlement: %s %q cannot accrue or pass through: %w",
					c.Kind, c.Description, shared.ErrInvalidArgument)
			}
			subtractive = append(subtractive, c)
			continue
		}
		if c.Original.IsNegative() {
			return nil, nil, fmt.Errorf("settlement: %s %q must not be negative, got %s: %w",
				c.Kind, c.Description, c.Original, shared.ErrInvalidArgument)
		}
		if m := c.ManualAccrual; m != nil && (m.Interest.IsNegative() || m.Penalty.IsNegative() || m.Correction.IsNegative()) {
			return nil, nil, fmt.Errorf("settlement: %s %q manual accrual terms must not be negative: %w",
				c.Kind, c.Description, shared.ErrInvalidArgument)
		}
		additive = append(additive, c)
	}
	return additive, subtractive, nil
}

// retainedItems returns the supplied items followed by one item per
// pass-through component.
func retainedItems(supplied []RetainedItem, additive []ChargeComponent) ([]RetainedItem, error) {
	out := make([]RetainedItem, 0, len(supplied)+len(additive))
	for _, r := range supplied {
		if r.Amount.IsNegative() {
			return nil, fmt.Errorf("settlement: retained %s %q must not be negative: %w",
				r.Kind, r.Description, shared.ErrInvalidArgument)
		}
		r.Amount = money.Round(r.Amount)
		out = append(out, r)
	}
	for _, c := range additive {
		if !c.PassThrough {
			continue
		}
		out = append(out, RetainedItem{
			Kind:        RetainedPassThrough,
			Description: strings.TrimSpace("repasse " + c.Description),
			Amount:      c.Final,
			ComponentID: c.ID,
		})
	}
	return out, nil
}

func zeroBreakdown() accrual.Breakdown {
	return accrual.Breakdown{
		Interest:   decimal.Zero,
		Penalty:    decimal.Zero,
		Correction: decimal.Zero,
		Total:      decimal.Zero,
	}
}
