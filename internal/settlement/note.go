package settlement

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aluga-erp/aluga/internal/money"
)

// Note actions.
const (
	ActionRecalculate = "RECALCULATE"
	ActionPayment     = "PAYMENT"
	ActionCancel      = "CANCEL"
)

// Change is one field whose value moved.
type Change struct {
	Field    string          `json:"field"`
	Previous decimal.Decimal `json:"previous"`
	Current  decimal.Decimal `json:"current"`
}

// AuditNote is the structured previous-versus-new record appended to the
// contract history.
type AuditNote struct {
	ContractID     int64     `json:"contract_id"`
	Period         Period    `json:"period"`
	Action         string    `json:"action"`
	ActorID        int64     `json:"actor_id,omitempty"`
	PreviousStatus Status    `json:"previous_status,omitempty"`
	Status         Status    `json:"status"`
	Changes        []Change  `json:"changes,omitempty"`
	Summary        string    `json:"summary"`
	Reason         string    `json:"reason,omitempty"`
	At             time.Time `json:"at"`
}

// Diff compares the stored settlement, which may be nil, with the freshly
// computed one.
func Diff(previous *Settlement, current Settlement) AuditNote {
	note := AuditNote{
		ContractID: current.ContractID,
		Period:     current.Period,
		Action:     ActionRecalculate,
		Status:     current.Status,
		At:         current.ComputedAt,
	}
	var before Settlement
	if previous != nil {
		before = *previous
		note.PreviousStatus = previous.Status
	}

	addChange := func(field string, prev, cur decimal.Decimal) {
		if prev.Equal(cur) {
			return
		}
		note.Changes = append(note.Changes, Change{Field: field, Previous: prev, Current: cur})
	}
	addChange("gross_charged", before.GrossCharged, current.GrossCharged)
	addChange("total_retained", before.TotalRetained, current.TotalRetained)
	addChange("net", before.Net, current.Net)

	previousFinals := make(map[string]decimal.Decimal, len(before.Components))
	for i, c := range before.Components {
		previousFinals[componentKey(c, i)] = c.Final
	}
	seen := make(map[string]bool, len(current.Components))
	for i, c := range current.Components {
		key := componentKey(c, i)
		seen[key] = true
		addChange(key+".final", previousFinals[key], c.Final)
	}
	// Removed components move to zero, in their previous order.
	for i, c := range before.Components {
		if key := componentKey(c, i); !seen[key] {
			addChange(key+".final", c.Final, decimal.Zero)
		}
	}

	note.Summary = summarize(before, current, previous == nil)
	return note
}

// StatusNote records a status change without value changes.
func StatusNote(s Settlement, to Status, actorID int64, reason string, at time.Time) AuditNote {
	action := ActionPayment
	if to == StatusCancelled {
		action = ActionCancel
	}
	return AuditNote{
		ContractID:     s.ContractID,
		Period:         s.Period,
		Action:         action,
		ActorID:        actorID,
		PreviousStatus: s.Status,
		Status:         to,
		Summary:        fmt.Sprintf("%s -> %s, net %s", s.Status, to, money.FormatBRL(s.Net)),
		Reason:         reason,
		At:             at,
	}
}

func componentKey(c ChargeComponent, position int) string {
	if c.ID != 0 {
		return fmt.Sprintf("component:%d", c.ID)
	}
	return fmt.Sprintf("component:%s#%d", strings.ToLower(string(c.Kind)), position)
}

func summarize(before, current Settlement, created bool) string {
	if created {
		return fmt.Sprintf("created %s: gross %s, retained %s, net %s",
			current.Status,
			money.FormatBRL(current.GrossCharged),
			money.FormatBRL(current.TotalRetained),
			money.FormatBRL(current.Net))
	}
	return fmt.Sprintf("%s -> %s: net %s -> %s",
		before.Status, current.Status,
		money.FormatBRL(before.Net), money.FormatBRL(current.Net))
}
