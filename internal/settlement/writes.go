package settlement

import (
	"time"

	"github.com/aluga-erp/aluga/internal/distribution"
)

// WriteOp names a persistence side effect.
type WriteOp string

const (
	OpUpsertSettlement     WriteOp = "UPSERT_SETTLEMENT"
	OpReplaceComponents    WriteOp = "REPLACE_COMPONENTS"
	OpReplaceRetained      WriteOp = "REPLACE_RETAINED"
	OpReplaceDistributions WriteOp = "REPLACE_DISTRIBUTIONS"
	OpAppendHistory        WriteOp = "APPEND_HISTORY"
	OpMarkStatus           WriteOp = "MARK_STATUS"
)

// Write is one instruction for the persistence layer. Only the fields relevant
// to Op are set. Writes are applied in order; an UPSERT_SETTLEMENT must come
// first so later writes can reference the settlement row.
type Write struct {
	Op            WriteOp
	ContractID    int64
	Period        Period
	Settlement    *Settlement
	Components    []ChargeComponent
	Retained      []RetainedItem
	Distributions []distribution.Row
	Note          *AuditNote
	Status        Status
	At            time.Time
}

// computeWrites lists the writes that persist a recomputed settlement.
func computeWrites(s Settlement, plan distribution.Plan, note AuditNote) []Write {
	base := Write{ContractID: s.ContractID, Period: s.Period}
	settlement := s

	upsert := base
	upsert.Op = OpUpsertSettlement
	upsert.Settlement = &settlement

	components := base
	components.Op = OpReplaceComponents
	components.Components = s.Components

	retained := base
	retained.Op = OpReplaceRetained
	retained.Retained = s.Retained

	distributions := base
	distributions.Op = OpReplaceDistributions
	distributions.Distributions = plan.Rows

	history := base
	history.Op = OpAppendHistory
	history.Note = &note

	return []Write{upsert, components, retained, distributions, history}
}

// statusWrites lists the writes for a status change.
func statusWrites(s Settlement, note AuditNote) []Write {
	return []Write{
		{Op: OpMarkStatus, ContractID: s.ContractID, Period: s.Period, Status: note.Status, At: note.At},
		{Op: OpAppendHistory, ContractID: s.ContractID, Period: s.Period, Note: &note},
	}
}
