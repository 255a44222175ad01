package audit

import (
	"time"

	"github.com/aluga-erp/aluga/internal/settlement"
	"github.com/aluga-erp/aluga/internal/shared"
)

// TimelineFilters narrows the settlement history of one contract.
type TimelineFilters struct {
	ContractID int64
	Action     string
	From       time.Time
	To         time.Time
	Page       int
	PageSize   int
}

// Query is the repository form of TimelineFilters. A zero Limit means all rows.
type Query struct {
	ContractID int64
	Action     string
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}

// Entry is one row of the settlement history.
type Entry struct {
	ID         int64                `json:"id"`
	ContractID int64                `json:"contract_id"`
	Period     settlement.Period    `json:"period"`
	Action     string               `json:"action"`
	ActorID    int64                `json:"actor_id,omitempty"`
	At         time.Time            `json:"at"`
	Note       settlement.AuditNote `json:"note"`
}

// Result wraps a timeline page.
type Result struct {
	Entries []Entry           `json:"entries"`
	Paging  shared.PagingInfo `json:"paging"`
}
