package settlement

import (
	"fmt"

	"github.com/aluga-erp/aluga/internal/distribution"
	"github.com/aluga-erp/aluga/internal/ownership"
)

// Result is the output of one computation: the settlement, its payout plan,
// the history note and the writes that persist them.
type Result struct {
	Settlement Settlement              `json:"settlement"`
	Plan       distribution.Plan       `json:"distribution"`
	Tenants    []ownership.Participant `json:"tenants,omitempty"`
	Note       AuditNote               `json:"note"`
	Writes     []Write                 `json:"-"`
}

// Engine chains aggregation and distribution. It performs no I/O.
type Engine struct {
	aggregator  *Aggregator
	distributor *distribution.Engine
}

// NewEngine constructs an engine.
func NewEngine(aggregator *Aggregator, distributor *distribution.Engine) *Engine {
	return &Engine{aggregator: aggregator, distributor: distributor}
}

// Compute builds the settlement for in and splits its net across landlords,
// which must come from the ownership resolver in resolution order.
func (e *Engine) Compute(in BuildInput, landlords []ownership.Participant) (Result, error) {
	if e == nil || e.aggregator == nil || e.distributor == nil {
		return Result{}, fmt.Errorf("settlement: engine not configured")
	}
	s, err := e.aggregator.Build(in)
	if err != nil {
		return Result{}, err
	}
	plan, err := e.distributor.Distribute(s.ContractID, s.Net, landlords)
	if err != nil {
		return Result{}, err
	}
	note := Diff(in.Previous, s)
	note.ActorID = in.ActorID
	return Result{
		Settlement: s,
		Plan:       plan,
		Note:       note,
		Writes:     computeWrites(s, plan, note),
	}, nil
}
