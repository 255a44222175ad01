package ownership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/aluga-erp/aluga/internal/money"
	"github.com/aluga-erp/aluga/internal/shared"
)

// AssociationSource loads active association rows for a contract.
type AssociationSource interface {
	ActiveShares(ctx context.Context, contractID int64, role Role) ([]Share, error)
}

// LegacySource loads the legacy single-owner references. A missing contract is
// reported with an error wrapping shared.ErrNotFound.
type LegacySource interface {
	LegacyParties(ctx context.Context, contractID int64) (LegacyParties, error)
}

// Resolver decides who participates in a contract. Association rows are
// authoritative; the legacy reference is consulted only when no active row
// exists. The two sources are never merged.
type Resolver struct {
	associations AssociationSource
	legacy       LegacySource
	logger       *slog.Logger
}

// NewResolver constructs a resolver.
func NewResolver(associations AssociationSource, legacy LegacySource, logger *slog.Logger) *Resolver {
	return &Resolver{associations: associations, legacy: legacy, logger: logger}
}

// ResolveLandlords returns the landlords of a contract in resolution order.
func (r *Resolver) ResolveLandlords(ctx context.Context, contractID int64) ([]Participant, error) {
	return r.Resolve(ctx, contractID, RoleLandlord)
}

// ResolveTenants returns the tenants of a contract in resolution order.
func (r *Resolver) ResolveTenants(ctx context.Context, contractID int64) ([]Participant, error) {
	return r.Resolve(ctx, contractID, RoleTenant)
}

// Resolve returns validated participants for role. Resolution order is the
// association row creation order.
func (r *Resolver) Resolve(ctx context.Context, contractID int64, role Role) ([]Participant, error) {
	if contractID <= 0 {
		return nil, fmt.Errorf("ownership: contract id required: %w", shared.ErrInvalidArgument)
	}
	if r == nil || r.associations == nil || r.legacy == nil {
		return nil, errors.New("ownership: resolver not configured")
	}
	// The contract row is read first so a missing contract reports
	// ErrNotFound even when orphaned association rows exist.
	parties, err := r.legacy.LegacyParties(ctx, contractID)
	if err != nil {
		return nil, err
	}
	shares, err := r.associations.ActiveShares(ctx, contractID, role)
	if err != nil {
		return nil, err
	}
	participants := fromShares(shares)
	if len(participants) == 0 {
		participants = r.fallback(contractID, role, parties)
	}
	if err := Validate(contractID, role, participants); err != nil {
		return nil, err
	}
	return participants, nil
}

func (r *Resolver) fallback(contractID int64, role Role, parties LegacyParties) []Participant {
	party := parties.forRole(role)
	if party == nil || party.PartyID == 0 {
		return nil
	}
	r.log().Debug("ownership resolved from legacy reference",
		slog.Int64("contract_id", contractID),
		slog.String("role", string(role)),
		slog.Int64("party_id", party.PartyID),
	)
	return []Participant{{
		ID:            party.PartyID,
		Name:          party.Name,
		SharePercent:  money.Hundred,
		IsPrimary:     true,
		PayoutChannel: party.PayoutChannel,
	}}
}

func fromShares(shares []Share) []Participant {
	active := make([]Share, 0, len(shares))
	for _, s := range shares {
		if s.Active {
			active = append(active, s)
		}
	}
	sort.SliceStable(active, func(i, j int) bool { return active[i].RowID < active[j].RowID })
	out := make([]Participant, 0, len(active))
	for _, s := range active {
		out = append(out, Participant{
			ID:            s.PartyID,
			Name:          s.Name,
			SharePercent:  s.Percent,
			IsPrimary:     s.IsPrimary,
			PayoutChannel: s.PayoutChannel,
		})
	}
	return out
}

// Validate enforces the share invariants without normalising anything.
func Validate(contractID int64, role Role, participants []Participant) error {
	if len(participants) == 0 {
		return &NoParticipantsError{ContractID: contractID, Role: role}
	}
	sum := decimal.Zero
	var primaries []int64
	for _, p := range participants {
		if !p.SharePercent.IsPositive() || p.SharePercent.GreaterThan(money.Hundred) {
			return fmt.Errorf("ownership: contract %d %s %d share %s out of range (0, 100]: %w",
				contractID, role, p.ID, p.SharePercent, shared.ErrInvalidArgument)
		}
		sum = sum.Add(p.SharePercent)
		if p.IsPrimary {
			primaries = append(primaries, p.ID)
		}
	}
	if !money.WithinTolerance(sum, money.Hundred, money.ShareTolerance) {
		return &ShareIntegrityError{ContractID: contractID, Role: role, Sum: sum}
	}
	if len(primaries) != 1 {
		return &PrimaryDesignationError{ContractID: contractID, Role: role, PrimaryIDs: primaries}
	}
	return nil
}

// Violation is one integrity problem found by Check.
type Violation struct {
	ContractID int64
	Role       Role
	Err        error
}

// Check validates both roles of a contract and returns the data-entry
// violations found. Storage and lookup failures are returned as err.
func (r *Resolver) Check(ctx context.Context, contractID int64) ([]Violation, error) {
	var violations []Violation
	for _, role := range []Role{RoleLandlord, RoleTenant} {
		_, err := r.Resolve(ctx, contractID, role)
		if err == nil {
			continue
		}
		if isDataViolation(err) {
			violations = append(violations, Violation{ContractID: contractID, Role: role, Err: err})
			continue
		}
		return violations, err
	}
	return violations, nil
}

func isDataViolation(err error) bool {
	return errors.Is(err, shared.ErrShareIntegrity) ||
		errors.Is(err, shared.ErrPrimaryDesignation) ||
		errors.Is(err, shared.ErrNoParticipants) ||
		errors.Is(err, shared.ErrInvalidArgument)
}

func (r *Resolver) log() *slog.Logger {
	if r != nil && r.logger != nil {
		return r.logger
	}
	return slog.Default()
}
