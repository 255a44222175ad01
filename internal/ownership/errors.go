package ownership

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/aluga-erp/aluga/internal/shared"
)

// ShareIntegrityError reports active shares that do not total 100%.
type ShareIntegrityError struct {
	ContractID int64
	Role       Role
	Sum        decimal.Decimal
}

func (e *ShareIntegrityError) Error() string {
	return fmt.Sprintf("ownership: contract %d %s shares sum to %s, expected 100", e.ContractID, e.Role, e.Sum.String())
}

func (e *ShareIntegrityError) Unwrap() error { return shared.ErrShareIntegrity }

// PrimaryDesignationError reports zero or several primary participants.
type PrimaryDesignationError struct {
	ContractID int64
	Role       Role
	PrimaryIDs []int64
}

func (e *PrimaryDesignationError) Error() string {
	if len(e.PrimaryIDs) == 0 {
		return fmt.Sprintf("ownership: contract %d has no primary %s", e.ContractID, e.Role)
	}
	return fmt.Sprintf("ownership: contract %d has %d primary %s: %v", e.ContractID, len(e.PrimaryIDs), e.Role, e.PrimaryIDs)
}

func (e *PrimaryDesignationError) Unwrap() error { return shared.ErrPrimaryDesignation }

// NoParticipantsError reports a contract with nobody to settle with.
type NoParticipantsError struct {
	ContractID int64
	Role       Role
}

func (e *NoParticipantsError) Error() string {
	return fmt.Sprintf("ownership: contract %d has no %s", e.ContractID, e.Role)
}

func (e *NoParticipantsError) Unwrap() error { return shared.ErrNoParticipants }
