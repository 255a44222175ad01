package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument indicates negative or malformed monetary input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrShareIntegrity indicates ownership percentages do not sum to 100.
	ErrShareIntegrity = errors.New("share integrity violated")
	// ErrPrimaryDesignation indicates zero or multiple primary participants.
	ErrPrimaryDesignation = errors.New("primary designation invalid")
	// ErrNoParticipants indicates a contract without any resolvable landlord or tenant.
	ErrNoParticipants = errors.New("no participants")
	// ErrSettlementLocked indicates a recompute attempt on a PAID or CANCELLED settlement.
	ErrSettlementLocked = errors.New("settlement locked")
)
