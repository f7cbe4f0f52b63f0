package pipeline

import "errors"

// Validation failures surfaced by the registry, ledger and offer workflow.
// All are detected before any write; a failed operation never mutates state.
var (
	ErrInvalidTransition = errors.New("invalid stage transition")
	ErrDuplicateUnit     = errors.New("unit already has an active entry")
	ErrUnitConflict      = errors.New("unit is actively held by another entry")
	ErrAlreadyResolved   = errors.New("already resolved")
	ErrNotFound          = errors.New("entry not found")
	ErrApprovalRequired  = errors.New("pending approval request must be approved first")
	ErrLedgerLocked      = errors.New("allocation is fully paid and locked")

	ErrInvalidStage    = errors.New("invalid stage")
	ErrInvalidPriority = errors.New("invalid priority")

	// ErrRefNotFound marks a directory lookup miss while resolving the
	// client, project or marketer reference of a new lead.
	ErrRefNotFound = errors.New("referenced record not found")
)
