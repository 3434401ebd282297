package domain

import "errors"

// Sentinel errors shared by the assignment and transfer services. Callers
// branch on these with errors.Is; the wrapped message carries the detail.
var (
	// ErrInvalidTransition is returned when an assignment status change
	// is not permitted by the transition table.
	ErrInvalidTransition = errors.New("assignment status transition not allowed")

	// ErrArchived is returned when mutating an archived transaction, or
	// archiving one twice.
	ErrArchived = errors.New("transaction is archived")

	// ErrNotArchived is returned when unarchiving a live transaction.
	ErrNotArchived = errors.New("transaction is not archived")

	// ErrHasSplits is returned when a whole-transaction operation is
	// attempted on a split transaction.
	ErrHasSplits = errors.New("transaction has splits")

	// ErrOverAllocated is returned when split amounts exceed the
	// transaction credit.
	ErrOverAllocated = errors.New("split amounts exceed transaction credit")
)
