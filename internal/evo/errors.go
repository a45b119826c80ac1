package evo

import (
	"errors"

	"neatforge/internal/worker"
)

// Fatal errors abort a run.
var (
	ErrExtinction          = errors.New("population extinct: no genome can reproduce")
	ErrSpeciesOrder        = errors.New("species members must be inserted by non-increasing fitness")
	ErrIncompatibleParents = errors.New("parents differ in input or output count")
)

// Recoverable errors are logged and the run continues.
var (
	ErrNoPartner        = errors.New("no breeding partner available")
	ErrNoViableChild    = errors.New("crossover produced no viable child")
	ErrTrainingFailed   = errors.New("training task failed")
	ErrDedupExhausted   = errors.New("deduplication retries exhausted")
	ErrNoMutationChoice = errors.New("no mutation choice available")
)

var recoverable = []error{
	ErrNoPartner,
	ErrNoViableChild,
	ErrTrainingFailed,
	ErrDedupExhausted,
	ErrNoMutationChoice,
	worker.ErrDeadlinePassed,
	worker.ErrInFlight,
	worker.ErrCapReached,
	worker.ErrPoolClosed,
}

// IsRecoverable reports whether err is a condition the evolution loop can
// log and continue past.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range recoverable {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
