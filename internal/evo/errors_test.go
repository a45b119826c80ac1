package evo

import (
	"fmt"
	"testing"

	"neatforge/internal/worker"
)

func TestIsRecoverable(t *testing.T) {
	recoverableErrs := []error{
		ErrNoPartner,
		fmt.Errorf("breed: %w", ErrNoViableChild),
		ErrTrainingFailed,
		ErrDedupExhausted,
		ErrNoMutationChoice,
		fmt.Errorf("submit: %w", worker.ErrCapReached),
		worker.ErrDeadlinePassed,
	}
	for _, err := range recoverableErrs {
		if !IsRecoverable(err) {
			t.Fatalf("expected recoverable: %v", err)
		}
	}
	for _, err := range []error{nil, ErrExtinction, ErrSpeciesOrder, ErrIncompatibleParents, fmt.Errorf("disk full")} {
		if IsRecoverable(err) {
			t.Fatalf("expected fatal: %v", err)
		}
	}
}
