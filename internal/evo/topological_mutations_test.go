package evo

import (
	"math/rand"
	"testing"
)

func TestMutationCountPolicies(t *testing.T) {
	g := newHiddenGenome(t)

	c, err := (ConstMutationCount{Count: 3}).MutationCount(g, 0, nil)
	if err != nil || c != 3 {
		t.Fatalf("const policy mismatch count=%d err=%v", c, err)
	}
	if _, err := (ConstMutationCount{}).MutationCount(g, 0, nil); err == nil {
		t.Fatal("expected error for zero const count")
	}

	// Three non-input neurons.
	l, err := (NCountLinearMutationCount{Multiplier: 1, MaxCount: 10}).MutationCount(g, 0, nil)
	if err != nil || l != 3 {
		t.Fatalf("linear policy count=%d err=%v", l, err)
	}
	l, _ = (NCountLinearMutationCount{Multiplier: 5, MaxCount: 4}).MutationCount(g, 0, nil)
	if l != 4 {
		t.Fatalf("linear policy ignored cap: %d", l)
	}

	e, err := (NCountExponentialMutationCount{Power: 0.5, MaxCount: 10}).MutationCount(g, 0, nil)
	if err != nil || e != 2 {
		t.Fatalf("exponential policy count=%d err=%v", e, err)
	}
}

func TestNCountExponentialMutationCountRandomRange(t *testing.T) {
	g := newHiddenGenome(t)
	maxCount := g.Len() - g.Inputs()
	policy := NCountExponentialMutationCount{Power: 1.0}

	seen := map[int]struct{}{}
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 128; i++ {
		count, err := policy.MutationCount(g, 0, rng)
		if err != nil {
			t.Fatalf("mutation count: %v", err)
		}
		if count < 1 || count > maxCount {
			t.Fatalf("count out of expected range: got=%d want=[1,%d]", count, maxCount)
		}
		seen[count] = struct{}{}
	}
	if len(seen) < 2 {
		t.Fatalf("expected stochastic distribution with at least 2 distinct counts, got=%v", seen)
	}
}
