package tuning

import (
	"testing"

	"neatforge/internal/genome"
)

func tenConnectionGenome(t *testing.T) *genome.Genome {
	t.Helper()
	g, err := genome.New(10, 1, "identity")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for i := 0; i < 10; i++ {
		if err := g.Connect(i, 10, 0.1, genome.PolarityNone); err != nil {
			t.Fatalf("connect: %v", err)
		}
	}
	return g
}

func TestFixedAttemptPolicy(t *testing.T) {
	p := FixedAttemptPolicy{}
	if got := p.Attempts(4, nil); got != 4 {
		t.Fatalf("expected fixed attempts=4, got=%d", got)
	}
	if got := p.Attempts(-1, nil); got != 0 {
		t.Fatalf("expected negative base clamped to 0, got=%d", got)
	}
}

func TestTopologyScaledAttemptPolicy(t *testing.T) {
	p := TopologyScaledAttemptPolicy{Scale: 1.0, MinAttempts: 1}
	if got := p.Attempts(4, tenConnectionGenome(t)); got != 8 {
		t.Fatalf("expected scaled attempts=8, got=%d", got)
	}
	capped := TopologyScaledAttemptPolicy{Scale: 1.0, MaxAttempts: 5}
	if got := capped.Attempts(4, tenConnectionGenome(t)); got != 5 {
		t.Fatalf("expected capped attempts=5, got=%d", got)
	}
}

func TestSizeProportionalAttemptPolicies(t *testing.T) {
	g := tenConnectionGenome(t)
	if got := (NSizeProportionalAttemptPolicy{Power: 1}).Attempts(3, g); got != 4 {
		t.Fatalf("nsize attempts=%d want=4", got)
	}
	if got := (WSizeProportionalAttemptPolicy{Power: 1}).Attempts(3, g); got != 13 {
		t.Fatalf("wsize attempts=%d want=13", got)
	}
	if got := (WSizeProportionalAttemptPolicy{Power: 1}).Attempts(0, g); got != 0 {
		t.Fatalf("zero base must stay zero, got=%d", got)
	}
}

func TestAttemptPolicyFromConfig(t *testing.T) {
	for _, name := range []string{"", "fixed", "const", "topology_scaled", "nsize_proportional", "wsize_proportional"} {
		if _, err := AttemptPolicyFromConfig(name, 1); err != nil {
			t.Fatalf("%q policy: %v", name, err)
		}
	}
	if _, err := AttemptPolicyFromConfig("unknown", 1); err == nil {
		t.Fatal("expected unknown policy error")
	}
}
