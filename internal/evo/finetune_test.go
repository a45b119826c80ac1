package evo

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"neatforge/internal/genome"
)

func TestFineTuneInjectsRequestedBatch(t *testing.T) {
	best := newHiddenGenome(t)
	prior := best.Clone()
	if err := prior.SetWeight(0, 2, 0.4); err != nil {
		t.Fatalf("set weight: %v", err)
	}
	tuner := FineTuner{Rand: rand.New(rand.NewSource(17))}
	out, err := tuner.Inject(
		ScoredGenome{Genome: prior, Fitness: -0.5},
		ScoredGenome{Genome: best, Fitness: -0.4},
		7, nil,
	)
	if err != nil {
		t.Fatalf("inject: %v", err)
	}
	if len(out) != 7 {
		t.Fatalf("candidates=%d want=7", len(out))
	}
	seen := map[string]struct{}{best.Identity(): {}}
	for _, g := range out {
		mustValidate(t, g)
		if _, dup := seen[g.Identity()]; dup {
			t.Fatalf("duplicate identity %s", g.Identity())
		}
		seen[g.Identity()] = struct{}{}
		if g.Len() != best.Len() || g.ConnectionCount() != best.ConnectionCount() {
			t.Fatal("fine-tuning must not change topology")
		}
		if v := g.Neuron(g.OutputStart()).Tags["origin"]; v != "fine_tune" {
			t.Fatalf("missing origin tag: %q", v)
		}
	}
}

func TestFineTuneFollowsImprovementDirection(t *testing.T) {
	best := newHiddenGenome(t)
	prior := best.Clone()
	// best moved 0->2 upwards since prior.
	if err := prior.SetWeight(0, 2, 0.4); err != nil {
		t.Fatalf("set weight: %v", err)
	}
	params := tunableParameters(best, prior)
	found := false
	for _, p := range params {
		if p.neuron < 0 && p.from == 0 && p.to == 2 {
			found = true
			if p.direction != 1 {
				t.Fatalf("direction=%v want=1", p.direction)
			}
			continue
		}
		if p.direction != 0 {
			t.Fatalf("unchanged parameter got direction %v: %+v", p.direction, p)
		}
	}
	if !found {
		t.Fatal("weight 0->2 not listed")
	}
	if len(params) != best.ConnectionCount()+3 {
		t.Fatalf("params=%d", len(params))
	}
}

func TestFineTuneSkipsSeenIdentitiesAndQuantizes(t *testing.T) {
	best := newHiddenGenome(t)
	tuner := FineTuner{Rand: rand.New(rand.NewSource(3)), Step: 0.05}
	first, err := tuner.Inject(ScoredGenome{Genome: best, Fitness: 1}, ScoredGenome{}, 5, nil)
	if err != nil {
		t.Fatalf("inject: %v", err)
	}
	seen := make(map[string]struct{}, len(first))
	for _, g := range first {
		seen[g.Identity()] = struct{}{}
		for _, c := range g.Connections() {
			if q := c.Weight / 0.05; math.Abs(q-math.Round(q)) > 1e-6 {
				t.Fatalf("weight %v not on the step grid", c.Weight)
			}
		}
	}
	second, err := tuner.Inject(ScoredGenome{Genome: best, Fitness: 1}, ScoredGenome{}, 5, seen)
	if err != nil {
		t.Fatalf("inject: %v", err)
	}
	for _, g := range second {
		if _, dup := seen[g.Identity()]; dup {
			t.Fatalf("seen identity reissued: %s", g.Identity())
		}
	}
}

func TestFineTunePerturbReportsStaleParameters(t *testing.T) {
	tuner := FineTuner{Rand: rand.New(rand.NewSource(3))}
	g := newHiddenGenome(t)

	missing := []parameter{{neuron: -1, from: 1, to: 2}}
	if err := tuner.perturb(g.Clone(), missing, 0.1, 2); !errors.Is(err, genome.ErrEdgeNotFound) {
		t.Fatalf("expected ErrEdgeNotFound, got %v", err)
	}
	input := []parameter{{neuron: 0}}
	if err := tuner.perturb(g.Clone(), input, 0.1, 2); !errors.Is(err, genome.ErrIllegalPosition) {
		t.Fatalf("expected ErrIllegalPosition, got %v", err)
	}
	valid := []parameter{{neuron: -1, from: 0, to: 2}}
	candidate := g.Clone()
	if err := tuner.perturb(candidate, valid, 0.1, 2); err != nil {
		t.Fatalf("perturb: %v", err)
	}
	if candidate.Identity() == g.Identity() {
		t.Fatal("perturb left the candidate unchanged")
	}
}
