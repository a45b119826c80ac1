package evo

import (
	"context"
	"math/rand"
	"testing"

	"neatforge/internal/genome"
	"neatforge/internal/nn"
)

func newMinimalGenome(t *testing.T, rng *rand.Rand, inputs, outputs int) *genome.Genome {
	t.Helper()
	g, err := genome.NewMinimal(rng, inputs, outputs, "tanh")
	if err != nil {
		t.Fatalf("new minimal: %v", err)
	}
	return g
}

// newEvolvedGenome grows a minimal genome through steps random mutations so
// tests see hidden neurons, constants-free recurrent edges and varied sizes.
func newEvolvedGenome(t *testing.T, rng *rand.Rand, inputs, outputs, steps int) *genome.Genome {
	t.Helper()
	g := newMinimalGenome(t, rng, inputs, outputs)
	policy := DefaultCatalogue(rng, nn.DefaultRegistry(), nil, 0)
	if _, err := Mutate(context.Background(), rng, policy, g, steps, nil); err != nil && !IsRecoverable(err) {
		t.Fatalf("mutate: %v", err)
	}
	mustValidate(t, g)
	return g
}

func mustValidate(t *testing.T, g *genome.Genome) {
	t.Helper()
	if err := g.Validate(); err != nil {
		t.Fatalf("invalid genome: %v\nneurons=%+v\nconnections=%+v", err, g.Neurons(), g.Connections())
	}
}

// newHiddenGenome wires 2 inputs through two hidden neurons into 1 output.
func newHiddenGenome(t *testing.T) *genome.Genome {
	t.Helper()
	g, err := genome.New(2, 1, "tanh")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for pos := 2; pos < 4; pos++ {
		if err := g.InsertNeuron(pos, genome.Neuron{Kind: genome.KindHidden, Activation: "tanh", Bias: 0.1 * float64(pos)}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	for _, e := range [][2]int{{0, 2}, {1, 3}, {2, 4}, {3, 4}, {0, 4}} {
		if err := g.Connect(e[0], e[1], 0.5, genome.PolarityNone); err != nil {
			t.Fatalf("connect %v: %v", e, err)
		}
	}
	mustValidate(t, g)
	return g
}
