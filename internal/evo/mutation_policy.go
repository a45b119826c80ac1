package evo

import (
	"context"
	"fmt"
	"math/rand"

	"neatforge/internal/genome"
	"neatforge/internal/nn"
)

// WeightedMutation pairs an operator with its relative selection weight.
type WeightedMutation struct {
	Mutation Mutation
	Weight   float64
}

// MutationPolicy is a weighted operator catalogue.
type MutationPolicy []WeightedMutation

// Validate requires a non-nil operator everywhere and one positive weight.
func (p MutationPolicy) Validate() error {
	if len(p) == 0 {
		return fmt.Errorf("mutation policy is empty")
	}
	positive := false
	for i, item := range p {
		if item.Mutation == nil {
			return fmt.Errorf("mutation policy operator is required at index %d", i)
		}
		if item.Weight < 0 {
			return fmt.Errorf("mutation policy weight must be >= 0 at index %d", i)
		}
		if item.Weight > 0 {
			positive = true
		}
	}
	if !positive {
		return fmt.Errorf("mutation policy requires at least one positive weight")
	}
	return nil
}

// Choose draws one operator proportionally to its weight.
func (p MutationPolicy) Choose(rng *rand.Rand) Mutation {
	total := 0.0
	for _, item := range p {
		total += item.Weight
	}
	if total <= 0 {
		return nil
	}
	pick := rng.Float64() * total
	acc := 0.0
	for _, item := range p {
		if item.Weight <= 0 {
			continue
		}
		acc += item.Weight
		if pick < acc {
			return item.Mutation
		}
	}
	return p[len(p)-1].Mutation
}

// MutationWeights lists per-operator weights by operator name.
type MutationWeights map[string]float64

// DefaultMutationWeights favours parametric edits over structural growth.
func DefaultMutationWeights() MutationWeights {
	return MutationWeights{
		"add_neuron":          1,
		"sub_neuron":          0.5,
		"add_connection":      2,
		"sub_connection":      0.5,
		"add_self_connection": 0.25,
		"sub_self_connection": 0.25,
		"add_back_connection": 0.25,
		"sub_back_connection": 0.25,
		"mod_weight":          6,
		"mod_bias":            3,
		"mod_activation":      1,
		"swap_neurons":        0.5,
	}
}

// DefaultCatalogue builds every operator sharing rng and registry. Operators
// missing from weights get weight zero.
func DefaultCatalogue(rng *rand.Rand, registry *nn.Registry, weights MutationWeights, biasDelta float64) MutationPolicy {
	if weights == nil {
		weights = DefaultMutationWeights()
	}
	operators := []Mutation{
		&AddNeuron{Rand: rng, Registry: registry},
		&SubNeuron{Rand: rng},
		&AddConnection{Rand: rng},
		&SubConnection{Rand: rng},
		&AddSelfConnection{Rand: rng},
		&SubSelfConnection{Rand: rng},
		&AddBackConnection{Rand: rng},
		&SubBackConnection{Rand: rng},
		&ModWeight{Rand: rng},
		&ModBias{Rand: rng, MaxDelta: biasDelta},
		&ModActivation{Rand: rng, Registry: registry},
		&SwapNeurons{Rand: rng},
	}
	policy := make(MutationPolicy, 0, len(operators))
	for _, op := range operators {
		policy = append(policy, WeightedMutation{Mutation: op, Weight: weights[op.Name()]})
	}
	return policy
}

// maxMutationDraws bounds how many operators are tried per requested step
// when the drawn ones find nothing eligible.
const maxMutationDraws = 8

// Mutate applies count successful mutations, redrawing operators that report
// a no-op. It returns the names of the applied operators and
// ErrNoMutationChoice when no operator succeeded at all.
func Mutate(ctx context.Context, rng *rand.Rand, policy MutationPolicy, g *genome.Genome, count int, focus []int) ([]string, error) {
	applied := make([]string, 0, count)
	for step := 0; step < count; step++ {
		for draw := 0; draw < maxMutationDraws; draw++ {
			if err := ctx.Err(); err != nil {
				return applied, err
			}
			op := policy.Choose(rng)
			if op == nil {
				return applied, ErrNoMutationChoice
			}
			ok, err := op.Apply(ctx, g, focus)
			if err != nil {
				return applied, fmt.Errorf("%s: %w", op.Name(), err)
			}
			if ok {
				applied = append(applied, op.Name())
				break
			}
		}
	}
	if count > 0 && len(applied) == 0 {
		return nil, ErrNoMutationChoice
	}
	return applied, nil
}

// FocusFromOutput restricts mutation to the ancestry of one random output,
// which keeps edits on paths that can still change the result.
func FocusFromOutput(rng *rand.Rand, g *genome.Genome) []int {
	outputs := g.IndicesOf(genome.KindOutput)
	if len(outputs) == 0 {
		return nil
	}
	target := outputs[rng.Intn(len(outputs))]
	return append(g.Ancestors(target), target)
}
