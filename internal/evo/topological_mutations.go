package evo

import (
	"fmt"
	"math"
	"math/rand"

	"neatforge/internal/genome"
)

// MutationCountPolicy determines how many mutation operations are applied to
// each bred child.
type MutationCountPolicy interface {
	Name() string
	MutationCount(g *genome.Genome, generation int, rng *rand.Rand) (int, error)
}

type ConstMutationCount struct {
	Count int
}

func (ConstMutationCount) Name() string {
	return "const"
}

func (p ConstMutationCount) MutationCount(_ *genome.Genome, _ int, _ *rand.Rand) (int, error) {
	if p.Count <= 0 {
		return 0, fmt.Errorf("const mutation count must be > 0")
	}
	return p.Count, nil
}

// NCountLinearMutationCount scales with the neuron count.
type NCountLinearMutationCount struct {
	Multiplier float64
	MaxCount   int
}

func (NCountLinearMutationCount) Name() string {
	return "ncount_linear"
}

func (p NCountLinearMutationCount) MutationCount(g *genome.Genome, _ int, _ *rand.Rand) (int, error) {
	if p.Multiplier <= 0 {
		return 0, fmt.Errorf("linear multiplier must be > 0")
	}
	count := int(math.Round(float64(g.Len()-g.Inputs()) * p.Multiplier))
	return clampCount(count, p.MaxCount), nil
}

// NCountExponentialMutationCount draws uniformly from [1, n^power].
type NCountExponentialMutationCount struct {
	Power    float64
	MaxCount int
}

func (NCountExponentialMutationCount) Name() string {
	return "ncount_exponential"
}

func (p NCountExponentialMutationCount) MutationCount(g *genome.Genome, _ int, rng *rand.Rand) (int, error) {
	if p.Power <= 0 {
		return 0, fmt.Errorf("exponential power must be > 0")
	}
	upper := clampCount(int(math.Round(math.Pow(float64(max(1, g.Len()-g.Inputs())), p.Power))), p.MaxCount)
	if rng == nil {
		return upper, nil
	}
	return 1 + rng.Intn(upper), nil
}

func clampCount(count, maxCount int) int {
	if count < 1 {
		count = 1
	}
	if maxCount > 0 && count > maxCount {
		count = maxCount
	}
	return count
}
