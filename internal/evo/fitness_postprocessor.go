package evo

import (
	"fmt"
	"math"
	"strings"
)

const sizeProportionalEfficiency = 0.05

// FitnessPostprocessor adjusts fitness values after evaluation and before
// ranking.
type FitnessPostprocessor interface {
	Name() string
	Process(scored []ScoredGenome) []ScoredGenome
}

type NoopFitnessPostprocessor struct{}

func (NoopFitnessPostprocessor) Name() string {
	return "none"
}

func (NoopFitnessPostprocessor) Process(scored []ScoredGenome) []ScoredGenome {
	return cloneScored(scored)
}

// SizeProportionalPostprocessor penalizes larger genomes by complexity. The
// penalty always moves a score downwards, also for negative scores.
type SizeProportionalPostprocessor struct{}

func (SizeProportionalPostprocessor) Name() string {
	return "size_proportional"
}

func (SizeProportionalPostprocessor) Process(scored []ScoredGenome) []ScoredGenome {
	out := cloneScored(scored)
	for i := range out {
		complexity := float64(out[i].Genome.Len() + out[i].Genome.ConnectionCount())
		if complexity < 1 {
			complexity = 1
		}
		factor := math.Pow(complexity, sizeProportionalEfficiency)
		if out[i].Fitness < 0 {
			out[i].Fitness *= factor
		} else {
			out[i].Fitness /= factor
		}
	}
	return out
}

// PostprocessorByName resolves a configured postprocessor.
func PostprocessorByName(name string) (FitnessPostprocessor, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return NoopFitnessPostprocessor{}, nil
	case "size_proportional":
		return SizeProportionalPostprocessor{}, nil
	default:
		return nil, fmt.Errorf("unknown fitness postprocessor: %s", name)
	}
}

func cloneScored(scored []ScoredGenome) []ScoredGenome {
	out := make([]ScoredGenome, len(scored))
	copy(out, scored)
	return out
}
