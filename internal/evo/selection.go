package evo

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
)

// Selector picks one parent from a ranked pool (best first).
type Selector interface {
	Name() string
	Pick(rng *rand.Rand, ranked []ScoredGenome) (ScoredGenome, error)
}

func checkPool(rng *rand.Rand, ranked []ScoredGenome) error {
	if rng == nil {
		return errRandomRequired
	}
	if len(ranked) == 0 {
		return fmt.Errorf("%w: empty selection pool", ErrNoPartner)
	}
	return nil
}

// PowerSelector samples rank floor(u^Exponent * n); exponents above one skew
// towards the top of the ranking.
type PowerSelector struct {
	Exponent float64
}

func (PowerSelector) Name() string {
	return "power"
}

func (s PowerSelector) Pick(rng *rand.Rand, ranked []ScoredGenome) (ScoredGenome, error) {
	if err := checkPool(rng, ranked); err != nil {
		return ScoredGenome{}, err
	}
	exp := s.Exponent
	if exp <= 0 {
		exp = 1
	}
	idx := int(math.Floor(math.Pow(rng.Float64(), exp) * float64(len(ranked))))
	return ranked[min(idx, len(ranked)-1)], nil
}

// RouletteSelector is fitness-proportionate. Scores are shifted so that the
// worst member keeps a small positive share.
type RouletteSelector struct{}

func (RouletteSelector) Name() string {
	return "roulette"
}

func (RouletteSelector) Pick(rng *rand.Rand, ranked []ScoredGenome) (ScoredGenome, error) {
	if err := checkPool(rng, ranked); err != nil {
		return ScoredGenome{}, err
	}
	lowest := ranked[0].Fitness
	for _, item := range ranked {
		lowest = math.Min(lowest, item.Fitness)
	}
	shift := 0.0
	if lowest <= 0 {
		shift = -lowest + 1e-9
	}
	total := 0.0
	for _, item := range ranked {
		total += item.Fitness + shift
	}
	if total <= 0 || math.IsInf(total, 0) || math.IsNaN(total) {
		return ranked[rng.Intn(len(ranked))], nil
	}
	pick := rng.Float64() * total
	acc := 0.0
	for _, item := range ranked {
		acc += item.Fitness + shift
		if pick < acc {
			return item, nil
		}
	}
	return ranked[len(ranked)-1], nil
}

// TournamentSelector samples Size members with replacement and keeps the best.
type TournamentSelector struct {
	Size int
}

func (TournamentSelector) Name() string {
	return "tournament"
}

func (s TournamentSelector) Pick(rng *rand.Rand, ranked []ScoredGenome) (ScoredGenome, error) {
	if err := checkPool(rng, ranked); err != nil {
		return ScoredGenome{}, err
	}
	size := s.Size
	if size <= 0 {
		size = 3
	}
	best := ranked[rng.Intn(len(ranked))]
	for i := 1; i < size; i++ {
		candidate := ranked[rng.Intn(len(ranked))]
		if candidate.Fitness > best.Fitness {
			best = candidate
		}
	}
	return best, nil
}

// SelectorByName resolves a configured selection strategy.
func SelectorByName(name string, exponent float64, tournamentSize int) (Selector, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "power":
		return PowerSelector{Exponent: exponent}, nil
	case "roulette":
		return RouletteSelector{}, nil
	case "tournament":
		return TournamentSelector{Size: tournamentSize}, nil
	default:
		return nil, fmt.Errorf("unknown selection strategy: %s", name)
	}
}
