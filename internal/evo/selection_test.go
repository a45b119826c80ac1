package evo

import (
	"errors"
	"math/rand"
	"testing"
)

func rankedFitness(t *testing.T, scores ...float64) []ScoredGenome {
	t.Helper()
	rng := rand.New(rand.NewSource(99))
	out := make([]ScoredGenome, len(scores))
	for i, s := range scores {
		out[i] = ScoredGenome{Genome: newMinimalGenome(t, rng, 1, 1), Fitness: s}
	}
	return out
}

func pickCounts(t *testing.T, s Selector, ranked []ScoredGenome, draws int) map[float64]int {
	t.Helper()
	rng := rand.New(rand.NewSource(7))
	counts := make(map[float64]int)
	for i := 0; i < draws; i++ {
		picked, err := s.Pick(rng, ranked)
		if err != nil {
			t.Fatalf("%s pick: %v", s.Name(), err)
		}
		counts[picked.Fitness]++
	}
	return counts
}

func TestPowerSelectorSkewsToTopRanks(t *testing.T) {
	ranked := rankedFitness(t, 5, 4, 3, 2, 1)
	counts := pickCounts(t, PowerSelector{Exponent: 3}, ranked, 2000)
	if counts[5] <= counts[1]*3 {
		t.Fatalf("expected strong skew to the best rank: %v", counts)
	}
	flat := pickCounts(t, PowerSelector{Exponent: 1}, ranked, 5000)
	for _, f := range []float64{1, 2, 3, 4, 5} {
		if flat[f] < 800 || flat[f] > 1200 {
			t.Fatalf("exponent 1 should be near uniform: %v", flat)
		}
	}
}

func TestRouletteSelectorHandlesNegativeScores(t *testing.T) {
	ranked := rankedFitness(t, -0.1, -0.5, -10)
	counts := pickCounts(t, RouletteSelector{}, ranked, 3000)
	if counts[-0.1] <= counts[-0.5] || counts[-0.5] <= counts[-10] {
		t.Fatalf("roulette shares out of order: %v", counts)
	}
}

func TestTournamentSelectorPrefersBest(t *testing.T) {
	ranked := rankedFitness(t, 3, 2, 1)
	counts := pickCounts(t, TournamentSelector{Size: 3}, ranked, 3000)
	if counts[3] <= counts[2] || counts[2] <= counts[1] {
		t.Fatalf("tournament shares out of order: %v", counts)
	}
}

func TestSelectorsRejectEmptyPool(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, s := range []Selector{PowerSelector{}, RouletteSelector{}, TournamentSelector{}} {
		if _, err := s.Pick(rng, nil); !errors.Is(err, ErrNoPartner) {
			t.Fatalf("%s: expected ErrNoPartner, got %v", s.Name(), err)
		}
	}
}

func TestSelectorByName(t *testing.T) {
	for _, name := range []string{"power", "roulette", "tournament", ""} {
		if _, err := SelectorByName(name, 2, 3); err != nil {
			t.Fatalf("%q: %v", name, err)
		}
	}
	if _, err := SelectorByName("elite", 2, 3); err == nil {
		t.Fatal("expected unknown strategy error")
	}
}
