package tuning

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"neatforge/internal/genome"
)

// HillClimber is a gradient-free local search over weights and biases. Each
// attempt perturbs one or more base genomes and keeps the best candidate when
// it lowers the error by more than MinImprovement.
type HillClimber struct {
	Rand *rand.Rand
	// Steps is the number of parameters perturbed per candidate.
	Steps             int
	StepSize          float64
	PerturbationRange float64
	// AnnealingFactor shrinks the spread of each successive step.
	AnnealingFactor float64
	MinImprovement  float64
	// GoalError stops the search once the error drops to it. Zero disables.
	GoalError          float64
	CandidateSelection string
	// Biases includes hidden and output biases in the search.
	Biases bool

	mu sync.Mutex
}

const (
	CandidateSelectBestSoFar     = "best_so_far"
	CandidateSelectOriginal      = "original"
	CandidateSelectDynamic       = "dynamic"
	CandidateSelectDynamicRandom = "dynamic_random"
	CandidateSelectAll           = "all"
	CandidateSelectAllRandom     = "all_random"
	CandidateSelectRecent        = "recent"
	CandidateSelectRecentRandom  = "recent_random"
)

var errUnsupportedSelection = errors.New("unsupported candidate selection")

func (h *HillClimber) Name() string {
	return "hill_climb"
}

// Tune searches for up to attempts rounds and returns the best genome found
// with its error. The input genome is not modified.
func (h *HillClimber) Tune(ctx context.Context, g *genome.Genome, attempts int, objective Objective) (*genome.Genome, float64, TuneReport, error) {
	report := TuneReport{AttemptsPlanned: max(attempts, 0)}
	if err := ctx.Err(); err != nil {
		return nil, 0, report, err
	}
	if err := h.validate(objective); err != nil {
		return nil, 0, report, err
	}
	perturbationRange := h.PerturbationRange
	if perturbationRange == 0 {
		perturbationRange = 1.0
	}
	annealingFactor := h.AnnealingFactor
	if annealingFactor == 0 {
		annealingFactor = 1.0
	}

	best := g.Clone()
	bestErr, err := objective(ctx, best)
	if err != nil {
		return nil, 0, report, err
	}
	report.CandidateEvaluations++
	if h.goalReached(bestErr) {
		report.GoalReached = true
		return best, bestErr, report, nil
	}
	if attempts <= 0 || g.ConnectionCount() == 0 {
		return best, bestErr, report, nil
	}
	recent := best

	for a := 0; a < attempts; a++ {
		bases, err := h.candidateBases(best, g, recent)
		if err != nil {
			return nil, 0, report, err
		}
		report.AttemptsExecuted++
		localBest, localErr := best, bestErr
		for _, base := range bases {
			candidate, err := h.perturb(ctx, base, perturbationRange, annealingFactor)
			if err != nil {
				return nil, 0, report, err
			}
			candidateErr, err := objective(ctx, candidate)
			if err != nil {
				return nil, 0, report, err
			}
			report.CandidateEvaluations++
			if math.IsNaN(candidateErr) {
				report.RejectedCandidates++
				continue
			}
			if candidateErr < localErr-h.MinImprovement {
				localBest, localErr = candidate, candidateErr
				report.AcceptedCandidates++
				continue
			}
			report.RejectedCandidates++
		}
		recent = localBest
		if localErr < bestErr-h.MinImprovement {
			best, bestErr = localBest, localErr
		}
		if h.goalReached(bestErr) {
			report.GoalReached = true
			break
		}
	}
	return best, bestErr, report, nil
}

func (h *HillClimber) validate(objective Objective) error {
	switch {
	case h == nil || h.Rand == nil:
		return errors.New("random source is required")
	case h.Steps <= 0:
		return errors.New("steps must be > 0")
	case h.StepSize <= 0:
		return errors.New("step size must be > 0")
	case h.PerturbationRange < 0:
		return errors.New("perturbation range must be >= 0")
	case h.AnnealingFactor < 0:
		return errors.New("annealing factor must be >= 0")
	case h.MinImprovement < 0:
		return errors.New("min improvement must be >= 0")
	case objective == nil:
		return errors.New("objective is required")
	}
	mode := nonRandomModeFor(NormalizeCandidateSelectionName(h.CandidateSelection))
	if _, err := h.candidateBasesForMode(mode, nil, nil, nil); err != nil {
		return fmt.Errorf("%w: %s", err, h.CandidateSelection)
	}
	return nil
}

func (h *HillClimber) goalReached(err float64) bool {
	return h.GoalError > 0 && err <= h.GoalError
}

func (h *HillClimber) randIntn(n int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Rand.Intn(n)
}

func (h *HillClimber) randFloat64() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Rand.Float64()
}

func NormalizeCandidateSelectionName(name string) string {
	if name == "" {
		return CandidateSelectBestSoFar
	}
	return name
}

func (h *HillClimber) candidateBases(best, original, recent *genome.Genome) ([]*genome.Genome, error) {
	mode := NormalizeCandidateSelectionName(h.CandidateSelection)
	if isRandomSelection(mode) {
		pool, err := h.candidateBasesForMode(nonRandomModeFor(mode), best, original, recent)
		if err != nil {
			return nil, err
		}
		return h.randomSubset(pool), nil
	}
	return h.candidateBasesForMode(mode, best, original, recent)
}

func (h *HillClimber) candidateBasesForMode(mode string, best, original, recent *genome.Genome) ([]*genome.Genome, error) {
	switch mode {
	case CandidateSelectBestSoFar:
		return []*genome.Genome{best}, nil
	case CandidateSelectOriginal:
		return []*genome.Genome{original}, nil
	case CandidateSelectDynamic:
		return []*genome.Genome{best, original}, nil
	case CandidateSelectRecent:
		return []*genome.Genome{recent}, nil
	case CandidateSelectAll:
		return []*genome.Genome{best, original, recent}, nil
	default:
		return nil, errUnsupportedSelection
	}
}

func isRandomSelection(mode string) bool {
	switch mode {
	case CandidateSelectDynamicRandom, CandidateSelectAllRandom, CandidateSelectRecentRandom:
		return true
	default:
		return false
	}
}

func nonRandomModeFor(mode string) string {
	switch mode {
	case CandidateSelectDynamicRandom:
		return CandidateSelectDynamic
	case CandidateSelectAllRandom:
		return CandidateSelectAll
	case CandidateSelectRecentRandom:
		return CandidateSelectRecent
	default:
		return mode
	}
}

// randomSubset keeps each base with probability 1/sqrt(n), and at least one.
func (h *HillClimber) randomSubset(pool []*genome.Genome) []*genome.Genome {
	if len(pool) <= 1 {
		return pool
	}
	p := 1 / math.Sqrt(float64(len(pool)))
	chosen := make([]*genome.Genome, 0, len(pool))
	for _, g := range pool {
		if h.randFloat64() < p {
			chosen = append(chosen, g)
		}
	}
	if len(chosen) > 0 {
		return chosen
	}
	return []*genome.Genome{pool[h.randIntn(len(pool))]}
}

// perturb returns a copy of base with Steps random parameter nudges. The
// spread of step s is StepSize * range * annealing^s.
func (h *HillClimber) perturb(ctx context.Context, base *genome.Genome, perturbationRange, annealingFactor float64) (*genome.Genome, error) {
	candidate := base.Clone()
	conns := candidate.Connections()
	var biased []int
	if h.Biases {
		biased = candidate.IndicesOf(genome.KindHidden, genome.KindOutput)
	}
	total := len(conns) + len(biased)
	if total == 0 {
		return candidate, nil
	}
	for s := 0; s < h.Steps; s++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		spread := h.StepSize * perturbationRange * math.Pow(annealingFactor, float64(s))
		delta := (h.randFloat64()*2 - 1) * spread
		idx := h.randIntn(total)
		if idx < len(conns) {
			c, _ := candidate.Lookup(conns[idx].From, conns[idx].To)
			if err := candidate.SetWeight(c.From, c.To, c.Weight+delta); err != nil {
				return nil, err
			}
			continue
		}
		n := biased[idx-len(conns)]
		if err := candidate.SetBias(n, candidate.Neuron(n).Bias+delta); err != nil {
			return nil, err
		}
	}
	return candidate, nil
}
