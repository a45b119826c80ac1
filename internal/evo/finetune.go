package evo

import (
	"fmt"
	"math"
	"math/rand"

	"neatforge/internal/genome"
)

const (
	defaultFineTuneStep     = 0.01
	defaultFineTuneMaxSteps = 4
	fineTuneAttemptFactor   = 20
)

// FineTuner perturbs the best genome in small quantized steps. Parameters
// that changed between a prior best and the current best are pushed further
// in the same direction; the rest move in a random direction.
type FineTuner struct {
	Rand *rand.Rand
	// Step is the quantum of every perturbation.
	Step float64
	// MaxSteps bounds the multiple of Step applied to one parameter.
	MaxSteps int
}

type parameter struct {
	neuron    int
	from, to  int
	direction float64
}

// Inject returns up to batch candidates derived from the better of a and b,
// each with an identity absent from seen and from the other candidates. The
// worse genome serves as the reference for the improvement direction.
// Attempts are bounded, so fewer than batch candidates may come back.
func (f FineTuner) Inject(a, b ScoredGenome, batch int, seen map[string]struct{}) ([]*genome.Genome, error) {
	if f.Rand == nil {
		return nil, errRandomRequired
	}
	if a.Genome == nil {
		return nil, fmt.Errorf("fine-tune requires a best genome")
	}
	best, prior := a, b
	if prior.Genome != nil && prior.Fitness > best.Fitness {
		best, prior = prior, best
	}
	step := f.Step
	if step <= 0 {
		step = defaultFineTuneStep
	}
	maxSteps := f.MaxSteps
	if maxSteps <= 0 {
		maxSteps = defaultFineTuneMaxSteps
	}

	params := tunableParameters(best.Genome, prior.Genome)
	if len(params) == 0 || batch <= 0 {
		return nil, nil
	}
	taken := make(map[string]struct{}, len(seen)+batch+1)
	for id := range seen {
		taken[id] = struct{}{}
	}
	taken[best.Genome.Identity()] = struct{}{}

	out := make([]*genome.Genome, 0, batch)
	for attempt := 0; attempt < batch*fineTuneAttemptFactor && len(out) < batch; attempt++ {
		candidate := best.Genome.Clone()
		if err := f.perturb(candidate, params, step, maxSteps); err != nil {
			return out, fmt.Errorf("perturb fine-tune candidate: %w", err)
		}
		id := candidate.Identity()
		if _, dup := taken[id]; dup {
			continue
		}
		taken[id] = struct{}{}
		candidate.SetTag(candidate.OutputStart(), "origin", "fine_tune")
		out = append(out, candidate)
	}
	return out, nil
}

// perturb moves up to three parameters of candidate by whole steps, along
// their improvement direction when one is known.
func (f FineTuner) perturb(candidate *genome.Genome, params []parameter, step float64, maxSteps int) error {
	touched := 1 + f.Rand.Intn(min(3, len(params)))
	for _, idx := range f.Rand.Perm(len(params))[:touched] {
		p := params[idx]
		dir := p.direction
		if dir == 0 {
			dir = 1
			if f.Rand.Intn(2) == 0 {
				dir = -1
			}
		}
		delta := dir * step * float64(1+f.Rand.Intn(maxSteps))
		if p.neuron >= 0 {
			if err := candidate.SetBias(p.neuron, quantize(candidate.Neuron(p.neuron).Bias+delta, step)); err != nil {
				return err
			}
			continue
		}
		c, ok := candidate.Lookup(p.from, p.to)
		if !ok {
			return fmt.Errorf("%w: %d->%d", genome.ErrEdgeNotFound, p.from, p.to)
		}
		if err := candidate.SetWeight(p.from, p.to, quantize(c.Weight+delta, step)); err != nil {
			return err
		}
	}
	return nil
}

// tunableParameters lists every weight and every hidden or output bias of
// best, with the direction of change since prior when prior has the same
// lineage id for that parameter.
func tunableParameters(best, prior *genome.Genome) []parameter {
	priorBias := make(map[string]float64)
	priorWeight := make(map[[2]string]float64)
	if prior != nil {
		for _, n := range prior.Neurons() {
			priorBias[n.ID] = n.Bias
		}
		for _, c := range prior.Connections() {
			priorWeight[[2]string{prior.Neuron(c.From).ID, prior.Neuron(c.To).ID}] = c.Weight
		}
	}
	params := make([]parameter, 0, best.ConnectionCount()+best.Len())
	for _, c := range best.Connections() {
		p := parameter{neuron: -1, from: c.From, to: c.To}
		if w, ok := priorWeight[[2]string{best.Neuron(c.From).ID, best.Neuron(c.To).ID}]; ok {
			p.direction = sign(c.Weight - w)
		}
		params = append(params, p)
	}
	for _, i := range best.IndicesOf(genome.KindHidden, genome.KindOutput) {
		n := best.Neuron(i)
		p := parameter{neuron: i}
		if bias, ok := priorBias[n.ID]; ok {
			p.direction = sign(n.Bias - bias)
		}
		params = append(params, p)
	}
	return params
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func quantize(v, step float64) float64 {
	return math.Round(v/step) * step
}
