package genome

import (
	"fmt"

	"neatforge/internal/nn"
)

// Activate runs one deterministic forward pass on an exported copy.
func (g *Genome) Activate(registry *nn.Registry, inputs []float64) ([]float64, error) {
	return nn.Activate(registry, g.Export(), inputs)
}

// Compact folds hidden neurons with a linear activation into their
// neighbours: every source->h->target path becomes a direct source->target
// edge weighted by the product, and h's bias moves into the targets. The
// network function is unchanged. Returns how many neurons were removed. A
// fold that cannot be applied stops compaction and leaves g as it was after
// the last successful fold.
func (g *Genome) Compact(registry *nn.Registry) (int, error) {
	removed := 0
	var err error
	for {
		plan, ok := g.nextCompaction(registry)
		if !ok {
			break
		}
		trial := g.Clone()
		if err = trial.applyCompaction(plan); err != nil {
			err = fmt.Errorf("fold neuron %d: %w", plan.victim, err)
			break
		}
		*g = *trial
		removed++
	}
	if removed > 0 {
		g.Repair()
	}
	return removed, err
}

type foldEdge struct {
	from, to int
	weight   float64
	polarity Polarity
}

type compaction struct {
	victim  int
	edges   []foldEdge
	biasAdd map[int]float64
}

func (g *Genome) gates(i int) bool {
	for _, c := range g.connections {
		if c.Gater == i {
			return true
		}
	}
	return false
}

func (g *Genome) nextCompaction(registry *nn.Registry) (compaction, bool) {
	for h, n := range g.neurons {
		if n.Kind != KindHidden || !registry.IsLinear(n.Activation) {
			continue
		}
		if plan, ok := g.planCompaction(registry, h); ok {
			return plan, true
		}
	}
	return compaction{}, false
}

func (g *Genome) planCompaction(registry *nn.Registry, h int) (compaction, bool) {
	if _, self := g.Self(h); self || g.gates(h) {
		return compaction{}, false
	}
	in := g.Inward(h)
	out := g.Outward(h)
	if len(in) == 0 || len(out) == 0 {
		return compaction{}, false
	}
	for _, c := range in {
		if !c.IsForward() || c.Gater != NoGater {
			return compaction{}, false
		}
	}
	for _, c := range out {
		if !c.IsForward() || c.Gater != NoGater {
			return compaction{}, false
		}
		if registry.IsConditional(g.neurons[c.To].Activation) {
			return compaction{}, false
		}
	}

	plan := compaction{victim: h, biasAdd: make(map[int]float64, len(out))}
	merged := make(map[[2]int]int)
	bias := g.neurons[h].Bias
	for _, o := range out {
		plan.biasAdd[o.To] += o.Weight * bias
		for _, i := range in {
			key := [2]int{i.From, o.To}
			if existing, ok := g.Lookup(i.From, o.To); ok {
				if existing.Polarity != o.Polarity || existing.Gater != NoGater {
					return compaction{}, false
				}
			}
			if at, ok := merged[key]; ok {
				plan.edges[at].weight += i.Weight * o.Weight
				continue
			}
			merged[key] = len(plan.edges)
			plan.edges = append(plan.edges, foldEdge{
				from:     i.From,
				to:       o.To,
				weight:   i.Weight * o.Weight,
				polarity: o.Polarity,
			})
		}
	}
	return plan, true
}

func (g *Genome) applyCompaction(plan compaction) error {
	shift := func(i int) int {
		if i > plan.victim {
			return i - 1
		}
		return i
	}
	g.removeNeuron(plan.victim)
	g.touchStructure()
	for target, delta := range plan.biasAdd {
		g.neurons[shift(target)].Bias += delta
	}
	for _, e := range plan.edges {
		from, to := shift(e.from), shift(e.to)
		if existing, ok := g.Lookup(from, to); ok {
			if err := g.SetWeight(from, to, existing.Weight+e.weight); err != nil {
				return err
			}
			continue
		}
		if err := g.Connect(from, to, e.weight, e.polarity); err != nil {
			return err
		}
	}
	return nil
}
