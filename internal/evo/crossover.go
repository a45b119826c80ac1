package evo

import (
	"fmt"
	"math/rand"

	"neatforge/internal/genome"
	"neatforge/internal/model"
)

// Parent is a breeding candidate with its score.
type Parent struct {
	Genome  *genome.Genome
	Fitness float64
}

// slot records where a child position came from.
type slot struct {
	parent *genome.Genome
	other  *genome.Genome
	old    int
	alt    int
}

// Breed recombines two parents with equal input and output counts into a new
// child. Child neurons keep the lineage id, bias and activation of the parent
// neuron they were drawn from, and their inward edges are replayed at the new
// positions. The result is either a fully valid genome or ErrNoViableChild.
func Breed(rng *rand.Rand, mother, father Parent) (*genome.Genome, error) {
	if rng == nil {
		return nil, errRandomRequired
	}
	a, b := mother.Genome, father.Genome
	if a == nil || b == nil {
		return nil, fmt.Errorf("%w: missing parent", ErrIncompatibleParents)
	}
	if a.Inputs() != b.Inputs() || a.Outputs() != b.Outputs() {
		return nil, fmt.Errorf("%w: %d/%d vs %d/%d", ErrIncompatibleParents, a.Inputs(), a.Outputs(), b.Inputs(), b.Outputs())
	}
	inputs, outputs := a.Inputs(), a.Outputs()
	size := childSize(rng, mother, father)
	outputStart := size - outputs

	slots := make([]slot, size)
	for p := 0; p < inputs; p++ {
		slots[p] = slot{parent: a, other: b, old: p, alt: p}
	}
	for p := inputs; p < outputStart; p++ {
		first, second := a, b
		if rng.Intn(2) == 1 {
			first, second = b, a
		}
		if p >= first.OutputStart() {
			first, second = second, first
		}
		slots[p] = slot{parent: first, other: second, old: p, alt: p}
	}
	for k := 0; k < outputs; k++ {
		first, second := a, b
		if rng.Intn(2) == 1 {
			first, second = b, a
		}
		slots[outputStart+k] = slot{parent: first, other: second, old: first.OutputStart() + k, alt: second.OutputStart() + k}
	}

	child := model.IndexedGenome{
		VersionedRecord: model.CurrentVersion(),
		Inputs:          inputs,
		Outputs:         outputs,
		Neurons:         make([]model.IndexedNeuron, size),
	}
	used := make(map[string]struct{}, size)
	for p, s := range slots {
		n := s.parent.Neuron(s.old)
		id := n.ID
		if _, dup := used[id]; dup {
			id = alternateID(s, used)
		}
		used[id] = struct{}{}
		child.Neurons[p] = model.IndexedNeuron{
			ID:         id,
			Kind:       n.Kind.String(),
			Bias:       n.Bias,
			Activation: n.Activation,
		}
	}

	seen := make(map[[2]int]struct{})
	for p, s := range slots {
		if s.parent.Neuron(s.old).Kind == genome.KindConstant || p < inputs {
			continue
		}
		offset := p - s.old
		inward := s.parent.Inward(s.old)
		if self, ok := s.parent.Self(s.old); ok {
			inward = append(inward, self)
		}
		for _, c := range inward {
			from, ok := remapSource(s.parent, c.From, s.old, p, offset, inputs, outputStart)
			if !ok || !sameClass(c.From, c.To, from, p) {
				continue
			}
			key := [2]int{from, p}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			ic := model.IndexedConnection{
				From:     from,
				To:       p,
				Weight:   c.Weight,
				Polarity: c.Polarity.String(),
			}
			if c.Gater != genome.NoGater {
				gater := max(0, min(c.Gater+offset, size-1))
				ic.Gater = &gater
			}
			child.Connections = append(child.Connections, ic)
		}
	}

	g, err := genome.Assemble(child)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoViableChild, err)
	}
	return g, nil
}

// childSize takes the longer parent when one strictly outperforms the other,
// and a random length between both otherwise.
func childSize(rng *rand.Rand, mother, father Parent) int {
	la, lb := mother.Genome.Len(), father.Genome.Len()
	lo, hi := min(la, lb), max(la, lb)
	if mother.Fitness != father.Fitness {
		return hi
	}
	return lo + rng.Intn(hi-lo+1)
}

func alternateID(s slot, used map[string]struct{}) string {
	if s.alt < s.other.Len() {
		n := s.other.Neuron(s.alt)
		if _, dup := used[n.ID]; !dup && n.Kind != genome.KindInput {
			return n.ID
		}
	}
	return genome.NewID()
}

// remapSource maps an inward edge source of parent position old onto the
// child whose destination moved to p. Inputs keep their position, outputs
// follow the output block, and interior sources shift with the destination,
// clamped to the child's interior.
func remapSource(parent *genome.Genome, from, old, p, offset, inputs, outputStart int) (int, bool) {
	switch {
	case from == old:
		return p, true
	case from < inputs:
		return from, true
	case from >= parent.OutputStart():
		return outputStart + (from - parent.OutputStart()), true
	}
	if outputStart <= inputs {
		return 0, false
	}
	return max(inputs, min(from+offset, outputStart-1)), true
}

func sameClass(oldFrom, oldTo, newFrom, newTo int) bool {
	switch {
	case oldFrom == oldTo:
		return newFrom == newTo
	case oldFrom < oldTo:
		return newFrom < newTo
	default:
		return newFrom > newTo
	}
}
