package genome

import (
	"fmt"
	"math"
	"sort"
)

// Repair restores the structural invariants after an edit: it drops
// connections with invalid endpoints, re-sorts and dedupes the connection
// array, clears invalid gaters and removes dangling neurons until none are
// left (removing one neuron may strand another). The identity hash is dropped
// only when the structure actually changed, so Repair on a valid genome is a
// no-op.
func (g *Genome) Repair() {
	before := g.snapshot()

	g.renumber()
	kept := g.connections[:0]
	for _, c := range g.connections {
		if !g.LegalEdge(c.From, c.To) {
			continue
		}
		if c.Gater != NoGater && !g.valid(c.Gater) {
			c.Gater = NoGater
		}
		kept = append(kept, c)
	}
	g.connections = kept
	sort.SliceStable(g.connections, func(i, j int) bool {
		a, b := g.connections[i], g.connections[j]
		return a.less(b.From, b.To)
	})
	unique := g.connections[:0]
	for i, c := range g.connections {
		if i > 0 && c.From == g.connections[i-1].From && c.To == g.connections[i-1].To {
			continue
		}
		unique = append(unique, c)
	}
	g.connections = unique
	g.inward = nil
	g.outward = nil

	for {
		victim := g.firstDangling()
		if victim < 0 {
			break
		}
		g.removeNeuron(victim)
		g.inward = nil
		g.outward = nil
	}

	if !before.equal(g.snapshot()) {
		g.touchStructure()
	}
}

func (g *Genome) firstDangling() int {
	for i, n := range g.neurons {
		if g.dangling(i, n.Kind) {
			return i
		}
	}
	return -1
}

func (g *Genome) dangling(i int, kind Kind) bool {
	switch kind {
	case KindHidden:
		return g.InwardCount(i) == 0 || g.OutwardCount(i) == 0
	case KindConstant:
		return g.OutwardCount(i) == 0
	default:
		return false
	}
}

// Validate reports the first invariant violation. Every returned error is
// fatal.
func (g *Genome) Validate() error {
	if g.inputs <= 0 || g.outputs <= 0 || len(g.neurons) < g.inputs+g.outputs {
		return fmt.Errorf("%w: inputs=%d outputs=%d neurons=%d", ErrShapeMismatch, g.inputs, g.outputs, len(g.neurons))
	}
	ids := make(map[string]struct{}, len(g.neurons))
	outputStart := g.OutputStart()
	for i, n := range g.neurons {
		if n.Index != i {
			return fmt.Errorf("%w: neuron at %d stores index %d", ErrIllegalPosition, i, n.Index)
		}
		if _, dup := ids[n.ID]; dup || n.ID == "" {
			return fmt.Errorf("%w: duplicate or empty id %q at %d", ErrShapeMismatch, n.ID, i)
		}
		ids[n.ID] = struct{}{}
		switch {
		case i < g.inputs:
			if n.Kind != KindInput {
				return fmt.Errorf("%w: %s in input block at %d", ErrIllegalPosition, n.Kind, i)
			}
		case i >= outputStart:
			if n.Kind != KindOutput {
				return fmt.Errorf("%w: %s in output block at %d", ErrIllegalPosition, n.Kind, i)
			}
		default:
			if n.Kind != KindHidden && n.Kind != KindConstant {
				return fmt.Errorf("%w: %s in interior at %d", ErrIllegalPosition, n.Kind, i)
			}
		}
		if math.IsNaN(n.Bias) || math.IsInf(n.Bias, 0) {
			return fmt.Errorf("%w: bias of neuron %d", ErrNonFinite, i)
		}
		switch n.Kind {
		case KindHidden, KindOutput:
			if n.Activation == "" {
				return fmt.Errorf("%w: neuron %d has no activation", ErrShapeMismatch, i)
			}
		case KindConstant:
			if n.Activation != "" {
				return fmt.Errorf("%w: constant %d has an activation", ErrShapeMismatch, i)
			}
		}
	}
	for pos, c := range g.connections {
		if !g.valid(c.From) || !g.valid(c.To) {
			return fmt.Errorf("%w: connection %d->%d", ErrIndexOutOfRange, c.From, c.To)
		}
		if !g.LegalEdge(c.From, c.To) {
			return fmt.Errorf("%w: connection %d->%d", ErrIllegalEdge, c.From, c.To)
		}
		if c.Gater != NoGater && !g.valid(c.Gater) {
			return fmt.Errorf("%w: gater %d on %d->%d", ErrIndexOutOfRange, c.Gater, c.From, c.To)
		}
		if math.IsNaN(c.Weight) || math.IsInf(c.Weight, 0) {
			return fmt.Errorf("%w: weight of %d->%d", ErrNonFinite, c.From, c.To)
		}
		if pos > 0 && !g.connections[pos-1].less(c.From, c.To) {
			return fmt.Errorf("%w: %d->%d after %d->%d", ErrUnsorted, c.From, c.To, g.connections[pos-1].From, g.connections[pos-1].To)
		}
	}
	for i, n := range g.neurons {
		if g.dangling(i, n.Kind) {
			return fmt.Errorf("%w: %s %d (in=%d out=%d)", ErrDanglingNeuron, n.Kind, i, g.InwardCount(i), g.OutwardCount(i))
		}
	}
	return nil
}

type neuronState struct {
	id         string
	kind       Kind
	bias       float64
	activation string
}

type structureSnapshot struct {
	neurons     []neuronState
	connections []Connection
}

func (g *Genome) snapshot() structureSnapshot {
	s := structureSnapshot{
		neurons:     make([]neuronState, len(g.neurons)),
		connections: append([]Connection(nil), g.connections...),
	}
	for i, n := range g.neurons {
		s.neurons[i] = neuronState{id: n.ID, kind: n.Kind, bias: n.Bias, activation: n.Activation}
	}
	return s
}

func (s structureSnapshot) equal(o structureSnapshot) bool {
	if len(s.neurons) != len(o.neurons) || len(s.connections) != len(o.connections) {
		return false
	}
	for i := range s.neurons {
		if s.neurons[i] != o.neurons[i] {
			return false
		}
	}
	for i := range s.connections {
		if s.connections[i] != o.connections[i] {
			return false
		}
	}
	return true
}
