package genome

import (
	"fmt"
	"sort"

	"neatforge/internal/model"
)

// Export produces the index-addressed flavor. The result shares no memory
// with the genome.
func (g *Genome) Export() model.IndexedGenome {
	out := model.IndexedGenome{
		VersionedRecord: model.CurrentVersion(),
		Inputs:          g.inputs,
		Outputs:         g.outputs,
		Neurons:         make([]model.IndexedNeuron, len(g.neurons)),
		Connections:     make([]model.IndexedConnection, len(g.connections)),
	}
	for i, n := range g.neurons {
		out.Neurons[i] = model.IndexedNeuron{
			ID:         n.ID,
			Kind:       n.Kind.String(),
			Bias:       n.Bias,
			Activation: n.Activation,
			Tags:       copyTags(n.Tags),
		}
	}
	for i, c := range g.connections {
		ic := model.IndexedConnection{
			From:     c.From,
			To:       c.To,
			Weight:   c.Weight,
			Polarity: c.Polarity.String(),
		}
		if c.Gater != NoGater {
			gater := c.Gater
			ic.Gater = &gater
		}
		out.Connections[i] = ic
	}
	return out
}

// Import rebuilds a genome from the index-addressed flavor and validates it.
func Import(src model.IndexedGenome) (*Genome, error) {
	g, err := build(src)
	if err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("import genome: %w", err)
	}
	return g, nil
}

// Assemble is Import for structures put together piecewise: illegal or
// duplicate edges and dangling neurons are repaired away before validation.
func Assemble(src model.IndexedGenome) (*Genome, error) {
	g, err := build(src)
	if err != nil {
		return nil, err
	}
	for _, c := range g.connections {
		if !g.valid(c.From) || !g.valid(c.To) {
			return nil, fmt.Errorf("%w: connection %d->%d", ErrIndexOutOfRange, c.From, c.To)
		}
	}
	g.Repair()
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("assemble genome: %w", err)
	}
	return g, nil
}

func build(src model.IndexedGenome) (*Genome, error) {
	g := &Genome{
		inputs:      src.Inputs,
		outputs:     src.Outputs,
		neurons:     make([]Neuron, len(src.Neurons)),
		connections: make([]Connection, 0, len(src.Connections)),
	}
	for i, n := range src.Neurons {
		kind, err := ParseKind(n.Kind)
		if err != nil {
			return nil, err
		}
		g.neurons[i] = Neuron{
			ID:         n.ID,
			Kind:       kind,
			Bias:       n.Bias,
			Activation: n.Activation,
			Index:      i,
			Tags:       copyTags(n.Tags),
		}
	}
	for _, c := range src.Connections {
		polarity, err := ParsePolarity(c.Polarity)
		if err != nil {
			return nil, err
		}
		gater := NoGater
		if c.Gater != nil {
			gater = *c.Gater
		}
		g.connections = append(g.connections, Connection{
			From:     c.From,
			To:       c.To,
			Weight:   c.Weight,
			Polarity: polarity,
			Gater:    gater,
		})
	}
	sort.SliceStable(g.connections, func(i, j int) bool {
		a, b := g.connections[i], g.connections[j]
		return a.less(b.From, b.To)
	})
	return g, nil
}

// ExportPortable produces the identity-addressed flavor: inputs are implied,
// every other neuron is listed in array order and connections name their
// endpoints by lineage id.
func (g *Genome) ExportPortable() model.PortableGenome {
	out := model.PortableGenome{
		VersionedRecord: model.CurrentVersion(),
		Inputs:          g.inputs,
		Outputs:         g.outputs,
		Neurons:         make([]model.PortableNeuron, 0, len(g.neurons)-g.inputs),
		Connections:     make([]model.PortableConnection, len(g.connections)),
	}
	for _, n := range g.neurons[g.inputs:] {
		out.Neurons = append(out.Neurons, model.PortableNeuron{
			ID:         n.ID,
			Kind:       n.Kind.String(),
			Bias:       n.Bias,
			Activation: n.Activation,
			Tags:       copyTags(n.Tags),
		})
	}
	for i, c := range g.connections {
		pc := model.PortableConnection{
			From:     g.neurons[c.From].ID,
			To:       g.neurons[c.To].ID,
			Weight:   c.Weight,
			Polarity: c.Polarity.String(),
		}
		if c.Gater != NoGater {
			pc.Gater = g.neurons[c.Gater].ID
		}
		out.Connections[i] = pc
	}
	return out
}

// ImportPortable rebuilds a genome from the identity-addressed flavor.
func ImportPortable(src model.PortableGenome) (*Genome, error) {
	indexed := model.IndexedGenome{
		VersionedRecord: src.VersionedRecord,
		Inputs:          src.Inputs,
		Outputs:         src.Outputs,
		Neurons:         make([]model.IndexedNeuron, 0, src.Inputs+len(src.Neurons)),
		Connections:     make([]model.IndexedConnection, 0, len(src.Connections)),
	}
	position := make(map[string]int, src.Inputs+len(src.Neurons))
	for k := 0; k < src.Inputs; k++ {
		id := inputID(k)
		position[id] = k
		indexed.Neurons = append(indexed.Neurons, model.IndexedNeuron{ID: id, Kind: KindInput.String()})
	}
	for _, n := range src.Neurons {
		if _, dup := position[n.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrShapeMismatch, n.ID)
		}
		position[n.ID] = len(indexed.Neurons)
		indexed.Neurons = append(indexed.Neurons, model.IndexedNeuron{
			ID:         n.ID,
			Kind:       n.Kind,
			Bias:       n.Bias,
			Activation: n.Activation,
			Tags:       copyTags(n.Tags),
		})
	}
	resolve := func(id string) (int, error) {
		pos, ok := position[id]
		if !ok {
			return 0, fmt.Errorf("%w: %q", ErrUnknownNeuron, id)
		}
		return pos, nil
	}
	for _, c := range src.Connections {
		from, err := resolve(c.From)
		if err != nil {
			return nil, err
		}
		to, err := resolve(c.To)
		if err != nil {
			return nil, err
		}
		ic := model.IndexedConnection{From: from, To: to, Weight: c.Weight, Polarity: c.Polarity}
		if c.Gater != "" {
			gater, err := resolve(c.Gater)
			if err != nil {
				return nil, err
			}
			ic.Gater = &gater
		}
		indexed.Connections = append(indexed.Connections, ic)
	}
	return Import(indexed)
}

// Clone returns an independent copy. It is equivalent to Import(g.Export())
// without the validation pass.
func (g *Genome) Clone() *Genome {
	clone := &Genome{
		inputs:      g.inputs,
		outputs:     g.outputs,
		neurons:     make([]Neuron, len(g.neurons)),
		connections: append([]Connection(nil), g.connections...),
		identity:    g.identity,
	}
	for i, n := range g.neurons {
		n.Tags = copyTags(n.Tags)
		clone.neurons[i] = n
	}
	return clone
}

func copyTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}
