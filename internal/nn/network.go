package nn

import (
	"fmt"

	"neatforge/internal/model"
)

const (
	kindInput    = "input"
	kindConstant = "constant"
	kindOutput   = "output"

	polarityPositive  = "positive"
	polarityNegative  = "negative"
	polarityCondition = "condition"
)

type compiledEdge struct {
	from     int
	weight   float64
	polarity string
	gater    int
}

type compiledNeuron struct {
	kind        string
	bias        float64
	fn          ActivationFunc
	conditional bool
	inward      []compiledEdge
}

// Network is an executable view of an exported genome. Forward edges read the
// current step's values; self and back edges read the previous step's values,
// so a freshly built network is a pure function of its inputs.
type Network struct {
	inputs  int
	outputs int
	neurons []compiledNeuron
	current []float64
	prev    []float64
}

func NewNetwork(registry *Registry, genome model.IndexedGenome) (*Network, error) {
	neurons := make([]compiledNeuron, len(genome.Neurons))
	for i, neuron := range genome.Neurons {
		compiled := compiledNeuron{kind: neuron.Kind, bias: neuron.Bias}
		if neuron.Kind != kindInput && neuron.Kind != kindConstant {
			act, err := registry.Get(neuron.Activation)
			if err != nil {
				return nil, fmt.Errorf("neuron %d (%s): %w", i, neuron.ID, err)
			}
			compiled.fn = act.Func
			compiled.conditional = act.Conditional
		}
		neurons[i] = compiled
	}
	for _, conn := range genome.Connections {
		if conn.To < 0 || conn.To >= len(neurons) || conn.From < 0 || conn.From >= len(neurons) {
			return nil, fmt.Errorf("connection %d->%d out of range", conn.From, conn.To)
		}
		gater := -1
		if conn.Gater != nil {
			gater = *conn.Gater
		}
		neurons[conn.To].inward = append(neurons[conn.To].inward, compiledEdge{
			from:     conn.From,
			weight:   conn.Weight,
			polarity: conn.Polarity,
			gater:    gater,
		})
	}
	return &Network{
		inputs:  genome.Inputs,
		outputs: genome.Outputs,
		neurons: neurons,
		current: make([]float64, len(neurons)),
		prev:    make([]float64, len(neurons)),
	}, nil
}

// Activate builds a fresh network and runs a single step.
func Activate(registry *Registry, genome model.IndexedGenome, inputs []float64) ([]float64, error) {
	network, err := NewNetwork(registry, genome)
	if err != nil {
		return nil, err
	}
	return network.Step(inputs)
}

func (n *Network) Reset() {
	for i := range n.current {
		n.current[i] = 0
		n.prev[i] = 0
	}
}

// Step propagates one input vector and returns the output block values.
func (n *Network) Step(inputs []float64) ([]float64, error) {
	if len(inputs) != n.inputs {
		return nil, fmt.Errorf("input size mismatch: got=%d want=%d", len(inputs), n.inputs)
	}
	copy(n.prev, n.current)
	for i := range n.neurons {
		neuron := &n.neurons[i]
		switch neuron.kind {
		case kindInput:
			n.current[i] = inputs[i]
			continue
		case kindConstant:
			n.current[i] = neuron.bias
			continue
		}
		if neuron.conditional {
			n.current[i] = n.conditional(i, neuron)
			continue
		}
		sum := neuron.bias
		for _, edge := range neuron.inward {
			sum += n.read(edge.from, i) * edge.weight * n.gain(edge.gater, i)
		}
		n.current[i] = Saturation(neuron.fn(Saturation(sum)))
	}
	out := make([]float64, n.outputs)
	copy(out, n.current[len(n.current)-n.outputs:])
	return out, nil
}

// conditional routes the positive-tagged sum when the condition-tagged sum is
// above zero, the negative-tagged sum otherwise.
func (n *Network) conditional(i int, neuron *compiledNeuron) float64 {
	var condition, positive, negative float64
	for _, edge := range neuron.inward {
		value := n.read(edge.from, i) * edge.weight * n.gain(edge.gater, i)
		switch edge.polarity {
		case polarityCondition:
			condition += value
		case polarityNegative:
			negative += value
		case polarityPositive:
			positive += value
		default:
			positive += value
			negative += value
		}
	}
	if condition > 0 {
		return Saturation(positive + neuron.bias)
	}
	return Saturation(negative + neuron.bias)
}

func (n *Network) read(from, to int) float64 {
	if from < to {
		return n.current[from]
	}
	return n.prev[from]
}

func (n *Network) gain(gater, to int) float64 {
	if gater < 0 || gater >= len(n.current) {
		return 1
	}
	return n.read(gater, to)
}
