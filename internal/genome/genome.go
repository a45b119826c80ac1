package genome

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/google/uuid"
)

// Genome owns a neuron array laid out as [inputs][hidden/constant][outputs]
// and a connection array kept sorted by (from, to) with unique pairs.
//
// Lookup caches and the identity hash are derived state: every edit drops
// them and they are rebuilt lazily on the next read.
type Genome struct {
	inputs      int
	outputs     int
	neurons     []Neuron
	connections []Connection

	inward   [][]int
	outward  map[int][]int
	identity string
}

// NewID returns a fresh lineage id.
func NewID() string {
	return uuid.NewString()
}

// New builds an unconnected genome with the given input and output counts.
func New(inputs, outputs int, outputActivation string) (*Genome, error) {
	if inputs <= 0 || outputs <= 0 {
		return nil, fmt.Errorf("%w: inputs=%d outputs=%d", ErrShapeMismatch, inputs, outputs)
	}
	if outputActivation == "" {
		return nil, fmt.Errorf("output activation is required")
	}
	g := &Genome{
		inputs:  inputs,
		outputs: outputs,
		neurons: make([]Neuron, 0, inputs+outputs),
	}
	for k := 0; k < inputs; k++ {
		g.neurons = append(g.neurons, Neuron{ID: inputID(k), Kind: KindInput, Index: k})
	}
	for k := 0; k < outputs; k++ {
		g.neurons = append(g.neurons, Neuron{
			ID:         NewID(),
			Kind:       KindOutput,
			Activation: outputActivation,
			Index:      inputs + k,
		})
	}
	return g, nil
}

// NewMinimal builds a genome with every input wired directly to every output
// using uniform random weights in [-1, 1].
func NewMinimal(rng *rand.Rand, inputs, outputs int, outputActivation string) (*Genome, error) {
	g, err := New(inputs, outputs, outputActivation)
	if err != nil {
		return nil, err
	}
	for i := 0; i < inputs; i++ {
		for o := 0; o < outputs; o++ {
			if err := g.Connect(i, inputs+o, rng.Float64()*2-1, PolarityNone); err != nil {
				return nil, err
			}
		}
	}
	return g, nil
}

func (g *Genome) Inputs() int  { return g.inputs }
func (g *Genome) Outputs() int { return g.outputs }
func (g *Genome) Len() int     { return len(g.neurons) }

// InteriorStart is the first position after the input block.
func (g *Genome) InteriorStart() int { return g.inputs }

// OutputStart is the first position of the output block.
func (g *Genome) OutputStart() int { return len(g.neurons) - g.outputs }

func (g *Genome) ConnectionCount() int { return len(g.connections) }

func (g *Genome) Neuron(i int) Neuron {
	return g.neurons[i]
}

// Neurons returns a copy of the neuron array.
func (g *Genome) Neurons() []Neuron {
	return append([]Neuron(nil), g.neurons...)
}

// Connections returns a copy of the sorted connection array.
func (g *Genome) Connections() []Connection {
	return append([]Connection(nil), g.connections...)
}

func (g *Genome) Connection(i int) Connection {
	return g.connections[i]
}

func (g *Genome) valid(i int) bool {
	return i >= 0 && i < len(g.neurons)
}

// IndicesOf returns positions of neurons with any of the given kinds.
func (g *Genome) IndicesOf(kinds ...Kind) []int {
	out := make([]int, 0, len(g.neurons))
	for i, n := range g.neurons {
		for _, k := range kinds {
			if n.Kind == k {
				out = append(out, i)
				break
			}
		}
	}
	return out
}

// IndexOfID returns the position of the neuron with the given lineage id.
func (g *Genome) IndexOfID(id string) (int, bool) {
	for i, n := range g.neurons {
		if n.ID == id {
			return i, true
		}
	}
	return -1, false
}

// LegalEdge reports whether from->to may exist: nothing targets an input or a
// constant, and an output only feeds the output block.
func (g *Genome) LegalEdge(from, to int) bool {
	if !g.valid(from) || !g.valid(to) {
		return false
	}
	dst := g.neurons[to].Kind
	if dst == KindInput || dst == KindConstant {
		return false
	}
	if g.neurons[from].Kind == KindOutput && dst != KindOutput {
		return false
	}
	return true
}

func (g *Genome) search(from, to int) int {
	return sort.Search(len(g.connections), func(i int) bool {
		return !g.connections[i].less(from, to)
	})
}

func (g *Genome) find(from, to int) (int, bool) {
	pos := g.search(from, to)
	if pos < len(g.connections) && g.connections[pos].From == from && g.connections[pos].To == to {
		return pos, true
	}
	return pos, false
}

// HasConnection reports whether the pair exists.
func (g *Genome) HasConnection(from, to int) bool {
	_, ok := g.find(from, to)
	return ok
}

// Lookup returns the connection for the pair.
func (g *Genome) Lookup(from, to int) (Connection, bool) {
	pos, ok := g.find(from, to)
	if !ok {
		return Connection{}, false
	}
	return g.connections[pos], true
}

// Connect inserts a connection keeping the array sorted.
func (g *Genome) Connect(from, to int, weight float64, polarity Polarity) error {
	if !g.valid(from) || !g.valid(to) {
		return fmt.Errorf("%w: %d->%d (len=%d)", ErrIndexOutOfRange, from, to, len(g.neurons))
	}
	if !g.LegalEdge(from, to) {
		return fmt.Errorf("%w: %d(%s)->%d(%s)", ErrIllegalEdge, from, g.neurons[from].Kind, to, g.neurons[to].Kind)
	}
	pos, ok := g.find(from, to)
	if ok {
		return fmt.Errorf("%w: %d->%d", ErrDuplicateEdge, from, to)
	}
	g.connections = append(g.connections, Connection{})
	copy(g.connections[pos+1:], g.connections[pos:])
	g.connections[pos] = Connection{From: from, To: to, Weight: weight, Polarity: polarity, Gater: NoGater}
	g.touchStructure()
	return nil
}

func (g *Genome) Disconnect(from, to int) error {
	pos, ok := g.find(from, to)
	if !ok {
		return fmt.Errorf("%w: %d->%d", ErrEdgeNotFound, from, to)
	}
	g.connections = append(g.connections[:pos], g.connections[pos+1:]...)
	g.touchStructure()
	return nil
}

func (g *Genome) SetWeight(from, to int, weight float64) error {
	pos, ok := g.find(from, to)
	if !ok {
		return fmt.Errorf("%w: %d->%d", ErrEdgeNotFound, from, to)
	}
	g.connections[pos].Weight = weight
	g.identity = ""
	return nil
}

func (g *Genome) SetPolarity(from, to int, polarity Polarity) error {
	pos, ok := g.find(from, to)
	if !ok {
		return fmt.Errorf("%w: %d->%d", ErrEdgeNotFound, from, to)
	}
	g.connections[pos].Polarity = polarity
	g.identity = ""
	return nil
}

// SetGater attaches gater to the connection; NoGater removes it.
func (g *Genome) SetGater(from, to, gater int) error {
	pos, ok := g.find(from, to)
	if !ok {
		return fmt.Errorf("%w: %d->%d", ErrEdgeNotFound, from, to)
	}
	if gater != NoGater && !g.valid(gater) {
		return fmt.Errorf("%w: gater %d", ErrIndexOutOfRange, gater)
	}
	g.connections[pos].Gater = gater
	g.identity = ""
	return nil
}

func (g *Genome) SetBias(i int, bias float64) error {
	if !g.valid(i) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	if g.neurons[i].Kind == KindInput {
		return fmt.Errorf("%w: input %d has no bias", ErrIllegalPosition, i)
	}
	g.neurons[i].Bias = bias
	g.identity = ""
	return nil
}

func (g *Genome) SetActivation(i int, activation string) error {
	if !g.valid(i) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	switch g.neurons[i].Kind {
	case KindInput, KindConstant:
		return fmt.Errorf("%w: %s %d has no activation", ErrIllegalPosition, g.neurons[i].Kind, i)
	}
	g.neurons[i].Activation = activation
	g.identity = ""
	return nil
}

// SetID rewrites a neuron's lineage id. Only crossover alignment uses it.
func (g *Genome) SetID(i int, id string) error {
	if !g.valid(i) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	g.neurons[i].ID = id
	g.identity = ""
	return nil
}

// SetTag records volatile bookkeeping that does not affect identity.
func (g *Genome) SetTag(i int, key, value string) {
	if g.neurons[i].Tags == nil {
		g.neurons[i].Tags = make(map[string]string)
	}
	g.neurons[i].Tags[key] = value
}

// SwapParameters exchanges bias and activation of two neurons.
func (g *Genome) SwapParameters(a, b int) error {
	if !g.valid(a) || !g.valid(b) {
		return fmt.Errorf("%w: %d,%d", ErrIndexOutOfRange, a, b)
	}
	na, nb := &g.neurons[a], &g.neurons[b]
	na.Bias, nb.Bias = nb.Bias, na.Bias
	na.Activation, nb.Activation = nb.Activation, na.Activation
	g.identity = ""
	return nil
}

// InsertNeuron places a hidden or constant neuron at pos, shifting every later
// neuron and all connection endpoints and gaters that reference them.
func (g *Genome) InsertNeuron(pos int, n Neuron) error {
	if n.Kind != KindHidden && n.Kind != KindConstant {
		return fmt.Errorf("%w: cannot insert %s", ErrIllegalPosition, n.Kind)
	}
	if pos < g.inputs || pos > g.OutputStart() {
		return fmt.Errorf("%w: %d not in [%d,%d]", ErrIllegalPosition, pos, g.inputs, g.OutputStart())
	}
	if n.ID == "" {
		n.ID = NewID()
	}
	g.neurons = append(g.neurons, Neuron{})
	copy(g.neurons[pos+1:], g.neurons[pos:])
	g.neurons[pos] = n
	g.renumber()
	shift := func(i int) int {
		if i >= pos {
			return i + 1
		}
		return i
	}
	for i := range g.connections {
		c := &g.connections[i]
		c.From = shift(c.From)
		c.To = shift(c.To)
		if c.Gater != NoGater {
			c.Gater = shift(c.Gater)
		}
	}
	g.touchStructure()
	return nil
}

// RemoveNeuron deletes a hidden or constant neuron with all its connections.
// Gaters pointing at it are cleared.
func (g *Genome) RemoveNeuron(i int) error {
	if !g.valid(i) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	if k := g.neurons[i].Kind; k != KindHidden && k != KindConstant {
		return fmt.Errorf("%w: cannot remove %s %d", ErrIllegalPosition, k, i)
	}
	g.removeNeuron(i)
	g.touchStructure()
	return nil
}

func (g *Genome) removeNeuron(i int) {
	g.neurons = append(g.neurons[:i], g.neurons[i+1:]...)
	g.renumber()
	kept := g.connections[:0]
	for _, c := range g.connections {
		if c.From == i || c.To == i {
			continue
		}
		if c.From > i {
			c.From--
		}
		if c.To > i {
			c.To--
		}
		switch {
		case c.Gater == i:
			c.Gater = NoGater
		case c.Gater > i:
			c.Gater--
		}
		kept = append(kept, c)
	}
	g.connections = kept
}

func (g *Genome) renumber() {
	for i := range g.neurons {
		g.neurons[i].Index = i
	}
}

func (g *Genome) touchStructure() {
	g.inward = nil
	g.outward = nil
	g.identity = ""
}

func (g *Genome) buildInward() {
	g.inward = make([][]int, len(g.neurons))
	for pos, c := range g.connections {
		if c.IsSelf() {
			continue
		}
		g.inward[c.To] = append(g.inward[c.To], pos)
	}
}

func (g *Genome) outwardPositions(i int) []int {
	if g.outward == nil {
		g.outward = make(map[int][]int)
	}
	if cached, ok := g.outward[i]; ok {
		return cached
	}
	positions := make([]int, 0, 4)
	start := sort.Search(len(g.connections), func(k int) bool {
		return g.connections[k].From >= i
	})
	for k := start; k < len(g.connections) && g.connections[k].From == i; k++ {
		if g.connections[k].To == i {
			continue
		}
		positions = append(positions, k)
	}
	g.outward[i] = positions
	return positions
}

// Inward lists connections ending at i, self-loop excluded.
func (g *Genome) Inward(i int) []Connection {
	if g.inward == nil {
		g.buildInward()
	}
	out := make([]Connection, 0, len(g.inward[i]))
	for _, pos := range g.inward[i] {
		out = append(out, g.connections[pos])
	}
	return out
}

// Outward lists connections leaving i, self-loop excluded.
func (g *Genome) Outward(i int) []Connection {
	positions := g.outwardPositions(i)
	out := make([]Connection, 0, len(positions))
	for _, pos := range positions {
		out = append(out, g.connections[pos])
	}
	return out
}

// Self returns the self-loop of i, if any.
func (g *Genome) Self(i int) (Connection, bool) {
	return g.Lookup(i, i)
}

func (g *Genome) InwardCount(i int) int {
	if g.inward == nil {
		g.buildInward()
	}
	return len(g.inward[i])
}

func (g *Genome) OutwardCount(i int) int {
	return len(g.outwardPositions(i))
}

// ForwardInwardCount counts inward edges from earlier positions.
func (g *Genome) ForwardInwardCount(i int) int {
	n := 0
	for _, c := range g.Inward(i) {
		if c.IsForward() {
			n++
		}
	}
	return n
}

// ForwardOutwardCount counts outward edges to later positions.
func (g *Genome) ForwardOutwardCount(i int) int {
	n := 0
	for _, c := range g.Outward(i) {
		if c.IsForward() {
			n++
		}
	}
	return n
}
