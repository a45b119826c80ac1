package evo

import (
	"context"
	"errors"
	"math"
	"math/rand"

	"neatforge/internal/genome"
	"neatforge/internal/nn"
)

// Mutation perturbs a genome in place. Focus optionally restricts target
// selection to the listed neuron positions; when nothing eligible touches the
// focus the operator falls back to an unrestricted choice. A false return
// with a nil error means no eligible target existed and the genome is
// untouched.
type Mutation interface {
	Name() string
	Apply(ctx context.Context, g *genome.Genome, focus []int) (bool, error)
}

const (
	defaultBiasDelta = 1.0
	newParameterSpan = 1.0
)

var errRandomRequired = errors.New("random source is required")

type focusSet map[int]struct{}

func newFocusSet(focus []int) focusSet {
	if len(focus) == 0 {
		return nil
	}
	set := make(focusSet, len(focus))
	for _, i := range focus {
		set[i] = struct{}{}
	}
	return set
}

func (f focusSet) has(i int) bool {
	_, ok := f[i]
	return ok
}

// preferFocused narrows candidates to those touching the focus, or returns
// them unchanged when none do.
func preferFocused[T any](candidates []T, focus focusSet, touches func(T) []int) []T {
	if len(focus) == 0 || len(candidates) == 0 {
		return candidates
	}
	focused := make([]T, 0, len(candidates))
	for _, c := range candidates {
		for _, i := range touches(c) {
			if focus.has(i) {
				focused = append(focused, c)
				break
			}
		}
	}
	if len(focused) == 0 {
		return candidates
	}
	return focused
}

func pickOne[T any](rng *rand.Rand, candidates []T) T {
	return candidates[rng.Intn(len(candidates))]
}

func uniform(rng *rand.Rand, span float64) float64 {
	return (rng.Float64()*2 - 1) * span
}

func neuronTouches(i int) []int { return []int{i} }

func edgeTouches(c genome.Connection) []int { return []int{c.From, c.To} }

type edge struct{ from, to int }

func pairTouches(e edge) []int { return []int{e.from, e.to} }

func isKind(g *genome.Genome, i int, kinds ...genome.Kind) bool {
	k := g.Neuron(i).Kind
	for _, want := range kinds {
		if k == want {
			return true
		}
	}
	return false
}

func finish(g *genome.Genome) (bool, error) {
	g.InvalidateIdentity()
	g.Repair()
	return true, nil
}

// AddNeuron inserts a hidden neuron between a random legal source and a
// random later target, wiring one edge in and one edge out.
type AddNeuron struct {
	Rand     *rand.Rand
	Registry *nn.Registry
}

func (o *AddNeuron) Name() string { return "add_neuron" }

func (o *AddNeuron) Apply(_ context.Context, g *genome.Genome, focus []int) (bool, error) {
	if o == nil || o.Rand == nil {
		return false, errRandomRequired
	}
	fs := newFocusSet(focus)
	sources := make([]int, 0, g.Len())
	for i := 0; i < g.Len(); i++ {
		if !isKind(g, i, genome.KindOutput) {
			sources = append(sources, i)
		}
	}
	src := pickOne(o.Rand, preferFocused(sources, fs, neuronTouches))
	targets := make([]int, 0, g.Len())
	for i := src + 1; i < g.Len(); i++ {
		if isKind(g, i, genome.KindHidden, genome.KindOutput) {
			targets = append(targets, i)
		}
	}
	if len(targets) == 0 {
		return false, nil
	}
	dst := pickOne(o.Rand, preferFocused(targets, fs, neuronTouches))

	lo := max(src+1, g.InteriorStart())
	hi := min(dst, g.OutputStart())
	pos := lo + o.Rand.Intn(hi-lo+1)
	neuron := genome.Neuron{
		Kind:       genome.KindHidden,
		Bias:       uniform(o.Rand, newParameterSpan),
		Activation: o.Registry.Sample(o.Rand),
	}
	if err := g.InsertNeuron(pos, neuron); err != nil {
		return false, err
	}
	if err := g.Connect(src, pos, uniform(o.Rand, newParameterSpan), genome.PolarityNone); err != nil {
		return false, err
	}
	if err := g.Connect(pos, dst+1, uniform(o.Rand, newParameterSpan), genome.PolarityNone); err != nil {
		return false, err
	}
	return finish(g)
}

// SubNeuron removes a random hidden neuron. Targets left without any inward
// edge are reconnected to one of the removed neuron's sources.
type SubNeuron struct {
	Rand *rand.Rand
}

func (o *SubNeuron) Name() string { return "sub_neuron" }

func (o *SubNeuron) Apply(_ context.Context, g *genome.Genome, focus []int) (bool, error) {
	if o == nil || o.Rand == nil {
		return false, errRandomRequired
	}
	hidden := g.IndicesOf(genome.KindHidden)
	if len(hidden) == 0 {
		return false, nil
	}
	victim := pickOne(o.Rand, preferFocused(hidden, newFocusSet(focus), neuronTouches))
	shift := func(i int) int {
		if i > victim {
			return i - 1
		}
		return i
	}
	var sources []int
	for _, c := range g.Inward(victim) {
		if c.IsForward() {
			sources = append(sources, shift(c.From))
		}
	}
	outward := g.Outward(victim)
	if err := g.RemoveNeuron(victim); err != nil {
		return false, err
	}
	for _, c := range outward {
		target := shift(c.To)
		if !c.IsForward() || g.InwardCount(target) > 0 || len(sources) == 0 {
			continue
		}
		src := pickOne(o.Rand, sources)
		if src < target && g.LegalEdge(src, target) && !g.HasConnection(src, target) {
			if err := g.Connect(src, target, c.Weight, c.Polarity); err != nil {
				return false, err
			}
		}
	}
	return finish(g)
}

// AddConnection adds a feed-forward edge between two unconnected neurons.
type AddConnection struct {
	Rand *rand.Rand
}

func (o *AddConnection) Name() string { return "add_connection" }

func (o *AddConnection) Apply(_ context.Context, g *genome.Genome, focus []int) (bool, error) {
	if o == nil || o.Rand == nil {
		return false, errRandomRequired
	}
	var candidates []edge
	for from := 0; from < g.Len(); from++ {
		if isKind(g, from, genome.KindOutput) {
			continue
		}
		for to := max(from+1, g.InteriorStart()); to < g.Len(); to++ {
			if g.LegalEdge(from, to) && !g.HasConnection(from, to) {
				candidates = append(candidates, edge{from, to})
			}
		}
	}
	if len(candidates) == 0 {
		return false, nil
	}
	e := pickOne(o.Rand, preferFocused(candidates, newFocusSet(focus), pairTouches))
	if err := g.Connect(e.from, e.to, uniform(o.Rand, newParameterSpan), genome.PolarityNone); err != nil {
		return false, err
	}
	return finish(g)
}

// strands reports whether dropping c would leave a hidden endpoint without
// its last inward or outward edge. Inputs, outputs and constants are exempt.
func strands(g *genome.Genome, c genome.Connection) bool {
	if isKind(g, c.From, genome.KindHidden) && g.OutwardCount(c.From) <= 1 {
		return true
	}
	if isKind(g, c.To, genome.KindHidden) && g.InwardCount(c.To) <= 1 {
		return true
	}
	return false
}

// SubConnection removes a feed-forward edge whose removal strands no neuron.
type SubConnection struct {
	Rand *rand.Rand
}

func (o *SubConnection) Name() string { return "sub_connection" }

func (o *SubConnection) Apply(_ context.Context, g *genome.Genome, focus []int) (bool, error) {
	if o == nil || o.Rand == nil {
		return false, errRandomRequired
	}
	var candidates []genome.Connection
	for _, c := range g.Connections() {
		if c.IsForward() && !strands(g, c) {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return false, nil
	}
	c := pickOne(o.Rand, preferFocused(candidates, newFocusSet(focus), edgeTouches))
	if err := g.Disconnect(c.From, c.To); err != nil {
		return false, err
	}
	return finish(g)
}

// AddSelfConnection adds a self-loop to a hidden or output neuron.
type AddSelfConnection struct {
	Rand *rand.Rand
}

func (o *AddSelfConnection) Name() string { return "add_self_connection" }

func (o *AddSelfConnection) Apply(_ context.Context, g *genome.Genome, focus []int) (bool, error) {
	if o == nil || o.Rand == nil {
		return false, errRandomRequired
	}
	var candidates []int
	for _, i := range g.IndicesOf(genome.KindHidden, genome.KindOutput) {
		if _, ok := g.Self(i); !ok {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return false, nil
	}
	i := pickOne(o.Rand, preferFocused(candidates, newFocusSet(focus), neuronTouches))
	if err := g.Connect(i, i, uniform(o.Rand, newParameterSpan), genome.PolarityNone); err != nil {
		return false, err
	}
	return finish(g)
}

// SubSelfConnection removes a random self-loop.
type SubSelfConnection struct {
	Rand *rand.Rand
}

func (o *SubSelfConnection) Name() string { return "sub_self_connection" }

func (o *SubSelfConnection) Apply(_ context.Context, g *genome.Genome, focus []int) (bool, error) {
	if o == nil || o.Rand == nil {
		return false, errRandomRequired
	}
	var candidates []int
	for _, c := range g.Connections() {
		if c.IsSelf() {
			candidates = append(candidates, c.From)
		}
	}
	if len(candidates) == 0 {
		return false, nil
	}
	i := pickOne(o.Rand, preferFocused(candidates, newFocusSet(focus), neuronTouches))
	if err := g.Disconnect(i, i); err != nil {
		return false, err
	}
	return finish(g)
}

// AddBackConnection adds a recurrent edge pointing to an earlier position.
type AddBackConnection struct {
	Rand *rand.Rand
}

func (o *AddBackConnection) Name() string { return "add_back_connection" }

func (o *AddBackConnection) Apply(_ context.Context, g *genome.Genome, focus []int) (bool, error) {
	if o == nil || o.Rand == nil {
		return false, errRandomRequired
	}
	var candidates []edge
	for from := g.InteriorStart(); from < g.Len(); from++ {
		if !isKind(g, from, genome.KindHidden, genome.KindOutput) {
			continue
		}
		for to := g.InteriorStart(); to < from; to++ {
			if g.LegalEdge(from, to) && !g.HasConnection(from, to) {
				candidates = append(candidates, edge{from, to})
			}
		}
	}
	if len(candidates) == 0 {
		return false, nil
	}
	e := pickOne(o.Rand, preferFocused(candidates, newFocusSet(focus), pairTouches))
	if err := g.Connect(e.from, e.to, uniform(o.Rand, newParameterSpan), genome.PolarityNone); err != nil {
		return false, err
	}
	return finish(g)
}

// SubBackConnection removes a recurrent edge whose removal strands no neuron.
type SubBackConnection struct {
	Rand *rand.Rand
}

func (o *SubBackConnection) Name() string { return "sub_back_connection" }

func (o *SubBackConnection) Apply(_ context.Context, g *genome.Genome, focus []int) (bool, error) {
	if o == nil || o.Rand == nil {
		return false, errRandomRequired
	}
	var candidates []genome.Connection
	for _, c := range g.Connections() {
		if c.IsBack() && !strands(g, c) {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return false, nil
	}
	c := pickOne(o.Rand, preferFocused(candidates, newFocusSet(focus), edgeTouches))
	if err := g.Disconnect(c.From, c.To); err != nil {
		return false, err
	}
	return finish(g)
}

// WeightQuantum is the order of ten of |w| for |w| >= 1, otherwise 1.
func WeightQuantum(w float64) float64 {
	abs := math.Abs(w)
	if abs < 1 {
		return 1
	}
	return math.Pow(10, math.Floor(math.Log10(abs)))
}

// ModWeight perturbs one weight by a uniform delta scaled to the weight's
// order of magnitude.
type ModWeight struct {
	Rand *rand.Rand
}

func (o *ModWeight) Name() string { return "mod_weight" }

func (o *ModWeight) Apply(_ context.Context, g *genome.Genome, focus []int) (bool, error) {
	if o == nil || o.Rand == nil {
		return false, errRandomRequired
	}
	conns := g.Connections()
	if len(conns) == 0 {
		return false, nil
	}
	c := pickOne(o.Rand, preferFocused(conns, newFocusSet(focus), edgeTouches))
	delta := uniform(o.Rand, WeightQuantum(c.Weight))
	if err := g.SetWeight(c.From, c.To, c.Weight+delta); err != nil {
		return false, err
	}
	return finish(g)
}

// ModBias perturbs the bias of a random hidden or output neuron.
type ModBias struct {
	Rand     *rand.Rand
	MaxDelta float64
}

func (o *ModBias) Name() string { return "mod_bias" }

func (o *ModBias) Apply(_ context.Context, g *genome.Genome, focus []int) (bool, error) {
	if o == nil || o.Rand == nil {
		return false, errRandomRequired
	}
	candidates := g.IndicesOf(genome.KindHidden, genome.KindOutput)
	if len(candidates) == 0 {
		return false, nil
	}
	span := o.MaxDelta
	if span <= 0 {
		span = defaultBiasDelta
	}
	i := pickOne(o.Rand, preferFocused(candidates, newFocusSet(focus), neuronTouches))
	if err := g.SetBias(i, g.Neuron(i).Bias+uniform(o.Rand, span)); err != nil {
		return false, err
	}
	return finish(g)
}

// ModActivation reassigns the activation of a random hidden or output neuron.
type ModActivation struct {
	Rand     *rand.Rand
	Registry *nn.Registry
}

func (o *ModActivation) Name() string { return "mod_activation" }

func (o *ModActivation) Apply(_ context.Context, g *genome.Genome, focus []int) (bool, error) {
	if o == nil || o.Rand == nil {
		return false, errRandomRequired
	}
	candidates := g.IndicesOf(genome.KindHidden, genome.KindOutput)
	if len(candidates) == 0 {
		return false, nil
	}
	i := pickOne(o.Rand, preferFocused(candidates, newFocusSet(focus), neuronTouches))
	current := g.Neuron(i).Activation
	next := o.Registry.SampleOther(o.Rand, current)
	if next == current {
		return false, nil
	}
	if err := g.SetActivation(i, next); err != nil {
		return false, err
	}
	return finish(g)
}

// SwapNeurons exchanges bias and activation between two hidden neurons.
type SwapNeurons struct {
	Rand *rand.Rand
}

func (o *SwapNeurons) Name() string { return "swap_neurons" }

func (o *SwapNeurons) Apply(_ context.Context, g *genome.Genome, focus []int) (bool, error) {
	if o == nil || o.Rand == nil {
		return false, errRandomRequired
	}
	hidden := g.IndicesOf(genome.KindHidden)
	if len(hidden) < 2 {
		return false, nil
	}
	a := pickOne(o.Rand, preferFocused(hidden, newFocusSet(focus), neuronTouches))
	others := make([]int, 0, len(hidden)-1)
	for _, i := range hidden {
		if i != a {
			others = append(others, i)
		}
	}
	b := pickOne(o.Rand, others)
	if err := g.SwapParameters(a, b); err != nil {
		return false, err
	}
	return finish(g)
}
