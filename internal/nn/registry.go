package nn

import (
	"errors"
	"fmt"
	"math/rand"
)

var (
	ErrActivationExists   = errors.New("activation already registered")
	ErrActivationNotFound = errors.New("activation not found")
	ErrEmptyRegistry      = errors.New("activation registry is empty")
)

type ActivationFunc func(x float64) float64

// Activation is one named entry of the catalogue. Linear marks functions that
// commute with weighted sums (f(a*x+b) == a*f(x)+b), which makes a neuron
// using it eligible for compaction. Conditional marks the gated IF rule that
// aggregates inputs by connection polarity instead of a plain sum.
type Activation struct {
	Name        string
	Func        ActivationFunc
	Linear      bool
	Conditional bool
}

// Registry is an ordered, read-only catalogue of activation functions. It is
// built once and passed explicitly to every component that needs lookup or
// sampling.
type Registry struct {
	entries []Activation
	byName  map[string]int
}

func NewRegistry(activations ...Activation) (*Registry, error) {
	if len(activations) == 0 {
		return nil, ErrEmptyRegistry
	}
	r := &Registry{
		entries: make([]Activation, 0, len(activations)),
		byName:  make(map[string]int, len(activations)),
	}
	for _, act := range activations {
		if act.Name == "" {
			return nil, errors.New("activation name is required")
		}
		if act.Func == nil && !act.Conditional {
			return nil, fmt.Errorf("activation function is required: %s", act.Name)
		}
		if _, exists := r.byName[act.Name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrActivationExists, act.Name)
		}
		r.byName[act.Name] = len(r.entries)
		r.entries = append(r.entries, act)
	}
	return r, nil
}

func MustNewRegistry(activations ...Activation) *Registry {
	r, err := NewRegistry(activations...)
	if err != nil {
		panic(err)
	}
	return r
}

// DefaultRegistry returns a registry holding the built-in catalogue.
func DefaultRegistry() *Registry {
	return MustNewRegistry(BuiltinActivations()...)
}

// Subset builds a registry restricted to the named entries, in the given order.
func (r *Registry) Subset(names ...string) (*Registry, error) {
	picked := make([]Activation, 0, len(names))
	for _, name := range names {
		act, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		picked = append(picked, act)
	}
	return NewRegistry(picked...)
}

func (r *Registry) Get(name string) (Activation, error) {
	idx, ok := r.byName[name]
	if !ok {
		return Activation{}, fmt.Errorf("%w: %s", ErrActivationNotFound, name)
	}
	return r.entries[idx], nil
}

func (r *Registry) Has(name string) bool {
	_, ok := r.byName[name]
	return ok
}

func (r *Registry) IsLinear(name string) bool {
	idx, ok := r.byName[name]
	return ok && r.entries[idx].Linear
}

func (r *Registry) IsConditional(name string) bool {
	idx, ok := r.byName[name]
	return ok && r.entries[idx].Conditional
}

// Names lists activation names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.entries))
	for i, act := range r.entries {
		names[i] = act.Name
	}
	return names
}

func (r *Registry) Len() int {
	return len(r.entries)
}

// Sample picks a uniformly random activation name.
func (r *Registry) Sample(rng *rand.Rand) string {
	return r.entries[rng.Intn(len(r.entries))].Name
}

// SampleOther picks a random activation different from current when the
// catalogue allows it.
func (r *Registry) SampleOther(rng *rand.Rand, current string) string {
	if len(r.entries) == 1 {
		return r.entries[0].Name
	}
	idx, ok := r.byName[current]
	if !ok {
		return r.Sample(rng)
	}
	pick := rng.Intn(len(r.entries) - 1)
	if pick >= idx {
		pick++
	}
	return r.entries[pick].Name
}
