package evo

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"neatforge/internal/genome"
)

// SpeciesKeyFunc maps a genome to the key of the species it belongs to.
type SpeciesKeyFunc func(g *genome.Genome) string

// ActivationSkeletonKey hashes the ordered activation names of every neuron.
// Weights, biases and wiring are ignored, so the partition is coarse.
func ActivationSkeletonKey(g *genome.Genome) string {
	var b strings.Builder
	for i := 0; i < g.Len(); i++ {
		b.WriteString(g.Neuron(i).Activation)
		b.WriteByte(';')
	}
	return shortHash(b.String())
}

// TopologyKey hashes neuron kinds, activations and connection pairs.
func TopologyKey(g *genome.Genome) string {
	var b strings.Builder
	for i := 0; i < g.Len(); i++ {
		n := g.Neuron(i)
		b.WriteString(n.Kind.String())
		b.WriteByte(':')
		b.WriteString(n.Activation)
		b.WriteByte(';')
	}
	for _, c := range g.Connections() {
		b.WriteString(strconv.Itoa(c.From))
		b.WriteByte('>')
		b.WriteString(strconv.Itoa(c.To))
		b.WriteByte(';')
	}
	return shortHash(b.String())
}

// SpeciesKeyByName resolves a configured key function.
func SpeciesKeyByName(name string) (SpeciesKeyFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "activation_skeleton":
		return ActivationSkeletonKey, nil
	case "topology":
		return TopologyKey, nil
	default:
		return nil, fmt.Errorf("unknown species key: %s", name)
	}
}

func shortHash(s string) string {
	digest := sha256.Sum256([]byte(s))
	return hex.EncodeToString(digest[:8])
}

// Species holds the members sharing one key, best first.
type Species struct {
	Key     string
	Members []ScoredGenome
}

// Add appends a member. Members must arrive in non-increasing fitness order;
// anything else is a caller bug and reported as ErrSpeciesOrder.
func (s *Species) Add(member ScoredGenome) error {
	if n := len(s.Members); n > 0 && member.Fitness > s.Members[n-1].Fitness {
		return fmt.Errorf("%w: species %s got %f after %f", ErrSpeciesOrder, s.Key, member.Fitness, s.Members[n-1].Fitness)
	}
	s.Members = append(s.Members, member)
	return nil
}

// Exemplar is the best member.
func (s *Species) Exemplar() ScoredGenome {
	return s.Members[0]
}

func (s *Species) Size() int {
	return len(s.Members)
}

// MeanFitness averages member scores.
func (s *Species) MeanFitness() float64 {
	if len(s.Members) == 0 {
		return 0
	}
	total := 0.0
	for _, m := range s.Members {
		total += m.Fitness
	}
	return total / float64(len(s.Members))
}

// Genus is the species partition of one generation.
type Genus struct {
	keyFn      SpeciesKeyFunc
	species    map[string]*Species
	order      []string
	byIdentity map[string]string
}

// NewGenus partitions a ranked population. ranked must be sorted by
// descending fitness.
func NewGenus(ranked []ScoredGenome, keyFn SpeciesKeyFunc) (*Genus, error) {
	if keyFn == nil {
		keyFn = ActivationSkeletonKey
	}
	g := &Genus{
		keyFn:      keyFn,
		species:    make(map[string]*Species),
		byIdentity: make(map[string]string, len(ranked)),
	}
	for _, member := range ranked {
		key := keyFn(member.Genome)
		s, ok := g.species[key]
		if !ok {
			s = &Species{Key: key}
			g.species[key] = s
			g.order = append(g.order, key)
		}
		if err := s.Add(member); err != nil {
			return nil, err
		}
		g.byIdentity[member.Genome.Identity()] = key
	}
	return g, nil
}

// Keys lists species keys in order of first appearance, which is the order
// of their best members.
func (g *Genus) Keys() []string {
	return append([]string(nil), g.order...)
}

func (g *Genus) Len() int {
	return len(g.order)
}

func (g *Genus) Species(key string) (*Species, bool) {
	s, ok := g.species[key]
	return s, ok
}

// SpeciesOf looks a genome up by identity.
func (g *Genus) SpeciesOf(identity string) (*Species, bool) {
	key, ok := g.byIdentity[identity]
	if !ok {
		return nil, false
	}
	return g.species[key], true
}

// LargestSize is the member count of the biggest species.
func (g *Genus) LargestSize() int {
	largest := 0
	for _, s := range g.species {
		largest = max(largest, s.Size())
	}
	return largest
}

// FindClosestMatchingSpecies picks, among species other than the genome's
// own, the one whose exemplar neuron count is nearest, preferring larger
// populations on ties.
func (g *Genus) FindClosestMatchingSpecies(target *genome.Genome) (*Species, bool) {
	own := g.keyFn(target)
	if key, ok := g.byIdentity[target.Identity()]; ok {
		own = key
	}
	candidates := make([]*Species, 0, len(g.order))
	for _, key := range g.order {
		if key != own {
			candidates = append(candidates, g.species[key])
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}
	size := target.Len()
	distance := func(s *Species) int {
		d := s.Exemplar().Genome.Len() - size
		if d < 0 {
			return -d
		}
		return d
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		di, dj := distance(candidates[i]), distance(candidates[j])
		if di != dj {
			return di < dj
		}
		if candidates[i].Size() != candidates[j].Size() {
			return candidates[i].Size() > candidates[j].Size()
		}
		return candidates[i].Key < candidates[j].Key
	})
	return candidates[0], true
}
