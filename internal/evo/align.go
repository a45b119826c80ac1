package evo

import (
	"sort"
	"strings"

	"neatforge/internal/genome"
)

const maxAlignPasses = 8

// AlignLineage returns a copy of other whose output and hidden neurons carry
// the lineage ids of their structural counterparts in reference. Outputs are
// matched by position; hidden neurons are matched when their neighbour id
// sets coincide, repeated until no further match appears so that each newly
// aligned neuron can unlock its neighbours. reference is not modified.
func AlignLineage(reference, other *genome.Genome) *genome.Genome {
	aligned := other.Clone()
	if reference == nil || reference.Inputs() != other.Inputs() || reference.Outputs() != other.Outputs() {
		return aligned
	}

	taken := make(map[string]int, aligned.Len())
	for i := 0; i < aligned.Len(); i++ {
		taken[aligned.Neuron(i).ID] = i
	}
	rename := func(i int, id string) bool {
		current := aligned.Neuron(i).ID
		if current == id {
			return false
		}
		if holder, ok := taken[id]; ok && holder != i {
			return false
		}
		if aligned.SetID(i, id) != nil {
			return false
		}
		delete(taken, current)
		taken[id] = i
		return true
	}

	for k := 0; k < reference.Outputs(); k++ {
		rename(aligned.OutputStart()+k, reference.Neuron(reference.OutputStart()+k).ID)
	}

	refHidden := reference.IndicesOf(genome.KindHidden)
	matched := make(map[string]struct{})
	for pass := 0; pass < maxAlignPasses; pass++ {
		bySignature := make(map[string][]string, len(refHidden))
		for _, i := range refHidden {
			id := reference.Neuron(i).ID
			if _, done := matched[id]; done {
				continue
			}
			sig := neighbourSignature(reference, i)
			bySignature[sig] = append(bySignature[sig], id)
		}
		changed := false
		for _, i := range aligned.IndicesOf(genome.KindHidden) {
			if _, done := matched[aligned.Neuron(i).ID]; done {
				continue
			}
			for _, id := range bySignature[neighbourSignature(aligned, i)] {
				if _, done := matched[id]; done {
					continue
				}
				if aligned.Neuron(i).ID == id {
					matched[id] = struct{}{}
					break
				}
				if rename(i, id) {
					matched[id] = struct{}{}
					changed = true
					break
				}
			}
		}
		if !changed {
			break
		}
	}
	return aligned
}

// neighbourSignature lists the ids on both sides of neuron i, so structurally
// equivalent neurons in related genomes produce the same string.
func neighbourSignature(g *genome.Genome, i int) string {
	parts := make([]string, 0, g.InwardCount(i)+g.OutwardCount(i))
	for _, c := range g.Inward(i) {
		parts = append(parts, "<"+g.Neuron(c.From).ID)
	}
	for _, c := range g.Outward(i) {
		parts = append(parts, ">"+g.Neuron(c.To).ID)
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}
