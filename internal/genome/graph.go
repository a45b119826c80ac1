package genome

import "sort"

// Depths returns, for each neuron, the length of the longest feed-forward
// path reaching it from any source. Recurrent edges are ignored, so the walk
// always terminates.
func (g *Genome) Depths() []int {
	depth := make([]int, len(g.neurons))
	// Forward edges always point to a later position, so visiting targets in
	// index order sees every source depth finalized.
	for i := range g.neurons {
		for _, c := range g.Inward(i) {
			if c.IsForward() && depth[c.From]+1 > depth[i] {
				depth[i] = depth[c.From] + 1
			}
		}
	}
	return depth
}

// Descendants returns the positions reachable from start along outward
// edges (recurrent edges included), excluding start unless it lies on a cycle.
func (g *Genome) Descendants(start int) []int {
	return g.walk(start, func(i int) []int {
		out := g.Outward(i)
		next := make([]int, 0, len(out)+1)
		for _, c := range out {
			next = append(next, c.To)
		}
		if _, ok := g.Self(i); ok {
			next = append(next, i)
		}
		return next
	})
}

// Ancestors returns the positions that can influence start along inward
// edges, recurrent edges included.
func (g *Genome) Ancestors(start int) []int {
	return g.walk(start, func(i int) []int {
		in := g.Inward(i)
		next := make([]int, 0, len(in)+1)
		for _, c := range in {
			next = append(next, c.From)
		}
		if _, ok := g.Self(i); ok {
			next = append(next, i)
		}
		return next
	})
}

func (g *Genome) walk(start int, neighbours func(int) []int) []int {
	if !g.valid(start) {
		return nil
	}
	visited := make([]bool, len(g.neurons))
	stack := []int{start}
	out := make([]int, 0)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range neighbours(cur) {
			if visited[next] {
				continue
			}
			visited[next] = true
			out = append(out, next)
			stack = append(stack, next)
		}
	}
	sort.Ints(out)
	return out
}
