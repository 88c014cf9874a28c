package graph

import (
	"sort"

	"github.com/san-kum/stockflow/internal/dynamo"
)

func (g *Graph) order() error {
	var evaluated []int
	for _, n := range g.nodes {
		if n.evaluated() {
			evaluated = append(evaluated, n.id)
		}
	}
	layers, rest := layer(evaluated, func(id int) []int { return g.nodes[id].deps })
	if len(rest) > 0 {
		cycle := findCycle(rest, func(id int) []int { return g.nodes[id].deps })
		return &dynamo.CycleError{Cycle: g.names(cycle)}
	}
	g.layers = layers

	var all []int
	for _, n := range g.nodes {
		if n.kind != Lookup {
			all = append(all, n.id)
		}
	}
	initLayers, rest := layer(all, func(id int) []int { return g.nodes[id].initDeps })
	if len(rest) > 0 {
		cycle := findCycle(rest, func(id int) []int { return g.nodes[id].initDeps })
		culprit := cycle[0]
		for _, id := range cycle {
			if g.nodes[id].stateful() {
				culprit = id
				break
			}
		}
		return &dynamo.UninitializedError{Variable: g.displayName(culprit), Chain: g.names(cycle)}
	}
	g.initOrder = g.initOrder[:0]
	for _, l := range initLayers {
		g.initOrder = append(g.initOrder, l...)
	}
	return nil
}

// layer groups ids by longest dependency distance using Kahn's algorithm.
// Dependencies outside ids are treated as already satisfied. Ids left over
// sit on or behind a cycle.
func layer(ids []int, deps func(int) []int) ([][]int, []int) {
	member := make(map[int]bool, len(ids))
	for _, id := range ids {
		member[id] = true
	}
	pending := make(map[int]int, len(ids))
	users := make(map[int][]int)
	for _, id := range ids {
		seen := make(map[int]bool)
		for _, d := range deps(id) {
			if !member[d] || seen[d] {
				continue
			}
			seen[d] = true
			pending[id]++
			users[d] = append(users[d], id)
		}
	}

	var current []int
	for _, id := range ids {
		if pending[id] == 0 {
			current = append(current, id)
		}
	}

	var layers [][]int
	done := 0
	for len(current) > 0 {
		sort.Ints(current)
		layers = append(layers, current)
		done += len(current)
		var next []int
		for _, id := range current {
			for _, u := range users[id] {
				pending[u]--
				if pending[u] == 0 {
					next = append(next, u)
				}
			}
		}
		current = next
	}
	if done == len(ids) {
		return layers, nil
	}

	var rest []int
	for _, id := range ids {
		if pending[id] > 0 {
			rest = append(rest, id)
		}
	}
	return layers, rest
}

// findCycle returns one cycle among ids, first node repeated at the end.
func findCycle(ids []int, deps func(int) []int) []int {
	member := make(map[int]bool, len(ids))
	for _, id := range ids {
		member[id] = true
	}
	const (
		white = iota
		grey
		black
	)
	color := make(map[int]int, len(ids))
	var stack []int
	var cycle []int

	var visit func(id int) bool
	visit = func(id int) bool {
		color[id] = grey
		stack = append(stack, id)
		for _, d := range deps(id) {
			if !member[d] {
				continue
			}
			switch color[d] {
			case grey:
				for i, s := range stack {
					if s == d {
						cycle = append(append([]int(nil), stack[i:]...), d)
						return true
					}
				}
			case white:
				if visit(d) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	for _, id := range ids {
		if color[id] == white && visit(id) {
			return cycle
		}
	}
	return ids
}

func (g *Graph) names(ids []int) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = g.displayName(id)
	}
	return out
}

// Hidden delay nodes are named owner#fn, which reads back to the call site.
func (g *Graph) displayName(id int) string {
	return g.nodes[id].name
}
