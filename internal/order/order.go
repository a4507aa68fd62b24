// Package order maintains a strict partial order over opaque values as a
// directed acyclic graph. Nodes live in an arena and are addressed by stable
// integer ids, so edges are plain index sets and never form ownership cycles.
package order

import (
	"sort"

	set "github.com/hashicorp/go-set/v3"
)

// Rel is the outcome of comparing two values under the partial order.
type Rel int

const (
	// Equal means the two values occupy the same position in the order.
	Equal Rel = iota
	// Before means the left value strictly precedes (is more general than)
	// the right value.
	Before
	// After means the left value strictly succeeds the right value.
	After
	// Incomparable means neither value precedes the other.
	Incomparable
)

// Invert flips Before and After.
func (r Rel) Invert() Rel {
	switch r {
	case Before:
		return After
	case After:
		return Before
	default:
		return r
	}
}

type node[T any] struct {
	value    T
	parents  *set.Set[int]
	children *set.Set[int]
}

// Graph is a DAG whose edges follow the comparison function: an edge a->b
// exists only when cmp(value(a), value(b)) == Before and no third node sits
// strictly between them. Insertion maintains that reduction incrementally by
// rewiring direct edges only.
type Graph[T any] struct {
	cmp   func(a, b T) Rel
	nodes []node[T]
	roots *set.Set[int]
}

func New[T any](cmp func(a, b T) Rel) *Graph[T] {
	return &Graph[T]{cmp: cmp, roots: set.New[int](0)}
}

func (g *Graph[T]) Len() int { return len(g.nodes) }

// Value returns the value stored at id. ids are dense and stable.
func (g *Graph[T]) Value(id int) T { return g.nodes[id].value }

// Add inserts v, splicing it between its maximal predecessors and minimal
// successors. If a value equal to v already exists, Add returns its id and
// false without modifying the graph.
func (g *Graph[T]) Add(v T) (int, bool) {
	id := len(g.nodes)

	// One comparison per existing node. A traversal pruned to nodes more
	// general than v would miss successors reachable only through
	// incomparable nodes, so every node is graded up front.
	rels := make([]Rel, len(g.nodes))
	for i := range g.nodes {
		r := g.cmp(g.nodes[i].value, v)
		if r == Equal {
			return i, false
		}
		rels[i] = r
	}

	// Maximal predecessors: more-general nodes none of whose children are
	// also more general than v.
	directParents := set.New[int](1)
	for i, r := range rels {
		if r != Before {
			continue
		}
		maximal := true
		for kid := range g.nodes[i].children.Items() {
			if rels[kid] == Before {
				maximal = false
				break
			}
		}
		if maximal {
			directParents.Insert(i)
		}
	}

	// Minimal successors: more-specific nodes none of whose parents are
	// also more specific than v.
	var directChildren []int
	for i, r := range rels {
		if r != After {
			continue
		}
		minimal := true
		for p := range g.nodes[i].parents.Items() {
			if rels[p] == After {
				minimal = false
				break
			}
		}
		if minimal {
			directChildren = append(directChildren, i)
		}
	}

	n := node[T]{value: v, parents: set.New[int](directParents.Size()), children: set.New[int](len(directChildren))}
	g.nodes = append(g.nodes, n)

	if directParents.Empty() {
		g.roots.Insert(id)
	}
	for pp := range directParents.Items() {
		g.nodes[pp].children.Insert(id)
		g.nodes[id].parents.Insert(pp)
	}
	for _, dc := range directChildren {
		// Parent edges of dc now covered through the new node are removed.
		supplanted := g.nodes[dc].parents.Intersect(g.nodes[id].parents).(*set.Set[int])
		for s := range supplanted.Items() {
			g.nodes[s].children.Remove(dc)
			g.nodes[dc].parents.Remove(s)
		}
		g.roots.Remove(dc)
		g.nodes[dc].parents.Insert(id)
		g.nodes[id].children.Insert(dc)
	}
	return id, true
}

// Children returns the direct successors of id in ascending order.
func (g *Graph[T]) Children(id int) []int {
	return sortedSlice(g.nodes[id].children)
}

// Parents returns the direct predecessors of id in ascending order.
func (g *Graph[T]) Parents(id int) []int {
	return sortedSlice(g.nodes[id].parents)
}

// Descendants returns the ids of every node strictly after id.
func (g *Graph[T]) Descendants(id int) *set.Set[int] {
	out := set.New[int](0)
	work := []int{id}
	for len(work) > 0 {
		cur := work[len(work)-1]
		work = work[:len(work)-1]
		for kid := range g.nodes[cur].children.Items() {
			if out.Insert(kid) {
				work = append(work, kid)
			}
		}
	}
	return out
}

// Layers yields the Kahn layering of the graph, most general first. Each
// layer is a maximal antichain: every member's predecessors have all been
// emitted in earlier layers. Ids within a layer are in ascending order.
func (g *Graph[T]) Layers() [][]int {
	pending := make(map[int]int, len(g.nodes))
	for id := range g.nodes {
		pending[id] = g.nodes[id].parents.Size()
	}
	frontier := sortedSlice(g.roots)

	var out [][]int
	for len(frontier) > 0 {
		layer := frontier
		out = append(out, layer)
		next := set.New[int](0)
		for _, id := range layer {
			for kid := range g.nodes[id].children.Items() {
				pending[kid]--
				if pending[kid] == 0 {
					next.Insert(kid)
				}
			}
		}
		frontier = sortedSlice(next)
	}
	return out
}

func sortedSlice(s *set.Set[int]) []int {
	out := s.Slice()
	sort.Ints(out)
	return out
}
