package godispatch

import (
	"reflect"

	"github.com/reoring/godispatch/internal/trie"
)

// entry groups every candidate registered under one constraint tuple,
// keyed by priority. It is the unit the specificity order ranks.
type entry struct {
	seq        int
	tuple      []Constraint
	keys       []string
	byPriority map[priorityKey]*Candidate
	classID    int
}

// candidatesInOrder returns the entry's candidates, highest priority first.
func (e *entry) candidatesInOrder() []*Candidate {
	out := make([]*Candidate, 0, len(e.byPriority))
	for _, c := range e.byPriority {
		out = append(out, c)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].priority.triedBefore(out[j-1].priority); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// catalog is the arity-partitioned candidate index: a trie keyed by the
// canonical constraint key per position. Exact concrete types descend
// through the child map; wildcards, type variables, and abstract types live
// in each node's special side-set and are matched by upcast at lookup time.
type catalog struct {
	arity       int
	idx         *trie.Trie[string, *entry]
	constraints map[string]Constraint   // canonical key -> interned constraint
	exactKeys   map[reflect.Type]string // runtime type -> exact child key

	// probeExact is set when the subtype oracle is user-supplied: such an
	// oracle may relate two concrete types, so exact children can match by
	// upcast and the identity map alone is not enough.
	probeExact bool

	entries []*entry // registration order
}

func newCatalog(arity int, probeExact bool) *catalog {
	return &catalog{
		arity:       arity,
		idx:         trie.New[string, *entry](),
		constraints: make(map[string]Constraint),
		exactKeys:   make(map[reflect.Type]string),
		probeExact:  probeExact,
	}
}

// lookup finds the entry stored under exactly this tuple, if any.
func (r *catalog) lookup(keys []string) (*entry, bool) {
	return r.idx.Get(keys)
}

// insert stores a fresh entry. The caller has already checked for
// duplicates and wired the entry into the specificity order.
func (r *catalog) insert(e *entry) {
	for i, c := range e.tuple {
		k := e.keys[i]
		r.constraints[k] = c
		if c.kind == kindExact && !c.special() {
			r.exactKeys[c.typ] = k
		}
	}
	r.idx.Put(e.keys, e, func(k string) bool {
		return r.constraints[k].special()
	})
	r.entries = append(r.entries, e)
}

// verdict is the memoized result of matching one entry's tuple against a
// concrete type tuple.
type verdict struct {
	rank     MatchRank
	bindings Bindings
	err      error
}

// verdicts matches every stored tuple against query in a single walk.
// Shared prefixes are matched once: the exact child for each position is a
// map hit, special children are enumerated from the side-set. A binding
// error poisons the whole subtree under the offending edge; poisoned
// entries surface their error when resolution reaches their layer.
func (r *catalog) verdicts(ops TypeOps, query []reflect.Type) map[*entry]*verdict {
	out := make(map[*entry]*verdict)
	if len(query) != r.arity {
		return out
	}
	var walk func(n *trie.Node[string, *entry], depth int, rank MatchRank, b Bindings)
	walk = func(n *trie.Node[string, *entry], depth int, rank MatchRank, b Bindings) {
		if depth == len(query) {
			if e, ok := n.Value(); ok {
				out[e] = &verdict{rank: rank, bindings: b}
			}
			return
		}
		rt := query[depth]
		exactKey, hasIdentity := r.exactKeys[rt]
		if hasIdentity {
			if c := n.Child(exactKey); c != nil {
				walk(c, depth+1, rank, b)
			}
		}
		if r.probeExact {
			n.Each(func(k string, child *trie.Node[string, *entry]) {
				if hasIdentity && k == exactKey {
					return
				}
				cn := r.constraints[k]
				if cn.special() {
					return
				}
				mr := matchExact(ops, cn.typ, rt)
				if mr == RankNone {
					return
				}
				nrank := rank
				if mr < nrank {
					nrank = mr
				}
				walk(child, depth+1, nrank, b)
			})
		}
		for _, k := range n.Special() {
			child := n.Child(k)
			mr, nb, err := matchConstraint(ops, r.constraints[k], rt, b)
			if err != nil {
				poison(child, r.arity-depth-1, err, out)
				continue
			}
			if mr == RankNone {
				continue
			}
			nrank := rank
			if mr < nrank {
				nrank = mr
			}
			walk(child, depth+1, nrank, nb)
		}
	}
	walk(r.idx.Root(), 0, RankPerfect, Bindings{})
	return out
}

func poison(n *trie.Node[string, *entry], depthLeft int, err error, out map[*entry]*verdict) {
	if depthLeft == 0 {
		if e, ok := n.Value(); ok {
			out[e] = &verdict{err: err}
		}
		return
	}
	n.Each(func(_ string, child *trie.Node[string, *entry]) {
		poison(child, depthLeft-1, err, out)
	})
}
