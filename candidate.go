package godispatch

import (
	"strings"

	"github.com/google/uuid"
)

// CandidateHandle identifies one successful Register call. All candidates
// produced by a single registration (AnyOf expansion, symmetric
// permutations) share the handle.
type CandidateHandle struct {
	id uuid.UUID
}

func newHandle() CandidateHandle { return CandidateHandle{id: uuid.New()} }

func (h CandidateHandle) String() string { return h.id.String() }

// priorityKey orders candidates: explicit priority first, then a secondary
// weight used for deterministic tie-breaks (generic candidates sort below
// non-generic ones of the same explicit priority; the identity permutation
// of a symmetric registration sorts above its reorderings).
type priorityKey struct {
	explicit int
	sub      int
}

// triedBefore reports whether p is attempted before q within a layer.
func (p priorityKey) triedBefore(q priorityKey) bool {
	if p.explicit != q.explicit {
		return p.explicit > q.explicit
	}
	return p.sub > q.sub
}

// Candidate is one registered implementation: a tuple of per-parameter
// constraints, a priority, and a body. Candidates are immutable once
// registered.
type Candidate struct {
	name        string
	constraints []Constraint
	priority    priorityKey
	body        Body
	handle      CandidateHandle
	seq         int
}

// Arity is the number of positional constraint slots.
func (c *Candidate) Arity() int { return len(c.constraints) }

// Constraints returns a copy of the candidate's constraint tuple.
func (c *Candidate) Constraints() []Constraint {
	out := make([]Constraint, len(c.constraints))
	copy(out, c.constraints)
	return out
}

// Priority is the explicit priority the candidate was registered with.
func (c *Candidate) Priority() int { return c.priority.explicit }

// Handle identifies the registration that produced this candidate.
func (c *Candidate) Handle() CandidateHandle { return c.handle }

func (c *Candidate) String() string {
	name := c.name
	if name == "" {
		name = "candidate"
	}
	return name + "<" + renderConstraints(c.constraints) + ">"
}

func tupleKeys(cs []Constraint) []string {
	keys := make([]string, len(cs))
	for i, c := range cs {
		keys[i] = c.key()
	}
	return keys
}

func joinedKey(cs []Constraint) string {
	return strings.Join(tupleKeys(cs), ";")
}

// expandTuples replaces every AnyOf constraint with each of its alternatives
// in turn, producing the cross-product of plain tuples. Structurally
// identical tuples collapse into one.
func expandTuples(cs []Constraint) [][]Constraint {
	tuples := [][]Constraint{nil}
	for _, c := range cs {
		alts := []Constraint{c}
		if c.kind == kindAnyOf {
			alts = c.alts
		}
		next := make([][]Constraint, 0, len(tuples)*len(alts))
		for _, t := range tuples {
			for _, a := range alts {
				nt := make([]Constraint, len(t), len(t)+1)
				copy(nt, t)
				next = append(next, append(nt, a))
			}
		}
		tuples = next
	}
	seen := make(map[string]bool, len(tuples))
	out := tuples[:0]
	for _, t := range tuples {
		k := joinedKey(t)
		if !seen[k] {
			seen[k] = true
			out = append(out, t)
		}
	}
	return out
}

// distinctTypeVars counts the distinct variable names in a tuple. The count
// lowers the candidate's secondary priority so generic candidates lose
// deterministic tie-breaks against equally prioritized concrete ones.
func distinctTypeVars(cs []Constraint) int {
	var names map[string]bool
	for _, c := range cs {
		if c.kind == kindTypeVar {
			if names == nil {
				names = make(map[string]bool, 2)
			}
			names[c.name] = true
		}
	}
	return len(names)
}

// permuteIndices yields every permutation of [0..n) in lexicographic order,
// starting with the identity.
func permuteIndices(n int) [][]int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	var out [][]int
	var rec func(prefix []int, rest []int)
	rec = func(prefix []int, rest []int) {
		if len(rest) == 0 {
			p := make([]int, len(prefix))
			copy(p, prefix)
			out = append(out, p)
			return
		}
		for i := range rest {
			nrest := make([]int, 0, len(rest)-1)
			nrest = append(nrest, rest[:i]...)
			nrest = append(nrest, rest[i+1:]...)
			rec(append(prefix, rest[i]), nrest)
		}
	}
	rec(nil, idx)
	return out
}

// permuteTuple builds tuple[perm[0]], tuple[perm[1]], ...
func permuteTuple(cs []Constraint, perm []int) []Constraint {
	out := make([]Constraint, len(cs))
	for j, p := range perm {
		out[j] = cs[p]
	}
	return out
}

// permuteBody wraps body so a candidate registered under a permuted tuple
// still receives the arguments in declared parameter order.
func permuteBody(body Body, perm []int) Body {
	return func(args []any) Outcome {
		orig := make([]any, len(args))
		for j, p := range perm {
			orig[p] = args[j]
		}
		return body(orig)
	}
}

func isIdentity(perm []int) bool {
	for i, p := range perm {
		if i != p {
			return false
		}
	}
	return true
}
