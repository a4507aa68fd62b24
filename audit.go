package godispatch

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
	set "github.com/hashicorp/go-set/v3"
	"gopkg.in/yaml.v3"
)

// PossibleAmbiguity describes a set of candidates that would tie for some
// type tuple. Types renders the witness tuple; positions where only an
// unknown common subtype could trigger the tie render as "?".
type PossibleAmbiguity struct {
	Types      []string `json:"types" yaml:"types"`
	Candidates []string `json:"candidates" yaml:"candidates"`
	Priority   int      `json:"priority" yaml:"priority"`
}

// PossibleBindingFailure describes a type variable whose member set admits
// multiple incomparable minimal upcasts for a known runtime subtype.
type PossibleBindingFailure struct {
	Candidate string   `json:"candidate" yaml:"candidate"`
	Index     int      `json:"index" yaml:"index"`
	Variable  string   `json:"variable" yaml:"variable"`
	Subtype   string   `json:"subtype" yaml:"subtype"`
	Members   []string `json:"members" yaml:"members"`
}

// ConflictReport is the advisory outcome of Audit: a conservative superset
// of the conflicts real calls could hit. It is never consulted during
// dispatch; enforcement stays at call time because some reported conflicts
// may never occur at runtime.
type ConflictReport struct {
	Dispatcher      string                   `json:"dispatcher" yaml:"dispatcher"`
	Ambiguities     []PossibleAmbiguity      `json:"ambiguities,omitempty" yaml:"ambiguities,omitempty"`
	BindingFailures []PossibleBindingFailure `json:"binding_failures,omitempty" yaml:"binding_failures,omitempty"`
}

// Clean reports whether the audit produced no findings.
func (r *ConflictReport) Clean() bool {
	return len(r.Ambiguities) == 0 && len(r.BindingFailures) == 0
}

// Render produces the human-readable listing, one finding per line.
func (r *ConflictReport) Render() string {
	if r.Clean() {
		return r.summary()
	}
	var b strings.Builder
	for _, f := range r.BindingFailures {
		fmt.Fprintf(&b, "calling with argument %d = %s will raise an ambiguous binding of $%s (members %s) from candidate %s\n",
			f.Index, f.Subtype, f.Variable, strings.Join(f.Members, ", "), f.Candidate)
	}
	for _, a := range r.Ambiguities {
		fmt.Fprintf(&b, "argument types <%s> will result in immediate ambiguities between [%s]\n",
			strings.Join(a.Types, ", "), strings.Join(a.Candidates, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (r *ConflictReport) summary() string {
	who := r.Dispatcher
	if who == "" {
		who = "dispatcher"
	}
	ambs, errs := len(r.Ambiguities), len(r.BindingFailures)
	switch {
	case ambs > 0 && errs > 0:
		return fmt.Sprintf("%s has %d potential errors and %d potential ambiguities", who, errs, ambs)
	case ambs > 0:
		return fmt.Sprintf("%s has %d potential ambiguities", who, ambs)
	case errs > 0:
		return fmt.Sprintf("%s has %d potential errors", who, errs)
	}
	return who + " has no potential conflicts"
}

func (r *ConflictReport) String() string { return r.summary() }

// JSON serializes the report for machine consumption.
func (r *ConflictReport) JSON() ([]byte, error) { return json.Marshal(r) }

// YAML serializes the report for operator-facing documents.
func (r *ConflictReport) YAML() ([]byte, error) { return yaml.Marshal(r) }

// Audit statically scans the registry for potential ambiguities and binding
// failures without invoking any body. It reads the catalog and specificity
// order only, never the resolution caches, and is safe to run on demand off
// the dispatch hot path.
func (d *Dispatcher) Audit() *ConflictReport {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rep := &ConflictReport{Dispatcher: d.name}
	arities := make([]int, 0, len(d.arities))
	for a := range d.arities {
		arities = append(arities, a)
	}
	sort.Ints(arities)
	for _, a := range arities {
		d.auditArity(d.arities[a], rep)
	}
	return rep
}

func (d *Dispatcher) auditArity(st *arityState, rep *ConflictReport) {
	universe := d.knownTypes(st)
	failures := d.auditBindings(st, universe, rep)
	d.auditAmbiguities(st, failures, rep)
}

// knownTypes collects every type mentioned by the arity's constraints,
// sorted canonically. The auditor reasons over this universe: it cannot
// enumerate all runtime types, so findings are relative to the types the
// registry itself names.
func (d *Dispatcher) knownTypes(st *arityState) []reflect.Type {
	seen := make(map[reflect.Type]bool)
	for _, e := range st.cat.entries {
		for _, c := range e.tuple {
			switch c.kind {
			case kindExact:
				seen[c.typ] = true
			case kindTypeVar:
				for _, m := range c.members {
					seen[m] = true
				}
			}
		}
	}
	out := make([]reflect.Type, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return typeKey(out[i]) < typeKey(out[j]) })
	return out
}

// auditBindings reports, per candidate and parameter index, the known
// subtypes whose minimal upcast into a type variable's member set is not
// unique. Returns the found failures per index so ambiguity findings they
// preempt can be skipped.
func (d *Dispatcher) auditBindings(st *arityState, universe []reflect.Type, rep *ConflictReport) map[int][]reflect.Type {
	found := make(map[int][]reflect.Type)
	for _, e := range st.cat.entries {
		bound := make(map[string]bool)
		for i, c := range e.tuple {
			name, ok := c.IsTypeVar()
			if !ok {
				continue
			}
			if bound[name] {
				continue
			}
			bound[name] = true
			for _, u := range universe {
				if preemptedByFailure(d.ops, found[i], u) {
					continue
				}
				_, amb := minimalUpcast(d.ops, u, c.members)
				if amb == nil {
					continue
				}
				found[i] = append(found[i], u)
				for _, cand := range e.candidatesInOrder() {
					rep.BindingFailures = append(rep.BindingFailures, PossibleBindingFailure{
						Candidate: cand.String(),
						Index:     i,
						Variable:  name,
						Subtype:   typeName(u),
						Members:   typeNames(amb),
					})
				}
			}
		}
	}
	return found
}

// preemptedByFailure reports whether a failure for a supertype of u at the
// same index was already recorded; the broader finding subsumes it.
func preemptedByFailure(ops TypeOps, prior []reflect.Type, u reflect.Type) bool {
	for _, p := range prior {
		if u != p && ops.IsSubtype(u, p) {
			return true
		}
	}
	return false
}

type pendingAmbiguity struct {
	types      []reflect.Type // nil slot: unknown common subtype
	candidates *set.Set[*Candidate]
	priority   int
}

// auditAmbiguities walks each specificity layer, groups its candidates by
// equal priority, and for every pair computes whether some type tuple could
// match both without being resolved by a more specific candidate first.
func (d *Dispatcher) auditAmbiguities(st *arityState, failures map[int][]reflect.Type, rep *ConflictReport) {
	var pending []*pendingAmbiguity
	for _, layer := range st.graph.Layers() {
		byPriority := make(map[priorityKey][]*Candidate)
		var keys []priorityKey
		for _, id := range layer {
			for _, e := range st.graph.Value(id).entries {
				for _, c := range e.candidatesInOrder() {
					if _, ok := byPriority[c.priority]; !ok {
						keys = append(keys, c.priority)
					}
					byPriority[c.priority] = append(byPriority[c.priority], c)
				}
			}
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i].triedBefore(keys[j]) })
		for _, pk := range keys {
			group := byPriority[pk]
			for i := 0; i < len(group); i++ {
				for j := i + 1; j < len(group); j++ {
					if joinedKey(group[i].constraints) == joinedKey(group[j].constraints) {
						continue
					}
					witness, ok := d.overlapTuple(group[i].constraints, group[j].constraints)
					if !ok {
						continue
					}
					if d.resolvedElsewhere(st, witness, failures) {
						continue
					}
					pending = joinAmbiguity(d.ops, pending, &pendingAmbiguity{
						types:      witness,
						candidates: set.From([]*Candidate{group[i], group[j]}),
						priority:   pk.explicit,
					})
				}
			}
		}
	}
	for _, p := range pending {
		cands := make([]string, 0, p.candidates.Size())
		for c := range p.candidates.Items() {
			cands = append(cands, c.String())
		}
		sort.Strings(cands)
		names := make([]string, len(p.types))
		for i, t := range p.types {
			if t == nil {
				names[i] = "?"
			} else {
				names[i] = typeName(t)
			}
		}
		rep.Ambiguities = append(rep.Ambiguities, PossibleAmbiguity{
			Types:      names,
			Candidates: cands,
			Priority:   p.priority,
		})
	}
	sort.Slice(rep.Ambiguities, func(i, j int) bool {
		a, b := rep.Ambiguities[i], rep.Ambiguities[j]
		ka, kb := strings.Join(a.Types, ","), strings.Join(b.Types, ",")
		if ka != kb {
			return ka < kb
		}
		return strings.Join(a.Candidates, ",") < strings.Join(b.Candidates, ",")
	})
}

// overlapTuple computes a per-position witness type that both tuples could
// match simultaneously, or reports that no overlap exists. A nil witness
// slot means both positions are abstract and only an unknown common subtype
// could trigger the tie; the finding stays, conservatively.
func (d *Dispatcher) overlapTuple(a, b []Constraint) ([]reflect.Type, bool) {
	out := make([]reflect.Type, len(a))
	for i := range a {
		w, ok := d.overlapWitness(a[i], b[i])
		if !ok {
			return nil, false
		}
		out[i] = w
	}
	return out, true
}

func (d *Dispatcher) overlapWitness(a, b Constraint) (reflect.Type, bool) {
	as, aAny := acceptedTypes(a)
	bs, bAny := acceptedTypes(b)
	if aAny && bAny {
		return nil, true
	}
	if aAny {
		return mostSpecific(d.ops, bs), true
	}
	if bAny {
		return mostSpecific(d.ops, as), true
	}
	var witnesses []reflect.Type
	unknown := false
	for _, ta := range as {
		for _, tb := range bs {
			switch {
			case d.ops.IsSubtype(ta, tb):
				witnesses = append(witnesses, ta)
			case d.ops.IsSubtype(tb, ta):
				witnesses = append(witnesses, tb)
			case isAbstract(ta) && isAbstract(tb):
				// A common implementor may exist even though the
				// interfaces are unrelated.
				unknown = true
			}
		}
	}
	if len(witnesses) > 0 {
		return mostSpecific(d.ops, witnesses), true
	}
	if unknown {
		return nil, true
	}
	return nil, false
}

// acceptedTypes expands a constraint into the set of types it upcasts into.
// The second return flags "accepts everything".
func acceptedTypes(c Constraint) ([]reflect.Type, bool) {
	switch c.kind {
	case kindExact:
		return []reflect.Type{c.typ}, false
	case kindTypeVar:
		if len(c.members) == 0 {
			return nil, true
		}
		return c.members, false
	default:
		return nil, true
	}
}

func mostSpecific(ops TypeOps, ts []reflect.Type) reflect.Type {
	best := ts[0]
	for _, t := range ts[1:] {
		if t != best && ops.IsSubtype(t, best) {
			best = t
		}
	}
	return best
}

// resolvedElsewhere probes whether the witness tuple is already settled: a
// recorded binding failure at some index preempts it, and a fully concrete
// witness that resolves to exactly one candidate is not an ambiguity.
func (d *Dispatcher) resolvedElsewhere(st *arityState, witness []reflect.Type, failures map[int][]reflect.Type) bool {
	for i, t := range witness {
		if t == nil {
			continue
		}
		for _, f := range failures[i] {
			if t == f || d.ops.IsSubtype(t, f) {
				return true
			}
		}
	}
	for _, t := range witness {
		if t == nil || isAbstract(t) {
			// Not a realizable call; keep the conservative finding.
			return false
		}
	}
	probe := newCachedSearch(d.ops, st.cat, st.graph, witness)
	layer, ok := probe.layerAt(0)
	if !ok {
		return true
	}
	for _, at := range layer {
		if at.err != nil {
			return true
		}
	}
	return len(layer) == 1
}

// joinAmbiguity merges the new finding into the pending set: findings on
// the same witness sharing candidates are unioned, and a witness superseded
// by a strictly more general recorded witness is dropped (and vice versa).
func joinAmbiguity(ops TypeOps, pending []*pendingAmbiguity, add *pendingAmbiguity) []*pendingAmbiguity {
	out := make([]*pendingAmbiguity, 0, len(pending)+1)
	for _, p := range pending {
		switch {
		case sameWitness(p.types, add.types) && !p.candidates.Intersect(add.candidates).(*set.Set[*Candidate]).Empty():
			add.candidates = add.candidates.Union(p.candidates).(*set.Set[*Candidate])
		case supersedesWitness(ops, p.types, add.types):
			// The recorded, more general witness subsumes the new one.
			return pending
		case supersedesWitness(ops, add.types, p.types):
			// Dropped: add subsumes it.
		default:
			out = append(out, p)
		}
	}
	return append(out, add)
}

func sameWitness(a, b []reflect.Type) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// supersedesWitness reports whether every position of b is contained in a,
// at least one strictly. Unknown slots never supersede.
func supersedesWitness(ops TypeOps, a, b []reflect.Type) bool {
	strict := false
	for i := range a {
		if a[i] == nil || b[i] == nil {
			return false
		}
		if !ops.IsSubtype(b[i], a[i]) {
			return false
		}
		if a[i] != b[i] {
			strict = true
		}
	}
	return strict
}

func typeNames(ts []reflect.Type) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = typeName(t)
	}
	return out
}
