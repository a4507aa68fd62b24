package godispatch

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/reoring/godispatch/internal/order"
)

// posClass is one node of the specificity order: the equivalence class of
// constraint tuples occupying the same position in the partial order.
// Distinct tuples can compare equal (for example two type variables over the
// same member set under different names); they tie rather than supersede
// each other.
type posClass struct {
	entries []*entry
}

func (pc *posClass) representative() []Constraint { return pc.entries[0].tuple }

// arityState bundles everything the dispatcher keeps per arity: the
// candidate catalog, the specificity order over its tuples, and the
// per-type-tuple resolution caches.
type arityState struct {
	cat   *catalog
	graph *order.Graph[*posClass]

	cmu    sync.Mutex
	caches map[string]*cachedSearch
}

// Dispatcher is the registration entry point and call loop. One exclusive
// lock serializes registration against resolution; bodies are invoked with
// no locks held.
type Dispatcher struct {
	name string
	ops  TypeOps

	mu      sync.RWMutex
	arities map[int]*arityState
	seq     int
}

// New constructs an empty dispatcher. The name appears in candidate and
// error text.
func New(name string, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		name:    name,
		ops:     DefaultTypeOps(),
		arities: make(map[int]*arityState),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Name returns the dispatcher's name.
func (d *Dispatcher) Name() string { return d.name }

func (d *Dispatcher) String() string {
	if d.name != "" {
		return "<Dispatcher " + d.name + ">"
	}
	return fmt.Sprintf("<Dispatcher %p>", d)
}

// Register adds one candidate per expanded constraint tuple, all guarded by
// the given explicit priority and sharing the returned handle. It fails
// with *DuplicateCandidateError when an identical (constraints, priority)
// pair already exists, leaving the registry unchanged.
func (d *Dispatcher) Register(constraints []Constraint, priority int, body Body) (CandidateHandle, error) {
	return d.register(constraints, priority, body, false)
}

// RegisterSymmetric registers every distinct permutation of the constraint
// tuple. Each permuted candidate reorders the arguments back to declared
// order before invoking body; the identity permutation keeps a slight
// priority edge so the declared order wins ties among its own permutations.
func (d *Dispatcher) RegisterSymmetric(constraints []Constraint, priority int, body Body) (CandidateHandle, error) {
	return d.register(constraints, priority, body, true)
}

func (d *Dispatcher) register(constraints []Constraint, priority int, body Body, symmetric bool) (CandidateHandle, error) {
	var zero CandidateHandle
	if body == nil {
		return zero, fmt.Errorf("godispatch: register with nil body")
	}
	for _, c := range constraints {
		if err := c.valid(); err != nil {
			return zero, err
		}
	}

	type planned struct {
		tuple []Constraint
		pk    priorityKey
		body  Body
	}
	var plan []planned
	for _, tuple := range expandTuples(constraints) {
		base := priorityKey{explicit: priority, sub: -distinctTypeVars(tuple)}
		if !symmetric {
			plan = append(plan, planned{tuple: tuple, pk: base, body: body})
			continue
		}
		seen := make(map[string]bool)
		for _, perm := range permuteIndices(len(tuple)) {
			pt := permuteTuple(tuple, perm)
			k := joinedKey(pt)
			if seen[k] {
				continue
			}
			seen[k] = true
			pk := base
			pb := body
			if isIdentity(perm) {
				pk.sub++
			} else {
				pb = permuteBody(body, perm)
			}
			plan = append(plan, planned{tuple: pt, pk: pk, body: pb})
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// Validate the whole plan before touching anything so a duplicate
	// leaves the registry unchanged.
	for _, p := range plan {
		st := d.arities[len(p.tuple)]
		if st == nil {
			continue
		}
		if e, ok := st.cat.lookup(tupleKeys(p.tuple)); ok {
			if _, dup := e.byPriority[p.pk]; dup {
				return zero, &DuplicateCandidateError{Constraints: p.tuple, Priority: priority}
			}
		}
	}

	handle := newHandle()
	invalidated := make(map[int]bool)
	for _, p := range plan {
		st := d.arityState(len(p.tuple))
		cand := &Candidate{
			name:        d.name,
			constraints: p.tuple,
			priority:    p.pk,
			body:        p.body,
			handle:      handle,
			seq:         d.seq,
		}
		d.seq++

		keys := tupleKeys(p.tuple)
		e, ok := st.cat.lookup(keys)
		if !ok {
			e = &entry{
				seq:        cand.seq,
				tuple:      p.tuple,
				keys:       keys,
				byPriority: make(map[priorityKey]*Candidate, 1),
			}
			id, fresh := st.graph.Add(&posClass{entries: []*entry{e}})
			if !fresh {
				// An order-equivalent tuple exists; join its class.
				pc := st.graph.Value(id)
				pc.entries = append(pc.entries, e)
			}
			e.classID = id
			st.cat.insert(e)
		}
		e.byPriority[p.pk] = cand
		invalidated[len(p.tuple)] = true
	}
	for arity := range invalidated {
		st := d.arities[arity]
		st.cmu.Lock()
		st.caches = make(map[string]*cachedSearch)
		st.cmu.Unlock()
	}
	return handle, nil
}

func (d *Dispatcher) arityState(arity int) *arityState {
	st := d.arities[arity]
	if st == nil {
		_, std := d.ops.(reflectOps)
		st = &arityState{
			cat:    newCatalog(arity, !std),
			caches: make(map[string]*cachedSearch),
		}
		st.graph = order.New(func(a, b *posClass) order.Rel {
			return cmpTuples(d.ops, a.representative(), b.representative())
		})
		d.arities[arity] = st
	}
	return st
}

// Unregister removes nothing: candidate removal is contractually
// unsupported and always returns ErrUnregisterUnsupported.
func (d *Dispatcher) Unregister(CandidateHandle) error {
	return ErrUnregisterUnsupported
}

// Call dispatches on the runtime types of args, trying candidate layers
// most specific first until a body returns a handled result. It fails with
// *NoApplicableCandidateError when the search exhausts.
func (d *Dispatcher) Call(args ...any) (any, error) {
	return d.call(args, nil, false)
}

// CallDefault is Call with a fallback: def is returned when every layer is
// exhausted without a handled result.
func (d *Dispatcher) CallDefault(def any, args ...any) (any, error) {
	return d.call(args, def, true)
}

func (d *Dispatcher) call(args []any, def any, hasDefault bool) (any, error) {
	types := RuntimeTypes(args)
	cs := d.search(types)
	for i := 0; ; i++ {
		layer, ok := cs.layerAt(i)
		if !ok {
			break
		}
		for _, at := range layer {
			if at.err != nil {
				return nil, at.err
			}
		}
		if len(layer) > 1 {
			cands := make([]*Candidate, len(layer))
			for j, at := range layer {
				cands[j] = at.cand
			}
			return nil, &AmbiguousCandidatesError{Candidates: cands, Types: types}
		}
		out := layer[0].cand.body(args)
		if out.handled {
			return out.value, nil
		}
	}
	if hasDefault {
		return def, nil
	}
	return nil, &NoApplicableCandidateError{Types: types}
}

// search returns the memoized resolution for the given type tuple,
// constructing it on first use. Construction snapshots the registry under
// the read lock; afterwards the cache never touches shared state.
func (d *Dispatcher) search(types []reflect.Type) *cachedSearch {
	d.mu.RLock()
	defer d.mu.RUnlock()
	st := d.arities[len(types)]
	if st == nil {
		return &cachedSearch{done: true}
	}
	key := typesKeyOf(types)
	st.cmu.Lock()
	defer st.cmu.Unlock()
	cs := st.caches[key]
	if cs == nil {
		cs = newCachedSearch(d.ops, st.cat, st.graph, types)
		st.caches[key] = cs
	}
	return cs
}

// Candidates returns every registered candidate, ordered by explicit
// priority descending, then arity, then specificity layering, then
// registration order.
func (d *Dispatcher) Candidates() []*Candidate {
	d.mu.RLock()
	defer d.mu.RUnlock()

	arities := make([]int, 0, len(d.arities))
	for a := range d.arities {
		arities = append(arities, a)
	}
	sort.Ints(arities)

	type ranked struct {
		c     *Candidate
		arity int
		layer int
	}
	var all []ranked
	for _, a := range arities {
		st := d.arities[a]
		for li, layer := range st.graph.Layers() {
			for _, id := range layer {
				for _, e := range st.graph.Value(id).entries {
					for _, c := range e.candidatesInOrder() {
						all = append(all, ranked{c: c, arity: a, layer: li})
					}
				}
			}
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		pi, pj := all[i].c.priority, all[j].c.priority
		if pi != pj {
			return pi.triedBefore(pj)
		}
		if all[i].arity != all[j].arity {
			return all[i].arity < all[j].arity
		}
		if all[i].layer != all[j].layer {
			return all[i].layer < all[j].layer
		}
		return all[i].c.seq < all[j].c.seq
	})
	out := make([]*Candidate, len(all))
	for i, r := range all {
		out[i] = r.c
	}
	return out
}

func typesKeyOf(ts []reflect.Type) string {
	var b strings.Builder
	for _, t := range ts {
		b.WriteString(typeKey(t))
		b.WriteByte(';')
	}
	return b.String()
}
