package godispatch

import (
	"reflect"
	"sort"
	"sync"

	set "github.com/hashicorp/go-set/v3"

	"github.com/reoring/godispatch/internal/order"
)

// attempt is one candidate that survived filtering for a query, together
// with the bindings its match produced, or the binding error it tripped.
// A tripped error is raised when resolution reaches the attempt's layer, so
// a more specific successful candidate still wins without surfacing it.
type attempt struct {
	cand     *Candidate
	bindings Bindings
	err      error
}

type searchEntry struct {
	e *entry
	v *verdict
}

// cachedSearch is the memoized resolution for one concrete type tuple. The
// registry is matched once at construction (a referentially transparent
// snapshot); layers are then peeled lazily, most specific first: each
// advance emits the matched entries with no unemitted more-specific matched
// entry remaining, split by priority descending. Already-emitted layers are
// never reordered; registration invalidates the whole cache instead.
type cachedSearch struct {
	mu       sync.Mutex
	types    []reflect.Type
	layers   [][]attempt
	pending  []*searchEntry        // matched, unemitted, in registration order
	blockers map[int]*set.Set[int] // classID -> matched unemitted descendant classes
	done     bool
}

func newCachedSearch(ops TypeOps, cat *catalog, g *order.Graph[*posClass], types []reflect.Type) *cachedSearch {
	cs := &cachedSearch{types: types}
	if cat == nil {
		cs.done = true
		return cs
	}
	verdicts := cat.verdicts(ops, types)
	matched := set.New[int](len(verdicts))
	for e := range verdicts {
		matched.Insert(e.classID)
	}
	for _, e := range cat.entries {
		if v, ok := verdicts[e]; ok {
			cs.pending = append(cs.pending, &searchEntry{e: e, v: v})
		}
	}
	cs.blockers = make(map[int]*set.Set[int], matched.Size())
	for cid := range matched.Items() {
		cs.blockers[cid] = g.Descendants(cid).Intersect(matched).(*set.Set[int])
	}
	return cs
}

// layerAt extends the materialized prefix on demand and returns layer i.
func (cs *cachedSearch) layerAt(i int) ([]attempt, bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for len(cs.layers) <= i {
		if !cs.advance() {
			return nil, false
		}
	}
	return cs.layers[i], true
}

// advance consumes the next unresolved specificity layer and appends its
// effective (priority-split) layers. It reports false once the matched
// region is exhausted.
func (cs *cachedSearch) advance() bool {
	if cs.done {
		return false
	}
	var ready []*searchEntry
	rest := cs.pending[:0]
	for _, se := range cs.pending {
		if cs.blockers[se.e.classID].Empty() {
			ready = append(ready, se)
		} else {
			rest = append(rest, se)
		}
	}
	cs.pending = rest
	if len(ready) == 0 {
		cs.done = true
		return false
	}

	emitted := set.New[int](len(ready))
	for _, se := range ready {
		emitted.Insert(se.e.classID)
	}
	for _, b := range cs.blockers {
		for cid := range emitted.Items() {
			b.Remove(cid)
		}
	}

	grouped := make(map[priorityKey][]attempt)
	var keys []priorityKey
	for _, se := range ready {
		for _, c := range se.e.candidatesInOrder() {
			if _, ok := grouped[c.priority]; !ok {
				keys = append(keys, c.priority)
			}
			grouped[c.priority] = append(grouped[c.priority], attempt{
				cand:     c,
				bindings: se.v.bindings,
				err:      se.v.err,
			})
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].triedBefore(keys[j]) })
	for _, pk := range keys {
		layer := grouped[pk]
		sort.Slice(layer, func(i, j int) bool { return layer[i].cand.seq < layer[j].cand.seq })
		cs.layers = append(cs.layers, layer)
	}
	return true
}
