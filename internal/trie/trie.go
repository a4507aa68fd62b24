// Package trie implements the candidate index: a trie keyed by one
// comparable key per parameter position. Each node tracks which of its
// children are "special" (not addressable by identity at lookup time) in a
// side list, so identity lookups stay a single map hit and special children
// can be enumerated without scanning the exact child map.
package trie

// Node is one level of the trie.
type Node[K comparable, V any] struct {
	children map[K]*Node[K, V]
	special  []K
	value    V
	has      bool
}

// Child returns the child for key k, or nil.
func (n *Node[K, V]) Child(k K) *Node[K, V] {
	return n.children[k]
}

// Special returns the special child keys in insertion order.
func (n *Node[K, V]) Special() []K { return n.special }

// Value returns the value stored at this node, if any.
func (n *Node[K, V]) Value() (V, bool) { return n.value, n.has }

// SetValue stores v at this node, reporting whether the slot was empty.
func (n *Node[K, V]) SetValue(v V) bool {
	fresh := !n.has
	n.value = v
	n.has = true
	return fresh
}

// Each visits every child of n, exact and special alike.
func (n *Node[K, V]) Each(fn func(k K, child *Node[K, V])) {
	for k, c := range n.children {
		fn(k, c)
	}
}

func (n *Node[K, V]) ensureChild(k K, special bool) *Node[K, V] {
	if n.children == nil {
		n.children = make(map[K]*Node[K, V], 1)
	}
	c := n.children[k]
	if c == nil {
		c = &Node[K, V]{}
		n.children[k] = c
		if special {
			n.special = append(n.special, k)
		}
	}
	return c
}

// Trie maps key paths to values.
type Trie[K comparable, V any] struct {
	root Node[K, V]
	size int
}

func New[K comparable, V any]() *Trie[K, V] { return &Trie[K, V]{} }

// Len reports the number of stored values.
func (t *Trie[K, V]) Len() int { return t.size }

// Root returns the depth-zero node.
func (t *Trie[K, V]) Root() *Node[K, V] { return &t.root }

// Descend ensures a node exists for path and returns it. special reports,
// per key, whether that key must be indexed in the side list rather than
// relied on for identity lookup.
func (t *Trie[K, V]) Descend(path []K, special func(K) bool) *Node[K, V] {
	cur := &t.root
	for _, k := range path {
		cur = cur.ensureChild(k, special(k))
	}
	return cur
}

// Get returns the value stored at exactly path.
func (t *Trie[K, V]) Get(path []K) (V, bool) {
	cur := &t.root
	for _, k := range path {
		cur = cur.Child(k)
		if cur == nil {
			var zero V
			return zero, false
		}
	}
	return cur.Value()
}

// Put stores v at path, creating nodes as needed.
func (t *Trie[K, V]) Put(path []K, v V, special func(K) bool) {
	n := t.Descend(path, special)
	if n.SetValue(v) {
		t.size++
	}
}

