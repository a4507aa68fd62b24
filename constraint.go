package godispatch

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/reoring/godispatch/internal/order"
)

type constraintKind int

const (
	kindExact constraintKind = iota
	kindWildcard
	kindTypeVar
	kindAnyOf
)

// Constraint is the match predicate for one parameter position. A stored
// constraint is always Exact, Wildcard, or TypeVar; AnyOf exists only at
// registration time and is expanded by cross-product before storage.
type Constraint struct {
	kind    constraintKind
	typ     reflect.Type   // kindExact
	name    string         // kindTypeVar
	members []reflect.Type // kindTypeVar constraint set; empty means unbounded
	alts    []Constraint   // kindAnyOf
}

// Exact matches t perfectly and strict subtypes of t by upcast.
func Exact(t reflect.Type) Constraint {
	return Constraint{kind: kindExact, typ: t}
}

// ExactFor is Exact over the reflect type of T. It works for interface types
// as well as concrete ones.
func ExactFor[T any]() Constraint {
	return Exact(TypeOf[T]())
}

// TypeOf returns the reflect type of T without needing a value of it.
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Wildcard matches every type, ranked least specific.
func Wildcard() Constraint {
	return Constraint{kind: kindWildcard}
}

// TypeVar matches a type that can be minimally upcast to one of members,
// binding name to that member for the rest of the candidate's positions.
// Two TypeVar constraints with the same name inside one candidate share a
// binding: the first position binds, later positions validate against the
// bound type. With no members the variable is unbounded and binds to the
// runtime type itself.
func TypeVar(name string, members ...reflect.Type) Constraint {
	return Constraint{kind: kindTypeVar, name: name, members: members}
}

// AnyOf matches any of the alternative constraints. It is registration-time
// sugar: Register expands each alternative into its own candidate.
func AnyOf(alts ...Constraint) Constraint {
	return Constraint{kind: kindAnyOf, alts: alts}
}

// IsTypeVar reports whether the constraint is a type variable, and its name.
func (c Constraint) IsTypeVar() (string, bool) {
	if c.kind == kindTypeVar {
		return c.name, true
	}
	return "", false
}

func (c Constraint) String() string {
	switch c.kind {
	case kindExact:
		return typeName(c.typ)
	case kindWildcard:
		return "*"
	case kindTypeVar:
		if len(c.members) == 0 {
			return "$" + c.name
		}
		names := make([]string, len(c.members))
		for i, m := range c.members {
			names[i] = typeName(m)
		}
		return "$" + c.name + "{" + strings.Join(names, "|") + "}"
	case kindAnyOf:
		parts := make([]string, len(c.alts))
		for i, a := range c.alts {
			parts[i] = a.String()
		}
		return "(" + strings.Join(parts, "|") + ")"
	}
	return "<invalid>"
}

// key renders a canonical identity for a core constraint, used for trie
// indexing and duplicate detection.
func (c Constraint) key() string {
	switch c.kind {
	case kindExact:
		return "=" + typeKey(c.typ)
	case kindWildcard:
		return "*"
	case kindTypeVar:
		keys := make([]string, len(c.members))
		for i, m := range c.members {
			keys[i] = typeKey(m)
		}
		return "$" + c.name + "[" + strings.Join(keys, ",") + "]"
	}
	return "?"
}

// special reports whether the constraint cannot be indexed by runtime type
// identity and must live in a registry node's special side-set.
func (c Constraint) special() bool {
	switch c.kind {
	case kindExact:
		return isAbstract(c.typ)
	default:
		return true
	}
}

func (c Constraint) valid() error {
	switch c.kind {
	case kindExact:
		if c.typ == nil {
			return fmt.Errorf("godispatch: Exact constraint with nil type")
		}
	case kindTypeVar:
		if c.name == "" {
			return fmt.Errorf("godispatch: TypeVar constraint with empty name")
		}
		for _, m := range c.members {
			if m == nil {
				return fmt.Errorf("godispatch: TypeVar %q with nil member", c.name)
			}
		}
	case kindAnyOf:
		if len(c.alts) == 0 {
			return fmt.Errorf("godispatch: AnyOf constraint with no alternatives")
		}
		for _, a := range c.alts {
			if a.kind == kindAnyOf {
				return fmt.Errorf("godispatch: AnyOf constraints cannot nest")
			}
			if err := a.valid(); err != nil {
				return err
			}
		}
	}
	return nil
}

// matchConstraint grades one position of a match attempt. It returns the
// bindings to thread into the next position; the input map is never mutated.
func matchConstraint(ops TypeOps, c Constraint, rt reflect.Type, b Bindings) (MatchRank, Bindings, error) {
	switch c.kind {
	case kindExact:
		return matchExact(ops, c.typ, rt), b, nil
	case kindWildcard:
		return RankUpcast, b, nil
	case kindTypeVar:
		if bound, ok := b[c.name]; ok {
			return matchExact(ops, bound, rt), b, nil
		}
		bound, ambiguous := minimalUpcast(ops, rt, c.members)
		if ambiguous != nil {
			return RankNone, b, &AmbiguousBindingError{
				Variable: c.name,
				Subtype:  rt,
				Members:  ambiguous,
			}
		}
		if bound == nil {
			return RankNone, b, nil
		}
		nb := b.clone()
		nb[c.name] = bound
		if bound == rt {
			return RankPerfect, nb, nil
		}
		return RankUpcast, nb, nil
	}
	return RankNone, b, nil
}

func matchExact(ops TypeOps, target, rt reflect.Type) MatchRank {
	if rt == target {
		return RankPerfect
	}
	if ops.IsSubtype(rt, target) {
		return RankUpcast
	}
	return RankNone
}

// minimalUpcast computes the lowest member of members that rt can be upcast
// to. With no members it returns rt itself. It returns (nil, nil) when no
// member accepts rt, and (nil, incomparable) when more than one minimal
// member does: that set is a user-visible ambiguity, not a silent miss,
// because the call could have matched had the constraint set been designed
// differently.
func minimalUpcast(ops TypeOps, rt reflect.Type, members []reflect.Type) (reflect.Type, []reflect.Type) {
	if len(members) == 0 {
		return rt, nil
	}
	var candidates []reflect.Type
	for _, m := range members {
		if ops.IsSubtype(rt, m) {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	var minimal []reflect.Type
	for _, m := range candidates {
		low := true
		for _, other := range candidates {
			if !ops.IsSubtype(m, other) {
				low = false
				break
			}
		}
		if low {
			minimal = append(minimal, m)
		}
	}
	if len(minimal) == 1 {
		return minimal[0], nil
	}
	if len(minimal) == 0 {
		minimal = candidates
	}
	return nil, minimal
}

// matchTuple matches a whole constraint tuple position by position, left to
// right, threading one shared bindings map. The overall rank is the worst
// per-position rank; a binding error aborts the whole match.
func matchTuple(ops TypeOps, cs []Constraint, types []reflect.Type) (MatchRank, Bindings, error) {
	if len(cs) != len(types) {
		return RankNone, nil, nil
	}
	rank := RankPerfect
	b := Bindings{}
	for i, c := range cs {
		r, nb, err := matchConstraint(ops, c, types[i], b)
		if err != nil {
			return RankNone, nil, err
		}
		if r == RankNone {
			return RankNone, nil, nil
		}
		if r < rank {
			rank = r
		}
		b = nb
	}
	return rank, b, nil
}

// cmpConstraint compares two core constraints under the natural specificity
// order. Before means a is strictly more general than b. A TypeVar compares
// through all of its members, mirroring universal quantification over the
// variable's possible bindings; an unbounded variable compares like the top
// type.
func cmpConstraint(ops TypeOps, a, b Constraint) order.Rel {
	switch a.kind {
	case kindWildcard:
		if b.kind == kindWildcard {
			return order.Equal
		}
		return order.Before
	case kindTypeVar:
		if len(a.members) == 0 {
			return cmpConstraint(ops, Exact(anyType), b)
		}
		rels := make([]order.Rel, len(a.members))
		for i, m := range a.members {
			rels[i] = cmpConstraint(ops, Exact(m), b)
		}
		return similarSign(rels)
	case kindExact:
		switch b.kind {
		case kindWildcard, kindTypeVar:
			return cmpConstraint(ops, b, a).Invert()
		case kindExact:
			if a.typ == b.typ {
				return order.Equal
			}
			if ops.IsSubtype(a.typ, b.typ) {
				return order.After
			}
			if ops.IsSubtype(b.typ, a.typ) {
				return order.Before
			}
			return order.Incomparable
		}
	}
	return order.Incomparable
}

// similarSign folds per-member comparisons into one: every member must agree
// on a direction, with Equal acting as a wildcard.
func similarSign(rels []order.Rel) order.Rel {
	ret := order.Equal
	for _, r := range rels {
		switch {
		case r == order.Incomparable:
			return order.Incomparable
		case r == order.Equal:
			continue
		case ret == order.Equal:
			ret = r
		case ret != r:
			return order.Incomparable
		}
	}
	return ret
}

// cmpTuples compares two equal-arity constraint tuples position-wise. If any
// position is incomparable, or two positions disagree on direction, the
// tuples are incomparable and live on the same layer.
func cmpTuples(ops TypeOps, a, b []Constraint) order.Rel {
	ret := order.Equal
	for i := range a {
		r := cmpConstraint(ops, a[i], b[i])
		switch {
		case r == order.Incomparable:
			return order.Incomparable
		case r == order.Equal:
			continue
		case ret == order.Equal:
			ret = r
		case ret != r:
			return order.Incomparable
		}
	}
	return ret
}

var anyType = reflect.TypeOf((*any)(nil)).Elem()

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}

// typeKey renders a canonical identity string for a type, disambiguating
// same-named types from different packages by their import paths.
func typeKey(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	if t.Name() != "" {
		if pp := t.PkgPath(); pp != "" {
			return pp + "." + t.Name()
		}
		return t.Name()
	}
	switch t.Kind() {
	case reflect.Pointer:
		return "*" + typeKey(t.Elem())
	case reflect.Slice:
		return "[]" + typeKey(t.Elem())
	case reflect.Array:
		return fmt.Sprintf("[%d]%s", t.Len(), typeKey(t.Elem()))
	case reflect.Map:
		return "map[" + typeKey(t.Key()) + "]" + typeKey(t.Elem())
	case reflect.Chan:
		return "chan " + typeKey(t.Elem())
	default:
		return t.String()
	}
}
