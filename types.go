package godispatch

import "reflect"

// TypeOps is the subtype capability supplied by the embedding environment.
// The core algorithm performs every hierarchy query through this interface
// and stays independent of any specific type-hierarchy representation.
type TypeOps interface {
	// IsSubtype reports whether sub can be used wherever super is expected.
	// It must be reflexive: IsSubtype(t, t) == true for every t.
	IsSubtype(sub, super reflect.Type) bool
}

// MatchRank grades one constraint/type match attempt.
type MatchRank int

const (
	// RankNone means the constraint rejects the type.
	RankNone MatchRank = iota
	// RankUpcast means the type matches as a strict subtype of the
	// constraint's target.
	RankUpcast
	// RankPerfect means the type matches the constraint exactly.
	RankPerfect
)

func (r MatchRank) String() string {
	switch r {
	case RankPerfect:
		return "perfect"
	case RankUpcast:
		return "upcast"
	default:
		return "none"
	}
}

// Bindings maps type-variable names to the types they were bound to during a
// match attempt. A fresh map is threaded through each attempted candidate;
// bindings never carry across candidates.
type Bindings map[string]reflect.Type

func (b Bindings) clone() Bindings {
	nb := make(Bindings, len(b)+1)
	for k, v := range b {
		nb[k] = v
	}
	return nb
}

// Outcome is the two-case result every candidate body returns. Continuation
// is an observable contract, not a magic value: a body that cannot handle the
// given arguments returns Continue() and the call loop moves on to the next
// layer.
type Outcome struct {
	value   any
	handled bool
}

// Handled wraps a real result. The wrapped value is returned from Call as-is,
// so a body may deliberately hand back any value, including another Outcome.
func Handled(v any) Outcome { return Outcome{value: v, handled: true} }

// Continue signals the call loop to keep searching less specific layers.
func Continue() Outcome { return Outcome{} }

// Body is the invocable owned by a candidate. args are the original call
// arguments, in declared parameter order.
type Body func(args []any) Outcome

// Nil is the runtime type assigned to untyped nil arguments, so candidates
// can constrain on it explicitly.
type Nil struct{}

var nilType = reflect.TypeOf(Nil{})

// RuntimeTypes computes the runtime type tuple Call dispatches on.
func RuntimeTypes(args []any) []reflect.Type {
	ts := make([]reflect.Type, len(args))
	for i, a := range args {
		t := reflect.TypeOf(a)
		if t == nil {
			t = nilType
		}
		ts[i] = t
	}
	return ts
}

// Option configures a Dispatcher at construction time.
type Option func(*Dispatcher)

// WithTypeOps replaces the default reflect-based subtype oracle.
func WithTypeOps(ops TypeOps) Option {
	return func(d *Dispatcher) { d.ops = ops }
}
