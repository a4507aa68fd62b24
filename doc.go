// Package godispatch provides:
//
// - Multiple dispatch over N arguments: candidates guarded by per-parameter
//   type constraints, selected at call time by runtime argument types
// - A specificity partial order with explicit priorities, deterministic
//   layering, and ambiguity detection
// - Generic type-variable constraints with minimal-upcast binding
// - An offline conflict auditor (Audit) reporting potential ambiguities and
//   binding failures without invoking anything
//
// Design policy:
// - Keep only public APIs in the root package; put generic data structures
//   under internal/.
// - The core never inspects values, only runtime type identity; subtype
//   queries go through the injectable TypeOps capability.
// - Prefer black-box testing against public APIs.
//
// Typical usage:
//
//	d := godispatch.New("collide")
//	d.Register([]godispatch.Constraint{
//		godispatch.ExactFor[*Asteroid](),
//		godispatch.ExactFor[*Ship](),
//	}, 0, func(args []any) godispatch.Outcome {
//		return godispatch.Handled(hit(args[0], args[1]))
//	})
//	out, err := d.Call(a, s)
package godispatch
