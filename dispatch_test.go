package godispatch_test

import (
	"errors"
	"testing"

	gd "github.com/reoring/godispatch"
	"github.com/reoring/godispatch/i18n"
)

// ---- fixture hierarchy ----

type Animal interface{ Sound() string }

type Dog struct{}

func (Dog) Sound() string { return "woof" }

type Cat struct{}

func (Cat) Sound() string { return "meow" }

func handledString(s string) gd.Body {
	return func([]any) gd.Outcome { return gd.Handled(s) }
}

func mustRegister(t *testing.T, d *gd.Dispatcher, cs []gd.Constraint, prio int, body gd.Body) gd.CandidateHandle {
	t.Helper()
	h, err := d.Register(cs, prio, body)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return h
}

func TestCall_DisjointPositionsDoNotConflict(t *testing.T) {
	d := gd.New("f")
	mustRegister(t, d, []gd.Constraint{gd.ExactFor[int](), gd.ExactFor[int]()}, 0, handledString("ii"))
	mustRegister(t, d, []gd.Constraint{gd.ExactFor[int](), gd.ExactFor[string]()}, 0, handledString("is"))

	out, err := d.Call(5, "x")
	if err != nil || out != "is" {
		t.Fatalf("call(5, \"x\"): out=%v err=%v", out, err)
	}
	out, err = d.Call(5, 5)
	if err != nil || out != "ii" {
		t.Fatalf("call(5, 5): out=%v err=%v", out, err)
	}
}

func TestCall_MoreSpecificWins(t *testing.T) {
	d := gd.New("collide")
	mustRegister(t, d, []gd.Constraint{gd.ExactFor[Animal](), gd.ExactFor[Animal]()}, 0, handledString("aa"))
	mustRegister(t, d, []gd.Constraint{gd.ExactFor[Dog](), gd.ExactFor[Dog]()}, 0, handledString("dd"))

	out, err := d.Call(Dog{}, Dog{})
	if err != nil || out != "dd" {
		t.Fatalf("call(dog, dog): out=%v err=%v", out, err)
	}
	out, err = d.Call(Dog{}, Cat{})
	if err != nil || out != "aa" {
		t.Fatalf("call(dog, cat): out=%v err=%v", out, err)
	}
}

func TestCall_Idempotent(t *testing.T) {
	d := gd.New("f")
	mustRegister(t, d, []gd.Constraint{gd.ExactFor[Animal]()}, 0, handledString("a"))
	mustRegister(t, d, []gd.Constraint{gd.ExactFor[Dog]()}, 0, handledString("d"))

	for i := 0; i < 3; i++ {
		out, err := d.Call(Dog{})
		if err != nil || out != "d" {
			t.Fatalf("iteration %d: out=%v err=%v", i, out, err)
		}
	}
}

func TestCall_RegistrationInvalidatesCache(t *testing.T) {
	d := gd.New("f")
	mustRegister(t, d, []gd.Constraint{gd.ExactFor[Animal]()}, 0, handledString("general"))

	out, err := d.Call(Dog{})
	if err != nil || out != "general" {
		t.Fatalf("before: out=%v err=%v", out, err)
	}

	// A strictly more specific candidate must win the very next call.
	mustRegister(t, d, []gd.Constraint{gd.ExactFor[Dog]()}, 0, handledString("specific"))
	out, err = d.Call(Dog{})
	if err != nil || out != "specific" {
		t.Fatalf("after: out=%v err=%v", out, err)
	}
}

func TestCall_AmbiguitySymmetric(t *testing.T) {
	for _, reversed := range []bool{false, true} {
		d := gd.New("amb")
		a := []gd.Constraint{gd.ExactFor[Dog](), gd.ExactFor[Animal]()}
		b := []gd.Constraint{gd.ExactFor[Animal](), gd.ExactFor[Dog]()}
		if reversed {
			a, b = b, a
		}
		ha := mustRegister(t, d, a, 0, handledString("a"))
		hb := mustRegister(t, d, b, 0, handledString("b"))

		_, err := d.Call(Dog{}, Dog{})
		var amb *gd.AmbiguousCandidatesError
		if !errors.As(err, &amb) {
			t.Fatalf("reversed=%v: expected ambiguity, got %v", reversed, err)
		}
		if len(amb.Candidates) != 2 {
			t.Fatalf("reversed=%v: expected both candidates, got %v", reversed, amb.Candidates)
		}
		handles := map[gd.CandidateHandle]bool{
			amb.Candidates[0].Handle(): true,
			amb.Candidates[1].Handle(): true,
		}
		if !handles[ha] || !handles[hb] {
			t.Fatalf("reversed=%v: tying set should be exactly the two registrations", reversed)
		}
	}
}

func TestCall_PriorityBreaksTieWithinLayer(t *testing.T) {
	d := gd.New("amb")
	mustRegister(t, d, []gd.Constraint{gd.ExactFor[Dog](), gd.ExactFor[Animal]()}, 1, handledString("left"))
	mustRegister(t, d, []gd.Constraint{gd.ExactFor[Animal](), gd.ExactFor[Dog]()}, 0, handledString("right"))

	out, err := d.Call(Dog{}, Dog{})
	if err != nil || out != "left" {
		t.Fatalf("out=%v err=%v", out, err)
	}
}

func TestCall_PriorityDoesNotOverrideSpecificity(t *testing.T) {
	d := gd.New("f")
	mustRegister(t, d, []gd.Constraint{gd.ExactFor[Animal]()}, 10, handledString("general"))
	mustRegister(t, d, []gd.Constraint{gd.ExactFor[Dog]()}, 0, handledString("specific"))

	out, err := d.Call(Dog{})
	if err != nil || out != "specific" {
		t.Fatalf("out=%v err=%v", out, err)
	}
}

func TestCall_SupersedingCandidateWinsRegardlessOfRegistrationOrder(t *testing.T) {
	// The middle candidate supersedes the last one, but the two are related
	// only through a tuple that is incomparable with the last; the order
	// graph must wire that edge for every registration order.
	tuples := [][]gd.Constraint{
		{gd.ExactFor[Dog](), gd.Wildcard()},
		{gd.ExactFor[Dog](), gd.ExactFor[Cat]()},
		{gd.Wildcard(), gd.ExactFor[Cat]()},
	}
	names := []string{"dog-any", "dog-cat", "any-cat"}
	for _, perm := range [][]int{{0, 1, 2}, {2, 1, 0}, {1, 0, 2}, {0, 2, 1}} {
		d := gd.New("f")
		for _, i := range perm {
			mustRegister(t, d, tuples[i], 0, handledString(names[i]))
		}

		out, err := d.Call(Dog{}, Cat{})
		if err != nil || out != "dog-cat" {
			t.Fatalf("order %v: out=%v err=%v", perm, out, err)
		}
		out, err = d.Call(Dog{}, Dog{})
		if err != nil || out != "dog-any" {
			t.Fatalf("order %v: out=%v err=%v", perm, out, err)
		}
		out, err = d.Call(Cat{}, Cat{})
		if err != nil || out != "any-cat" {
			t.Fatalf("order %v: out=%v err=%v", perm, out, err)
		}
	}
}

func TestCall_ContinueFallsThroughLayers(t *testing.T) {
	d := gd.New("f")
	var attempts []string
	mustRegister(t, d, []gd.Constraint{gd.ExactFor[Animal]()}, 0, func([]any) gd.Outcome {
		attempts = append(attempts, "general")
		return gd.Handled("general")
	})
	mustRegister(t, d, []gd.Constraint{gd.ExactFor[Dog]()}, 0, func([]any) gd.Outcome {
		attempts = append(attempts, "specific")
		return gd.Continue()
	})

	out, err := d.Call(Dog{})
	if err != nil || out != "general" {
		t.Fatalf("out=%v err=%v", out, err)
	}
	if len(attempts) != 2 || attempts[0] != "specific" || attempts[1] != "general" {
		t.Fatalf("attempt order: %v", attempts)
	}
}

func TestCall_HandledOutcomeValuePassesThrough(t *testing.T) {
	d := gd.New("f")
	inner := gd.Continue()
	mustRegister(t, d, []gd.Constraint{gd.ExactFor[int]()}, 0, func([]any) gd.Outcome {
		// Deliberately return an Outcome value as the real result.
		return gd.Handled(inner)
	})

	out, err := d.Call(1)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if out != inner {
		t.Fatalf("expected the raw Outcome value back, got %#v", out)
	}
}

func TestCall_ExhaustionDefaultAndError(t *testing.T) {
	d := gd.New("f")
	mustRegister(t, d, []gd.Constraint{gd.ExactFor[int]()}, 0, func([]any) gd.Outcome {
		return gd.Continue()
	})

	out, err := d.CallDefault("fallback", 5)
	if err != nil || out != "fallback" {
		t.Fatalf("default: out=%v err=%v", out, err)
	}

	_, err = d.Call(5)
	var noc *gd.NoApplicableCandidateError
	if !errors.As(err, &noc) {
		t.Fatalf("expected NoApplicableCandidateError, got %v", err)
	}
	de, ok := gd.AsDispatchError(err)
	if !ok || de.Code() != gd.CodeNoApplicableCandidate {
		t.Fatalf("expected code %q, got %v", gd.CodeNoApplicableCandidate, err)
	}

	// No candidate of this arity at all.
	_, err = d.Call(5, 6)
	if !errors.As(err, &noc) {
		t.Fatalf("expected NoApplicableCandidateError for unseen arity, got %v", err)
	}
}

func TestRegister_DuplicateRejectedRegistryUnchanged(t *testing.T) {
	d := gd.New("f")
	cs := []gd.Constraint{gd.ExactFor[int](), gd.ExactFor[int]()}
	mustRegister(t, d, cs, 0, handledString("first"))

	_, err := d.Register(cs, 0, handledString("second"))
	var dup *gd.DuplicateCandidateError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateCandidateError, got %v", err)
	}

	out, err := d.Call(1, 2)
	if err != nil || out != "first" {
		t.Fatalf("first candidate should still be callable: out=%v err=%v", out, err)
	}
	if n := len(d.Candidates()); n != 1 {
		t.Fatalf("expected 1 candidate, got %d", n)
	}
}

func TestRegister_SameConstraintsDifferentPriorityAllowed(t *testing.T) {
	d := gd.New("f")
	cs := []gd.Constraint{gd.ExactFor[int]()}
	mustRegister(t, d, cs, 0, func([]any) gd.Outcome { return gd.Continue() })
	mustRegister(t, d, cs, 1, handledString("high"))

	// Within one layer the higher priority is attempted first; the lower
	// one still runs when it continues.
	out, err := d.Call(1)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if out != "high" {
		t.Fatalf("out=%v", out)
	}
}

func TestRegister_AnyOfExpands(t *testing.T) {
	d := gd.New("f")
	h := mustRegister(t, d, []gd.Constraint{
		gd.AnyOf(gd.ExactFor[int](), gd.ExactFor[string]()),
		gd.ExactFor[bool](),
	}, 0, handledString("hit"))

	for _, args := range [][]any{{1, true}, {"s", true}} {
		out, err := d.Call(args...)
		if err != nil || out != "hit" {
			t.Fatalf("call(%v): out=%v err=%v", args, out, err)
		}
	}
	cands := d.Candidates()
	if len(cands) != 2 {
		t.Fatalf("expected 2 expanded candidates, got %d", len(cands))
	}
	for _, c := range cands {
		if c.Handle() != h {
			t.Fatalf("expanded candidates should share the registration handle")
		}
	}
}

func TestCall_WildcardLosesToExact(t *testing.T) {
	d := gd.New("f")
	mustRegister(t, d, []gd.Constraint{gd.Wildcard()}, 0, handledString("any"))
	mustRegister(t, d, []gd.Constraint{gd.ExactFor[int]()}, 0, handledString("int"))

	out, err := d.Call(3)
	if err != nil || out != "int" {
		t.Fatalf("out=%v err=%v", out, err)
	}
	out, err = d.Call("s")
	if err != nil || out != "any" {
		t.Fatalf("out=%v err=%v", out, err)
	}
}

func TestCall_NilArgumentDispatchesOnNilType(t *testing.T) {
	d := gd.New("f")
	mustRegister(t, d, []gd.Constraint{gd.ExactFor[gd.Nil]()}, 0, handledString("nil"))
	mustRegister(t, d, []gd.Constraint{gd.ExactFor[int]()}, 0, handledString("int"))

	out, err := d.Call(nil)
	if err != nil || out != "nil" {
		t.Fatalf("out=%v err=%v", out, err)
	}
}

func TestCall_ZeroArity(t *testing.T) {
	d := gd.New("f")
	mustRegister(t, d, nil, 0, handledString("unit"))
	out, err := d.Call()
	if err != nil || out != "unit" {
		t.Fatalf("out=%v err=%v", out, err)
	}
}

func TestUnregister_Unsupported(t *testing.T) {
	d := gd.New("f")
	h := mustRegister(t, d, []gd.Constraint{gd.ExactFor[int]()}, 0, handledString("x"))
	if err := d.Unregister(h); !errors.Is(err, gd.ErrUnregisterUnsupported) {
		t.Fatalf("expected ErrUnregisterUnsupported, got %v", err)
	}
}

func TestUnregister_MessageFollowsActiveLanguage(t *testing.T) {
	en := gd.ErrUnregisterUnsupported.Error()
	i18n.SetLanguage("ja")
	defer i18n.SetLanguage("en")
	if got := gd.ErrUnregisterUnsupported.Error(); got == en {
		t.Fatalf("expected the message to follow the active language, got %q", got)
	}
}

func TestCandidates_Ordering(t *testing.T) {
	d := gd.New("f")
	mustRegister(t, d, []gd.Constraint{gd.ExactFor[Animal]()}, 0, handledString("a"))
	mustRegister(t, d, []gd.Constraint{gd.ExactFor[Dog]()}, 0, handledString("d"))
	mustRegister(t, d, []gd.Constraint{gd.ExactFor[Cat]()}, 5, handledString("c"))

	cands := d.Candidates()
	if len(cands) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(cands))
	}
	if cands[0].Priority() != 5 {
		t.Fatalf("highest priority first, got %d", cands[0].Priority())
	}
	// Equal priority: specificity layering puts the general Animal
	// candidate before Dog.
	if got := cands[1].Constraints()[0].String(); got == "" {
		t.Fatalf("unexpected rendering %q", got)
	}
	if cands[1].Constraints()[0].String() != gd.ExactFor[Animal]().String() {
		t.Fatalf("expected Animal layer before Dog, got %v then %v", cands[1], cands[2])
	}
}
