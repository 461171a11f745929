package synth

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"redress/internal/constraint"
	"redress/internal/patch"
)

func drain(e *Enumerator) []patch.Assignment {
	var out []patch.Assignment
	for {
		a, ok := e.Next()
		if !ok {
			return out
		}
		out = append(out, a)
	}
}

func assignmentStrings(as []patch.Assignment) []string {
	out := make([]string, len(as))
	for i, a := range as {
		out[i] = a.String()
	}
	return out
}

func TestEnumeratorCompleteness(t *testing.T) {
	// Sizes 1, 2, 3: the full cross product in odometer order, last hole
	// varying fastest.
	space := patch.NewHoleSpace().
		Add("a", patch.Int(0)).
		Add("b", patch.Int(0), patch.Int(1)).
		Add("c", patch.Int(0), patch.Int(1), patch.Int(2))

	got := assignmentStrings(drain(NewEnumerator(space, nil)))
	want := []string{
		"{a=0, b=0, c=0}",
		"{a=0, b=0, c=1}",
		"{a=0, b=0, c=2}",
		"{a=0, b=1, c=0}",
		"{a=0, b=1, c=1}",
		"{a=0, b=1, c=2}",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("enumeration order (-want +got):\n%s", diff)
	}
}

func TestEnumeratorSingleHole(t *testing.T) {
	space := patch.NewHoleSpace().Add("x", patch.String("a"), patch.String("b"))
	e := NewEnumerator(space, nil)
	got := drain(e)
	if len(got) != 2 || !got[0]["x"].Equal(patch.String("a")) {
		t.Fatalf("yields = %v", assignmentStrings(got))
	}
	if !e.Exhausted() {
		t.Fatalf("enumerator not exhausted after drain")
	}
}

func TestEnumeratorEmptySpace(t *testing.T) {
	e := NewEnumerator(patch.NewHoleSpace(), nil)
	if _, ok := e.Next(); ok {
		t.Fatalf("empty space yielded an assignment")
	}
	if !e.Exhausted() {
		t.Fatalf("empty space not exhausted")
	}
}

func TestEnumeratorSoundness(t *testing.T) {
	space := patch.NewHoleSpace().
		Add("env", patch.String("staging"), patch.String("prod")).
		Add("replicas", patch.Int(2), patch.Int(3))

	tuple, _ := constraint.ForbidTuple(
		[]string{"env", "replicas"},
		[]patch.Value{patch.String("prod"), patch.Int(2)},
	)
	cs := []constraint.Constraint{
		constraint.ForbidValue("replicas", patch.Int(3)),
		tuple,
	}
	got := drain(NewEnumerator(space, cs))
	if len(got) != 1 {
		t.Fatalf("yields = %v, want only {env=staging, replicas=2}", assignmentStrings(got))
	}
	for _, a := range got {
		for _, c := range cs {
			if c.Violates(a) {
				t.Fatalf("yielded %s violates %s", a, c)
			}
		}
	}
}

func TestEnumeratorAllPrunedVsEmpty(t *testing.T) {
	space := patch.NewHoleSpace().Add("env", patch.String("prod"))
	e := NewEnumerator(space, []constraint.Constraint{
		constraint.ForbidValue("env", patch.String("prod")),
	})
	if _, ok := e.Next(); ok {
		t.Fatalf("fully pruned space yielded an assignment")
	}
	if !e.Exhausted() {
		t.Fatalf("not exhausted")
	}
	if e.Yielded() != 0 || e.Pruned() != 1 {
		t.Fatalf("yielded=%d pruned=%d, want 0/1", e.Yielded(), e.Pruned())
	}
}

func TestEnumeratorMonotonicAdd(t *testing.T) {
	space := patch.NewHoleSpace().
		Add("b", patch.Int(0), patch.Int(1)).
		Add("c", patch.Int(0), patch.Int(1))
	e := NewEnumerator(space, nil)

	first, ok := e.Next()
	if !ok {
		t.Fatalf("no first yield")
	}

	// Forbid a later cell mid-enumeration; the position never rewinds and
	// the constraint binds all subsequent yields.
	tuple, _ := constraint.ForbidTuple(
		[]string{"b", "c"},
		[]patch.Value{patch.Int(1), patch.Int(0)},
	)
	e.Add(tuple)

	rest := drain(e)
	for _, a := range rest {
		if a.Equal(first) {
			t.Fatalf("assignment %s yielded twice after Add", a)
		}
		if tuple.Violates(a) {
			t.Fatalf("yield %s violates added constraint", a)
		}
	}
	got := assignmentStrings(append([]patch.Assignment{first}, rest...))
	want := []string{
		"{b=0, c=0}",
		"{b=0, c=1}",
		"{b=1, c=1}",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("yields (-want +got):\n%s", diff)
	}
}

func TestEnumeratorDeterminism(t *testing.T) {
	space := patch.NewHoleSpace().
		Add("x", patch.Int(0), patch.Int(1), patch.Int(2)).
		Add("y", patch.String("a"), patch.String("b"))
	a := assignmentStrings(drain(NewEnumerator(space, nil)))
	b := assignmentStrings(drain(NewEnumerator(space, nil)))
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("two runs differ (-first +second):\n%s", diff)
	}
}
