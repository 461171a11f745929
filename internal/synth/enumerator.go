// Package synth implements the search half of the CEGIS loop: the
// odometer-ordered candidate enumerator with constraint pruning, and the
// synthesizer that drives one full enumerate → instantiate → apply →
// verify attempt.
package synth

import (
	"redress/internal/constraint"
	"redress/internal/patch"
)

// Enumerator lazily yields hole assignments in odometer order: holes in
// the hole space's declared order, the last hole's value varying fastest.
// Assignments violating any held constraint are skipped silently.
// Constraints may be added mid-enumeration; the odometer position only
// ever advances, so already-skipped positions are never revisited.
type Enumerator struct {
	holes       [][]patch.Value // domains, in hole order
	names       []string
	idx         []int
	done        bool
	constraints *constraint.Set
	yielded     int
	pruned      int
}

// NewEnumerator builds an enumerator over the hole space with an initial
// constraint list. A space with no holes or an empty domain is exhausted
// from the start.
func NewEnumerator(space *patch.HoleSpace, initial []constraint.Constraint) *Enumerator {
	names := space.Holes()
	e := &Enumerator{
		names:       names,
		holes:       make([][]patch.Value, len(names)),
		idx:         make([]int, len(names)),
		constraints: constraint.NewSet(initial...),
	}
	for i, name := range names {
		domain, _ := space.Domain(name)
		e.holes[i] = domain
		if len(domain) == 0 {
			e.done = true
		}
	}
	if len(names) == 0 {
		e.done = true
	}
	return e
}

// Add enlarges the constraint set. Subsequent yields respect the new
// constraints; nothing already yielded is retracted.
func (e *Enumerator) Add(cs ...constraint.Constraint) {
	e.constraints.AddAll(cs)
}

// Next returns the next assignment that violates no held constraint. The
// second result is false once the odometer has overflowed.
func (e *Enumerator) Next() (patch.Assignment, bool) {
	for !e.done {
		a := make(patch.Assignment, len(e.names))
		for i, name := range e.names {
			a[name] = e.holes[i][e.idx[i]]
		}
		e.advance()
		if e.constraints.Violates(a) {
			e.pruned++
			continue
		}
		e.yielded++
		return a, true
	}
	return nil, false
}

// advance increments the odometer: last hole fastest, carrying left.
func (e *Enumerator) advance() {
	for i := len(e.idx) - 1; i >= 0; i-- {
		e.idx[i]++
		if e.idx[i] < len(e.holes[i]) {
			return
		}
		e.idx[i] = 0
	}
	e.done = true
}

// Exhausted reports whether the odometer has overflowed past the first
// hole's last value.
func (e *Enumerator) Exhausted() bool { return e.done }

// Yielded returns the number of assignments handed to the caller. Once
// Exhausted, Yielded and Pruned together tell a genuinely empty product
// (both zero) from a search where every position was pruned (Yielded
// zero, Pruned positive).
func (e *Enumerator) Yielded() int { return e.yielded }

// Pruned returns the number of positions skipped by constraints.
func (e *Enumerator) Pruned() int { return e.pruned }
