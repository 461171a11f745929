package oracle

import (
	"redress/internal/constraint"
	"redress/internal/patch"
)

// Extract maps violation evidence to constraints. It emits exactly what
// the evidence asserts: forbid_value pairs become ForbiddenValue,
// forbid_tuple entries of two or more pairs become canonical
// ForbiddenTuple. Results are deduplicated by structural equality.
// Evidence naming holes absent from the hole space is discarded: the
// oracle is signalling a violation this template cannot address.
func Extract(violations []Violation, space *patch.HoleSpace) []constraint.Constraint {
	set := constraint.NewSet()
	for _, v := range violations {
		for _, hv := range v.Evidence.ForbidValues {
			if !space.Has(hv.Hole) {
				continue
			}
			set.Add(constraint.ForbidValue(hv.Hole, hv.Value))
		}
		for _, tuple := range v.Evidence.ForbidTuples {
			c, ok := tupleConstraint(tuple, space)
			if !ok {
				continue
			}
			set.Add(c)
		}
	}
	return set.List()
}

func tupleConstraint(tuple []HoleValue, space *patch.HoleSpace) (constraint.Constraint, bool) {
	if len(tuple) < 2 {
		return constraint.Constraint{}, false
	}
	holes := make([]string, len(tuple))
	values := make([]patch.Value, len(tuple))
	for i, hv := range tuple {
		if !space.Has(hv.Hole) {
			return constraint.Constraint{}, false
		}
		holes[i] = hv.Hole
		values[i] = hv.Value
	}
	c, err := constraint.ForbidTuple(holes, values)
	if err != nil {
		return constraint.Constraint{}, false
	}
	return c, true
}
