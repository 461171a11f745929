package patch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Assignment binds each hole name to exactly one value.
type Assignment map[string]Value

// Equal reports whether two assignments bind the same holes to equal values.
func (a Assignment) Equal(b Assignment) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !av.Equal(bv) {
			return false
		}
	}
	return true
}

// Clone returns a shallow copy.
func (a Assignment) Clone() Assignment {
	out := make(Assignment, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// String renders the assignment with sorted hole names.
func (a Assignment) String() string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + a[k].String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// HoleSpace maps each hole name to a finite, non-empty, ordered domain of
// candidate values. Hole order is insertion order; both orders are part of
// the enumeration contract and survive serialization.
type HoleSpace struct {
	names   []string
	domains map[string][]Value
}

// NewHoleSpace returns an empty hole space.
func NewHoleSpace() *HoleSpace {
	return &HoleSpace{domains: make(map[string][]Value)}
}

// Add declares a hole with its ordered domain, replacing any prior domain
// for the same name while keeping its original position.
func (s *HoleSpace) Add(name string, values ...Value) *HoleSpace {
	if _, ok := s.domains[name]; !ok {
		s.names = append(s.names, name)
	}
	s.domains[name] = values
	return s
}

// Holes returns the hole names in declared order.
func (s *HoleSpace) Holes() []string { return s.names }

// Domain returns the ordered domain for a hole.
func (s *HoleSpace) Domain(name string) ([]Value, bool) {
	d, ok := s.domains[name]
	return d, ok
}

// Has reports whether the hole is declared.
func (s *HoleSpace) Has(name string) bool {
	_, ok := s.domains[name]
	return ok
}

// Len returns the number of holes.
func (s *HoleSpace) Len() int { return len(s.names) }

// Size returns the product of domain sizes (candidates before pruning).
func (s *HoleSpace) Size() int {
	size := 1
	for _, name := range s.names {
		size *= len(s.domains[name])
	}
	if len(s.names) == 0 {
		return 0
	}
	return size
}

// Validate checks that every hole referenced by the template is declared
// with a non-empty domain. Returns ErrUnboundHole otherwise.
func (s *HoleSpace) Validate(t *Template) error {
	for _, name := range t.Holes() {
		d, ok := s.domains[name]
		if !ok {
			return fmt.Errorf("%w: template references %q, not in hole space", ErrUnboundHole, name)
		}
		if len(d) == 0 {
			return fmt.Errorf("%w: hole %q has an empty domain", ErrUnboundHole, name)
		}
	}
	return nil
}

// MarshalJSON encodes the space as {hole: [values…]} preserving both hole
// and domain order.
func (s *HoleSpace) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range s.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		lb, err := List(s.domains[name]...).MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(lb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes the {hole: [values…]} form preserving order.
func (s *HoleSpace) UnmarshalJSON(data []byte) error {
	var v Value
	if err := v.UnmarshalJSON(data); err != nil {
		return err
	}
	if v.Kind() != KindMap {
		return fmt.Errorf("hole space must be a JSON object, got %s", v)
	}
	out := NewHoleSpace()
	for _, name := range v.MapKeys() {
		domain, _ := v.MapGet(name)
		if domain.Kind() != KindList {
			return fmt.Errorf("domain of hole %q must be a list, got %s", name, domain)
		}
		out.Add(name, domain.ListVal()...)
	}
	*s = *out
	return nil
}
