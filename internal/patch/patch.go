package patch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnboundHole is returned when instantiation or validation encounters a
// hole reference with no binding.
var ErrUnboundHole = errors.New("unbound hole")

// holeSentinel is the JSON key marking a hole reference in transport form.
const holeSentinel = "$hole"

// Arg is a single operation argument: either a concrete Value or a
// reference to a named hole.
type Arg struct {
	hole  string
	value Value
}

// HoleArg returns an argument referencing the named hole.
func HoleArg(name string) Arg { return Arg{hole: name} }

// ValueArg returns a concrete argument.
func ValueArg(v Value) Arg { return Arg{value: v} }

// StringArg is shorthand for a concrete string argument.
func StringArg(s string) Arg { return Arg{value: String(s)} }

// IsHole reports whether the argument is a hole reference.
func (a Arg) IsHole() bool { return a.hole != "" }

// Hole returns the referenced hole name ("" for concrete arguments).
func (a Arg) Hole() string { return a.hole }

// Value returns the concrete value (zero Value for hole references).
func (a Arg) Value() Value { return a.value }

func (a Arg) String() string {
	if a.IsHole() {
		return "⟨" + a.hole + "⟩"
	}
	return a.value.String()
}

// MarshalJSON encodes hole references as {"$hole": name} and concrete
// arguments as their plain value.
func (a Arg) MarshalJSON() ([]byte, error) {
	if a.IsHole() {
		return json.Marshal(map[string]string{holeSentinel: a.hole})
	}
	return a.value.MarshalJSON()
}

// UnmarshalJSON decodes the {"$hole": name} sentinel back into a hole
// reference; anything else decodes as a concrete value.
func (a *Arg) UnmarshalJSON(data []byte) error {
	var v Value
	if err := v.UnmarshalJSON(data); err != nil {
		return err
	}
	if v.Kind() == KindMap && len(v.MapKeys()) == 1 {
		if ref, ok := v.MapGet(holeSentinel); ok {
			if ref.Kind() != KindString || ref.StringVal() == "" {
				return fmt.Errorf("invalid %s reference: %s", holeSentinel, ref)
			}
			*a = HoleArg(ref.StringVal())
			return nil
		}
	}
	*a = ValueArg(v)
	return nil
}

// NamedArg is one key/argument pair of an operation. Arguments keep their
// declared order through serialization.
type NamedArg struct {
	Key string
	Arg Arg
}

// Args is an ordered argument map.
type Args []NamedArg

// Get returns the argument for key.
func (as Args) Get(key string) (Arg, bool) {
	for _, na := range as {
		if na.Key == key {
			return na.Arg, true
		}
	}
	return Arg{}, false
}

// MarshalJSON encodes the arguments as a JSON object in declared order.
func (as Args) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, na := range as {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(na.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		ab, err := na.Arg.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(ab)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object preserving key order.
func (as *Args) UnmarshalJSON(data []byte) error {
	var v Value
	if err := v.UnmarshalJSON(data); err != nil {
		return err
	}
	if v.Kind() != KindMap {
		return fmt.Errorf("args must be a JSON object, got %s", v)
	}
	out := make(Args, 0, len(v.MapKeys()))
	for _, key := range v.MapKeys() {
		elem, _ := v.MapGet(key)
		// Re-run hole detection on the decoded value.
		raw, err := elem.MarshalJSON()
		if err != nil {
			return err
		}
		var arg Arg
		if err := arg.UnmarshalJSON(raw); err != nil {
			return err
		}
		out = append(out, NamedArg{Key: key, Arg: arg})
	}
	*as = out
	return nil
}

// Op is one patch operation: a domain-defined opcode with named arguments.
// The engine treats the opcode as opaque; the domain executor interprets it.
type Op struct {
	Name string `json:"op"`
	Args Args   `json:"args"`
}

// Patch is an ordered sequence of operations applied left to right.
// Operations are not commutative in general.
type Patch struct {
	Ops []Op `json:"ops"`
}

// Meta carries optional template provenance.
type Meta struct {
	Artifact string `json:"artifact,omitempty"`
	Version  string `json:"version,omitempty"`
}

// Template has the shape of a Patch but its arguments may reference holes.
type Template struct {
	Ops  []Op  `json:"ops"`
	Meta *Meta `json:"meta,omitempty"`
}

// Holes returns the distinct hole names referenced by the template, in
// first-reference order.
func (t *Template) Holes() []string {
	var names []string
	seen := make(map[string]struct{})
	for _, op := range t.Ops {
		for _, na := range op.Args {
			if !na.Arg.IsHole() {
				continue
			}
			if _, ok := seen[na.Arg.Hole()]; ok {
				continue
			}
			seen[na.Arg.Hole()] = struct{}{}
			names = append(names, na.Arg.Hole())
		}
	}
	return names
}

// Instantiate replaces every hole reference in the template with its
// assigned value, producing a concrete patch. Argument order is preserved.
// Returns ErrUnboundHole if a referenced hole has no binding.
func Instantiate(t *Template, assignment Assignment) (Patch, error) {
	ops := make([]Op, len(t.Ops))
	for i, op := range t.Ops {
		args := make(Args, len(op.Args))
		for j, na := range op.Args {
			if na.Arg.IsHole() {
				v, ok := assignment[na.Arg.Hole()]
				if !ok {
					return Patch{}, fmt.Errorf("%w: %q in op %s", ErrUnboundHole, na.Arg.Hole(), op.Name)
				}
				args[j] = NamedArg{Key: na.Key, Arg: ValueArg(v)}
			} else {
				args[j] = na
			}
		}
		ops[i] = Op{Name: op.Name, Args: args}
	}
	return Patch{Ops: ops}, nil
}
