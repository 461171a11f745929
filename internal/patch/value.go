// Package patch defines the patch model: operations, templates, holes,
// hole spaces, and instantiation. Argument values are a tagged union
// (concrete value or hole reference) rather than free-form maps, so the
// synthesizer can compare, order, and serialize them deterministically.
package patch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ValueKind discriminates the Value union.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindMap
)

// Value is a JSON-shaped immutable value: scalar, list, or string-keyed map.
// Map key order is preserved from construction/decoding.
type Value struct {
	kind ValueKind
	b    bool
	i    int64
	f    float64
	s    string
	list []Value
	keys []string
	entr map[string]Value
}

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns an integer value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a floating-point value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// List returns a list value.
func List(vs ...Value) Value { return Value{kind: KindList, list: vs} }

// MapEntry is one key/value pair of a map value.
type MapEntry struct {
	Key   string
	Value Value
}

// Map returns a map value preserving the given entry order. Later
// duplicates overwrite earlier ones but keep the first key position.
func Map(entries ...MapEntry) Value {
	v := Value{kind: KindMap, entr: make(map[string]Value, len(entries))}
	for _, e := range entries {
		if _, ok := v.entr[e.Key]; !ok {
			v.keys = append(v.keys, e.Key)
		}
		v.entr[e.Key] = e.Value
	}
	return v
}

// Kind reports the value's kind.
func (v Value) Kind() ValueKind { return v.kind }

// IsZero reports whether v is the zero Value (null).
func (v Value) IsZero() bool { return v.kind == KindNull }

// BoolVal returns the boolean payload (valid for KindBool).
func (v Value) BoolVal() bool { return v.b }

// IntVal returns the integer payload (valid for KindInt).
func (v Value) IntVal() int64 { return v.i }

// FloatVal returns the float payload (valid for KindFloat).
func (v Value) FloatVal() float64 { return v.f }

// StringVal returns the string payload (valid for KindString).
func (v Value) StringVal() string { return v.s }

// ListVal returns the list payload (valid for KindList).
func (v Value) ListVal() []Value { return v.list }

// MapKeys returns the map keys in declared order (valid for KindMap).
func (v Value) MapKeys() []string { return v.keys }

// MapGet returns the entry for key (valid for KindMap).
func (v Value) MapGet(key string) (Value, bool) {
	e, ok := v.entr[key]
	return e, ok
}

// Equal reports structural equality.
func (a Value) Equal(b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindInt:
		return a.i == b.i
	case KindFloat:
		return a.f == b.f
	case KindString:
		return a.s == b.s
	case KindList:
		if len(a.list) != len(b.list) {
			return false
		}
		for i := range a.list {
			if !a.list[i].Equal(b.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(a.entr) != len(b.entr) {
			return false
		}
		for k, av := range a.entr {
			bv, ok := b.entr[k]
			if !ok || !av.Equal(bv) {
				return false
			}
		}
		return true
	}
	return false
}

// Compare gives a total order over values: first by kind, then by payload.
// Maps compare entry by entry in sorted key order (key, then that key's
// value), then by number of entries. Used only where a
// stable order is needed (canonical forms); it carries no domain meaning.
func (a Value) Compare(b Value) int {
	if a.kind != b.kind {
		if a.kind < b.kind {
			return -1
		}
		return 1
	}
	switch a.kind {
	case KindNull:
		return 0
	case KindBool:
		if a.b == b.b {
			return 0
		}
		if !a.b {
			return -1
		}
		return 1
	case KindInt:
		switch {
		case a.i < b.i:
			return -1
		case a.i > b.i:
			return 1
		}
		return 0
	case KindFloat:
		switch {
		case a.f < b.f:
			return -1
		case a.f > b.f:
			return 1
		}
		return 0
	case KindString:
		return strings.Compare(a.s, b.s)
	case KindList:
		for i := 0; i < len(a.list) && i < len(b.list); i++ {
			if c := a.list[i].Compare(b.list[i]); c != 0 {
				return c
			}
		}
		return len(a.list) - len(b.list)
	case KindMap:
		ak := append([]string(nil), a.keys...)
		bk := append([]string(nil), b.keys...)
		sort.Strings(ak)
		sort.Strings(bk)
		for i := 0; i < len(ak) && i < len(bk); i++ {
			if c := strings.Compare(ak[i], bk[i]); c != 0 {
				return c
			}
			if c := a.entr[ak[i]].Compare(b.entr[bk[i]]); c != 0 {
				return c
			}
		}
		return len(ak) - len(bk)
	}
	return 0
}

// String renders the value for logs and error messages.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return v.s
	case KindList:
		parts := make([]string, len(v.list))
		for i, e := range v.list {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindMap:
		parts := make([]string, 0, len(v.keys))
		for _, k := range v.keys {
			parts = append(parts, k+": "+v.entr[k].String())
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return ""
}

// MarshalJSON encodes the value in its natural JSON form. Map keys keep
// their declared order.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encodeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encodeJSON(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindInt:
		buf.WriteString(strconv.FormatInt(v.i, 10))
	case KindFloat:
		b, err := json.Marshal(v.f)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindString:
		b, err := json.Marshal(v.s)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindList:
		buf.WriteByte('[')
		for i, e := range v.list {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := e.encodeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindMap:
		buf.WriteByte('{')
		for i, k := range v.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := v.entr[k].encodeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	}
	return nil
}

// UnmarshalJSON decodes any JSON value. Integral numbers decode as KindInt,
// other numbers as KindFloat. Object key order is preserved.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	val, err := decodeValue(dec)
	if err != nil {
		return err
	}
	*v = val
	return nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	return decodeFromToken(dec, tok)
}

func decodeFromToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		if i, err := strconv.ParseInt(t.String(), 10, 64); err == nil {
			return Int(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %q: %w", t.String(), err)
		}
		return Float(f), nil
	case string:
		return String(t), nil
	case json.Delim:
		switch t {
		case '[':
			var list []Value
			for dec.More() {
				elem, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				list = append(list, elem)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return Value{}, err
			}
			return List(list...), nil
		case '{':
			var entries []MapEntry
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("object key is not a string: %v", keyTok)
				}
				elem, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				entries = append(entries, MapEntry{Key: key, Value: elem})
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return Value{}, err
			}
			return Map(entries...), nil
		}
	}
	return Value{}, fmt.Errorf("unexpected JSON token %v", tok)
}
