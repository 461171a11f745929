// Package bank implements the signature-indexed repair bank: a persistent
// store of repair patterns (template, hole space, learned constraints,
// winning assignment) keyed by a fingerprint of the violation situation.
// Single-writer; persistence is one JSON document committed by atomic
// rename.
package bank

import (
	"encoding/json"
	"sort"

	"redress/internal/oracle"
)

// Signature fingerprints a violation situation: the set of failed oracles,
// the sorted distinct error codes, and optional artifact context (e.g.
// application name, environment). Two signatures are equal iff all three
// fields are equal.
type Signature struct {
	FailedOracles []string          `json:"failed_oracles"`
	ErrorCodes    []string          `json:"error_codes"`
	Context       map[string]string `json:"context,omitempty"`
}

// NewSignature derives a signature from a violation list and optional
// artifact context. Oracle names and error codes are deduplicated and
// sorted so the fingerprint is order-insensitive.
func NewSignature(violations []oracle.Violation, context map[string]string) Signature {
	oracles := make(map[string]struct{})
	codes := make(map[string]struct{})
	for _, v := range violations {
		oracles[v.Oracle] = struct{}{}
		codes[v.Code] = struct{}{}
	}
	sig := Signature{
		FailedOracles: sortedKeys(oracles),
		ErrorCodes:    sortedKeys(codes),
	}
	if len(context) > 0 {
		sig.Context = make(map[string]string, len(context))
		for k, v := range context {
			sig.Context[k] = v
		}
	}
	return sig
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Key returns a canonical string identity usable as a map key.
func (s Signature) Key() string {
	type canon struct {
		FailedOracles []string          `json:"failed_oracles"`
		ErrorCodes    []string          `json:"error_codes"`
		Context       [][2]string       `json:"context,omitempty"`
	}
	c := canon{
		FailedOracles: append([]string(nil), s.FailedOracles...),
		ErrorCodes:    append([]string(nil), s.ErrorCodes...),
	}
	sort.Strings(c.FailedOracles)
	sort.Strings(c.ErrorCodes)
	for k, v := range s.Context {
		c.Context = append(c.Context, [2]string{k, v})
	}
	sort.Slice(c.Context, func(i, j int) bool { return c.Context[i][0] < c.Context[j][0] })
	b, err := json.Marshal(c)
	if err != nil {
		panic("signature key: " + err.Error())
	}
	return string(b)
}

// Equal reports signature equality under value equality of all fields.
func (s Signature) Equal(other Signature) bool {
	return s.Key() == other.Key()
}
