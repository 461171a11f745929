package oracle

import (
	"testing"

	"redress/internal/patch"
)

// stubArtifact satisfies Artifact; the verifier never looks inside.
type stubArtifact struct{}

func (stubArtifact) Apply(patch.Patch) (Artifact, error) { return stubArtifact{}, nil }

// stubOracle returns a fixed violation list.
type stubOracle struct {
	name string
	vs   []Violation
}

func (o stubOracle) Name() string               { return o.name }
func (o stubOracle) Check(Artifact) []Violation { return o.vs }

// panicOracle breaks the totality contract on purpose.
type panicOracle struct{}

func (panicOracle) Name() string               { return "broken" }
func (panicOracle) Check(Artifact) []Violation { panic("boom") }

func TestVerifyOrdering(t *testing.T) {
	a := stubOracle{name: "policy", vs: []Violation{
		{Oracle: "policy", Code: "A1"},
		{Oracle: "policy", Code: "A2"},
	}}
	b := stubOracle{name: "security", vs: []Violation{
		{Oracle: "security", Code: "B1"},
	}}

	got := Verify(stubArtifact{}, []Oracle{a, b})
	wantIDs := []string{"policy.A1", "policy.A2", "security.B1"}
	if len(got) != len(wantIDs) {
		t.Fatalf("Verify returned %d violations, want %d", len(got), len(wantIDs))
	}
	for i, v := range got {
		if v.ID() != wantIDs[i] {
			t.Fatalf("violation %d = %s, want %s", i, v.ID(), wantIDs[i])
		}
	}

	// Oracle order is the caller's order.
	got = Verify(stubArtifact{}, []Oracle{b, a})
	if got[0].ID() != "security.B1" {
		t.Fatalf("first violation = %s, want security.B1", got[0].ID())
	}
}

func TestVerifyEmpty(t *testing.T) {
	if got := Verify(stubArtifact{}, nil); len(got) != 0 {
		t.Fatalf("Verify with no oracles = %v", got)
	}
	clean := stubOracle{name: "policy"}
	if got := Verify(stubArtifact{}, []Oracle{clean}); len(got) != 0 {
		t.Fatalf("Verify with passing oracle = %v", got)
	}
}

func TestVerifyAbsorbsPanic(t *testing.T) {
	got := Verify(stubArtifact{}, []Oracle{panicOracle{}, stubOracle{name: "policy", vs: []Violation{{Oracle: "policy", Code: "A1"}}}})
	if len(got) != 2 {
		t.Fatalf("Verify = %v, want panic violation plus policy.A1", got)
	}
	if got[0].Oracle != "broken" || got[0].Code != ErrorCode {
		t.Fatalf("panic violation = %+v", got[0])
	}
	if !got[0].Evidence.Empty() {
		t.Fatalf("panic violation must carry empty evidence")
	}
}

func extractSpace() *patch.HoleSpace {
	return patch.NewHoleSpace().
		Add("env", patch.String("staging"), patch.String("prod")).
		Add("replicas", patch.Int(2), patch.Int(3)).
		Add("profile", patch.String("small"), patch.String("medium"))
}

func TestExtractFidelity(t *testing.T) {
	vs := []Violation{
		{
			Oracle: "policy", Code: "ENV_PROD_REPLICA_COUNT",
			Evidence: Evidence{ForbidTuples: [][]HoleValue{{
				{Hole: "env", Value: patch.String("prod")},
				{Hole: "replicas", Value: patch.Int(2)},
			}}},
		},
		{
			Oracle: "resource", Code: "PROFILE",
			Evidence: Evidence{ForbidValues: []HoleValue{
				{Hole: "profile", Value: patch.String("small")},
			}},
		},
		{Oracle: "security", Code: "NO_HINT"},
	}
	got := Extract(vs, extractSpace())
	if len(got) != 2 {
		t.Fatalf("Extract = %v, want 2 constraints", got)
	}
	// Tuple is canonicalised (env before replicas already sorted).
	if got[0].Kind != "forbidden_tuple" || got[0].Holes[0] != "env" {
		t.Fatalf("first constraint = %s", got[0])
	}
	if got[1].Kind != "forbidden_value" || got[1].Hole != "profile" {
		t.Fatalf("second constraint = %s", got[1])
	}
}

func TestExtractDedup(t *testing.T) {
	hint := Evidence{ForbidValues: []HoleValue{{Hole: "profile", Value: patch.String("small")}}}
	vs := []Violation{
		{Oracle: "a", Code: "X", Evidence: hint},
		{Oracle: "b", Code: "Y", Evidence: hint},
	}
	if got := Extract(vs, extractSpace()); len(got) != 1 {
		t.Fatalf("Extract = %v, want single deduplicated constraint", got)
	}
}

func TestExtractDropsUnknownHoles(t *testing.T) {
	vs := []Violation{
		{
			Oracle: "policy", Code: "X",
			Evidence: Evidence{
				ForbidValues: []HoleValue{{Hole: "nosuch", Value: patch.String("v")}},
				ForbidTuples: [][]HoleValue{{
					{Hole: "env", Value: patch.String("prod")},
					{Hole: "nosuch", Value: patch.Int(1)},
				}},
			},
		},
	}
	if got := Extract(vs, extractSpace()); len(got) != 0 {
		t.Fatalf("Extract = %v, want evidence on unknown holes discarded", got)
	}
}

func TestExtractIgnoresShortTuples(t *testing.T) {
	vs := []Violation{
		{
			Oracle: "policy", Code: "X",
			Evidence: Evidence{ForbidTuples: [][]HoleValue{{
				{Hole: "env", Value: patch.String("prod")},
			}}},
		},
	}
	if got := Extract(vs, extractSpace()); len(got) != 0 {
		t.Fatalf("Extract = %v, want single-pair tuple ignored", got)
	}
}
