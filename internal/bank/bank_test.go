package bank

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"redress/internal/constraint"
	"redress/internal/oracle"
	"redress/internal/patch"
)

func testSignature() Signature {
	return NewSignature([]oracle.Violation{
		{Oracle: "policy", Code: "ENV_PROD_REPLICA_COUNT"},
		{Oracle: "security", Code: "NO_RUN_AS_NON_ROOT"},
		{Oracle: "policy", Code: "ENV_PROD_REPLICA_COUNT"}, // duplicate
	}, map[string]string{"app": "payments-api", "env": "prod"})
}

func testTemplate() patch.Template {
	return patch.Template{Ops: []patch.Op{
		{Name: "EnsureReplicas", Args: patch.Args{
			{Key: "replicas", Arg: patch.HoleArg("replicas")},
		}},
	}}
}

func testSpace() *patch.HoleSpace {
	return patch.NewHoleSpace().
		Add("replicas", patch.Int(2), patch.Int(3), patch.Int(4)).
		Add("env", patch.String("staging"), patch.String("prod"))
}

func testConstraint(t *testing.T) constraint.Constraint {
	t.Helper()
	c, err := constraint.ForbidTuple(
		[]string{"env", "replicas"},
		[]patch.Value{patch.String("prod"), patch.Int(2)},
	)
	require.NoError(t, err)
	return c
}

func TestSignature(t *testing.T) {
	sig := testSignature()
	require.Equal(t, []string{"policy", "security"}, sig.FailedOracles)
	require.Equal(t, []string{"ENV_PROD_REPLICA_COUNT", "NO_RUN_AS_NON_ROOT"}, sig.ErrorCodes)

	// Order-insensitive equality.
	other := NewSignature([]oracle.Violation{
		{Oracle: "security", Code: "NO_RUN_AS_NON_ROOT"},
		{Oracle: "policy", Code: "ENV_PROD_REPLICA_COUNT"},
	}, map[string]string{"env": "prod", "app": "payments-api"})
	require.True(t, sig.Equal(other))

	// Context participates in equality.
	noCtx := NewSignature([]oracle.Violation{
		{Oracle: "policy", Code: "ENV_PROD_REPLICA_COUNT"},
		{Oracle: "security", Code: "NO_RUN_AS_NON_ROOT"},
	}, nil)
	require.False(t, sig.Equal(noCtx))
}

func TestBankRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bank.json")
	b, err := Open(path, nil)
	require.NoError(t, err)

	sig := testSignature()
	assignment := patch.Assignment{"replicas": patch.Int(3), "env": patch.String("staging")}
	require.NoError(t, b.Store(sig, testTemplate(), testSpace(),
		[]constraint.Constraint{testConstraint(t)}, assignment, 4))

	// Reload from disk and look up the same signature.
	reloaded, err := Open(path, nil)
	require.NoError(t, err)
	require.False(t, reloaded.Corrupted())
	require.Equal(t, 1, reloaded.Len())

	entry, ok := reloaded.Lookup(testSignature())
	require.True(t, ok)
	require.Equal(t, 1, entry.Meta.SuccessCount)
	require.Equal(t, 4, entry.Meta.CandidatesTried)
	require.Len(t, entry.Template.Ops, 1)
	require.Equal(t, "EnsureReplicas", entry.Template.Ops[0].Name)
	require.Equal(t, []string{"replicas", "env"}, entry.HoleSpace.Holes())
	require.Len(t, entry.Constraints, 1)
	require.True(t, entry.Constraints[0].Equal(testConstraint(t)))
	require.True(t, entry.Assignment.Equal(assignment))

	// A hole arg survives the trip as a hole.
	arg, ok := entry.Template.Ops[0].Args.Get("replicas")
	require.True(t, ok)
	require.True(t, arg.IsHole())
}

func TestBankMerge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bank.json")
	b, err := Open(path, nil)
	require.NoError(t, err)

	sig := testSignature()
	first := patch.Assignment{"replicas": patch.Int(3), "env": patch.String("staging")}
	require.NoError(t, b.Store(sig, testTemplate(), testSpace(),
		[]constraint.Constraint{testConstraint(t)}, first, 2))

	entry, _ := b.Lookup(sig)
	firstUsed := entry.Meta.FirstUsed

	// Second success: new assignment, one duplicate and one new constraint.
	second := patch.Assignment{"replicas": patch.Int(4), "env": patch.String("staging")}
	extra := constraint.ForbidValue("replicas", patch.Int(2))
	require.NoError(t, b.Store(sig, testTemplate(), testSpace(),
		[]constraint.Constraint{testConstraint(t), extra}, second, 7))

	require.Equal(t, 1, b.Len())
	entry, ok := b.Lookup(sig)
	require.True(t, ok)
	require.Equal(t, 2, entry.Meta.SuccessCount)
	require.Equal(t, firstUsed, entry.Meta.FirstUsed)
	require.False(t, entry.Meta.LastUsed.Before(firstUsed))
	require.True(t, entry.Assignment.Equal(second))
	require.Len(t, entry.Constraints, 2)
}

func TestBankMergeDropsForeignHoles(t *testing.T) {
	b, err := Open(filepath.Join(t.TempDir(), "bank.json"), nil)
	require.NoError(t, err)

	foreign := constraint.ForbidValue("nosuch", patch.String("x"))
	assignment := patch.Assignment{"replicas": patch.Int(3), "env": patch.String("staging")}
	require.NoError(t, b.Store(testSignature(), testTemplate(), testSpace(),
		[]constraint.Constraint{testConstraint(t), foreign}, assignment, 1))

	entry, _ := b.Lookup(testSignature())
	require.Len(t, entry.Constraints, 1, "constraint on a hole outside the stored space must be dropped")
}

func TestBankDropsConstraintsForbiddingAssignment(t *testing.T) {
	b, err := Open(filepath.Join(t.TempDir(), "bank.json"), nil)
	require.NoError(t, err)

	assignment := patch.Assignment{"replicas": patch.Int(3), "env": patch.String("staging")}
	contradicting := constraint.ForbidValue("replicas", patch.Int(3))
	require.NoError(t, b.Store(testSignature(), testTemplate(), testSpace(),
		[]constraint.Constraint{contradicting, testConstraint(t)}, assignment, 1))

	entry, _ := b.Lookup(testSignature())
	for _, c := range entry.Constraints {
		require.False(t, c.Violates(entry.Assignment),
			"stored constraints must be consistent with the stored assignment")
	}
}

func TestBankCorruptedStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bank.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	b, err := Open(path, nil)
	require.NoError(t, err, "corruption must not escape as an error")
	require.True(t, b.Corrupted())
	require.Equal(t, 0, b.Len())

	// The bank still works and the next save replaces the bad file.
	assignment := patch.Assignment{"replicas": patch.Int(3), "env": patch.String("staging")}
	require.NoError(t, b.Store(testSignature(), testTemplate(), testSpace(), nil, assignment, 1))
	again, err := Open(path, nil)
	require.NoError(t, err)
	require.False(t, again.Corrupted())
	require.Equal(t, 1, again.Len())
}

func TestBankMissingFile(t *testing.T) {
	b, err := Open(filepath.Join(t.TempDir(), "absent.json"), nil)
	require.NoError(t, err)
	require.Equal(t, 0, b.Len())
	_, ok := b.Lookup(testSignature())
	require.False(t, ok)
}

func TestBankAtomicWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bank.json")
	b, err := Open(path, nil)
	require.NoError(t, err)
	assignment := patch.Assignment{"replicas": patch.Int(3), "env": patch.String("staging")}
	require.NoError(t, b.Store(testSignature(), testTemplate(), testSpace(), nil, assignment, 1))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "bank.json", entries[0].Name())
}

func TestBankTimestamps(t *testing.T) {
	b, err := Open(filepath.Join(t.TempDir(), "bank.json"), nil)
	require.NoError(t, err)
	fixed := time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return fixed }

	assignment := patch.Assignment{"replicas": patch.Int(3), "env": patch.String("staging")}
	require.NoError(t, b.Store(testSignature(), testTemplate(), testSpace(), nil, assignment, 1))
	entry, _ := b.Lookup(testSignature())
	require.Equal(t, fixed, entry.Meta.FirstUsed)
	require.Equal(t, fixed, entry.Meta.LastUsed)

	later := fixed.Add(time.Hour)
	b.now = func() time.Time { return later }
	require.NoError(t, b.Store(testSignature(), testTemplate(), testSpace(), nil, assignment, 1))
	entry, _ = b.Lookup(testSignature())
	require.Equal(t, fixed, entry.Meta.FirstUsed)
	require.Equal(t, later, entry.Meta.LastUsed)
}
