package k8s

import (
	"strings"
	"testing"

	"redress/internal/patch"
)

const baseManifest = `apiVersion: apps/v1
kind: Deployment
metadata:
  name: payments-api
spec:
  # replica count tuned for steady-state load
  replicas: 2
  template:
    metadata:
      labels:
        app: payments-api
        env: prod
    spec:
      containers:
        - name: payments-api
          image: payments-api:latest
`

func applyOps(t *testing.T, content string, ops ...patch.Op) string {
	t.Helper()
	a := NewArtifact(File{Path: "deployment.yaml", Content: content})
	out, err := a.Apply(patch.Patch{Ops: ops})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	return out.(*Artifact).Files()[0].Content
}

func TestEnsureReplicas(t *testing.T) {
	got := applyOps(t, baseManifest, patch.Op{
		Name: OpEnsureReplicas,
		Args: patch.Args{{Key: "replicas", Arg: patch.ValueArg(patch.Int(4))}},
	})
	if !strings.Contains(got, "replicas: 4") {
		t.Fatalf("replicas not updated:\n%s", got)
	}
	// Comments survive the edit.
	if !strings.Contains(got, "# replica count tuned for steady-state load") {
		t.Fatalf("comment lost:\n%s", got)
	}
}

func TestEnsureLabelScopes(t *testing.T) {
	t.Run("podTemplate", func(t *testing.T) {
		got := applyOps(t, baseManifest, patch.Op{
			Name: OpEnsureLabel,
			Args: patch.Args{
				{Key: "scope", Arg: patch.StringArg(ScopePodTemplate)},
				{Key: "key", Arg: patch.StringArg("team")},
				{Key: "value", Arg: patch.StringArg("payments")},
			},
		})
		if !strings.Contains(got, "team: payments") {
			t.Fatalf("pod template label missing:\n%s", got)
		}
	})
	t.Run("both_creates_deployment_labels", func(t *testing.T) {
		got := applyOps(t, baseManifest, patch.Op{
			Name: OpEnsureLabel,
			Args: patch.Args{
				{Key: "scope", Arg: patch.StringArg(ScopeBoth)},
				{Key: "key", Arg: patch.StringArg("env")},
				{Key: "value", Arg: patch.StringArg("staging")},
			},
		})
		if strings.Count(got, "env: staging") != 2 {
			t.Fatalf("expected env label on deployment and pod template:\n%s", got)
		}
	})
	t.Run("updates_existing_value", func(t *testing.T) {
		got := applyOps(t, baseManifest, patch.Op{
			Name: OpEnsureLabel,
			Args: patch.Args{
				{Key: "scope", Arg: patch.StringArg(ScopePodTemplate)},
				{Key: "key", Arg: patch.StringArg("env")},
				{Key: "value", Arg: patch.StringArg("staging")},
			},
		})
		if strings.Contains(got, "env: prod") {
			t.Fatalf("old label value remains:\n%s", got)
		}
	})
}

func TestEnsureImageVersion(t *testing.T) {
	t.Run("bare_tag", func(t *testing.T) {
		got := applyOps(t, baseManifest, patch.Op{
			Name: OpEnsureImageVersion,
			Args: patch.Args{
				{Key: "container", Arg: patch.StringArg("payments-api")},
				{Key: "version", Arg: patch.StringArg("v1.2.3")},
			},
		})
		if !strings.Contains(got, "image: payments-api:v1.2.3") {
			t.Fatalf("tag not applied:\n%s", got)
		}
	})
	t.Run("full_registry_path", func(t *testing.T) {
		full := "123456789012.dkr.ecr.us-east-1.amazonaws.com/prod/payments-api:prod-1.2.3"
		got := applyOps(t, baseManifest, patch.Op{
			Name: OpEnsureImageVersion,
			Args: patch.Args{
				{Key: "container", Arg: patch.StringArg("payments-api")},
				{Key: "version", Arg: patch.StringArg(full)},
			},
		})
		if !strings.Contains(got, "image: "+full) {
			t.Fatalf("registry path not applied:\n%s", got)
		}
	})
	t.Run("other_containers_untouched", func(t *testing.T) {
		got := applyOps(t, baseManifest, patch.Op{
			Name: OpEnsureImageVersion,
			Args: patch.Args{
				{Key: "container", Arg: patch.StringArg("sidecar")},
				{Key: "version", Arg: patch.StringArg("v9")},
			},
		})
		if !strings.Contains(got, "image: payments-api:latest") {
			t.Fatalf("unrelated container changed:\n%s", got)
		}
	})
}

func TestEnsureSecurityBaseline(t *testing.T) {
	got := applyOps(t, baseManifest, patch.Op{
		Name: OpEnsureSecurityBaseline,
		Args: patch.Args{{Key: "container", Arg: patch.StringArg("payments-api")}},
	})
	for _, want := range []string{
		"runAsNonRoot: true",
		"allowPrivilegeEscalation: false",
		"readOnlyRootFilesystem: true",
		"- ALL",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %q:\n%s", want, got)
		}
	}
}

func TestEnsureResourceProfile(t *testing.T) {
	got := applyOps(t, baseManifest, patch.Op{
		Name: OpEnsureResourceProfile,
		Args: patch.Args{
			{Key: "container", Arg: patch.StringArg("payments-api")},
			{Key: "profile", Arg: patch.StringArg("medium")},
		},
	})
	for _, want := range []string{"cpu: 500m", "memory: 512Mi", "cpu: 1000m", "memory: 1Gi"} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %q:\n%s", want, got)
		}
	}

	a := NewArtifact(File{Path: "deployment.yaml", Content: baseManifest})
	_, err := a.Apply(patch.Patch{Ops: []patch.Op{{
		Name: OpEnsureResourceProfile,
		Args: patch.Args{
			{Key: "container", Arg: patch.StringArg("payments-api")},
			{Key: "profile", Arg: patch.StringArg("gigantic")},
		},
	}}})
	if err == nil {
		t.Fatalf("unknown profile accepted")
	}
}

func TestEnsurePriorityClass(t *testing.T) {
	got := applyOps(t, baseManifest, patch.Op{
		Name: OpEnsurePriorityClass,
		Args: patch.Args{{Key: "name", Arg: patch.StringArg("critical")}},
	})
	if !strings.Contains(got, "priorityClassName: critical") {
		t.Fatalf("priority class not set:\n%s", got)
	}

	// Null removes the field.
	got = applyOps(t, got, patch.Op{
		Name: OpEnsurePriorityClass,
		Args: patch.Args{{Key: "name", Arg: patch.ValueArg(patch.Null())}},
	})
	if strings.Contains(got, "priorityClassName") {
		t.Fatalf("priority class not removed:\n%s", got)
	}
}

func TestUnknownOpFails(t *testing.T) {
	a := NewArtifact(File{Path: "deployment.yaml", Content: baseManifest})
	_, err := a.Apply(patch.Patch{Ops: []patch.Op{{Name: "Nonsense"}}})
	if err == nil {
		t.Fatalf("unknown op accepted")
	}
}

func TestApplyLeavesOriginalUntouched(t *testing.T) {
	a := NewArtifact(File{Path: "deployment.yaml", Content: baseManifest})
	_, err := a.Apply(patch.Patch{Ops: []patch.Op{{
		Name: OpEnsureReplicas,
		Args: patch.Args{{Key: "replicas", Arg: patch.ValueArg(patch.Int(9))}},
	}}})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if a.Files()[0].Content != baseManifest {
		t.Fatalf("original artifact mutated")
	}
}

func TestNonDeploymentPassesThrough(t *testing.T) {
	svc := "apiVersion: v1\nkind: Service\nmetadata:\n  name: payments\n"
	got := applyOps(t, svc, patch.Op{
		Name: OpEnsureReplicas,
		Args: patch.Args{{Key: "replicas", Arg: patch.ValueArg(patch.Int(3))}},
	})
	if got != svc {
		t.Fatalf("non-Deployment document was edited:\n%s", got)
	}
}
