package llm

import (
	"fmt"
	"strings"

	"redress/internal/k8s"
	"redress/internal/oracle"
)

// opDocs describes the patch operations the model may use. Mirrors the
// executor in internal/k8s; keep the two in sync when adding operations.
const opDocs = `Available patch operations:

1. EnsureLabel(scope, key, value)
   - Adds or updates a label on the deployment and/or pod template.
   - scope: "deployment" | "podTemplate" | "both"

2. EnsureImageVersion(container, version)
   - Sets the container image. version is either a bare tag or a full
     registry path.

3. EnsureSecurityBaseline(container)
   - Enforces runAsNonRoot, allowPrivilegeEscalation=false,
     readOnlyRootFilesystem, and dropped capabilities.

4. EnsureResourceProfile(container, profile)
   - Sets CPU/memory from a preset. profile: "small" | "medium" | "large"

5. EnsureReplicas(replicas)
   - Sets the replica count (integer).

6. EnsurePriorityClass(name)
   - Sets spec.priorityClassName.

Use {"$hole": "name"} for any argument value the search should determine.`

const responseContract = `Respond with a single JSON object:

{
  "template": {
    "ops": [
      {"op": "EnsureLabel", "args": {"scope": "podTemplate", "key": "env", "value": {"$hole": "env"}}},
      {"op": "EnsureReplicas", "args": {"replicas": {"$hole": "replicas"}}}
    ]
  },
  "hole_space": {
    "env": ["staging", "prod"],
    "replicas": [3, 4, 5]
  }
}

Every hole referenced in the template must appear in hole_space with a
non-empty list of candidate values. Keep domains small and plausible.`

// buildPrompt renders the repair situation for the model: the manifests,
// the violations, the operation vocabulary, and the response contract.
func buildPrompt(a oracle.Artifact, violations []oracle.Violation) (string, error) {
	art, ok := a.(*k8s.Artifact)
	if !ok {
		return "", fmt.Errorf("proposer prompt needs a k8s artifact, got %T", a)
	}

	var b strings.Builder
	b.WriteString("Repair the following Kubernetes manifests so every check passes.\n\n")
	for _, f := range art.Files() {
		fmt.Fprintf(&b, "--- %s ---\n%s\n", f.Path, strings.TrimSpace(f.Content))
	}
	b.WriteString("\nFailing checks:\n")
	for _, v := range violations {
		fmt.Fprintf(&b, "- %s: %s\n", v.ID(), v.Message)
	}
	b.WriteString("\n")
	b.WriteString(opDocs)
	b.WriteString("\n\n")
	b.WriteString(responseContract)
	return b.String(), nil
}
