package k8s

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"redress/internal/oracle"
	"redress/internal/patch"
)

// Hole names the domain oracles hint against. Templates produced by the
// default builder and the proposer prompt use the same vocabulary, so
// evidence lines up with the hole space.
const (
	HoleEnv           = "env"
	HoleTeam          = "team"
	HoleTier          = "tier"
	HoleReplicas      = "replicas"
	HoleProfile       = "profile"
	HoleVersion       = "version"
	HolePriorityClass = "priority_class"
)

// ValidEnvs are the accepted environment label values.
var ValidEnvs = []string{"dev", "staging", "prod"}

// prodReplicas is the allowed replica window for env=prod.
var prodReplicas = map[int64]bool{3: true, 4: true, 5: true}

// ecrImagePattern matches <account>.dkr.ecr.<region>.amazonaws.com/<repo>:<tag>.
var ecrImagePattern = regexp.MustCompile(`^(\d{12})\.dkr\.ecr\.([^.]+)\.amazonaws\.com/(.+)$`)

func isRegistryPath(s string) bool {
	return strings.Contains(s, ".dkr.ecr.") ||
		strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// deploymentView is the slice of a Deployment the oracles look at.
type deploymentView struct {
	path          string
	env           string
	team          string
	tier          string
	replicas      int64
	hasReplicas   bool
	priorityClass string
	containers    []containerView
}

type containerView struct {
	name                     string
	image                    string
	hasResources             bool
	requestCPU               string
	requestMemory            string
	runAsNonRoot             bool
	allowPrivilegeEscalation *bool
}

func viewOf(path string, root *yaml.Node) deploymentView {
	v := deploymentView{
		path:          path,
		env:           podTemplateLabel(root, "env"),
		team:          podTemplateLabel(root, "team"),
		tier:          podTemplateLabel(root, "tier"),
		priorityClass: scalarString(mapGet(mapGet(root, "spec"), "priorityClassName")),
	}
	if n, ok := scalarInt(mapGet(mapGet(root, "spec"), "replicas")); ok {
		v.replicas = n
		v.hasReplicas = true
	}
	for _, c := range containers(root) {
		cv := containerView{
			name:  scalarString(mapGet(c, "name")),
			image: scalarString(mapGet(c, "image")),
		}
		if res := mapGet(c, "resources"); res != nil {
			cv.hasResources = true
			req := mapGet(res, "requests")
			cv.requestCPU = scalarString(mapGet(req, "cpu"))
			cv.requestMemory = scalarString(mapGet(req, "memory"))
		}
		if sec := mapGet(c, "securityContext"); sec != nil {
			cv.runAsNonRoot = scalarString(mapGet(sec, "runAsNonRoot")) == "true"
			if ape := mapGet(sec, "allowPrivilegeEscalation"); ape != nil {
				val := scalarString(ape) == "true"
				cv.allowPrivilegeEscalation = &val
			}
		}
		v.containers = append(v.containers, cv)
	}
	return v
}

// profileOf matches container requests against the standard profiles,
// falling back to a magnitude heuristic so near-misses still classify.
func profileOf(c containerView) string {
	for name, p := range ResourceProfiles {
		if c.requestCPU == p.RequestCPU && c.requestMemory == p.RequestMemory {
			return name
		}
	}
	switch {
	case strings.Contains(c.requestCPU, "100m") || strings.Contains(c.requestMemory, "128Mi"):
		return "small"
	case strings.Contains(c.requestCPU, "500m") || strings.Contains(c.requestMemory, "512Mi"):
		return "medium"
	case strings.Contains(c.requestCPU, "1000m") || strings.Contains(c.requestMemory, "1Gi"):
		return "large"
	}
	return "unknown"
}

// eachDeploymentOrBad walks the artifact files: fn for parsed Deployments,
// bad for files that fail to parse. Non-Deployment documents are skipped.
func eachDeploymentOrBad(a *Artifact, fn func(v deploymentView, root *yaml.Node), bad func(path string, err error)) {
	for _, f := range a.Files() {
		doc, err := parseManifest(f.Content)
		if err != nil {
			bad(f.Path, err)
			continue
		}
		root := doc.Content[0]
		if !isDeployment(root) {
			continue
		}
		fn(viewOf(f.Path, root), root)
	}
}

// requireK8s asserts the engine artifact back to the domain type. Oracles
// are registered alongside the executor, so a mismatch is a wiring bug
// reported through the oracle-error contract.
func requireK8s(a oracle.Artifact) (*Artifact, *oracle.Violation) {
	k, ok := a.(*Artifact)
	if !ok {
		return nil, &oracle.Violation{
			Code:    oracle.ErrorCode,
			Message: fmt.Sprintf("artifact is %T, not a k8s artifact", a),
		}
	}
	return k, nil
}

// PolicyOracle enforces the org deployment policy: prod replica windows,
// prod resource profiles, prod image tagging, required labels, priority
// class, and the ECR registry rule. Violations carry constraint hints for
// the synthesizer wherever the rule maps onto template holes.
type PolicyOracle struct{}

func (PolicyOracle) Name() string { return "policy" }

func (o PolicyOracle) Check(a oracle.Artifact) []oracle.Violation {
	k, bad := requireK8s(a)
	if bad != nil {
		bad.Oracle = o.Name()
		return []oracle.Violation{*bad}
	}
	var out []oracle.Violation
	add := func(v oracle.Violation) {
		v.Oracle = o.Name()
		out = append(out, v)
	}
	eachDeploymentOrBad(k, func(v deploymentView, root *yaml.Node) {
		for _, c := range v.containers {
			if c.image != "" {
				if violation := checkRegistry(c.image, v.env, v.path); violation != nil {
					add(*violation)
				}
			}
		}
		if v.env == "prod" {
			if v.hasReplicas && !prodReplicas[v.replicas] {
				add(oracle.Violation{
					Code:    "ENV_PROD_REPLICA_COUNT",
					Message: fmt.Sprintf("%s: env=prod requires replicas in [3,5], got %d", v.path, v.replicas),
					Evidence: oracle.Evidence{
						ForbidTuples: [][]oracle.HoleValue{{
							{Hole: HoleEnv, Value: patch.String("prod")},
							{Hole: HoleReplicas, Value: patch.Int(v.replicas)},
						}},
					},
				})
			}
			for _, c := range v.containers {
				if profileOf(c) == "small" {
					add(oracle.Violation{
						Code:    "ENV_PROD_PROFILE_SMALL",
						Message: fmt.Sprintf("%s: env=prod requires profile in {medium, large}, got small", v.path),
						Evidence: oracle.Evidence{
							ForbidTuples: [][]oracle.HoleValue{{
								{Hole: HoleEnv, Value: patch.String("prod")},
								{Hole: HoleProfile, Value: patch.String("small")},
							}},
						},
					})
					break
				}
			}
			for _, c := range v.containers {
				tag := imageTag(c.image)
				if tag == "latest" || strings.Contains(tag, "staging") {
					add(oracle.Violation{
						Code:    "ENV_PROD_IMAGE_TAG",
						Message: fmt.Sprintf("%s: env=prod requires a prod release tag, got %q", v.path, tag),
					})
				}
			}
			required := []struct {
				name  string
				value string
			}{{"env", v.env}, {"team", v.team}, {"tier", v.tier}}
			for _, label := range required {
				if label.value == "" {
					add(oracle.Violation{
						Code:    "MISSING_LABEL_" + strings.ToUpper(label.name),
						Message: fmt.Sprintf("%s: env=prod requires label %q", v.path, label.name),
					})
				}
			}
			if v.priorityClass == "" {
				add(oracle.Violation{
					Code:    "MISSING_PRIORITY_CLASS",
					Message: fmt.Sprintf("%s: env=prod requires priorityClassName", v.path),
				})
			}
		}
	}, func(path string, err error) {
		add(oracle.Violation{
			Code:    "INVALID_YAML",
			Message: fmt.Sprintf("%s: %v", path, err),
		})
	})
	return out
}

// checkRegistry enforces the ECR rule: every image comes from ECR and its
// repository or tag names the deployment's environment.
func checkRegistry(image, env, path string) *oracle.Violation {
	m := ecrImagePattern.FindStringSubmatch(image)
	if m == nil {
		return &oracle.Violation{
			Code:    "IMAGE_NOT_FROM_ECR",
			Message: fmt.Sprintf("%s: image must come from ECR, got %q", path, image),
			Evidence: oracle.Evidence{
				ForbidValues: []oracle.HoleValue{
					{Hole: HoleVersion, Value: patch.String(image)},
				},
			},
		}
	}
	if env == "" {
		return nil
	}
	repoAndTag := m[3]
	repo, tag := repoAndTag, ""
	if i := strings.LastIndex(repoAndTag, ":"); i >= 0 {
		repo, tag = repoAndTag[:i], repoAndTag[i+1:]
	}
	lowerEnv := strings.ToLower(env)
	if strings.Contains(strings.ToLower(repo), lowerEnv) || strings.Contains(strings.ToLower(tag), lowerEnv) {
		return nil
	}
	return &oracle.Violation{
		Code:    "ECR_ENV_MISMATCH",
		Message: fmt.Sprintf("%s: image must match environment %q, got %q", path, env, image),
		Evidence: oracle.Evidence{
			ForbidTuples: [][]oracle.HoleValue{{
				{Hole: HoleEnv, Value: patch.String(env)},
				{Hole: HoleVersion, Value: patch.String(image)},
			}},
		},
	}
}

func imageTag(image string) string {
	if i := lastColon(image); i >= 0 {
		return image[i+1:]
	}
	return ""
}

// SecurityOracle checks the container security baseline.
type SecurityOracle struct{}

func (SecurityOracle) Name() string { return "security" }

func (o SecurityOracle) Check(a oracle.Artifact) []oracle.Violation {
	k, bad := requireK8s(a)
	if bad != nil {
		bad.Oracle = o.Name()
		return []oracle.Violation{*bad}
	}
	var out []oracle.Violation
	eachDeploymentOrBad(k, func(v deploymentView, _ *yaml.Node) {
		for _, c := range v.containers {
			if !c.runAsNonRoot {
				out = append(out, oracle.Violation{
					Oracle:  o.Name(),
					Code:    "NO_RUN_AS_NON_ROOT",
					Message: fmt.Sprintf("%s: container %q must set runAsNonRoot=true", v.path, c.name),
				})
			}
			if c.allowPrivilegeEscalation == nil || *c.allowPrivilegeEscalation {
				out = append(out, oracle.Violation{
					Oracle:  o.Name(),
					Code:    "PRIVILEGE_ESCALATION",
					Message: fmt.Sprintf("%s: container %q must set allowPrivilegeEscalation=false", v.path, c.name),
				})
			}
		}
	}, func(path string, err error) {
		out = append(out, oracle.Violation{
			Oracle:  o.Name(),
			Code:    "INVALID_YAML",
			Message: fmt.Sprintf("%s: %v", path, err),
		})
	})
	return out
}

// ResourceOracle checks that containers declare resources matching one of
// the standard profiles.
type ResourceOracle struct{}

func (ResourceOracle) Name() string { return "resource" }

func (o ResourceOracle) Check(a oracle.Artifact) []oracle.Violation {
	k, bad := requireK8s(a)
	if bad != nil {
		bad.Oracle = o.Name()
		return []oracle.Violation{*bad}
	}
	var out []oracle.Violation
	eachDeploymentOrBad(k, func(v deploymentView, _ *yaml.Node) {
		for _, c := range v.containers {
			if !c.hasResources {
				out = append(out, oracle.Violation{
					Oracle:  o.Name(),
					Code:    "MISSING_RESOURCES",
					Message: fmt.Sprintf("%s: container %q must specify resources", v.path, c.name),
				})
				continue
			}
			matched := false
			for _, p := range ResourceProfiles {
				if c.requestCPU == p.RequestCPU && c.requestMemory == p.RequestMemory {
					matched = true
					break
				}
			}
			if !matched && c.requestCPU != "" && c.requestMemory != "" {
				out = append(out, oracle.Violation{
					Oracle:  o.Name(),
					Code:    "NONSTANDARD_PROFILE",
					Message: fmt.Sprintf("%s: container %q requests (%s, %s) match no standard profile", v.path, c.name, c.requestCPU, c.requestMemory),
				})
			}
		}
	}, func(path string, err error) {
		out = append(out, oracle.Violation{
			Oracle:  o.Name(),
			Code:    "INVALID_YAML",
			Message: fmt.Sprintf("%s: %v", path, err),
		})
	})
	return out
}

// SchemaOracle checks structural sanity: parseable YAML and the minimal
// fields every workload manifest needs.
type SchemaOracle struct{}

func (SchemaOracle) Name() string { return "schema" }

func (o SchemaOracle) Check(a oracle.Artifact) []oracle.Violation {
	k, bad := requireK8s(a)
	if bad != nil {
		bad.Oracle = o.Name()
		return []oracle.Violation{*bad}
	}
	var out []oracle.Violation
	add := func(code, format string, args ...any) {
		out = append(out, oracle.Violation{
			Oracle:  o.Name(),
			Code:    code,
			Message: fmt.Sprintf(format, args...),
		})
	}
	for _, f := range k.Files() {
		doc, err := parseManifest(f.Content)
		if err != nil {
			add("INVALID_YAML", "%s: %v", f.Path, err)
			continue
		}
		root := doc.Content[0]
		if scalarString(mapGet(root, "apiVersion")) == "" {
			add("MISSING_API_VERSION", "%s: apiVersion is required", f.Path)
		}
		if scalarString(mapGet(root, "kind")) == "" {
			add("MISSING_KIND", "%s: kind is required", f.Path)
		}
		if scalarString(mapGet(mapGet(root, "metadata"), "name")) == "" {
			add("MISSING_NAME", "%s: metadata.name is required", f.Path)
		}
		if n, ok := scalarInt(mapGet(mapGet(root, "spec"), "replicas")); ok && n < 0 {
			add("NEGATIVE_REPLICAS", "%s: spec.replicas must be non-negative, got %d", f.Path, n)
		}
	}
	return out
}

// DefaultOracles is the standard oracle order for manifest repair.
func DefaultOracles() []oracle.Oracle {
	return []oracle.Oracle{PolicyOracle{}, SecurityOracle{}, ResourceOracle{}, SchemaOracle{}}
}
