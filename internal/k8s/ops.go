package k8s

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"redress/internal/patch"
)

// Opcodes understood by the executor. The engine treats these as opaque
// strings; they gain meaning here.
const (
	OpEnsureLabel           = "EnsureLabel"
	OpEnsureReplicas        = "EnsureReplicas"
	OpEnsureImageVersion    = "EnsureImageVersion"
	OpEnsureSecurityBaseline = "EnsureSecurityBaseline"
	OpEnsureResourceProfile = "EnsureResourceProfile"
	OpEnsurePriorityClass   = "EnsurePriorityClass"
)

// Label scopes for EnsureLabel.
const (
	ScopeDeployment  = "deployment"
	ScopePodTemplate = "podTemplate"
	ScopeBoth        = "both"
)

// ResourceProfile is one named requests/limits preset.
type ResourceProfile struct {
	RequestCPU    string
	RequestMemory string
	LimitCPU      string
	LimitMemory   string
}

// ResourceProfiles are the org-standard container sizing presets.
var ResourceProfiles = map[string]ResourceProfile{
	"small":  {RequestCPU: "100m", RequestMemory: "128Mi", LimitCPU: "200m", LimitMemory: "256Mi"},
	"medium": {RequestCPU: "500m", RequestMemory: "512Mi", LimitCPU: "1000m", LimitMemory: "1Gi"},
	"large":  {RequestCPU: "1000m", RequestMemory: "1Gi", LimitCPU: "2000m", LimitMemory: "2Gi"},
}

// applyPatch applies all operations in order over the file set. Each
// operation edits every Deployment manifest; other documents pass
// through untouched.
func applyPatch(files []File, p patch.Patch) ([]File, error) {
	out := append([]File(nil), files...)
	for _, op := range p.Ops {
		var err error
		out, err = applyOp(out, op)
		if err != nil {
			return nil, fmt.Errorf("op %s: %w", op.Name, err)
		}
	}
	return out, nil
}

func applyOp(files []File, op patch.Op) ([]File, error) {
	edit, err := editorFor(op)
	if err != nil {
		return nil, err
	}
	out := make([]File, len(files))
	for i, f := range files {
		doc, perr := parseManifest(f.Content)
		if perr != nil {
			// Leave unparseable files to the oracles.
			out[i] = f
			continue
		}
		root := doc.Content[0]
		if !isDeployment(root) {
			out[i] = f
			continue
		}
		if err := edit(root); err != nil {
			return nil, fmt.Errorf("%s: %w", f.Path, err)
		}
		content, eerr := encodeManifest(doc)
		if eerr != nil {
			return nil, fmt.Errorf("%s: %w", f.Path, eerr)
		}
		out[i] = File{Path: f.Path, Content: content}
	}
	return out, nil
}

// editorFor resolves the opcode and arguments into a node editor. Unknown
// opcodes and missing or mistyped arguments are executor errors, which the
// synthesizer treats per-candidate. The one exception is EnsureLabel's
// scope: when it is missing or not a string it defaults to "both".
func editorFor(op patch.Op) (func(root *yaml.Node) error, error) {
	switch op.Name {
	case OpEnsureLabel:
		scope, err := argString(op, "scope")
		if err != nil {
			scope = ScopeBoth
		}
		if scope != ScopeDeployment && scope != ScopePodTemplate && scope != ScopeBoth {
			return nil, fmt.Errorf("unknown label scope %q", scope)
		}
		key, err := argString(op, "key")
		if err != nil {
			return nil, err
		}
		value, err := argString(op, "value")
		if err != nil {
			return nil, err
		}
		return func(root *yaml.Node) error {
			return ensureLabel(root, scope, key, value)
		}, nil

	case OpEnsureReplicas:
		replicas, err := argInt(op, "replicas")
		if err != nil {
			return nil, err
		}
		return func(root *yaml.Node) error {
			spec := mapEnsure(root, "spec")
			mapSet(spec, "replicas", &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: fmt.Sprintf("%d", replicas)})
			return nil
		}, nil

	case OpEnsureImageVersion:
		container, err := argString(op, "container")
		if err != nil {
			return nil, err
		}
		version, err := argString(op, "version")
		if err != nil {
			return nil, err
		}
		return func(root *yaml.Node) error {
			return ensureImageVersion(root, container, version)
		}, nil

	case OpEnsureSecurityBaseline:
		container, err := argString(op, "container")
		if err != nil {
			return nil, err
		}
		return func(root *yaml.Node) error {
			return ensureSecurityBaseline(root, container)
		}, nil

	case OpEnsureResourceProfile:
		container, err := argString(op, "container")
		if err != nil {
			return nil, err
		}
		profile, err := argString(op, "profile")
		if err != nil {
			return nil, err
		}
		spec, ok := ResourceProfiles[profile]
		if !ok {
			return nil, fmt.Errorf("unknown resource profile %q", profile)
		}
		return func(root *yaml.Node) error {
			return ensureResourceProfile(root, container, spec)
		}, nil

	case OpEnsurePriorityClass:
		arg, ok := op.Args.Get("name")
		if !ok {
			return nil, fmt.Errorf("missing arg %q", "name")
		}
		if arg.IsHole() {
			return nil, fmt.Errorf("arg %q is an uninstantiated hole", "name")
		}
		name := arg.Value()
		return func(root *yaml.Node) error {
			spec := mapEnsure(root, "spec")
			if name.Kind() == patch.KindNull || (name.Kind() == patch.KindString && name.StringVal() == "") {
				mapDelete(spec, "priorityClassName")
				return nil
			}
			if name.Kind() != patch.KindString {
				return fmt.Errorf("priority class name must be a string, got %s", name)
			}
			mapSet(spec, "priorityClassName", &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: name.StringVal()})
			return nil
		}, nil
	}
	return nil, fmt.Errorf("unknown patch operation %q", op.Name)
}

func ensureLabel(root *yaml.Node, scope, key, value string) error {
	node := func() *yaml.Node {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
	}
	if scope == ScopeDeployment || scope == ScopeBoth {
		meta := mapEnsure(root, "metadata")
		labels := mapEnsure(meta, "labels")
		mapSet(labels, key, node())
	}
	if scope == ScopePodTemplate || scope == ScopeBoth {
		spec := mapEnsure(root, "spec")
		tmpl := mapEnsure(spec, "template")
		meta := mapEnsure(tmpl, "metadata")
		labels := mapEnsure(meta, "labels")
		mapSet(labels, key, node())
	}
	return nil
}

func ensureImageVersion(root *yaml.Node, containerName, version string) error {
	for _, c := range containers(root) {
		if scalarString(mapGet(c, "name")) != containerName {
			continue
		}
		current := scalarString(mapGet(c, "image"))
		image := resolveImage(current, containerName, version)
		mapSet(c, "image", &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: image})
	}
	return nil
}

// resolveImage interprets version as either a full registry path or a
// bare tag appended to the current image base.
func resolveImage(current, containerName, version string) string {
	if isRegistryPath(version) {
		return version
	}
	base := current
	if i := lastColon(current); i >= 0 {
		base = current[:i]
	}
	if base == "" {
		base = containerName
	}
	return base + ":" + version
}

func ensureSecurityBaseline(root *yaml.Node, containerName string) error {
	boolNode := func(v bool) *yaml.Node {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: fmt.Sprintf("%t", v)}
	}
	for _, c := range containers(root) {
		if scalarString(mapGet(c, "name")) != containerName {
			continue
		}
		sec := mapEnsure(c, "securityContext")
		mapSet(sec, "runAsNonRoot", boolNode(true))
		mapSet(sec, "allowPrivilegeEscalation", boolNode(false))
		mapSet(sec, "readOnlyRootFilesystem", boolNode(true))
		caps := mapEnsure(sec, "capabilities")
		drop := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		drop.Content = append(drop.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "ALL"})
		mapSet(caps, "drop", drop)
	}
	return nil
}

func ensureResourceProfile(root *yaml.Node, containerName string, profile ResourceProfile) error {
	strNode := func(v string) *yaml.Node {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
	}
	for _, c := range containers(root) {
		if scalarString(mapGet(c, "name")) != containerName {
			continue
		}
		resources := mapEnsure(c, "resources")
		requests := mapEnsure(resources, "requests")
		mapSet(requests, "cpu", strNode(profile.RequestCPU))
		mapSet(requests, "memory", strNode(profile.RequestMemory))
		limits := mapEnsure(resources, "limits")
		mapSet(limits, "cpu", strNode(profile.LimitCPU))
		mapSet(limits, "memory", strNode(profile.LimitMemory))
	}
	return nil
}

func argString(op patch.Op, key string) (string, error) {
	arg, ok := op.Args.Get(key)
	if !ok {
		return "", fmt.Errorf("missing arg %q", key)
	}
	if arg.IsHole() {
		return "", fmt.Errorf("arg %q is an uninstantiated hole", key)
	}
	if arg.Value().Kind() != patch.KindString {
		return "", fmt.Errorf("arg %q must be a string, got %s", key, arg.Value())
	}
	return arg.Value().StringVal(), nil
}

func argInt(op patch.Op, key string) (int64, error) {
	arg, ok := op.Args.Get(key)
	if !ok {
		return 0, fmt.Errorf("missing arg %q", key)
	}
	if arg.IsHole() {
		return 0, fmt.Errorf("arg %q is an uninstantiated hole", key)
	}
	if arg.Value().Kind() != patch.KindInt {
		return 0, fmt.Errorf("arg %q must be an integer, got %s", key, arg.Value())
	}
	return arg.Value().IntVal(), nil
}

func lastColon(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			return i
		}
		if s[i] == '/' {
			return -1
		}
	}
	return -1
}
