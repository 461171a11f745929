// Package k8s is the Kubernetes domain bound to the repair engine: the
// manifest artifact, the patch executor that edits YAML in place
// (format-preserving), the oracle set, and the default repair template.
package k8s

import (
	"bytes"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"

	"redress/internal/patch"
)

// parseManifest parses one YAML document and returns its document node,
// whose first child is checked to be the root mapping. Comments and key
// order survive a parse/encode round trip.
func parseManifest(content string) (*yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("manifest is empty")
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("manifest root is not a mapping")
	}
	return &doc, nil
}

// encodeManifest renders the document back to YAML with two-space indent.
func encodeManifest(doc *yaml.Node) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc.Content[0]); err != nil {
		return "", fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// mapGet returns the value node for key in a mapping, or nil.
func mapGet(m *yaml.Node, key string) *yaml.Node {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

// mapEnsure returns the mapping value for key, creating an empty mapping
// entry at the end when absent.
func mapEnsure(m *yaml.Node, key string) *yaml.Node {
	if v := mapGet(m, key); v != nil {
		return v
	}
	keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
	valNode := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	m.Content = append(m.Content, keyNode, valNode)
	return valNode
}

// mapSet sets key to the given node, replacing an existing entry in place
// to keep its position and comments.
func mapSet(m *yaml.Node, key string, value *yaml.Node) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			// Keep surrounding comments attached to the old value.
			value.HeadComment = m.Content[i+1].HeadComment
			value.LineComment = m.Content[i+1].LineComment
			value.FootComment = m.Content[i+1].FootComment
			m.Content[i+1] = value
			return
		}
	}
	keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
	m.Content = append(m.Content, keyNode, value)
}

// mapDelete removes key from a mapping if present.
func mapDelete(m *yaml.Node, key string) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			m.Content = append(m.Content[:i], m.Content[i+2:]...)
			return
		}
	}
}

// scalarNode builds a YAML scalar for a patch value. Only scalar values
// have a YAML rendering here; structured args are a domain error.
func scalarNode(v patch.Value) (*yaml.Node, error) {
	n := &yaml.Node{Kind: yaml.ScalarNode}
	switch v.Kind() {
	case patch.KindString:
		n.Tag = "!!str"
		n.Value = v.StringVal()
	case patch.KindInt:
		n.Tag = "!!int"
		n.Value = strconv.FormatInt(v.IntVal(), 10)
	case patch.KindBool:
		n.Tag = "!!bool"
		n.Value = strconv.FormatBool(v.BoolVal())
	case patch.KindFloat:
		n.Tag = "!!float"
		n.Value = strconv.FormatFloat(v.FloatVal(), 'g', -1, 64)
	default:
		return nil, fmt.Errorf("value %s has no scalar YAML form", v)
	}
	return n, nil
}

// scalarString returns the string content of a scalar node ("" otherwise).
func scalarString(n *yaml.Node) string {
	if n == nil || n.Kind != yaml.ScalarNode {
		return ""
	}
	return n.Value
}

// scalarInt parses a scalar node as an integer.
func scalarInt(n *yaml.Node) (int64, bool) {
	if n == nil || n.Kind != yaml.ScalarNode {
		return 0, false
	}
	i, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, false
	}
	return i, true
}

// isDeployment reports whether the manifest root describes a Deployment.
func isDeployment(root *yaml.Node) bool {
	return scalarString(mapGet(root, "kind")) == "Deployment"
}

// podTemplateLabels returns the pod template label mapping, or nil.
func podTemplateLabels(root *yaml.Node) *yaml.Node {
	spec := mapGet(root, "spec")
	tmpl := mapGet(spec, "template")
	meta := mapGet(tmpl, "metadata")
	return mapGet(meta, "labels")
}

// podTemplateLabel extracts one pod template label value.
func podTemplateLabel(root *yaml.Node, key string) string {
	return scalarString(mapGet(podTemplateLabels(root), key))
}

// containers returns the container sequence nodes of a Deployment.
func containers(root *yaml.Node) []*yaml.Node {
	spec := mapGet(root, "spec")
	tmpl := mapGet(spec, "template")
	podSpec := mapGet(tmpl, "spec")
	seq := mapGet(podSpec, "containers")
	if seq == nil || seq.Kind != yaml.SequenceNode {
		return nil
	}
	return seq.Content
}
