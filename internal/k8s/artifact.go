package k8s

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"redress/internal/oracle"
	"redress/internal/patch"
)

// File is one manifest file of an artifact.
type File struct {
	Path    string
	Content string
}

// Artifact is a set of Kubernetes YAML manifests, in a stable file order.
// It satisfies the engine's artifact contract; the engine itself never
// looks inside.
type Artifact struct {
	files []File
}

// NewArtifact builds an artifact from files, keeping their order.
func NewArtifact(files ...File) *Artifact {
	return &Artifact{files: append([]File(nil), files...)}
}

// FromFile loads a single manifest file.
func FromFile(path string) (*Artifact, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return NewArtifact(File{Path: filepath.Base(path), Content: string(content)}), nil
}

// FromDir loads every file in dir matching the glob pattern, in sorted
// path order.
func FromDir(dir, pattern string) (*Artifact, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("bad glob pattern %q: %w", pattern, err)
	}
	sort.Strings(matches)
	var files []File
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		content, err := os.ReadFile(m)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", m, err)
		}
		rel, err := filepath.Rel(dir, m)
		if err != nil {
			rel = filepath.Base(m)
		}
		files = append(files, File{Path: rel, Content: string(content)})
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no files matching %q under %s", pattern, dir)
	}
	return NewArtifact(files...), nil
}

// Files returns the manifest files in order.
func (a *Artifact) Files() []File {
	return append([]File(nil), a.files...)
}

// Apply runs the domain executor over a copy of the artifact. The
// receiver is unchanged.
func (a *Artifact) Apply(p patch.Patch) (oracle.Artifact, error) {
	files, err := applyPatch(a.files, p)
	if err != nil {
		return nil, err
	}
	return &Artifact{files: files}, nil
}

// WriteDir writes every manifest into dir, creating it as needed. When
// outputName is non-empty the first file is renamed to it.
func (a *Artifact) WriteDir(dir, outputName string) error {
	for i, f := range a.files {
		name := f.Path
		if i == 0 && outputName != "" {
			name = outputName
		}
		target := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		if err := os.WriteFile(target, []byte(f.Content), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", target, err)
		}
	}
	return nil
}

// SignatureContext extracts bank-signature context from the first
// Deployment manifest: application name and env label. Best-effort; an
// unparseable artifact yields no context.
func SignatureContext(a *Artifact) map[string]string {
	ctx := make(map[string]string)
	a.eachDeployment(func(root *yaml.Node) bool {
		if name := scalarString(mapGet(mapGet(root, "metadata"), "name")); name != "" {
			ctx["app"] = name
		}
		if env := podTemplateLabel(root, "env"); env != "" {
			ctx["env"] = env
		}
		return false
	})
	if len(ctx) == 0 {
		return nil
	}
	return ctx
}

// eachDeployment parses each file and invokes fn on Deployment roots until
// fn returns false. Parse failures are skipped; oracles report those.
func (a *Artifact) eachDeployment(fn func(root *yaml.Node) bool) {
	for _, f := range a.files {
		doc, err := parseManifest(f.Content)
		if err != nil {
			continue
		}
		root := doc.Content[0]
		if !isDeployment(root) {
			continue
		}
		if !fn(root) {
			return
		}
	}
}
