package workspace

import (
	"os"
	"path/filepath"
	"strings"
)

// ProjectType represents the type of project.
type ProjectType string

const (
	ProjectTypeGo      ProjectType = "go"
	ProjectTypeNode    ProjectType = "node"
	ProjectTypePython  ProjectType = "python"
	ProjectTypeRust    ProjectType = "rust"
	ProjectTypeUnknown ProjectType = "unknown"
)

// manifests are checked in order; the first one present wins.
var manifests = []struct {
	file string
	typ  ProjectType
}{
	{"go.mod", ProjectTypeGo},
	{"package.json", ProjectTypeNode},
	{"pyproject.toml", ProjectTypePython},
	{"requirements.txt", ProjectTypePython},
	{"Cargo.toml", ProjectTypeRust},
}

var extTypes = map[string]ProjectType{
	".go":  ProjectTypeGo,
	".ts":  ProjectTypeNode,
	".tsx": ProjectTypeNode,
	".js":  ProjectTypeNode,
	".jsx": ProjectTypeNode,
	".py":  ProjectTypePython,
	".rs":  ProjectTypeRust,
}

// DetectProjectType detects the project type using manifest-first detection.
// When no manifest exists the file extensions of tree (a scan of root) decide;
// a nil tree falls back to the files directly under root.
func DetectProjectType(root string, tree []FileNode) ProjectType {
	for _, m := range manifests {
		if _, err := os.Stat(filepath.Join(root, m.file)); err == nil {
			return m.typ
		}
	}

	counts := make(map[ProjectType]int)
	if tree != nil {
		Walk(tree, func(n FileNode) {
			if n.IsFile {
				counts[extTypes[strings.ToLower(filepath.Ext(n.Name))]]++
			}
		})
	} else if entries, err := os.ReadDir(root); err == nil {
		for _, e := range entries {
			if !e.IsDir() {
				counts[extTypes[strings.ToLower(filepath.Ext(e.Name()))]]++
			}
		}
	}
	delete(counts, "")

	detected := ProjectTypeUnknown
	best := 0
	for _, typ := range []ProjectType{ProjectTypeGo, ProjectTypeNode, ProjectTypePython, ProjectTypeRust} {
		if counts[typ] > best {
			best = counts[typ]
			detected = typ
		}
	}

	// A couple of stray scripts do not make a project.
	if best >= 3 {
		return detected
	}
	return ProjectTypeUnknown
}

// Describe returns a short human label used in agent prompts.
func (p ProjectType) Describe() string {
	switch p {
	case ProjectTypeGo:
		return "Go module"
	case ProjectTypeNode:
		return "Node.js / TypeScript project"
	case ProjectTypePython:
		return "Python project"
	case ProjectTypeRust:
		return "Rust crate"
	default:
		return "new or unrecognized project"
	}
}
