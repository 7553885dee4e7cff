// Package workspace builds bounded views of a project directory.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
	"go.uber.org/zap"
)

const (
	// DefaultMaxDepth is the number of directory levels expanded below the root.
	DefaultMaxDepth = 10
	// DefaultMaxFiles caps the number of files returned by one scan.
	DefaultMaxFiles = 1000

	depthLimitSuffix = " (depth limit)"
)

// ErrNotDirectory is returned when the scan root exists but is not a directory.
var ErrNotDirectory = errors.New("scan root is not a directory")

// SkippedNames are directory and file names never included in a scan.
var SkippedNames = []string{
	"node_modules",
	".git",
	"target",
	"debug",
	"release",
	"build",
	"dist",
	".vscode",
	".idea",
	"vendor",
	"venv",
	".venv",
	"__pycache__",
	".next",
	".nuxt",
	"coverage",
}

// VisibleHiddenNames are dot-entries that stay visible.
var VisibleHiddenNames = []string{".gitignore", ".env"}

// BinaryExtensions are file extensions treated as build output.
var BinaryExtensions = []string{"dll", "exe", "so", "dylib", "bin", "pdb", "o", "a", "lib"}

// FileNode is one entry of a scanned tree.
type FileNode struct {
	Name string `json:"name"`
	// RelativePath is relative to the scan root and always uses '/'.
	RelativePath string     `json:"path"`
	IsFile       bool       `json:"is_file"`
	DepthLimited bool       `json:"depth_limited,omitempty"`
	Children     []FileNode `json:"children,omitempty"`
}

// ScanOptions configures a Scanner. Zero values select the defaults.
type ScanOptions struct {
	MaxDepth int
	MaxFiles int
	// ExtraIgnore holds additional gitignore-style patterns.
	ExtraIgnore []string
}

// Scanner produces bounded FileNode trees.
type Scanner struct {
	opts     ScanOptions
	names    gitignore.IgnoreParser
	binaries gitignore.IgnoreParser
	extra    gitignore.IgnoreParser
	hiddenOK map[string]bool
	logger   *zap.Logger
}

// NewScanner creates a scanner with the given options.
func NewScanner(opts ScanOptions, logger *zap.Logger) *Scanner {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = DefaultMaxFiles
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	binPatterns := make([]string, 0, len(BinaryExtensions))
	for _, ext := range BinaryExtensions {
		binPatterns = append(binPatterns, "*."+ext)
	}

	s := &Scanner{
		opts:     opts,
		names:    gitignore.CompileIgnoreLines(SkippedNames...),
		binaries: gitignore.CompileIgnoreLines(binPatterns...),
		hiddenOK: make(map[string]bool, len(VisibleHiddenNames)),
		logger:   logger,
	}
	if len(opts.ExtraIgnore) > 0 {
		s.extra = gitignore.CompileIgnoreLines(opts.ExtraIgnore...)
	}
	for _, n := range VisibleHiddenNames {
		s.hiddenOK[n] = true
	}
	return s
}

// Scan walks root with the default options.
func Scan(root string) ([]FileNode, error) {
	return NewScanner(ScanOptions{}, nil).Scan(root)
}

// Options returns the effective options.
func (s *Scanner) Options() ScanOptions {
	return s.opts
}

// Scan builds the tree under root. A missing or unreadable root yields an
// empty tree; a root that is a regular file yields ErrNotDirectory.
func (s *Scanner) Scan(root string) ([]FileNode, error) {
	info, err := os.Stat(root)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug("scan root not accessible", zap.String("root", root), zap.Error(err))
		}
		return []FileNode{}, nil
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", root, ErrNotDirectory)
	}

	files := 0
	nodes := s.scanDir(root, root, 0, &files)
	return nodes, nil
}

// Skipped reports whether an entry with the given name is excluded.
func (s *Scanner) Skipped(name string, isDir bool) bool {
	if strings.HasPrefix(name, ".") && !s.hiddenOK[name] {
		return true
	}
	if s.names.MatchesPath(name) {
		return true
	}
	if !isDir && s.binaries.MatchesPath(name) {
		return true
	}
	return false
}

func (s *Scanner) skippedPath(rel string, isDir bool) bool {
	if s.extra == nil {
		return false
	}
	if isDir {
		return s.extra.MatchesPath(rel) || s.extra.MatchesPath(rel+"/")
	}
	return s.extra.MatchesPath(rel)
}

// scanDir lists dir at the given depth. files is shared by the whole scan.
func (s *Scanner) scanDir(base, dir string, depth int, files *int) []FileNode {
	entries, err := os.ReadDir(dir)
	if err != nil {
		s.logger.Debug("skipping unreadable directory", zap.String("dir", dir), zap.Error(err))
		return []FileNode{}
	}

	nodes := make([]FileNode, 0, len(entries))
	for _, entry := range entries {
		if *files >= s.opts.MaxFiles {
			break
		}

		name := entry.Name()
		full := filepath.Join(dir, name)
		isDir := entry.IsDir()
		if entry.Type()&fs.ModeSymlink != 0 {
			// Follow links; broken ones are listed as files.
			if target, err := os.Stat(full); err == nil {
				isDir = target.IsDir()
			}
		}

		if s.Skipped(name, isDir) {
			continue
		}

		rel, err := filepath.Rel(base, full)
		if err != nil {
			continue
		}
		rel = filepath.ToSlash(rel)
		if s.skippedPath(rel, isDir) {
			continue
		}

		if !isDir {
			*files++
			nodes = append(nodes, FileNode{Name: name, RelativePath: rel, IsFile: true})
			continue
		}

		if depth >= s.opts.MaxDepth {
			nodes = append(nodes, FileNode{
				Name:         name + depthLimitSuffix,
				RelativePath: rel,
				DepthLimited: true,
				Children:     []FileNode{},
			})
			continue
		}

		nodes = append(nodes, FileNode{
			Name:         name,
			RelativePath: rel,
			Children:     s.scanDir(base, full, depth+1, files),
		})
	}

	sortNodes(nodes)
	return nodes
}

// sortNodes orders directories before files, then by name.
func sortNodes(nodes []FileNode) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].IsFile != nodes[j].IsFile {
			return !nodes[i].IsFile
		}
		return nodes[i].Name < nodes[j].Name
	})
}

// Walk calls fn for every node in depth-first order.
func Walk(nodes []FileNode, fn func(FileNode)) {
	for _, n := range nodes {
		fn(n)
		if len(n.Children) > 0 {
			Walk(n.Children, fn)
		}
	}
}

// Count returns the number of files and directories in the tree.
func Count(nodes []FileNode) (files, dirs int) {
	Walk(nodes, func(n FileNode) {
		if n.IsFile {
			files++
		} else {
			dirs++
		}
	})
	return files, dirs
}

// Files returns the relative paths of all files in the tree.
func Files(nodes []FileNode) []string {
	var out []string
	Walk(nodes, func(n FileNode) {
		if n.IsFile {
			out = append(out, n.RelativePath)
		}
	})
	return out
}
