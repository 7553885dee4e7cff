// Package project stores Code Sensei projects on disk.
//
// Each project lives in <projects_dir>/<id>/ with a project.json metadata
// file, its documents (requirement.md, chat.json, tasks.json) and, unless
// the project points at an existing root_path, src/ and docs/ folders.
package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ChamsBouzaiene/sensei/internal/workspace"
)

const (
	MetadataFile    = "project.json"
	RequirementFile = "requirement.md"
	ChatFile        = "chat.json"
	TasksFile       = "tasks.json"
	SourceDir       = "src"
	DocsDir         = "docs"
)

var (
	// ErrNotFound is returned when a project directory or its metadata is missing.
	ErrNotFound = errors.New("project not found")
	// ErrUnknownDocument is returned for an unsupported document kind.
	ErrUnknownDocument = errors.New("unknown document kind")
)

// Project is the metadata stored in project.json.
type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Language    string `json:"language"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
	RootPath    string `json:"root_path,omitempty"`
}

// ChatMessage is one entry of chat.json.
type ChatMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// Task is one entry of tasks.json.
type Task struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Order       int    `json:"order"`
}

// Store manages the projects directory.
type Store struct {
	dir    string
	logger *zap.Logger
}

// NewStore creates a store rooted at dir, creating it if needed.
func NewStore(dir string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create projects dir: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// DefaultDir returns <user config dir>/CodeSensei/projects.
func DefaultDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config dir: %w", err)
	}
	return filepath.Join(configDir, "CodeSensei", "projects"), nil
}

// Dir returns the projects directory.
func (s *Store) Dir() string {
	return s.dir
}

// ProjectDir returns the application directory of a project.
func (s *Store) ProjectDir(id string) string {
	return filepath.Join(s.dir, id)
}

// List returns all readable projects, newest first. Directories with a
// missing or invalid project.json are skipped.
func (s *Store) List() ([]Project, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read projects dir: %w", err)
	}

	projects := make([]Project, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		p, err := s.Get(entry.Name())
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				s.logger.Warn("skipping unreadable project", zap.String("id", entry.Name()), zap.Error(err))
			}
			continue
		}
		projects = append(projects, *p)
	}

	sort.SliceStable(projects, func(i, j int) bool {
		return projects[i].CreatedAt > projects[j].CreatedAt
	})
	return projects, nil
}

// Get loads and validates a project's metadata.
func (s *Store) Get(id string) (*Project, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(filepath.Join(s.ProjectDir(id), MetadataFile))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", MetadataFile, err)
	}
	if err := validateMetadata(data); err != nil {
		return nil, err
	}

	var p Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", MetadataFile, err)
	}
	return &p, nil
}

// Create makes a new project. Without rootPath the project gets its own
// src/ and docs/ folders and an initial requirement document.
func (s *Store) Create(name, description, rootPath string) (*Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("project name is required")
	}
	rootPath = strings.TrimSpace(rootPath)

	id := uuid.NewString()
	dir := s.ProjectDir(id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create project directory: %w", err)
	}

	language := workspace.ProjectTypeUnknown
	if rootPath == "" {
		for _, sub := range []string{SourceDir, DocsDir} {
			if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
				return nil, fmt.Errorf("failed to create %s directory: %w", sub, err)
			}
		}
	} else {
		language = workspace.DetectProjectType(rootPath, nil)
	}

	now := time.Now().Unix()
	p := &Project{
		ID:          id,
		Name:        name,
		Description: description,
		Language:    string(language),
		CreatedAt:   now,
		UpdatedAt:   now,
		RootPath:    rootPath,
	}
	if err := s.save(p); err != nil {
		return nil, err
	}

	if rootPath == "" {
		initial := fmt.Sprintf("# %s Requirements\n\n## Description\n%s\n\n## Features\n\n## Tech Stack\n\n", name, description)
		if err := os.WriteFile(filepath.Join(dir, RequirementFile), []byte(initial), 0644); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", RequirementFile, err)
		}
	}

	s.logger.Info("project created", zap.String("id", id), zap.String("name", name))
	return p, nil
}

// Touch bumps the project's updated_at.
func (s *Store) Touch(id string) error {
	p, err := s.Get(id)
	if err != nil {
		return err
	}
	p.UpdatedAt = time.Now().Unix()
	return s.save(p)
}

// Delete removes the project's application directory. A root_path outside
// the projects directory is left untouched.
func (s *Store) Delete(id string) error {
	if !validID(id) {
		return ErrNotFound
	}
	dir := s.ProjectDir(id)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return ErrNotFound
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	s.logger.Info("project deleted", zap.String("id", id))
	return nil
}

func (s *Store) save(p *Project) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize project: %w", err)
	}
	// Readers never see a partially written file.
	dir := s.ProjectDir(p.ID)
	tmp, err := os.CreateTemp(dir, MetadataFile+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", MetadataFile, err)
	}
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", MetadataFile, err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		s.logger.Debug("failed to chmod metadata", zap.Error(err))
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, MetadataFile)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", MetadataFile, err)
	}
	return nil
}

// ProjectRoot is where agent work happens: root_path when set, otherwise the
// application directory.
func (s *Store) ProjectRoot(p *Project) string {
	if p.RootPath != "" {
		return p.RootPath
	}
	return s.ProjectDir(p.ID)
}

// ContentRoot is the directory shown in the file tree: root_path when set,
// otherwise src/.
func (s *Store) ContentRoot(p *Project) string {
	if p.RootPath != "" {
		return p.RootPath
	}
	return filepath.Join(s.ProjectDir(p.ID), SourceDir)
}

// RequirementPath locates the requirement document of p.
func (s *Store) RequirementPath(p *Project) string {
	return filepath.Join(s.ProjectRoot(p), RequirementFile)
}

// validID rejects ids that would escape the projects directory.
func validID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}
