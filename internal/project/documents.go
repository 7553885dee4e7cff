package project

import (
	"fmt"
	"os"
	"path/filepath"
)

// Document kinds stored next to project.json.
const (
	DocRequirement = "requirement"
	DocChat        = "chat"
	DocTasks       = "tasks"
)

var documentFiles = map[string]string{
	DocRequirement: RequirementFile,
	DocChat:        ChatFile,
	DocTasks:       TasksFile,
}

// DocumentPath returns the file backing a document kind.
func (s *Store) DocumentPath(id, kind string) (string, error) {
	name, ok := documentFiles[kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownDocument, kind)
	}
	if !validID(id) {
		return "", ErrNotFound
	}
	if kind == DocRequirement {
		if p, err := s.Get(id); err == nil {
			return s.RequirementPath(p), nil
		}
	}
	return filepath.Join(s.ProjectDir(id), name), nil
}

// ReadDocument returns a document's content, or "" when it does not exist yet.
func (s *Store) ReadDocument(id, kind string) (string, error) {
	path, err := s.DocumentPath(id, kind)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", kind, err)
	}
	return string(data), nil
}

// WriteDocument replaces a document's content.
func (s *Store) WriteDocument(id, kind, content string) error {
	path, err := s.DocumentPath(id, kind)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", kind, err)
	}
	return nil
}
