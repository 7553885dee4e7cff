package project

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned for paths that escape the content root.
var ErrOutsideRoot = errors.New("path is outside the project content root")

// resolve joins rel onto the content root of project id.
func (s *Store) resolve(id, rel string) (string, error) {
	p, err := s.Get(id)
	if err != nil {
		return "", err
	}
	root := filepath.Clean(s.ContentRoot(p))
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, rel)
	}
	full := filepath.Join(root, filepath.FromSlash(rel))
	if full != root && !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, rel)
	}
	return full, nil
}

// ReadSource reads a file below the content root.
func (s *Store) ReadSource(id, rel string) (string, error) {
	path, err := s.resolve(id, rel)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return string(data), nil
}

// SaveSource writes a file below the content root, creating parents.
func (s *Store) SaveSource(id, rel, content string) error {
	path, err := s.resolve(id, rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// CreateFile creates a new file and fails if it already exists.
func (s *Store) CreateFile(id, rel, content string) error {
	path, err := s.resolve(id, rel)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", fs.ErrExist, rel)
	}
	return s.SaveSource(id, rel, content)
}

// CreateFolder creates a directory below the content root.
func (s *Store) CreateFolder(id, rel string) error {
	path, err := s.resolve(id, rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create folder: %w", err)
	}
	return nil
}

// Rename renames an entry in place.
func (s *Store) Rename(id, oldRel, newRel string) error {
	from, err := s.resolve(id, oldRel)
	if err != nil {
		return err
	}
	to, err := s.resolve(id, newRel)
	if err != nil {
		return err
	}
	if err := os.Rename(from, to); err != nil {
		return fmt.Errorf("failed to rename: %w", err)
	}
	return nil
}

// DeleteEntry removes a file or directory tree below the content root.
func (s *Store) DeleteEntry(id, rel string) error {
	path, err := s.resolve(id, rel)
	if err != nil {
		return err
	}
	root, _ := s.resolve(id, "")
	if path == root {
		return fmt.Errorf("%w: refusing to delete the content root", ErrOutsideRoot)
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to delete: %w", err)
	}
	return nil
}

// Move moves an entry, falling back to copy and remove when a rename is not
// possible (for example across devices).
func (s *Store) Move(id, srcRel, dstRel string) error {
	src, err := s.resolve(id, srcRel)
	if err != nil {
		return err
	}
	dst, err := s.resolve(id, dstRel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("failed to stat source: %w", err)
	}
	if info.IsDir() {
		err = copyDir(src, dst)
	} else {
		err = copyFile(src, dst, info.Mode())
	}
	if err != nil {
		return fmt.Errorf("failed to copy: %w", err)
	}
	if err := os.RemoveAll(src); err != nil {
		return fmt.Errorf("failed to remove source: %w", err)
	}
	return nil
}

func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return copyFile(path, target, info.Mode())
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
