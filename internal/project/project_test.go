package project

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "projects"), nil)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return s
}

func TestCreate_WithoutRootPath(t *testing.T) {
	s := newTestStore(t)

	p, err := s.Create("Todo App", "a small todo list", "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	dir := s.ProjectDir(p.ID)
	for _, sub := range []string{SourceDir, DocsDir, MetadataFile, RequirementFile} {
		if _, err := os.Stat(filepath.Join(dir, sub)); err != nil {
			t.Errorf("expected %s to exist: %v", sub, err)
		}
	}

	req, err := s.ReadDocument(p.ID, DocRequirement)
	if err != nil {
		t.Fatalf("ReadDocument failed: %v", err)
	}
	if !strings.Contains(req, "Todo App") || !strings.Contains(req, "a small todo list") {
		t.Errorf("unexpected initial requirement: %q", req)
	}
	if s.ContentRoot(p) != filepath.Join(dir, SourceDir) {
		t.Errorf("ContentRoot = %s", s.ContentRoot(p))
	}
	if s.RequirementPath(p) != filepath.Join(dir, RequirementFile) {
		t.Errorf("RequirementPath = %s", s.RequirementPath(p))
	}
}

func TestCreate_WithRootPath(t *testing.T) {
	s := newTestStore(t)
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "go.mod"), []byte("module x\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	p, err := s.Create("Existing", "", root)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if p.Language != "go" {
		t.Errorf("Language = %q, want go", p.Language)
	}
	if _, err := os.Stat(filepath.Join(s.ProjectDir(p.ID), SourceDir)); !os.IsNotExist(err) {
		t.Error("src/ should not be created when root_path is set")
	}
	if s.RequirementPath(p) != filepath.Join(root, RequirementFile) {
		t.Errorf("RequirementPath = %s", s.RequirementPath(p))
	}
	if err := s.WriteDocument(p.ID, DocRequirement, "# requirements"); err != nil {
		t.Fatalf("WriteDocument failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(root, RequirementFile))
	if err != nil || string(data) != "# requirements" {
		t.Errorf("requirement under root_path = %q, %v", data, err)
	}
}

func TestListOrderAndDelete(t *testing.T) {
	s := newTestStore(t)
	var ids []string
	for i, name := range []string{"first", "second", "third"} {
		p, err := s.Create(name, "", "")
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		p.CreatedAt = int64(1000 + i)
		if err := s.save(p); err != nil {
			t.Fatalf("save failed: %v", err)
		}
		ids = append(ids, p.ID)
	}
	// A directory without metadata is ignored.
	if err := os.MkdirAll(filepath.Join(s.Dir(), "stray"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	projects, err := s.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	var got []string
	for _, p := range projects {
		got = append(got, p.Name)
	}
	if strings.Join(got, ",") != "third,second,first" {
		t.Errorf("List order = %v", got)
	}

	if err := s.Delete(ids[0]); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(ids[0]); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
	if err := s.Delete("../escape"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete with traversal id = %v, want ErrNotFound", err)
	}
}

func TestGet_InvalidMetadata(t *testing.T) {
	s := newTestStore(t)
	dir := s.ProjectDir("broken")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, MetadataFile), []byte(`{"name": 3}`), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, err := s.Get("broken")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Errors) == 0 {
		t.Error("validation error should list violations")
	}
}

func TestDocuments(t *testing.T) {
	s := newTestStore(t)
	p, err := s.Create("docs", "", "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	tests := []struct {
		kind    string
		content string
		wantErr error
	}{
		{DocChat, `[{"role":"user","content":"hi","timestamp":1}]`, nil},
		{DocTasks, `[]`, nil},
		{"notes", "x", ErrUnknownDocument},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			if got, err := s.ReadDocument(p.ID, tt.kind); tt.wantErr == nil && (err != nil || got != "") {
				t.Errorf("missing document should read as empty: %q, %v", got, err)
			}
			err := s.WriteDocument(p.ID, tt.kind, tt.content)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("WriteDocument failed: %v", err)
			}
			got, err := s.ReadDocument(p.ID, tt.kind)
			if err != nil || got != tt.content {
				t.Errorf("ReadDocument = %q, %v", got, err)
			}
		})
	}
}

func TestSourceFiles(t *testing.T) {
	s := newTestStore(t)
	p, err := s.Create("code", "", "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := s.CreateFile(p.ID, "pkg/a.go", "package pkg"); err != nil {
		t.Fatalf("CreateFile failed: %v", err)
	}
	if err := s.CreateFile(p.ID, "pkg/a.go", "again"); err == nil {
		t.Error("CreateFile should refuse to overwrite")
	}
	if err := s.CreateFolder(p.ID, "empty/dir"); err != nil {
		t.Fatalf("CreateFolder failed: %v", err)
	}
	if err := s.Rename(p.ID, "pkg/a.go", "pkg/b.go"); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	if err := s.Move(p.ID, "pkg", "lib/pkg"); err != nil {
		t.Fatalf("Move failed: %v", err)
	}
	got, err := s.ReadSource(p.ID, "lib/pkg/b.go")
	if err != nil || got != "package pkg" {
		t.Errorf("ReadSource = %q, %v", got, err)
	}
	if err := s.SaveSource(p.ID, "lib/pkg/b.go", "package pkg // v2"); err != nil {
		t.Fatalf("SaveSource failed: %v", err)
	}
	if err := s.DeleteEntry(p.ID, "empty"); err != nil {
		t.Fatalf("DeleteEntry failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.ContentRoot(p), "empty")); !os.IsNotExist(err) {
		t.Error("empty/ should be gone")
	}

	for _, rel := range []string{"../project.json", "/etc/passwd"} {
		if _, err := s.ReadSource(p.ID, rel); !errors.Is(err, ErrOutsideRoot) {
			t.Errorf("ReadSource(%q) = %v, want ErrOutsideRoot", rel, err)
		}
	}
	if err := s.DeleteEntry(p.ID, ""); !errors.Is(err, ErrOutsideRoot) {
		t.Errorf("deleting the content root should be refused, got %v", err)
	}
}

func TestCopyFallback(t *testing.T) {
	src := t.TempDir()
	if err := os.MkdirAll(filepath.Join(src, "a", "b"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "a", "b", "f.txt"), []byte("data"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	dst := filepath.Join(t.TempDir(), "copy")
	if err := copyDir(src, dst); err != nil {
		t.Fatalf("copyDir failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dst, "a", "b", "f.txt"))
	if err != nil || string(data) != "data" {
		t.Errorf("copied file = %q, %v", data, err)
	}
}
