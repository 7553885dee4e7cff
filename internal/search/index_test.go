package search

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ChamsBouzaiene/sensei/internal/workspace"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func indexTree(t *testing.T, root string, opts Options) (*Index, Stats) {
	t.Helper()
	tree, err := workspace.Scan(root)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	idx, err := Open(filepath.Join(t.TempDir(), IndexDirName), opts)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	stats, err := idx.Index(context.Background(), root, tree)
	if err != nil {
		t.Fatalf("Index failed: %v", err)
	}
	return idx, stats
}

func TestIndexAndSearch(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/auth/login.go", "package auth\n\nfunc Login(user, password string) error { return nil }\n")
	writeFile(t, root, "src/todo/list.go", "package todo\n\ntype List struct{ Items []string }\n")
	writeFile(t, root, "README.md", "A todo application with login.\n")

	idx, stats := indexTree(t, root, Options{})
	if stats.Indexed != 3 || stats.Skipped != 0 {
		t.Fatalf("stats = %+v", stats)
	}

	hits, err := idx.Search("password", 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 1 || hits[0].Path != "src/auth/login.go" {
		t.Errorf("hits = %+v", hits)
	}

	hits, err = idx.Search("todo", 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) < 2 {
		t.Errorf("expected todo in two files, got %+v", hits)
	}
}

func TestIndexSkipsLargeAndBinaryContent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "small.txt", "hello")
	writeFile(t, root, "big.txt", strings.Repeat("x", 2048))
	writeFile(t, root, "weird.dat", string([]byte{0xff, 0xfe, 0xfd}))

	_, stats := indexTree(t, root, Options{MaxFileSize: "1KB"})
	if stats.Indexed != 1 || stats.Skipped != 2 {
		t.Errorf("stats = %+v, want 1 indexed and 2 skipped", stats)
	}
}

func TestReindexDropsRemovedFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "alpha")
	writeFile(t, root, "b.txt", "beta")
	idx, _ := indexTree(t, root, Options{})

	if err := os.Remove(filepath.Join(root, "b.txt")); err != nil {
		t.Fatal(err)
	}
	tree, _ := workspace.Scan(root)
	if _, err := idx.Index(context.Background(), root, tree); err != nil {
		t.Fatalf("reindex: %v", err)
	}
	n, err := idx.Count()
	if err != nil || n != 1 {
		t.Errorf("count = %d, %v", n, err)
	}
	hits, _ := idx.Search("beta", 5)
	if len(hits) != 0 {
		t.Errorf("removed file still found: %+v", hits)
	}
}

func TestOpen_InvalidSize(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "x"), Options{MaxFileSize: "lots"}); err == nil {
		t.Fatal("expected error for invalid size")
	}
}

func TestOpen_RecreatesCorruptedIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), IndexDirName)
	if err := os.MkdirAll(path, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(path, "index_meta.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	idx, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open should recover: %v", err)
	}
	defer idx.Close()
	if n, _ := idx.Count(); n != 0 {
		t.Errorf("recreated index should be empty, got %d", n)
	}
}
