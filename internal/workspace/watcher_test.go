package workspace

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher_ReportsChanges(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/existing.go")
	if err := os.MkdirAll(filepath.Join(root, "node_modules"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	w, err := NewWatcher(root, nil, nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	w.debounceTime = 50 * time.Millisecond

	changes := make(chan []string, 4)
	w.OnChange(func(paths []string) { changes <- paths })
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	writeFile(t, root, "src/new.go")
	writeFile(t, root, ".hidden")

	select {
	case paths := <-changes:
		found := false
		for _, p := range paths {
			if p == "src/new.go" {
				found = true
			}
			if p == ".hidden" {
				t.Errorf("hidden file should be ignored: %v", paths)
			}
		}
		if !found {
			t.Errorf("expected src/new.go in %v", paths)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change notification")
	}
}
