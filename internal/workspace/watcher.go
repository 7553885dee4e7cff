package workspace

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reports changes below a scan root, using the scanner's skip rules.
type Watcher struct {
	root          string
	scanner       *Scanner
	watcher       *fsnotify.Watcher
	onChange      func([]string) // relative, '/'-separated paths
	debounceTime  time.Duration
	mu            sync.Mutex
	pendingEvents map[string]bool
	logger        *zap.Logger
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// NewWatcher creates a watcher for root. Call OnChange then Start.
func NewWatcher(root string, scanner *Scanner, logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if scanner == nil {
		scanner = NewScanner(ScanOptions{}, logger)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		root:          root,
		scanner:       scanner,
		watcher:       fw,
		debounceTime:  500 * time.Millisecond,
		pendingEvents: make(map[string]bool),
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

// OnChange sets the callback for batched changes.
func (w *Watcher) OnChange(callback func([]string)) {
	w.onChange = callback
}

// Start adds every non-skipped directory under the root and begins processing events.
func (w *Watcher) Start() error {
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.scanner.Skipped(d.Name(), true) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("failed to watch directory", zap.String("dir", path), zap.Error(err))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk %s: %w", w.root, err)
	}

	w.wg.Add(2)
	go w.eventLoop()
	go w.debounceLoop()
	return nil
}

// Stop stops the watcher and waits for its goroutines.
func (w *Watcher) Stop() error {
	w.cancel()
	w.wg.Wait()
	return w.watcher.Close()
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	info, statErr := os.Stat(event.Name)
	isDir := statErr == nil && info.IsDir()
	if w.scanner.Skipped(filepath.Base(event.Name), isDir) {
		return
	}

	if event.Has(fsnotify.Create) && isDir {
		if err := w.watcher.Add(event.Name); err != nil {
			w.logger.Warn("failed to watch new directory", zap.String("dir", event.Name), zap.Error(err))
		}
	}

	if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		w.mu.Lock()
		w.pendingEvents[rel] = true
		w.mu.Unlock()
	}
}

func (w *Watcher) debounceLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.debounceTime)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush()
		}
	}
}

func (w *Watcher) flush() {
	w.mu.Lock()
	if len(w.pendingEvents) == 0 {
		w.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pendingEvents))
	for p := range w.pendingEvents {
		paths = append(paths, p)
	}
	w.pendingEvents = make(map[string]bool)
	w.mu.Unlock()

	sort.Strings(paths)
	if w.onChange != nil {
		w.logger.Debug("workspace changed", zap.String("root", w.root), zap.Int("paths", len(paths)))
		w.onChange(paths)
	}
}
