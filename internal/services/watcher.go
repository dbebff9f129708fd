package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jmagar/editcount/internal/models"
	"go.uber.org/zap"
)

// ScanStarter starts a background scan
type ScanStarter interface {
	StartScan(trigger string) (*models.Job, bool)
}

// WatchService starts a scan once the watched trees have been quiet for Frequency
type WatchService struct {
	Dirs      []string
	Frequency time.Duration
	Scans     ScanStarter
	Logger    *zap.Logger

	mu        sync.Mutex
	isRunning bool
	watcher   *fsnotify.Watcher
	cancel    context.CancelFunc
	done      chan struct{}

	// roots are the cleaned Dirs. Missing roots stay in pending while one of
	// their ancestors is watched; only the run goroutine touches them after Start.
	roots   []string
	pending map[string]bool
}

func NewWatchService(dirs []string, frequency time.Duration, scans ScanStarter, logger *zap.Logger) *WatchService {
	if logger == nil {
		logger = zap.L()
	}

	return &WatchService{
		Dirs:      dirs,
		Frequency: frequency,
		Scans:     scans,
		Logger:    logger,
	}
}

func (w *WatchService) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isRunning {
		return fmt.Errorf("watcher is already running")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	w.roots = make([]string, 0, len(w.Dirs))
	w.pending = make(map[string]bool)
	for _, dir := range w.Dirs {
		root := filepath.Clean(dir)
		w.roots = append(w.roots, root)
		if err := w.watchRoot(watcher, root); err != nil {
			watcher.Close()
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	w.watcher = watcher
	w.cancel = cancel
	w.done = make(chan struct{})
	w.isRunning = true

	go w.run(ctx, watcher, w.done)

	w.Logger.Info("Watcher started",
		zap.Strings("dirs", w.Dirs),
		zap.Duration("frequency", w.Frequency))
	return nil
}

func (w *WatchService) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.isRunning {
		return fmt.Errorf("watcher is not running")
	}

	w.isRunning = false
	w.cancel()
	<-w.done
	err := w.watcher.Close()

	w.Logger.Info("Watcher stopped")
	return err
}

func (w *WatchService) run(ctx context.Context, watcher *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(w.Frequency)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op == fsnotify.Chmod {
				continue
			}
			if w.handle(watcher, event) {
				w.Logger.Debug("Change detected", zap.String("path", event.Name), zap.String("op", event.Op.String()))
				timer.Reset(w.Frequency)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.Logger.Warn("Watcher error, rescanning", zap.Error(err))
			timer.Reset(w.Frequency)

		case <-timer.C:
			job, started := w.Scans.StartScan(models.TriggerWatcher)
			if started {
				w.Logger.Info("Scan triggered by file changes", zap.String("job_id", job.ID))
			}
		}
	}
}

// handle updates the watch set for event and reports whether it touched a
// watched tree.
func (w *WatchService) handle(watcher *fsnotify.Watcher, event fsnotify.Event) bool {
	changed := false

	if event.Has(fsnotify.Create) {
		for root := range w.pending {
			if !within(root, event.Name) {
				continue
			}
			if err := w.watchRoot(watcher, root); err != nil {
				w.Logger.Warn("Failed to watch directory", zap.String("path", root), zap.Error(err))
				continue
			}
			if !w.pending[root] {
				w.Logger.Info("Watch directory appeared", zap.String("path", root))
				changed = true
			}
		}
	}

	root, ok := w.rootOf(event.Name)
	if !ok {
		return changed
	}

	switch {
	case event.Has(fsnotify.Create):
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(watcher, event.Name); err != nil && !errors.Is(err, fs.ErrNotExist) {
				w.Logger.Warn("Failed to watch new directory", zap.String("path", event.Name), zap.Error(err))
			}
		}
	case event.Name == root && (event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)):
		if err := w.watchRoot(watcher, root); err != nil {
			w.Logger.Warn("Failed to watch directory", zap.String("path", root), zap.Error(err))
		}
	}
	return true
}

// watchRoot watches root recursively. A missing root is marked pending and its
// nearest existing ancestor is watched, so the root is picked up once created.
func (w *WatchService) watchRoot(watcher *fsnotify.Watcher, root string) error {
	err := w.addRecursive(watcher, root)
	if !errors.Is(err, fs.ErrNotExist) {
		delete(w.pending, root)
		return err
	}

	ancestor := existingAncestor(root)
	if err := watcher.Add(ancestor); err != nil {
		return fmt.Errorf("failed to watch %s: %w", ancestor, err)
	}
	w.pending[root] = true

	// Created between the walk and the ancestor watch
	if info, err := os.Stat(root); err == nil && info.IsDir() {
		return w.watchRoot(watcher, root)
	}

	w.Logger.Warn("Watch directory does not exist yet",
		zap.String("path", root),
		zap.String("watching", ancestor))
	return nil
}

// addRecursive watches root and every directory below it
func (w *WatchService) addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			w.Logger.Warn("Skipping unreadable path", zap.String("path", path), zap.Error(err))
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

// rootOf returns the watched root containing path
func (w *WatchService) rootOf(path string) (string, bool) {
	for _, root := range w.roots {
		if !w.pending[root] && within(path, root) {
			return root, true
		}
	}
	return "", false
}

// within reports whether path is dir or lies below it
func within(path, dir string) bool {
	if path == dir {
		return true
	}
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

func existingAncestor(path string) string {
	for {
		parent := filepath.Dir(path)
		if parent == path {
			return path
		}
		path = parent
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			return path
		}
	}
}
