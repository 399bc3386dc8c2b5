package site

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// SiteBuilder is anything that can run a full build
type SiteBuilder interface {
	Build(ctx context.Context) (*Report, error)
}

// Watcher reruns the full build whenever a source file changes. Bursts of
// events are collapsed into one build, and builds never overlap.
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	builder  SiteBuilder
	dirs     []string
	ignore   string
	debounce time.Duration
	logger   *zap.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
	closed   sync.Once

	stats WatcherStats
}

// WatcherStats tracks rebuilds triggered by the watcher
type WatcherStats struct {
	Builds    int
	Failures  int
	LastError error
	LastEvent string
}

// NewWatcher creates a Watcher over the given source directories. Events
// under ignore (the output directory) never trigger a build.
func NewWatcher(builder SiteBuilder, dirs []string, ignore string, debounce time.Duration, logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if ignore != "" {
		if abs, err := filepath.Abs(ignore); err == nil {
			ignore = abs
		}
	}

	return &Watcher{
		watcher:  fw,
		builder:  builder,
		dirs:     dirs,
		ignore:   ignore,
		debounce: debounce,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start adds every directory below the source roots and begins watching.
// It does not block. A stopped Watcher cannot be started again.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addDirs(); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}

	go w.run(ctx)
	return nil
}

func (w *Watcher) addDirs() error {
	seen := make(map[string]struct{})
	for _, dir := range w.dirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return err
		}
		if _, dup := seen[abs]; dup {
			continue
		}
		seen[abs] = struct{}{}

		if _, err := os.Stat(abs); errors.Is(err, os.ErrNotExist) {
			w.logger.Warn("watch directory does not exist", zap.String("dir", abs))
			continue
		}
		if err := w.addTree(abs); err != nil {
			return err
		}
		w.logger.Debug("watching", zap.String("dir", abs))
	}
	return nil
}

// Stop stops the watcher and waits for an in-flight build to finish
func (w *Watcher) Stop() {
	w.mu.Lock()
	running := w.running
	w.running = false
	w.mu.Unlock()

	if running {
		close(w.stopCh)
		<-w.doneCh
	}

	w.closed.Do(func() {
		if err := w.watcher.Close(); err != nil {
			w.logger.Error("error closing watcher", zap.Error(err))
		}
	})
}

// Stats returns a snapshot of the watcher counters
func (w *Watcher) Stats() WatcherStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// addTree watches root and every directory below it; fsnotify itself is
// not recursive.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.ignored(path) {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

func (w *Watcher) ignored(path string) bool {
	return w.ignore != "" && within(w.ignore, path)
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.handleEvent(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", zap.Error(err))

		case <-fire:
			fire = nil
			w.rebuild(ctx)
		}
	}
}

// handleEvent reports whether the event should trigger a build
func (w *Watcher) handleEvent(event fsnotify.Event) bool {
	if w.ignored(event.Name) {
		return false
	}

	var eventType string
	switch {
	case event.Op&fsnotify.Create != 0:
		eventType = "create"
		// new directories need watching too
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.logger.Warn("failed to watch new directory", zap.String("dir", event.Name), zap.Error(err))
			}
		}
	case event.Op&fsnotify.Write != 0:
		eventType = "modify"
	case event.Op&fsnotify.Remove != 0:
		eventType = "delete"
	case event.Op&fsnotify.Rename != 0:
		eventType = "rename"
	default:
		return false
	}

	w.logger.Debug("source changed", zap.String("event", eventType), zap.String("path", event.Name))
	w.mu.Lock()
	w.stats.LastEvent = event.Name
	w.mu.Unlock()
	return true
}

func (w *Watcher) rebuild(ctx context.Context) {
	w.logger.Info("rebuilding")
	_, err := w.builder.Build(ctx)

	w.mu.Lock()
	w.stats.Builds++
	w.stats.LastError = err
	if err != nil {
		w.stats.Failures++
	}
	w.mu.Unlock()

	if err != nil {
		w.logger.Error("rebuild failed", zap.Error(err))
	}
}
