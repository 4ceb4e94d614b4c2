package worker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// templatesDir is the top-level storage directory holding every store's theme
const templatesDir = "templates"

// ChangeHandler reacts to an edited theme file
type ChangeHandler interface {
	FileChanged(ctx context.Context, storeID, filePath string)
}

// KeyResolver maps a filesystem path to its object-storage key
type KeyResolver interface {
	KeyForPath(p string) (string, bool)
}

// ThemeWatcher watches the on-disk theme store and invalidates a store's
// caches when one of its files changes. Bursts of events for the same store
// are coalesced.
type ThemeWatcher struct {
	root     string
	keys     KeyResolver
	handler  ChangeHandler
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string][]string
	timers  map[string]*time.Timer
}

// NewThemeWatcher creates a watcher over root, the directory the file
// store keeps objects in
func NewThemeWatcher(root string, keys KeyResolver, handler ChangeHandler, logger *slog.Logger) *ThemeWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &ThemeWatcher{
		root:     root,
		keys:     keys,
		handler:  handler,
		debounce: 200 * time.Millisecond,
		logger:   logger,
		pending:  make(map[string][]string),
		timers:   make(map[string]*time.Timer),
	}
}

// Start watches until ctx is cancelled. It returns once the watch is
// established; events are handled in the background.
func (w *ThemeWatcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	dir := filepath.Join(w.root, templatesDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	if err := w.addTree(watcher, dir); err != nil {
		_ = watcher.Close()
		return err
	}

	w.logger.Info("theme watcher started", slog.String("root", dir))
	go w.loop(ctx, watcher)
	return nil
}

// addTree watches dir and every directory below it; fsnotify is not recursive
func (w *ThemeWatcher) addTree(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := watcher.Add(p); err != nil {
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}
		return nil
	})
}

func (w *ThemeWatcher) loop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()
	for {
		select {
		case <-ctx.Done():
			w.stopTimers()
			w.logger.Info("theme watcher stopped")
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addTree(watcher, ev.Name); err != nil {
						w.logger.Warn("failed to watch new directory", slog.String("error", err.Error()))
					}
					continue
				}
			}
			if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
				continue
			}
			w.handle(ctx, ev.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("theme watcher error", slog.String("error", err.Error()))
		}
	}
}

// handle queues the file for its store's next flush
func (w *ThemeWatcher) handle(ctx context.Context, name string) {
	key, ok := w.keys.KeyForPath(name)
	if !ok {
		return
	}
	storeID, filePath, ok := splitTemplateKey(key)
	if !ok {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[storeID] = append(w.pending[storeID], filePath)
	if t, ok := w.timers[storeID]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[storeID] = time.AfterFunc(w.debounce, func() { w.flush(ctx, storeID) })
}

func (w *ThemeWatcher) flush(ctx context.Context, storeID string) {
	w.mu.Lock()
	paths := w.pending[storeID]
	delete(w.pending, storeID)
	delete(w.timers, storeID)
	w.mu.Unlock()

	if len(paths) == 0 || ctx.Err() != nil {
		return
	}
	w.logger.Info("theme files changed",
		slog.String("store_id", storeID),
		slog.Int("files", len(paths)),
	)
	w.handler.FileChanged(ctx, storeID, paths[len(paths)-1])
}

func (w *ThemeWatcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, t := range w.timers {
		t.Stop()
		delete(w.timers, id)
	}
}

// splitTemplateKey turns templates/{storeID}/{path} into its parts
func splitTemplateKey(key string) (string, string, bool) {
	rest, ok := strings.CutPrefix(key, templatesDir+"/")
	if !ok {
		return "", "", false
	}
	storeID, filePath, ok := strings.Cut(rest, "/")
	if !ok || storeID == "" || filePath == "" {
		return "", "", false
	}
	return storeID, filePath, true
}
