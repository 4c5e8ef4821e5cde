// Package watch reports saved source files in batches, for reload on save.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bazelment/yoloswe/flx/logging"
)

// DefaultDebounce is the quiet period before a batch is emitted.
const DefaultDebounce = 300 * time.Millisecond

// Options configures a Watcher.
type Options struct {
	Logger     *slog.Logger
	Extensions []string // file suffixes that count as changes; default .dart
	Debounce   time.Duration
}

// Watcher watches directory trees and emits the set of changed files once
// writes have been quiet for the debounce period.
type Watcher struct {
	fs       *fsnotify.Watcher
	changes  chan []string
	logger   *slog.Logger
	exts     []string
	debounce time.Duration
}

// New watches dirs and every directory below them. Hidden directories and
// build output are skipped.
func New(dirs []string, opts Options) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fs:       fw,
		changes:  make(chan []string, 1),
		logger:   logging.OrDiscard(opts.Logger).With("component", "watch"),
		exts:     opts.Extensions,
		debounce: opts.Debounce,
	}
	if len(w.exts) == 0 {
		w.exts = []string{".dart"}
	}
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}
	for _, dir := range dirs {
		if err := w.addTree(dir); err != nil {
			fw.Close()
			return nil, err
		}
	}
	return w, nil
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "build"
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		return w.fs.Add(path)
	})
}

// Changes delivers batches of changed paths, sorted. It is closed when Run
// returns.
func (w *Watcher) Changes() <-chan []string {
	return w.changes
}

// Run processes file events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.changes)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()
	pending := make(map[string]struct{})

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if w.handle(ev) {
				pending[ev.Name] = struct{}{}
				timer.Reset(w.debounce)
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watch error", "error", err)
		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			batch := make([]string, 0, len(pending))
			for p := range pending {
				batch = append(batch, p)
			}
			sort.Strings(batch)
			clear(pending)
			w.logger.Debug("files changed", "count", len(batch))
			select {
			case w.changes <- batch:
			case <-ctx.Done():
				return
			}
		}
	}
}

// handle reports whether ev counts as a source change. New directories are
// added to the watch.
func (w *Watcher) handle(ev fsnotify.Event) bool {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if !skipDir(filepath.Base(ev.Name)) {
				if err := w.addTree(ev.Name); err != nil {
					w.logger.Debug("failed to watch new directory", "path", ev.Name, "error", err)
				}
			}
			return false
		}
	}
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
		return false
	}
	return slices.ContainsFunc(w.exts, func(ext string) bool {
		return strings.HasSuffix(ev.Name, ext)
	})
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fs.Close()
}
