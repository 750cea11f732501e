// Package watch keeps the set of monitored directories and emits one
// dispatch per newly created file.
package watch

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/maidastach/guardian/internal/failure"
)

// ErrNotWatched is returned by Stop for a path with no active watcher.
var ErrNotWatched = fmt.Errorf("no FileWatcher for path: %w", failure.ErrNotFound)

// Dispatcher receives newly created files. Dispatch must not block; the
// stability detector starts an independent check per call.
type Dispatcher interface {
	Dispatch(path string)
}

// fsWatcher is the subset of *fsnotify.Watcher the registry uses.
type fsWatcher interface {
	Add(name string) error
	Close() error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
}

type fsnotifyWatcher struct {
	w *fsnotify.Watcher
}

func (f *fsnotifyWatcher) Add(name string) error          { return f.w.Add(name) }
func (f *fsnotifyWatcher) Close() error                   { return f.w.Close() }
func (f *fsnotifyWatcher) Events() <-chan fsnotify.Event { return f.w.Events }
func (f *fsnotifyWatcher) Errors() <-chan error           { return f.w.Errors }

func newFsnotifyWatcher() (fsWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &fsnotifyWatcher{w: w}, nil
}

type entry struct {
	path    string
	watcher fsWatcher
	done    chan struct{}
}

// Registry tracks active directory watchers, at most one per path.
type Registry struct {
	defaultPath string
	dispatcher  Dispatcher
	logger      *slog.Logger
	newWatcher  func() (fsWatcher, error)

	mu      sync.Mutex
	entries []*entry
}

// NewRegistry creates a Registry. defaultPath is used when Watch or Stop is
// called with an empty path.
func NewRegistry(defaultPath string, dispatcher Dispatcher, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		defaultPath: defaultPath,
		dispatcher:  dispatcher,
		logger:      logger,
		newWatcher:  newFsnotifyWatcher,
	}
}

// Watch starts watching path. Watching an already watched path succeeds and
// leaves the set unchanged. The returned summary lists the active set.
func (r *Registry) Watch(path string) (string, error) {
	abs, err := r.resolve(path)
	if err != nil {
		return r.Summary(), err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexLocked(abs) >= 0 {
		r.logger.Debug("path already watched", slog.String("path", abs))
		return r.summaryLocked(), nil
	}

	info, err := os.Stat(abs)
	if err != nil {
		return r.summaryLocked(), fmt.Errorf("watch: %s: %w", abs, err)
	}

	if !info.IsDir() {
		return r.summaryLocked(), fmt.Errorf("watch: %s is not a directory", abs)
	}

	w, err := r.newWatcher()
	if err != nil {
		return r.summaryLocked(), fmt.Errorf("watch: creating watcher: %w", err)
	}

	if err := w.Add(abs); err != nil {
		w.Close()
		return r.summaryLocked(), fmt.Errorf("watch: adding %s: %w", abs, err)
	}

	e := &entry{path: abs, watcher: w, done: make(chan struct{})}
	r.entries = append(r.entries, e)

	go r.loop(e)

	r.logger.Info("FileWatcher started", slog.String("path", abs))

	return r.summaryLocked(), nil
}

// Stop disposes of the watcher for path. It returns ErrNotWatched when no
// watcher matches.
func (r *Registry) Stop(path string) (string, error) {
	abs, err := r.resolve(path)
	if err != nil {
		return r.Summary(), err
	}

	r.mu.Lock()

	i := r.indexLocked(abs)
	if i < 0 {
		summary := r.summaryLocked()
		r.mu.Unlock()

		return summary, fmt.Errorf("watch: %s: %w", abs, ErrNotWatched)
	}

	e := r.entries[i]
	r.entries = slices.Delete(r.entries, i, i+1)
	summary := r.summaryLocked()
	r.mu.Unlock()

	r.closeEntry(e)
	r.logger.Info("FileWatcher stopped", slog.String("path", abs))

	return summary, nil
}

// Paths returns the watched paths in the order they were added.
func (r *Registry) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	paths := make([]string, len(r.entries))
	for i, e := range r.entries {
		paths[i] = e.path
	}

	return paths
}

// Summary describes the active set for display.
func (r *Registry) Summary() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.summaryLocked()
}

// Close stops every watcher and waits for their event loops to finish.
func (r *Registry) Close() error {
	r.mu.Lock()
	entries := r.entries
	r.entries = nil
	r.mu.Unlock()

	var errs []error

	for _, e := range entries {
		if err := r.closeEntry(e); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (r *Registry) closeEntry(e *entry) error {
	err := e.watcher.Close()
	<-e.done

	if err != nil {
		return fmt.Errorf("watch: closing %s: %w", e.path, err)
	}

	return nil
}

func (r *Registry) loop(e *entry) {
	defer close(e.done)

	events := e.watcher.Events()
	errs := e.watcher.Errors()

	for events != nil || errs != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}

			r.handleEvent(e.path, ev)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}

			r.logger.Error("FileWatcher error",
				slog.String("path", e.path),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (r *Registry) handleEvent(dir string, ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) {
		return
	}

	info, err := os.Lstat(ev.Name)
	if err != nil || !info.Mode().IsRegular() {
		return
	}

	r.logger.Info("file created",
		slog.String("dir", dir),
		slog.String("path", ev.Name),
	)

	r.dispatcher.Dispatch(ev.Name)
}

func (r *Registry) resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		path = r.defaultPath
	}

	if path == "" {
		return "", errors.New("watch: no path given and no default configured")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("watch: resolving %s: %w", path, err)
	}

	return abs, nil
}

func (r *Registry) indexLocked(abs string) int {
	return slices.IndexFunc(r.entries, func(e *entry) bool { return e.path == abs })
}

func (r *Registry) summaryLocked() string {
	if len(r.entries) == 0 {
		return "No active FileWatchers."
	}

	paths := make([]string, len(r.entries))
	for i, e := range r.entries {
		paths[i] = e.path
	}

	return "FileWatchers: " + strings.Join(paths, ", ")
}
