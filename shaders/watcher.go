package shaders

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"

	"go.viam.com/augment/logging"
	"go.viam.com/augment/utils"
)

// DefaultDebounce is the quiet period after the last file event before a change is delivered.
const DefaultDebounce = 50 * time.Millisecond

// WatchEvent is a coalesced change to one of the watched files. When several events arrive
// within the debounce period only the last is delivered.
type WatchEvent struct {
	Path string
	Op   fsnotify.Op
}

// Watcher reports changes to a fixed set of files. The parent directories are watched so that
// editors which save by renaming over the original are still seen.
type Watcher struct {
	paths   map[string]struct{}
	dirs    []string
	fsw     *fsnotify.Watcher
	events  chan WatchEvent
	logger  logging.Logger
	workers utils.StoppableWorkers

	mu        sync.Mutex
	latest    WatchEvent
	debounced func(func())
}

// NewWatcher starts watching the given files. An empty quiet period uses DefaultDebounce.
func NewWatcher(paths []string, quiet time.Duration, logger logging.Logger) (*Watcher, error) {
	if quiet <= 0 {
		quiet = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "creating file watcher")
	}
	w := &Watcher{
		paths:     map[string]struct{}{},
		fsw:       fsw,
		events:    make(chan WatchEvent, 1),
		logger:    logger,
		debounced: debounce.New(quiet),
	}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, multierr.Combine(errors.Wrapf(err, "resolving %q", p), fsw.Close())
		}
		w.paths[abs] = struct{}{}
	}
	w.dirs = lo.Uniq(lo.Map(lo.Keys(w.paths), func(p string, _ int) string { return filepath.Dir(p) }))
	if err := w.Rewatch(); err != nil {
		return nil, multierr.Combine(err, fsw.Close())
	}
	w.workers = utils.NewStoppableWorkers(w.run)
	return w, nil
}

// Events returns the channel of coalesced changes. It holds at most one pending event.
func (w *Watcher) Events() <-chan WatchEvent {
	return w.events
}

// Rewatch re-adds the watches. It is called after each handled change since a watch can be lost
// when a directory is replaced.
func (w *Watcher) Rewatch() error {
	for _, dir := range w.dirs {
		if err := w.fsw.Add(dir); err != nil {
			return errors.Wrapf(err, "watching %q", dir)
		}
	}
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warnw("file watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op == fsnotify.Chmod {
		return
	}
	path, err := filepath.Abs(ev.Name)
	if err != nil {
		return
	}
	if _, ok := w.paths[path]; !ok {
		return
	}
	w.logger.Debugw("program source changed", "path", path, "op", ev.Op.String())
	w.mu.Lock()
	w.latest = WatchEvent{Path: path, Op: ev.Op}
	w.mu.Unlock()
	w.debounced(w.deliver)
}

// deliver hands the latest event to the consumer without blocking. An event that is already
// pending is replaced.
func (w *Watcher) deliver() {
	w.mu.Lock()
	ev := w.latest
	w.mu.Unlock()
	for {
		select {
		case w.events <- ev:
			return
		default:
		}
		select {
		case <-w.events:
		default:
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	w.workers.Stop()
	return err
}
