// Package watch implements the File Watcher (C7): debounced directory/file
// change notifications with per-path re-arm semantics, independent of any
// presentation layer.
package watch

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Debounce is the delay after the last write event before an Event fires.
// 100ms coalesces rapid successive writes (tool call round-trips) into one
// notification without feeling laggy to a live-tailing reader.
const Debounce = 100 * time.Millisecond

// EventKind discriminates what changed.
type EventKind int

const (
	FileChanged EventKind = iota
	PathCreated
	PathRemoved
)

// Event reports one debounced change.
type Event struct {
	Path string
	Kind EventKind
}

// Watcher wraps fsnotify with per-path debounce timers and re-arm: some
// platforms and editors replace a file via rename-on-write, which drops the
// underlying inotify watch on that inode. After each debounced fire the
// watch is re-added so replaced files keep being observed.
type Watcher struct {
	fs *fsnotify.Watcher

	mu      sync.Mutex
	timers  map[string]*time.Timer
	watched map[string]bool

	events chan Event
	errs   chan error
	done   chan struct{}
	once   sync.Once
}

// New creates a Watcher. Call Close when done.
func New() (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fs:      fs,
		timers:  make(map[string]*time.Timer),
		watched: make(map[string]bool),
		events:  make(chan Event, 8),
		errs:    make(chan error, 1),
		done:    make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Add starts watching path (a file or directory).
func (w *Watcher) Add(path string) error {
	if err := w.fs.Add(path); err != nil {
		return err
	}
	w.mu.Lock()
	w.watched[path] = true
	w.mu.Unlock()
	return nil
}

// Remove stops watching path and cancels any pending debounce timer for it.
func (w *Watcher) Remove(path string) error {
	w.mu.Lock()
	delete(w.watched, path)
	if t, ok := w.timers[path]; ok {
		t.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()
	return w.fs.Remove(path)
}

// Events returns the debounced event stream.
func (w *Watcher) Events() <-chan Event { return w.events }

// Errors returns the underlying fsnotify error stream.
func (w *Watcher) Errors() <-chan error { return w.errs }

// Close stops the watcher and releases all resources.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.fs.Close()
		w.mu.Lock()
		for _, t := range w.timers {
			t.Stop()
		}
		w.mu.Unlock()
	})
	return err
}

func (w *Watcher) run() {
	defer close(w.events)
	defer close(w.errs)

	for {
		select {
		case <-w.done:
			return

		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handleRaw(ev)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			select {
			case w.errs <- err:
			default:
			}
		}
	}
}

func (w *Watcher) handleRaw(ev fsnotify.Event) {
	var kind EventKind
	switch {
	case ev.Has(fsnotify.Create):
		kind = PathCreated
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		kind = PathRemoved
	case ev.Has(fsnotify.Write):
		kind = FileChanged
	default:
		return
	}

	w.debounce(ev.Name, kind)
}

// debounce arms or resets a per-path timer. On fire, it emits the event and
// re-adds the watch (the re-arm rule), since editors performing atomic
// rename-on-save replace the inode fsnotify was watching.
func (w *Watcher) debounce(path string, kind EventKind) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(Debounce, func() {
		w.emit(Event{Path: path, Kind: kind})
		if kind != PathRemoved {
			w.rearm(path)
		}
	})
}

func (w *Watcher) rearm(path string) {
	w.mu.Lock()
	watched := w.watched[path]
	w.mu.Unlock()
	if watched {
		_ = w.fs.Add(path)
	}
}

func (w *Watcher) emit(ev Event) {
	select {
	case w.events <- ev:
	case <-w.done:
	}
}
