// Package watcher reports changes to individual files using fsnotify. Each
// file is watched through its parent directory so writes that replace the
// file with a rename are still seen. Bursts are coalesced by a debouncer.
package watcher

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrClosed is returned when operations are called on a closed Watcher.
var ErrClosed = errors.New("watcher: watcher is closed")

// DefaultPollInterval is used when falling back to polling.
const DefaultPollInterval = time.Second

// EventType represents the type of file system event.
type EventType uint32

const (
	Create EventType = 1 << iota
	Write
	Remove
	Rename
	Chmod
	All = Create | Write | Remove | Rename | Chmod
)

// Event is a change to one watched file.
type Event struct {
	Path string
	Type EventType
}

func eventTypeFromFsnotify(op fsnotify.Op) EventType {
	var t EventType
	if op.Has(fsnotify.Create) {
		t |= Create
	}
	if op.Has(fsnotify.Write) {
		t |= Write
	}
	if op.Has(fsnotify.Remove) {
		t |= Remove
	}
	if op.Has(fsnotify.Rename) {
		t |= Rename
	}
	if op.Has(fsnotify.Chmod) {
		t |= Chmod
	}
	return t
}

// Handler is called with the events coalesced during one debounce window.
type Handler func(events []Event)

// ErrorHandler is called when a watch error occurs.
type ErrorHandler func(err error)

// fileMeta stores file metadata for poll-based change detection.
type fileMeta struct {
	exists  bool
	modTime time.Time
	size    int64
}

// Watcher watches a set of files.
type Watcher struct {
	fsWatcher    *fsnotify.Watcher
	debouncer    *Debouncer
	handler      Handler
	errorHandler ErrorHandler
	eventFilter  EventType

	pollMode     bool
	forcePoll    bool
	pollInterval time.Duration
	closeCh      chan struct{}

	mu            sync.Mutex
	files         map[string]fileMeta
	dirs          map[string]bool
	pendingEvents []Event
	closed        bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounceDuration sets the debounce duration for coalescing events.
func WithDebounceDuration(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debouncer = NewDebouncer(d)
		}
	}
}

// WithEventFilter restricts delivered events to the given types.
func WithEventFilter(filter EventType) Option {
	return func(w *Watcher) {
		w.eventFilter = filter
	}
}

// WithErrorHandler sets the handler for watch errors.
func WithErrorHandler(handler ErrorHandler) Option {
	return func(w *Watcher) {
		w.errorHandler = handler
	}
}

// WithPollInterval sets the polling interval used without fsnotify.
func WithPollInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithPolling forces polling even when fsnotify is available.
func WithPolling(force bool) Option {
	return func(w *Watcher) {
		w.forcePoll = force
	}
}

// New creates a new Watcher. If fsnotify cannot be initialised the watcher
// polls instead.
func New(handler Handler, opts ...Option) (*Watcher, error) {
	w := &Watcher{
		debouncer:    NewDebouncer(DefaultDebounceDuration),
		handler:      handler,
		eventFilter:  All,
		pollInterval: DefaultPollInterval,
		files:        make(map[string]fileMeta),
		dirs:         make(map[string]bool),
	}
	for _, opt := range opts {
		opt(w)
	}

	if !w.forcePoll {
		fsWatcher, err := fsnotify.NewWatcher()
		if err == nil {
			w.fsWatcher = fsWatcher
		} else {
			if w.errorHandler != nil {
				w.errorHandler(fmt.Errorf("fsnotify unavailable, using polling fallback: %w", err))
			}
			w.pollMode = true
		}
	} else {
		w.pollMode = true
	}

	if w.pollMode {
		w.closeCh = make(chan struct{})
		go w.runPoll()
	} else {
		go w.run()
	}
	return w, nil
}

// Add watches a file. The file need not exist yet, but its directory must.
func (w *Watcher) Add(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	absPath = filepath.Clean(absPath)
	if _, ok := w.files[absPath]; ok {
		return nil
	}

	dir := filepath.Dir(absPath)
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("watcher: %s is not a directory", dir)
	}

	if !w.pollMode && !w.dirs[dir] {
		if err := w.fsWatcher.Add(dir); err != nil {
			return err
		}
	}
	w.dirs[dir] = true
	w.files[absPath] = statMeta(absPath)
	return nil
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	w.debouncer.Cancel()
	if w.pollMode {
		close(w.closeCh)
		return nil
	}
	return w.fsWatcher.Close()
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			if w.errorHandler != nil {
				w.errorHandler(err)
			}
		}
	}
}

func (w *Watcher) runPoll() {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.pollOnce()
		case <-w.closeCh:
			return
		}
	}
}

func (w *Watcher) handleEvent(fsEvent fsnotify.Event) {
	path := filepath.Clean(fsEvent.Name)

	w.mu.Lock()
	_, watched := w.files[path]
	w.mu.Unlock()
	if !watched {
		return
	}

	eventType := eventTypeFromFsnotify(fsEvent.Op)
	if eventType&w.eventFilter == 0 {
		return
	}
	w.enqueue(Event{Path: path, Type: eventType})
}

// pollOnce compares each watched file against its last snapshot.
func (w *Watcher) pollOnce() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.files))
	for p := range w.files {
		paths = append(paths, p)
	}
	w.mu.Unlock()

	for _, p := range paths {
		now := statMeta(p)

		w.mu.Lock()
		before, ok := w.files[p]
		if ok {
			w.files[p] = now
		}
		w.mu.Unlock()
		if !ok {
			continue
		}

		var t EventType
		switch {
		case !before.exists && now.exists:
			t = Create
		case before.exists && !now.exists:
			t = Remove
		case now.exists && (!now.modTime.Equal(before.modTime) || now.size != before.size):
			t = Write
		}
		if t != 0 && t&w.eventFilter != 0 {
			w.enqueue(Event{Path: p, Type: t})
		}
	}
}

func (w *Watcher) enqueue(event Event) {
	w.mu.Lock()
	w.pendingEvents = append(w.pendingEvents, event)
	w.mu.Unlock()

	w.debouncer.Trigger(func() {
		w.mu.Lock()
		if w.closed {
			w.mu.Unlock()
			return
		}
		toDeliver := w.pendingEvents
		w.pendingEvents = nil
		w.mu.Unlock()

		if len(toDeliver) > 0 && w.handler != nil {
			w.handler(toDeliver)
		}
	})
}

func statMeta(path string) fileMeta {
	info, err := os.Stat(path)
	if err != nil {
		return fileMeta{}
	}
	return fileMeta{exists: true, modTime: info.ModTime(), size: info.Size()}
}
