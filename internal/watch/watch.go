// Package watch turns a drop folder into a stream of settled report files.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultSettle is how long a file must stay unchanged before it is handled.
const DefaultSettle = 2 * time.Second

// HandleFunc processes one settled file. Errors are logged; watching goes on.
type HandleFunc func(ctx context.Context, path string) error

// Watcher calls its HandleFunc, one file at a time, for every file in a
// directory matching a glob once writes to it have stopped for the settle period.
type Watcher struct {
	dir     string
	pattern string
	settle  time.Duration
	handle  HandleFunc
	log     *slog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// New constructs a Watcher. pattern is matched against base names, e.g. "*.xml".
func New(dir, pattern string, settle time.Duration, handle HandleFunc, log *slog.Logger) (*Watcher, error) {
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("pattern %q: %w", pattern, err)
	}
	if settle <= 0 {
		settle = DefaultSettle
	}
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{dir: dir, pattern: pattern, settle: settle, handle: handle, log: log, pending: map[string]*time.Timer{}}, nil
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.log.Info("watching for reports", "dir", w.dir, "pattern", w.pattern)

	ready := make(chan string, 64)
	done := make(chan struct{})
	defer w.stopTimers()
	defer close(done)
	// a started handler runs to completion
	hctx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.observe(ev, ready, done)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", "error", err)
		case path := <-ready:
			if err := w.handle(hctx, path); err != nil {
				w.log.Error("report not synchronized", "file", path, "error", err)
			}
		}
	}
}

func (w *Watcher) observe(ev fsnotify.Event, ready chan<- string, done <-chan struct{}) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	if ok, _ := filepath.Match(w.pattern, filepath.Base(ev.Name)); !ok {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[ev.Name]; ok {
		t.Reset(w.settle)
		return
	}
	path := ev.Name
	w.pending[path] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		deliver(path, ready, done)
	})
}

// deliver hands path to Run, giving up once Run has returned.
func deliver(path string, ready chan<- string, done <-chan struct{}) bool {
	select {
	case ready <- path:
		return true
	case <-done:
		return false
	}
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for p, t := range w.pending {
		t.Stop()
		delete(w.pending, p)
	}
}
