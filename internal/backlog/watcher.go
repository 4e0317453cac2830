package backlog

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

const debounceDelay = 100 * time.Millisecond

// Snapshot is a point-in-time view of the backlog file.
type Snapshot struct {
	Exists bool
	Counts Counts
	Next   *Task
	ReadAt time.Time
	Err    error
}

// Watcher publishes a Snapshot whenever the backlog file changes.
// It only reads the file.
type Watcher struct {
	store    *Store
	onChange func(Snapshot)
	delay    time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher creates a watcher over the store's file.
func NewWatcher(store *Store, onChange func(Snapshot)) *Watcher {
	return &Watcher{store: store, onChange: onChange, delay: debounceDelay}
}

// Run watches until ctx is done. An initial snapshot is published before
// any filesystem event arrives.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	abs, err := filepath.Abs(w.store.Path())
	if err != nil {
		return fmt.Errorf("resolving backlog path: %w", err)
	}
	// Watch the directory: the file is replaced by rename and may not exist yet.
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	w.publish(ctx)

	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			w.schedule(ctx)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Str("backlog_file", abs).Msg("backlog watcher error")
		}
	}
}

func (w *Watcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.delay, func() { w.publish(ctx) })
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *Watcher) publish(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	w.onChange(w.Snapshot(ctx))
}

// Snapshot reads the backlog once.
func (w *Watcher) Snapshot(ctx context.Context) Snapshot {
	doc, exists, err := w.store.Load(ctx)
	snap := Snapshot{Exists: exists, ReadAt: time.Now(), Err: err}
	if err == nil && exists {
		snap.Counts = Summarize(doc.Tasks)
		snap.Next = NextOpen(doc.Tasks)
	}
	return snap
}
