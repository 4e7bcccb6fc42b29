package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

type Event struct {
	Path string
	Time time.Time
}

type Options struct {
	Path          string        // file to watch
	Debounce      time.Duration // collapse bursts within this window (0 = no debounce)
	Stabilization time.Duration // require file size to be stable for this duration before emitting (0 = no stabilization)
	PollInterval  time.Duration // interval used for stabilization checks
}

// Watcher watches one file for writes, replacements and renames onto it.
// The parent directory is watched so editors that save via rename are seen.
type Watcher struct {
	opts Options

	mu      sync.Mutex
	w       *fsnotify.Watcher
	dir     string
	name    string
	cancel  context.CancelFunc
	started bool
	closed  bool
}

// New creates a new Watcher for the given options.
func New(opts Options) (*Watcher, error) {
	if opts.Path == "" {
		return nil, errors.New("watch path is empty")
	}
	abs, err := filepath.Abs(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve watch path: %w", err)
	}
	opts.Path = abs
	if opts.PollInterval <= 0 {
		opts.PollInterval = 100 * time.Millisecond
	}
	return &Watcher{
		opts: opts,
		dir:  filepath.Dir(abs),
		name: filepath.Base(abs),
	}, nil
}

// Start begins watching and returns a channel of change events.
// Cancel the provided context to stop the watcher.
func (w *Watcher) Start(ctx context.Context) (<-chan Event, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return nil, errors.New("watcher already started")
	}
	if w.closed {
		return nil, errors.New("watcher closed")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}
	if err := fsw.Add(w.dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("add watch: %w", err)
	}

	w.w = fsw
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.started = true

	out := make(chan Event, 8)

	go w.run(ctx, out)

	return out, nil
}

func (w *Watcher) run(ctx context.Context, out chan<- Event) {
	defer func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		_ = w.w.Close()
		close(out)
		w.closed = true
	}()

	// zero when nothing is waiting for the debounce window
	var pending time.Time

	var debounceTicker *time.Ticker
	if w.opts.Debounce > 0 {
		debounceTicker = time.NewTicker(w.opts.Debounce)
		defer debounceTicker.Stop()
	}

	emit := func() {
		if !w.stable(ctx) {
			return
		}
		select {
		case out <- Event{Path: w.opts.Path, Time: time.Now()}:
		case <-ctx.Done():
		}
	}

	flush := func() {
		if pending.IsZero() {
			return
		}
		if w.opts.Debounce > 0 && time.Since(pending) < w.opts.Debounce {
			return
		}
		pending = time.Time{}
		emit()
	}

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.w.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != w.name {
				continue
			}
			if !(ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Rename)) {
				continue
			}
			if w.opts.Debounce > 0 {
				pending = time.Now()
			} else {
				emit()
			}

		case _, ok := <-w.w.Errors:
			if !ok {
				continue
			}

		case <-func() <-chan time.Time {
			if debounceTicker != nil {
				return debounceTicker.C
			}
			return nil
		}():
			flush()
		}
	}
}

// stable waits until the file size stops changing for the stabilization
// window. It reports false when the file is gone or ctx ends.
func (w *Watcher) stable(ctx context.Context) bool {
	if w.opts.Stabilization <= 0 {
		_, err := os.Stat(w.opts.Path)
		return err == nil
	}
	lastSize := int64(-1)
	lastChange := time.Now()
	deadline := time.Now().Add(30 * time.Second)
	for {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		info, err := os.Stat(w.opts.Path)
		if err != nil || !info.Mode().IsRegular() {
			return false
		}
		now := time.Now()
		if info.Size() != lastSize {
			lastSize = info.Size()
			lastChange = now
		}
		if now.Sub(lastChange) >= w.opts.Stabilization || now.After(deadline) {
			return true
		}
		time.Sleep(w.opts.PollInterval)
	}
}

// Close stops the watcher if running.
func (w *Watcher) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
	}
}
