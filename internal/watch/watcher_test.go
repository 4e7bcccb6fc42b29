package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher_EmitsOnConfigChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "churnboard.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := New(Options{Path: path, Debounce: 50 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := w.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}

	// unrelated files in the same directory are ignored
	if err := os.WriteFile(filepath.Join(dir, "other.json"), []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}
	// a burst of writes collapses into one event
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte(`{"version":1}`), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case ev := <-events:
		if ev.Path != path {
			t.Fatalf("event path = %s, want %s", ev.Path, path)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no event received")
	}

	select {
	case ev := <-events:
		t.Fatalf("unexpected second event: %+v", ev)
	case <-time.After(300 * time.Millisecond):
	}

	w.Close()
	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("expected channel to close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcher_StartTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.json")
	w, err := New(Options{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if _, err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Start(ctx); err == nil {
		t.Fatal("expected error on second Start")
	}
}
