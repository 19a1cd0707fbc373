package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type event struct {
	op   string
	path string
}

type chanHandler struct {
	events chan event
}

func (h *chanHandler) OnCreate(_ context.Context, path string) { h.events <- event{"create", path} }
func (h *chanHandler) OnModify(_ context.Context, path string) { h.events <- event{"modify", path} }
func (h *chanHandler) OnDelete(_ context.Context, path string) { h.events <- event{"delete", path} }

func startWatcher(t *testing.T, depth int) (string, *chanHandler) {
	t.Helper()
	root := t.TempDir()
	h := &chanHandler{events: make(chan event, 64)}
	w := New(root, depth, h)

	ctx, cancel := context.WithCancel(context.Background())
	if err := w.Start(ctx); err != nil {
		cancel()
		t.Fatalf("Start: %v", err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return root, h
}

// expect waits for an event with op on path, skipping unrelated ones.
func expect(t *testing.T, h *chanHandler, op, path string) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e := <-h.events:
			if e.op == op && e.path == path {
				return
			}
		case <-timeout:
			t.Fatalf("no %s event for %s", op, path)
		}
	}
}

func expectNone(t *testing.T, h *chanHandler, path string) {
	t.Helper()
	timeout := time.After(200 * time.Millisecond)
	for {
		select {
		case e := <-h.events:
			if e.path == path {
				t.Fatalf("unexpected %s event for %s", e.op, path)
			}
		case <-timeout:
			return
		}
	}
}

func TestWatcherLifecycle(t *testing.T) {
	root, h := startWatcher(t, 2)
	path := filepath.Join(root, "clip.mp4")

	if err := os.WriteFile(path, []byte("frames"), 0644); err != nil {
		t.Fatal(err)
	}
	expect(t, h, "create", path)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	f.Write([]byte("more"))
	f.Close()
	expect(t, h, "modify", path)

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	expect(t, h, "delete", path)
}

func TestWatcherIgnoresDotfilesAndOtherTypes(t *testing.T) {
	root, h := startWatcher(t, 2)

	hidden := filepath.Join(root, ".clip.mp4")
	notes := filepath.Join(root, "notes.txt")
	os.WriteFile(hidden, []byte("x"), 0644)
	os.WriteFile(notes, []byte("x"), 0644)

	expectNone(t, h, hidden)
	expectNone(t, h, notes)
}

func TestWatcherFollowsNewDirectoriesWithinDepth(t *testing.T) {
	root, h := startWatcher(t, 1)

	sub := filepath.Join(root, "2024")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	// Give the watcher a moment to register the new directory.
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(sub, "clip.MOV")
	if err := os.WriteFile(path, []byte("frames"), 0644); err != nil {
		t.Fatal(err)
	}
	expect(t, h, "create", path)
}

func TestDepthOf(t *testing.T) {
	w := New("/srv/uploads", 2, nil)
	tests := map[string]int{
		"/srv/uploads":         0,
		"/srv/uploads/a":       1,
		"/srv/uploads/a/b":     2,
		"/srv/uploads/a/b/c/d": 4,
	}
	for path, want := range tests {
		if got := w.depthOf(filepath.FromSlash(path)); got != want {
			t.Errorf("depthOf(%s) = %d, want %d", path, got, want)
		}
	}
}
