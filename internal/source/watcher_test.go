package source

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/lifeline/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

type recorder struct {
	mu    sync.Mutex
	calls [][]string
}

func (r *recorder) record(paths []string) {
	r.mu.Lock()
	r.calls = append(r.calls, paths)
	r.mu.Unlock()
}

func (r *recorder) seen(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.calls {
		for _, p := range c {
			if p == path {
				return true
			}
		}
	}
	return false
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestWatch_ItemWriteReported(t *testing.T) {
	dir := exportFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorder{}
	go Watch(ctx, dir, 50*time.Millisecond, quietLogger(), rec.record)
	time.Sleep(100 * time.Millisecond)

	testutil.WriteFile(t, dir, "travel/porto.md", "---\nstartDate: 2024-07-01\n---\n")

	eventually(t, 5*time.Second, 25*time.Millisecond, func() bool {
		return rec.seen("travel/porto.md")
	}, "new item not reported")
}

func TestWatch_BurstDebounced(t *testing.T) {
	dir := exportFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorder{}
	go Watch(ctx, dir, 300*time.Millisecond, quietLogger(), rec.record)
	time.Sleep(100 * time.Millisecond)

	for _, name := range []string{"a.md", "b.md", "c.md"} {
		testutil.WriteFile(t, dir, "travel/"+name, "---\nstartDate: 2024-07-01\n---\n")
	}

	eventually(t, 5*time.Second, 25*time.Millisecond, func() bool {
		return rec.seen("travel/c.md")
	}, "burst not reported")
	if n := rec.count(); n != 1 {
		t.Errorf("callbacks = %d, want 1 for one burst", n)
	}
}

func TestWatch_NewDirWatched(t *testing.T) {
	dir := exportFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorder{}
	go Watch(ctx, dir, 50*time.Millisecond, quietLogger(), rec.record)
	time.Sleep(100 * time.Millisecond)

	_ = os.MkdirAll(filepath.Join(dir, "health"), 0o755)
	eventually(t, 5*time.Second, 25*time.Millisecond, func() bool {
		return rec.seen("health")
	}, "new directory not reported")

	testutil.WriteFile(t, dir, "health/run.md", "---\nstartDate: 2024-07-01\n---\n")
	eventually(t, 5*time.Second, 25*time.Millisecond, func() bool {
		return rec.seen("health/run.md")
	}, "file in new directory not reported")
}

func TestWatch_IgnoresOtherFiles(t *testing.T) {
	dir := exportFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorder{}
	go Watch(ctx, dir, 50*time.Millisecond, quietLogger(), rec.record)
	time.Sleep(100 * time.Millisecond)

	testutil.WriteFile(t, dir, "career/notes.txt", "still ignored")
	time.Sleep(300 * time.Millisecond)
	if rec.count() != 0 {
		t.Errorf("unexpected callbacks: %v", rec.calls)
	}
}
