package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelevantFiltersEvents(t *testing.T) {
	root := t.TempDir()
	w, err := New(root, []string{".docpipe", "output"}, time.Millisecond, func(context.Context, []string) {})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.watcher.Close() })

	rel, ok := w.relevant(fsnotify.Event{Name: filepath.Join(w.root, "docs", "a.md"), Op: fsnotify.Write})
	assert.True(t, ok)
	assert.Equal(t, "docs/a.md", rel)

	_, ok = w.relevant(fsnotify.Event{Name: filepath.Join(w.root, "a.md"), Op: fsnotify.Chmod})
	assert.False(t, ok)

	_, ok = w.relevant(fsnotify.Event{Name: filepath.Join(w.root, ".docpipe", "cache.sqlite3"), Op: fsnotify.Write})
	assert.False(t, ok)

	_, ok = w.relevant(fsnotify.Event{Name: filepath.Join(w.root, "output", "a.md"), Op: fsnotify.Create})
	assert.False(t, ok)
}

func TestRunDebouncesChanges(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "docs"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "output"), 0o755))

	var mu sync.Mutex
	var calls [][]string
	got := make(chan struct{}, 4)
	w, err := New(root, []string{"output"}, 100*time.Millisecond, func(_ context.Context, changed []string) {
		mu.Lock()
		calls = append(calls, changed)
		mu.Unlock()
		select {
		case got <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)
	require.NoError(t, w.Start())

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, os.WriteFile(filepath.Join(root, "docs", "a.md"), []byte("a"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "docs", "b.md"), []byte("b"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "output", "ignored.md"), []byte("x"), 0o600))

	select {
	case <-got:
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification")
	}
	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	var all []string
	for _, c := range calls {
		all = append(all, c...)
	}
	assert.Contains(t, all, "docs/a.md")
	assert.NotContains(t, all, "output/ignored.md")
}

func TestNewDirectoriesAreWatched(t *testing.T) {
	root := t.TempDir()
	got := make(chan []string, 8)
	w, err := New(root, nil, 50*time.Millisecond, func(_ context.Context, changed []string) {
		select {
		case got <- changed:
		default:
		}
	})
	require.NoError(t, err)
	require.NoError(t, w.Start())

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "fresh"), 0o755))
	select {
	case <-got:
	case <-time.After(5 * time.Second):
		t.Fatal("no notification for new directory")
	}

	require.NoError(t, os.WriteFile(filepath.Join(root, "fresh", "doc.md"), []byte("x"), 0o600))
	deadline := time.After(5 * time.Second)
	for {
		select {
		case changed := <-got:
			for _, c := range changed {
				if c == "fresh/doc.md" {
					return
				}
			}
		case <-deadline:
			t.Fatal("file in new directory not reported")
		}
	}
}
