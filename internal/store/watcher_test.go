package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherTriggersOnWrite(t *testing.T) {
	dir := t.TempDir()
	changed := make(chan struct{}, 1)

	w, err := NewWatcher(20*time.Millisecond, func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)
	defer w.Stop()

	require.Equal(t, 1, w.WatchRecursive(dir))
	w.Start()

	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "a.jsonl"), []byte("{}\n"), 0o644))

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not fire")
	}
}

func TestWatcherCoalescesBurst(t *testing.T) {
	dir := t.TempDir()
	fired := make(chan struct{}, 16)

	w, err := NewWatcher(50*time.Millisecond, func() {
		fired <- struct{}{}
	})
	require.NoError(t, err)
	defer w.Stop()

	w.WatchRecursive(dir)
	w.Start()

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(
			filepath.Join(dir, "b.jsonl"), []byte("{}\n"), 0o644))
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not fire")
	}
	// the burst should have been folded into a single callback
	select {
	case <-fired:
		t.Fatal("watcher fired more than once for one burst")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcherMissingRoot(t *testing.T) {
	w, err := NewWatcher(10*time.Millisecond, func() {})
	require.NoError(t, err)
	defer w.Stop()
	assert.Equal(t, 0, w.WatchRecursive("/does/not/exist"))
}
