package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDebounce = 50 * time.Millisecond

func startWatcher(t *testing.T, path string) *Watcher {
	t.Helper()
	w, err := New(path, testDebounce)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)
	return w
}

func waitEvent(t *testing.T, w *Watcher) Event {
	t.Helper()
	select {
	case ev := <-w.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for store change")
		return Event{}
	}
}

func assertNoEvent(t *testing.T, w *Watcher) {
	t.Helper()
	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(5 * testDebounce):
	}
}

func TestWatcher_DebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "soundwave_storage.json")
	w := startWatcher(t, path)

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte(`{"tracks":[]}`), 0600))
	}

	ev := waitEvent(t, w)
	assert.Equal(t, w.path, ev.Path)
	assert.False(t, ev.Removed)
	assertNoEvent(t, w)
}

func TestWatcher_RenameOver(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "soundwave_storage.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0600))
	w := startWatcher(t, path)

	tmp := filepath.Join(dir, "soundwave_storage.json.123.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte(`{"artist_name":"x"}`), 0600))
	require.NoError(t, os.Rename(tmp, path))

	ev := waitEvent(t, w)
	assert.False(t, ev.Removed)
}

func TestWatcher_Remove(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "soundwave_storage.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0600))
	w := startWatcher(t, path)

	require.NoError(t, os.Remove(path))

	ev := waitEvent(t, w)
	assert.True(t, ev.Removed)
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, filepath.Join(dir, "soundwave_storage.json"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte("{}"), 0600))
	assertNoEvent(t, w)
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "store.json"), 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultDebounce, w.debounce)

	require.NoError(t, w.Start(context.Background()))
	w.Stop()
	w.Stop()
}

func TestNew_RequiresPath(t *testing.T) {
	_, err := New("", time.Second)
	assert.Error(t, err)
}
