package watch

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type changes struct {
	mu    sync.Mutex
	paths []string
	ch    chan struct{}
}

func newChanges() *changes {
	return &changes{ch: make(chan struct{}, 16)}
}

func (c *changes) record(path string) {
	c.mu.Lock()
	c.paths = append(c.paths, path)
	c.mu.Unlock()
	c.ch <- struct{}{}
}

func (c *changes) wait(t *testing.T) {
	t.Helper()
	select {
	case <-c.ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change")
	}
}

func (c *changes) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.paths...)
}

func TestNewRequiresCallback(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestWatcherDebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: a\n"), 0o600))

	got := newChanges()
	w, err := New(Config{OnChange: got.record, Debounce: 50 * time.Millisecond})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Add(path))

	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte("name: b\n"), 0o600))
	}
	got.wait(t)

	// Give a stray second callback a chance to show up.
	time.Sleep(150 * time.Millisecond)
	paths := got.snapshot()
	require.Len(t, paths, 1)
	abs, _ := filepath.Abs(path)
	assert.Equal(t, abs, paths[0])
}

func TestWatcherIgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: a\n"), 0o600))

	got := newChanges()
	w, err := New(Config{OnChange: got.record, Debounce: 20 * time.Millisecond})
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.Add(path))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o600))
	time.Sleep(150 * time.Millisecond)
	assert.Empty(t, got.snapshot())
}

func TestWatcherRemove(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: a\n"), 0o600))

	got := newChanges()
	w, err := New(Config{OnChange: got.record, Debounce: 20 * time.Millisecond})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Add(path))
	require.NoError(t, w.Add(path))
	require.NoError(t, w.Remove(path))
	require.NoError(t, w.Remove(path))

	require.NoError(t, os.WriteFile(path, []byte("name: c\n"), 0o600))
	time.Sleep(150 * time.Millisecond)
	assert.Empty(t, got.snapshot())
}
