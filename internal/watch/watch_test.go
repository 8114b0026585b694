package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDebounce = 50 * time.Millisecond

type batches struct {
	mu  sync.Mutex
	got [][]string
}

func (b *batches) add(files []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.got = append(b.got, files)
}

func (b *batches) all() [][]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]string(nil), b.got...)
}

func (b *batches) flat() []string {
	var out []string
	for _, batch := range b.all() {
		out = append(out, batch...)
	}
	return out
}

func startWatcher(t *testing.T, dir string) (*Watcher, *batches) {
	t.Helper()
	w, err := New([]string{dir}, []string{".js", ".ts"}, WithDebounce(testDebounce))
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Stop() })

	b := &batches{}
	require.NoError(t, w.Start(context.Background(), b.add))
	return w, b
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestNewInvalidDirectory(t *testing.T) {
	t.Parallel()

	w, err := New([]string{filepath.Join(t.TempDir(), "missing")}, []string{".js"})
	assert.Error(t, err)
	assert.Nil(t, w)
}

func TestWriteDeliversBatch(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	_, b := startWatcher(t, dir)

	path := filepath.Join(dir, "index.js")
	write(t, path, "getByKeys('a')")

	require.Eventually(t, func() bool { return len(b.flat()) > 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, b.flat(), path)
}

func TestRapidChangesAreCoalesced(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	_, b := startWatcher(t, dir)

	path := filepath.Join(dir, "index.js")
	for i := range 5 {
		write(t, path, string(rune('a'+i)))
	}

	require.Eventually(t, func() bool { return len(b.all()) > 0 }, 2*time.Second, 10*time.Millisecond)
	batch := b.all()[0]
	assert.Equal(t, []string{path}, batch)
}

func TestOtherExtensionsIgnored(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	_, b := startWatcher(t, dir)

	write(t, filepath.Join(dir, "README.md"), "# hi")
	write(t, filepath.Join(dir, "plugin.ts"), "x")

	require.Eventually(t, func() bool { return len(b.flat()) > 0 }, 2*time.Second, 10*time.Millisecond)
	for _, f := range b.flat() {
		assert.NotEqual(t, ".md", filepath.Ext(f))
	}
}

func TestNewDirectoryIsWatched(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	_, b := startWatcher(t, dir)

	sub := filepath.Join(dir, "src")
	require.NoError(t, os.Mkdir(sub, 0o755))
	path := filepath.Join(sub, "a.js")

	// The directory is added asynchronously; keep writing until seen.
	require.Eventually(t, func() bool {
		write(t, path, "x")
		for _, f := range b.flat() {
			if f == path {
				return true
			}
		}
		return false
	}, 3*time.Second, 100*time.Millisecond)
}

func TestSkippedDirectoriesNotWatched(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules", "pkg"), 0o755))
	_, b := startWatcher(t, dir)

	skipped := filepath.Join(dir, "node_modules", "pkg", "index.js")
	write(t, skipped, "x")
	marker := filepath.Join(dir, "marker.js")
	write(t, marker, "x")

	require.Eventually(t, func() bool { return len(b.flat()) > 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, b.flat(), marker)
	assert.NotContains(t, b.flat(), skipped)
}

func TestStopIsIdempotent(t *testing.T) {
	t.Parallel()
	w, err := New([]string{t.TempDir()}, []string{".js"})
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background(), func([]string) {}))
	assert.ErrorIs(t, w.Start(context.Background(), func([]string) {}), ErrStarted)

	require.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
	select {
	case <-w.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}
}

func TestStopWithoutStart(t *testing.T) {
	t.Parallel()
	w, err := New([]string{t.TempDir()}, []string{".js"})
	require.NoError(t, err)
	require.NoError(t, w.Stop())
}

func TestContextCancellationStops(t *testing.T) {
	t.Parallel()
	w, err := New([]string{t.TempDir()}, []string{".js"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Stop() })

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx, func([]string) {}))
	cancel()

	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop after cancellation")
	}
}
