package console

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/bdcompanion/internal/bridge"
	"github.com/phobologic/bdcompanion/internal/model"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type sentCommand struct {
	action      model.Command
	query       []string
	patternType string
}

type fakeBridge struct {
	mu        sync.Mutex
	connected bool
	err       error
	sent      []sentCommand
}

func (f *fakeBridge) Connected(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeBridge) Trigger(ctx context.Context, a model.Action) error {
	return f.SendCommand(ctx, a.Command, a.Query, a.PatternType, a.Options)
}

func (f *fakeBridge) SendCommand(_ context.Context, action model.Command, query []string, patternType string, _ model.Options) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentCommand{action: action, query: query, patternType: patternType})
	return f.err
}

func runScript(t *testing.T, b Bridge, script string) string {
	t.Helper()
	out := &syncBuffer{}
	c := New(Options{In: strings.NewReader(script), Out: out})
	require.NoError(t, c.Run(context.Background(), b))
	return out.String()
}

func TestStatus(t *testing.T) {
	t.Parallel()

	out := runScript(t, &fakeBridge{}, "status\n")
	assert.Contains(t, out, "BetterDiscord: not connected")

	out = runScript(t, &fakeBridge{connected: true}, "status\n")
	assert.Contains(t, out, "BetterDiscord: connected")
}

func TestFindAndSource(t *testing.T) {
	t.Parallel()
	b := &fakeBridge{connected: true}

	runScript(t, b, "find getUser getCurrentUser\nsource UserStore\n")

	require.Len(t, b.sent, 2)
	assert.Equal(t, sentCommand{action: model.TryFind, query: []string{"getUser", "getCurrentUser"}, patternType: "keys"}, b.sent[0])
	assert.Equal(t, sentCommand{action: model.OpenSource, query: []string{"UserStore"}, patternType: "keys"}, b.sent[1])
}

func TestFindWithoutKeys(t *testing.T) {
	t.Parallel()
	b := &fakeBridge{}

	out := runScript(t, b, "find\n")
	assert.Contains(t, out, "usage: find <key...>")
	assert.Empty(t, b.sent)
}

func TestScanAndRun(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "index.js")
	src := "const a = 1;\nconst m = BdApi.Webpack.getByKeys(\"foo\", \"bar\");\n"
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	b := &fakeBridge{connected: true}
	out := runScript(t, b, "scan "+path+"\nrun 2\n")

	assert.Contains(t, out, "[1] line 2  BetterDiscord: Try to Find  keys foo, bar")
	assert.Contains(t, out, "[2] line 2  BetterDiscord: Open Module Source  keys foo, bar")
	require.Len(t, b.sent, 1)
	assert.Equal(t, sentCommand{action: model.OpenSource, query: []string{"foo", "bar"}, patternType: "keys"}, b.sent[0])
}

func TestScanWithoutLookups(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "plain.js")
	require.NoError(t, os.WriteFile(path, []byte("console.log(1)\n"), 0o644))

	out := runScript(t, &fakeBridge{}, "scan "+path+"\n")
	assert.Contains(t, out, "no lookups found in "+path)
}

func TestRunOutOfRange(t *testing.T) {
	t.Parallel()
	b := &fakeBridge{}

	out := runScript(t, b, "run 1\n")
	assert.Contains(t, out, "nothing scanned yet")
	assert.Empty(t, b.sent)
}

func TestNotConnectedErrorNotRepeated(t *testing.T) {
	t.Parallel()
	b := &fakeBridge{err: bridge.ErrNotConnected}

	out := runScript(t, b, "find x\n")
	assert.NotContains(t, out, "error:")
}

func TestOtherErrorsPrinted(t *testing.T) {
	t.Parallel()
	b := &fakeBridge{err: errors.New("boom")}

	out := runScript(t, b, "find x\n")
	assert.Contains(t, out, "error: boom")
}

func TestUnknownCommandAndQuit(t *testing.T) {
	t.Parallel()
	b := &fakeBridge{}

	out := runScript(t, b, "frobnicate\nquit\nfind never\n")
	assert.Contains(t, out, `unknown command "frobnicate"`)
	assert.Empty(t, b.sent, "commands after quit must not run")
}

func TestHelp(t *testing.T) {
	t.Parallel()

	out := runScript(t, &fakeBridge{}, "help\n")
	for _, cmd := range []string{"scan <file>", "run <n>", "find <key...>", "source <key...>", "status", "quit"} {
		assert.Contains(t, out, cmd)
	}
}

func startInteractive(t *testing.T) (*Console, *io.PipeWriter, *syncBuffer) {
	t.Helper()
	pr, pw := io.Pipe()
	out := &syncBuffer{}
	c := New(Options{In: pr, Out: out})

	errc := make(chan error, 1)
	go func() { errc <- c.Run(context.Background(), &fakeBridge{}) }()
	t.Cleanup(func() {
		_ = pw.Close()
		select {
		case <-errc:
		case <-time.After(2 * time.Second):
			t.Error("console did not stop")
		}
	})
	return c, pw, out
}

type pickResult struct {
	index int
	ok    bool
	err   error
}

func pickAsync(c *Console, items []bridge.PickItem) <-chan pickResult {
	res := make(chan pickResult, 1)
	go func() {
		idx, ok, err := c.Pick(context.Background(), items)
		res <- pickResult{idx, ok, err}
	}()
	return res
}

var testItems = []bridge.PickItem{
	{Label: "1", Detail: "exports: a, b"},
	{Label: "2", Detail: "exports: none"},
}

func TestPickSelectsEntry(t *testing.T) {
	t.Parallel()
	c, pw, out := startInteractive(t)

	res := pickAsync(c, testItems)
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "select> ") }, time.Second, 10*time.Millisecond)
	assert.Contains(t, out.String(), "[2] 2  exports: none")

	_, err := io.WriteString(pw, "2\n")
	require.NoError(t, err)

	select {
	case r := <-res:
		require.NoError(t, r.err)
		assert.True(t, r.ok)
		assert.Equal(t, 1, r.index)
	case <-time.After(2 * time.Second):
		t.Fatal("Pick did not return")
	}
}

func TestPickBlankCancels(t *testing.T) {
	t.Parallel()
	c, pw, out := startInteractive(t)

	res := pickAsync(c, testItems)
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "select> ") }, time.Second, 10*time.Millisecond)

	_, err := io.WriteString(pw, "\n")
	require.NoError(t, err)

	select {
	case r := <-res:
		require.NoError(t, r.err)
		assert.False(t, r.ok)
	case <-time.After(2 * time.Second):
		t.Fatal("Pick did not return")
	}
}

func TestPickInvalidAnswer(t *testing.T) {
	t.Parallel()
	c, pw, out := startInteractive(t)

	res := pickAsync(c, testItems)
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "select> ") }, time.Second, 10*time.Millisecond)

	_, err := io.WriteString(pw, "7\n")
	require.NoError(t, err)

	select {
	case r := <-res:
		require.NoError(t, r.err)
		assert.False(t, r.ok)
	case <-time.After(2 * time.Second):
		t.Fatal("Pick did not return")
	}
	assert.Contains(t, out.String(), `invalid selection "7"`)
}

func TestPickAfterConsoleStopped(t *testing.T) {
	t.Parallel()
	c := New(Options{In: strings.NewReader(""), Out: io.Discard})
	require.NoError(t, c.Run(context.Background(), &fakeBridge{}))

	_, ok, err := c.Pick(context.Background(), testItems)
	require.NoError(t, err)
	assert.False(t, ok)
}
