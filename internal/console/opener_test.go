package console

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestFileName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		source string
		id     string
		want   string
	}{
		{"numeric id", "x", "123", "123.js"},
		{"string id", "x", "abc_def", "abc_def.js"},
		{"unsafe id", "x", "../etc/passwd", "_etc_passwd.js"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, FileName(tt.source, tt.id))
		})
	}

	hashed := FileName("function(){}", "")
	assert.Len(t, hashed, len("0123456789ab.js"))
	assert.NotEqual(t, hashed, FileName("other", ""))
	assert.Equal(t, hashed, FileName("function(){}", "///"))
}

func TestOpenSourceWritesFile(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "modules")

	o := &FileOpener{Dir: dir}
	require.NoError(t, o.OpenSource(context.Background(), "function(e){return e}", "42"))

	data, err := os.ReadFile(filepath.Join(dir, "42.js"))
	require.NoError(t, err)
	assert.Equal(t, "function(e){return e}", string(data))
}

func TestOpenSourceRunsFormatterAndOpen(t *testing.T) {
	t.Parallel()
	requireShell(t)
	dir := t.TempDir()
	marker := filepath.Join(dir, "opened")

	o := &FileOpener{
		Dir:       dir,
		Formatter: "printf '// formatted\\n' >>",
		Open:      "cp \"$1\" " + marker + " #",
	}
	require.NoError(t, o.OpenSource(context.Background(), "x", "7"))

	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, "x// formatted\n", string(data))
}

func TestOpenSourceFormatterFailureIsNotFatal(t *testing.T) {
	t.Parallel()
	requireShell(t)
	dir := t.TempDir()

	o := &FileOpener{Dir: dir, Formatter: "false"}
	require.NoError(t, o.OpenSource(context.Background(), "x", "1"))
	assert.FileExists(t, filepath.Join(dir, "1.js"))
}

func TestOpenSourceOpenFailure(t *testing.T) {
	t.Parallel()
	requireShell(t)

	o := &FileOpener{Dir: t.TempDir(), Open: "false"}
	err := o.OpenSource(context.Background(), "x", "1")
	assert.Error(t, err)
}
