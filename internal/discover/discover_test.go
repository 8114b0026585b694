package discover

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDiscoverSourceFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	writeFile(t, dir, "MyPlugin.plugin.js", "module.exports = class {}")
	writeFile(t, dir, "src/util.ts", "export const x = 1")
	writeFile(t, dir, "src/view.tsx", "export const V = () => <div />")
	// Unsupported file should be ignored
	writeFile(t, dir, "readme.md", "hello")
	// Hidden file should be ignored
	writeFile(t, dir, ".hidden.js", "secret")

	entries, err := Files(dir, nil)
	if err != nil {
		t.Fatalf("Files: %v", err)
	}

	paths := make([]string, len(entries))
	for i, e := range entries {
		paths[i] = e.Path
	}

	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d: %v", len(entries), paths)
	}

	// Should be sorted
	want := []struct{ path, lang string }{
		{"MyPlugin.plugin.js", "javascript"},
		{filepath.Join("src", "util.ts"), "typescript"},
		{filepath.Join("src", "view.tsx"), "tsx"},
	}
	for i, w := range want {
		if entries[i].Path != w.path {
			t.Errorf("entry %d: got %q, want %q", i, entries[i].Path, w.path)
		}
		if entries[i].Language != w.lang {
			t.Errorf("entry %q: language = %q, want %q", entries[i].Path, entries[i].Language, w.lang)
		}
	}
}

func TestDiscoverSkipDirs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	writeFile(t, dir, "index.js", "")
	writeFile(t, dir, "node_modules/pkg/index.js", "")
	writeFile(t, dir, "dist/bundle.js", "")
	writeFile(t, dir, ".hidden/secret.js", "")

	entries, err := Files(dir, nil)
	if err != nil {
		t.Fatalf("Files: %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Path != "index.js" {
		t.Errorf("expected index.js, got %q", entries[0].Path)
	}
}

func TestDiscoverGitignore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	writeFile(t, dir, ".gitignore", "generated\n*.min.js\n")
	writeFile(t, dir, "index.js", "")
	writeFile(t, dir, "vendor.min.js", "")
	writeFile(t, dir, "generated/types.ts", "")

	entries, err := Files(dir, nil)
	if err != nil {
		t.Fatalf("Files: %v", err)
	}

	if len(entries) != 1 || entries[0].Path != "index.js" {
		t.Fatalf("expected only index.js, got %+v", entries)
	}
}

func TestDiscoverLanguageFilter(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	writeFile(t, dir, "a.js", "")
	writeFile(t, dir, "b.jsx", "")
	writeFile(t, dir, "c.ts", "")

	entries, err := Files(dir, []string{"javascript"})
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries for javascript filter, got %d", len(entries))
	}

	entries, err = Files(dir, []string{"tsx"})
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected 0 entries for tsx filter, got %d", len(entries))
	}
}

func TestDiscoverSymlinksSkipped(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "real.js", "")

	// Create symlink
	err := os.Symlink(filepath.Join(dir, "real.js"), filepath.Join(dir, "link.js"))
	if err != nil {
		t.Skip("symlinks not supported")
	}

	entries, err := Files(dir, nil)
	if err != nil {
		t.Fatalf("Files: %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("expected 1 entry (no symlink), got %d", len(entries))
	}
	if entries[0].Path != "real.js" {
		t.Errorf("expected real.js, got %q", entries[0].Path)
	}
}

func TestIsPlugin(t *testing.T) {
	t.Parallel()
	cases := []struct {
		path string
		want bool
	}{
		{"MyPlugin.plugin.js", true},
		{"plugins/Other.plugin.js", true},
		{"plugin.js", false},
		{"src/index.js", false},
		{"MyPlugin.plugin.ts", false},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			t.Parallel()
			if got := IsPlugin(tc.path); got != tc.want {
				t.Errorf("IsPlugin(%q) = %v, want %v", tc.path, got, tc.want)
			}
		})
	}
}

func TestSkipDir(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"node_modules", "dist", ".git", ".vscode"} {
		if !SkipDir(name) {
			t.Errorf("SkipDir(%q) = false, want true", name)
		}
	}
	for _, name := range []string{"src", "plugins", "lib"} {
		if SkipDir(name) {
			t.Errorf("SkipDir(%q) = true, want false", name)
		}
	}
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
