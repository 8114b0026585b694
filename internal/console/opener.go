package console

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/phobologic/bdcompanion/internal/config"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// FileOpener writes module source into a directory as a JavaScript file,
// optionally formats it and opens it with a configured command.
type FileOpener struct {
	Dir       string
	Formatter string // shell command; the file path is appended
	Open      string // shell command; the file path is appended
	Logger    *log.Logger
}

// NewFileOpener builds a FileOpener from the source section of cfg.
func NewFileOpener(cfg config.SourceConfig, logger *log.Logger) *FileOpener {
	return &FileOpener{
		Dir:       cfg.Dir,
		Formatter: cfg.Formatter,
		Open:      cfg.Open,
		Logger:    logger,
	}
}

// OpenSource writes source to <dir>/<name>.js. The name is the module id, or
// a content hash when the id is empty. A failing formatter leaves the file
// unformatted; a failing open command is returned.
func (o *FileOpener) OpenSource(ctx context.Context, source, id string) error {
	logger := o.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	path := filepath.Join(o.Dir, FileName(source, id))
	if err := os.MkdirAll(o.Dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", o.Dir, err)
	}
	if err := os.WriteFile(path, []byte(source), 0o644); err != nil {
		return fmt.Errorf("writing module source: %w", err)
	}

	if o.Formatter != "" {
		if out, err := runWithPath(ctx, o.Formatter, path); err != nil {
			logger.Warn("formatter failed", "command", o.Formatter, "error", err, "output", out)
		}
	}

	if o.Open == "" {
		logger.Info("module source written", "id", id, "path", path)
		return nil
	}
	if out, err := runWithPath(ctx, o.Open, path); err != nil {
		return fmt.Errorf("opening %s: %w: %s", path, err, out)
	}
	return nil
}

// FileName returns the file name used for a module's source.
func FileName(source, id string) string {
	name := unsafeName.ReplaceAllString(id, "_")
	if strings.Trim(name, "_") == "" {
		sum := sha256.Sum256([]byte(source))
		name = hex.EncodeToString(sum[:6])
	}
	return name + ".js"
}

func runWithPath(ctx context.Context, command, path string) (string, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command+` "$1"`, "bdcompanion", path)
	out, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(out)), err
}
