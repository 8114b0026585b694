package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/phobologic/bdcompanion/internal/config"
)

const (
	sentinelStart = "# bdcompanion:start"
	sentinelEnd   = "# bdcompanion:end"
)

// runInit implements the `bdcompanion init` subcommand, which writes (or
// updates) the default settings block in a .bdcompanion.yaml file.
func runInit(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("bdcompanion init", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var dryRun bool
	fs.BoolVar(&dryRun, "dry-run", false, "print what would be written without modifying the file")

	fs.Usage = func() {
		fmt.Fprintf(stderr, `Usage: bdcompanion init [flags] [path-to-config]

Write the default bdcompanion settings to a config file. The block is wrapped
in sentinel comments so it can be updated in place on subsequent runs without
touching surrounding content. Creates the file if it does not exist.

path-to-config defaults to ./%s.

Flags:
`, config.FileName)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	section := generateSection()

	// --dry-run with no path: just print the section itself.
	if dryRun && fs.NArg() == 0 {
		_, _ = fmt.Fprintln(stdout, section)
		return nil
	}

	path := config.FileName
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}

	existing, _ := os.ReadFile(path)
	updated := applySection(string(existing), section)

	if _, err := config.Parse([]byte(updated)); err != nil {
		return fmt.Errorf("%s would not load after the update, leaving it unchanged: %w", path, err)
	}

	if dryRun {
		_, _ = fmt.Fprint(stdout, updated)
		return nil
	}

	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	_, _ = fmt.Fprintf(stderr, "wrote bdcompanion settings to %s\n", path)
	return nil
}

// generateSection returns the sentinel-wrapped default settings block.
func generateSection() string {
	header := `# Settings for bdcompanion. Every key can be overridden with an
# environment variable, e.g. BDCOMPANION_BRIDGE_PORT=9000.
# Run "bdcompanion init" again to refresh this block.`

	return sentinelStart + "\n" + header + "\n" + config.DefaultYAML() + "\n" + sentinelEnd
}

// applySection inserts section into content, replacing an existing sentinel
// block if present or appending if not. It is a pure function for easy testing.
func applySection(content, section string) string {
	start := strings.Index(content, sentinelStart)
	end := strings.Index(content, sentinelEnd)

	if start >= 0 && end > start {
		return content[:start] + section + content[end+len(sentinelEnd):]
	}

	// Append, ensuring a blank line separator.
	if len(content) > 0 && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return content + "\n" + section + "\n"
}
