// bdcompanion finds BetterDiscord Webpack lookups in plugin sources and
// bridges them to a running Discord client.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"github.com/phobologic/bdcompanion/internal/config"
	"github.com/phobologic/bdcompanion/internal/extract"
	"github.com/phobologic/bdcompanion/internal/lang"
	"github.com/phobologic/bdcompanion/internal/parse"
)

var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) > 0 {
		switch args[0] {
		case "init":
			return runInit(args[1:], stdout, stderr)
		case "serve":
			return runServe(ctx, args[1:], stdin, stdout, stderr)
		case "scan":
			return runScan(ctx, args[1:], stdout, stderr)
		}
	}
	return runScan(ctx, args, stdout, stderr)
}

// commonFlags are accepted by every command that reads configuration.
type commonFlags struct {
	configFile string
	verbose    bool
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configFile, "c", "", "config file (default ./"+config.FileName+")")
	fs.StringVar(&c.configFile, "config", "", "config file (default ./"+config.FileName+")")
	fs.BoolVar(&c.verbose, "v", false, "enable debug logging")
	fs.BoolVar(&c.verbose, "verbose", false, "enable debug logging")
}

// loadConfig reads .env, then the configuration for the working directory.
func loadConfig(configFile string) (*config.Config, error) {
	_ = godotenv.Load()

	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolving working directory: %w", err)
	}
	return config.NewLoader(wd, configFile).Load()
}

func newLogger(w io.Writer, level string, verbose bool) *log.Logger {
	logger := log.NewWithOptions(w, log.Options{
		Prefix: "bdcompanion",
	})
	if verbose {
		level = "debug"
	}
	if lvl, err := log.ParseLevel(level); err == nil {
		logger.SetLevel(lvl)
	}
	return logger
}

// newSourceFor returns the extractor to use for a file. In syntax mode the
// tree-sitter languages are located structurally and every other file falls
// back to the regex extractor.
func newSourceFor(cfg config.ExtractConfig) (func(path string) extract.Source, error) {
	regex, err := extract.NewCached(extract.Default(), cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	if cfg.Mode != config.ModeSyntax {
		return func(string) extract.Source { return regex }, nil
	}

	byLang := make(map[string]extract.Source, len(lang.Languages))
	for name, l := range lang.Languages {
		px, err := parse.NewExtractor(l, extract.Patterns)
		if err != nil {
			return nil, err
		}
		cached, err := extract.NewCached(px, cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		byLang[name] = cached
	}
	return func(path string) extract.Source {
		if l := lang.ForPath(path); l != nil {
			if src, ok := byLang[l.Name]; ok {
				return src
			}
		}
		return regex
	}, nil
}

// flagsWithValue lists flags that take a value argument.
var flagsWithValue = map[string]bool{
	"-c": true, "--c": true,
	"-config": true, "--config": true,
	"-mode": true, "--mode": true,
	"-l": true, "--l": true,
	"-langs": true, "--langs": true,
	"-max-file-size": true, "--max-file-size": true,
	"-host": true, "--host": true,
	"-port": true, "--port": true,
	"-peer-policy": true, "--peer-policy": true,
}

// reorderArgs moves positional arguments after all flags so Go's flag package
// can parse them correctly (it stops at the first non-flag arg).
func reorderArgs(args []string) []string {
	var flags, positional []string
	for i := 0; i < len(args); i++ {
		if args[i] == "--" {
			// Keep the terminator so dash-prefixed names stay positional.
			flags = append(flags, "--")
			positional = append(positional, args[i+1:]...)
			break
		}
		if len(args[i]) > 0 && args[i][0] == '-' {
			flags = append(flags, args[i])
			if flagsWithValue[args[i]] && i+1 < len(args) {
				i++
				flags = append(flags, args[i])
			}
		} else {
			positional = append(positional, args[i])
		}
	}
	return append(flags, positional...)
}
