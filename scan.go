package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/phobologic/bdcompanion/internal/config"
	"github.com/phobologic/bdcompanion/internal/discover"
	"github.com/phobologic/bdcompanion/internal/extract"
	"github.com/phobologic/bdcompanion/internal/lang"
	"github.com/phobologic/bdcompanion/internal/model"
	"github.com/phobologic/bdcompanion/internal/toon"
	"github.com/phobologic/bdcompanion/internal/watch"
)

// scanOptions holds the output settings shared by the initial scan and
// watch-mode rescans.
type scanOptions struct {
	workspace   string
	asJSON      bool
	pluginsOnly bool
	maxFileSize int
	languages   []string
	sourceFor   func(path string) extract.Source
	logger      *log.Logger
}

func runScan(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("bdcompanion", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		common      commonFlags
		asJSON      bool
		watchMode   bool
		pluginsOnly bool
		mode        string
		langs       string
		maxFileSize int
		showVersion bool
	)

	common.register(fs)
	fs.BoolVar(&asJSON, "json", false, "print actions as JSON instead of TOON")
	fs.BoolVar(&watchMode, "watch", false, "keep running and rescan files as they change")
	fs.BoolVar(&pluginsOnly, "plugins", false, "only scan *.plugin.js files")
	fs.StringVar(&mode, "mode", "", "extraction mode: regex or syntax (default from config)")
	fs.StringVar(&langs, "l", "", "comma-separated languages to include")
	fs.StringVar(&langs, "langs", "", "comma-separated languages to include")
	fs.IntVar(&maxFileSize, "max-file-size", 0, "skip files larger than this many bytes (default from config)")
	fs.BoolVar(&showVersion, "V", false, "show version and exit")
	fs.BoolVar(&showVersion, "version", false, "show version and exit")

	if err := fs.Parse(reorderArgs(args)); err != nil {
		return err
	}

	if showVersion {
		_, _ = fmt.Fprintf(stdout, "bdcompanion %s\n", version)
		return nil
	}

	cfg, err := loadConfig(common.configFile)
	if err != nil {
		return err
	}
	if mode != "" {
		cfg.Extract.Mode = strings.ToLower(mode)
		if err := config.Validate(cfg); err != nil {
			return err
		}
	}
	if maxFileSize > 0 {
		cfg.Scan.MaxFileSize = maxFileSize
	}
	logger := newLogger(stderr, cfg.Log.Level, common.verbose)

	langFilter, err := parseLanguages(langs)
	if err != nil {
		return err
	}

	paths := fs.Args()
	if len(paths) == 0 {
		paths = []string{"."}
	}

	sourceFor, err := newSourceFor(cfg.Extract)
	if err != nil {
		return err
	}
	opts := scanOptions{
		workspace:   workspaceName(paths[0]),
		asJSON:      asJSON,
		pluginsOnly: pluginsOnly,
		maxFileSize: cfg.Scan.MaxFileSize,
		languages:   langFilter,
		sourceFor:   sourceFor,
		logger:      logger,
	}

	files, dirs, err := collectFiles(paths, langFilter)
	if err != nil {
		return err
	}
	files = opts.filter(files)
	if len(files) == 0 && !watchMode {
		return fmt.Errorf("no scannable files found")
	}

	results := extractConcurrent(files, sourceFor, logger)
	if err := opts.write(stdout, results); err != nil {
		return err
	}

	if !watchMode {
		return nil
	}
	return watchAndRescan(ctx, dirs, opts, stdout)
}

// parseLanguages splits a comma-separated language list and rejects names
// no registered language answers to.
func parseLanguages(langs string) ([]string, error) {
	if langs == "" {
		return nil, nil
	}
	var names []string
	for _, name := range strings.Split(langs, ",") {
		name = strings.TrimSpace(strings.ToLower(name))
		if _, ok := lang.Languages[name]; !ok {
			return nil, fmt.Errorf("unsupported language %q", name)
		}
		names = append(names, name)
	}
	return names, nil
}

// collectFiles expands directories with discover and keeps explicit files
// as given. With a language filter, explicit files of other languages are
// dropped too. It also returns the directories to watch.
func collectFiles(paths, languages []string) (files, dirs []string, err error) {
	seen := make(map[string]struct{})
	add := func(p string) {
		p = filepath.Clean(p)
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		files = append(files, p)
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, nil, fmt.Errorf("scan path: %w", err)
		}
		if !info.IsDir() {
			if len(languages) > 0 && !slices.Contains(languages, lang.ForExtension(filepath.Ext(p))) {
				continue
			}
			add(p)
			dirs = append(dirs, filepath.Dir(p))
			continue
		}
		entries, err := discover.Files(p, languages)
		if err != nil {
			return nil, nil, fmt.Errorf("discovering files in %s: %w", p, err)
		}
		for _, e := range entries {
			add(filepath.Join(p, e.Path))
		}
		dirs = append(dirs, p)
	}
	return files, dirs, nil
}

// filter drops non-plugin files when requested and files over the size
// limit.
func (o scanOptions) filter(files []string) []string {
	var kept []string
	for _, f := range files {
		if o.pluginsOnly && !discover.IsPlugin(f) {
			continue
		}
		fi, err := os.Stat(f)
		if err != nil {
			kept = append(kept, f) // keep if can't stat
			continue
		}
		if o.maxFileSize > 0 && fi.Size() > int64(o.maxFileSize) {
			o.logger.Warn("skipped large file", "path", f, "limit", o.maxFileSize)
			continue
		}
		kept = append(kept, f)
	}
	return kept
}

func (o scanOptions) write(w io.Writer, results []model.FileActions) error {
	if o.asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if results == nil {
			results = []model.FileActions{}
		}
		return enc.Encode(results)
	}
	_, err := fmt.Fprintln(w, toon.Encode(o.workspace, results))
	return err
}

// extractConcurrent reads and extracts files on a worker pool. Files without
// actions are dropped; the rest keep the input order.
func extractConcurrent(files []string, sourceFor func(string) extract.Source, logger *log.Logger) []model.FileActions {
	if len(files) == 0 {
		return nil
	}

	type result struct {
		index   int
		actions []model.Action
	}

	numWorkers := min(runtime.GOMAXPROCS(0), len(files))

	work := make(chan int, len(files))
	results := make(chan result, len(files))

	var wg sync.WaitGroup
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range work {
				path := files[idx]
				data, err := os.ReadFile(path)
				if err != nil {
					logger.Warn("failed to read file", "path", path, "error", err)
					continue
				}
				results <- result{index: idx, actions: sourceFor(path).Extract(string(data))}
			}
		}()
	}

	for i := range files {
		work <- i
	}
	close(work)

	go func() {
		wg.Wait()
		close(results)
	}()

	// Collect results in input order
	indexed := make([][]model.Action, len(files))
	for r := range results {
		indexed[r.index] = r.actions
	}

	var out []model.FileActions
	for i, actions := range indexed {
		if len(actions) > 0 {
			out = append(out, model.FileActions{Path: filepath.ToSlash(files[i]), Actions: actions})
		}
	}
	return out
}

// watchAndRescan prints the actions of changed files until ctx is done.
func watchAndRescan(ctx context.Context, dirs []string, opts scanOptions, stdout io.Writer) error {
	w, err := watch.New(dirs, extensions(opts.languages), watch.WithLogger(opts.logger))
	if err != nil {
		return fmt.Errorf("watching: %w", err)
	}
	defer func() { _ = w.Stop() }()

	err = w.Start(ctx, func(changed []string) {
		var files []string
		for _, f := range changed {
			if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
				opts.logger.Info("file removed", "path", f)
				continue
			}
			files = append(files, relative(f))
		}
		files = opts.filter(files)
		if len(files) == 0 {
			return
		}
		opts.logger.Debug("rescanning", "files", len(files))
		if err := opts.write(stdout, extractConcurrent(files, opts.sourceFor, opts.logger)); err != nil {
			opts.logger.Error("writing results", "error", err)
		}
	})
	if err != nil {
		return err
	}

	opts.logger.Info("watching for changes", "dirs", strings.Join(dirs, ","))
	<-w.Done()
	return nil
}

// extensions returns the file extensions claimed by the named languages,
// or by every registered language when languages is empty.
func extensions(languages []string) []string {
	var exts []string
	for name, l := range lang.Languages {
		if len(languages) > 0 && !slices.Contains(languages, name) {
			continue
		}
		exts = append(exts, l.Extensions...)
	}
	sort.Strings(exts)
	return exts
}

// relative shortens an absolute path to one relative to the working
// directory when possible.
func relative(path string) string {
	wd, err := os.Getwd()
	if err != nil {
		return path
	}
	rel, err := filepath.Rel(wd, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

func workspaceName(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Base(path)
	}
	info, err := os.Stat(abs)
	if err == nil && !info.IsDir() {
		abs = filepath.Dir(abs)
	}
	return filepath.Base(abs)
}
