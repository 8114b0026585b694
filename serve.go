package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/phobologic/bdcompanion/internal/bridge"
	"github.com/phobologic/bdcompanion/internal/config"
	"github.com/phobologic/bdcompanion/internal/console"
)

// runServe implements `bdcompanion serve`: it starts the bridge and, unless
// --no-console is given, an interactive console on stdin/stdout.
func runServe(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("bdcompanion serve", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		common    commonFlags
		host      string
		port      int
		policy    string
		noConsole bool
	)

	common.register(fs)
	fs.StringVar(&host, "host", "", "listen host (default from config)")
	fs.IntVar(&port, "port", -1, "listen port, 0 picks a free one (default from config)")
	fs.StringVar(&policy, "peer-policy", "", "second client handling: replace or reject (default from config)")
	fs.BoolVar(&noConsole, "no-console", false, "run without the interactive console")

	if err := fs.Parse(reorderArgs(args)); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("serve takes no arguments, got %q", fs.Arg(0))
	}

	cfg, err := loadConfig(common.configFile)
	if err != nil {
		return err
	}
	if host != "" {
		cfg.Bridge.Host = host
	}
	if policy != "" {
		cfg.Bridge.PeerPolicy = strings.ToLower(policy)
		if err := config.Validate(cfg); err != nil {
			return err
		}
	}
	if port > 65535 {
		return fmt.Errorf("%w: %d", config.ErrInvalidPort, port)
	}
	if port >= 0 {
		cfg.Bridge.Port = port
	}

	logger := newLogger(stderr, cfg.Log.Level, common.verbose)
	sourceFor, err := newSourceFor(cfg.Extract)
	if err != nil {
		return err
	}

	con := console.New(console.Options{
		In:        stdin,
		Out:       stdout,
		Logger:    logger,
		SourceFor: sourceFor,
	})

	opts := bridge.OptionsFromConfig(cfg.Bridge)
	opts.Logger = logger.WithPrefix("bridge")
	opts.Notifier = console.NewNotifier(log.NewWithOptions(stdout, log.Options{}))
	opts.Opener = console.NewFileOpener(cfg.Source, logger)
	if !noConsole {
		opts.Picker = con
	}

	m := bridge.New(opts)
	if err := m.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = m.Close() }()

	_, _ = fmt.Fprintf(stdout, "Listening on ws://%s\n", m.Addr())

	if noConsole {
		select {
		case <-ctx.Done():
		case <-m.Done():
		}
		return nil
	}
	_, _ = fmt.Fprintln(stdout, `Type "help" for commands.`)
	return con.Run(ctx, m)
}
