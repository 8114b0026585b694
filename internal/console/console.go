// Package console is the terminal front end of the bridge: it presents
// status messages, module menus and module source, and reads commands that
// send requests to the connected client.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/phobologic/bdcompanion/internal/bridge"
	"github.com/phobologic/bdcompanion/internal/extract"
	"github.com/phobologic/bdcompanion/internal/model"
)

const prompt = "> "

// Bridge is the part of the connection manager the console drives.
type Bridge interface {
	Connected(ctx context.Context) bool
	Trigger(ctx context.Context, a model.Action) error
	SendCommand(ctx context.Context, action model.Command, query []string, patternType string, opts model.Options) error
}

// Options configures a Console.
type Options struct {
	In     io.Reader
	Out    io.Writer
	Logger *log.Logger
	// SourceFor returns the extractor used for a scanned file.
	SourceFor func(path string) extract.Source
}

// Console reads commands line by line. It also implements bridge.Picker:
// while a menu is open the next input line answers it.
type Console struct {
	in        io.Reader
	logger    *log.Logger
	sourceFor func(path string) extract.Source

	outMu sync.Mutex
	out   io.Writer

	picks chan chan string
	done  chan struct{}

	// owned by Run
	bridge  Bridge
	scanned string
	actions []model.Action
}

var _ bridge.Picker = (*Console)(nil)

// New returns a Console. Call Run to start reading commands.
func New(opts Options) *Console {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.SourceFor == nil {
		def := extract.Default()
		opts.SourceFor = func(string) extract.Source { return def }
	}
	return &Console{
		in:        opts.In,
		out:       opts.Out,
		logger:    opts.Logger,
		sourceFor: opts.SourceFor,
		picks:     make(chan chan string),
		done:      make(chan struct{}),
	}
}

// Run reads and executes commands against b until quit, end of input or
// ctx is cancelled.
func (c *Console) Run(ctx context.Context, b Bridge) error {
	defer close(c.done)
	c.bridge = b
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
		close(lines)
	}()

	c.printf("%s", prompt)
	var pending chan<- string
	for {
		select {
		case <-ctx.Done():
			return nil
		case reply := <-c.picks:
			// A newer menu supersedes one still waiting for an answer.
			if pending != nil {
				pending <- ""
			}
			pending = reply
		case line, ok := <-lines:
			if !ok {
				if pending != nil {
					pending <- ""
				}
				return <-readErr
			}
			if pending != nil {
				pending <- line
				pending = nil
				c.printf("%s", prompt)
				continue
			}
			if c.exec(ctx, line) {
				return nil
			}
			c.printf("%s", prompt)
		}
	}
}

// Pick shows items as a numbered menu and waits for the next input line.
// A blank or invalid answer selects nothing.
func (c *Console) Pick(ctx context.Context, items []bridge.PickItem) (int, bool, error) {
	reply := make(chan string, 1)
	select {
	case c.picks <- reply:
	case <-ctx.Done():
		return 0, false, ctx.Err()
	case <-c.done:
		return 0, false, nil
	}

	// Shown only once Run routes the next line here.
	var b strings.Builder
	b.WriteString("\nSelect a module (blank to cancel):\n")
	for i, it := range items {
		fmt.Fprintf(&b, "  [%d] %s  %s\n", i+1, it.Label, it.Detail)
	}
	b.WriteString("select> ")
	c.printf("%s", b.String())

	var answer string
	select {
	case answer = <-reply:
	case <-ctx.Done():
		return 0, false, ctx.Err()
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(answer)
	if err != nil || n < 1 || n > len(items) {
		c.printf("invalid selection %q\n", answer)
		return 0, false, nil
	}
	return n - 1, true, nil
}

// exec runs one command line and reports whether the console should stop.
func (c *Console) exec(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "quit", "exit":
		return true
	case "help":
		c.printf("%s", helpText)
	case "status":
		if c.bridge.Connected(ctx) {
			c.printf("BetterDiscord: connected\n")
		} else {
			c.printf("BetterDiscord: not connected\n")
		}
	case "scan":
		if len(args) != 1 {
			c.printf("usage: scan <file>\n")
			return false
		}
		c.scan(args[0])
	case "run":
		c.run(ctx, args)
	case "find":
		c.send(ctx, model.TryFind, args)
	case "source":
		c.send(ctx, model.OpenSource, args)
	default:
		c.printf("unknown command %q (try help)\n", cmd)
	}
	return false
}

func (c *Console) scan(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		c.printf("error: %v\n", err)
		return
	}
	c.scanned = path
	c.actions = c.sourceFor(path).Extract(string(data))
	c.logger.Debug("scanned file", "path", path, "actions", len(c.actions))
	if len(c.actions) == 0 {
		c.printf("no lookups found in %s\n", path)
		return
	}
	for i, a := range c.actions {
		c.printf("  [%d] line %d  %s  %s %s\n", i+1, a.Range.Line+1, a.Title, a.PatternType, strings.Join(a.Query, ", "))
	}
}

func (c *Console) run(ctx context.Context, args []string) {
	if len(args) != 1 {
		c.printf("usage: run <n>\n")
		return
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(c.actions) {
		if len(c.actions) == 0 {
			c.printf("nothing scanned yet (use scan <file>)\n")
		} else {
			c.printf("no action %q in %s (1-%d)\n", args[0], c.scanned, len(c.actions))
		}
		return
	}
	c.report(c.bridge.Trigger(ctx, c.actions[n-1]))
}

func (c *Console) send(ctx context.Context, action model.Command, keys []string) {
	if len(keys) == 0 {
		c.printf("usage: %s <key...>\n", commandName(action))
		return
	}
	c.report(c.bridge.SendCommand(ctx, action, keys, "keys", nil))
}

// report prints errors the bridge has not already shown on the status
// channel.
func (c *Console) report(err error) {
	if err == nil || errors.Is(err, bridge.ErrNotConnected) {
		return
	}
	c.printf("error: %v\n", err)
}

func (c *Console) printf(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	_, _ = fmt.Fprintf(c.out, format, args...)
}

func commandName(action model.Command) string {
	if action == model.OpenSource {
		return "source"
	}
	return "find"
}

const helpText = `Commands:
  scan <file>       list the BetterDiscord lookups in a file
  run <n>           send action n from the last scan
  find <key...>     ask BetterDiscord to find a module by keys
  source <key...>   open the source of the module with these keys
  status            show whether BetterDiscord is connected
  help              show this help
  quit              stop the server
`
