// Package main provides the HearMe companion CLI: a terminal client that talks to
// the relay through the backend resolver.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/hearme/internal/config"
	"github.com/thebtf/hearme/internal/logging"
	"github.com/thebtf/hearme/pkg/backend"
)

// Version is set at build time via ldflags.
var Version = "dev"

// errUsage marks invalid command lines; the usage text has already been printed.
var errUsage = errors.New("usage")

const usage = `Usage: companion [flags] <command> [args]

Commands:
  chat        [-user ID]                 interactive conversation
  predict     [-user ID] TEXT            classify one message
  health                                 shallow health of the bound relay
  deep-health                            component health of the bound relay
  switch      URL                        bind to URL if it is healthy
  mood        -patient ID -mood NAME [-activities a,b]
  insights    -patient ID                ranked activities and suggestions
  stats       [-patient ID]              mood averages, or relay stats without -patient
  recommend   -scale N                   activities suggested for a mood scale

Flags:
`

// app holds what every command needs.
type app struct {
	resolver     *backend.Resolver
	metrics      *backend.Recorder
	in           io.Reader
	out          io.Writer
	settingsPath string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

// run parses the global flags, builds the resolver and dispatches the command.
func run(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	fs := flag.NewFlagSet("companion", flag.ContinueOnError)
	fs.SetOutput(out)
	backends := fs.String("backends", "", "comma-separated relay URLs (overrides settings)")
	debug := fs.Bool("debug", false, "enable debug logging")
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	cfg := config.Get()
	level := cfg.LogLevel
	if *debug {
		level = "debug"
	}
	logCloser := logging.Setup(logging.Options{File: cfg.LogFile, Level: level})
	defer logCloser.Close()

	candidates := cfg.BackendURLs
	if *backends != "" {
		candidates = strings.Split(*backends, ",")
	}

	metrics := backend.NewRecorder()
	defer func() { _ = metrics.Shutdown(context.Background()) }()

	a := &app{
		resolver: backend.New(backend.Config{
			Candidates:     candidates,
			ProbeTimeout:   cfg.ProbeTimeout,
			RequestTimeout: cfg.RequestTimeout,
			LogTimeout:     cfg.LogTimeout,
			Headers:        map[string]string{"X-Client": "companion/" + Version},
			MeterProvider:  metrics.MeterProvider(),
		}),
		metrics:      metrics,
		in:           in,
		out:          out,
		settingsPath: config.SettingsPath(),
	}
	// An explicit -backends list is not replaced by settings reloads.
	if *backends != "" {
		a.settingsPath = ""
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return errUsage
	}
	cmd, cmdArgs := rest[0], rest[1:]
	log.Debug().Str("command", cmd).Strs("candidates", a.resolver.Candidates()).Msg("Running command")

	switch cmd {
	case "chat":
		return a.chat(ctx, cmdArgs)
	case "predict":
		return a.predict(ctx, cmdArgs)
	case "health":
		return a.health(ctx, false)
	case "deep-health":
		return a.health(ctx, true)
	case "switch":
		return a.switchBackend(ctx, cmdArgs)
	case "mood":
		return a.recordMood(ctx, cmdArgs)
	case "insights":
		return a.insights(ctx, cmdArgs)
	case "stats":
		return a.stats(ctx, cmdArgs)
	case "recommend":
		return a.recommend(ctx, cmdArgs)
	default:
		fmt.Fprintf(out, "unknown command %q\n\n", cmd)
		fs.Usage()
		return errUsage
	}
}

// printJSON writes v as indented JSON.
func (a *app) printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.out, string(data))
	return err
}

// newFlagSet creates a subcommand flag set that reports to the app's output.
func (a *app) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	return fs
}
