// Command inbox-deck suggests which project an inbound email belongs to and
// records the associations people confirm.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/asheshgoplani/inbox-deck/internal/config"
	"github.com/asheshgoplani/inbox-deck/internal/eventbus"
	"github.com/asheshgoplani/inbox-deck/internal/logging"
	"github.com/asheshgoplani/inbox-deck/internal/service"
	"github.com/asheshgoplani/inbox-deck/internal/store"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run dispatches a subcommand and returns the process exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	profile, args := extractProfileFlag(args)
	if len(args) == 0 {
		printUsage(stderr)
		return 2
	}

	cmd, rest := args[0], args[1:]
	var err error
	switch cmd {
	case "serve":
		err = handleServe(ctx, profile, rest, stdout)
	case "suggest":
		err = handleSuggest(ctx, profile, rest, stdin, stdout)
	case "import":
		err = handleImport(ctx, profile, rest, stdout)
	case "triage":
		err = handleTriage(ctx, profile, rest, stdin, stdout)
	case "version", "--version", "-v":
		fmt.Fprintf(stdout, "inbox-deck %s\n", Version)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Error: unknown command %q\n\n", cmd)
		printUsage(stderr)
		return 2
	}
	if err != nil {
		if errors.Is(err, errHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: inbox-deck [-p profile] <command> [options]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve                       Run the HTTP API and file watchers")
	fmt.Fprintln(w, "  suggest <email.json|->      Rank stored projects for one email")
	fmt.Fprintln(w, "  import projects|emails <f>  Bulk load projects (TOML/JSON) or emails (JSONL)")
	fmt.Fprintln(w, "  triage                      Confirm suggestions for unlinked emails")
	fmt.Fprintln(w, "  version                     Print the version")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'inbox-deck <command> --help' for command options.")
}

// app holds the pieces every command opens.
type app struct {
	cfg   *config.Config
	store *store.Store
	bus   *eventbus.EventBus
	svc   *service.Service
}

func openApp(profile string) (*app, error) {
	cfg, err := config.Load(profile)
	if err != nil {
		return nil, err
	}
	if err := logging.Init(cfg.Log); err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		_ = logging.Shutdown()
		return nil, err
	}
	bus := eventbus.New()
	return &app{cfg: cfg, store: st, bus: bus, svc: service.New(st, bus)}, nil
}

func (a *app) Close() error {
	err := a.store.Close()
	_ = logging.Shutdown()
	return err
}
