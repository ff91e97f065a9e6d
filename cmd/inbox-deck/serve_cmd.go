package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/asheshgoplani/inbox-deck/internal/config"
	"github.com/asheshgoplani/inbox-deck/internal/logging"
	"github.com/asheshgoplani/inbox-deck/internal/service"
	"github.com/asheshgoplani/inbox-deck/internal/watch"
	"github.com/asheshgoplani/inbox-deck/internal/web"
)

// serveOptions are the serve flags, defaulted from the profile config.
type serveOptions struct {
	listen   string
	token    string
	readOnly bool
}

func parseServeFlags(cfg *config.Config, args []string, out io.Writer) (serveOptions, error) {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(out)
	opts := serveOptions{}
	fs.StringVar(&opts.listen, "listen", cfg.Server.Listen, "Listen address for the HTTP API")
	fs.StringVar(&opts.token, "token", cfg.Server.Token, "Bearer token for API/WS access")
	fs.BoolVar(&opts.readOnly, "read-only", cfg.Server.ReadOnly, "Reject writes with 403")

	fs.Usage = func() {
		fmt.Fprintln(out, "Usage: inbox-deck serve [options]")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Run the HTTP API, the event stream and the configured file watchers.")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Options:")
		fs.PrintDefaults()
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Examples:")
		fmt.Fprintln(out, "  inbox-deck serve")
		fmt.Fprintln(out, "  inbox-deck -p office serve --listen 127.0.0.1:9000 --token s3cret")
		fmt.Fprintln(out, "  inbox-deck serve --read-only")
	}

	if err := parseFlags(fs, args); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

func handleServe(ctx context.Context, profile string, args []string, stdout io.Writer) error {
	a, err := openApp(profile)
	if err != nil {
		return err
	}
	defer a.Close()

	opts, err := parseServeFlags(a.cfg, args, stdout)
	if err != nil {
		return err
	}

	server := web.NewServer(web.Config{
		ListenAddr: opts.listen,
		Profile:    a.cfg.Profile,
		Token:      opts.token,
		ReadOnly:   opts.readOnly,
		RateLimit:  a.cfg.Server.RateLimit,
		Burst:      a.cfg.Server.Burst,
		Service:    a.svc,
		Bus:        a.bus,
	})

	watcher, err := buildWatcher(ctx, a.cfg.Watch, a.svc)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	fmt.Fprintf(stdout, "inbox-deck API: http://%s (profile %s)\n", opts.listen, a.cfg.Profile)
	fmt.Fprintln(stdout, "Press Ctrl+C to stop.")

	g.Go(server.Start)
	if watcher != nil {
		g.Go(func() error { return watcher.Run(ctx) })
	}
	g.Go(func() error {
		<-ctx.Done()
		fmt.Fprintln(stdout, "\nShutting down...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// buildWatcher imports the configured files once and returns a watcher that
// re-imports them on change. It returns nil when nothing is configured.
func buildWatcher(ctx context.Context, cfg config.WatchConfig, svc *service.Service) (*watch.Watcher, error) {
	if cfg.ProjectsFile == "" && cfg.InboxFile == "" {
		return nil, nil
	}
	log := logging.ForComponent(logging.CompWatch)

	w, err := watch.New(watch.DefaultDebounce)
	if err != nil {
		return nil, err
	}

	targets := []struct {
		path     string
		kind     string
		importFn func(context.Context, string) (int, error)
	}{
		{cfg.ProjectsFile, "projects", svc.ImportProjects},
		{cfg.InboxFile, "emails", svc.ImportEmails},
	}
	for _, t := range targets {
		if t.path == "" {
			continue
		}
		load := func(ctx context.Context, path string) error {
			n, err := t.importFn(ctx, path)
			if err != nil {
				return err
			}
			log.Info("watch_imported", slog.String("kind", t.kind), slog.String("path", path), slog.Int("count", n))
			return nil
		}
		if _, err := os.Stat(t.path); err == nil {
			if err := load(ctx, t.path); err != nil {
				log.Warn("watch_initial_import_failed", slog.String("path", t.path), slog.String("error", err.Error()))
			}
		}
		if err := w.Add(t.path, load); err != nil {
			_ = w.Close()
			return nil, err
		}
	}
	return w, nil
}
