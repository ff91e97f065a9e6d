package main

import (
	"context"
	"flag"
	"fmt"
	"io"
)

func handleImport(ctx context.Context, profile string, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.SetOutput(stdout)
	fs.Usage = func() {
		fmt.Fprintln(stdout, "Usage: inbox-deck import projects|emails <file>")
		fmt.Fprintln(stdout)
		fmt.Fprintln(stdout, "  projects  TOML ([[project]] tables) or a JSON array (.json)")
		fmt.Fprintln(stdout, "  emails    JSONL mailbox export, one email per line")
	}
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		fs.Usage()
		return fmt.Errorf("expected a kind and a file")
	}
	kind, path := fs.Arg(0), fs.Arg(1)

	a, err := openApp(profile)
	if err != nil {
		return err
	}
	defer a.Close()

	var n int
	switch kind {
	case "projects":
		n, err = a.svc.ImportProjects(ctx, path)
	case "emails":
		n, err = a.svc.ImportEmails(ctx, path)
	default:
		return fmt.Errorf("unknown import kind %q (want projects or emails)", kind)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Imported %d %s from %s\n", n, kind, path)
	return nil
}
