package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/asheshgoplani/inbox-deck/internal/logging"
	"github.com/asheshgoplani/inbox-deck/internal/triage"
)

func handleTriage(ctx context.Context, profile string, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("triage", flag.ContinueOnError)
	fs.SetOutput(stdout)
	limit := fs.Int("limit", 5, "Suggestions shown per email")
	fs.Usage = func() {
		fmt.Fprintln(stdout, "Usage: inbox-deck triage [options]")
		fmt.Fprintln(stdout)
		fmt.Fprintln(stdout, "Step through unlinked emails and confirm a suggested project for each.")
		fmt.Fprintln(stdout)
		fmt.Fprintln(stdout, "Options:")
		fs.PrintDefaults()
	}
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	a, err := openApp(profile)
	if err != nil {
		return err
	}
	defer a.Close()

	emails, err := a.svc.Emails(ctx, true)
	if err != nil {
		return err
	}
	if len(emails) == 0 {
		fmt.Fprintln(stdout, "Nothing to triage.")
		return nil
	}

	items := make([]triage.Item, 0, len(emails))
	for _, e := range emails {
		suggestions, err := a.svc.Suggestions(ctx, e.ID, *limit)
		if err != nil {
			return err
		}
		items = append(items, triage.Item{Email: e, Suggestions: suggestions})
	}

	final, err := tea.NewProgram(triage.NewModel(items),
		tea.WithContext(ctx),
		tea.WithInput(stdin),
		tea.WithOutput(stdout),
	).Run()
	if err != nil {
		return fmt.Errorf("triage: %w", err)
	}

	log := logging.ForComponent(logging.CompCLI)
	linked := 0
	for _, d := range final.(triage.Model).Decisions() {
		if err := a.svc.Link(ctx, d.EmailID, d.ProjectID); err != nil {
			log.Error("triage_link_failed",
				slog.String("email_id", d.EmailID),
				slog.String("project_id", d.ProjectID),
				slog.String("error", err.Error()))
			continue
		}
		linked++
	}
	fmt.Fprintf(stdout, "Linked %d of %d emails.\n", linked, len(items))
	return nil
}
