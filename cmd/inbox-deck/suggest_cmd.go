package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/asheshgoplani/inbox-deck/internal/hub"
)

var (
	tableHeaderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("51")).Bold(true)
	tableRankStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	tableCodeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
)

func handleSuggest(ctx context.Context, profile string, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("suggest", flag.ContinueOnError)
	fs.SetOutput(stdout)
	limit := fs.Int("limit", 5, "Maximum number of suggestions (0 = all)")
	asJSON := fs.Bool("json", false, "Print suggestions as JSON")
	fs.Usage = func() {
		fmt.Fprintln(stdout, "Usage: inbox-deck suggest [options] <email.json|->")
		fmt.Fprintln(stdout)
		fmt.Fprintln(stdout, "Rank the stored projects for one email. The email uses the same JSON")
		fmt.Fprintln(stdout, "shape as POST /api/emails; '-' reads it from stdin. Nothing is stored.")
		fmt.Fprintln(stdout)
		fmt.Fprintln(stdout, "Options:")
		fs.PrintDefaults()
	}
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("expected exactly one email file")
	}
	if *limit < 0 {
		return fmt.Errorf("--limit must be >= 0")
	}

	email, err := readEmail(fs.Arg(0), stdin)
	if err != nil {
		return err
	}

	a, err := openApp(profile)
	if err != nil {
		return err
	}
	defer a.Close()

	projects, err := a.svc.Projects(ctx)
	if err != nil {
		return err
	}
	suggestions := hub.SuggestLimit(email, projects, *limit)

	if *asJSON {
		if suggestions == nil {
			suggestions = []*hub.Project{}
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"suggestions": suggestions})
	}

	styled, width := false, 0
	if f, ok := stdout.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		styled = true
		if w, _, err := term.GetSize(int(f.Fd())); err == nil {
			width = w
		}
	}
	renderSuggestions(stdout, suggestions, styled, width)
	return nil
}

func readEmail(path string, stdin io.Reader) (*hub.Email, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var e hub.Email
	if err := json.NewDecoder(r).Decode(&e); err != nil {
		return nil, fmt.Errorf("decode email: %w", err)
	}
	return &e, nil
}

// renderSuggestions prints a ranked table. width <= 0 disables truncation.
func renderSuggestions(w io.Writer, projects []*hub.Project, styled bool, width int) {
	if len(projects) == 0 {
		fmt.Fprintln(w, "No matching projects.")
		return
	}

	headers := []string{"#", "ID", "NAME", "CODE", "LOCATION"}
	rows := make([][]string, len(projects))
	for i, p := range projects {
		rows[i] = []string{strconv.Itoa(i + 1), p.ID, p.Name, p.Code, p.Address.LocationText()}
	}

	widths := make([]int, len(headers))
	for c, h := range headers {
		widths[c] = runewidth.StringWidth(h)
		for _, row := range rows {
			widths[c] = max(widths[c], runewidth.StringWidth(row[c]))
		}
	}
	// Shrink the trailing location column to fit the terminal.
	if width > 0 {
		used := 0
		for _, cw := range widths[:len(widths)-1] {
			used += cw + 2
		}
		last := len(widths) - 1
		widths[last] = max(min(widths[last], width-used), len(headers[last]))
	}

	line := func(cells []string, style func(col int, s string) string) string {
		parts := make([]string, len(cells))
		for c, cell := range cells {
			cell = runewidth.FillRight(runewidth.Truncate(cell, widths[c], "…"), widths[c])
			parts[c] = style(c, cell)
		}
		return strings.TrimRight(strings.Join(parts, "  "), " ")
	}

	plain := func(_ int, s string) string { return s }
	headerFn, rowFn := plain, plain
	if styled {
		headerFn = func(_ int, s string) string { return tableHeaderStyle.Render(s) }
		rowFn = func(col int, s string) string {
			switch col {
			case 0:
				return tableRankStyle.Render(s)
			case 3:
				return tableCodeStyle.Render(s)
			}
			return s
		}
	}

	fmt.Fprintln(w, line(headers, headerFn))
	for _, row := range rows {
		fmt.Fprintln(w, line(row, rowFn))
	}
}
