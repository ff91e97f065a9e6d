// Package triage is the terminal UI for confirming suggested projects one
// unlinked email at a time.
package triage

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/asheshgoplani/inbox-deck/internal/hub"
)

const defaultWidth = 80

// Item is one email awaiting a decision together with its ranked suggestions.
type Item struct {
	Email       *hub.Email
	Suggestions []*hub.Project
}

// Decision records the project chosen for an email.
type Decision struct {
	EmailID   string
	ProjectID string
}

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	footerKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(1, 2)
)

type keyMap struct {
	Up   key.Binding
	Down key.Binding
	Link key.Binding
	Skip key.Binding
	Quit key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Link, k.Skip, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Up, k.Down}, {k.Link, k.Skip, k.Quit}}
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Link: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "link"),
		),
		Skip: key.NewBinding(
			key.WithKeys("s", "n"),
			key.WithHelp("s", "skip"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// Model is the bubbletea model driving a triage session.
type Model struct {
	items     []Item
	index     int
	cursor    int
	decisions []Decision
	skipped   int
	width     int
	quitting  bool

	keys keyMap
	help help.Model
}

// NewModel creates a model over items, which are presented in order.
func NewModel(items []Item) Model {
	h := help.New()
	h.Width = defaultWidth
	h.Styles.ShortKey = footerKeyStyle
	h.Styles.ShortDesc = dimStyle
	h.Styles.ShortSeparator = dimStyle
	return Model{items: items, width: defaultWidth, keys: defaultKeyMap(), help: h}
}

// Decisions returns the confirmed links in the order they were made.
func (m Model) Decisions() []Decision {
	return m.decisions
}

// Done reports whether every item has been decided or skipped.
func (m Model) Done() bool {
	return m.index >= len(m.items)
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	if m.Done() {
		return tea.Quit
	}
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, m.keys.Down):
			if !m.Done() && m.cursor < len(m.items[m.index].Suggestions)-1 {
				m.cursor++
			}
		case key.Matches(msg, m.keys.Link):
			if m.Done() {
				return m, tea.Quit
			}
			item := m.items[m.index]
			if len(item.Suggestions) == 0 {
				return m, nil
			}
			m.decisions = append(m.decisions, Decision{
				EmailID:   item.Email.ID,
				ProjectID: item.Suggestions[m.cursor].ID,
			})
			return m.advance()
		case key.Matches(msg, m.keys.Skip):
			if m.Done() {
				return m, tea.Quit
			}
			m.skipped++
			return m.advance()
		}
	}
	return m, nil
}

func (m Model) advance() (tea.Model, tea.Cmd) {
	m.index++
	m.cursor = 0
	if m.Done() {
		return m, tea.Quit
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting || m.Done() {
		return m.summary()
	}

	item := m.items[m.index]
	inner := m.width - 8
	if inner < 20 {
		inner = 20
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf(" Triage %d/%d ", m.index+1, len(m.items))))
	b.WriteString("\n\n")
	b.WriteString(field("Subject", item.Email.Subject, inner))
	b.WriteString(field("From", from(item.Email), inner))
	b.WriteString(field("Snippet", item.Email.Snippet, inner))
	b.WriteString("\n")

	if len(item.Suggestions) == 0 {
		b.WriteString(dimStyle.Render("No matching projects. Press s to skip."))
		b.WriteString("\n")
	}
	for i, p := range item.Suggestions {
		line := p.Name
		if p.Code != "" {
			line += " (" + p.Code + ")"
		}
		line = runewidth.Truncate(line, inner-2, "…")
		if i == m.cursor {
			b.WriteString(selectedStyle.Render("> " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.help.View(m.itemKeys(item)))

	return containerStyle.Render(b.String())
}

// itemKeys hides the bindings that do nothing for item.
func (m Model) itemKeys(item Item) keyMap {
	k := m.keys
	k.Link.SetEnabled(len(item.Suggestions) > 0)
	k.Up.SetEnabled(len(item.Suggestions) > 1)
	k.Down.SetEnabled(len(item.Suggestions) > 1)
	return k
}

func (m Model) summary() string {
	return fmt.Sprintf("%s linked, %s skipped\n",
		valueStyle.Render(fmt.Sprint(len(m.decisions))),
		valueStyle.Render(fmt.Sprint(m.skipped)))
}

func field(label string, value *string, width int) string {
	text := dimStyle.Render("(none)")
	if value != nil {
		v := strings.Join(strings.Fields(*value), " ")
		text = valueStyle.Render(runewidth.Truncate(v, width-len(label)-2, "…"))
	}
	return labelStyle.Render(label+": ") + text + "\n"
}

func from(e *hub.Email) *string {
	switch {
	case e.FromName != nil && e.FromEmail != nil:
		s := *e.FromName + " <" + *e.FromEmail + ">"
		return &s
	case e.FromName != nil:
		return e.FromName
	default:
		return e.FromEmail
	}
}
