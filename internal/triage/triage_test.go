package triage

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/inbox-deck/internal/hub"
)

func str(s string) *string { return &s }

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m Model, keys ...string) (Model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, k := range keys {
		var next tea.Model
		next, cmd = m.Update(keyMsg(k))
		m = next.(Model)
	}
	return m, cmd
}

func testItems() []Item {
	river := &hub.Project{ID: "river", Name: "Riverside", Code: "4521-B"}
	mainSt := &hub.Project{ID: "main", Name: "Main St Remodel"}
	return []Item{
		{
			Email:       &hub.Email{ID: "e1", Subject: str("Permit for 4521-B"), FromName: str("Dana"), FromEmail: str("dana@example.com")},
			Suggestions: []*hub.Project{river, mainSt},
		},
		{
			Email: &hub.Email{ID: "e2", Subject: str("Lunch?")},
		},
		{
			Email:       &hub.Email{ID: "e3", Snippet: str("123 Main tomorrow")},
			Suggestions: []*hub.Project{mainSt},
		},
	}
}

func TestModel_LinkSkipAndFinish(t *testing.T) {
	m := NewModel(testItems())
	assert.Nil(t, m.Init())

	m, cmd := press(t, m, "down", "enter")
	assert.Nil(t, cmd)
	assert.Equal(t, []Decision{{EmailID: "e1", ProjectID: "main"}}, m.Decisions())

	// Enter on an email without suggestions does nothing.
	m, _ = press(t, m, "enter")
	assert.Equal(t, 1, m.index)

	m, _ = press(t, m, "s")
	m, cmd = press(t, m, "enter")
	require.NotNil(t, cmd)
	assert.True(t, m.Done())
	assert.Equal(t, []Decision{
		{EmailID: "e1", ProjectID: "main"},
		{EmailID: "e3", ProjectID: "main"},
	}, m.Decisions())
	assert.Contains(t, m.View(), "linked")
}

func TestModel_CursorBounds(t *testing.T) {
	m := NewModel(testItems())

	m, _ = press(t, m, "up")
	assert.Equal(t, 0, m.cursor)

	m, _ = press(t, m, "down", "down", "down")
	assert.Equal(t, 1, m.cursor)

	m, _ = press(t, m, "k")
	assert.Equal(t, 0, m.cursor)

	m, _ = press(t, m, "s")
	assert.Equal(t, 0, m.cursor, "cursor resets for the next email")
}

func TestModel_Quit(t *testing.T) {
	m := NewModel(testItems())
	m, cmd := press(t, m, "q")
	require.NotNil(t, cmd)
	assert.True(t, m.quitting)
	assert.Empty(t, m.Decisions())
}

func TestModel_EmptyQuitsImmediately(t *testing.T) {
	m := NewModel(nil)
	assert.True(t, m.Done())
	assert.NotNil(t, m.Init())
}

func TestModel_View(t *testing.T) {
	m := NewModel(testItems())
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	m = next.(Model)

	view := m.View()
	assert.Contains(t, view, "Triage 1/3")
	assert.Contains(t, view, "Permit for 4521-B")
	assert.Contains(t, view, "Dana <dana@example.com>")
	assert.Contains(t, view, "> Riverside (4521-B)")
	assert.Contains(t, view, "Main St Remodel")
	assert.Contains(t, view, "enter")
	assert.Contains(t, view, "link")
	assert.Contains(t, view, "skip")
	assert.Contains(t, view, "quit")

	m, _ = press(t, m, "s")
	view = m.View()
	assert.Contains(t, view, "No matching projects")
	assert.Contains(t, view, "(none)")
	assert.NotContains(t, view, "link", "nothing to link without suggestions")
	assert.Contains(t, view, "skip")
}

func TestModel_AlternateBindings(t *testing.T) {
	m := NewModel(testItems())

	m, _ = press(t, m, "j")
	assert.Equal(t, 1, m.cursor)

	m, _ = press(t, m, "enter", "n")
	assert.Equal(t, 2, m.index)
	assert.Equal(t, 1, m.skipped)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = next.(Model)
	require.NotNil(t, cmd)
	assert.True(t, m.quitting)
	assert.Equal(t, []Decision{{EmailID: "e1", ProjectID: "main"}}, m.Decisions())
}

func TestField_Truncates(t *testing.T) {
	long := "a very long subject line that keeps going and going"
	out := field("Subject", &long, 24)
	assert.NotContains(t, out, "going and going")
	assert.Contains(t, out, "…")
}
