package inbox

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEmails_SkipsBlankAndMalformed(t *testing.T) {
	input := strings.Join([]string{
		`{"id":"e1","message_id":"<1@x>","subject":"Permit 4521-B","from_email":"pm@x.example","received_at":"2026-01-02T03:04:05Z"}`,
		``,
		`not json`,
		`{"id":"e2","in_reply_to":"<1@x>","subject":null,"snippet":"see attached"}`,
	}, "\n")

	emails, err := DecodeEmails(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, emails, 2)

	e1 := emails[0]
	assert.Equal(t, "e1", e1.ID)
	assert.Equal(t, "<1@x>", e1.MessageID)
	require.NotNil(t, e1.Subject)
	assert.Equal(t, "Permit 4521-B", *e1.Subject)
	assert.Nil(t, e1.FromName)
	assert.True(t, e1.ReceivedAt.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))

	e2 := emails[1]
	assert.Equal(t, "<1@x>", e2.InReplyTo)
	assert.Nil(t, e2.Subject, "null decodes as absent")
	require.NotNil(t, e2.Snippet)
	assert.Equal(t, "see attached", *e2.Snippet)
}

func TestReadEmails_MissingFile(t *testing.T) {
	_, err := ReadEmails(filepath.Join(t.TempDir(), "nope.jsonl"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadProjects_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projects.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[[project]]
id = "river"
name = "Riverside"
code = "4521-B"
keywords = ["permit"]

[project.address]
street = "123 Main Street"
city = "Springfield"

[[project]]
name = "Office"
`), 0o644))

	projects, err := ReadProjects(path)
	require.NoError(t, err)
	require.Len(t, projects, 2)
	assert.Equal(t, "river", projects[0].ID)
	assert.Equal(t, "4521-B", projects[0].Code)
	assert.Equal(t, []string{"permit"}, projects[0].Keywords)
	assert.Equal(t, "123 Main Street, Springfield", projects[0].Address.LocationText())
	assert.Equal(t, "Office", projects[1].Name)
	assert.Nil(t, projects[1].Address)
}

func TestReadProjects_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projects.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id":"p1","name":"Harbor View","code":"7781","address":{"street":"9 Pier Rd"}}]`), 0o644))

	projects, err := ReadProjects(path)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "Harbor View", projects[0].Name)
	assert.Equal(t, "9 Pier Rd", projects[0].Address.LocationText())
}

func TestReadProjects_Invalid(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[[project]\nname="), 0o644))
	_, err := ReadProjects(bad)
	assert.Error(t, err)

	badJSON := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(badJSON, []byte("{"), 0o644))
	_, err = ReadProjects(badJSON)
	assert.Error(t, err)
}
