// Package inbox decodes mailbox exports and project lists for bulk import.
package inbox

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/asheshgoplani/inbox-deck/internal/hub"
)

// maxLineSize is the maximum line buffer size for reading JSONL files (10 MB).
const maxLineSize = 10 * 1024 * 1024

// emailRecord is one line of a mailbox export.
type emailRecord struct {
	ID         string    `json:"id"`
	MessageID  string    `json:"message_id"`
	InReplyTo  string    `json:"in_reply_to"`
	Subject    *string   `json:"subject"`
	FromEmail  *string   `json:"from_email"`
	FromName   *string   `json:"from_name"`
	Snippet    *string   `json:"snippet"`
	ReceivedAt time.Time `json:"received_at"`
	ProjectID  string    `json:"project_id"`
}

// ReadEmails reads a JSONL mailbox export from path.
func ReadEmails(path string) ([]*hub.Email, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	emails, err := DecodeEmails(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return emails, nil
}

// DecodeEmails parses one JSON email per line. Blank and malformed lines are
// skipped. JSON null and missing fields both decode as absent.
func DecodeEmails(r io.Reader) ([]*hub.Email, error) {
	var emails []*hub.Email
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}

		var rec emailRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		emails = append(emails, &hub.Email{
			ID:         rec.ID,
			MessageID:  rec.MessageID,
			InReplyTo:  rec.InReplyTo,
			Subject:    rec.Subject,
			FromEmail:  rec.FromEmail,
			FromName:   rec.FromName,
			Snippet:    rec.Snippet,
			ReceivedAt: rec.ReceivedAt,
			ProjectID:  rec.ProjectID,
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return emails, nil
}

// projectFile is the TOML layout of a project list:
//
//	[[project]]
//	name = "Riverside"
//	code = "4521-B"
//	[project.address]
//	street = "123 Main Street"
type projectFile struct {
	Projects []*hub.Project `toml:"project"`
}

// ReadProjects loads a project list. Files ending in .json hold a JSON array;
// anything else is parsed as TOML.
func ReadProjects(path string) ([]*hub.Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		var projects []*hub.Project
		if err := json.Unmarshal(data, &projects); err != nil {
			return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
		}
		return projects, nil
	}

	var file projectFile
	if _, err := toml.Decode(string(data), &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return file.Projects, nil
}
