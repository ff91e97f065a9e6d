package hub

import (
	"regexp"
	"strings"
	"time"

	"github.com/asheshgoplani/inbox-deck/internal/match"
)

// Address is the postal location of a project site.
type Address struct {
	Street     string `json:"street,omitempty" toml:"street"`
	City       string `json:"city,omitempty" toml:"city"`
	Region     string `json:"region,omitempty" toml:"region"`
	PostalCode string `json:"postalCode,omitempty" toml:"postal_code"`
}

// LocationText returns the street and city joined by ", ", the form in which
// site addresses usually appear in correspondence. A nil address yields "".
func (a *Address) LocationText() string {
	if a == nil {
		return ""
	}
	parts := make([]string, 0, 2)
	for _, p := range []string{a.Street, a.City} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Project is a business record that inbound mail can be associated with.
type Project struct {
	ID        string    `json:"id" toml:"id"`
	Name      string    `json:"name" toml:"name"`
	Code      string    `json:"code,omitempty" toml:"code"`
	Address   *Address  `json:"address,omitempty" toml:"address"`
	Keywords  []string  `json:"keywords,omitempty" toml:"keywords"`
	CreatedAt time.Time `json:"createdAt" toml:"-"`
	UpdatedAt time.Time `json:"updatedAt" toml:"-"`
}

// Candidate projects p onto the fields the matcher scores.
func (p *Project) Candidate() match.Candidate {
	return match.Candidate{
		ID:       p.ID,
		Name:     p.Name,
		Code:     p.Code,
		Location: p.Address.LocationText(),
	}
}

// Email is an inbound message. Text fields are pointers because an absent
// header is not the same as an empty one.
type Email struct {
	ID         string    `json:"id"`
	MessageID  string    `json:"messageId,omitempty"`
	InReplyTo  string    `json:"inReplyTo,omitempty"`
	Subject    *string   `json:"subject"`
	FromEmail  *string   `json:"fromEmail"`
	FromName   *string   `json:"fromName"`
	Snippet    *string   `json:"snippet"`
	ReceivedAt time.Time `json:"receivedAt"`
	ProjectID  string    `json:"projectId,omitempty"`
}

// SourceText returns the searchable view of e.
func (e *Email) SourceText() *match.SourceText {
	if e == nil {
		return nil
	}
	return &match.SourceText{
		Subject:   e.Subject,
		FromEmail: e.FromEmail,
		FromName:  e.FromName,
		Snippet:   e.Snippet,
	}
}

// Linked reports whether the email has been associated with a project.
func (e *Email) Linked() bool {
	return e.ProjectID != ""
}

var validIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]{0,127}$`)

// ValidID reports whether id is safe to use as a record key and URL segment.
func ValidID(id string) bool {
	return validIDPattern.MatchString(id)
}
