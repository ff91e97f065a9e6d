// Package service implements the inbox operations shared by the HTTP API,
// the CLI and the file watchers: ingesting mail, computing project
// suggestions, and confirming or clearing associations. Every state change
// is published on the event bus.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/asheshgoplani/inbox-deck/internal/eventbus"
	"github.com/asheshgoplani/inbox-deck/internal/hub"
	"github.com/asheshgoplani/inbox-deck/internal/inbox"
	"github.com/asheshgoplani/inbox-deck/internal/logging"
	"github.com/asheshgoplani/inbox-deck/internal/store"
	"github.com/asheshgoplani/inbox-deck/internal/thread"
)

// Repository is the persistence the service needs. *store.Store implements it.
type Repository interface {
	ListProjects(ctx context.Context) ([]*hub.Project, error)
	GetProject(ctx context.Context, id string) (*hub.Project, error)
	FindProject(ctx context.Context, code, name string) (*hub.Project, error)
	SaveProject(ctx context.Context, p *hub.Project) error
	DeleteProject(ctx context.Context, id string) error
	ListEmails(ctx context.Context, unlinkedOnly bool) ([]*hub.Email, error)
	GetEmail(ctx context.Context, id string) (*hub.Email, error)
	SaveEmail(ctx context.Context, e *hub.Email) error
	LinkEmail(ctx context.Context, emailID, projectID string) error
	UnlinkEmail(ctx context.Context, emailID string) error
}

// Service coordinates a Repository with the event bus.
type Service struct {
	repo Repository
	bus  *eventbus.EventBus
}

// New returns a Service. bus may be nil, in which case no events are emitted.
func New(repo Repository, bus *eventbus.EventBus) *Service {
	return &Service{repo: repo, bus: bus}
}

// SuggestionsPayload is the data of a suggestions.updated event.
type SuggestionsPayload struct {
	EmailID    string   `json:"emailId"`
	ProjectIDs []string `json:"projectIds"`
}

// LinkPayload is the data of email.linked and email.unlinked events.
type LinkPayload struct {
	EmailID   string `json:"emailId"`
	ProjectID string `json:"projectId,omitempty"`
}

func (s *Service) emit(t eventbus.EventType, channel string, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Emit(eventbus.Event{Type: t, Channel: channel, Data: data})
}

// Ping reports whether the repository is reachable. Repositories without a
// health check are always considered up.
func (s *Service) Ping(ctx context.Context) error {
	if p, ok := s.repo.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Projects returns every project.
func (s *Service) Projects(ctx context.Context) ([]*hub.Project, error) {
	return s.repo.ListProjects(ctx)
}

// Project returns one project.
func (s *Service) Project(ctx context.Context, id string) (*hub.Project, error) {
	return s.repo.GetProject(ctx, id)
}

// SearchProjects fuzzy-matches query against project names, codes and keywords.
func (s *Service) SearchProjects(ctx context.Context, query string) ([]*hub.Project, error) {
	projects, err := s.repo.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	return hub.Search(query, projects), nil
}

// SaveProject creates or updates a project and reports whether it was
// created. A project without an ID updates the stored project with the same
// code, or the same name when it has no code.
func (s *Service) SaveProject(ctx context.Context, p *hub.Project) (bool, error) {
	if p.ID == "" {
		existing, err := s.repo.FindProject(ctx, p.Code, p.Name)
		switch {
		case err == nil:
			p.ID = existing.ID
		case !errors.Is(err, store.ErrNotFound):
			return false, err
		}
	}
	created := true
	if p.ID != "" {
		switch _, err := s.repo.GetProject(ctx, p.ID); {
		case err == nil:
			created = false
		case !errors.Is(err, store.ErrNotFound):
			return false, err
		}
	}
	if err := s.repo.SaveProject(ctx, p); err != nil {
		return false, err
	}
	if created {
		s.emit(eventbus.EventProjectCreated, p.ID, p)
	} else {
		s.emit(eventbus.EventProjectUpdated, p.ID, p)
	}
	return created, nil
}

// DeleteProject removes a project; its emails become unlinked.
func (s *Service) DeleteProject(ctx context.Context, id string) error {
	if err := s.repo.DeleteProject(ctx, id); err != nil {
		return err
	}
	s.emit(eventbus.EventProjectRemoved, id, map[string]string{"id": id})
	return nil
}

// Emails lists stored emails, newest first.
func (s *Service) Emails(ctx context.Context, unlinkedOnly bool) ([]*hub.Email, error) {
	return s.repo.ListEmails(ctx, unlinkedOnly)
}

// Email returns one email.
func (s *Service) Email(ctx context.Context, id string) (*hub.Email, error) {
	return s.repo.GetEmail(ctx, id)
}

// IngestEmail stores e and returns its suggestions. Both email.received and
// suggestions.updated are emitted.
func (s *Service) IngestEmail(ctx context.Context, e *hub.Email) ([]*hub.Project, error) {
	if err := s.repo.SaveEmail(ctx, e); err != nil {
		return nil, err
	}
	s.emit(eventbus.EventEmailReceived, e.ID, e)

	suggestions, err := s.Suggestions(ctx, e.ID, 0)
	if err != nil {
		return nil, err
	}
	s.emit(eventbus.EventSuggestionsUpdated, e.ID, SuggestionsPayload{
		EmailID:    e.ID,
		ProjectIDs: projectIDs(suggestions),
	})
	return suggestions, nil
}

// Suggestions ranks projects for the email with the given ID. When an
// earlier message in the email's reply chain is already linked, that project
// leads the list. limit <= 0 returns all suggestions.
func (s *Service) Suggestions(ctx context.Context, emailID string, limit int) ([]*hub.Project, error) {
	email, err := s.repo.GetEmail(ctx, emailID)
	if err != nil {
		return nil, err
	}
	projects, err := s.repo.ListProjects(ctx)
	if err != nil {
		return nil, err
	}

	suggestions := hub.Suggest(email, projects)

	if email.InReplyTo != "" {
		emails, err := s.repo.ListEmails(ctx, false)
		if err != nil {
			return nil, err
		}
		if inherited := thread.InheritedProject(thread.Chain(emails, email.ID)); inherited != "" {
			suggestions = hub.PreferProject(suggestions, projects, inherited)
		}
	}

	if limit > 0 && len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}

	logging.ForComponent(logging.CompMatch).Debug("suggestions_computed",
		slog.String("email_id", emailID),
		slog.Int("projects", len(projects)),
		slog.Int("suggestions", len(suggestions)))
	return suggestions, nil
}

// Thread returns the reply chain ending at the given email, root first.
func (s *Service) Thread(ctx context.Context, emailID string) ([]*hub.Email, error) {
	if _, err := s.repo.GetEmail(ctx, emailID); err != nil {
		return nil, err
	}
	emails, err := s.repo.ListEmails(ctx, false)
	if err != nil {
		return nil, err
	}
	return thread.Chain(emails, emailID), nil
}

// Link confirms the association of an email with a project.
func (s *Service) Link(ctx context.Context, emailID, projectID string) error {
	if err := s.repo.LinkEmail(ctx, emailID, projectID); err != nil {
		return err
	}
	s.emit(eventbus.EventEmailLinked, emailID, LinkPayload{EmailID: emailID, ProjectID: projectID})
	return nil
}

// Unlink clears an email's association.
func (s *Service) Unlink(ctx context.Context, emailID string) error {
	if err := s.repo.UnlinkEmail(ctx, emailID); err != nil {
		return err
	}
	s.emit(eventbus.EventEmailUnlinked, emailID, LinkPayload{EmailID: emailID})
	return nil
}

// ImportProjects upserts every project in the file at path.
func (s *Service) ImportProjects(ctx context.Context, path string) (int, error) {
	projects, err := inbox.ReadProjects(path)
	if err != nil {
		return 0, err
	}
	for i, p := range projects {
		if _, err := s.SaveProject(ctx, p); err != nil {
			return i, fmt.Errorf("import project %q: %w", p.Name, err)
		}
	}
	return len(projects), nil
}

// ImportEmails ingests every email in the JSONL export at path.
func (s *Service) ImportEmails(ctx context.Context, path string) (int, error) {
	emails, err := inbox.ReadEmails(path)
	if err != nil {
		return 0, err
	}
	for i, e := range emails {
		if _, err := s.IngestEmail(ctx, e); err != nil {
			return i, fmt.Errorf("import email %q: %w", e.MessageID, err)
		}
	}
	return len(emails), nil
}

func projectIDs(ps []*hub.Project) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.ID
	}
	return out
}
