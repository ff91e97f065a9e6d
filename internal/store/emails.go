package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/asheshgoplani/inbox-deck/internal/hub"
)

const emailColumns = `id, message_id, in_reply_to, subject, from_email, from_name, snippet, received_at, project_id`

// ListEmails returns emails newest first. With unlinkedOnly set, emails that
// already belong to a project are skipped.
func (s *Store) ListEmails(ctx context.Context, unlinkedOnly bool) ([]*hub.Email, error) {
	query := `SELECT ` + emailColumns + ` FROM emails`
	if unlinkedOnly {
		query += ` WHERE project_id IS NULL`
	}
	query += ` ORDER BY received_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list emails: %w", err)
	}
	defer rows.Close()

	var emails []*hub.Email
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		emails = append(emails, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list emails: %w", err)
	}
	return emails, nil
}

// GetEmail retrieves an email by ID.
func (s *Store) GetEmail(ctx context.Context, id string) (*hub.Email, error) {
	if !hub.ValidID(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+emailColumns+` FROM emails WHERE id = ?`, id)
	e, err := scanEmail(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("email %s: %w", id, ErrNotFound)
	}
	return e, err
}

// SaveEmail inserts or updates e. An email without an ID that carries a
// MessageID already on file takes over the stored record's ID, so re-importing
// a mailbox does not duplicate rows. Without either, the ID is derived from the
// email's content. A MessageID stored under a different ID is ErrConflict. An
// existing project link is kept unless e names a new one. e is updated in place.
func (s *Store) SaveEmail(ctx context.Context, e *hub.Email) error {
	if e.MessageID != "" {
		var existing string
		err := s.db.QueryRowContext(ctx, `SELECT id FROM emails WHERE message_id = ?`, e.MessageID).Scan(&existing)
		switch {
		case err == nil && e.ID == "":
			e.ID = existing
		case err == nil && e.ID != existing:
			return fmt.Errorf("message id %s is stored as email %s: %w", e.MessageID, existing, ErrConflict)
		case err != nil && !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("lookup message id %s: %w", e.MessageID, err)
		}
	}
	if e.ID == "" {
		if e.MessageID != "" {
			e.ID = uuid.NewString()
		} else {
			e.ID = contentID(e)
		}
	}
	if !hub.ValidID(e.ID) {
		return fmt.Errorf("%w: %q", ErrInvalidID, e.ID)
	}
	if e.ReceivedAt.IsZero() {
		var stored int64
		err := s.db.QueryRowContext(ctx, `SELECT received_at FROM emails WHERE id = ?`, e.ID).Scan(&stored)
		switch {
		case err == nil:
			e.ReceivedAt = time.Unix(0, stored).UTC()
		case errors.Is(err, sql.ErrNoRows):
			e.ReceivedAt = time.Now().UTC()
		default:
			return fmt.Errorf("lookup email %s: %w", e.ID, err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO emails (`+emailColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			message_id = excluded.message_id,
			in_reply_to = excluded.in_reply_to,
			subject = excluded.subject,
			from_email = excluded.from_email,
			from_name = excluded.from_name,
			snippet = excluded.snippet,
			received_at = excluded.received_at,
			project_id = COALESCE(excluded.project_id, emails.project_id)`,
		e.ID, e.MessageID, e.InReplyTo,
		nullString(e.Subject), nullString(e.FromEmail), nullString(e.FromName), nullString(e.Snippet),
		e.ReceivedAt.UnixNano(), nullID(e.ProjectID),
	)
	if err != nil {
		return fmt.Errorf("save email %s: %w", e.ID, err)
	}

	var project sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT project_id FROM emails WHERE id = ?`, e.ID).Scan(&project); err == nil {
		e.ProjectID = project.String
	}
	return nil
}

// LinkEmail associates an email with a project.
func (s *Store) LinkEmail(ctx context.Context, emailID, projectID string) error {
	if !hub.ValidID(emailID) {
		return fmt.Errorf("%w: %q", ErrInvalidID, emailID)
	}
	if _, err := s.GetProject(ctx, projectID); err != nil {
		return err
	}
	return s.setProject(ctx, emailID, projectID)
}

// UnlinkEmail clears an email's project association.
func (s *Store) UnlinkEmail(ctx context.Context, emailID string) error {
	if !hub.ValidID(emailID) {
		return fmt.Errorf("%w: %q", ErrInvalidID, emailID)
	}
	return s.setProject(ctx, emailID, "")
}

func (s *Store) setProject(ctx context.Context, emailID, projectID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE emails SET project_id = ? WHERE id = ?`, nullID(projectID), emailID)
	if err != nil {
		return fmt.Errorf("link email %s: %w", emailID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("email %s: %w", emailID, ErrNotFound)
	}
	return nil
}

func scanEmail(row rowScanner) (*hub.Email, error) {
	var (
		e                                  hub.Email
		subject, fromEmail, fromName, snip sql.NullString
		project                            sql.NullString
		received                           int64
	)
	err := row.Scan(&e.ID, &e.MessageID, &e.InReplyTo, &subject, &fromEmail, &fromName, &snip, &received, &project)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan email: %w", err)
	}
	e.Subject = stringPtr(subject)
	e.FromEmail = stringPtr(fromEmail)
	e.FromName = stringPtr(fromName)
	e.Snippet = stringPtr(snip)
	e.ReceivedAt = time.Unix(0, received).UTC()
	e.ProjectID = project.String
	return &e, nil
}

// emailNamespace scopes the name-based UUIDs of emails that arrive without
// any identifier.
var emailNamespace = uuid.MustParse("6f1c2b0e-3d4a-5e8f-9a7b-1c2d3e4f5a6b")

// contentID derives a stable ID from the fields of e, so the same export line
// maps to the same row on every import. Absent and empty fields differ.
func contentID(e *hub.Email) string {
	var b strings.Builder
	for _, f := range []*string{e.Subject, e.FromEmail, e.FromName, e.Snippet} {
		if f == nil {
			b.WriteString("\x00-")
		} else {
			b.WriteString("\x00+")
			b.WriteString(*f)
		}
	}
	b.WriteString("\x00")
	b.WriteString(e.InReplyTo)
	if !e.ReceivedAt.IsZero() {
		b.WriteString("\x00")
		b.WriteString(e.ReceivedAt.UTC().Format(time.RFC3339Nano))
	}
	return uuid.NewSHA1(emailNamespace, []byte(b.String())).String()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullID(id string) sql.NullString {
	return sql.NullString{String: id, Valid: id != ""}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
