package store

import (
	"cmp"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/asheshgoplani/inbox-deck/internal/hub"
)

const projectColumns = `id, name, code, street, city, region, postal_code, keywords, created_at, updated_at`

// ListProjects returns all projects sorted by name, then ID.
func (s *Store) ListProjects(ctx context.Context) ([]*hub.Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY name COLLATE NOCASE, id`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []*hub.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// GetProject retrieves a project by ID.
func (s *Store) GetProject(ctx context.Context, id string) (*hub.Project, error) {
	if !hub.ValidID(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return p, err
}

// FindProject returns the stored project an ID-less record refers to: the
// oldest one with the same code, or with the same name when code is empty.
// Both comparisons ignore case and surrounding space.
func (s *Store) FindProject(ctx context.Context, code, name string) (*hub.Project, error) {
	code, name = strings.TrimSpace(code), strings.TrimSpace(name)
	var row *sql.Row
	switch {
	case code != "":
		row = s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects
			WHERE code = ? COLLATE NOCASE ORDER BY created_at, id LIMIT 1`, code)
	case name != "":
		row = s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects
			WHERE name = ? COLLATE NOCASE ORDER BY created_at, id LIMIT 1`, name)
	default:
		return nil, fmt.Errorf("project without code or name: %w", ErrNotFound)
	}
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %q: %w", cmp.Or(code, name), ErrNotFound)
	}
	return p, err
}

// SaveProject inserts or updates p. A missing ID is taken from the project
// FindProject returns, or generated when there is none. CreatedAt is kept from
// the first save and UpdatedAt is refreshed. p is updated in place.
func (s *Store) SaveProject(ctx context.Context, p *hub.Project) error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("project name is required")
	}
	if p.ID == "" {
		existing, err := s.FindProject(ctx, p.Code, p.Name)
		switch {
		case err == nil:
			p.ID = existing.ID
		case errors.Is(err, ErrNotFound):
			p.ID = uuid.NewString()
		default:
			return err
		}
	}
	if !hub.ValidID(p.ID) {
		return fmt.Errorf("%w: %q", ErrInvalidID, p.ID)
	}

	keywords, err := json.Marshal(nonNil(p.Keywords))
	if err != nil {
		return fmt.Errorf("marshal keywords: %w", err)
	}

	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	var addr hub.Address
	if p.Address != nil {
		addr = *p.Address
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO projects (`+projectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			code = excluded.code,
			street = excluded.street,
			city = excluded.city,
			region = excluded.region,
			postal_code = excluded.postal_code,
			keywords = excluded.keywords,
			updated_at = excluded.updated_at`,
		p.ID, p.Name, p.Code, addr.Street, addr.City, addr.Region, addr.PostalCode, string(keywords),
		p.CreatedAt.UnixNano(), p.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save project %s: %w", p.ID, err)
	}

	// On update the stored creation time wins.
	var created int64
	if err := s.db.QueryRowContext(ctx, `SELECT created_at FROM projects WHERE id = ?`, p.ID).Scan(&created); err == nil {
		p.CreatedAt = time.Unix(0, created).UTC()
	}
	return nil
}

// DeleteProject removes a project. Emails linked to it become unlinked.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	if !hub.ValidID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete project %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*hub.Project, error) {
	var (
		p                hub.Project
		addr             hub.Address
		keywords         string
		created, updated int64
	)
	err := row.Scan(&p.ID, &p.Name, &p.Code, &addr.Street, &addr.City, &addr.Region, &addr.PostalCode,
		&keywords, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan project: %w", err)
	}
	if addr != (hub.Address{}) {
		p.Address = &addr
	}
	if err := json.Unmarshal([]byte(keywords), &p.Keywords); err != nil {
		return nil, fmt.Errorf("unmarshal keywords for %s: %w", p.ID, err)
	}
	if len(p.Keywords) == 0 {
		p.Keywords = nil
	}
	p.CreatedAt = time.Unix(0, created).UTC()
	p.UpdatedAt = time.Unix(0, updated).UTC()
	return &p, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
