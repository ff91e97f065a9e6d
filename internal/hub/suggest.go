package hub

import (
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/asheshgoplani/inbox-deck/internal/match"
)

// Suggest ranks projects by how strongly the email's text points at them.
// Projects with no signal are left out. A nil email yields no suggestions.
func Suggest(email *Email, projects []*Project) []*Project {
	if email == nil {
		return nil
	}
	return match.RankBy(email.SourceText(), projects, (*Project).Candidate)
}

// SuggestLimit is Suggest truncated to at most limit entries. A limit of zero
// or less returns every suggestion.
func SuggestLimit(email *Email, projects []*Project, limit int) []*Project {
	out := Suggest(email, projects)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// PreferProject moves the project with the given ID to the front of list,
// inserting it from all when it was not suggested. Used when a reply chain
// already carries a confirmed project.
func PreferProject(list []*Project, all []*Project, projectID string) []*Project {
	if projectID == "" {
		return list
	}

	var preferred *Project
	rest := make([]*Project, 0, len(list))
	for _, p := range list {
		if p.ID == projectID {
			preferred = p
			continue
		}
		rest = append(rest, p)
	}
	if preferred == nil {
		for _, p := range all {
			if p.ID == projectID {
				preferred = p
				break
			}
		}
	}
	if preferred == nil {
		return list
	}
	return append([]*Project{preferred}, rest...)
}

// projectSource adapts a project list to fuzzy.Source.
type projectSource []*Project

func (s projectSource) String(i int) string {
	p := s[i]
	parts := make([]string, 0, 2+len(p.Keywords))
	parts = append(parts, p.Name)
	if p.Code != "" {
		parts = append(parts, p.Code)
	}
	parts = append(parts, p.Keywords...)
	return strings.Join(parts, " ")
}

func (s projectSource) Len() int { return len(s) }

// Search performs a fuzzy lookup over project names, codes and keywords for
// manual association. An empty query returns projects unchanged.
func Search(query string, projects []*Project) []*Project {
	query = strings.TrimSpace(query)
	if query == "" {
		return projects
	}

	matches := fuzzy.FindFrom(query, projectSource(projects))
	out := make([]*Project, 0, len(matches))
	for _, m := range matches {
		out = append(out, projects[m.Index])
	}
	return out
}
