// Package match ranks candidate records by lexical relevance to the free-text
// fields of a source record, such as an inbound email. Scores come from
// independent weighted substring rules; only candidates with a positive score
// are returned, strongest first.
package match

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Rule weights. Rules are cumulative.
const (
	CodePoints           = 10
	LocationPoints       = 8
	LocationPrefixPoints = 5
	NamePoints           = 3
)

const (
	// minNameLen keeps short generic names from matching everywhere.
	minNameLen = 4
	// minPrefixLen guards the two-token location prefix against short
	// numeric fragments.
	minPrefixLen = 5
)

// SourceText is the searchable view of a record. Nil fields are absent and
// are skipped when the haystack is assembled; an empty string is present.
type SourceText struct {
	Subject   *string
	FromEmail *string
	FromName  *string
	Snippet   *string
}

// Candidate is a record evaluated against a SourceText. Empty fields carry no
// signal. ID is opaque and never inspected.
type Candidate struct {
	ID       string
	Name     string
	Code     string
	Location string
}

type scored[T any] struct {
	item  T
	score int
}

// Rank returns the candidates with a positive score against src, ordered by
// descending score. Equal scores keep their input order. A nil src, an empty
// candidate list or a blank haystack yield an empty result.
func Rank(src *SourceText, candidates []Candidate) []Candidate {
	return RankBy(src, candidates, func(c Candidate) Candidate { return c })
}

// RankBy is Rank for arbitrary records. view projects each item onto the
// fields the rules read; the returned slice holds the original items.
func RankBy[T any](src *SourceText, items []T, view func(T) Candidate) []T {
	if src == nil || len(items) == 0 {
		return nil
	}

	// A Caser is stateful, so each call gets its own.
	lower := cases.Lower(language.Und)

	haystack := src.haystack(lower)
	if strings.TrimSpace(haystack) == "" {
		return nil
	}

	ranked := make([]scored[T], 0, len(items))
	for _, item := range items {
		if s := score(haystack, view(item), lower); s > 0 {
			ranked = append(ranked, scored[T]{item: item, score: s})
		}
	}

	slices.SortStableFunc(ranked, func(a, b scored[T]) int {
		return b.score - a.score
	})

	out := make([]T, len(ranked))
	for i, r := range ranked {
		out[i] = r.item
	}
	return out
}

// Haystack returns the lower-cased search text for src, or "" when src is nil.
func Haystack(src *SourceText) string {
	if src == nil {
		return ""
	}
	return src.haystack(cases.Lower(language.Und))
}

func (s *SourceText) haystack(lower cases.Caser) string {
	parts := make([]string, 0, 4)
	for _, field := range []*string{s.Subject, s.FromEmail, s.FromName, s.Snippet} {
		if field != nil {
			parts = append(parts, *field)
		}
	}
	return lower.String(strings.Join(parts, " "))
}

// score sums the points c earns against an already lower-cased haystack.
func score(haystack string, c Candidate, lower cases.Caser) int {
	total := 0

	if c.Code != "" && strings.Contains(haystack, lower.String(c.Code)) {
		total += CodePoints
	}

	if c.Location != "" {
		location := lower.String(c.Location)
		if strings.Contains(haystack, location) {
			total += LocationPoints
		} else if prefix := locationPrefix(location); utf8.RuneCountInString(prefix) >= minPrefixLen &&
			strings.Contains(haystack, prefix) {
			total += LocationPrefixPoints
		}
	}

	if c.Name != "" {
		name := lower.String(c.Name)
		if utf8.RuneCountInString(name) >= minNameLen && strings.Contains(haystack, name) {
			total += NamePoints
		}
	}

	return total
}

// locationPrefix joins the first two whitespace or comma separated tokens of
// location with a single space ("123 Main St, Springfield" -> "123 main").
func locationPrefix(location string) string {
	tokens := strings.FieldsFunc(location, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	if len(tokens) > 2 {
		tokens = tokens[:2]
	}
	return strings.Join(tokens, " ")
}
