package wikitext

import (
	"errors"
	"strings"

	"rfc-tracker/pkg/rfc"
)

// ErrSectionNotFound indicates that no section of a page contains the requested identifier.
// For RFC lookups this usually means the list page still links the RFC but the
// discussion section was archived or renamed.
var ErrSectionNotFound = errors.New("section not found")

// Section is a heading together with everything up to the next heading of the
// same or higher level. Sections nest: a level 2 section includes its level 3
// subsections.
type Section struct {
	Heading string
	Nodes   []rfc.Node // Heading node first
	Level   int
}

// Text returns the section's source text.
func (s *Section) Text() string {
	return Render(s.Nodes)
}

// Body returns the section's nodes without the heading node.
func (s *Section) Body() []rfc.Node {
	if len(s.Nodes) == 0 {
		return nil
	}
	return s.Nodes[1:]
}

// Sections splits parsed nodes into sections in document order, parents
// before their children. Text before the first heading is not a section.
func Sections(nodes []rfc.Node) []*Section {
	var sections []*Section
	for i, n := range nodes {
		if n.Kind != rfc.Heading {
			continue
		}
		end := len(nodes)
		for j := i + 1; j < len(nodes); j++ {
			if nodes[j].Kind == rfc.Heading && nodes[j].Level <= n.Level {
				end = j
				break
			}
		}
		sections = append(sections, &Section{
			Heading: n.Title,
			Level:   n.Level,
			Nodes:   nodes[i:end],
		})
	}
	return sections
}

// Locate parses pageText and returns the first section whose text contains
// identifier, compared case-insensitively.
//
// Matching is by substring, so an identifier that is contained in another
// identifier can select the wrong section.
func Locate(pageText, identifier string) (*Section, error) {
	if identifier == "" {
		return nil, ErrSectionNotFound
	}
	needle := strings.ToLower(identifier)
	for _, sec := range Sections(Parse(pageText)) {
		if strings.Contains(strings.ToLower(sec.Text()), needle) {
			return sec, nil
		}
	}
	return nil, ErrSectionNotFound
}
