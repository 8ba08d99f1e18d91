// Package diff recovers changed text from MediaWiki table-format diffs.
package diff

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"rfc-tracker/pkg/rfc"
)

// Cell classes used by the wiki's diff renderer.
const (
	classMarker  = "diff-marker"
	classDeleted = "diff-deletedline"
	classAdded   = "diff-addedline"
	classContext = "diff-context"
	classLineNo  = "diff-lineno"
	classEmpty   = "diff-empty"
)

// MalformedDiffError indicates markup that does not look like a table diff.
type MalformedDiffError struct {
	Reason string
}

func (e *MalformedDiffError) Error() string {
	return "malformed diff: " + e.Reason
}

// Parse extracts the deleted and added cell text from rendered diff rows.
//
// The markup is the body returned by the compare API: bare <tr> rows without
// an enclosing table. Each deleted or added cell contributes one line with
// tags stripped and entities decoded. Context and line-number cells are
// ignored.
func Parse(markup string) (*rfc.DiffSpan, error) {
	if strings.TrimSpace(markup) == "" {
		return nil, &MalformedDiffError{Reason: "empty markup"}
	}

	doc, err := parseRows(markup)
	if err != nil {
		return nil, err
	}

	rows := doc.Find("tr")
	if rows.Length() == 0 {
		return nil, &MalformedDiffError{Reason: "no table rows"}
	}

	span := &rfc.DiffSpan{}
	structured := false
	var rowErr error

	rows.EachWithBreak(func(i int, row *goquery.Selection) bool {
		cells := row.ChildrenFiltered("td")
		hasMarker := false
		var deleted, added []string

		cells.Each(func(_ int, td *goquery.Selection) {
			switch {
			case td.HasClass(classDeleted):
				deleted = append(deleted, td.Text())
			case td.HasClass(classAdded):
				added = append(added, td.Text())
			case td.HasClass(classMarker):
				hasMarker = true
			case td.HasClass(classContext), td.HasClass(classLineNo), td.HasClass(classEmpty):
			default:
				return
			}
			structured = true
		})

		if (len(deleted) > 0 || len(added) > 0) && !hasMarker {
			rowErr = &MalformedDiffError{Reason: fmt.Sprintf("row %d has changed cells without a marker", i)}
			return false
		}
		span.Deleted = append(span.Deleted, deleted...)
		span.Added = append(span.Added, added...)
		return true
	})

	if rowErr != nil {
		return nil, rowErr
	}
	if !structured {
		return nil, &MalformedDiffError{Reason: "no diff cells found"}
	}
	return span, nil
}

// parseRows parses markup in a table context so bare rows survive HTML5
// parsing, then wraps the result for goquery.
func parseRows(markup string) (*goquery.Document, error) {
	context := &html.Node{Type: html.ElementNode, Data: "table", DataAtom: atom.Table}
	nodes, err := html.ParseFragment(strings.NewReader(markup), context)
	if err != nil {
		return nil, &MalformedDiffError{Reason: err.Error()}
	}
	root := &html.Node{Type: html.DocumentNode}
	for _, n := range nodes {
		root.AppendChild(n)
	}
	return goquery.NewDocumentFromNode(root), nil
}

// Joined returns the deleted lines joined by newlines, the form segmentation works on.
func Joined(lines []string) string {
	return strings.Join(lines, "\n")
}
