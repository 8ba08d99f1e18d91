// Package extract splits removed list-page text into per-RFC entries and
// recovers who opened each one and when.
package extract

import (
	"strings"

	"rfc-tracker/diff"
	"rfc-tracker/wikitext"
)

const boldMarker = "'''"

// Segment is the portion of removed text that belongs to one RFC entry.
type Segment struct {
	LinkMarker string // Full [[...#rfc_...]] link that starts the entry
	Identifier string // RFC token
	Page       string // Discussion page the link points to
	Raw        string // Untrimmed text from this link up to the next one
	SpanText   string // Entry text with the link and bold markers trimmed
	Start      int    // Offset of the link in the joined text
	End        int    // Offset of the next link, or the text length
}

// Segments splits deleted diff lines into RFC entries.
//
// Every link whose target carries an #rfc_ fragment starts a new segment,
// which runs until the next such link or the end of the text. Text before
// the first link is discarded. No links means no segments.
func Segments(deletedLines []string) []Segment {
	if len(deletedLines) == 0 {
		return nil
	}
	text := diff.Joined(deletedLines)
	links := wikitext.RfcLinks(text)

	segments := make([]Segment, 0, len(links))
	for i, l := range links {
		end := len(text)
		if i+1 < len(links) {
			end = links[i+1].Start
		}
		raw := text[l.Start:end]
		segments = append(segments, Segment{
			LinkMarker: l.Raw,
			Identifier: l.Identifier,
			Page:       l.Page,
			Raw:        raw,
			SpanText:   trimSpan(strings.TrimPrefix(raw, l.Raw)),
			Start:      l.Start,
			End:        end,
		})
	}
	return segments
}

// trimSpan strips one bold marker from each end along with surrounding whitespace.
// The leading marker closes the bold link, the trailing one opens the next entry's link.
func trimSpan(s string) string {
	s = strings.TrimPrefix(s, boldMarker)
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, boldMarker)
	return strings.TrimSpace(s)
}
