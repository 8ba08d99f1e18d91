package wikitext

import (
	"regexp"
	"strings"
)

var (
	// RfcFragment matches the "#rfc_<TOKEN>" fragment that names an RFC.
	// The token is captured exactly as written.
	RfcFragment = regexp.MustCompile(`(?i:#rfc_)([A-Za-z0-9]+)`)

	linkRegex     = regexp.MustCompile(`\[\[([^\[\]|]*)(?:\|([^\]]*))?\]\]`)
	disabledRegex = regexp.MustCompile(`(?is)<!--.*?-->|<nowiki>.*?</nowiki>|<nowiki\s*/>`)
)

// Link is an internal [[target|label]] link found in wikitext.
type Link struct {
	Raw    string // Full link text including brackets
	Target string // Text before the pipe
	Label  string // Text after the pipe
	Start  int    // Byte offset of the opening brackets
	End    int    // Byte offset just past the closing brackets
}

// RfcLink is a link whose target carries an #rfc_ fragment.
type RfcLink struct {
	Link
	Identifier string // Token from the fragment
	Page       string // Target page without the fragment
}

// Links returns all internal links in text, left to right.
func Links(text string) []Link {
	var links []Link
	for _, m := range linkRegex.FindAllStringSubmatchIndex(text, -1) {
		l := Link{
			Raw:    text[m[0]:m[1]],
			Target: text[m[2]:m[3]],
			Start:  m[0],
			End:    m[1],
		}
		if m[4] >= 0 {
			l.Label = text[m[4]:m[5]]
		}
		links = append(links, l)
	}
	return links
}

// RfcLinks returns the links in text whose target contains an #rfc_ fragment.
func RfcLinks(text string) []RfcLink {
	var out []RfcLink
	for _, l := range Links(text) {
		m := RfcFragment.FindStringSubmatch(l.Target)
		if m == nil {
			continue
		}
		page, _, _ := strings.Cut(l.Target, "#")
		out = append(out, RfcLink{
			Link:       l,
			Identifier: m[1],
			Page:       NormalizeTitle(page),
		})
	}
	return out
}

// StripDisabled removes comments and nowiki spans, which never produce links.
func StripDisabled(text string) string {
	return disabledRegex.ReplaceAllString(text, "")
}

// RemovalTargets parses a list-maintenance edit summary such as
// "Removed: [[Talk:A]] [[Talk:B]]." and returns the linked page titles.
// Summaries that do not start with "Removed:" yield nil.
func RemovalTargets(comment string) []string {
	idx := strings.Index(strings.ToLower(comment), "removed:")
	if idx < 0 {
		return nil
	}
	var targets []string
	for _, l := range Links(comment[idx:]) {
		targets = append(targets, NormalizeTitle(l.Target))
	}
	return targets
}

// NormalizeTitle converts underscores to spaces and trims surrounding whitespace.
func NormalizeTitle(title string) string {
	return strings.TrimSpace(strings.ReplaceAll(title, "_", " "))
}
