// Package wikitext parses wiki markup into top-level nodes and sections.
//
// The parser is deliberately shallow: templates, links and comments are
// matched as whole units (with nesting), everything else is text. Tags and
// external links become Other nodes so their contents stay visible at the
// top level.
package wikitext

import (
	"strings"

	"rfc-tracker/pkg/rfc"
)

// Parse splits wikitext into a sequence of top-level nodes.
// Concatenating the Raw text of the returned nodes yields the input.
func Parse(text string) []rfc.Node {
	p := &parser{src: text}
	p.run()
	return p.nodes
}

type parser struct {
	src   string
	nodes []rfc.Node
	text  strings.Builder
}

func (p *parser) run() {
	i := 0
	for i < len(p.src) {
		if n, end, ok := p.special(i); ok {
			p.flushText()
			p.nodes = append(p.nodes, n)
			i = end
			continue
		}
		p.text.WriteByte(p.src[i])
		i++
	}
	p.flushText()
}

func (p *parser) flushText() {
	if p.text.Len() == 0 {
		return
	}
	p.nodes = append(p.nodes, rfc.Node{Kind: rfc.Text, Raw: p.text.String()})
	p.text.Reset()
}

// special tries to match a non-text node starting at i.
func (p *parser) special(i int) (rfc.Node, int, bool) {
	rest := p.src[i:]
	switch {
	case strings.HasPrefix(rest, "<!--"):
		end := strings.Index(rest[4:], "-->")
		if end < 0 {
			return rfc.Node{Kind: rfc.Comment, Raw: rest}, len(p.src), true
		}
		end += 4 + 3
		return rfc.Node{Kind: rfc.Comment, Raw: rest[:end]}, i + end, true

	case strings.HasPrefix(rest, "{{"):
		end := matchPair(rest, "{{", "}}")
		if end < 0 {
			return rfc.Node{}, 0, false
		}
		raw := rest[:end]
		return rfc.Node{Kind: rfc.Template, Raw: raw, Title: templateName(raw)}, i + end, true

	case strings.HasPrefix(rest, "[["):
		end := matchPair(rest, "[[", "]]")
		if end < 0 {
			return rfc.Node{}, 0, false
		}
		raw := rest[:end]
		inner := raw[2 : len(raw)-2]
		title, label, _ := strings.Cut(inner, "|")
		return rfc.Node{Kind: rfc.Wikilink, Raw: raw, Title: strings.TrimSpace(title), Label: label}, i + end, true

	case strings.HasPrefix(rest, "[http://"), strings.HasPrefix(rest, "[https://"), strings.HasPrefix(rest, "[//"):
		end := strings.IndexAny(rest, "]\n")
		if end < 0 || rest[end] != ']' {
			return rfc.Node{}, 0, false
		}
		return rfc.Node{Kind: rfc.Other, Raw: rest[:end+1]}, i + end + 1, true

	case rest[0] == '<' && len(rest) > 1 && (isLetter(rest[1]) || (rest[1] == '/' && len(rest) > 2 && isLetter(rest[2]))):
		end := strings.IndexAny(rest, ">\n")
		if end < 0 || rest[end] != '>' {
			return rfc.Node{}, 0, false
		}
		return rfc.Node{Kind: rfc.Other, Raw: rest[:end+1]}, i + end + 1, true

	case rest[0] == '=' && (i == 0 || p.src[i-1] == '\n'):
		return heading(rest, i)
	}
	return rfc.Node{}, 0, false
}

// heading matches a "== Title ==" line. The trailing newline is not consumed.
func heading(rest string, offset int) (rfc.Node, int, bool) {
	line := rest
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		line = rest[:nl]
	}
	trimmed := strings.TrimRight(line, " \t")
	open := len(trimmed) - len(strings.TrimLeft(trimmed, "="))
	closing := len(trimmed) - len(strings.TrimRight(trimmed, "="))
	if open == 0 || closing == 0 || open+closing >= len(trimmed) {
		return rfc.Node{}, 0, false
	}
	level := min(open, closing, 6)
	title := strings.TrimSpace(trimmed[level : len(trimmed)-level])
	if title == "" {
		return rfc.Node{}, 0, false
	}
	return rfc.Node{Kind: rfc.Heading, Raw: line, Title: title, Level: level}, offset + len(line), true
}

// matchPair returns the end offset of the balanced open/close run that starts
// at s[0], or -1 when it is never closed.
func matchPair(s, open, closing string) int {
	depth := 0
	for i := 0; i < len(s); {
		switch {
		case strings.HasPrefix(s[i:], open):
			depth++
			i += len(open)
		case strings.HasPrefix(s[i:], closing):
			depth--
			i += len(closing)
			if depth == 0 {
				return i
			}
		default:
			i++
		}
	}
	return -1
}

func templateName(raw string) string {
	inner := strings.TrimSuffix(strings.TrimPrefix(raw, "{{"), "}}")
	name, _, _ := strings.Cut(inner, "|")
	return strings.TrimSpace(name)
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// Render concatenates the source text of nodes.
func Render(nodes []rfc.Node) string {
	var b strings.Builder
	for _, n := range nodes {
		b.WriteString(n.Raw)
	}
	return b.String()
}
