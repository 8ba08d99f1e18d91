package extract

import (
	"os"
	"strings"
	"testing"
	"time"

	"rfc-tracker/diff"
)

func TestSegmentsEmpty(t *testing.T) {
	if got := Segments(nil); len(got) != 0 {
		t.Errorf("Segments(nil) = %v, want empty", got)
	}
	if got := Segments([]string{"no links here", "[[Talk:Plain]]"}); len(got) != 0 {
		t.Errorf("Segments() without rfc links = %v, want empty", got)
	}
}

func TestSegmentsSingleEntry(t *testing.T) {
	lines := []string{
		"'''[[Talk:X#rfc_ABC123|Talk:X]]''' {{rfcquote|text=Should we...}} ...05:33, 24 December 2020 (UTC)}}",
	}
	segments := Segments(lines)
	if len(segments) != 1 {
		t.Fatalf("Segments() returned %d segments, want 1", len(segments))
	}
	seg := segments[0]
	if seg.Identifier != "ABC123" {
		t.Errorf("Identifier = %q, want ABC123", seg.Identifier)
	}
	if seg.Page != "Talk:X" {
		t.Errorf("Page = %q, want Talk:X", seg.Page)
	}
	if seg.LinkMarker != "[[Talk:X#rfc_ABC123|Talk:X]]" {
		t.Errorf("LinkMarker = %q", seg.LinkMarker)
	}
	wantSpan := "{{rfcquote|text=Should we...}} ...05:33, 24 December 2020 (UTC)}}"
	if seg.SpanText != wantSpan {
		t.Errorf("SpanText = %q, want %q", seg.SpanText, wantSpan)
	}

	a := Attribute(seg.SpanText)
	if a.User != nil {
		t.Errorf("User = %q, want nil", *a.User)
	}
	want := time.Date(2020, 12, 24, 5, 33, 0, 0, time.UTC)
	if a.OpenedAt == nil || !a.OpenedAt.Equal(want) {
		t.Errorf("OpenedAt = %v, want %v", a.OpenedAt, want)
	}
}

func TestSegmentsMultipleRemovals(t *testing.T) {
	markup, err := os.ReadFile("../diff/testdata/multi_removal.html")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	span, err := diff.Parse(string(markup))
	if err != nil {
		t.Fatalf("diff.Parse() error = %v", err)
	}

	segments := Segments(span.Deleted)
	tests := []struct {
		identifier string
		page       string
		user       string
		opened     time.Time
	}{
		{"76C58B0", "Talk:Ted Cruz", "Trillfendi", time.Date(2020, 12, 29, 22, 23, 0, 0, time.UTC)},
		{"C9A3824", "Talk:Emily VanDerWerff", "Careless hx", time.Date(2020, 12, 28, 16, 4, 0, 0, time.UTC)},
		{"1AAC44C", "Talk:Arthur Laffer", "Snooganssnoogans", time.Date(2020, 12, 24, 5, 33, 0, 0, time.UTC)},
	}
	if len(segments) != len(tests) {
		t.Fatalf("Segments() returned %d segments, want %d", len(segments), len(tests))
	}

	for i, tt := range tests {
		seg := segments[i]
		if seg.Identifier != tt.identifier || seg.Page != tt.page {
			t.Errorf("segment %d = %s/%q, want %s/%q", i, seg.Identifier, seg.Page, tt.identifier, tt.page)
		}
		if !strings.HasPrefix(seg.SpanText, "{{rfcquote|text=") {
			t.Errorf("segment %d span should start at the quote, got %q", i, seg.SpanText[:min(40, len(seg.SpanText))])
		}
		if strings.HasSuffix(seg.SpanText, "'''") || strings.Contains(seg.SpanText, seg.LinkMarker) {
			t.Errorf("segment %d span was not trimmed: %q", i, seg.SpanText)
		}

		a := Attribute(seg.SpanText)
		if a.User == nil || *a.User != tt.user {
			t.Errorf("segment %d user = %v, want %q", i, a.User, tt.user)
		}
		if a.OpenedAt == nil || !a.OpenedAt.Equal(tt.opened) {
			t.Errorf("segment %d opened = %v, want %v", i, a.OpenedAt, tt.opened)
		}
	}
}

// Segments tile the joined diff text from the first link to the end without gaps or overlap.
func TestSegmentsCoverText(t *testing.T) {
	lines := []string{
		"[[Talk:A#rfc_AAA111|Talk:A]]",
		"first body",
		"'''[[Talk:B#rfc_BBB222|Talk:B]]'''",
		"second body [[User talk:Bob|talk]]",
		"[[Talk:C#rfc_CCC333]] third",
	}
	text := diff.Joined(lines)
	segments := Segments(lines)
	if len(segments) != 3 {
		t.Fatalf("Segments() returned %d segments, want 3", len(segments))
	}

	total := 0
	prevEnd := segments[0].Start
	for i, seg := range segments {
		if seg.Start != prevEnd {
			t.Errorf("segment %d starts at %d, want %d", i, seg.Start, prevEnd)
		}
		if text[seg.Start:seg.End] != seg.Raw {
			t.Errorf("segment %d raw does not match its offsets", i)
		}
		if !strings.HasPrefix(seg.Raw, seg.LinkMarker) {
			t.Errorf("segment %d raw should start with its link", i)
		}
		total += seg.End - seg.Start
		prevEnd = seg.End
	}
	if total != len(text) {
		t.Errorf("segments cover %d bytes, want %d", total, len(text))
	}
	if segments[1].SpanText != "second body [[User talk:Bob|talk]]" {
		t.Errorf("middle span = %q", segments[1].SpanText)
	}
	if segments[2].SpanText != "third" {
		t.Errorf("last span = %q, want %q", segments[2].SpanText, "third")
	}
}

func TestAttribute(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantUser   string
		wantOpened string
	}{
		{
			name:       "user talk link",
			text:       "Question? [[User:Ymblanter|Ymblanter]] ([[User talk:Ymblanter|talk]]) 10:06, 1 January 2021 (UTC)}}",
			wantUser:   "Ymblanter",
			wantOpened: "2021-01-01T10:06:00Z",
		},
		{
			name:       "contributions fallback",
			text:       "Question? [[Special:Contributions/203.0.113.5|203.0.113.5]] 10:06, 11 May 2021 (UTC)}}",
			wantUser:   "203.0.113.5",
			wantOpened: "2021-05-11T10:06:00Z",
		},
		{
			name:       "user talk preferred over contributions",
			text:       "[[Special:Contributions/Other|c]] [[User talk:First|talk]]",
			wantUser:   "First",
			wantOpened: "",
		},
		{
			name:       "timestamp without closing template is not an opening date",
			text:       "[[User talk:Someone|talk]] 10:06, 1 January 2021 (UTC)",
			wantUser:   "Someone",
			wantOpened: "",
		},
		{
			name:       "malformed date is dropped",
			text:       "99:99, 45 Smarch 2020 (UTC)}}",
			wantUser:   "",
			wantOpened: "",
		},
		{
			name:       "nothing to find",
			text:       "{{rfcquote|text=Unsigned question}}",
			wantUser:   "",
			wantOpened: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Attribute(tt.text)

			gotUser := ""
			if a.User != nil {
				gotUser = *a.User
			}
			if gotUser != tt.wantUser {
				t.Errorf("Attribute() user = %q, want %q", gotUser, tt.wantUser)
			}

			gotOpened := ""
			if a.OpenedAt != nil {
				gotOpened = a.OpenedAt.Format(time.RFC3339)
			}
			if gotOpened != tt.wantOpened {
				t.Errorf("Attribute() opened = %q, want %q", gotOpened, tt.wantOpened)
			}
		})
	}
}

// Removing the matched user and date leaves nothing else to find.
func TestAttributeHasNoHiddenSecondMatch(t *testing.T) {
	markup, err := os.ReadFile("../diff/testdata/multi_removal.html")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	span, err := diff.Parse(string(markup))
	if err != nil {
		t.Fatalf("diff.Parse() error = %v", err)
	}

	for _, seg := range Segments(span.Deleted) {
		a := Attribute(seg.SpanText)
		if a.UserMatch == "" || a.DateMatch == "" {
			t.Fatalf("segment %s should have both user and date", seg.Identifier)
		}
		stripped := strings.Replace(seg.SpanText, a.UserMatch, "", 1)
		stripped = strings.Replace(stripped, a.DateMatch, "", 1)

		again := Attribute(stripped)
		if again.User != nil || again.OpenedAt != nil {
			t.Errorf("segment %s re-extraction = (%v, %v), want (nil, nil)", seg.Identifier, again.User, again.OpenedAt)
		}
	}
}
