// Package report renders tracker results as wikitext tables.
package report

import (
	"fmt"
	"strings"
	"time"

	"rfc-tracker/pkg/rfc"
	"rfc-tracker/reconcile"
	"rfc-tracker/stats"
)

const (
	// Summary is the edit summary used when a report is published.
	Summary = "Updating RFC analysis report"

	timeLayout = "2006-01-02 15:04"
)

// Stats renders one table per scored RFC, participants ordered by mentions.
func Stats(results []rfc.SectionStats) string {
	var b strings.Builder
	b.WriteString("=== RFC Analysis Report ===\n")
	b.WriteString("Preliminary, unaudited results.\n\n")

	if len(results) == 0 {
		b.WriteString("No open RFCs were scored.\n")
		return b.String()
	}

	for _, res := range results {
		b.WriteString("{| class=\"wikitable\"\n")
		fmt.Fprintf(&b, "|+ RFC stats: %s\n", caption(res))
		b.WriteString("|-\n! User\n! Number of edits to RFC\n! Total bytes of changes\n")
		for _, user := range stats.Top(res.Participants) {
			p := res.Participants[user]
			fmt.Fprintf(&b, "|-\n| %s\n| %d\n| %d\n", user, p.Mentions, p.Contributed)
		}
		b.WriteString("|}\n")
		if res.Keywords != "" {
			fmt.Fprintf(&b, "Keywords: %s\n", res.Keywords)
		}
		if res.Unattributed > 0 {
			fmt.Fprintf(&b, "Unattributed signatures: %d\n", res.Unattributed)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func caption(res rfc.SectionStats) string {
	if res.Candidate.LinkText != "" {
		return res.Candidate.LinkText
	}
	return fmt.Sprintf("[[%s#rfc_%s]]", res.Candidate.Page, res.Candidate.Identifier)
}

// History renders closed RFCs, one row per removal record.
func History(groups []reconcile.Group) string {
	var b strings.Builder
	b.WriteString("=== Closed RFCs ===\n")
	if len(groups) == 0 {
		b.WriteString("No closed RFCs recorded.\n")
		return b.String()
	}

	b.WriteString("{| class=\"wikitable sortable\"\n")
	b.WriteString("|-\n! RFC\n! List\n! Opened by\n! Opened\n! Removed\n! Keywords\n")
	for _, g := range groups {
		for _, r := range g.Records {
			fmt.Fprintf(&b, "|-\n| %s\n| %s\n| %s\n| %s\n| %s\n| %s\n",
				r.LinkText,
				reconcile.ListShortcut(r.ListPage),
				deref(r.User),
				formatTime(r.OpenedAt),
				r.RemovedAt.UTC().Format(timeLayout),
				r.Keywords)
		}
	}
	b.WriteString("|}\n")
	return b.String()
}

// Runs renders history scan outcomes with saved records and errors next to
// each other.
func Runs(runs []*rfc.Run) string {
	var b strings.Builder
	b.WriteString("=== History runs ===\n")
	if len(runs) == 0 {
		b.WriteString("No runs recorded.\n")
		return b.String()
	}

	b.WriteString("{| class=\"wikitable\"\n")
	b.WriteString("|-\n! Run\n! Page\n! Year\n! State\n! Revisions\n! Removals\n! Records saved\n! Errors\n! Skipped\n! Duration\n")
	for _, run := range runs {
		fmt.Fprintf(&b, "|-\n| %s\n| %s\n| %d\n| %s\n| %d\n| %d\n| %d\n| %d\n| %d\n| %s\n",
			shortID(run.ID),
			reconcile.ListShortcut(run.Page),
			run.Year,
			run.State,
			run.RevisionsExamined,
			run.RemovalsFound,
			run.RecordsSaved,
			run.Errors,
			run.Skipped,
			duration(run))
	}
	b.WriteString("|}\n")
	return b.String()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func duration(run *rfc.Run) string {
	if run.FinishedAt.IsZero() || run.StartedAt.IsZero() {
		return ""
	}
	return run.FinishedAt.Sub(run.StartedAt).Round(time.Second).String()
}
