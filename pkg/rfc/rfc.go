// Package rfc contains the core domain types for the RFC tracking service.
package rfc

import "time"

// NodeKind identifies the type of a parsed wikitext node.
type NodeKind int

const (
	Text NodeKind = iota
	Wikilink
	Template
	Heading
	Comment
	Other
)

func (k NodeKind) String() string {
	switch k {
	case Text:
		return "text"
	case Wikilink:
		return "wikilink"
	case Template:
		return "template"
	case Heading:
		return "heading"
	case Comment:
		return "comment"
	default:
		return "other"
	}
}

// Node is one top-level unit of parsed wikitext.
type Node struct {
	Raw   string   // Exact source text of the node
	Title string   // Link target for wikilinks, heading title for headings, template name for templates
	Label string   // Display text after the pipe for wikilinks
	Kind  NodeKind // Node type
	Level int      // Heading level (number of '=')
}

// String returns the node's source text.
func (n Node) String() string {
	return n.Raw
}

// DiffSpan holds the changed text recovered from one rendered diff.
type DiffSpan struct {
	Deleted []string `json:"deleted"` // Deleted-side cell text, in document order
	Added   []string `json:"added"`   // Added-side cell text, in document order
}

// Revision is one entry of a page's edit history.
type Revision struct {
	Timestamp time.Time `json:"timestamp"`
	User      string    `json:"user"`
	Comment   string    `json:"comment"`
	ID        int64     `json:"revid"`
	ParentID  int64     `json:"parentid"`
}

// Record describes one RFC removed from a list page.
// The optional fields are nil when attribution could not recover them.
type Record struct {
	RemovedAt      time.Time  `json:"removed_at"`          // Timestamp of the removing revision
	OpenedAt       *time.Time `json:"opened_at,omitempty"` // Opening timestamp from the RFC signature
	User           *string    `json:"user,omitempty"`      // User who opened the RFC
	Identifier     string     `json:"identifier"`          // Token from the #rfc_ fragment
	LinkText       string     `json:"link_text"`           // Full [[...]] link that introduced the RFC entry
	ListPage       string     `json:"list_page"`           // List page the entry was removed from
	Body           string     `json:"body"`                // Trimmed entry text
	Keywords       string     `json:"keywords,omitempty"`  // Short keyword summary of the body
	RunID          string     `json:"run_id,omitempty"`    // History scan that produced the record
	RevisionID     int64      `json:"revision_id"`         // Revision that removed the entry
	ParentRevision int64      `json:"parent_revision_id"`  // Revision the removal was diffed against
}

// RunState is the lifecycle state of a history scan.
type RunState string

const (
	RunNotStarted RunState = "not_started"
	RunRunning    RunState = "running"
	RunCompleted  RunState = "completed"
	RunFailed     RunState = "failed"
)

// Run tracks one full-history scan of a list page over a year window.
type Run struct {
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at"`
	WindowStart       time.Time `json:"window_start"`
	WindowEnd         time.Time `json:"window_end"`
	ID                string    `json:"id"`
	Bot               string    `json:"bot"`
	Page              string    `json:"page"`
	State             RunState  `json:"state"`
	Error             string    `json:"error,omitempty"`
	Year              int       `json:"year"`
	RevisionsExamined int       `json:"revisions_examined"`
	RemovalsFound     int       `json:"removals_found"`
	RecordsSaved      int       `json:"records_saved"`
	Skipped           int       `json:"skipped"`
	Errors            int       `json:"error_count"`
}

// ParticipantStat is one user's activity within an RFC section.
type ParticipantStat struct {
	Mentions    int `json:"mentions"`    // Signatures attributed to the user
	Contributed int `json:"contributed"` // Bytes of text attributed to the user
}

// Candidate is an RFC link discovered on a list page.
type Candidate struct {
	ListPage   string // List page the link was found on
	Page       string // Talk page hosting the discussion
	Identifier string // RFC token from the link fragment
	LinkText   string // Full [[...]] link
	Order      int    // Position in discovery order
}

// SectionStats is the scored result for one open RFC.
type SectionStats struct {
	Participants map[string]ParticipantStat `json:"participants"`
	Candidate    Candidate                  `json:"candidate"`
	Heading      string                     `json:"heading"`
	Keywords     string                     `json:"keywords,omitempty"`
	Unattributed int                        `json:"unattributed"`
}
