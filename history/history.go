// Package history reconstructs closed RFCs from a list page's edit history.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"rfc-tracker/diff"
	"rfc-tracker/extract"
	"rfc-tracker/pkg/rfc"
	"rfc-tracker/storage"
	"rfc-tracker/wikitext"
)

// ErrNoSegments indicates a removal whose diff held no RFC links.
var ErrNoSegments = errors.New("no rfc entries in removed text")

// Wiki interface for revision history access.
type Wiki interface {
	Revisions(ctx context.Context, page, user string, start, end time.Time) ([]rfc.Revision, error)
	Compare(ctx context.Context, fromRev, toRev int64) (string, error)
}

// Store interface for record persistence.
type Store interface {
	AppendRecord(ctx context.Context, r *rfc.Record) error
	MarkRevision(ctx context.Context, revisionID int64, mark storage.RevisionMark) error
	RevisionSeen(ctx context.Context, revisionID int64) (bool, error)
	SaveRun(ctx context.Context, run *rfc.Run) error
}

// Keywords summarizes RFC text.
type Keywords interface {
	Extract(text string) string
}

// stage is how far one revision got before it finished or failed.
type stage string

const (
	stagePending     stage = "pending"
	stageDiffFetched stage = "diff_fetched"
	stageParsed      stage = "parsed"
	stagePersisted   stage = "persisted"
)

// Scanner walks one list page's history one year at a time.
type Scanner struct {
	wiki     Wiki
	store    Store
	keywords Keywords
	logger   *slog.Logger
	bot      string
	now      func() time.Time
}

// New creates a scanner for removals made by bot.
func New(wiki Wiki, store Store, keywords Keywords, bot string, logger *slog.Logger) *Scanner {
	return &Scanner{
		wiki:     wiki,
		store:    store,
		keywords: keywords,
		logger:   logger,
		bot:      bot,
		now:      time.Now,
	}
}

// Window returns the UTC bounds [start, end) of a calendar year.
func Window(year int) (time.Time, time.Time) {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(1, 0, 0)
}

// IsRemoval reports whether an edit summary describes removing entries.
func IsRemoval(comment string) bool {
	return strings.Contains(strings.ToLower(comment), "removed")
}

// Scan processes every removal the bot made on page during year.
//
// Failures of a single revision are logged and counted; the scan moves on.
// Listing failures, store failures and cancellation fail the run. The final
// run snapshot is stored in every case where the store is reachable.
func (s *Scanner) Scan(ctx context.Context, page string, year int) (*rfc.Run, error) {
	start, end := Window(year)
	run := &rfc.Run{
		ID:          uuid.NewString(),
		Bot:         s.bot,
		Page:        page,
		Year:        year,
		WindowStart: start,
		WindowEnd:   end,
		State:       rfc.RunNotStarted,
	}

	run.StartedAt = s.now()
	run.State = rfc.RunRunning
	if err := s.store.SaveRun(ctx, run); err != nil {
		return s.fail(ctx, run, fmt.Errorf("save run: %w", err))
	}
	s.logger.Info("History scan started",
		"run_id", run.ID,
		"page", page,
		"year", year,
		"bot", s.bot)

	revisions, err := s.wiki.Revisions(ctx, page, s.bot, start, end)
	if err != nil {
		return s.fail(ctx, run, fmt.Errorf("list revisions: %w", err))
	}

	for _, rev := range revisions {
		if err := ctx.Err(); err != nil {
			s.logger.Info("Context cancelled, stopping history scan", "run_id", run.ID, "error", err)
			return s.fail(ctx, run, err)
		}

		run.RevisionsExamined++
		if !IsRemoval(rev.Comment) {
			continue
		}
		run.RemovalsFound++

		seen, err := s.store.RevisionSeen(ctx, rev.ID)
		if err != nil {
			return s.fail(ctx, run, fmt.Errorf("check revision %d: %w", rev.ID, err))
		}
		if seen {
			run.Skipped++
			s.logger.Debug("Revision already processed", "revision_id", rev.ID)
			continue
		}

		records, st, err := s.examine(ctx, run, page, rev)
		if err != nil {
			run.Errors++
			s.logger.Warn("Revision skipped",
				"run_id", run.ID,
				"page", page,
				"revision_id", rev.ID,
				"parent_revision_id", rev.ParentID,
				"stage", st,
				"error", err)
			continue
		}

		for _, r := range records {
			if err := s.store.AppendRecord(ctx, r); err != nil {
				return s.fail(ctx, run, fmt.Errorf("append record %s: %w", r.Identifier, err))
			}
			run.RecordsSaved++
		}
		mark := storage.RevisionMark{ProcessedAt: s.now(), RunID: run.ID, Records: len(records)}
		if err := s.store.MarkRevision(ctx, rev.ID, mark); err != nil {
			return s.fail(ctx, run, fmt.Errorf("mark revision %d: %w", rev.ID, err))
		}
		s.logger.Info("Revision persisted",
			"run_id", run.ID,
			"revision_id", rev.ID,
			"stage", stagePersisted,
			"records", len(records))
	}

	run.State = rfc.RunCompleted
	run.FinishedAt = s.now()
	if err := s.store.SaveRun(ctx, run); err != nil {
		return run, fmt.Errorf("save run: %w", err)
	}
	s.logger.Info("History scan completed",
		"run_id", run.ID,
		"page", page,
		"year", year,
		"revisions_examined", run.RevisionsExamined,
		"removals_found", run.RemovalsFound,
		"records_saved", run.RecordsSaved,
		"skipped", run.Skipped,
		"errors", run.Errors,
		"duration_ms", run.FinishedAt.Sub(run.StartedAt).Milliseconds())
	return run, nil
}

// fail finalizes the run as failed and stores its snapshot.
func (s *Scanner) fail(ctx context.Context, run *rfc.Run, cause error) (*rfc.Run, error) {
	run.State = rfc.RunFailed
	run.FinishedAt = s.now()
	run.Error = cause.Error()
	s.logger.Error("History scan failed", "run_id", run.ID, "page", run.Page, "year", run.Year, "error", cause)

	// The snapshot is written even when the scan was cancelled.
	if err := s.store.SaveRun(context.WithoutCancel(ctx), run); err != nil {
		s.logger.Error("Failed to save run snapshot", "run_id", run.ID, "error", err)
	}
	return run, cause
}

// examine turns one removal revision into records without persisting them.
func (s *Scanner) examine(ctx context.Context, run *rfc.Run, page string, rev rfc.Revision) ([]*rfc.Record, stage, error) {
	if rev.ParentID == 0 {
		return nil, stagePending, errors.New("revision has no parent")
	}

	markup, err := s.wiki.Compare(ctx, rev.ParentID, rev.ID)
	if err != nil {
		return nil, stagePending, fmt.Errorf("fetch diff: %w", err)
	}

	span, err := diff.Parse(markup)
	if err != nil {
		return nil, stageDiffFetched, err
	}

	segments := extract.Segments(span.Deleted)
	if len(segments) == 0 {
		return nil, stageParsed, ErrNoSegments
	}

	targets := wikitext.RemovalTargets(rev.Comment)
	records := make([]*rfc.Record, 0, len(segments))
	for _, seg := range segments {
		if len(targets) > 0 && !slices.Contains(targets, seg.Page) {
			s.logger.Warn("Removed entry not named in edit summary",
				"revision_id", rev.ID,
				"identifier", seg.Identifier,
				"target", seg.Page,
				"comment", rev.Comment)
		}

		attr := extract.Attribute(seg.SpanText)
		if attr.User == nil || attr.OpenedAt == nil {
			s.logger.Debug("Partial attribution",
				"revision_id", rev.ID,
				"identifier", seg.Identifier,
				"has_user", attr.User != nil,
				"has_opened_at", attr.OpenedAt != nil)
		}

		r := &rfc.Record{
			RemovedAt:      rev.Timestamp,
			OpenedAt:       attr.OpenedAt,
			User:           attr.User,
			Identifier:     seg.Identifier,
			LinkText:       seg.LinkMarker,
			ListPage:       page,
			Body:           seg.SpanText,
			RunID:          run.ID,
			RevisionID:     rev.ID,
			ParentRevision: rev.ParentID,
		}
		if s.keywords != nil {
			r.Keywords = s.keywords.Extract(seg.SpanText)
		}
		records = append(records, r)
	}
	return records, stageParsed, nil
}

// ScanYears scans consecutive years starting at from, stopping at the
// first failed run.
func (s *Scanner) ScanYears(ctx context.Context, page string, from, years int) ([]*rfc.Run, error) {
	var runs []*rfc.Run
	for year := from; year < from+years; year++ {
		run, err := s.Scan(ctx, page, year)
		if run != nil {
			runs = append(runs, run)
		}
		if err != nil {
			return runs, err
		}
	}
	return runs, nil
}
