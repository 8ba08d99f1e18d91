// Package discover finds open RFCs on list pages and scores their
// discussion sections.
//
// A single producer walks the list pages and feeds candidates into a bounded
// queue. Workers fetch each talk page, locate the RFC section and aggregate
// participant statistics. The producer blocks while the queue is full and
// closes it when every candidate has been queued; Run returns once the
// workers have drained it.
package discover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"rfc-tracker/mediawiki"
	"rfc-tracker/pkg/rfc"
	"rfc-tracker/stats"
	"rfc-tracker/wikitext"
)

const listPagePrefix = "wikipedia:requests for comment"

// Wiki interface for page access.
type Wiki interface {
	PageText(ctx context.Context, title string) (string, error)
	KillSwitch(ctx context.Context, title string) (bool, error)
}

// Keywords summarizes RFC text.
type Keywords interface {
	Extract(text string) string
}

// Config sizes the pipeline.
type Config struct {
	KillPage  string // Checked before each candidate is queued; empty disables the check
	Workers   int
	QueueSize int
	MaxPages  int // Candidates taken per list page; 0 means no limit
}

// Summary counts what happened to the candidates of one run.
type Summary struct {
	ListPages       int
	Candidates      int
	Scored          int
	PageNotFound    int
	SectionNotFound int
	Failed          int
	Dropped         int // Queued candidates not processed after the kill switch fired
	Killed          bool
}

// Pipeline discovers and scores open RFCs.
type Pipeline struct {
	wiki     Wiki
	keywords Keywords
	logger   *slog.Logger
	cfg      Config
}

// New creates a pipeline. Non-positive sizes default to one.
func New(wiki Wiki, keywords Keywords, cfg Config, logger *slog.Logger) *Pipeline {
	cfg.Workers = max(cfg.Workers, 1)
	cfg.QueueSize = max(cfg.QueueSize, 1)
	return &Pipeline{
		wiki:     wiki,
		keywords: keywords,
		logger:   logger,
		cfg:      cfg,
	}
}

// Candidates returns the RFC links on a list page in page order.
// Links to user pages and to other list pages are skipped, each identifier
// is taken once, and at most limit candidates are returned when limit > 0.
func Candidates(listPage, text string, limit int) []rfc.Candidate {
	var out []rfc.Candidate
	seen := make(map[string]bool)
	for _, l := range wikitext.RfcLinks(wikitext.StripDisabled(text)) {
		if strings.HasPrefix(l.Page, "User") {
			continue
		}
		if strings.Contains(strings.ToLower(l.Page), listPagePrefix) {
			continue
		}
		if seen[l.Identifier] {
			continue
		}
		seen[l.Identifier] = true
		out = append(out, rfc.Candidate{
			ListPage:   listPage,
			Page:       l.Page,
			Identifier: l.Identifier,
			LinkText:   l.Raw,
		})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// tally is Summary guarded for use by concurrent workers.
type tally struct {
	mu sync.Mutex
	s  Summary
}

func (t *tally) add(f func(*Summary)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f(&t.s)
}

// Run scores every candidate found on listPages. Results are ordered as the
// candidates were discovered. A cancelled context stops the run and returns
// the results scored so far with the context's error.
func (p *Pipeline) Run(ctx context.Context, listPages []string) ([]rfc.SectionStats, Summary, error) {
	queue := make(chan rfc.Candidate, p.cfg.QueueSize)
	var (
		killed  atomic.Bool
		mu      sync.Mutex
		results []rfc.SectionStats
		counts  tally
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(queue)
		return p.produce(gctx, listPages, queue, &killed, &counts)
	})

	for w := range p.cfg.Workers {
		g.Go(func() error {
			for c := range queue {
				if killed.Load() {
					counts.add(func(s *Summary) { s.Dropped++ })
					continue
				}
				if err := gctx.Err(); err != nil {
					return err
				}
				res, ok := p.score(gctx, w, c, &counts)
				if !ok {
					continue
				}
				mu.Lock()
				results = append(results, res)
				mu.Unlock()
			}
			return nil
		})
	}

	err := g.Wait()
	slices.SortFunc(results, func(a, b rfc.SectionStats) int {
		return a.Candidate.Order - b.Candidate.Order
	})

	summary := counts.s
	summary.Killed = killed.Load()
	p.logger.Info("Discovery completed",
		"list_pages", summary.ListPages,
		"candidates", summary.Candidates,
		"scored", summary.Scored,
		"page_not_found", summary.PageNotFound,
		"section_not_found", summary.SectionNotFound,
		"failed", summary.Failed,
		"dropped", summary.Dropped,
		"killed", summary.Killed)
	return results, summary, err
}

func (p *Pipeline) produce(ctx context.Context, listPages []string, queue chan<- rfc.Candidate, killed *atomic.Bool, counts *tally) error {
	order := 0
	for _, listPage := range listPages {
		text, err := p.wiki.PageText(ctx, listPage)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Warn("Failed to fetch list page", "list_page", listPage, "error", err)
			counts.add(func(s *Summary) { s.Failed++ })
			continue
		}
		counts.add(func(s *Summary) { s.ListPages++ })

		candidates := Candidates(listPage, text, p.cfg.MaxPages)
		p.logger.Info("Candidates found", "list_page", listPage, "count", len(candidates))

		for _, c := range candidates {
			if p.stopRequested(ctx) {
				killed.Store(true)
				return nil
			}
			c.Order = order
			order++
			select {
			case queue <- c:
				counts.add(func(s *Summary) { s.Candidates++ })
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// stopRequested checks the kill page. A failed check does not stop the run.
func (p *Pipeline) stopRequested(ctx context.Context) bool {
	if p.cfg.KillPage == "" {
		return false
	}
	stop, err := p.wiki.KillSwitch(ctx, p.cfg.KillPage)
	if err != nil {
		p.logger.Warn("Kill switch check failed", "kill_page", p.cfg.KillPage, "error", err)
		return false
	}
	if stop {
		p.logger.Warn("Kill switch set, no further candidates will be queued", "kill_page", p.cfg.KillPage)
	}
	return stop
}

// score processes one candidate. Failures are logged and counted.
func (p *Pipeline) score(ctx context.Context, worker int, c rfc.Candidate, counts *tally) (rfc.SectionStats, bool) {
	log := p.logger.With("worker", worker, "page", c.Page, "identifier", c.Identifier, "list_page", c.ListPage)

	text, err := p.wiki.PageText(ctx, c.Page)
	if err != nil {
		if mediawiki.IsPageNotFound(err) {
			log.Warn("RFC page not found")
			counts.add(func(s *Summary) { s.PageNotFound++ })
		} else {
			log.Warn("Failed to fetch RFC page", "error", err)
			counts.add(func(s *Summary) { s.Failed++ })
		}
		return rfc.SectionStats{}, false
	}

	sec, err := wikitext.Locate(text, c.Identifier)
	if err != nil {
		if errors.Is(err, wikitext.ErrSectionNotFound) {
			log.Warn("RFC section not found, likely archived or renamed")
			counts.add(func(s *Summary) { s.SectionNotFound++ })
		} else {
			log.Warn("Failed to locate RFC section", "error", err)
			counts.add(func(s *Summary) { s.Failed++ })
		}
		return rfc.SectionStats{}, false
	}

	agg := stats.Aggregate(sec.Body())
	res := rfc.SectionStats{
		Participants: agg.Participants,
		Candidate:    c,
		Heading:      sec.Heading,
		Unattributed: len(agg.Unattributed),
	}
	if p.keywords != nil {
		res.Keywords = p.keywords.Extract(wikitext.Render(sec.Body()))
	}
	counts.add(func(s *Summary) { s.Scored++ })
	log.Info("RFC scored", "heading", sec.Heading, "participants", len(res.Participants), "unattributed", res.Unattributed)
	return res, true
}

// String renders a one-line summary.
func (s Summary) String() string {
	return fmt.Sprintf("%d candidates from %d list pages: %d scored, %d page not found, %d section not found, %d failed, %d dropped",
		s.Candidates, s.ListPages, s.Scored, s.PageNotFound, s.SectionNotFound, s.Failed, s.Dropped)
}
