package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"rfc-tracker/config"
	"rfc-tracker/discover"
	"rfc-tracker/history"
	"rfc-tracker/pkg/rfc"
	"rfc-tracker/reconcile"
	"rfc-tracker/report"
)

// errKilled is returned when the kill page stops a job before it starts.
var errKilled = errors.New("kill switch set")

// Wiki is what the tracker needs from the wiki.
type Wiki interface {
	discover.Wiki
	history.Wiki
}

// Store is what the tracker needs from the record store.
type Store interface {
	history.Store
	AllRecords(ctx context.Context) ([]*rfc.Record, error)
	Runs(ctx context.Context) ([]*rfc.Run, error)
}

// Tracker runs the analyze and history jobs and publishes their reports.
type Tracker struct {
	wiki      Wiki
	store     Store
	keywords  discover.Keywords
	publisher report.Publisher
	logger    *slog.Logger
	cfg       *config.Config
}

// Analyze scores every open RFC on the configured list pages and publishes
// the stats report. Nothing is published when the kill switch cut the run short.
func (t *Tracker) Analyze(ctx context.Context) (discover.Summary, error) {
	pipeline := discover.New(t.wiki, t.keywords, discover.Config{
		KillPage:  t.cfg.Wiki.KillPage,
		Workers:   t.cfg.Pipeline.Workers,
		QueueSize: t.cfg.Pipeline.QueueSize,
		MaxPages:  t.cfg.RFC.MaxPages,
	}, t.logger)

	results, summary, err := pipeline.Run(ctx, t.cfg.RFC.ListPages)
	if err != nil {
		return summary, fmt.Errorf("discover: %w", err)
	}
	if summary.Killed {
		t.logger.Warn("Kill switch stopped discovery, report not published", "summary", summary.String())
		return summary, nil
	}

	if err := t.publisher.Publish(ctx, t.cfg.RFC.ResultsPage, report.Stats(results), report.Summary); err != nil {
		return summary, err
	}
	return summary, nil
}

// History scans years of a list page's history starting at year, then
// publishes the closed-RFC and run reports beneath the results page.
func (t *Tracker) History(ctx context.Context, page string, year, years int) ([]*rfc.Run, error) {
	if t.cfg.Wiki.KillPage != "" {
		stop, err := t.wiki.KillSwitch(ctx, t.cfg.Wiki.KillPage)
		if err != nil {
			t.logger.Warn("Kill switch check failed", "kill_page", t.cfg.Wiki.KillPage, "error", err)
		}
		if stop {
			return nil, errKilled
		}
	}

	scanner := history.New(t.wiki, t.store, t.keywords, t.cfg.RFC.Bot, t.logger)
	runs, err := scanner.ScanYears(ctx, page, year, years)
	if err != nil {
		return runs, err
	}

	records, err := t.store.AllRecords(ctx)
	if err != nil {
		return runs, fmt.Errorf("load records: %w", err)
	}
	allRuns, err := t.store.Runs(ctx)
	if err != nil {
		return runs, fmt.Errorf("load runs: %w", err)
	}

	text := report.History(reconcile.ByIdentifier(records)) + "\n" + report.Runs(allRuns)
	if err := t.publisher.Publish(ctx, t.cfg.RFC.ResultsPage+"/History", text, report.Summary); err != nil {
		return runs, err
	}
	return runs, nil
}
