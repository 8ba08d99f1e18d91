package report

import (
	"context"
	"fmt"
	"log/slog"
)

// Publisher writes a rendered report to its destination.
type Publisher interface {
	Publish(ctx context.Context, title, text, summary string) error
}

// Editor interface for saving wiki pages.
type Editor interface {
	Edit(ctx context.Context, title, text, summary string) (int64, error)
}

// WikiPublisher saves reports as wiki pages.
type WikiPublisher struct {
	editor Editor
	logger *slog.Logger
}

// NewWikiPublisher creates a publisher that edits pages through editor.
func NewWikiPublisher(editor Editor, logger *slog.Logger) *WikiPublisher {
	return &WikiPublisher{editor: editor, logger: logger}
}

// Publish replaces the page text.
func (p *WikiPublisher) Publish(ctx context.Context, title, text, summary string) error {
	revid, err := p.editor.Edit(ctx, title, text, summary)
	if err != nil {
		return fmt.Errorf("publish %s: %w", title, err)
	}
	p.logger.Info("Report published", "title", title, "revision_id", revid, "bytes", len(text))
	return nil
}

// LogPublisher logs reports instead of saving them.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a dry-run publisher.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish logs the report.
func (p *LogPublisher) Publish(_ context.Context, title, text, summary string) error {
	p.logger.Info("Dry run, report not published", "title", title, "summary", summary, "bytes", len(text))
	p.logger.Debug("Report text", "title", title, "text", text)
	return nil
}
