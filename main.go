// Package main implements a bot that tracks Wikipedia Requests for Comment:
// it scores open RFC discussions, reconstructs closed RFCs from list page
// history and publishes both as wiki reports.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/spf13/cobra"
	"google.golang.org/api/option"

	"rfc-tracker/config"
	"rfc-tracker/mediawiki"
	"rfc-tracker/report"
	"rfc-tracker/storage"
	"rfc-tracker/words"
)

var errNoCredentials = errors.New("wiki.username and wiki.password are required unless report.dry_run is set")

// app holds what every subcommand shares once configuration is loaded.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	wiki    *mediawiki.Client
	store   *storage.Store
	tracker *Tracker
}

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, a := newRootCmd()
	defer a.close()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() (*cobra.Command, *app) {
	var (
		configPath string
		a          app
	)

	root := &cobra.Command{
		Use:           "rfc-tracker",
		Short:         "Track Wikipedia Requests for Comment",
		Long:          `Scores participation in open RFCs and reconstructs closed RFCs from list page history.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	root.AddCommand(
		newAnalyzeCmd(&a),
		newHistoryCmd(&a),
		newRecordsCmd(&a),
		newRunsCmd(&a),
		newServeCmd(&a),
	)
	return root, &a
}

func (a *app) init(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	level, err := cfg.LogLevel()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	a.cfg = cfg
	a.logger = logger

	store, err := openStore(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Error("Failed to open store", "error", err)
		return err
	}
	a.store = store

	a.wiki = mediawiki.New(&http.Client{Timeout: 30 * time.Second}, mediawiki.Config{
		APIURL:            cfg.Wiki.APIURL,
		UserAgent:         cfg.Wiki.UserAgent,
		RequestsPerSecond: cfg.Wiki.RequestsPerSecond,
		Burst:             cfg.Wiki.Burst,
	}, logger)

	a.tracker = &Tracker{
		wiki:      a.wiki,
		store:     store,
		keywords:  words.NewTable(),
		publisher: newPublisher(cfg.Report, a.wiki, logger),
		logger:    logger,
		cfg:       cfg,
	}
	logger.Info("Configuration loaded",
		"api_url", cfg.Wiki.APIURL,
		"list_pages", len(cfg.RFC.ListPages),
		"workers", cfg.Pipeline.Workers,
		"dry_run", cfg.Report.DryRun)
	return nil
}

func newPublisher(cfg config.Report, editor report.Editor, logger *slog.Logger) report.Publisher {
	if cfg.DryRun {
		return report.NewLogPublisher(logger)
	}
	return report.NewWikiPublisher(editor, logger)
}

// login authenticates the bot before publishing. Dry runs never edit and
// live runs require credentials.
func (a *app) login(ctx context.Context) error {
	if a.cfg.Report.DryRun {
		return nil
	}
	if !a.cfg.HasCredentials() {
		a.logger.Error("Wiki credentials missing for a live run")
		return errNoCredentials
	}
	if err := a.wiki.Login(ctx, a.cfg.Wiki.Username, a.cfg.Wiki.Password); err != nil {
		a.logger.Error("Wiki login failed", "username", a.cfg.Wiki.Username, "error", err)
		return err
	}
	return nil
}

func (a *app) close() {
	if a.store == nil {
		return
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("Failed to close store", "error", err)
	}
}

// openStore uses the bucket when one is configured, the local database otherwise.
func openStore(ctx context.Context, cfg config.Storage, logger *slog.Logger) (*storage.Store, error) {
	if cfg.Bucket == "" {
		return storage.OpenLocal(cfg.LocalPath, logger)
	}

	// Without credentials_json the client falls back to application default credentials.
	var opts []option.ClientOption
	if cfg.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	logger.Info("Using Cloud Storage", "bucket", cfg.Bucket)
	return storage.New(client, cfg.Bucket, logger), nil
}
