package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"rfc-tracker/pkg/rfc"
	"rfc-tracker/reconcile"
	"rfc-tracker/server"
)

func newAnalyzeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Score open RFCs and publish participant stats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.login(ctx); err != nil {
				return err
			}
			summary, err := a.tracker.Analyze(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), summary.String())
			return nil
		},
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	var (
		page  string
		year  int
		years int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Reconstruct closed RFCs from a list page's edit history",
		Long: `Walks the revisions the archiving bot made to a list page during each
year of the window, diffs every removal against its parent revision and
stores one record per removed RFC. Revisions already processed are skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if page == "" {
				page = a.cfg.RFC.ListPages[0]
			}
			if years < 1 {
				return fmt.Errorf("--years must be at least 1, got %d", years)
			}
			if err := a.login(ctx); err != nil {
				return err
			}
			runs, err := a.tracker.History(ctx, page, year, years)
			printRuns(cmd.OutOrStdout(), runs)
			return err
		},
	}
	cmd.Flags().StringVar(&page, "page", "", "list page to scan (default: first configured list page)")
	cmd.Flags().IntVar(&year, "year", time.Now().UTC().Year()-1, "first calendar year to scan")
	cmd.Flags().IntVar(&years, "years", 1, "number of consecutive years to scan")
	return cmd
}

func newRecordsCmd(a *app) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "records",
		Short: "List stored closed-RFC records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			if id != "" {
				records, err := a.store.Records(ctx, id)
				if err != nil {
					return err
				}
				if len(records) == 0 {
					return fmt.Errorf("no records for %s", id)
				}
				printGroup(out, reconcile.Group{Identifier: id, Records: reconcile.Reconcile(records)})
				return nil
			}

			records, err := a.store.AllRecords(ctx)
			if err != nil {
				return err
			}
			groups := reconcile.ByIdentifier(records)
			for _, g := range groups {
				printGroup(out, g)
			}
			fmt.Fprintf(out, "%d RFCs, %d records\n", len(groups), len(records))
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "show only this RFC identifier")
	return cmd
}

func newRunsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "Show history scan runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			runs, err := a.store.Runs(cmd.Context())
			if err != nil {
				return err
			}
			printRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}
}

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve job triggers and stored results over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.login(ctx); err != nil {
				return err
			}
			srv := server.New(&server.Config{
				Tracker:     a.tracker,
				Store:       a.store,
				Logger:      a.logger,
				DefaultPage: a.cfg.RFC.ListPages[0],
			})
			return srv.ListenAndServe(ctx, a.cfg.Server.Port)
		},
	}
}

func printGroup(w io.Writer, g reconcile.Group) {
	bold := color.New(color.Bold).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Fprintf(w, "%s\n", bold(g.Identifier))
	for _, r := range g.Records {
		user := gray("unknown")
		if r.User != nil {
			user = *r.User
		}
		opened := gray("unknown")
		if r.OpenedAt != nil {
			opened = r.OpenedAt.UTC().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "  %-32s opened %s by %s, removed %s\n",
			reconcile.ListShortcut(r.ListPage),
			opened,
			user,
			r.RemovedAt.UTC().Format("2006-01-02 15:04"))
	}
}

func printRuns(w io.Writer, runs []*rfc.Run) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Fprintf(w, "%s\n", cyan("=== History Runs ==="))
	if len(runs) == 0 {
		fmt.Fprintf(w, "  %s\n", gray("No runs recorded"))
		return
	}

	for _, run := range runs {
		state := gray(string(run.State))
		switch run.State {
		case rfc.RunCompleted:
			state = green(string(run.State))
		case rfc.RunFailed:
			state = red(string(run.State))
		case rfc.RunRunning:
			state = yellow(string(run.State))
		}
		fmt.Fprintf(w, "  %s %d %-32s %s\n", run.ID, run.Year, reconcile.ListShortcut(run.Page), state)
		fmt.Fprintf(w, "    saved %s  errors %s  removals %d  revisions %d  skipped %d\n",
			green(run.RecordsSaved),
			red(run.Errors),
			run.RemovalsFound,
			run.RevisionsExamined,
			run.Skipped)
		if run.Error != "" {
			fmt.Fprintf(w, "    %s\n", red(run.Error))
		}
	}
}
