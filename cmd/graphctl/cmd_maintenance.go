package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"social-graph-lab/internal/app"
	"social-graph-lab/internal/reporting"
)

// now is the clock used by date-sensitive commands.
func (c *cli) now() time.Time {
	return time.Now().UTC()
}

func (c *cli) pruneCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete daily stats older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if days <= 0 {
				days = c.cfg.Store.RetentionDays
			}
			n, err := c.app.Recorder.Prune(cmd.Context(), days, c.now())
			if err != nil {
				return err
			}
			return c.emit(stdout(cmd), map[string]int64{"removed": n}, func(w io.Writer) {
				fmt.Fprintf(w, "Removed %d records older than %d days\n", n, days)
			})
		},
	}
	cmd.Flags().IntVar(&days, "retention-days", 0, "Retention window (default from config)")
	return cmd
}

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations for the configured store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			storeCfg := c.cfg.Store
			storeCfg.AutoMigrate = true
			stores, err := app.OpenStores(cmd.Context(), storeCfg, c.logger)
			if err != nil {
				return err
			}
			defer stores.Close()

			return c.emit(stdout(cmd), map[string]interface{}{
				"backend": storeCfg.Backend,
				"applied": stores.Migrated,
			}, func(w io.Writer) {
				if len(stores.Migrated) == 0 {
					fmt.Fprintf(w, "%s: schema up to date\n", storeCfg.Backend)
					return
				}
				for _, name := range stores.Migrated {
					fmt.Fprintf(w, "%s: applied %s\n", storeCfg.Backend, name)
				}
			})
		},
	}
}

func (c *cli) exportCmd() *cobra.Command {
	var (
		outDir          string
		recommendations int
		historyDays     int
	)
	cmd := &cobra.Command{
		Use:   "export <account>",
		Short: "Write Markdown and CSV reports for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			acct, err := parseAccount(args[0])
			if err != nil {
				return err
			}
			report, err := c.app.Reports.Generate(cmd.Context(), acct, reporting.GenerateOptions{
				Recommendations: recommendations,
				HistoryDays:     historyDays,
			})
			if err != nil {
				return err
			}

			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
			files := map[string]string{
				"REPORT.md":           reporting.RenderMarkdown(report),
				"relationships.csv":   reporting.RenderRelationshipsCSV(report.Relationships),
				"recommendations.csv": reporting.RenderRecommendationsCSV(report.Recommendations),
				"history.csv":         reporting.RenderHistoryCSV(report.History),
			}
			for name, content := range files {
				if err := os.WriteFile(filepath.Join(outDir, name), []byte(content), 0o644); err != nil {
					return fmt.Errorf("write %s: %w", name, err)
				}
			}
			fmt.Fprintf(stdout(cmd), "Report written to %s/\n", outDir)
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "output-dir", "output", "Directory for report files")
	cmd.Flags().IntVar(&recommendations, "recommendations", 10, "Recommendations to include (0 skips)")
	cmd.Flags().IntVar(&historyDays, "history-days", 30, "History window to include (0 skips)")
	return cmd
}
