package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"social-graph-lab/internal/app"
	"social-graph-lab/internal/config"
	"social-graph-lab/internal/domain"
	"social-graph-lab/internal/observability"
)

// appFactory builds the components; tests swap it for a stub-backed App.
var appFactory = app.New

// cli carries state shared by every subcommand.
type cli struct {
	configPath string
	output     string // text | json

	cfg    *config.Config
	logger *zap.Logger
	app    *app.App
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "graphctl",
		Short:         "Inspect and manage follow relationships on the ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init(cmd.Context())
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			c.close()
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "YAML config file (overrides GRAPH_CONFIG_FILE)")
	root.PersistentFlags().StringVarP(&c.output, "output", "o", "text", "Output format: text or json")

	root.AddCommand(
		c.relationshipsCmd(),
		c.countsCmd(),
		c.recommendCmd(),
		c.mutationCmd(domain.ModeFollow),
		c.mutationCmd(domain.ModeUnfollow),
		c.statsCmd(),
		c.exportCmd(),
		c.pruneCmd(),
		c.migrateCmd(),
	)
	return root
}

func (c *cli) init(ctx context.Context) error {
	if c.output != "text" && c.output != "json" {
		return fmt.Errorf("unknown output format %q", c.output)
	}
	config.LoadDotEnv(".env")

	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	logger, err := observability.NewLogger(cfg.Log.Level, "console")
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := appFactory(ctx, cfg, logger)
	if err != nil {
		return err
	}
	c.cfg, c.logger, c.app = cfg, logger, a
	return nil
}

func (c *cli) close() {
	if c.app != nil {
		c.app.Close()
	}
	if c.logger != nil {
		_ = c.logger.Sync()
	}
}

// emit writes v as JSON, or calls text for the human format.
func (c *cli) emit(w io.Writer, v interface{}, text func(io.Writer)) error {
	if c.output == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

func parseAccount(raw string) (domain.AccountID, error) {
	return domain.NormalizeAccount(raw)
}

func stdout(cmd *cobra.Command) io.Writer {
	if cmd == nil {
		return os.Stdout
	}
	return cmd.OutOrStdout()
}
