// Package cmd provides the docsearch CLI commands.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/docsite-search/pkg/config"
)

type rootOptions struct {
	configPath string
	logLevel   string
	cfg        *config.Config
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "docsearch",
		Short: "Full-text search over a generated documentation site",
		Long: `docsearch loads a documentation site's search index and answers
queries with ranked, highlighted results.

  docsearch serve                 run the search API and page sessions
  docsearch query install guide   search from the terminal
  docsearch analytics             aggregate search events from Kafka
  docsearch loadtest              drive a running search API`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if opts.logLevel != "" {
				cfg.Logging.Level = opts.logLevel
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			opts.cfg = cfg
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to YAML config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging level (debug, info, warn, error)")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newQueryCmd(opts))
	root.AddCommand(newAnalyticsCmd(opts))
	root.AddCommand(newLoadTestCmd())
	return root
}

// Execute runs the root command, cancelling its context on SIGINT/SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}
