package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/docsite-search/internal/assets"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/internal/searcher/engine"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/pkg/logger"
)

type queryOptions struct {
	limit   int
	format  string
	index   string
	dict    string
	noColor bool
}

func newQueryCmd(root *rootOptions) *cobra.Command {
	var opts queryOptions

	cmd := &cobra.Command{
		Use:   "query <terms...>",
		Short: "Search the index from the terminal",
		Long: `Search the configured index and print ranked results.

Examples:
  docsearch query install
  docsearch query "search engine" --limit 5
  docsearch query 安装 --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := root.cfg
			// Logs go to stderr so stdout carries only results.
			logger.SetupWriter(cmd.ErrOrStderr(), cfg.Logging.Level, "text")
			if opts.index != "" {
				cfg.Assets.IndexPath = opts.index
			}
			if opts.dict != "" {
				cfg.Assets.DictionaryPath = opts.dict
			}

			eng := engine.New(engine.OptionsFromConfig(cfg), assets.NewLoader(nil), assets.NewFetcher(cfg.Assets), nil)
			res, err := eng.Search(cmd.Context(), strings.Join(args, " "), opts.limit)
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}

			out := cmd.OutOrStdout()
			switch opts.format {
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			case "text":
				st := defaultStyles()
				if opts.noColor || !isTerminal(out) || os.Getenv("NO_COLOR") != "" {
					st = plainStyles()
				}
				_, err := fmt.Fprint(out, renderResults(res, st))
				return err
			default:
				return fmt.Errorf("unknown format %q (want text or json)", opts.format)
			}
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "maximum number of results (0 uses the index setting)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "output format: text, json")
	cmd.Flags().StringVar(&opts.index, "index", "", "search index path or URL (overrides config)")
	cmd.Flags().StringVar(&opts.dict, "dict", "", "segmentation dictionary path or URL (overrides config)")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "disable colored output")
	return cmd
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
