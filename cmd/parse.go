package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Parse cached result pages to JSONL and CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		summary, err := services.Parser.ParseAll(
			ctx,
			cfg.Download.Directory,
			cfg.Parse.OutputJSONL,
			cfg.Parse.OutputCSV,
			int64(cfg.Parse.Workers),
		)
		if err != nil {
			return fmt.Errorf("parse failed: %w", err)
		}
		logger.Infow("Parse completed", "run_id", summary.RunID, "parsed", summary.Parsed, "rejected", summary.Rejected)
		fmt.Fprintf(cmd.OutOrStdout(), "%d pages: %d parsed, %d rejected\n",
			summary.Pages, summary.Parsed, summary.Rejected)
		return nil
	},
}
