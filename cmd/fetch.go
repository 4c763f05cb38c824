package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	ET "github.com/IBM/fp-go/v2/either"
	"github.com/IBM/fp-go/v2/function"
	"github.com/spf13/cobra"
)

var fetchListFile string

var fetchCmd = &cobra.Command{
	Use:   "fetch [numbers...]",
	Short: "Fetch Google Patents result pages into the download directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		numbers, err := readNumbers(args, fetchListFile)
		if err != nil {
			return err
		}
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		return function.Pipe1(
			services.Downloader.FetchDocuments(ctx, numbers)(),
			ET.Fold(
				func(e error) error { return fmt.Errorf("fetch failed: %w", e) },
				func(sizes []int64) error {
					logger.Infow("Fetch completed", "pages", len(sizes))
					fmt.Fprintf(cmd.OutOrStdout(), "%d pages in %s\n", len(sizes), cfg.Download.Directory)
					return nil
				},
			),
		)
	},
}

func init() {
	fetchCmd.Flags().StringVar(&fetchListFile, "file", "", "File with one patent number per line")
}
