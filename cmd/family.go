package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	ET "github.com/IBM/fp-go/v2/either"
	"github.com/spf13/cobra"

	"github.com/Qubut/IP-Claim/packages/gpatents_processor/internal/familizer"
)

var (
	familyResponseFile string
	familyListFile     string
)

var familyCmd = &cobra.Command{
	Use:   "family [numbers...]",
	Short: "Resolve patent families, or parse a saved lookup response with --response",
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			res familizer.Result
			err error
		)
		if familyResponseFile != "" {
			content, readErr := os.ReadFile(familyResponseFile)
			if readErr != nil {
				return fmt.Errorf("read response: %w", readErr)
			}
			res, err = familizer.Parse(content)
		} else {
			numbers, numErr := readNumbers(args, familyListFile)
			if numErr != nil {
				return numErr
			}
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			res, err = ET.UnwrapError(services.Downloader.ResolveFamilies(ctx, numbers)())
		}
		if err != nil {
			return fmt.Errorf("family lookup failed: %w", err)
		}
		logger.Infow("Family lookup completed", "inputs", res.Len())

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	familyCmd.Flags().StringVar(&familyResponseFile, "response", "", "Saved family lookup response to parse instead of querying")
	familyCmd.Flags().StringVar(&familyListFile, "file", "", "File with one patent number per line")
}
