package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Qubut/IP-Claim/packages/gpatents_processor/internal/patent"
)

var identifyTemplate string

var identifyCmd = &cobra.Command{
	Use:   "identify <text...>",
	Short: "Parse patent numbers and print their canonical form and result page path",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var failed []error
		for _, raw := range args {
			pn, err := patent.Parse(raw)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s\terror: %v\n", raw, err)
				failed = append(failed, err)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n",
				raw, pn.Format(identifyTemplate), pn.IDPath(cfg.GooglePatents.Language))
		}
		if len(failed) > 0 {
			return fmt.Errorf("%d of %d inputs invalid: %w", len(failed), len(args), errors.Join(failed...))
		}
		return nil
	},
}

func init() {
	identifyCmd.Flags().StringVar(&identifyTemplate, "format", patent.DefaultTemplate,
		"Output template with {country}, {number} and {kind} placeholders")
}
