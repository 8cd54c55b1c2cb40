package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stwalsh4118/siteplan/internal/models"
	"github.com/stwalsh4118/siteplan/internal/repository"
)

func newHistoryCmd() *cobra.Command {
	var layer, key string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show every recorded version of a geometry record",
		Example: `  siteplan history --layer parcel --key 3/RP12345
  siteplan history --layer zone --key "Low Density Residential Zone@1182" -o yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := models.ParseLayer(layer)
			if err != nil {
				return err
			}
			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			entries, err := repository.NewGeometryRepository(rt.db).History(cmd.Context(), l, key)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return fmt.Errorf("no history for %s %s", l, key)
			}
			return printOutput(cmd.OutOrStdout(), outputFormat, entries)
		},
	}

	cmd.Flags().StringVar(&layer, "layer", "", "Layer: parcel, address, zone or overlay (required)")
	cmd.Flags().StringVar(&key, "key", "", "Business key of the record (required)")
	_ = cmd.MarkFlagRequired("layer")
	_ = cmd.MarkFlagRequired("key")

	return cmd
}
