package main

import (
	"github.com/spf13/cobra"

	"tally/internal/platform/config"
)

func newRebuildCmd() *cobra.Command {
	var inputDir string
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Ingest a batch, run the pipeline and publish a snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromEnv()
			if inputDir != "" {
				cfg.InputDir = inputDir
			}
			a, err := wire(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.close()

			ds, err := a.rebuilder.Rebuild(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("published %s (digest %s)\n", ds.RunID, ds.Digest)
			return nil
		},
	}
	cmd.Flags().StringVar(&inputDir, "input", "", "batch directory (overrides TALLY_INPUT_DIR)")
	return cmd
}
