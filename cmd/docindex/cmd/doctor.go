package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docindex/internal/embed"
	dierrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/preflight"
)

func newDoctorCmd(g *globals) *cobra.Command {
	var asJSON, verbose bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the data directory, category roots and embedder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := g.setup(cmd, false)
			if err != nil {
				return err
			}
			defer e.cleanup()

			embedder, err := embed.New(e.cfg.Embedding, e.logger)
			if err != nil {
				return dierrors.ConfigError("invalid embedding config", err)
			}
			if embedder != nil {
				defer func() { _ = embedder.Close() }()
			}

			checker := preflight.New(
				preflight.WithOutput(cmd.OutOrStdout()),
				preflight.WithVerbose(verbose),
			)
			results := checker.RunAll(cmd.Context(), e.cfg, embedder)

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(map[string]any{
					"status": checker.SummaryStatus(results),
					"checks": results,
				}); err != nil {
					return err
				}
			} else {
				checker.PrintResults(results)
			}

			if checker.HasCriticalFailures(results) {
				return dierrors.ConfigError("environment checks failed", nil).
					WithSuggestion("fix the FAIL entries above and run 'docindex doctor' again")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show details for passing checks")
	return cmd
}
