package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	dierrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/poller"
)

func newPollCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "poll [category]",
		Short: "Synchronize categories with disk once",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := g.setup(cmd, false)
			if err != nil {
				return err
			}
			defer e.cleanup()

			app, err := e.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			names := app.Poller.Categories()
			if len(args) == 1 {
				names = args
			}
			if len(names) == 0 {
				e.out.Warning("no categories configured")
				return nil
			}

			for _, name := range names {
				res, ok, err := app.Poller.PollCategory(cmd.Context(), name)
				if err != nil {
					return err
				}
				if !ok {
					return dierrors.NotFound(fmt.Sprintf("category %q is not configured", name))
				}
				e.out.Successf("%s: %s", name, summarize(res))
			}
			return nil
		},
	}
}

func summarize(r poller.PollResult) string {
	s := fmt.Sprintf("%d added, %d updated, %d removed, %d unchanged", r.Added, r.Updated, r.Removed, r.Unchanged)
	if r.Errors > 0 {
		s += fmt.Sprintf(", %d unreadable", r.Errors)
	}
	return s
}
