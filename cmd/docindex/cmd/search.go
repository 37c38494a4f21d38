package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	dierrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/search"
)

func newSearchCmd(g *globals) *cobra.Command {
	var (
		category string
		limit    int
		mode     string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the index",
		Example: `  docindex search hue bridge
  docindex search --category skills --mode lexical "audio routing"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			if strings.TrimSpace(query) == "" {
				return dierrors.BadRequest("query must not be empty")
			}
			m, err := search.ParseMode(mode)
			if err != nil {
				return dierrors.BadRequest(err.Error())
			}

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

			resp, err := app.Engine.Search(cmd.Context(), search.Request{
				Query:    query,
				Category: category,
				Limit:    limit,
				Mode:     m,
			})
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"query":    query,
					"mode":     resp.Mode,
					"degraded": resp.Degraded,
					"results":  resp.Results,
				})
			}

			if len(resp.Results) == 0 {
				e.out.Warningf("no results for %q", query)
				return nil
			}
			e.out.Heading(fmt.Sprintf("%d results for %q (%s)", len(resp.Results), query, resp.Mode))
			if resp.Degraded {
				e.out.Warning("embeddings unavailable, showing lexical ranking")
			}
			for i, r := range resp.Results {
				e.out.Status(fmt.Sprintf("%2d.", i+1), fmt.Sprintf("%s  [%s] %s  (%.3f)", r.Title, r.Category, r.Path, r.Score))
				if r.Snippet != "" {
					e.out.Dim(r.Snippet)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "Restrict to one category")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum results (default search.default_limit)")
	cmd.Flags().StringVar(&mode, "mode", "", "lexical, hybrid or semantic (default from search.rerank)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	return cmd
}
