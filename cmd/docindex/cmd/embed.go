package cmd

import (
	"time"

	"github.com/spf13/cobra"

	dierrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/ui"
)

func newEmbedCmd(g *globals) *cobra.Command {
	var plain bool

	cmd := &cobra.Command{
		Use:   "embed",
		Short: "Compute missing embeddings for indexed documents",
		Long: `Embed every active document that has no vectors for the configured
model. serve does this after each poll; this command is for the first
large backfill or after changing embedding.model.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			if app.Embedder == nil {
				return dierrors.ConfigError("embedding.provider is none", nil).
					WithSuggestion("set embedding.provider to ollama or static")
			}
			if !app.Embedder.Available(cmd.Context()) {
				return dierrors.UpstreamUnavailable("embedder "+app.Embedder.ModelName()+" is not reachable", nil).
					WithSuggestion("start Ollama or set embedding.provider: static")
			}

			r := ui.NewRenderer(ui.Config{
				Output:     cmd.OutOrStdout(),
				ForcePlain: plain,
				NoColor:    g.noColor,
				Title:      "Embedding with " + app.Embedder.ModelName(),
			})
			if err := r.Start(cmd.Context()); err != nil {
				return err
			}

			start := time.Now()
			res, err := app.Poller.Backfill(cmd.Context(), app.Embedder, func(done, total int) {
				r.Update(ui.ProgressEvent{Stage: ui.StageEmbedding, Current: done, Total: total})
			})
			r.Complete(ui.Summary{
				Documents: res.Embedded,
				Chunks:    res.Chunks,
				Failed:    res.Failed,
				Skipped:   res.Skipped,
				Model:     app.Embedder.ModelName(),
				Duration:  time.Since(start),
			})
			_ = r.Stop()
			return err
		},
	}

	cmd.Flags().BoolVar(&plain, "plain", false, "Plain progress output even on a terminal")
	return cmd
}
