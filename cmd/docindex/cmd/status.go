package cmd

import (
	"encoding/json"
	"sort"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docindex/internal/daemon"
)

type statusReport struct {
	TotalDocs     int            `json:"total_docs"`
	Categories    map[string]int `json:"categories"`
	Embeddings    int            `json:"embeddings"`
	EmbedModel    string         `json:"embed_model,omitempty"`
	DaemonRunning bool           `json:"daemon_running"`
	DaemonPID     int            `json:"daemon_pid,omitempty"`
	Database      string         `json:"database"`
}

func newStatusCmd(g *globals) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show document counts and daemon state",
		Args:  cobra.NoArgs,
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

			st, err := app.Store.GetStatus(cmd.Context())
			if err != nil {
				return err
			}
			rep := statusReport{
				TotalDocs:  st.TotalDocs,
				Categories: st.Categories,
				Database:   e.cfg.DatabasePath(),
			}
			if app.Embedder != nil {
				rep.EmbedModel = app.Embedder.ModelName()
			}
			if rep.Embeddings, err = app.Store.CountEmbeddings(cmd.Context(), rep.EmbedModel); err != nil {
				return err
			}
			rep.DaemonPID, rep.DaemonRunning = daemon.NewPIDFile(e.cfg.DataDir).Running()
			if !rep.DaemonRunning {
				rep.DaemonPID = 0
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			}

			e.out.Heading("docindex status")
			e.out.KeyValue("documents", rep.TotalDocs)
			names := make([]string, 0, len(rep.Categories))
			for name := range rep.Categories {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				e.out.KeyValue("  "+name, rep.Categories[name])
			}
			e.out.KeyValue("embeddings", rep.Embeddings)
			if rep.EmbedModel != "" {
				e.out.KeyValue("model", rep.EmbedModel)
			}
			if rep.DaemonRunning {
				e.out.KeyValue("daemon", "running")
				e.out.KeyValue("pid", rep.DaemonPID)
			} else {
				e.out.KeyValue("daemon", "stopped")
			}
			e.out.KeyValue("database", rep.Database)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print status as JSON")
	return cmd
}
