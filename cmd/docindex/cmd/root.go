// Package cmd implements the docindex command line.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docindex/internal/config"
	"github.com/Aman-CERP/docindex/internal/daemon"
	dierrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/logging"
	"github.com/Aman-CERP/docindex/internal/output"
	"github.com/Aman-CERP/docindex/pkg/version"
)

// globals are the persistent flags shared by every command.
type globals struct {
	configPath string
	debug      bool
	noColor    bool
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	g := &globals{}

	cmd := &cobra.Command{
		Use:   "docindex",
		Short: "Content-addressed document index with hybrid search",
		Long: `docindex keeps directories of Markdown, text and JSON documents in a
SQLite index, deduplicated by content hash, and serves lexical and
embedding-assisted search over HTTP.

Run 'docindex init' to write a config, then 'docindex serve'.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("docindex version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Config file (default ./docindex.yaml, then user config dir)")
	cmd.PersistentFlags().BoolVar(&g.debug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVar(&g.noColor, "no-color", false, "Disable colored output")

	cmd.AddCommand(
		newServeCmd(g),
		newPollCmd(g),
		newSearchCmd(g),
		newStatusCmd(g),
		newIndexCmd(g),
		newEmbedCmd(g),
		newInitCmd(g),
		newDoctorCmd(g),
		newVersionCmd(),
	)
	return cmd
}

// Execute runs the CLI and prints errors in CLI form.
func Execute() error {
	root := NewRootCmd()
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprint(os.Stderr, dierrors.FormatForCLI(err))
		return err
	}
	return nil
}

// env is the per-invocation state built from the globals.
type env struct {
	cfg     *config.Config
	logger  *slog.Logger
	out     *output.Writer
	cleanup func()
}

// setup loads the config and builds a logger. One-shot commands log
// warnings to stderr; serve logs at the configured level and to the log
// file.
func (g *globals) setup(cmd *cobra.Command, long bool) (*env, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}

	lc := logging.Config{
		Level:         "warn",
		Format:        cfg.Logging.Format,
		WriteToStderr: true,
		Stderr:        cmd.ErrOrStderr(),
	}
	if long {
		lc.Level = cfg.Logging.Level
		lc.FilePath = cfg.Logging.File
		lc.MaxSizeMB = cfg.Logging.MaxSizeMB
		lc.MaxFiles = cfg.Logging.MaxFiles
		lc.MaxAgeDays = cfg.Logging.MaxAgeDays
		lc.Compress = cfg.Logging.Compress
	}
	if g.debug {
		lc.Level = "debug"
		if lc.FilePath == "" {
			lc.FilePath = logging.DefaultLogPath(cfg.DataDir)
		}
	}

	logger, cleanup, err := logging.Setup(lc)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	return &env{
		cfg:     cfg,
		logger:  logger,
		out:     output.New(cmd.OutOrStdout(), g.noColor),
		cleanup: cleanup,
	}, nil
}

// open builds the components for a one-shot command.
func (e *env) open(ctx context.Context) (*daemon.App, error) {
	return daemon.Open(ctx, e.cfg, e.logger)
}
