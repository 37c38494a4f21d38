package cmd

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docindex/configs"
	"github.com/Aman-CERP/docindex/internal/config"
	dierrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/output"
)

func newInitCmd(g *globals) *cobra.Command {
	var (
		force bool
		user  bool
	)

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a commented docindex.yaml",
		Long: `Write the default configuration to dir/docindex.yaml (default: the
current directory), or to the user config directory with --user. Existing
files are kept unless --force is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.New(cmd.OutOrStdout(), g.noColor)

			target := "docindex.yaml"
			switch {
			case user:
				target = config.UserConfigPath()
				if target == "" {
					return dierrors.ConfigError("no user config directory on this system", nil)
				}
			case len(args) == 1:
				target = filepath.Join(args[0], "docindex.yaml")
			}

			if _, err := os.Stat(target); err == nil && !force {
				return dierrors.New(dierrors.ErrCodeConfigInvalid, target+" already exists", nil).
					WithSuggestion("pass --force to overwrite it")
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}

			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(target, []byte(configs.DefaultConfigTemplate), 0o644); err != nil {
				return err
			}

			out.Successf("wrote %s", target)
			out.Status("", "edit the categories, then run: docindex serve")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	cmd.Flags().BoolVar(&user, "user", false, "Write to the user config directory")
	return cmd
}
