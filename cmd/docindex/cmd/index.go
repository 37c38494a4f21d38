package cmd

import (
	"io"
	"os"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docindex/internal/chunk"
	dierrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/store"
)

func newIndexCmd(g *globals) *cobra.Command {
	var title string

	cmd := &cobra.Command{
		Use:   "index <category> <path> <file|->",
		Short: "Add or update one document directly",
		Long: `Store the contents of file (or stdin for "-") as the document at
category/path, exactly like POST /index. Re-indexing identical content is a
no-op. The document is replaced or removed by the next poll if the category
directory disagrees.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			category, docPath, src := args[0], args[1], args[2]

			var data []byte
			var err error
			if src == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(src)
			}
			if err != nil {
				return dierrors.New(dierrors.ErrCodeFileRead, "read document", err).WithDetail("file", src)
			}
			if !utf8.Valid(data) {
				return dierrors.BadRequest("document is not valid UTF-8")
			}
			body := string(data)

			if title == "" {
				if t, ok := chunk.Title(body); ok {
					title = t
				} else {
					base := path.Base(docPath)
					title = strings.TrimSuffix(base, path.Ext(base))
				}
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

			res, err := app.Store.UpsertDocument(cmd.Context(), store.UpsertInput{
				Category: category,
				Path:     docPath,
				Title:    title,
				Body:     body,
				Mtime:    time.Now().UnixMilli(),
			})
			if err != nil {
				return err
			}
			e.out.Successf("%s %s/%s (%s)", res.Action, category, docPath, res.Hash[:12])
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Document title (default: first heading or file name)")
	return cmd
}
