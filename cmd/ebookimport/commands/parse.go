package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/ebookimport/chapterpipe"
)

// NewParseCmd creates the parse command.
func NewParseCmd() *cobra.Command {
	var (
		output      string
		contentType string
	)

	cmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "Split one file into draft chapters and print them",
		Example: `  ebookimport parse book.epub
  ebookimport parse --output markdown manuscript.pdf > book.md`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "json" && output != "markdown" {
				return fmt.Errorf("unsupported output %q (use json or markdown)", output)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			pipe, _ := newPipeline(cfg)

			batch, err := pipe.ImportFile(cmd.Context(), args[0], contentType)
			if err != nil {
				return err
			}
			return writeBatch(cmd.OutOrStdout(), pipe, batch, output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "json", "json or markdown")
	cmd.Flags().StringVar(&contentType, "content-type", "", "declared content type (default: guessed from the extension)")
	return cmd
}

func writeBatch(w io.Writer, pipe *chapterpipe.Pipeline, batch *chapterpipe.ChapterBatch, output string) error {
	if output == "markdown" {
		md, err := pipe.Markdown(batch)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, md)
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(batch)
}
