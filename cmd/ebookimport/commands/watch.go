package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/ebookimport/chapterpipe"
	"github.com/hazyhaar/ebookimport/horosafe"
	"github.com/hazyhaar/ebookimport/watch"
)

// NewWatchCmd creates the watch command.
func NewWatchCmd() *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch <inbox> <outbox>",
		Short: "Import every file dropped into a directory",
		Long: `watch imports each PDF, EPUB or text file that appears in <inbox> and writes
<outbox>/<name>.chapters.json, or <outbox>/<name>.error.json when the import
fails. Files already present at startup are imported too.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			pipe, logger := newPipeline(cfg)
			outbox := args[1]
			if err := os.MkdirAll(outbox, 0o755); err != nil {
				return fmt.Errorf("create outbox: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			inbox := watch.New(args[0], watch.Options{Debounce: debounce, Logger: logger})
			err = inbox.Run(ctx, importTo(pipe, outbox))
			st := inbox.Stats()
			logger.Info("watch stopped", "processed", st.Processed, "errors", st.Errors)
			return err
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "quiet period before a changed file is imported")
	return cmd
}

type importFailure struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// importTo returns a watch handler that writes each result next to the
// others in outbox.
func importTo(pipe *chapterpipe.Pipeline, outbox string) watch.Handler {
	return func(ctx context.Context, path string) error {
		name := filepath.Base(path)
		batch, err := pipe.ImportFile(ctx, path, "")
		if err != nil {
			if werr := writeJSONFile(outbox, name+".error.json", importFailure{File: name, Error: err.Error()}); werr != nil {
				return werr
			}
			return err
		}
		return writeJSONFile(outbox, name+".chapters.json", batch)
	}
}

func writeJSONFile(dir, name string, v any) error {
	dst, err := horosafe.SafePath(dir, name)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, dst)
}
