// Package commands holds the ebookimport cobra command tree.
package commands

import (
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/ebookimport/chapterpipe"
	"github.com/hazyhaar/ebookimport/importapi"
)

var (
	configPath string
	logLevel   string
)

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ebookimport",
		Short: "Split ebook files into reviewable chapters",
		Long: `ebookimport turns PDF, EPUB and plain-text books into an ordered list of
draft chapters (title + content) ready for human review.

It runs as an HTTP service (serve), an MCP server for agents (mcp), an
inbox watcher (watch) or a one-shot converter (parse).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// A missing .env is normal in production.
			_ = godotenv.Load()
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")

	cmd.AddCommand(
		NewServeCmd(),
		NewParseCmd(),
		NewWatchCmd(),
		NewMCPCmd(),
		NewTokenCmd(),
		NewVersionCmd(),
	)
	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig reads the config file and environment, applying --log-level.
func loadConfig() (*importapi.Config, error) {
	cfg, err := importapi.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

// setupLogger installs a JSON slog handler on w as the default logger.
func setupLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

// newPipeline builds a pipeline from cfg, logging to stderr so stdout stays
// free for command output.
func newPipeline(cfg *importapi.Config) (*chapterpipe.Pipeline, *slog.Logger) {
	pc := cfg.PipelineConfig()
	pc.Logger = setupLogger(os.Stderr, cfg.LogLevel)
	return chapterpipe.New(pc), pc.Logger
}
