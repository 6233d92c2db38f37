package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/ebookimport/blobstore"
	"github.com/hazyhaar/ebookimport/chapterpipe"
	"github.com/hazyhaar/ebookimport/importapi"
	"github.com/hazyhaar/ebookimport/observability"
	"github.com/hazyhaar/ebookimport/shield"
	"github.com/hazyhaar/ebookimport/store"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP import service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("config: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides config and PORT)")
	return cmd
}

func serve(ctx context.Context, cfg *importapi.Config) error {
	logger := setupLogger(os.Stderr, cfg.LogLevel)

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	if err := observability.Init(st.DB()); err != nil {
		return fmt.Errorf("init audit schema: %w", err)
	}

	pc := cfg.PipelineConfig()
	pc.Logger = logger
	pipe := chapterpipe.New(pc)

	deps := importapi.Deps{
		Pipeline:  pipe,
		Store:     st,
		JWTSecret: []byte(cfg.JWTSecret),
		Logger:    logger,
		Metrics:   observability.NewMetrics(),
	}
	if cfg.BlobDir != "" {
		blobs, err := blobstore.New(cfg.BlobDir, cfg.PublicBaseURL)
		if err != nil {
			return err
		}
		deps.Blobs = blobs
	}

	if err := shield.InitRateLimits(st.DB()); err != nil {
		return err
	}
	limiter := shield.NewRateLimiter(st.DB())
	limiter.StartReloader(ctx)
	deps.Limiter = limiter

	audit := observability.NewAuditLogger(st.DB(), 1000)
	defer audit.Close()
	deps.Audit = audit
	go cleanupLoop(ctx, audit, cfg.AuditDays, logger)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           importapi.NewServer(deps).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ebookimport listening", "addr", cfg.Listen, "db", cfg.DBPath, "blobs", cfg.BlobDir != "")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", "grace", cfg.ShutdownGrace)
	shutCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// cleanupLoop trims the audit log once at startup and then daily.
func cleanupLoop(ctx context.Context, audit *observability.AuditLogger, days int, logger *slog.Logger) {
	if days <= 0 {
		return
	}
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		n, err := audit.Cleanup(ctx, days)
		if err != nil && ctx.Err() == nil {
			logger.Warn("audit cleanup failed", "error", err)
		} else if n > 0 {
			logger.Info("audit cleanup", "deleted", n, "retention_days", days)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
