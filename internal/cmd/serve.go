package cmd

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/govbatch/govbatch/internal/core/engine"
	"github.com/govbatch/govbatch/internal/core/store"
	errwrap "github.com/govbatch/govbatch/internal/errors"
	"github.com/govbatch/govbatch/internal/gov"
	"github.com/govbatch/govbatch/internal/observability"
	"github.com/govbatch/govbatch/internal/server"
	"github.com/govbatch/govbatch/internal/server/handlers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the HTTP server with graceful shutdown support.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit

The server cleanly shuts down the HTTP listener and flushes logs on
shutdown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.ValidateAPI(); err != nil {
			return err
		}

		observability.InitServerLogger("govbatch", cfg.Logging.Level)
		logger := observability.ServerLogger

		client, err := gov.NewClient(cfg.API.BaseURL, cfg.API.Token)
		if err != nil {
			return err
		}
		client.HTTPClient.Timeout = cfg.APITimeout()

		tracker, err := engine.NewTracker(cfg.Categories(), cfg.Rate.SafetyThreshold)
		if err != nil {
			return err
		}
		runner := &engine.Runner{
			Throttle: &engine.Throttle{
				Tracker:     tracker,
				Executor:    client,
				MaxRetries:  cfg.Batch.MaxRetries,
				BaseBackoff: cfg.Batch.BaseBackoff,
				MaxBackoff:  cfg.Batch.MaxBackoff,
				Logger:      logger,
			},
			Logger: logger,
		}

		var db *store.Store
		if strings.TrimSpace(cfg.Store.Path) != "" || strings.TrimSpace(cfg.Store.URL) != "" {
			db, err = store.Open(cmd.Context(), cfg.Store)
			if err != nil {
				return errwrap.WrapDatabaseError(cmd.Context(), err, "failed to open audit store")
			}
			if err := db.Migrate(cmd.Context()); err != nil {
				_ = db.Close()
				return errwrap.WrapDatabaseError(cmd.Context(), err, "failed to migrate audit store")
			}
		}

		handlers.SetVersionInfo(versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)

		srv := server.New(cfg.Server, server.Deps{
			Runner:   runner,
			Tracker:  tracker,
			Store:    db,
			Defaults: cfg.Batch,
		})

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 10 * time.Second
		}

		// Shutdown handlers run LIFO: stop the server first, flush the
		// logger last.
		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Flushing logger...")
			if err := logger.Sync(); err != nil {
				logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
			}
			return nil
		})
		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}
			if db != nil {
				if err := db.Close(); err != nil {
					logger.Warn("Audit store close returned error", zap.Error(err))
				}
			}
			logger.Info("HTTP server stopped gracefully")
			return nil
		})

		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
		}

		errChan := make(chan error, 2)
		go func() {
			logger.Info("Starting HTTP server...",
				zap.String("host", cfg.Server.Host),
				zap.Int("port", cfg.Server.Port))
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				errChan <- err
			}
		}()

		go func() {
			err := signals.Listen(cmd.Context())
			if err != nil {
				logger.Error("Signal handler error", zap.Error(err))
			}
			errChan <- err
		}()

		// Wait for a server error or shutdown completion.
		if err := <-errChan; err != nil {
			return errwrap.WrapInternal(cmd.Context(), err, "server error")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "server host (default from config)")
	serveCmd.Flags().IntP("port", "p", 0, "server port (default from config)")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
