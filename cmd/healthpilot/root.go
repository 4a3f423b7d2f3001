package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ent0n29/healthpilot/internal/app"
	"github.com/ent0n29/healthpilot/internal/config"
	"github.com/ent0n29/healthpilot/internal/observability"
)

var envFile string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "healthpilot",
		Short: "Health Pilot voice session and command orchestration",
		Long: `healthpilot runs the voice companion service the Health Pilot UI connects to.

The browser attaches its microphone, speaker and speech engines over the
device bridge websocket; live sessions, push-to-talk commands and dictation
are driven through the HTTP control API.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadEnvFile(envFile, cmd.Flags().Changed("env-file"))
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	root.AddCommand(newServeCmd(), newToolsCmd(), newPerfCmd())
	return root
}

// loadEnvFile applies path when present. A missing default file is
// fine; a missing explicit one is not.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("env file %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("env file %s: %w", path, err)
	}
	return nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP control API and device bridge",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			logger, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	built, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := built.Cleanup(); err != nil {
			logger.Warn("cleanup failed", zap.Error(err))
		}
	}()

	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: built.API.Router(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening",
			zap.String("addr", cfg.BindAddr),
			zap.String("live_transport", built.Transport),
			zap.String("intent_mode", cfg.IntentMode),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown failed", zap.Error(err))
			_ = httpServer.Close()
		}
		return nil
	})

	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}
