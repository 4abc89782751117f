package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/zynqcloud/go-dropzone/internal/cleanup"
	"github.com/zynqcloud/go-dropzone/internal/config"
	"github.com/zynqcloud/go-dropzone/internal/destination"
	"github.com/zynqcloud/go-dropzone/internal/handler"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := config.Load()

	dest := destination.NewStore()
	if cfg.Destination != "" {
		if err := dest.Set(cfg.Destination); err != nil {
			logger.Error("invalid initial destination", "path", cfg.Destination, "err", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("DROPZONE_DESTINATION is not set; uploads fail until POST /set-path")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	cleanup.RunPeriodic(ctx, dest, cfg.StagingTTL, cfg.CleanupInterval, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler.New(cfg, dest, logger),
		// These bound the admin and health routes. POST /upload replaces the
		// read and write deadlines with UPLOAD_TIMEOUT (none by default), since
		// a folder of large files may take hours to arrive.
		ReadHeaderTimeout: time.Minute,
		ReadTimeout:       30 * time.Minute,
		WriteTimeout:      30 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	go func() {
		logger.Info("upload service starting", "port", cfg.Port, "destination", cfg.Destination)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, shutdownSignals...)
	<-quit

	logger.Info("shutdown signal received, draining connections")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	}
	logger.Info("upload service stopped")
}
