package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/config"
	"github.com/kipp7/landslide-monitoring-v2-sub006/pkg/logger"
)

const stopTimeout = 30 * time.Second

var ErrStopTimeout = errors.New("workers did not stop in time")

// Main runs one deployable role until a stop signal or a worker failure.
func Main(role config.Role) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.MustLoadConfig(role)
	config.MustPrintConfig(cfg)

	log := logger.MustSetupLogger(&logger.Config{
		Level:      cfg.Logger.Level,
		FormatJSON: cfg.Logger.FormatJSON,
		Service:    cfg.App.ServiceName,
		Rotation: logger.Rotation{
			File:       cfg.Logger.Rotation.File,
			MaxSize:    cfg.Logger.Rotation.MaxSize,
			MaxBackups: cfg.Logger.Rotation.MaxBackups,
			MaxAge:     cfg.Logger.Rotation.MaxAge,
		},
	})

	application := MustNew(cfg, log)

	defer func() {
		if err := application.Shutdown(); err != nil {
			log.Error("Failed to shutdown application", zap.Error(err))
		}

		if err := log.Sync(); err != nil {
			log.Warn("Failed to sync logger", zap.Error(err))
		}

		log.Info("Application has shutdown")
	}()

	if err := serve(ctx, log, application.Run, stopTimeout); err != nil {
		log.Error("Application stopped with error", zap.Error(err))
	}
}

// serve returns when run does. After ctx is cancelled it waits at most timeout for run to return.
func serve(ctx context.Context, log *zap.Logger, run func(ctx context.Context) error, timeout time.Duration) error {
	done := make(chan error, 1)

	go func() { done <- run(ctx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		log.Info("Received stop signal, shutting down...")
	}

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		log.Warn("Workers did not stop in time", zap.Duration("timeout", timeout))
		return ErrStopTimeout
	}
}
