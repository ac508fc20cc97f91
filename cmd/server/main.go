package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ichi0g0y/wheel-overlay/internal/env"
	"github.com/ichi0g0y/wheel-overlay/internal/localdb"
	"github.com/ichi0g0y/wheel-overlay/internal/settings"
	"github.com/ichi0g0y/wheel-overlay/internal/shared/logger"
	"github.com/ichi0g0y/wheel-overlay/internal/shared/paths"
	"github.com/ichi0g0y/wheel-overlay/internal/version"
	"github.com/ichi0g0y/wheel-overlay/internal/webserver"
	"github.com/ichi0g0y/wheel-overlay/internal/wheel"
	"go.uber.org/zap"
)

func main() {
	_ = logger.Init(false)
	defer logger.Sync()

	logger.Info("Starting wheel-overlay server", zap.String("version", version.String()))

	if err := paths.EnsureDataDirs(); err != nil {
		logger.Fatal("Failed to ensure data directories", zap.Error(err))
	}

	db, err := localdb.SetupDB(paths.GetDBPath())
	if err != nil {
		logger.Fatal("Failed to setup database", zap.Error(err))
	}
	defer db.Close()

	// env.LoadEnv must run after DB initialization and before defaults are
	// seeded, so .env values win over defaults on first start.
	if err := env.LoadEnv(db); err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	sm := settings.NewStore(db)
	if err := sm.InitializeDefaultSettings(); err != nil {
		logger.Fatal("Failed to initialize settings", zap.Error(err))
	}
	if env.Value.DebugOutput {
		_ = logger.Init(true)
		logger.Debug("Debug mode enabled")
	}

	values, err := sm.Load()
	if err != nil {
		logger.Fatal("Failed to load settings", zap.Error(err))
	}
	wheelSettings, mode := wheel.SettingsFromMap(values)

	machine := wheel.NewMachine(wheel.Config{
		Logger:   logger.Named("wheel"),
		Store:    sm,
		Recorder: localdb.SaveSpinHistory,
		Mode:     mode,
		Settings: &wheelSettings,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	live := newLiveSource()
	svc := wheel.NewService(machine, live.feed, logger.Named("service"))
	if err := svc.Start(ctx, live.src); err != nil {
		logger.Fatal("Failed to start wheel service", zap.Error(err))
	}
	live.start(ctx)

	server := webserver.NewServer(svc, sm, logger.Named("webserver"))
	if err := server.Start(env.Value.ServerPort); err != nil {
		logger.Fatal("Failed to start web server", zap.Error(err))
	}

	logger.Info("Server started",
		zap.Int("port", env.Value.ServerPort),
		zap.String("mode", string(mode)),
		zap.String("live_source", env.Value.LiveSource))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")

	server.Shutdown()
	live.stop()
	svc.Stop()
	cancel()

	logger.Info("Shutdown complete")
}
