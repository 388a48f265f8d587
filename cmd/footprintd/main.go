// Command footprintd runs the real-time footprint-candle ingestion
// engine: trade-source websockets -> consistent-hash worker pool ->
// per-symbol footprint aggregation -> persistence and event fan-out.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"footprintd/internal/config"
	"footprintd/internal/orchestrator"
)

func main() {
	logger, err := setupLogger()
	if err != nil {
		fmt.Printf("failed to set up logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	app := orchestrator.New(cfg, logger)
	if err := app.Run(ctx); err != nil {
		logger.Fatal("footprintd exited with error", zap.Error(err))
	}
}

func setupLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	cfg.OutputPaths = []string{"stdout"}
	return cfg.Build()
}

func loadConfig() (*config.Config, error) {
	execPath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve executable path: %w", err)
	}
	execDir := filepath.Dir(execPath)

	configPath := filepath.Join(execDir, "configs", "config.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		configPath = "configs/config.yaml"
	}

	loader := config.NewConfigLoader()
	return loader.LoadConfig(configPath)
}
