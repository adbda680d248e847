package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/stroke-risk-server/internal/api"
	"github.com/stroke-risk-server/internal/config"
	"github.com/stroke-risk-server/internal/logging"
	"github.com/stroke-risk-server/internal/model"
	"github.com/stroke-risk-server/internal/report"
	"github.com/stroke-risk-server/internal/repository"
	"github.com/stroke-risk-server/internal/service"
	"github.com/stroke-risk-server/internal/tabular"
)

func main() {
	configFile := pflag.StringP("config", "c", "", "configuration file (default: search ./config.yaml, ./config, /etc/stroke-risk)")
	pflag.Parse()

	// Load configuration
	configManager, err := config.NewManagerFromFile(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration validation failed: %v\n", err)
		os.Exit(1)
	}

	cfg := configManager.GetConfig()
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}

	// The server never starts without a model.
	predictor, err := model.Load(cfg.Model, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load model")
	}
	defer predictor.Close()

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	runs, err := repository.Open(ctx, cfg.Storage, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open run store")
	}
	if runs != nil {
		defer runs.Close()
	}

	svc := service.NewPredictionService(logger, predictor, runs, tabular.Limits{
		MaxBytes: cfg.Upload.MaxBytes,
		MaxRows:  cfg.Upload.MaxRows,
	})
	reports := report.NewGenerator(cfg.Report, logger)

	server, err := api.NewServer(configManager, svc, reports, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create server")
	}

	logger.WithField("environment", cfg.Environment).Infof("Starting Stroke Risk Server on %s:%d", cfg.Server.Host, cfg.Server.Port)

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Error("Server failed")
		return
	}

	logger.Info("Server stopped")
}
