// Command stroke-cli scores patient records from the command line with the
// same model, reports and run store as the server.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/stroke-risk-server/internal/cli"
	"github.com/stroke-risk-server/internal/config"
	"github.com/stroke-risk-server/internal/domain"
	"github.com/stroke-risk-server/internal/logging"
	"github.com/stroke-risk-server/internal/model"
	"github.com/stroke-risk-server/internal/report"
	"github.com/stroke-risk-server/internal/repository"
	"github.com/stroke-risk-server/internal/service"
	"github.com/stroke-risk-server/internal/tabular"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		var pe *domain.PipelineError
		if errors.As(err, &pe) {
			fmt.Fprintln(os.Stderr, pe.UserMessage())
		} else if err != cli.ErrUsage {
			// Bare usage errors have already printed the help text.
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(args []string) error {
	configFile := ""
	if len(args) > 1 && (args[0] == "--config" || args[0] == "-c") {
		configFile = args[1]
		args = args[2:]
	}

	configManager, err := config.NewManagerFromFile(configFile)
	if err != nil {
		return err
	}
	if err := configManager.Validate(); err != nil {
		return err
	}
	cfg := configManager.GetConfig()

	// Diagnostics go to stderr so stdout stays machine readable.
	cfg.Logging.Output = "stderr"
	if cfg.Logging.Level == "info" {
		cfg.Logging.Level = "warn"
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	predictor, err := model.Load(cfg.Model, logger)
	if err != nil {
		return err
	}
	defer predictor.Close()

	runs, err := repository.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	if runs != nil {
		defer runs.Close()
	}

	svc := service.NewPredictionService(logger, predictor, runs, tabular.Limits{
		MaxBytes: cfg.Upload.MaxBytes,
		MaxRows:  cfg.Upload.MaxRows,
	})
	reports := report.NewGenerator(cfg.Report, logger)

	return cli.NewCLI(svc, reports, os.Stdout, os.Stderr).Run(ctx, args)
}
