package main

import (
	"context"
	"errors"
	"os"
	"time"

	"bizledger/internal/cli"
	"bizledger/internal/report"
	"bizledger/internal/worker"
)

const refreshInterval = time.Hour

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(nil, "ledger-worker")
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.SetupLogger(cfg, "ledger-worker")

	if !cfg.EventsEnabled() {
		logger.Error("AMQP_URL is required for the ledger worker")
		os.Exit(1)
	}

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	app, err := cli.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize application", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("Failed to close application", "error", err)
		}
	}()
	if app.Events == nil {
		logger.Error("AMQP client unavailable, nothing to consume")
		return
	}

	var publisher worker.GridPublisher
	if cfg.ReportEnabled() {
		sheets, err := report.NewSheetsPublisher(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleReportSheetName, cfg.GoogleCredentialsFile)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets publisher", "error", err)
			os.Exit(1)
		}
		publisher = sheets
		logger.Info("Google Sheets report enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets report disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	w := worker.NewAuditWorker(app.Service, publisher, logger.Logger)

	if publisher != nil {
		if err := w.Refresh(ctx, time.Now().Year()); err != nil {
			logger.Error("Startup report refresh failed", "error", err)
		}
		go func() {
			ticker := time.NewTicker(refreshInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := w.Refresh(ctx, time.Now().Year()); err != nil {
						logger.Error("Periodic report refresh failed", "error", err)
					}
				}
			}
		}()
	}

	logger.Info("Starting ledger worker", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	if err := app.Events.ConsumeLedgerEvents(ctx, w.HandleLedgerEvent); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", "error", err)
	}
	logger.Info("Ledger worker stopped")
}
