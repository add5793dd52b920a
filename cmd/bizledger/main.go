package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"bizledger/internal/cli"
	apphttp "bizledger/internal/http"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(nil, "bizledger")
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.SetupLogger(cfg, "bizledger")

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

	srv := apphttp.NewServer(":"+cfg.Port, app.Service, apphttp.Options{
		DefaultOwnerID: cfg.DefaultOwnerID,
		Logger:         logger,
		Janitor:        app.Janitor,
	})
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting bizledger server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"events", app.Events != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("Server error", "error", err, "port", cfg.Port)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}
	logger.Info("Server stopped gracefully")
}
