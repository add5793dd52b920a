// Package cli holds the bootstrap shared by cmd/bizledger and
// cmd/ledger-worker.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"bizledger/internal/amqp"
	"bizledger/internal/backend"
	"bizledger/internal/cache"
	"bizledger/internal/config"
	"bizledger/internal/grid"
	"bizledger/internal/log"
	"bizledger/internal/services"
)

// LoadEnvFile loads .env for local development. A missing file is fine.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger from cfg and installs it as the slog
// default.
func SetupLogger(cfg *config.Config, component string) *log.Logger {
	lc := log.DefaultConfig()
	lc.Component = component
	if cfg != nil {
		lc.Level = log.ParseLevel(cfg.LogLevel)
		lc.Format = cfg.LogFormat
	}
	logger := log.New(lc)
	log.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads configuration or exits the process.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// App bundles what both binaries run on.
type App struct {
	Service *services.ExpenseService
	Events  *amqp.Client // nil when AMQP is not configured or unreachable
	Janitor *cache.Janitor
}

// Close stops the cache sweep and releases the backend and broker.
func (a *App) Close() error {
	a.Janitor.Stop()
	return a.Service.Close()
}

// Open wires backend, grid cache and event client from cfg. An unreachable
// broker is logged and events are disabled.
func Open(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger.Slog()).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("create backend: %w", err)
	}

	grids := cache.NewLRUCache[*grid.Grid](cfg.GridCacheSize, cfg.GridCacheTTL)
	janitor := cache.NewJanitor(logger.Slog())
	janitor.Register(grids)
	janitor.Start(cfg.GridCacheTTL)

	app := &App{Janitor: janitor}
	var publisher services.Publisher
	if cfg.EventsEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
		} else {
			logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
			app.Events = client
			publisher = client
		}
	}

	app.Service = services.NewExpenseService(res.Store, grids, publisher, logger.Logger)
	return app, nil
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext(logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		logger.Info("Shutdown signal received")
	}()
	return ctx, stop
}
