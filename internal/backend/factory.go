package backend

import (
	"context"
	"fmt"
	"log/slog"

	"bizledger/internal/storage"
	"bizledger/internal/store/memory"
)

type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

// CreateBackend implements Factory.
func (f *DefaultFactory) CreateBackend(_ context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "component", "backend", "db_path", config.SQLiteDBPath)
		return &Result{Store: repo, Cleanup: repo.Close}, nil

	case MemoryBackend:
		st, err := memory.NewFromFile(config.SeedPath)
		if err != nil {
			return nil, fmt.Errorf("initialize memory backend: %w", err)
		}
		f.logger.Info("Initialized memory backend", "component", "backend", "seed", config.SeedPath)
		return &Result{Store: st, Cleanup: func() error { return nil }}, nil
	}
	return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
}
