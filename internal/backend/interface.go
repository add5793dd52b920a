// Package backend selects and opens the store implementation named by
// configuration.
package backend

import (
	"context"

	"bizledger/internal/store"
)

// CleanupFunc releases backend resources.
type CleanupFunc func() error

// Result is an opened backend.
type Result struct {
	Store   store.Store
	Cleanup CleanupFunc
}

// Factory opens backends.
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}

// Config holds what backend creation needs.
type Config struct {
	Type BackendType

	// sqlite
	SQLiteDBPath string

	// memory
	SeedPath string
}

type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
