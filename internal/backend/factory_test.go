package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizledger/internal/config"
)

func TestFromAppConfig(t *testing.T) {
	_, err := FromAppConfig(nil)
	assert.Error(t, err)

	_, err = FromAppConfig(&config.Config{DataBackend: "sheets"})
	assert.Error(t, err)

	cfg, err := FromAppConfig(&config.Config{DataBackend: "memory", DataDirectory: "/srv/data"})
	require.NoError(t, err)
	assert.Equal(t, MemoryBackend, cfg.Type)
	assert.Equal(t, filepath.Join("/srv/data", "seed.json"), cfg.SeedPath)
}

func TestCreateBackend(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(nil)

	t.Run("memory falls back to the default seed", func(t *testing.T) {
		res, err := f.CreateBackend(ctx, Config{Type: MemoryBackend, SeedPath: filepath.Join(t.TempDir(), "seed.json")})
		require.NoError(t, err)
		types, err := res.Store.ListTypes(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, types)
		assert.NoError(t, res.Cleanup())
	})

	t.Run("sqlite opens and migrates", func(t *testing.T) {
		res, err := f.CreateBackend(ctx, Config{Type: SQLiteBackend, SQLiteDBPath: filepath.Join(t.TempDir(), "db", "ledger.db")})
		require.NoError(t, err)
		types, err := res.Store.ListTypes(ctx)
		require.NoError(t, err)
		assert.Empty(t, types)
		assert.NoError(t, res.Cleanup())
	})

	t.Run("sqlite requires a path", func(t *testing.T) {
		_, err := f.CreateBackend(ctx, Config{Type: SQLiteBackend})
		assert.Error(t, err)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := f.CreateBackend(ctx, Config{Type: "sheets"})
		assert.Error(t, err)
	})
}
